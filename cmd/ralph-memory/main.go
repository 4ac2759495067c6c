// Package main implements ralph-memory, the hot path CLI over the memory
// stores.
//
// Results are printed to stdout as JSON; logs go to stderr.
//
// Usage:
//
//	ralph-memory write semantic -c "use TypeScript for type safety" --category tech_decision
//	ralph-memory search typescript --types semantic,episodic
//	ralph-memory context "add a docker healthcheck" -p shop
//	ralph-memory stats
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fyrsmithlabs/ralph-memory/internal/cli"
	"github.com/fyrsmithlabs/ralph-memory/internal/memory"
	"github.com/spf13/cobra"
)

// version is set via ldflags during build.
var version = "dev"

// errNotFound makes the process exit non-zero after a not-found result
// has been printed.
var errNotFound = errors.New("not found")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if closeErr := a.close(ctx); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// app carries the state shared by the subcommands of one invocation.
type app struct {
	opts   cli.Options
	stderr io.Writer

	env *cli.Env
	mgr *memory.Manager
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ralph-memory",
		Short: "Read and write the layered memory stores",
		Long: `ralph-memory reads and writes semantic facts, episodes and procedural
rules, and assembles the memory relevant to a task.

The storage root is --root, $RALPH_DIR or ~/.ralph.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.opts.Root, "root", "", "storage root directory (default $RALPH_DIR or ~/.ralph)")
	root.PersistentFlags().StringVar(&a.opts.ConfigPath, "config", "", "config document (default <root>/config/memory-config.json)")
	root.PersistentFlags().BoolVar(&a.opts.Metrics, "metrics", false, "print collected metrics to stderr on exit")

	root.AddCommand(
		a.writeCmd(),
		a.searchCmd(),
		a.contextCmd(),
		a.statsCmd(),
		a.updateCmd(),
		a.deleteCmd(),
		a.applyCmd(),
		a.episodesCmd(),
		a.reasoningCmd(),
		a.reindexCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	env, err := cli.Setup(a.opts, cli.Stderr(a.stderr))
	if err != nil {
		return err
	}
	a.env = env

	a.mgr, err = memory.NewManager(env.Config, env.Zap().Named("memory"))
	if err != nil {
		return fmt.Errorf("creating memory manager: %w", err)
	}
	return nil
}

func (a *app) close(ctx context.Context) error {
	if a.env == nil {
		return nil
	}
	return a.env.Close(ctx)
}

// found prints the outcome of an id-addressed operation.
func found(cmd *cobra.Command, id string, ok bool) error {
	if err := cli.PrintJSON(cmd.OutOrStdout(), map[string]any{"success": ok, "id": id}); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", id, errNotFound)
	}
	return nil
}
