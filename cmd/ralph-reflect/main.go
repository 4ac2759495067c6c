// Package main implements ralph-reflect, the cold path CLI.
//
// It turns session transcripts into episodes, mines episodes for procedural
// rules and enforces retention. Results are printed to stdout as JSON; logs
// go to stderr and <root>/logs/reflection.log.
//
// Usage:
//
//	ralph-reflect extract ~/.claude/projects/shop/session.jsonl --project shop
//	ralph-reflect patterns
//	ralph-reflect cleanup
//	ralph-reflect watch ~/.claude/projects/shop
//	ralph-reflect hook session-end < event.json
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyrsmithlabs/ralph-memory/internal/cli"
	"github.com/fyrsmithlabs/ralph-memory/internal/config"
	"github.com/fyrsmithlabs/ralph-memory/internal/reflection"
	"github.com/spf13/cobra"
)

// version is set via ldflags during build.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if a.env != nil {
		if closeErr := a.env.Close(ctx); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

// app carries the state shared by the subcommands of one invocation.
type app struct {
	opts   cli.Options
	stderr io.Writer

	env  *cli.Env
	exec *reflection.Executor
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ralph-reflect",
		Short: "Reflect on finished sessions",
		Long: `ralph-reflect extracts episodes from session transcripts, mines them
for procedural rules and enforces retention.

The storage root is --root, $RALPH_DIR or ~/.ralph. Activity is logged to
<root>/logs/reflection.log.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.opts.Root, "root", "", "storage root directory (default $RALPH_DIR or ~/.ralph)")
	root.PersistentFlags().StringVar(&a.opts.ConfigPath, "config", "", "config document (default <root>/config/memory-config.json)")
	root.PersistentFlags().BoolVar(&a.opts.Metrics, "metrics", false, "print collected metrics to stderr on exit")

	root.AddCommand(
		a.extractCmd(),
		a.patternsCmd(),
		a.cleanupCmd(),
		a.statusCmd(),
		a.decayCmd(),
		a.watchCmd(),
		a.hookCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	a.opts.LogFile = func(cfg *config.Config) string {
		if err := config.EnsureDirs(cfg); err != nil {
			return ""
		}
		return cfg.ReflectionLogPath()
	}
	// Hook runners surface stderr to the user; keep it to the log file.
	a.opts.Quiet = cmd.Name() == "hook"

	env, err := cli.Setup(a.opts, cli.Stderr(a.stderr))
	if err != nil {
		return err
	}
	a.env = env

	a.exec, err = reflection.NewExecutor(env.Config, env.Zap().Named("reflection"))
	if err != nil {
		return fmt.Errorf("creating reflection executor: %w", err)
	}
	return nil
}
