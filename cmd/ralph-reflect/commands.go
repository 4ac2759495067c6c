package main

import (
	"fmt"

	"github.com/fyrsmithlabs/ralph-memory/internal/cli"
	"github.com/fyrsmithlabs/ralph-memory/internal/hooks"
	"github.com/fyrsmithlabs/ralph-memory/internal/logging"
	"github.com/fyrsmithlabs/ralph-memory/internal/memory"
	"github.com/fyrsmithlabs/ralph-memory/internal/reflection"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// extractResult is the summary printed by extract.
type extractResult struct {
	EpisodeID string   `json:"episode_id"`
	Task      string   `json:"task"`
	Success   bool     `json:"success"`
	Tags      []string `json:"tags"`
}

func (a *app) extractCmd() *cobra.Command {
	var project, session string
	cmd := &cobra.Command{
		Use:   "extract <transcript>",
		Short: "Extract an episode from a transcript",
		Long: `Extract an episode from a plain text or JSONL transcript and save it.

An unreadable transcript yields an episode built from empty text.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, err := a.exec.Extract(cmd.Context(), args[0], project, session)
			if err != nil {
				return err
			}
			return cli.PrintJSON(cmd.OutOrStdout(), extractResult{
				EpisodeID: ep.ID,
				Task:      ep.Task,
				Success:   ep.Success,
				Tags:      ep.Tags,
			})
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "project the session belongs to")
	cmd.Flags().StringVar(&session, "session-id", "", "session id (default from the transcript)")
	return cmd
}

func (a *app) patternsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "Mine episodes for procedural rules and save them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			run, err := a.exec.RunPatterns(cmd.Context())
			if err != nil {
				return err
			}
			return cli.PrintJSON(cmd.OutOrStdout(), map[string]any{
				"rules_detected": len(run.Detected),
				"rules_saved":    run.Saved.Added + run.Saved.Replaced,
				"rules_total":    run.Saved.Total,
				"rules":          run.Detected,
			})
		},
	}
}

func (a *app) cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired episodes and facts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.exec.CleanupOldEpisodes(cmd.Context())
			if err != nil {
				return err
			}
			return cli.PrintJSON(cmd.OutOrStdout(), res)
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cold path configuration, counts and recent activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.exec.Status(cmd.Context(), lines)
			if err != nil {
				return err
			}
			return cli.PrintJSON(cmd.OutOrStdout(), st)
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", reflection.DefaultRecentActivity, "reflection log lines to show")
	return cmd
}

func (a *app) decayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decay",
		Short: "Lower the confidence of rules that were never applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := a.exec.DecayUnusedRules(cmd.Context())
			if err != nil {
				return err
			}
			return cli.PrintJSON(cmd.OutOrStdout(), map[string]int{"rules_decayed": n})
		},
	}
}

// watchResult is one line of watch output.
type watchResult struct {
	Path       string `json:"path"`
	EpisodeID  string `json:"episode_id,omitempty"`
	RulesSaved int    `json:"rules_saved"`
	Error      string `json:"error,omitempty"`
}

func (a *app) watchCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Extract transcripts written to a directory until interrupted",
		Long: `Watch a directory and run extraction and pattern mining for each
transcript (.jsonl or .txt) once it stops changing.

One JSON line is printed per processed transcript.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := reflection.NewWatcher(a.exec, args[0], project)
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				return err
			}
			defer w.Stop()

			out := cmd.OutOrStdout()
			for {
				select {
				case <-ctx.Done():
					return nil
				case res := <-w.Results():
					line := watchResult{Path: res.Path}
					if res.Episode != nil {
						line.EpisodeID = res.Episode.ID
					}
					if res.Patterns != nil {
						line.RulesSaved = res.Patterns.Saved.Added + res.Patterns.Saved.Replaced
					}
					if res.Err != nil {
						line.Error = res.Err.Error()
					}
					if err := cli.PrintJSON(out, line); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "project for every transcript (default the transcript's directory name)")
	return cmd
}

func (a *app) hookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook [event]",
		Short: "Handle a session lifecycle hook event read from stdin",
		Long: `Handle a hook event. The event payload is read from stdin; the event
name argument is used when the payload does not carry one.

SessionEnd and PreCompact run extraction and pattern mining. SessionStart,
PreToolUse and UserPromptSubmit print the matching rule prompts as
additional context.

Handler failures are logged and never fail the hook.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fallback hooks.HookType
			if len(args) == 1 {
				t, err := hooks.ParseHookType(args[0])
				if err != nil {
					return err
				}
				fallback = t
			}

			ev, err := hooks.ParseEvent(cmd.InOrStdin(), fallback)
			if err != nil {
				return err
			}

			ctx := logging.WithHook(logging.WithProject(cmd.Context(), ev.Project()), string(ev.Type))
			if sctx, err := logging.WithSessionID(ctx, ev.SessionID); err == nil {
				ctx = sctx
			}

			cfg := a.env.Config
			logger := a.env.Zap()
			hm := hooks.NewHookManager(cfg.Hooks, logger.Named("hooks"))
			a.exec.RegisterHooks(hm)

			mgr, err := memory.NewManager(cfg, logger.Named("memory"))
			if err != nil {
				return fmt.Errorf("creating memory manager: %w", err)
			}
			mgr.RegisterHooks(hm)

			out, err := hm.Execute(ctx, ev)
			if err != nil {
				// Memory is advisory; the session continues.
				a.env.Logger.Warn(ctx, "hook completed with errors", zap.Error(err))
			} else {
				a.env.Logger.Info(ctx, "hook handled", zap.Int("context_lines", len(out.Context)))
			}
			return out.Encode(cmd.OutOrStdout())
		},
	}
	return cmd
}
