package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/ralph-memory/internal/cli"
	"github.com/fyrsmithlabs/ralph-memory/internal/episodic"
	"github.com/fyrsmithlabs/ralph-memory/internal/memory"
	"github.com/fyrsmithlabs/ralph-memory/internal/procedural"
	"github.com/fyrsmithlabs/ralph-memory/internal/semantic"
	"github.com/spf13/cobra"
)

func (a *app) writeCmd() *cobra.Command {
	var (
		content    string
		category   string
		source     string
		importance int
		tags       []string
		ttlDays    int
		project    string
		session    string
		failed     bool
		trigger    string
		rationale  string
		confidence float64
		point      string
	)

	cmd := &cobra.Command{
		Use:   "write <semantic|episodic|procedural>",
		Short: "Write a fact, episode or rule",
		Long: `Write a memory record and print its id.

Examples:
  # Record a fact
  ralph-memory write semantic -c "use TypeScript for type safety" --category tech_decision

  # Record an episode for the current project
  ralph-memory write episodic -c "Migrated auth to JWT" -t auth -t jwt -i 7

  # Record a rule; the content is the behavior
  ralph-memory write procedural -c "Run migrations on a scratch database first" --trigger "database migration"`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"semantic", "episodic", "procedural"},
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := memory.ParseTypes(args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var res memory.WriteResult
			switch types[0] {
			case memory.TypeSemantic:
				req := semantic.WriteRequest{
					Content:    content,
					Category:   semantic.Category(category),
					Source:     source,
					Importance: importance,
					Tags:       tags,
				}
				if ttlDays > 0 {
					req.TTLDays = &ttlDays
				}
				res, err = a.mgr.WriteSemantic(ctx, req)
			case memory.TypeEpisodic:
				if project == "" {
					project = currentProject()
				}
				res, err = a.mgr.WriteEpisode(ctx, &episodic.Episode{
					Task:       content,
					Context:    "CLI input",
					Project:    project,
					SessionID:  session,
					Success:    !failed,
					Tags:       tags,
					Importance: importance,
				})
			case memory.TypeProcedural:
				if trigger == "" {
					trigger = content
				}
				res, err = a.mgr.WriteProcedural(ctx, procedural.WriteRequest{
					Trigger:        trigger,
					Behavior:       content,
					Rationale:      rationale,
					Confidence:     confidence,
					InjectionPoint: procedural.InjectionPoint(point),
				})
			}
			if err != nil {
				return err
			}
			return cli.PrintJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVarP(&content, "content", "c", "", "fact content, episode task or rule behavior (required)")
	cmd.Flags().StringVar(&category, "category", string(semantic.CategoryGeneral), "fact category")
	cmd.Flags().StringVar(&source, "source", "cli", "fact source")
	cmd.Flags().IntVarP(&importance, "importance", "i", 5, "importance 1-10")
	cmd.Flags().StringSliceVarP(&tags, "tags", "t", nil, "tags (repeatable or comma separated)")
	cmd.Flags().IntVar(&ttlDays, "ttl-days", 0, "expire the fact after this many days")
	cmd.Flags().StringVarP(&project, "project", "p", "", "episode project (default current directory name)")
	cmd.Flags().StringVar(&session, "session-id", "cli", "episode session id")
	cmd.Flags().BoolVar(&failed, "failed", false, "mark the episode unsuccessful")
	cmd.Flags().StringVar(&trigger, "trigger", "", "rule trigger (default the content)")
	cmd.Flags().StringVar(&rationale, "rationale", "CLI created", "rule rationale")
	cmd.Flags().Float64Var(&confidence, "confidence", procedural.DefaultConfidence, "rule confidence 0-1")
	cmd.Flags().StringVar(&point, "injection-point", string(procedural.PreToolUse), "hook stage the rule prompt is injected at")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func (a *app) searchCmd() *cobra.Command {
	var (
		types []string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search across memory types",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := memory.ParseTypes(types)
			if err != nil {
				return err
			}
			res, err := a.mgr.Search(cmd.Context(), args[0], parsed, limit)
			if err != nil {
				return err
			}
			return cli.PrintJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringSliceVar(&types, "types", []string{"semantic", "episodic"}, "memory types to search")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results per type")
	return cmd
}

func (a *app) contextCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "context <task>",
		Short: "Gather the memory relevant to a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := a.mgr.GetContextForTask(cmd.Context(), args[0], project)
			if err != nil {
				return err
			}
			return cli.PrintJSON(cmd.OutOrStdout(), tc)
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "limit similar episodes to a project")
	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show memory statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.mgr.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return cli.PrintJSON(cmd.OutOrStdout(), st)
		},
	}
}

func (a *app) updateCmd() *cobra.Command {
	var (
		content    string
		importance int
	)
	cmd := &cobra.Command{
		Use:   "update <fact-id>",
		Short: "Change a fact's content or importance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req semantic.UpdateRequest
			if cmd.Flags().Changed("content") {
				req.Content = &content
			}
			if cmd.Flags().Changed("importance") {
				req.Importance = &importance
			}
			if req.Content == nil && req.Importance == nil {
				return fmt.Errorf("nothing to update: set --content or --importance")
			}
			ok, err := a.mgr.UpdateFact(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			return found(cmd, args[0], ok)
		},
	}
	cmd.Flags().StringVarP(&content, "content", "c", "", "new content")
	cmd.Flags().IntVarP(&importance, "importance", "i", 0, "new importance 1-10")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	var memType string
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a fact or an episode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				ok  bool
				err error
			)
			switch memory.MemoryType(strings.ToLower(memType)) {
			case memory.TypeSemantic:
				ok, err = a.mgr.DeleteFact(cmd.Context(), args[0])
			case memory.TypeEpisodic:
				ok, err = a.mgr.DeleteEpisode(cmd.Context(), args[0])
			default:
				return fmt.Errorf("%w: %q (semantic or episodic)", memory.ErrUnknownType, memType)
			}
			if err != nil {
				return err
			}
			return found(cmd, args[0], ok)
		},
	}
	cmd.Flags().StringVar(&memType, "type", string(memory.TypeSemantic), "semantic or episodic")
	return cmd
}

func (a *app) applyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <rule-id>",
		Short: "Record that a rule was applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := a.mgr.ApplyRule(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return found(cmd, args[0], ok)
		},
	}
}

func (a *app) episodesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "episodes [episode-id]",
		Short: "Show one episode, or the most recent summaries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				recent, err := a.mgr.RecentEpisodes(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return cli.PrintJSON(cmd.OutOrStdout(), recent)
			}
			ep, err := a.mgr.GetEpisode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ep == nil {
				return found(cmd, args[0], false)
			}
			return cli.PrintJSON(cmd.OutOrStdout(), ep)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of recent episodes")
	return cmd
}

func (a *app) reasoningCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reasoning",
		Short: "Store or read an agent's reasoning log",
	}

	var project string
	store := &cobra.Command{
		Use:   "store <agent> <task-id> <reasoning>",
		Short: "Append reasoning for an agent",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if project == "" {
				project = currentProject()
			}
			entry, err := a.mgr.StoreReasoning(cmd.Context(), args[0], args[1], project, args[2])
			if err != nil {
				return err
			}
			return cli.PrintJSON(cmd.OutOrStdout(), entry)
		},
	}
	store.Flags().StringVarP(&project, "project", "p", "", "project (default current directory name)")

	var limit int
	recent := &cobra.Command{
		Use:   "recent <agent>",
		Short: "Show an agent's newest reasoning first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.mgr.RecentReasoning(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return cli.PrintJSON(cmd.OutOrStdout(), entries)
		},
	}
	recent.Flags().IntVar(&limit, "limit", 10, "maximum entries")

	cmd.AddCommand(store, recent)
	return cmd
}

func (a *app) reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the episode index from the files on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := a.mgr.Reindex(cmd.Context())
			if err != nil {
				return err
			}
			return cli.PrintJSON(cmd.OutOrStdout(), map[string]int{"episodes": n})
		},
	}
}

func currentProject() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Base(wd)
}
