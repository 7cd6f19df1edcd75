package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/review-orchestrator/internal/domain"
	httpapi "github.com/tbourn/review-orchestrator/internal/http"
	"github.com/tbourn/review-orchestrator/internal/repo"
	"github.com/tbourn/review-orchestrator/internal/services"
)

// NewHistoryCommand groups offline history maintenance. It opens DB_PATH
// directly, so it works while the server is down.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and prune persisted review history",
	}
	cmd.AddCommand(newHistoryListCommand(rootOpts))
	cmd.AddCommand(newHistoryChainCommand(rootOpts))
	cmd.AddCommand(newHistoryDeleteCommand(rootOpts))
	return cmd
}

func newHistoryListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		kind   string
		entity int
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list <owner/repo>",
		Short: "List entries for a repository, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := services.ListOptions{Limit: limit, Number: entity}
			if kind != "" {
				k, err := domain.ParseEntityKind(kind)
				if err != nil {
					return err
				}
				opts.Kind = k
			}
			return withHistory(cmd.Context(), rootOpts, func(ctx context.Context, h *services.HistoryService) error {
				entries, err := h.List(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printEntries(cmd.OutOrStdout(), rootOpts.Format, entries)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "restrict to issue or pr")
	cmd.Flags().IntVar(&entity, "entity", 0, "restrict to one issue or PR number")
	cmd.Flags().IntVar(&limit, "limit", 0, "max entries (0 uses the server default)")
	return cmd
}

func newHistoryChainCommand(rootOpts *RootOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "chain <owner/repo> <number>",
		Short: "Print the re-review chain for an entity, oldest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := domain.ParseEntityKind(kind)
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("number: %w", err)
			}
			key, err := domain.NewEntityKey(args[0], k, n)
			if err != nil {
				return err
			}
			return withHistory(cmd.Context(), rootOpts, func(ctx context.Context, h *services.HistoryService) error {
				chain, err := h.Chain(ctx, key.Repository, key.Kind, key.Number)
				if err != nil {
					return err
				}
				return printEntries(cmd.OutOrStdout(), rootOpts.Format, chain)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "pr", "entity kind (issue|pr)")
	return cmd
}

func newHistoryDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete entries by id; unknown ids are reported, not fatal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd.Context(), rootOpts, func(ctx context.Context, h *services.HistoryService) error {
				out := cmd.OutOrStdout()
				for _, id := range args {
					ok, err := h.Delete(ctx, id)
					if err != nil {
						return fmt.Errorf("delete %s: %w", id, err)
					}
					if rootOpts.Format == "json" {
						if err := json.NewEncoder(out).Encode(map[string]any{"id": id, "deleted": ok}); err != nil {
							return err
						}
						continue
					}
					fmt.Fprintf(out, "%s\tdeleted=%t\n", id, ok)
				}
				return nil
			})
		},
	}
}

// withHistory opens the configured database for the duration of fn.
func withHistory(ctx context.Context, rootOpts *RootOptions, fn func(context.Context, *services.HistoryService) error) error {
	db, err := repo.OpenSQLite(rootOpts.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, httpapi.NewHistoryService(db, rootOpts.cfg))
}

func printEntries(w io.Writer, format string, entries []domain.HistoryEntry) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tENTITY\tSEQ\tVERDICT\tPERSISTED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s#%d (%s)\t%d\t%s\t%s\n",
			e.ID, e.RepositoryFullName, e.EntityNumber, e.EntityKind, e.Sequence,
			verdict(e.Outcome), e.PersistedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func verdict(o domain.Outcome) string {
	switch {
	case o.Validation != nil:
		return fmt.Sprintf("%s (%d%%)", o.Validation.Verdict, o.Validation.Confidence)
	case o.Review != nil:
		return fmt.Sprintf("%s (%d)", o.Review.Verdict, o.Review.Score)
	}
	return "-"
}
