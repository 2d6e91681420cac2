package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"bankcap/internal/etl"
	mcpserver "bankcap/internal/mcp"
	"bankcap/internal/storage"
)

// shutdownGrace bounds how long a long-running command waits for an
// in-flight run after a signal.
const shutdownGrace = 30 * time.Second

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// ── run ────────────────────────────────────────────────────

func runCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Extract, transform and load once, then print the verification queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return withRuntime(ctx, func(r *runtime) error {
				result, err := r.pipeline.Run(ctx, storage.TriggerManual)
				if err != nil {
					return err
				}
				if quiet {
					return nil
				}
				return printQueries(cmd.OutOrStdout(), result.Queries)
			})
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print query results")
	return cmd
}

// ── query ──────────────────────────────────────────────────

func queryCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Rerun the verification queries against the loaded table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return withRuntime(ctx, func(r *runtime) error {
				results, err := r.pipeline.Query(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), results)
				}
				return printQueries(cmd.OutOrStdout(), results)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

// ── schedule / watch ───────────────────────────────────────

func scheduleCmd() *cobra.Command {
	var expr string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on a cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), func(r *runtime) error {
				if expr != "" {
					r.cfg.Schedule.Cron = expr
				}
				if r.cfg.Schedule.Cron == "" {
					return fmt.Errorf("schedule.cron is required (set it in the config or pass --cron)")
				}
				r.cfg.Schedule.Watch = nil
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&expr, "cron", "", "Cron expression, e.g. \"0 6 * * *\"")
	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [file...]",
		Short: "Run the pipeline whenever a watched file changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), func(r *runtime) error {
				if len(args) > 0 {
					r.cfg.Schedule.Watch = args
				}
				if len(r.cfg.Schedule.Watch) == 0 {
					r.cfg.Schedule.Watch = []string{r.cfg.Rates.Path}
				}
				r.cfg.Schedule.Cron = ""
				return nil
			})
		},
	}
	return cmd
}

// serve adjusts the trigger settings with setup, starts the watchers and
// blocks until a signal arrives.
func serve(parent context.Context, setup func(r *runtime) error) error {
	ctx, cancel := signalContext(parent)
	defer cancel()

	return withRuntime(ctx, func(r *runtime) error {
		if err := setup(r); err != nil {
			return err
		}
		r.pipeline.SetTriggers(r.cfg.Schedule.Cron, r.cfg.Schedule.Watch)
		if err := r.pipeline.RestartWatchers(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		r.pipeline.Stop()

		waitCtx, waitCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer waitCancel()
		r.pipeline.WaitRunning(waitCtx)
		return nil
	})
}

// ── history ────────────────────────────────────────────────

func historyCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent pipeline runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(r *runtime) error {
				logs, err := r.pipeline.ListRunLogs(limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), logs)
				}
				printHistory(cmd.OutOrStdout(), logs)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print runs as JSON")
	return cmd
}

func printHistory(w io.Writer, logs []storage.RunLog) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Run", "Trigger", "Started", "Duration", "Status", "Rows", "Error"})
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	for _, l := range logs {
		errText := l.Error
		if l.FailedStage != "" {
			errText = fmt.Sprintf("%s: %s", l.FailedStage, l.Error)
		}
		tw.Append([]string{
			l.ID,
			l.Trigger,
			l.StartedAt.Local().Format(time.DateTime),
			l.FinishedAt.Sub(l.StartedAt).Round(time.Millisecond).String(),
			l.Status,
			strconv.Itoa(l.RowsWritten),
			errText,
		})
	}
	tw.Render()
}

// ── mcp ────────────────────────────────────────────────────

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the pipeline as an MCP server on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return withRuntime(ctx, func(r *runtime) error {
				srv := mcpserver.New(r.pipeline, Version)
				errCh := make(chan error, 1)
				go func() { errCh <- srv.ServeStdio() }()

				select {
				case err := <-errCh:
					return err
				case <-ctx.Done():
					waitCtx, waitCancel := context.WithTimeout(context.Background(), shutdownGrace)
					defer waitCancel()
					r.pipeline.WaitRunning(waitCtx)
					return nil
				}
			})
		},
	}
}

// ── output ─────────────────────────────────────────────────

func printQueries(w io.Writer, results []*etl.QueryResult) error {
	for _, res := range results {
		if err := res.Render(w); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
