package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	httpapi "github.com/estroop3-gif/second-watch-network-sub004/internal/adapter/http"
	"github.com/estroop3-gif/second-watch-network-sub004/internal/domain"
	"github.com/estroop3-gif/second-watch-network-sub004/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "transcoderd",
		Short:         "Video transcode queue worker",
		Long:          "transcoderd drains the transcode job queue: it claims pending jobs, produces the rendition ladder with ffmpeg, and publishes the results to object storage and the asset catalog.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunCmd(),
		newOnceCmd(),
		newServeCmd(),
		newEnqueueCmd(),
		newStatusCmd(),
		newRequeueCmd(),
	)
	return root
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newRunCmd() *cobra.Command {
	var singleRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the queue and process jobs until stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			a.runner.SingleRun = singleRun
			if err := a.runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&singleRun, "single-run", false, "exit once the queue is empty instead of polling")
	return cmd
}

func newOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Claim at most one job, process it, and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.runner.RunOnce(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the push-invocation API with an in-process worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			notifier := service.NewNotifier()
			a.runner.WithNotifier(notifier)

			server := &http.Server{
				Addr:         fmt.Sprintf(":%d", a.cfg.Port),
				Handler:      httpapi.NewServer(a.jobs, a.blobs, a.runner, notifier, a.log),
				ReadTimeout:  30 * time.Second,
				// Event-triggered transcodes answer after the encode finishes.
				WriteTimeout: 30 * time.Minute,
				IdleTimeout:  120 * time.Second,
			}

			runnerDone := make(chan error, 1)
			go func() { runnerDone <- a.runner.Run(ctx) }()

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					a.log.WithError(err).Error("http shutdown error")
				}
			}()

			a.log.WithField("addr", server.Addr).Info("api listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			if err := <-runnerDone; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newEnqueueCmd() *cobra.Command {
	var (
		assetID   string
		sourceKey string
		qualities []string
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Insert a pending transcode job",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			id, err := uuid.Parse(assetID)
			if err != nil {
				return fmt.Errorf("invalid --asset: %w", err)
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			job := domain.NewJob(id, sourceKey, qualities)
			if err := a.jobs.Enqueue(ctx, job); err != nil {
				return err
			}
			return printJSON(cmd, jobView(job))
		},
	}
	cmd.Flags().StringVar(&assetID, "asset", "", "asset the renditions belong to (uuid)")
	cmd.Flags().StringVar(&sourceKey, "source-key", "", "blob key of the source file")
	cmd.Flags().StringSliceVar(&qualities, "quality", nil, "quality label to produce; repeatable, defaults to auto")
	_ = cmd.MarkFlagRequired("asset")
	_ = cmd.MarkFlagRequired("source-key")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show one job, or queue depth per status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 0 {
				counts, err := a.jobs.Counts(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, counts)
			}

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}
			job, err := a.jobs.Get(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd, jobView(job))
		},
	}
}

func newRequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <job-id>",
		Short: "Put a terminal or stuck job back to pending",
		Long:  "Requeue resets a job row to pending so a worker picks it up again. Deterministic rendition keys make the re-run overwrite its previous output. This is the only path back to pending; workers never retry on their own.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.jobs.Requeue(ctx, id); err != nil {
				return err
			}
			cmd.Printf("job %s requeued\n", id)
			return nil
		},
	}
}

// jobView flattens a job row for CLI output; sql.NullTime does not print
// well as-is.
func jobView(job *domain.Job) map[string]any {
	v := map[string]any{
		"id":         job.ID.String(),
		"asset_id":   job.AssetID.String(),
		"source_key": job.SourceKey,
		"qualities":  job.Qualities,
		"status":     string(job.Status),
		"progress":   job.Progress,
		"created_at": job.CreatedAt,
	}
	if job.ErrorMessage != "" {
		v["error_message"] = job.ErrorMessage
	}
	if len(job.Renditions) > 0 {
		v["renditions"] = job.Renditions
	}
	if job.StartedAt.Valid {
		v["started_at"] = job.StartedAt.Time
	}
	if job.CompletedAt.Valid {
		v["completed_at"] = job.CompletedAt.Time
	}
	return v
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	return nil
}
