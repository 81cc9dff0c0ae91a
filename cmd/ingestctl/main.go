// Command ingestctl is an operator CLI that enqueues C6 tasks directly
// against Postgres and Valkey, without going through the HTTP surface.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/meridian/internal/domain/ingest"
	"github.com/yanqian/meridian/internal/infra/config"
	"github.com/yanqian/meridian/internal/infra/metadatastore"
	"github.com/yanqian/meridian/internal/infra/queue"
	"github.com/yanqian/meridian/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ingestctl",
		Short: "Enqueue ingestion and maintenance tasks without going through the HTTP API",
	}
	root.AddCommand(newIngestFolderCmd(), newReprocessCmd(), newRebuildIndexCmd())
	return root
}

func newIngestFolderCmd() *cobra.Command {
	var localDir string
	var include, exclude []string
	var reconcileDeletes bool
	var wait bool

	cmd := &cobra.Command{
		Use:   "ingest-folder <folder-id>",
		Short: "Run Stage 1 for a Drive folder and enqueue run_full_pipeline for every touched document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := ingest.Task{
				Kind: ingest.TaskKindIngestFolder,
				Payload: map[string]any{
					"folder_id":         args[0],
					"local_dir":         localDir,
					"include_patterns":  include,
					"exclude_patterns":  exclude,
					"reconcile_deletes": reconcileDeletes,
				},
			}
			return runTask(cmd.Context(), task, wait)
		},
	}
	cmd.Flags().StringVar(&localDir, "local-dir", "", "local staging directory to sync into")
	cmd.Flags().StringSliceVar(&include, "include", nil, "include glob patterns")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "exclude glob patterns")
	cmd.Flags().BoolVar(&reconcileDeletes, "reconcile-deletes", false, "sent in the task payload; the ingest stage does not remove documents missing from the remote folder")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the task reaches a terminal state")
	return cmd
}

func newReprocessCmd() *cobra.Command {
	var fromStep int
	var wait bool

	cmd := &cobra.Command{
		Use:   "reprocess <document-id>",
		Short: "Clear a document's downstream state and resume the pipeline from a given step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			documentID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid document id: %w", err)
			}
			task := ingest.Task{
				Kind:    ingest.TaskKindReprocessDocument,
				Payload: map[string]any{"document_id": documentID.String(), "from_step": fromStep},
			}
			return runTask(cmd.Context(), task, wait)
		},
	}
	cmd.Flags().IntVar(&fromStep, "from-step", 2, "pipeline step to resume from (2=classify .. 7=embed)")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the task reaches a terminal state")
	return cmd
}

func newRebuildIndexCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "rebuild-index",
		Short: "Rebuild the HNSW vector index used by C7 retrieval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			task := ingest.Task{Kind: ingest.TaskKindRebuildHNSWIndex}
			return runTask(cmd.Context(), task, wait)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the task reaches a terminal state")
	return cmd
}

// runTask persists the task, enqueues it on the durable queue a worker pool
// is consuming from, and optionally polls until it leaves a non-terminal
// state.
func runTask(ctx context.Context, task ingest.Task, wait bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New()

	pool, err := metadatastore.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns, log)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	tasks := metadatastore.NewTaskStore(pool)

	addr := strings.TrimSpace(cfg.Valkey.Addr)
	if addr == "" {
		return fmt.Errorf("valkey.addr must be configured to enqueue tasks")
	}
	var opt valkey.ClientOption
	if strings.Contains(addr, "://") {
		opt, err = valkey.ParseURL(addr)
	} else {
		opt = valkey.ClientOption{InitAddress: []string{addr}}
	}
	if err != nil {
		return fmt.Errorf("parse valkey address: %w", err)
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		return fmt.Errorf("connect valkey: %w", err)
	}
	q := queue.NewValkeyQueue(client, "meridian:tasks")

	if err := tasks.Create(ctx, &task); err != nil {
		return fmt.Errorf("persist task: %w", err)
	}
	if err := q.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	fmt.Printf("enqueued %s task %s\n", task.Kind, task.ID)

	if !wait {
		return nil
	}
	return pollUntilTerminal(ctx, tasks, task.ID)
}

func pollUntilTerminal(ctx context.Context, tasks ingest.TaskStore, id uuid.UUID) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			task, found, err := tasks.Get(ctx, id)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("task %s disappeared", id)
			}
			fmt.Printf("%s: %s %d%%\n", task.State, task.Step, task.Progress)
			switch task.State {
			case ingest.TaskStateSuccess:
				return nil
			case ingest.TaskStateFailure:
				return fmt.Errorf("task failed: %s", task.Error)
			case ingest.TaskStateRevoked:
				return fmt.Errorf("task revoked")
			}
		}
	}
}
