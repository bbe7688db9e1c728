package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/comfforts/logger"

	"github.com/hankgalt/records-ingest/internal/domain/records"
	"github.com/hankgalt/records-ingest/internal/infra/temporal"
	"github.com/hankgalt/records-ingest/internal/usecase/ingest/sources"
	"github.com/hankgalt/records-ingest/internal/usecase/workflows/fileingest"
	envutils "github.com/hankgalt/records-ingest/pkg/utils/environment"
)

const (
	CLIENT_NAME       = "records-ingest-client"
	PROGRESS_INTERVAL = 10 * time.Second
)

// Starts an ingest workflow for a file & waits for its summary.
// SOURCE_TYPE=gcs reads BUCKET/people/FILE_NAME, otherwise DATA_DIR/people/FILE_NAME.
func main() {
	l := logger.GetSlogLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Hour)
	defer cancel()
	ctx = logger.WithLogger(ctx, l)

	if err := run(ctx, l); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, l logger.Logger) error {
	cfg, err := envutils.BuildIngestConfig()
	if err != nil {
		l.Error("error building ingest config", "error", err.Error())
		return err
	}

	tCfg := envutils.BuildTemporalConfig(CLIENT_NAME)
	tc, err := temporal.NewTemporalClient(ctx, tCfg)
	if err != nil {
		l.Error("error creating temporal client", "error", err.Error())
		return err
	}
	defer func() {
		if err := tc.Close(context.WithoutCancel(ctx)); err != nil {
			l.Error("error closing temporal client", "error", err.Error())
		}
	}()

	jobID := fmt.Sprintf("ingest-%s", uuid.NewString())
	wkflOpts := client.StartWorkflowOptions{
		ID:        jobID,
		TaskQueue: tCfg.TaskQueue(),
	}
	sinkCfg := envutils.BuildMongoSinkConfig(true)

	var (
		workflow string
		req      any
	)
	if os.Getenv("SOURCE_TYPE") == string(sources.CloudSourceGCS) {
		envCfg, err := envutils.BuildCloudFileConfig()
		if err != nil {
			l.Error("error building cloud file config", "error", err.Error())
			return err
		}
		workflow = fileingest.IngestCloudFileMongoWorkflowAlias
		req = fileingest.CloudFileMongoRequest{
			JobID: jobID,
			Source: &sources.CloudFileConfig{
				Provider: string(sources.CloudSourceGCS),
				Bucket:   envCfg.Bucket,
				Path:     filepath.Join(envCfg.Path, envCfg.Name),
			},
			Sink:   sinkCfg,
			Config: cfg,
		}
	} else {
		filePath, fErr := envutils.BuildFilePath()
		if fErr != nil {
			return fErr
		}
		workflow = fileingest.IngestLocalFileMongoWorkflowAlias
		req = fileingest.LocalFileMongoRequest{
			JobID:  jobID,
			Source: &sources.LocalFileConfig{Path: filepath.Join(filePath, envutils.BuildFileName())},
			Sink:   sinkCfg,
			Config: cfg,
		}
	}

	run, err := tc.StartWorkflowWithCtx(ctx, wkflOpts, workflow, req)
	if err != nil {
		return err
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	go watchProgress(watchCtx, l, tc, run.GetID(), run.GetRunID())

	var sum records.Summary
	wErr := run.Get(ctx, &sum)
	stopWatch()
	if wErr != nil && ctx.Err() != nil {
		// interrupted or timed out, the run stops before its next batch
		l.Info("cancelling ingest workflow", "job-id", jobID, "reason", ctx.Err().Error())
		cCtx, cCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cCancel()
		if err := tc.CancelWorkflow(cCtx, jobID); err != nil {
			return errors.Join(wErr, err)
		}
		return wErr
	}
	if wErr != nil {
		kind := fileingest.FailureKind(wErr)
		if partial, ok := fileingest.FailureSummary(wErr); ok {
			l.Error(
				"ingest workflow failed",
				"job-id", jobID,
				"kind", string(kind),
				"records-processed", partial.RecordsProcessed,
				"error", wErr.Error(),
			)
		} else {
			l.Error("ingest workflow failed", "job-id", jobID, "kind", string(kind), "error", wErr.Error())
		}
		return wErr
	}

	l.Info(
		"ingest workflow completed",
		"job-id", jobID,
		"ingest-id", sum.IngestID,
		"records-processed", sum.RecordsProcessed,
		"batches", sum.Batches,
	)
	return nil
}

// watchProgress logs the ingest activity's last heartbeat until ctx is done.
func watchProgress(ctx context.Context, l logger.Logger, tc *temporal.TemporalClient, workflowID, runID string) {
	ticker := time.NewTicker(PROGRESS_INTERVAL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var p fileingest.Progress
			ok, err := tc.LastHeartbeat(ctx, workflowID, runID, &p)
			if err != nil {
				if ctx.Err() == nil {
					l.Debug("error fetching ingest progress", "workflow-id", workflowID, "error", err.Error())
				}
				continue
			}
			if ok {
				l.Info(
					"ingest progress",
					"workflow-id", workflowID,
					"ingest-id", p.IngestID,
					"batches", p.Batches,
					"records-processed", p.RecordsProcessed,
				)
			}
		}
	}
}
