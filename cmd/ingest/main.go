package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/comfforts/logger"

	"github.com/hankgalt/records-ingest/internal/domain/records"
	"github.com/hankgalt/records-ingest/internal/usecase/ingest"
	"github.com/hankgalt/records-ingest/internal/usecase/ingest/sinks"
	"github.com/hankgalt/records-ingest/internal/usecase/ingest/sources"
	envutils "github.com/hankgalt/records-ingest/pkg/utils/environment"
)

// Sink types selectable with SINK_TYPE.
const (
	SINK_MONGO = "mongo"
	SINK_JSON  = "json"
	SINK_NOOP  = "noop"
)

// Ingests DATA_DIR/people/FILE_NAME (or BUCKET/people/FILE_NAME with SOURCE_TYPE=gcs)
// into the sink named by SINK_TYPE, without a workflow engine.
func main() {
	l := logger.GetSlogMultiLogger("data")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, l)

	if err := run(ctx, l); err != nil {
		l.Error("ingestion failed", "kind", string(records.KindOf(err)), "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, l logger.Logger) error {
	cfg, err := envutils.BuildIngestConfig()
	if err != nil {
		return err
	}

	srcCfg, err := buildSourceConfig()
	if err != nil {
		return err
	}
	sinkCfg, err := buildSinkConfig()
	if err != nil {
		return err
	}

	sink, err := sinkCfg.BuildSink(ctx)
	if err != nil {
		return fmt.Errorf("error building %s: %w", sinkCfg.Name(), err)
	}
	defer func() {
		if err := sink.Close(context.WithoutCancel(ctx)); err != nil {
			l.Error("error closing sink", "sink", sink.Name(), "error", err.Error())
		}
	}()

	src, err := srcCfg.BuildSource(ctx)
	if err != nil {
		return fmt.Errorf("error building %s: %w", srcCfg.Name(), err)
	}

	ig, err := ingest.NewIngestor(cfg, sink)
	if err != nil {
		if rErr := src.Release(ctx); rErr != nil {
			l.Error("error releasing source", "error", rErr.Error())
		}
		return err
	}

	sum, err := ig.Ingest(ctx, src)
	if err != nil {
		return err
	}

	l.Info(
		"ingestion completed",
		"ingest-id", sum.IngestID,
		"records-processed", sum.RecordsProcessed,
		"lines-read", sum.LinesRead,
		"rejected", sum.Rejected,
		"batches", sum.Batches,
		"duration", sum.Duration.String(),
	)
	return nil
}

func buildSourceConfig() (records.SourceConfig, error) {
	if os.Getenv("SOURCE_TYPE") == string(sources.CloudSourceGCS) {
		envCfg, err := envutils.BuildCloudFileConfig()
		if err != nil {
			return nil, err
		}
		return &sources.CloudFileConfig{
			Provider: string(sources.CloudSourceGCS),
			Bucket:   envCfg.Bucket,
			Path:     filepath.Join(envCfg.Path, envCfg.Name),
		}, nil
	}

	filePath, err := envutils.BuildFilePath()
	if err != nil {
		return nil, err
	}
	return &sources.LocalFileConfig{
		Path: filepath.Join(filePath, envutils.BuildFileName()),
	}, nil
}

func buildSinkConfig() (records.SinkConfig, error) {
	switch sinkType := os.Getenv("SINK_TYPE"); sinkType {
	case "", SINK_MONGO:
		return envutils.BuildMongoSinkConfig(true), nil
	case SINK_JSON:
		out := os.Getenv("OUTPUT_FILE")
		if out == "" {
			out = filepath.Join(envutils.DEFAULT_DATA_DIR, "out", "records.ndjson")
		}
		return &sinks.LocalJSONSinkConfig{Path: out}, nil
	case SINK_NOOP:
		return &sinks.NoopSinkConfig{}, nil
	default:
		return nil, fmt.Errorf("unsupported SINK_TYPE %q", sinkType)
	}
}
