package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/comfforts/logger"

	"github.com/hankgalt/records-ingest/internal/infra/observability"
	"github.com/hankgalt/records-ingest/internal/infra/temporal"
	"github.com/hankgalt/records-ingest/internal/usecase/workflows/fileingest"
	envutils "github.com/hankgalt/records-ingest/pkg/utils/environment"
)

const DEFAULT_WORKER_HOST = "ingest-worker"

func main() {
	fmt.Println("Starting ingest worker - setting up logger instance")
	l := logger.GetSlogMultiLogger("data")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithLogger(ctx, l)

	// build temporal client config from environment variables
	tCfg := envutils.BuildTemporalConfig(DEFAULT_WORKER_HOST)
	host := fileingest.WorkerIdentity(tCfg.TaskQueue())

	// build temporal client connection options, with otel metrics & tracing
	connBuilder := temporal.NewTemporalClientConnectionBuilder(
		tCfg.Namespace(),
		tCfg.Host(),
	).WithMetrics(
		tCfg.ClientName(),
		tCfg.MetricsAddr(),
		tCfg.OtelEndpoint(),
	)

	startupCtx, startupCancel := context.WithTimeout(ctx, 5*time.Second)
	defer startupCancel()

	clientOpts, shutdown, err := connBuilder.Build(startupCtx)
	defer func() {
		if shutdown != nil {
			l.Info("closing otel client", "host", host)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				l.Error("error shutting down OTel", "error", err.Error())
			} else {
				l.Info("OTel shutdown successfully")
			}
		}
	}()
	if err != nil {
		l.Error("error building temporal client options", "error", err.Error())
		panic(fmt.Errorf("error building temporal client options: %w", err))
	}

	// ingestion metrics on the global meter provider
	metrics, err := observability.NewIngestMetrics(nil)
	if err != nil {
		l.Error("error building ingest metrics", "error", err.Error())
		panic(err)
	}

	tClient, err := client.Dial(clientOpts)
	if err != nil {
		l.Error("error connecting temporal server", "error", err.Error())
		panic(err)
	}
	defer func() {
		l.Info("closing temporal client", "host", host)
		tClient.Close()
	}()

	// client tracing interceptor also intercepts workers built from the client
	workerOptions := worker.Options{
		BackgroundActivityContext: fileingest.WithObservers(ctx, metrics),
		EnableLoggingInReplay:     true,
		Identity:                  host,
	}
	w := worker.New(tClient, tCfg.TaskQueue(), workerOptions)

	fileingest.Register(w)

	if err := w.Start(); err != nil {
		l.Error("error starting temporal ingest worker", "error", err.Error())
		panic(err)
	}
	l.Info(
		"Ingest worker started, will wait for interrupt signal to gracefully shutdown the worker",
		"host", host,
		"task-queue", tCfg.TaskQueue(),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("stopping temporal worker", "host", host)
	w.Stop()
	l.Info("ingest worker exiting", "host", host)
}
