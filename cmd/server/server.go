package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/comfforts/comff-config"
	"github.com/comfforts/logger"

	httphandler "github.com/hankgalt/records-ingest/internal/delivery/http_handler"
	"github.com/hankgalt/records-ingest/internal/infra/observability"
	"github.com/hankgalt/records-ingest/internal/usecase/ingest"
	"github.com/hankgalt/records-ingest/internal/usecase/services/ingestion"
	envutils "github.com/hankgalt/records-ingest/pkg/utils/environment"
)

const SERVICE_NAME = "records-ingest-server"

func main() {
	// Initialize logger
	l := logger.GetSlogMultiLogger("data")

	srvCfg := envutils.BuildServerConfig()

	ingestCfg, err := envutils.BuildIngestConfig()
	if err != nil {
		l.Error("error building ingest config", "error", err.Error())
		panic(err)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	startCtx = logger.WithLogger(startCtx, l)

	// metrics are served by the api router on /metrics
	_, otelEndpoint := envutils.BuildMetricsConfig()
	obsShutdown, err := observability.Init(startCtx, observability.InitOptions{
		ServiceName:       SERVICE_NAME,
		OTLPEndpoint:      otelEndpoint,
		SkipMetricsServer: true,
	})
	if err != nil {
		l.Error("error initializing observability", "error", err.Error())
		panic(err)
	}

	metrics, err := observability.NewIngestMetrics(nil)
	if err != nil {
		l.Error("error building ingest metrics", "error", err.Error())
		panic(err)
	}

	// Build MongoDB backed ingestion service, using env vars
	l.Info("setting up ingestion service", "batch-size", ingestCfg.BatchSize, "max-file-size", ingestCfg.MaxFileSizeBytes)
	svcCfg := ingestion.NewIngestionServiceConfig(
		envutils.BuildMongoStoreConfig(true),
		envutils.BuildMongoCollection(),
		ingestCfg,
		ingest.WithObserver(metrics),
	).WithStoreOptions(envutils.BuildMongoStoreOptions(SERVICE_NAME)...)
	svc, err := ingestion.NewIngestionService(startCtx, svcCfg)
	if err != nil {
		l.Error("error initializing ingestion service instance", "error", err.Error())
		panic(err)
	}

	handlerCfg := &httphandler.Config{
		IngestionService: svc,
		UploadDir:        srvCfg.UploadDir,
		AccessLog:        os.Stdout,
		Logger:           l,
	}

	var server *http.Server
	if srvCfg.TLS {
		l.Info("setting up server TLS config")
		tlsCfg, err := config.SetupTLSConfig(&config.ConfigOpts{
			Target: config.SERVER,
			Addr:   srvCfg.Addr,
		})
		if err != nil {
			l.Error("error setting up server TLS config", "error", err.Error())
			panic(err)
		}
		server, err = httphandler.NewHTTPServer(handlerCfg, srvCfg.Addr, tlsCfg)
		if err != nil {
			l.Error("error initializing http server", "error", err.Error())
			panic(err)
		}
	} else {
		server, err = httphandler.NewHTTPServer(handlerCfg, srvCfg.Addr, nil)
		if err != nil {
			l.Error("error initializing http server", "error", err.Error())
			panic(err)
		}
	}

	go func() {
		l.Info("ingest server will start listening for requests", "address", srvCfg.Addr, "tls", srvCfg.TLS)
		var err error
		if server.TLSConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("ingest server failed to serve", "error", err.Error())
		}
	}()

	// Wait for an interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("received stop signal, gracefully stopping ingest server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	shutdownCtx = logger.WithLogger(shutdownCtx, l)

	// in-flight uploads finish & release their files before the store closes
	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error("error shutting down http server", "error", err.Error())
	}
	if err := svc.Close(shutdownCtx); err != nil {
		l.Error("error closing ingestion service", "error", err.Error())
	}
	if err := obsShutdown(shutdownCtx); err != nil {
		l.Error("error shutting down observability", "error", err.Error())
	}
	l.Info("ingest server stopped")
}
