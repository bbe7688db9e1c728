package observability

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/comfforts/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const (
	DEFAULT_METRICS_ADDR   = ":9464"
	DEFAULT_METRICS_HANDLE = "/metrics"
)

type InitOptions struct {
	ServiceName   string
	MetricsAddr   string // e.g. ":9464", the Prometheus exporter default
	MetricsHandle string // defaults to /metrics
	OTLPEndpoint  string // e.g. "otel-collector:4317", empty skips the trace exporter
	// SkipMetricsServer leaves /metrics to a server the caller already runs.
	SkipMetricsServer bool
}

// Init installs the global meter provider backed by the Prometheus exporter and,
// when an OTLP endpoint is set, the global tracer provider.
func Init(ctx context.Context, opt InitOptions) (shutdown func(context.Context) error, err error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	host, _ := os.Hostname()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(opt.ServiceName),
			semconv.ServiceInstanceIDKey.String(host),
		),
	)
	if err != nil {
		l.Error("error building otel resource", "error", err.Error())
		res = resource.Default()
	}

	// metrics, scraped from /metrics
	promExp, err := prometheus.New()
	if err != nil {
		l.Error("failed to create Prometheus exporter", "error", err.Error())
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExp),
		sdkmetric.WithResource(res),
		sdkmetric.WithView(IngestViews()...),
	)
	otel.SetMeterProvider(mp)

	var metricsSrv *http.Server
	if !opt.SkipMetricsServer {
		if opt.MetricsAddr == "" {
			opt.MetricsAddr = DEFAULT_METRICS_ADDR
		}
		if opt.MetricsHandle == "" {
			opt.MetricsHandle = DEFAULT_METRICS_HANDLE
		}

		mux := http.NewServeMux()
		mux.Handle(opt.MetricsHandle, promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              opt.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			l.Info("serving Prometheus metrics", "address", opt.MetricsAddr, "handle", opt.MetricsHandle)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				l.Error("metrics server error", "error", err.Error())
			}
		}()
	}

	// traces, OTLP via collector or Jaeger
	var tp *sdktrace.TracerProvider
	if opt.OTLPEndpoint != "" {
		exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(opt.OTLPEndpoint), otlptracegrpc.WithInsecure())
		if err != nil {
			l.Error("failed to create OTLP trace exporter", "error", err.Error())
			return nil, errors.Join(err, mp.Shutdown(ctx))
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.TraceContext{})
	}

	return func(ctx context.Context) error {
		var errs []error
		if tp != nil {
			errs = append(errs, tp.Shutdown(ctx))
		}
		if metricsSrv != nil {
			errs = append(errs, metricsSrv.Shutdown(ctx))
		}
		errs = append(errs, mp.Shutdown(ctx))
		return errors.Join(errs...)
	}, nil
}
