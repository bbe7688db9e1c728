package temporal

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/interceptor"

	"github.com/hankgalt/records-ingest/internal/domain/infra"
	"github.com/hankgalt/records-ingest/internal/infra/observability"
)

const (
	ERR_REQUIRED_PARAMS = "namespace & host port are required"
	ERR_TEMPORAL_CLIENT = "error creating temporal client"
)

var (
	ErrRequiredParams = errors.New(ERR_REQUIRED_PARAMS)
	ErrTemporalClient = errors.New(ERR_TEMPORAL_CLIENT)
)

// TemporalConfig locates the server & the task queue ingestion runs on.
type TemporalConfig struct {
	namespace    string
	host         string
	taskQueue    string
	clientName   string
	metricsAddr  string
	otelEndpoint string
}

func NewTemporalConfig(namespace, host, taskQueue, clientName, metricsAddr, otelEndpoint string) TemporalConfig {
	return TemporalConfig{
		namespace:    namespace,
		host:         host,
		taskQueue:    taskQueue,
		clientName:   clientName,
		metricsAddr:  metricsAddr,
		otelEndpoint: otelEndpoint,
	}
}

func (rc TemporalConfig) Namespace() string    { return rc.namespace }
func (rc TemporalConfig) Host() string         { return rc.host }
func (rc TemporalConfig) TaskQueue() string    { return rc.taskQueue }
func (rc TemporalConfig) ClientName() string   { return rc.clientName }
func (rc TemporalConfig) MetricsAddr() string  { return rc.metricsAddr }
func (rc TemporalConfig) OtelEndpoint() string { return rc.otelEndpoint }

type TemporalConnectionBuilder interface {
	Build(ctx context.Context) (client.Options, infra.ShutdownFunc, error)
	WithMetrics(clientName, metricsAddr, otelEndpoint string) TemporalConnectionBuilder
}

// temporalClientConnectionBuilder builds Temporal client options, with OTel
// metrics & tracing when a client name and metrics address are set.
type temporalClientConnectionBuilder struct {
	namespace    string
	hostPort     string
	clientName   string
	metricsAddr  string
	otelEndpoint string
}

func NewTemporalClientConnectionBuilder(namespace, hostPort string) temporalClientConnectionBuilder {
	return temporalClientConnectionBuilder{
		namespace: namespace,
		hostPort:  hostPort,
	}
}

func (b temporalClientConnectionBuilder) WithMetrics(clientName, metricsAddr, otelEndpoint string) TemporalConnectionBuilder {
	b.clientName = clientName
	b.metricsAddr = metricsAddr
	b.otelEndpoint = otelEndpoint
	return b
}

func (b temporalClientConnectionBuilder) Build(ctx context.Context) (client.Options, infra.ShutdownFunc, error) {
	if b.namespace == "" || b.hostPort == "" {
		return client.Options{}, nil, ErrRequiredParams
	}

	opts := client.Options{
		HostPort:  b.hostPort,
		Namespace: b.namespace,
		Identity:  b.clientName,
	}

	if b.clientName == "" || b.metricsAddr == "" {
		return opts, nil, nil
	}

	shutdown, err := observability.Init(ctx, observability.InitOptions{
		ServiceName:  b.clientName,
		MetricsAddr:  b.metricsAddr,
		OTLPEndpoint: b.otelEndpoint, // "" skips traces
	})
	if err != nil {
		return opts, nil, fmt.Errorf("error initializing observability: %w", err)
	}

	tracingInt, err := opentelemetry.NewTracingInterceptor(opentelemetry.TracerOptions{})
	if err != nil {
		return opts, shutdown, fmt.Errorf("error creating tracing interceptor: %w", err)
	}
	opts.Interceptors = []interceptor.ClientInterceptor{tracingInt}
	opts.MetricsHandler = opentelemetry.NewMetricsHandler(opentelemetry.MetricsHandlerOptions{})

	return opts, shutdown, nil
}
