package fileingest

import (
	"os"

	"github.com/google/uuid"

	"github.com/hankgalt/records-ingest/internal/domain/records"
	"github.com/hankgalt/records-ingest/internal/usecase/ingest/sinks"
	"github.com/hankgalt/records-ingest/internal/usecase/ingest/sources"
)

const ApplicationName = "ingestFileTaskGroup"

// WorkerIdentity names a worker process by its hostname, or a random id when
// the hostname is unavailable, suffixed with the task queue it polls.
func WorkerIdentity(taskQueue string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = uuid.NewString()
	}
	return host + "_" + taskQueue
}

const (
	IngestLocalFileMongoWorkflowAlias string = "ingest-" + sources.LocalFileSource + "-" + sinks.MongoSink + "-workflow-alias"
	IngestCloudFileMongoWorkflowAlias string = "ingest-" + sources.CloudFileSource + "-" + sinks.MongoSink + "-workflow-alias"
	IngestLocalFileNoopWorkflowAlias  string = "ingest-" + sources.LocalFileSource + "-" + sinks.NoopSink + "-workflow-alias"
	IngestLocalFileJSONWorkflowAlias  string = "ingest-" + sources.LocalFileSource + "-" + sinks.LocalJSONSink + "-workflow-alias"

	IngestLocalFileMongoActivityAlias string = "ingest-" + sources.LocalFileSource + "-" + sinks.MongoSink + "-activity-alias"
	IngestCloudFileMongoActivityAlias string = "ingest-" + sources.CloudFileSource + "-" + sinks.MongoSink + "-activity-alias"
	IngestLocalFileNoopActivityAlias  string = "ingest-" + sources.LocalFileSource + "-" + sinks.NoopSink + "-activity-alias"
	IngestLocalFileJSONActivityAlias  string = "ingest-" + sources.LocalFileSource + "-" + sinks.LocalJSONSink + "-activity-alias"
)

const (
	ERR_MISSING_JOB_ID        = "job id is required"
	ERROR_INVALID_CONFIG_TYPE = "invalid-config"
)

// IngestFileRequest asks a worker to ingest one file source into one sink.
type IngestFileRequest[S records.SourceConfig, D records.SinkConfig] struct {
	JobID  string         `json:"jobId"`
	Source S              `json:"source"`
	Sink   D              `json:"sink"`
	Config records.Config `json:"config"`
}

type LocalFileMongoRequest = IngestFileRequest[*sources.LocalFileConfig, *sinks.MongoSinkConfig]
type CloudFileMongoRequest = IngestFileRequest[*sources.CloudFileConfig, *sinks.MongoSinkConfig]
type LocalFileNoopRequest = IngestFileRequest[*sources.LocalFileConfig, *sinks.NoopSinkConfig]
type LocalFileJSONRequest = IngestFileRequest[*sources.LocalFileConfig, *sinks.LocalJSONSinkConfig]

// Progress is the activity heartbeat payload.
type Progress struct {
	IngestID         string `json:"ingestId"`
	Batches          uint   `json:"batches"`
	RecordsProcessed int64  `json:"recordsProcessed"`
}
