package fileingest

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"

	"github.com/hankgalt/records-ingest/internal/usecase/ingest/sinks"
	"github.com/hankgalt/records-ingest/internal/usecase/ingest/sources"
)

// Registry is satisfied by a temporal worker and by the workflow test environment.
type Registry interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Register registers every ingest workflow & activity pair under its alias.
func Register(r Registry) {
	r.RegisterWorkflowWithOptions(
		IngestFileWorkflow[*sources.LocalFileConfig, *sinks.MongoSinkConfig],
		workflow.RegisterOptions{Name: IngestLocalFileMongoWorkflowAlias},
	)
	r.RegisterActivityWithOptions(
		IngestFileActivity[*sources.LocalFileConfig, *sinks.MongoSinkConfig],
		activity.RegisterOptions{Name: IngestLocalFileMongoActivityAlias},
	)

	r.RegisterWorkflowWithOptions(
		IngestFileWorkflow[*sources.CloudFileConfig, *sinks.MongoSinkConfig],
		workflow.RegisterOptions{Name: IngestCloudFileMongoWorkflowAlias},
	)
	r.RegisterActivityWithOptions(
		IngestFileActivity[*sources.CloudFileConfig, *sinks.MongoSinkConfig],
		activity.RegisterOptions{Name: IngestCloudFileMongoActivityAlias},
	)

	r.RegisterWorkflowWithOptions(
		IngestFileWorkflow[*sources.LocalFileConfig, *sinks.NoopSinkConfig],
		workflow.RegisterOptions{Name: IngestLocalFileNoopWorkflowAlias},
	)
	r.RegisterActivityWithOptions(
		IngestFileActivity[*sources.LocalFileConfig, *sinks.NoopSinkConfig],
		activity.RegisterOptions{Name: IngestLocalFileNoopActivityAlias},
	)

	r.RegisterWorkflowWithOptions(
		IngestFileWorkflow[*sources.LocalFileConfig, *sinks.LocalJSONSinkConfig],
		workflow.RegisterOptions{Name: IngestLocalFileJSONWorkflowAlias},
	)
	r.RegisterActivityWithOptions(
		IngestFileActivity[*sources.LocalFileConfig, *sinks.LocalJSONSinkConfig],
		activity.RegisterOptions{Name: IngestLocalFileJSONActivityAlias},
	)
}
