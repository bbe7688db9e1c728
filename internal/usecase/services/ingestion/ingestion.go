package ingestion

import (
	"context"
	"errors"

	"github.com/comfforts/logger"

	"github.com/hankgalt/records-ingest/internal/domain/infra"
	"github.com/hankgalt/records-ingest/internal/domain/records"
	"github.com/hankgalt/records-ingest/internal/infra/mongostore"
	"github.com/hankgalt/records-ingest/internal/repo/people"
	"github.com/hankgalt/records-ingest/internal/usecase/ingest"
	"github.com/hankgalt/records-ingest/internal/usecase/ingest/sinks"
)

const ERR_NIL_REPO = "ingestion service: nil records repo"

var ErrNilRepo = errors.New(ERR_NIL_REPO)

type IngestionService interface {
	ProcessFile(ctx context.Context, src records.FileSource) (*records.Summary, error)
	GetLatestRecords(ctx context.Context, limit int) ([]records.Record, error)
	Config() records.Config
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type ingestionServiceConfig struct {
	MongoConfig  infra.StoreConfig
	StoreOptions []mongostore.StoreOption
	Collection   string
	Ingest       records.Config
	Options      []ingest.Option
}

func NewIngestionServiceConfig(
	mongoCfg infra.StoreConfig,
	collection string,
	ingestCfg records.Config,
	opts ...ingest.Option,
) ingestionServiceConfig {
	return ingestionServiceConfig{
		MongoConfig: mongoCfg,
		Collection:  collection,
		Ingest:      ingestCfg,
		Options:     opts,
	}
}

// WithStoreOptions returns a copy of cfg with MongoDB client options applied.
func (cfg ingestionServiceConfig) WithStoreOptions(opts ...mongostore.StoreOption) ingestionServiceConfig {
	cfg.StoreOptions = append(cfg.StoreOptions[:len(cfg.StoreOptions):len(cfg.StoreOptions)], opts...)
	return cfg
}

type ingestionService struct {
	repo     people.PeopleRepo
	ingestor *ingest.Ingestor
}

// NewIngestionService connects to MongoDB and wires the records repo into the ingestion pipeline.
func NewIngestionService(ctx context.Context, cfg ingestionServiceConfig) (*ingestionService, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	// Initialize MongoDB store for records repository
	ms, err := mongostore.NewMongoStore(ctx, cfg.MongoConfig, cfg.StoreOptions...)
	if err != nil {
		l.Error("error getting Mongo store", "error", err.Error())
		return nil, err
	}

	// Initialize records repository
	pr, err := people.NewPeopleRepo(ctx, ms, cfg.Collection)
	if err != nil {
		l.Error("error creating records repository", "error", err.Error())

		// Close the Mongo store before returning
		if dErr := ms.Close(ctx); dErr != nil {
			l.Error("error closing Mongo store", "error", dErr.Error())
			err = errors.Join(err, dErr)
		}

		return nil, err
	}

	svc, err := NewIngestionServiceWithRepo(pr, cfg.Ingest, cfg.Options...)
	if err != nil {
		l.Error("error creating ingestion pipeline", "error", err.Error())
		return nil, errors.Join(err, pr.Close(ctx))
	}
	return svc, nil
}

// NewIngestionServiceWithRepo builds the service over an existing repo. The service owns the repo.
func NewIngestionServiceWithRepo(repo people.PeopleRepo, cfg records.Config, opts ...ingest.Option) (*ingestionService, error) {
	if repo == nil {
		return nil, ErrNilRepo
	}

	sink, err := sinks.NewMongoSink(repo)
	if err != nil {
		return nil, err
	}

	ig, err := ingest.NewIngestor(cfg, sink, opts...)
	if err != nil {
		return nil, err
	}

	return &ingestionService{
		repo:     repo,
		ingestor: ig,
	}, nil
}

// ProcessFile ingests src, taking ownership of it. src is released before return.
func (s *ingestionService) ProcessFile(ctx context.Context, src records.FileSource) (*records.Summary, error) {
	return s.ingestor.Ingest(ctx, src)
}

// GetLatestRecords returns the most recently persisted records, newest first.
func (s *ingestionService) GetLatestRecords(ctx context.Context, limit int) ([]records.Record, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	recs, err := s.repo.GetLatestRecords(ctx, limit)
	if err != nil {
		l.Error("error getting latest records", "limit", limit, "error", err.Error())
		return nil, err
	}
	return recs, nil
}

// Config returns the ingestion configuration in effect.
func (s *ingestionService) Config() records.Config {
	return s.ingestor.Config()
}

// Ping reports whether the records store is reachable.
func (s *ingestionService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *ingestionService) Close(ctx context.Context) error {
	return s.repo.Close(ctx)
}
