package backend

import (
	"context"
	"fmt"

	"hdbdash/internal/log"
	"hdbdash/internal/observability"
	"hdbdash/internal/source/datagov"
	"hdbdash/internal/source/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger  *log.Logger
	metrics *observability.Metrics
}

// NewFactory creates a new backend factory. metrics may be nil.
func NewFactory(logger *log.Logger, metrics *observability.Metrics) Factory {
	if logger == nil {
		logger = log.Default(log.ComponentBackend)
	}
	return &DefaultFactory{
		logger:  logger.WithComponent(log.ComponentBackend),
		metrics: metrics,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case DatagovBackend:
		return f.createDatagovBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createDatagovBackend(config Config) (*BackendResult, error) {
	opts := []datagov.Option{
		datagov.WithBaseURL(config.BaseURL),
		datagov.WithDatasetID(config.DatasetID),
		datagov.WithDefaultLimit(config.FetchLimit),
		datagov.WithLogger(f.logger),
		datagov.WithMetrics(f.metrics),
	}
	if config.Timeout > 0 {
		opts = append(opts, datagov.WithTimeout(config.Timeout))
	}
	client := datagov.New(opts...)

	f.logger.Info("Initialized datagov backend",
		log.FieldUpstreamURL, config.BaseURL,
		"dataset_id", config.DatasetID,
		log.FieldLimit, config.FetchLimit,
		"timeout", config.Timeout.String())

	return &BackendResult{
		Fetcher: client,
		Cleanup: nil, // No cleanup needed for datagov backend
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data" // Default directory
	}

	store, err := memory.NewFromFiles(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load fixtures: %w", err)
	}

	f.logger.Info("Initialized memory backend",
		"data_directory", dataDir,
		log.FieldRecords, store.Len())

	return &BackendResult{
		Fetcher: store,
		Cleanup: nil, // No cleanup needed for memory backend
	}, nil
}
