package backend

import (
	"context"
	"time"

	"hdbdash/internal/source"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the fetcher instance and optional cleanup function
type BackendResult struct {
	Fetcher source.Fetcher
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a fetcher based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// Datastore API specific
	BaseURL    string
	DatasetID  string
	FetchLimit int
	Timeout    time.Duration

	// Memory backend specific
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	DatagovBackend BackendType = "datagov"
	MemoryBackend  BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case DatagovBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
