package backend

import (
	"fmt"

	"hdbdash/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		BaseURL:    appConfig.ResaleAPIBaseURL,
		DatasetID:  appConfig.ResaleDatasetID,
		FetchLimit: appConfig.ResaleFetchLimit,
		Timeout:    appConfig.ResaleFetchTimeout,

		DataDirectory: appConfig.FixturesDir,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case DatagovBackend:
		if c.BaseURL == "" {
			return fmt.Errorf("base URL is required for datagov backend")
		}
		if c.DatasetID == "" {
			return fmt.Errorf("dataset ID is required for datagov backend")
		}

	case MemoryBackend:
		// DataDirectory defaults to "data" if empty
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{DatagovBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
