package ocean

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"c2d-service/internal/apperrors"
	"c2d-service/internal/config"
)

// Config holds the settings needed to address a compute-to-data provider
// node. Values can come from a YAML file, environment variables, or both;
// environment variables win.
type Config struct {
	NodeURL         string        `yaml:"nodeUrl"`         // provider node base URL
	ConsumerAddress string        `yaml:"consumerAddress"` // address jobs are submitted under
	DatasetDID      string        `yaml:"datasetDid"`      // published dataset identifier
	AlgorithmDID    string        `yaml:"algorithmDid"`    // published algorithm identifier
	EnvironmentID   string        `yaml:"environmentId"`   // compute environment; discovered when empty
	HTTPTimeout     time.Duration `yaml:"httpTimeout"`     // per-request timeout (default: 15s)
}

// LoadConfigFromEnv loads provider configuration.
// If PROVIDER_CONFIG_FILE is set, that YAML file is read first and
// individual environment variables override its values.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config

	if path := config.GetEnv("PROVIDER_CONFIG_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read provider config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse provider config file: %w", err)
		}
	}

	cfg.NodeURL = config.GetEnv("PROVIDER_NODE_URL", cfg.NodeURL)
	cfg.ConsumerAddress = config.GetEnv("PROVIDER_CONSUMER_ADDRESS", cfg.ConsumerAddress)
	cfg.DatasetDID = config.GetEnv("PROVIDER_DATASET_DID", cfg.DatasetDID)
	cfg.AlgorithmDID = config.GetEnv("PROVIDER_ALGORITHM_DID", cfg.AlgorithmDID)
	cfg.EnvironmentID = config.GetEnv("PROVIDER_ENVIRONMENT_ID", cfg.EnvironmentID)
	cfg.HTTPTimeout = config.GetDurationEnv("PROVIDER_HTTP_TIMEOUT", cfg.HTTPTimeout)

	return cfg.withDefaults(), nil
}

// withDefaults fills in zero values with defaults.
func (c Config) withDefaults() Config {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
	return c
}

// Validate checks that the required fields are present.
func (c Config) Validate() error {
	if c.NodeURL == "" {
		return apperrors.Validation("nodeUrl", "provider node URL is required")
	}
	if c.ConsumerAddress == "" {
		return apperrors.Validation("consumerAddress", "consumer address is required")
	}
	if c.DatasetDID == "" {
		return apperrors.Validation("datasetDid", "dataset DID is required")
	}
	if c.AlgorithmDID == "" {
		return apperrors.Validation("algorithmDid", "algorithm DID is required")
	}
	return nil
}
