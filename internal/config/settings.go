package config

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/cloudhand/cloudhand/internal/errors"
)

// Settings are the project-level options from ch.yaml
type Settings struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	Project  string `mapstructure:"project" yaml:"project"`
}

// LoadSettings reads ch.yaml from the project root. Environment variables
// prefixed CLOUDHAND_ override file values. A missing file yields defaults
// rather than an error; commands that need a provider check for it.
func LoadSettings(root string) (*Settings, error) {
	v := viper.New()
	v.SetConfigFile(NewPaths(root).SettingsFile())
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CLOUDHAND")
	v.AutomaticEnv()
	v.SetDefault("provider", "")
	v.SetDefault("project", "default")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.ErrorTypeConfiguration, "failed to read ch.yaml")
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfiguration, "failed to parse ch.yaml")
	}
	if s.Project == "" {
		s.Project = "default"
	}
	return &s, nil
}

// secretsFile is the shape of cloudhand/secrets.json
type secretsFile struct {
	Providers map[string]struct {
		Token string `json:"token"`
	} `json:"providers"`
}

// ResolveProviderToken finds the API token for a provider: the project's
// secrets.json first, then the provider's conventional environment variable.
// An empty return means no credentials are configured.
func ResolveProviderToken(root, provider string) string {
	data, err := os.ReadFile(NewPaths(root).SecretsFile())
	if err == nil {
		var secrets secretsFile
		if json.Unmarshal(data, &secrets) == nil {
			if cfg, ok := secrets.Providers[provider]; ok && cfg.Token != "" {
				return cfg.Token
			}
		}
	}
	if strings.EqualFold(provider, "hetzner") {
		return os.Getenv("HCLOUD_TOKEN")
	}
	return ""
}
