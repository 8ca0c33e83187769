package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models clowder.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Breeds struct {
		CatalogURL     string `yaml:"catalog_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"breeds"`
	Listing struct {
		DefaultLimit int `yaml:"default_limit"`
	} `yaml:"listing"`
}

const (
	defaultAddr       = "127.0.0.1:8090"
	defaultBasePath   = "/v1"
	defaultCatalogURL = "https://api.thecatapi.com/v1/breeds"
	defaultLimit      = 10
)

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = defaultAddr
	cfg.Server.BasePath = defaultBasePath
	cfg.Breeds.CatalogURL = defaultCatalogURL
	cfg.Listing.DefaultLimit = defaultLimit
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Breeds.CatalogURL == "" {
		return fmt.Errorf("config.breeds.catalog_url is required")
	}
	if c.Breeds.TimeoutSeconds < 0 {
		return fmt.Errorf("config.breeds.timeout_seconds must be non-negative")
	}
	if c.Listing.DefaultLimit <= 0 {
		return fmt.Errorf("config.listing.default_limit must be positive")
	}
	return nil
}

// BreedTimeout returns the configured catalog fetch timeout.
// Zero means the transport default (no explicit timeout).
func (c *Config) BreedTimeout() time.Duration {
	return time.Duration(c.Breeds.TimeoutSeconds) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "clowder.yml")
}

// Load reads config from the workspace, falling back to defaults when
// clowder.yml does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Sections
// left out of the file keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return fmt.Sprintf(`server:
  addr: %s
  base_path: %s

breeds:
  catalog_url: %s
  timeout_seconds: 0

listing:
  default_limit: %d
`, defaultAddr, defaultBasePath, defaultCatalogURL, defaultLimit)
}
