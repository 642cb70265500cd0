package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete obfuscator configuration (v1 schema).
type Config struct {
	Version    int              `json:"version" mapstructure:"version"`
	ProjectRoot string          `json:"projectRoot" mapstructure:"projectRoot"`

	Obfuscation ObfuscationConfig `json:"obfuscation" mapstructure:"obfuscation"`
	Rename      RenameConfig      `json:"rename" mapstructure:"rename"`
	Persistence PersistenceConfig `json:"persistence" mapstructure:"persistence"`
	ModelClient ModelClientConfig `json:"modelClient" mapstructure:"modelClient"`
	Logging     LoggingConfig     `json:"logging" mapstructure:"logging"`
}

// ObfuscationConfig controls which project directories and file types the
// orchestrator considers when building the rename map and rewriting sources.
type ObfuscationConfig struct {
	IncludeGlobs []string `json:"includeGlobs" mapstructure:"includeGlobs"`
	ExcludeDirs  []string `json:"excludeDirs" mapstructure:"excludeDirs"`
	// SrcLayout marks directories whose first path segment is stripped when
	// deriving a top-level module name (e.g. "src", "tests").
	SrcLayout []string `json:"srcLayout" mapstructure:"srcLayout"`
}

// RenameConfig controls token generation for the rename mapper.
type RenameConfig struct {
	// TokenAlphabet is the lowercase alphabet used to derive obfuscated
	// tokens. Defaults to the 26-letter Latin alphabet.
	TokenAlphabet string `json:"tokenAlphabet" mapstructure:"tokenAlphabet"`
}

// PersistenceConfig controls the embedded relational store used to record
// obfuscation runs and duplicate-detection results.
type PersistenceConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	DBPath  string `json:"dbPath" mapstructure:"dbPath"`
}

// ModelClientConfig describes the external model-inference service used by
// the duplicate-scanner's intent enrichment step.
type ModelClientConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Endpoint   string `json:"endpoint" mapstructure:"endpoint"`
	TimeoutMs  int    `json:"timeoutMs" mapstructure:"timeoutMs"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version:     1,
		ProjectRoot: ".",
		Obfuscation: ObfuscationConfig{
			IncludeGlobs: []string{"**/*.py"},
			ExcludeDirs:  []string{".git", "__pycache__", ".venv", "venv", "node_modules"},
			SrcLayout:    []string{"src", "tests"},
		},
		Rename: RenameConfig{
			TokenAlphabet: "abcdefghijklmnopqrstuvwxyz",
		},
		Persistence: PersistenceConfig{
			Enabled: true,
			DBPath:  ".obfuscator/obfuscator.db",
		},
		ModelClient: ModelClientConfig{
			Enabled:   false,
			Endpoint:  "",
			TimeoutMs: 30000,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from .obfuscator/config.json, falling back
// to defaults when no config file is present.
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()

	v.SetDefault("version", 1)
	v.SetDefault("projectRoot", ".")

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(repoRoot, ".obfuscator"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := *DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to .obfuscator/config.json.
func (c *Config) Save(repoRoot string) error {
	dir := filepath.Join(repoRoot, ".obfuscator")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	configPath := filepath.Join(dir, "config.json")

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}

// Validate checks if the configuration is structurally valid.
func (c *Config) Validate() error {
	if c.Version != 1 {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if len(c.Rename.TokenAlphabet) == 0 {
		return &ConfigError{Field: "rename.tokenAlphabet", Message: "must not be empty"}
	}
	return nil
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
