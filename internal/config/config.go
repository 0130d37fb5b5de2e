// Package config loads smartlog's engine-relevant settings: where the
// persistent DAG index and event log live, which branch is "main", and how
// verbosely to log. Loaded with viper the same way the rest of this project
// loads configuration, layering environment variables over a YAML file over
// defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all engine configuration settings.
type Config struct {
	// DagDir is a DAG index directory setting. The CLI does not read it: the
	// index is opened under the directory the repository reports via
	// GetDagDir.
	DagDir string `yaml:"dag_dir" mapstructure:"dag_dir"`
	// EventLogPath is the SQLite database file backing the event replayer.
	EventLogPath string `yaml:"event_log_path" mapstructure:"event_log_path"`
	// MainBranchName names the branch classified as "main" for the
	// public/draft split.
	MainBranchName string `yaml:"main_branch_name" mapstructure:"main_branch_name"`
	// LogLevel is one of "debug", "info", "warn", "error". The CLI does not
	// read it; its log level is set by the --verbose flag.
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// LogJSON selects JSON-formatted log output over human-readable text.
	LogJSON bool `yaml:"log_json" mapstructure:"log_json"`
}

// Default returns default configuration, rooted under the user's home
// directory.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		DagDir:         filepath.Join(homeDir, ".smartlog", "dag"),
		EventLogPath:   filepath.Join(homeDir, ".smartlog", "events.db"),
		MainBranchName: "main",
		LogLevel:       "info",
		LogJSON:        false,
	}
}

// Load loads configuration from path, falling back to standard search
// locations when path is empty, layered over defaults and environment
// variables.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("dag_dir", cfg.DagDir)
	v.SetDefault("event_log_path", cfg.EventLogPath)
	v.SetDefault("main_branch_name", cfg.MainBranchName)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_json", cfg.LogJSON)

	v.SetEnvPrefix("SMARTLOG")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".smartlog")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".smartlog"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.DagDir = expandPath(cfg.DagDir)
	cfg.EventLogPath = expandPath(cfg.EventLogPath)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence; a missing file is
// not an error.
func loadEnvFiles() {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}
	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".smartlog", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, path[1:])
}

// Save writes configuration to path as YAML, creating parent directories
// as needed.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("dag_dir", c.DagDir)
	v.Set("event_log_path", c.EventLogPath)
	v.Set("main_branch_name", c.MainBranchName)
	v.Set("log_level", c.LogLevel)
	v.Set("log_json", c.LogJSON)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
