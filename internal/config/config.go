// Package config loads spree settings from defaults, an optional YAML file
// and SPREE_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/spree/internal/logging"
	"github.com/psantana5/spree/internal/tracing"
)

// EnvPrefix prefixes environment overrides: medium.path is SPREE_MEDIUM_PATH.
const EnvPrefix = "SPREE"

// Config is the effective spree configuration.
type Config struct {
	Medium      MediumConfig  `mapstructure:"medium" yaml:"medium"`
	Executables []string      `mapstructure:"executables" yaml:"executables"`
	Log         LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics     MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Tracing     TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

type MediumConfig struct {
	Path    string `mapstructure:"path" yaml:"path"`
	TempDir string `mapstructure:"temp_dir" yaml:"temp_dir"`
}

type LogConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	JSON    bool   `mapstructure:"json" yaml:"json"`
	File    string `mapstructure:"file" yaml:"file"`
	Journal bool   `mapstructure:"journal" yaml:"journal"`
}

type MetricsConfig struct {
	Listen   string `mapstructure:"listen" yaml:"listen"`
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Service  string `mapstructure:"service" yaml:"service"`
}

// SetDefaults registers every key with its default, which also makes each
// key reachable from the environment.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("medium.path", "")
	v.SetDefault("medium.temp_dir", "")
	v.SetDefault("executables", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.journal", false)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service", "spree")
}

// Load reads the configuration into v and decodes it. An empty file searches
// $HOME/.spree and the working directory for spree.yaml; a missing file is
// only an error when named explicitly.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file == "" {
		file = findConfig()
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// LogOptions converts the log section for logging.New.
func (c *Config) LogOptions() logging.Options {
	return logging.Options{
		Level:   logging.ParseLevel(c.Log.Level),
		JSON:    c.Log.JSON,
		File:    c.Log.File,
		Journal: c.Log.Journal,
	}
}

// TracerConfig converts the tracing section for tracing.InitTracer.
func (c *Config) TracerConfig(version string) tracing.Config {
	return tracing.Config{
		ServiceName:    c.Tracing.Service,
		ServiceVersion: version,
		Endpoint:       c.Tracing.Endpoint,
	}
}

// ConfigNames are the file names searched for when no file is given. Only
// names with a YAML extension match: the working directory often holds the
// spree binary itself.
var ConfigNames = []string{"spree.yaml", "spree.yml"}

// findConfig returns the first config file in $HOME/.spree or the working
// directory, or "" if there is none.
func findConfig() string {
	var dirs []string
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".spree"))
	}
	dirs = append(dirs, ".")

	for _, dir := range dirs {
		for _, name := range ConfigNames {
			path := filepath.Join(dir, name)
			if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
				return path
			}
		}
	}
	return ""
}

// YAML renders c as YAML.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
