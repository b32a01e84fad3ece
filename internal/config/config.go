// Package config centralizes loader configuration. Every tunable is a flag
// whose default is seeded from a DATALOADER_* environment variable, so
// `--help` lists all knobs. An optional YAML file fills in whatever neither
// the environment nor an explicit flag provided.
//
// Precedence, lowest first: built-in default, YAML file, environment, flag.
//
// For tests, LoadFromArgs stays hermetic:
//
//	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
//	getenv := func(k string) string { return testEnv[k] }
//	cfg, err := config.LoadFromArgs(fs, getenv, []string{"--baseDir=/data"})
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "DATALOADER_"

// Config holds process configuration. It is a plain value after loading.
type Config struct {
	// Database target.
	Connection string `yaml:"connection"`
	Driver     string `yaml:"driver"`

	// Input layout.
	BaseDir       string `yaml:"base_dir"`
	UpdateableDir string `yaml:"updateable_dir"`
	Extension     string `yaml:"extension"`
	Comma         string `yaml:"comma"`

	// RejectsDir receives CSV copies of failed records; empty disables.
	RejectsDir string `yaml:"rejects_dir"`

	// Logging.
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Metrics.
	MetricsBackend string `yaml:"metrics_backend"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	DatadogAddr    string `yaml:"datadog_addr"`
	Job            string `yaml:"job"`

	// ConfigFile is the YAML file that was applied, if any.
	ConfigFile string `yaml:"-"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Driver:         "mssql",
		UpdateableDir:  "Updateable",
		Extension:      ".csv",
		Comma:          ",",
		LogLevel:       "info",
		LogFormat:      "console",
		MetricsBackend: "none",
		DatadogAddr:    "127.0.0.1:8125",
		Job:            "dataloader",
	}
}

// CommaRune returns the delimiter as a rune, or ',' when unset or invalid.
func (c Config) CommaRune() rune {
	r, size := utf8.DecodeRuneInString(c.Comma)
	if r == utf8.RuneError || size != len(c.Comma) {
		return ','
	}
	return r
}

type binding struct {
	name, env, usage string
	field            func(c *Config) *string
}

var bindings = []binding{
	{"connection", "CONNECTION", "Database connection string (required)", func(c *Config) *string { return &c.Connection }},
	{"baseDir", "BASE_DIR", "Directory holding one subdirectory per load group (required)", func(c *Config) *string { return &c.BaseDir }},
	{"driver", "DRIVER", "Database backend: mssql or postgres", func(c *Config) *string { return &c.Driver }},
	{"updateable-dir", "UPDATEABLE_DIR", "Subdirectory name whose files may update existing rows", func(c *Config) *string { return &c.UpdateableDir }},
	{"extension", "EXTENSION", "Extension of input files", func(c *Config) *string { return &c.Extension }},
	{"comma", "COMMA", "Field delimiter (single character)", func(c *Config) *string { return &c.Comma }},
	{"rejects-dir", "REJECTS_DIR", "Directory for rejected-record files (disabled when empty)", func(c *Config) *string { return &c.RejectsDir }},
	{"log-level", "LOG_LEVEL", "Log level: debug, info, warn, error", func(c *Config) *string { return &c.LogLevel }},
	{"log-format", "LOG_FORMAT", "Log encoding: console or json", func(c *Config) *string { return &c.LogFormat }},
	{"metrics", "METRICS", "Metrics backend: none, pushgateway or datadog", func(c *Config) *string { return &c.MetricsBackend }},
	{"pushgateway-url", "PUSHGATEWAY_URL", "Prometheus Pushgateway URL", func(c *Config) *string { return &c.PushgatewayURL }},
	{"datadog-addr", "DATADOG_ADDR", "DogStatsD address", func(c *Config) *string { return &c.DatadogAddr }},
	{"job", "JOB", "Job name used to label metrics", func(c *Config) *string { return &c.Job }},
}

const configFlag = "config"

// Bind defines every flag on fs, seeding defaults from getenv, and returns
// the Config the flags write into. Call Resolve after fs has been parsed.
func Bind(fs *pflag.FlagSet, getenv func(string) string) *Config {
	cfg := Defaults()
	envOrDefault := func(k, d string) string {
		if v := getenv(EnvPrefix + k); v != "" {
			return v
		}
		return d
	}
	for _, b := range bindings {
		p := b.field(&cfg)
		fs.StringVar(p, b.name, envOrDefault(b.env, *p), b.usage)
	}
	fs.StringVar(&cfg.ConfigFile, configFlag, getenv(EnvPrefix+"CONFIG"), "YAML configuration file")
	return &cfg
}

// Resolve applies cfg.ConfigFile, if set, to every setting that neither a
// flag on fs nor the environment provided.
func Resolve(cfg *Config, fs *pflag.FlagSet, getenv func(string) string) error {
	if cfg.ConfigFile == "" {
		return nil
	}
	file, err := ReadFile(cfg.ConfigFile)
	if err != nil {
		return err
	}
	for _, b := range bindings {
		if fs.Changed(b.name) || getenv(EnvPrefix+b.env) != "" {
			continue
		}
		if v := *b.field(file); v != "" {
			*b.field(cfg) = v
		}
	}
	return nil
}

// ErrConfigNotFound is returned when the configured file does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// ReadFile decodes a YAML configuration file. Unknown keys are rejected.
func ReadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var c Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return &c, nil
}

// LoadFromArgs binds flags on fs, parses args and resolves the config file.
func LoadFromArgs(fs *pflag.FlagSet, getenv func(string) string, args []string) (*Config, error) {
	cfg := Bind(fs, getenv)
	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	if err := Resolve(cfg, fs, getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}
