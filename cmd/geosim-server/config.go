package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/daniacca/geosim/internal/earth"
)

// ServerConfig holds the server configuration. Values come from the environment and can be
// overridden by command line flags.
type ServerConfig struct {
	Addr          string `env:"GEOSIM_ADDR" envDefault:":8080"`
	LogLevel      string `env:"GEOSIM_LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"GEOSIM_LOG_FORMAT" envDefault:"text"`
	RunConfigFile string `env:"GEOSIM_RUN_CONFIG"`
	DefaultRunID  string `env:"GEOSIM_RUN_ID" envDefault:"default"`
	OTelEndpoint  string `env:"GEOSIM_OTEL_ENDPOINT"`
	OTelEnabled   bool   `env:"GEOSIM_OTEL_ENABLED" envDefault:"true"`
}

// loadServerConfig parses the environment, then applies flags from args on top.
func loadServerConfig(args []string) (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("geosim-server", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address (e.g. :8080, 0.0.0.0:8080)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	fs.StringVar(&cfg.RunConfigFile, "run-config", cfg.RunConfigFile, "optional path to a JSON run config started at boot")
	fs.StringVar(&cfg.DefaultRunID, "run-id", cfg.DefaultRunID, "run ID used for the run config loaded at boot")
	fs.StringVar(&cfg.OTelEndpoint, "otel-endpoint", cfg.OTelEndpoint, "OTLP/HTTP trace collector URL; empty disables tracing")
	if err := fs.Parse(args); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// loadRunConfigFromFile reads and validates a run configuration file.
func loadRunConfigFromFile(path string) (earth.RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return earth.RunConfig{}, err
	}

	var rc earth.RunConfig
	if err := json.Unmarshal(data, &rc); err != nil {
		return earth.RunConfig{}, fmt.Errorf("invalid run config json: %w", err)
	}
	if err := earth.ValidateRunConfig(rc); err != nil {
		return earth.RunConfig{}, err
	}
	return rc, nil
}
