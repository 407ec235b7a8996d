package config

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/godspeedsystems/ingestor-sdk/pkg/store"
)

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Port int `json:"port" mapstructure:"port"`
	// BaseURL is the externally reachable address used to build webhook
	// callback URLs when a task does not carry one
	BaseURL string `json:"base_url,omitempty" mapstructure:"base_url"`
}

// CronConfig represents the cron evaluation configuration
type CronConfig struct {
	// WindowSeconds bounds how far behind a tick may arrive and still
	// count a scheduled moment as due
	WindowSeconds int `json:"window_seconds" mapstructure:"window_seconds"`
}

// RunLogConfig represents the per-run log file configuration
type RunLogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Dir     string `json:"dir" mapstructure:"dir"`
}

// Config represents the ingestor configuration
type Config struct {
	Server  ServerConfig `json:"server" mapstructure:"server"`
	Storage store.Config `json:"storage" mapstructure:"storage"`
	Cron    CronConfig   `json:"cron" mapstructure:"cron"`
	RunLog  RunLogConfig `json:"run_log" mapstructure:"run_log"`
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			log.Printf("Failed to close config file: %v", err)
		}
	}()

	var config Config
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return nil, err
	}
	config.applyDefaults()

	return &config, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	config := &Config{}
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.Cron.WindowSeconds == 0 {
		c.Cron.WindowSeconds = 65
	}
	if c.RunLog.Dir == "" {
		c.RunLog.Dir = "./run-logs"
	}
}

// CronWindow returns the cron due window as a duration
func (c *Config) CronWindow() time.Duration {
	return time.Duration(c.Cron.WindowSeconds) * time.Second
}
