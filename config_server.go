package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

type RegisteredChecker struct {
	Region string `yaml:"region"`
	ApiKey string `yaml:"api_key"`
	// ApiKeyHash is a bcrypt hash of the key, preferred over ApiKey when set.
	ApiKeyHash string `yaml:"api_key_hash"`
}

type ServerConfig struct {
	Server struct {
		Host string `yaml:"host" split_words:"true"`
		Port int    `yaml:"port" split_words:"true" default:"8600"`

		LogLevel slog.Level `yaml:"log_level" split_words:"true" default:"INFO"`
	} `yaml:"server"`
	RegisteredCheckers []RegisteredChecker `yaml:"registered_checkers" ignored:"true"`
	Database           struct {
		// Driver is either "duckdb" or "sqlite3".
		Driver string `yaml:"driver" split_words:"true" default:"duckdb"`
		Path   string `yaml:"path" split_words:"true" default:"kestrel.db"`
	} `yaml:"database"`
	TaskQueue struct {
		Checks struct {
			ProducerAddress string `yaml:"producer_address" split_words:"true" default:"mem://check_tasks"`
			ConsumerAddress string `yaml:"consumer_address" split_words:"true" default:"mem://check_tasks"`
		} `yaml:"checks"`
		History struct {
			ProducerAddress string `yaml:"producer_address" split_words:"true" default:"mem://history_tasks"`
			ConsumerAddress string `yaml:"consumer_address" split_words:"true" default:"mem://history_tasks"`
		} `yaml:"history"`
	} `yaml:"task_queue"`
	Ingress struct {
		RetryHeader string `yaml:"retry_header" split_words:"true" default:"Upstash-Retried"`
	} `yaml:"ingress"`
	Pipeline struct {
		RetryThreshold     int `yaml:"retry_threshold" split_words:"true" default:"2"`
		MaxResolveAttempts int `yaml:"max_resolve_attempts" split_words:"true" default:"3"`
		StatusPolicy       struct {
			EmptyStatus       string `yaml:"empty_status" split_words:"true" default:"up"`
			DownQuorum        string `yaml:"down_quorum" split_words:"true" default:"all"`
			PropagateDegraded bool   `yaml:"propagate_degraded" split_words:"true" default:"false"`
		} `yaml:"status_policy"`
	} `yaml:"pipeline"`
	Dataset struct {
		RetentionDays int `yaml:"retention_days" split_words:"true" default:"90"`
	} `yaml:"dataset"`
	Alerting struct {
		ProviderTimeoutSeconds int `yaml:"provider_timeout_seconds" split_words:"true" default:"5"`
		MaxConcurrency         int `yaml:"max_concurrency" split_words:"true" default:"4"`
		Email                  struct {
			Host     string `yaml:"host" split_words:"true"`
			Port     int    `yaml:"port" split_words:"true" default:"587"`
			Username string `yaml:"username" split_words:"true"`
			Password string `yaml:"password" split_words:"true"`
			From     string `yaml:"from" split_words:"true"`
		} `yaml:"email"`
		SMS struct {
			AccountSid string `yaml:"account_sid" split_words:"true"`
			AuthToken  string `yaml:"auth_token" split_words:"true"`
			From       string `yaml:"from" split_words:"true"`
		} `yaml:"sms"`
		Webhook struct {
			HmacSecret string `yaml:"hmac_secret" split_words:"true"`
		} `yaml:"webhook"`
	} `yaml:"alerting"`
	Sentry struct {
		Dsn                 string  `yaml:"dsn" split_words:"true"`
		ErrorSampleRate     float64 `yaml:"error_sample_rate" split_words:"true" default:"1.0"`
		TracesSampleRate    float64 `yaml:"traces_sample_rate" split_words:"true" default:"1.0"`
		ProfilingSampleRate float64 `yaml:"profiling_sample_rate" split_words:"true" default:"0.1"`
		Debug               bool    `yaml:"debug" split_words:"true" default:"false"`
	} `yaml:"sentry"`
}

// LoadServerConfig applies defaults and KESTREL_* environment variables first,
// then overlays the YAML file at path. A missing file is not an error.
func LoadServerConfig(path string) (ServerConfig, error) {
	var config ServerConfig
	if err := envconfig.Process("kestrel", &config); err != nil {
		return ServerConfig{}, fmt.Errorf("processing environment: %w", err)
	}

	configFile, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config, config.Validate()
		}
		return ServerConfig{}, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(configFile, &config); err != nil {
		return ServerConfig{}, fmt.Errorf("unmarshaling config file: %w", err)
	}

	return config, config.Validate()
}

func (c ServerConfig) Validate() error {
	switch c.Database.Driver {
	case "duckdb", "sqlite3":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if _, err := c.StatusPolicy(); err != nil {
		return err
	}
	if c.Pipeline.RetryThreshold < 1 {
		return fmt.Errorf("pipeline.retry_threshold must be at least 1, got %d", c.Pipeline.RetryThreshold)
	}
	for i, checker := range c.RegisteredCheckers {
		if checker.Region == "" {
			return fmt.Errorf("registered_checkers[%d]: region is required", i)
		}
		if checker.ApiKey == "" && checker.ApiKeyHash == "" {
			return fmt.Errorf("registered_checkers[%d]: api_key or api_key_hash is required", i)
		}
	}
	return nil
}

// StatusPolicy builds the resolution policy described by the pipeline section.
func (c ServerConfig) StatusPolicy() (StatusPolicy, error) {
	emptyStatus, err := ParseMonitorStatus(c.Pipeline.StatusPolicy.EmptyStatus)
	if err != nil {
		return StatusPolicy{}, fmt.Errorf("pipeline.status_policy.empty_status: %w", err)
	}

	quorum := DownQuorum(c.Pipeline.StatusPolicy.DownQuorum)
	switch quorum {
	case DownQuorumAll, DownQuorumMajority, DownQuorumAny:
	default:
		return StatusPolicy{}, fmt.Errorf("pipeline.status_policy.down_quorum: unknown quorum %q", quorum)
	}

	return StatusPolicy{
		EmptyStatus:       emptyStatus,
		DownQuorum:        quorum,
		PropagateDegraded: c.Pipeline.StatusPolicy.PropagateDegraded,
	}, nil
}

func (c ServerConfig) ProviderTimeout() time.Duration {
	if c.Alerting.ProviderTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Alerting.ProviderTimeoutSeconds) * time.Second
}
