package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

type Monitor struct {
	ID          string `yaml:"id" json:"id"`
	WorkspaceID string `yaml:"workspace_id" json:"workspace_id"`
	Name        string `yaml:"name" json:"name"`
	Url         string `yaml:"url" json:"url"`
	Method      string `yaml:"method" json:"method" default:"GET"`
}

type NotificationChannel struct {
	ID          string   `yaml:"id" json:"id"`
	WorkspaceID string   `yaml:"workspace_id" json:"workspace_id"`
	Name        string   `yaml:"name" json:"name"`
	Provider    Provider `yaml:"provider" json:"provider"`
	// ConfigData is the provider specific JSON document, e.g. {"slack": "https://hooks.slack.com/..."}.
	ConfigData string   `yaml:"config_data" json:"-"`
	MonitorIDs []string `yaml:"monitor_ids" json:"monitor_ids"`
}

// ConfigValue returns the string stored under key in ConfigData.
func (c NotificationChannel) ConfigValue(key string) (string, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(c.ConfigData), &data); err != nil {
		return "", fmt.Errorf("decoding config data of channel %s: %w", c.ID, err)
	}

	value, ok := data[key].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("channel %s: config data has no %q value", c.ID, key)
	}

	return value, nil
}

type MonitorConfig struct {
	Monitors []Monitor             `yaml:"monitors"`
	Channels []NotificationChannel `yaml:"notification_channels"`
}

func LoadMonitorConfig(path string) (MonitorConfig, error) {
	monitorConfigFile, err := os.ReadFile(path)
	if err != nil {
		return MonitorConfig{}, fmt.Errorf("reading monitor file: %w", err)
	}

	var monitorConfig MonitorConfig
	if err := yaml.Unmarshal(monitorConfigFile, &monitorConfig); err != nil {
		return MonitorConfig{}, fmt.Errorf("unmarshaling monitor file: %w", err)
	}

	for i := range monitorConfig.Monitors {
		if monitorConfig.Monitors[i].Method == "" {
			monitorConfig.Monitors[i].Method = "GET"
		}
	}

	return monitorConfig, monitorConfig.Validate()
}

func (c MonitorConfig) Validate() error {
	monitorIDs := make(map[string]bool, len(c.Monitors))
	for _, monitor := range c.Monitors {
		if monitor.ID == "" {
			return fmt.Errorf("monitor %q: id is required", monitor.Name)
		}
		if monitorIDs[monitor.ID] {
			return fmt.Errorf("monitor %s: duplicate id", monitor.ID)
		}
		monitorIDs[monitor.ID] = true
	}

	for _, channel := range c.Channels {
		if channel.ID == "" {
			return fmt.Errorf("notification channel %q: id is required", channel.Name)
		}
		if !channel.Provider.Valid() {
			return fmt.Errorf("notification channel %s: unknown provider %q", channel.ID, channel.Provider)
		}
		if _, err := channel.ConfigValue(string(channel.Provider)); err != nil {
			return err
		}
		for _, monitorID := range channel.MonitorIDs {
			if !monitorIDs[monitorID] {
				return fmt.Errorf("notification channel %s: unknown monitor %s", channel.ID, monitorID)
			}
		}
	}

	return nil
}
