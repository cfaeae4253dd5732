package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DeviceKindMeter   = "meter"
	DeviceKindHeating = "heating"
)

func LoadConfig() (*PlatformConfig, error) {
	return LoadConfigFromFile("./config.yaml")
}

func LoadConfigFromFile(filename string) (*PlatformConfig, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(content)
}

func Parse(content []byte) (*PlatformConfig, error) {
	config := PlatformConfig{}
	if err := yaml.Unmarshal(content, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *PlatformConfig) applyDefaults() {
	if c.StorageConfig.Type == "" {
		c.StorageConfig.Type = "local"
	}
	if c.StorageConfig.Type == "local" && c.StorageConfig.Path == "" {
		c.StorageConfig.Path = "./data/energy-bridge.db"
	}
	if c.MessagingConfig.Type == "" {
		c.MessagingConfig.Type = "mem"
	}
	if c.MessagingConfig.SyncTopicURL == "" {
		c.MessagingConfig.SyncTopicURL = "mem://syncTopic"
	}
	if c.MessagingConfig.SyncSubscriptionURL == "" {
		c.MessagingConfig.SyncSubscriptionURL = c.MessagingConfig.SyncTopicURL
	}
	if c.MessagingConfig.PollTopicURL == "" {
		c.MessagingConfig.PollTopicURL = "mem://pollTopic"
	}
	if c.MessagingConfig.PollSubscriptionURL == "" {
		c.MessagingConfig.PollSubscriptionURL = c.MessagingConfig.PollTopicURL
	}
	if c.APIServerConfig.Port == 0 {
		c.APIServerConfig.Port = 8080
	}
	for i := range c.GatewayConfigs {
		g := &c.GatewayConfigs[i]
		if g.Protocol == "" {
			g.Protocol = "coap"
		}
		if g.CertFile == "" {
			g.CertFile = "./certs/server.pem"
		}
		if g.KeyFile == "" {
			g.KeyFile = "./certs/server-key.pem"
		}
	}
	if c.MetricsConfig.Port == 0 {
		c.MetricsConfig.Port = 8888
	}
	if c.MetricsConfig.Namespace == "" {
		c.MetricsConfig.Namespace = "energy_bridge"
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if c.LogConfig.Format == "" {
		c.LogConfig.Format = "text"
	}
	if c.MeterConfig.BaseURL == "" {
		c.MeterConfig.BaseURL = "https://api.glowmarkt.com/api/v0-1"
	}
	if c.MeterConfig.Timeout == 0 {
		c.MeterConfig.Timeout = 30 * time.Second
	}
	if c.MeterConfig.RequestsPerSecond == 0 {
		c.MeterConfig.RequestsPerSecond = 2
	}
	if c.HeatingConfig.BaseURL == "" {
		c.HeatingConfig.BaseURL = "https://api.viessmann.com/iot/v1"
	}
	if c.HeatingConfig.Timeout == 0 {
		c.HeatingConfig.Timeout = 30 * time.Second
	}
	if c.HeatingConfig.RequestsPerSecond == 0 {
		c.HeatingConfig.RequestsPerSecond = 1
	}
	if c.SyncConfig.Lookback == 0 {
		c.SyncConfig.Lookback = 365 * 24 * time.Hour
	}
	if c.SyncConfig.MaxConcurrentRuns == 0 {
		c.SyncConfig.MaxConcurrentRuns = 4
	}
	if c.PollingConfig.Interval == 0 {
		c.PollingConfig.Interval = 90 * time.Second
	}
	if c.PollingConfig.StartupDelay == 0 {
		c.PollingConfig.StartupDelay = 10 * time.Second
	}
}

func (c *PlatformConfig) validate() error {
	switch c.StorageConfig.Type {
	case "local":
	case "docstore":
		if c.StorageConfig.DevicesURL == "" || c.StorageConfig.HistoryURL == "" {
			return errors.New("storage: docstore requires devicesUrl and historyUrl")
		}
	default:
		return fmt.Errorf("storage: unknown type %q", c.StorageConfig.Type)
	}
	if c.PollingConfig.Interval <= time.Second {
		return fmt.Errorf("polling: interval %s must be longer than 1s", c.PollingConfig.Interval)
	}
	if c.SyncConfig.Lookback < 0 {
		return errors.New("sync: lookback must not be negative")
	}
	if c.SyncConfig.MaxConcurrentRuns < 0 {
		return errors.New("sync: maxConcurrentRuns must not be negative")
	}

	for _, g := range c.GatewayConfigs {
		if g.Protocol != "coap" {
			return fmt.Errorf("gateways: unknown protocol %q", g.Protocol)
		}
		if g.Port <= 0 && g.SslPort <= 0 {
			return errors.New("gateways: port or sslPort is required")
		}
	}

	seen := make(map[string]bool)
	for _, d := range c.Devices {
		if err := d.Validate(); err != nil {
			return err
		}
		if seen[d.ID] {
			return fmt.Errorf("devices: duplicate id %q", d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}

// Validate checks the bindings a device of its kind needs.
func (d DeviceConfig) Validate() error {
	if d.ID == "" {
		return errors.New("devices: id is required")
	}
	switch d.Kind {
	case DeviceKindMeter:
		for _, ch := range d.Channels {
			if ch.Name == "" || ch.ResourceID == "" {
				return fmt.Errorf("devices: %s channel needs name and resourceId", d.ID)
			}
		}
	case DeviceKindHeating:
		if d.InstallationID == "" || d.GatewaySerial == "" || d.DeviceID == "" {
			return fmt.Errorf("devices: %s needs installationId, gatewaySerial and deviceId", d.ID)
		}
	default:
		return fmt.Errorf("devices: %s has unknown kind %q", d.ID, d.Kind)
	}
	return nil
}
