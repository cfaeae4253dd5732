package config

import "time"

type PlatformConfig struct {
	StorageConfig   StorageConfig   `yaml:"storage"`
	MessagingConfig MessagingConfig `yaml:"messaging"`
	APIServerConfig APIServerConfig `yaml:"api"`
	GatewayConfigs  []GatewayConfig `yaml:"gateways"`
	MetricsConfig   MetricsConfig   `yaml:"metrics"`
	LogConfig       LogConfig       `yaml:"log"`
	MeterConfig     MeterConfig     `yaml:"meter"`
	HeatingConfig   HeatingConfig   `yaml:"heating"`
	SyncConfig      SyncConfig      `yaml:"sync"`
	PollingConfig   PollingConfig   `yaml:"polling"`
	Devices         []DeviceConfig  `yaml:"devices"`
}

// StorageConfig selects where samples and devices live. "local" uses a bbolt
// file at Path; "docstore" opens the gocloud.dev collection URLs.
type StorageConfig struct {
	Type       string `yaml:"type"`
	Path       string `yaml:"path,omitempty"`
	DevicesURL string `yaml:"devicesUrl,omitempty"`
	HistoryURL string `yaml:"historyUrl,omitempty"`
}

type MessagingConfig struct {
	Type                string `yaml:"type"`
	SyncTopicURL        string `yaml:"syncTopic"`
	SyncSubscriptionURL string `yaml:"syncSubscription"`
	PollTopicURL        string `yaml:"pollTopic"`
	PollSubscriptionURL string `yaml:"pollSubscription"`
}

type APIServerConfig struct {
	Port int `yaml:"port"`
}

type GatewayConfig struct {
	Protocol     string `yaml:"protocol"`
	Port         int    `yaml:"port"`
	SslPort      int    `yaml:"sslPort,omitempty"`
	CertFile     string `yaml:"certFile,omitempty"`
	KeyFile      string `yaml:"keyFile,omitempty"`
	ClientCAFile string `yaml:"clientCaFile,omitempty"`
}

type MetricsConfig struct {
	Port      int    `yaml:"port"`
	Namespace string `yaml:"namespace"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MeterConfig configures the smart-meter readings API.
type MeterConfig struct {
	BaseURL           string        `yaml:"baseUrl"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	ApplicationID     string        `yaml:"applicationId"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
}

// HeatingConfig configures the heating features API.
type HeatingConfig struct {
	BaseURL           string        `yaml:"baseUrl"`
	AccessToken       string        `yaml:"accessToken"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
}

type SyncConfig struct {
	// Lookback is how far before now the desired window starts.
	Lookback          time.Duration `yaml:"lookback"`
	MaxConcurrentRuns int           `yaml:"maxConcurrentRuns"`
	// OnPoll also enqueues a sync for every meter channel on each poll tick.
	OnPoll bool `yaml:"onPoll"`
}

type PollingConfig struct {
	Interval     time.Duration `yaml:"interval"`
	StartupDelay time.Duration `yaml:"startupDelay"`
}

// DeviceConfig seeds a device binding into the registry at startup.
type DeviceConfig struct {
	ID             string          `yaml:"id"`
	Kind           string          `yaml:"kind"`
	InstallationID string          `yaml:"installationId,omitempty"`
	GatewaySerial  string          `yaml:"gatewaySerial,omitempty"`
	DeviceID       string          `yaml:"deviceId,omitempty"`
	Channels       []ChannelConfig `yaml:"channels,omitempty"`
}

type ChannelConfig struct {
	Name       string `yaml:"name" json:"name"`
	ResourceID string `yaml:"resourceId" json:"resourceId"`
	Item       string `yaml:"item" json:"item,omitempty"`
}
