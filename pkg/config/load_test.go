package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
storage:
  type: local
  path: /var/lib/energy-bridge/data.db
api:
  port: 9000
gateways:
  - protocol: coap
    port: 5688
meter:
  username: someone@example.com
  password: secret
  applicationId: b0f1b774-a586-4f72-9edd-27ead8aa7a8d
polling:
  interval: 120s
sync:
  lookback: 720h
devices:
  - id: smart-meter
    kind: meter
    channels:
      - name: electricity_consumption
        resourceId: 0b1c2d3e-0001
        item: Electricity_Consumption
  - id: boiler
    kind: heating
    installationId: "123456"
    gatewaySerial: "7633107000000000"
    deviceId: "0"
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/energy-bridge/data.db", cfg.StorageConfig.Path)
	assert.Equal(t, 9000, cfg.APIServerConfig.Port)
	assert.Equal(t, 120*time.Second, cfg.PollingConfig.Interval)
	assert.Equal(t, 10*time.Second, cfg.PollingConfig.StartupDelay)
	assert.Equal(t, 720*time.Hour, cfg.SyncConfig.Lookback)
	assert.Equal(t, 4, cfg.SyncConfig.MaxConcurrentRuns)
	assert.Equal(t, "mem://syncTopic", cfg.MessagingConfig.SyncSubscriptionURL)
	assert.Equal(t, 8888, cfg.MetricsConfig.Port)
	require.Len(t, cfg.GatewayConfigs, 1)
	assert.Equal(t, "./certs/server.pem", cfg.GatewayConfigs[0].CertFile)
	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, "Electricity_Consumption", cfg.Devices[0].Channels[0].Item)
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.StorageConfig.Type)
	assert.Equal(t, 90*time.Second, cfg.PollingConfig.Interval)
	assert.Equal(t, 365*24*time.Hour, cfg.SyncConfig.Lookback)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"unknown storage":                "storage: {type: s3}",
		"docstore without urls":          "storage: {type: docstore}",
		"poll interval too short":        "polling: {interval: 1s}",
		"gateway without ports":          "gateways: [{protocol: coap}]",
		"unknown gateway protocol":       "gateways: [{protocol: mqtt, port: 1883}]",
		"unknown device kind":            "devices: [{id: a, kind: toaster}]",
		"duplicate device":               "devices: [{id: a, kind: meter}, {id: a, kind: meter}]",
		"heating without ids":            "devices: [{id: a, kind: heating}]",
		"meter channel without resource": "devices: [{id: a, kind: meter, channels: [{name: x}]}]",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0600))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "smart-meter", cfg.Devices[0].ID)

	_, err = LoadConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
