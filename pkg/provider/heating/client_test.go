package heating

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"com.qubular.energy-bridge/pkg/config"
	"com.qubular.energy-bridge/pkg/features"
	"com.qubular.energy-bridge/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			http.Error(w, `{"errorType":"TOKEN_EXPIRED"}`, http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "/features/installations/123/gateways/7633/devices/0/features", r.URL.Path)
		w.Write([]byte(`{"data":[{"feature":"heating.boiler.sensors.temperature.main","isEnabled":true,
			"properties":{"value":{"type":"number","value":58.5,"unit":"celsius"}}}]}`))
	}))
	defer srv.Close()
	ref := DeviceRef{InstallationID: "123", GatewaySerial: "7633", DeviceID: "0"}

	c := NewClient(config.HeatingConfig{BaseURL: srv.URL, AccessToken: "good", Timeout: time.Second})
	fs, err := c.Features(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	sensor, ok := fs[0].(*features.NumericSensor)
	require.True(t, ok)
	assert.Equal(t, 58.5, sensor.Value.Value)

	c = NewClient(config.HeatingConfig{BaseURL: srv.URL, AccessToken: "stale", Timeout: time.Second})
	_, err = c.Features(context.Background(), ref)
	assert.True(t, provider.IsAuthentication(err))
}

func TestFeaturesUnreachable(t *testing.T) {
	c := NewClient(config.HeatingConfig{BaseURL: "http://127.0.0.1:1", AccessToken: "good", Timeout: time.Second})
	_, err := c.Features(context.Background(), DeviceRef{InstallationID: "1", GatewaySerial: "2", DeviceID: "0"})
	require.Error(t, err)
	assert.True(t, provider.IsCommunication(err))
}
