package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"com.qubular.energy-bridge/pkg/config"
	"com.qubular.energy-bridge/pkg/core/store/devices"
	"com.qubular.energy-bridge/pkg/core/store/historical"
	"com.qubular.energy-bridge/pkg/features"
	"com.qubular.energy-bridge/pkg/ingestion/realtime"
	"com.qubular.energy-bridge/pkg/provider"
	"com.qubular.energy-bridge/pkg/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/docstore/memdocstore"
)

type recordingPublisher struct {
	sent []trigger.Message
}

func (p *recordingPublisher) Publish(ctx context.Context, m trigger.Message) error {
	p.sent = append(p.sent, m)
	return nil
}

type fakePoller struct {
	states []features.ChannelState
	err    error
}

func (p *fakePoller) Poll(ctx context.Context, deviceID string) ([]features.ChannelState, error) {
	if deviceID == "nope" {
		return nil, realtime.ErrUnknownDevice
	}
	return p.states, p.err
}

type fixture struct {
	server    *ApiServer
	devices   devices.DeviceStore
	history   historical.TimeSeriesStore
	publisher *recordingPublisher
	poller    *fakePoller
}

func newFixture(t *testing.T) *fixture {
	devColl, err := memdocstore.OpenCollection("deviceID", nil)
	require.NoError(t, err)
	t.Cleanup(func() { devColl.Close() })
	histColl, err := memdocstore.OpenCollection("id", nil)
	require.NoError(t, err)
	t.Cleanup(func() { histColl.Close() })

	f := &fixture{
		devices:   devices.NewDeviceDocStore(devColl),
		history:   historical.NewHistoricalDocStore(histColl),
		publisher: &recordingPublisher{},
		poller:    &fakePoller{},
	}
	f.server = NewServer(f.devices, f.history, f.publisher, f.poller, config.APIServerConfig{Port: 8080})

	require.NoError(t, devices.Register(context.Background(), f.devices, config.DeviceConfig{
		ID:       "meter-1",
		Kind:     config.DeviceKindMeter,
		Channels: []config.ChannelConfig{{Name: "electricity", ResourceID: "res-e"}},
	}))
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body interface{}) (*http.Response, []byte) {
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, target, &payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.server.app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func TestListAndGetDevices(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, "GET", "/devices", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []devices.Device
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "meter-1", list[0].ID)
	assert.Equal(t, config.DeviceKindMeter, list[0].Kind)

	resp, _ = f.do(t, "GET", "/devices/meter-1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, "GET", "/devices/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRegisterDevice(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, "POST", "/devices/boiler", registerDeviceRequest{
		Kind: config.DeviceKindHeating, InstallationID: "123", GatewaySerial: "7633", DeviceID: "0",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	boiler, err := f.devices.GetDeviceByID(context.Background(), "boiler")
	require.NoError(t, err)
	require.NotNil(t, boiler)
	assert.Equal(t, "123", boiler.Field("installationId"))

	resp, _ = f.do(t, "POST", "/devices/broken", registerDeviceRequest{Kind: config.DeviceKindHeating})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChannelHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	recent := time.Now().Add(-time.Hour).Truncate(time.Minute)
	require.NoError(t, f.history.WriteSample(ctx, "meter-1/electricity", historical.Sample{Time: recent, Value: 0.4}))
	require.NoError(t, f.history.WriteSample(ctx, "meter-1/electricity", historical.Sample{Time: recent.AddDate(0, 0, -30), Value: 0.2}))

	resp, body := f.do(t, "GET", "/devices/meter-1/channels/electricity/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var samples []historical.Sample
	require.NoError(t, json.Unmarshal(body, &samples))
	require.Len(t, samples, 1)
	assert.Equal(t, 0.4, samples[0].Value)

	resp, body = f.do(t, "GET", "/devices/meter-1/channels/electricity/history?days=60", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &samples))
	assert.Len(t, samples, 2)

	resp, _ = f.do(t, "GET", "/devices/meter-1/channels/gas/history", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.do(t, "GET", "/devices/meter-1/channels/electricity/history?days=x", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRefreshChannel(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, "POST", "/devices/meter-1/channels/electricity/refresh", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, f.publisher.sent, 1)
	assert.Equal(t, trigger.KindSync, f.publisher.sent[0].Kind)
	assert.False(t, f.publisher.sent[0].HasWindow())

	resp, _ = f.do(t, "POST", "/devices/meter-1/channels/electricity/refresh?days=3", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	m := f.publisher.sent[1]
	assert.Equal(t, 72*time.Hour, m.End.Sub(m.Start))

	resp, _ = f.do(t, "POST", "/devices/meter-2/channels/electricity/refresh", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Len(t, f.publisher.sent, 2)
}

func TestDeviceFeatures(t *testing.T) {
	f := newFixture(t)
	f.poller.states = []features.ChannelState{{Channel: "heating_boiler_serial", Feature: "heating.boiler.serial", Value: "7723"}}

	resp, body := f.do(t, "GET", "/devices/boiler/features", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var states []features.ChannelState
	require.NoError(t, json.Unmarshal(body, &states))
	assert.Equal(t, "7723", states[0].Value)

	resp, _ = f.do(t, "GET", "/devices/nope/features", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	f.poller.err = &provider.CommunicationError{Op: "features", Err: errors.New("timeout")}
	resp, _ = f.do(t, "GET", "/devices/boiler/features", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestChannelHistoryUsesItemKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, devices.Register(ctx, f.devices, config.DeviceConfig{
		ID:       "meter-2",
		Kind:     config.DeviceKindMeter,
		Channels: []config.ChannelConfig{{Name: "gas", ResourceID: "res-g", Item: "Gas_Consumption"}},
	}))
	at := time.Now().Add(-time.Hour).Truncate(time.Minute)
	require.NoError(t, f.history.WriteSample(ctx, "Gas_Consumption", historical.Sample{Time: at, Value: 1.5}))
	require.NoError(t, f.history.WriteSample(ctx, "meter-2/gas", historical.Sample{Time: at, Value: 9}))

	resp, body := f.do(t, "GET", "/devices/meter-2/channels/gas/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var samples []historical.Sample
	require.NoError(t, json.Unmarshal(body, &samples))
	require.Len(t, samples, 1)
	assert.Equal(t, 1.5, samples[0].Value)
}
