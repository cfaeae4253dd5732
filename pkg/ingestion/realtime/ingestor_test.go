package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"com.qubular.energy-bridge/pkg/cache"
	"com.qubular.energy-bridge/pkg/config"
	"com.qubular.energy-bridge/pkg/core/store/devices"
	"com.qubular.energy-bridge/pkg/features"
	"com.qubular.energy-bridge/pkg/provider"
	"com.qubular.energy-bridge/pkg/provider/heating"
	"com.qubular.energy-bridge/pkg/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/docstore/memdocstore"
)

type fakeFeatures struct {
	mu    sync.Mutex
	calls int
	err   error
	refs  []heating.DeviceRef
}

func (f *fakeFeatures) Features(ctx context.Context, ref heating.DeviceRef) ([]features.Feature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.refs = append(f.refs, ref)
	if f.err != nil {
		return nil, f.err
	}
	sensor := features.NewNumericSensor("heating.boiler.sensors.temperature.main", features.Value{Value: 58.5, Unit: "celsius"})
	sensor.Status = "connected"
	return []features.Feature{
		sensor,
		features.NewText("heating.boiler.serial", "7723181102527121"),
	}, nil
}

type recordingPublisher struct {
	sent []trigger.Message
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, m trigger.Message) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, m)
	return nil
}

func newRegistry(t *testing.T) devices.DeviceStore {
	coll, err := memdocstore.OpenCollection("deviceID", nil)
	require.NoError(t, err)
	t.Cleanup(func() { coll.Close() })
	store := devices.NewDeviceDocStore(coll)
	ctx := context.Background()
	require.NoError(t, devices.Register(ctx, store, config.DeviceConfig{
		ID: "boiler", Kind: config.DeviceKindHeating, InstallationID: "123", GatewaySerial: "7633", DeviceID: "0",
	}))
	require.NoError(t, devices.Register(ctx, store, config.DeviceConfig{
		ID:   "meter-1",
		Kind: config.DeviceKindMeter,
		Channels: []config.ChannelConfig{
			{Name: "electricity", ResourceID: "res-e"},
			{Name: "gas", ResourceID: "res-g"},
		},
	}))
	return store
}

func TestPollStoresProjectedState(t *testing.T) {
	store := newRegistry(t)
	source := &fakeFeatures{}
	responses := cache.NewResponseCache[[]features.Feature]("features", cache.TTLForPollInterval(90*time.Second))
	rti := NewIngestor(nil, store, source, responses)
	ctx := context.Background()

	states, err := rti.Poll(ctx, "boiler")
	require.NoError(t, err)
	assert.Len(t, states, 3)
	assert.Equal(t, heating.DeviceRef{InstallationID: "123", GatewaySerial: "7633", DeviceID: "0"}, source.refs[0])

	_, err = rti.Poll(ctx, "boiler")
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls, "second poll within the interval is served from cache")

	boiler, err := store.GetDeviceByID(ctx, "boiler")
	require.NoError(t, err)
	assert.Equal(t, devices.StatusOnline, boiler.Status)
	state := boiler.State()
	assert.Equal(t, 58.5, state["heating_boiler_sensors_temperature_main"])
	assert.Equal(t, "connected", state["heating_boiler_sensors_temperature_main_status"])
}

func TestPollFailureStatus(t *testing.T) {
	store := newRegistry(t)
	source := &fakeFeatures{err: &provider.AuthenticationError{Op: "features", Err: errors.New("expired")}}
	rti := NewIngestor(nil, store, source, cache.NewResponseCache[[]features.Feature]("features", time.Minute))

	_, err := rti.Poll(context.Background(), "boiler")
	require.Error(t, err)
	boiler, err := store.GetDeviceByID(context.Background(), "boiler")
	require.NoError(t, err)
	assert.Equal(t, devices.StatusOfflineConfiguration, boiler.Status)
}

func TestPollRejectsOtherDevices(t *testing.T) {
	rti := NewIngestor(nil, newRegistry(t), &fakeFeatures{}, cache.NewResponseCache[[]features.Feature]("features", time.Minute))
	_, err := rti.Poll(context.Background(), "meter-1")
	assert.True(t, errors.Is(err, ErrNotHeating))
	_, err = rti.Poll(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrUnknownDevice))
}

func TestSchedulerTick(t *testing.T) {
	store := newRegistry(t)
	pub := &recordingPublisher{}
	polling := config.PollingConfig{Interval: 90 * time.Second, StartupDelay: 10 * time.Second}

	n, err := NewScheduler(pub, store, polling, false).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, trigger.KindPoll, pub.sent[0].Kind)
	assert.Equal(t, "boiler", pub.sent[0].DeviceID)

	pub.sent = nil
	n, err = NewScheduler(pub, store, polling, true).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	var channels []string
	for _, m := range pub.sent {
		if m.Kind == trigger.KindSync {
			channels = append(channels, m.Channel)
		}
	}
	assert.ElementsMatch(t, []string{"electricity", "gas"}, channels)
}

func TestSchedulerStopsBeforeStartupDelay(t *testing.T) {
	pub := &recordingPublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewScheduler(pub, newRegistry(t), config.PollingConfig{Interval: time.Minute, StartupDelay: time.Hour}, true).Start(ctx)
	assert.Empty(t, pub.sent)
}
