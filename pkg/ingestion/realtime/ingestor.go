// Package realtime refreshes heating device state from poll triggers.
package realtime

import (
	"context"
	"errors"
	"time"

	"com.qubular.energy-bridge/pkg/cache"
	"com.qubular.energy-bridge/pkg/config"
	"com.qubular.energy-bridge/pkg/core/store/devices"
	"com.qubular.energy-bridge/pkg/features"
	"com.qubular.energy-bridge/pkg/provider"
	"com.qubular.energy-bridge/pkg/provider/heating"
	"com.qubular.energy-bridge/pkg/trigger"
	"github.com/apex/log"
	"gocloud.dev/pubsub"
)

type FeatureSource interface {
	Features(ctx context.Context, ref heating.DeviceRef) ([]features.Feature, error)
}

var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrNotHeating    = errors.New("device is not a heating device")
)

type RealtimeDataIngestor struct {
	pollSub     *pubsub.Subscription
	deviceStore devices.DeviceStore
	source      FeatureSource
	cache       *cache.ResponseCache[[]features.Feature]
	logger      *log.Entry
}

func NewIngestor(pollSub *pubsub.Subscription, deviceStore devices.DeviceStore, source FeatureSource, responses *cache.ResponseCache[[]features.Feature]) *RealtimeDataIngestor {
	return &RealtimeDataIngestor{
		pollSub:     pollSub,
		deviceStore: deviceStore,
		source:      source,
		cache:       responses,
		logger:      log.WithField("module", "realtime-ingestor"),
	}
}

func (rti *RealtimeDataIngestor) Start(ctx context.Context) {
	for {
		msg, err := rti.pollSub.Receive(ctx)
		if err != nil {
			rti.logger.Warnf("err receiving message: %v", err)
			return
		}

		m, err := trigger.Decode(msg)
		if err != nil || m.Kind != trigger.KindPoll {
			rti.logger.Warnf("Invalid msg format: %v", err)
			msg.Ack()
			continue
		}

		if _, err := rti.Poll(ctx, m.DeviceID); err != nil {
			rti.logger.WithError(err).WithField("device", m.DeviceID).Warn("poll failed")
		}
		msg.Ack()
	}
}

// Poll fetches the features of a heating device through the response cache,
// stores the projected channel states and returns them.
func (rti *RealtimeDataIngestor) Poll(ctx context.Context, deviceID string) ([]features.ChannelState, error) {
	device, err := rti.deviceStore.GetDeviceByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, ErrUnknownDevice
	}
	if device.Kind != config.DeviceKindHeating {
		return nil, ErrNotHeating
	}

	ref := heating.DeviceRef{
		InstallationID: device.Field("installationId"),
		GatewaySerial:  device.Field("gatewaySerial"),
		DeviceID:       device.Field("deviceId"),
	}
	fs, err := rti.cache.GetOrFetch(ctx, ref.Key(), func(ctx context.Context) ([]features.Feature, error) {
		return rti.source.Features(ctx, ref)
	})
	if err != nil {
		rti.recordFailure(ctx, deviceID, err)
		return nil, err
	}

	states, err := features.ProjectAll(fs)
	if err != nil {
		return nil, err
	}

	values := make(map[string]interface{}, len(states))
	for _, s := range states {
		if s.Value != nil {
			values[s.Channel] = s.Value
		}
	}
	updates := map[string]interface{}{
		"state":        values,
		"status":       devices.StatusOnline,
		"statusDetail": "",
	}
	if err := rti.deviceStore.UpsertDevice(ctx, deviceID, time.Now(), updates); err != nil {
		return nil, err
	}
	rti.logger.WithField("device", deviceID).Debugf("%d channel states", len(states))
	return states, nil
}

func (rti *RealtimeDataIngestor) recordFailure(ctx context.Context, deviceID string, err error) {
	status := devices.StatusOfflineCommunication
	if provider.IsAuthentication(err) {
		status = devices.StatusOfflineConfiguration
	}
	if err := devices.SetStatus(ctx, rti.deviceStore, deviceID, status, err.Error()); err != nil {
		rti.logger.Errorf("err update device status: %v", err)
	}
}
