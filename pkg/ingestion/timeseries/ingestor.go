// Package timeseries consumes sync triggers and backfills meter channels.
package timeseries

import (
	"context"
	"errors"
	"sync"
	"time"

	"com.qubular.energy-bridge/pkg/backfill"
	"com.qubular.energy-bridge/pkg/config"
	"com.qubular.energy-bridge/pkg/core/store/devices"
	"com.qubular.energy-bridge/pkg/provider"
	"com.qubular.energy-bridge/pkg/trigger"
	"github.com/apex/log"
	"gocloud.dev/pubsub"
)

type Synchronizer interface {
	Sync(ctx context.Context, series backfill.Series, window backfill.Window) (backfill.Result, error)
}

var (
	ErrUnknownDevice  = errors.New("unknown device")
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrRunInProgress is returned when the series already has a run going.
	ErrRunInProgress = errors.New("sync already running")
)

type TimeseriesDataIngestor struct {
	syncSub      *pubsub.Subscription
	deviceStore  devices.DeviceStore
	synchronizer Synchronizer
	lookback     time.Duration
	slots        chan struct{}
	running      sync.Map
	wg           sync.WaitGroup
	now          func() time.Time
	logger       *log.Entry
}

func NewIngestor(syncSub *pubsub.Subscription, deviceStore devices.DeviceStore, synchronizer Synchronizer, cfg config.SyncConfig) *TimeseriesDataIngestor {
	runs := cfg.MaxConcurrentRuns
	if runs <= 0 {
		runs = 1
	}
	return &TimeseriesDataIngestor{
		syncSub:      syncSub,
		deviceStore:  deviceStore,
		synchronizer: synchronizer,
		lookback:     cfg.Lookback,
		slots:        make(chan struct{}, runs),
		now:          time.Now,
		logger:       log.WithField("module", "timeseries-ingestor"),
	}
}

// Start receives sync triggers until the subscription is shut down or ctx
// is done. Runs for different series proceed concurrently up to the
// configured limit.
func (tsi *TimeseriesDataIngestor) Start(ctx context.Context) {
	defer tsi.wg.Wait()
	for {
		msg, err := tsi.syncSub.Receive(ctx)
		if err != nil {
			tsi.logger.Infof("Receiving message: %v", err)
			return
		}

		m, err := trigger.Decode(msg)
		if err != nil || m.Kind != trigger.KindSync {
			tsi.logger.Warnf("Invalid msg format: %v", err)
			// Drop msg
			msg.Ack()
			continue
		}

		select {
		case tsi.slots <- struct{}{}:
		case <-ctx.Done():
			msg.Nack()
			return
		}
		tsi.wg.Add(1)
		go func() {
			defer tsi.wg.Done()
			defer func() { <-tsi.slots }()
			if err := tsi.Handle(ctx, m); err != nil {
				tsi.logger.WithError(err).WithField("trigger", m.ID).Warn("sync trigger not completed")
			}
			// Failed runs are retried by the next trigger, never redelivered.
			msg.Ack()
		}()
	}
}

// Handle runs one synchronization for the channel named by the trigger and
// records the resulting device status.
func (tsi *TimeseriesDataIngestor) Handle(ctx context.Context, m trigger.Message) error {
	device, err := tsi.deviceStore.GetDeviceByID(ctx, m.DeviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return ErrUnknownDevice
	}
	binding, ok := device.Channel(m.Channel)
	if !ok {
		return ErrUnknownChannel
	}

	series := backfill.Series{Key: binding.SeriesKey(device.ID), ResourceID: binding.ResourceID}
	if _, busy := tsi.running.LoadOrStore(series.Key, struct{}{}); busy {
		return ErrRunInProgress
	}
	defer tsi.running.Delete(series.Key)

	window := tsi.window(m)
	result, err := tsi.synchronizer.Sync(ctx, series, window)
	tsi.recordStatus(ctx, device.ID, err)
	if err != nil {
		return err
	}
	tsi.logger.WithFields(log.Fields{
		"series":  series.Key,
		"gaps":    len(result.Gaps),
		"written": result.Progress.Written,
	}).Info("sync finished")
	return nil
}

func (tsi *TimeseriesDataIngestor) window(m trigger.Message) backfill.Window {
	if m.HasWindow() {
		return backfill.Window{Start: m.Start, End: m.End}
	}
	end := tsi.now().Truncate(time.Minute)
	return backfill.Window{Start: end.Add(-tsi.lookback), End: end}
}

func (tsi *TimeseriesDataIngestor) recordStatus(ctx context.Context, deviceID string, syncErr error) {
	status, detail := devices.StatusOnline, ""
	switch {
	case syncErr == nil:
	case provider.IsAuthentication(syncErr):
		status, detail = devices.StatusOfflineConfiguration, syncErr.Error()
	case provider.IsCommunication(syncErr):
		status, detail = devices.StatusOfflineCommunication, syncErr.Error()
	default:
		// store failures say nothing about the provider
		return
	}
	if err := devices.SetStatus(ctx, tsi.deviceStore, deviceID, status, detail); err != nil {
		tsi.logger.Errorf("err update device status: %v", err)
	}
}
