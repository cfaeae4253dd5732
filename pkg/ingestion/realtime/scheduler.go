package realtime

import (
	"context"
	"time"

	"com.qubular.energy-bridge/pkg/config"
	"com.qubular.energy-bridge/pkg/core/store/devices"
	"com.qubular.energy-bridge/pkg/trigger"
	"github.com/apex/log"
)

type Publisher interface {
	Publish(ctx context.Context, m trigger.Message) error
}

// Scheduler publishes a poll trigger for every heating device each interval,
// and a sync trigger for every meter channel when syncOnPoll is set.
type Scheduler struct {
	publisher    Publisher
	deviceStore  devices.DeviceStore
	interval     time.Duration
	startupDelay time.Duration
	syncOnPoll   bool
	logger       *log.Entry
}

func NewScheduler(publisher Publisher, deviceStore devices.DeviceStore, polling config.PollingConfig, syncOnPoll bool) *Scheduler {
	return &Scheduler{
		publisher:    publisher,
		deviceStore:  deviceStore,
		interval:     polling.Interval,
		startupDelay: polling.StartupDelay,
		syncOnPoll:   syncOnPoll,
		logger:       log.WithField("module", "poll-scheduler"),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	select {
	case <-time.After(s.startupDelay):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if n, err := s.Tick(ctx); err != nil {
			s.logger.WithError(err).Warn("scheduling failed")
		} else {
			s.logger.Debugf("%d triggers published", n)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// Tick publishes one round of triggers and returns how many were sent.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	list, err := s.deviceStore.ListDevices(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, d := range list {
		switch d.Kind {
		case config.DeviceKindHeating:
			if err := s.publisher.Publish(ctx, trigger.NewPoll(d.ID)); err != nil {
				return sent, err
			}
			sent++
		case config.DeviceKindMeter:
			if !s.syncOnPoll {
				continue
			}
			for _, c := range d.Channels() {
				if err := s.publisher.Publish(ctx, trigger.NewSync(d.ID, c.Name, time.Time{}, time.Time{})); err != nil {
					return sent, err
				}
				sent++
			}
		}
	}
	return sent, nil
}
