package devices

import (
	"context"
	"time"

	"com.qubular.energy-bridge/pkg/config"
)

// Register writes the bindings of a configured device, leaving its status
// and state untouched.
func Register(ctx context.Context, store DeviceStore, cfg config.DeviceConfig) error {
	updates := map[string]interface{}{
		"kind": cfg.Kind,
	}
	if cfg.Kind == config.DeviceKindHeating {
		updates["installationId"] = cfg.InstallationID
		updates["gatewaySerial"] = cfg.GatewaySerial
		updates["deviceId"] = cfg.DeviceID
	}
	if len(cfg.Channels) > 0 {
		channels := make(map[string]interface{}, len(cfg.Channels))
		for _, c := range cfg.Channels {
			channels[c.Name] = map[string]interface{}{
				"resourceId": c.ResourceID,
				"item":       c.Item,
			}
		}
		updates["channels"] = channels
	}
	return store.UpsertDevice(ctx, cfg.ID, time.Now(), updates)
}
