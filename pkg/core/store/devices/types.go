package devices

import (
	"context"
	"fmt"
	"sort"
	"time"
)

type DeviceStore interface {
	GetDeviceByID(ctx context.Context, id string) (*Device, error)
	CreateDevice(ctx context.Context, id string, data map[string]interface{}) error
	UpsertDevice(ctx context.Context, id string, updated time.Time, updates map[string]interface{}) error
	ListDevices(ctx context.Context) ([]*Device, error)
	ListDevicesByKind(ctx context.Context, kind string) ([]*Device, error)
}

const (
	StatusOnline               = "online"
	StatusOfflineConfiguration = "offline:configuration"
	StatusOfflineCommunication = "offline:communication"
)

// Device is a registry entry. Data holds the nested document as stored:
// bindings, status, and the last projected channel state under "state".
type Device struct {
	ID     string                 `json:"id"`
	Kind   string                 `json:"kind"`
	Status string                 `json:"status,omitempty"`
	Data   map[string]interface{} `json:"data"`
}

// ChannelBinding maps a channel of a meter device to a provider resource.
type ChannelBinding struct {
	Name       string `json:"name"`
	ResourceID string `json:"resourceId"`
	Item       string `json:"item,omitempty"`
}

// SeriesKey is the time-series key samples of the channel are stored under:
// the configured item name, or <device>/<channel> when there is none.
func (b ChannelBinding) SeriesKey(deviceID string) string {
	if b.Item != "" {
		return b.Item
	}
	return deviceID + "/" + b.Name
}

func newDevice(id string, data map[string]interface{}) *Device {
	d := &Device{ID: id, Data: data}
	d.Kind = d.Field("kind")
	d.Status = d.Field("status")
	return d
}

// Field returns a top level value as text, or "" when missing.
func (d *Device) Field(key string) string {
	v, ok := d.Data[key]
	if !ok || v == nil {
		return ""
	}
	return stringValue(v)
}

func (d *Device) Channels() []ChannelBinding {
	raw, ok := d.Data["channels"].(map[string]interface{})
	if !ok {
		return nil
	}
	channels := make([]ChannelBinding, 0, len(raw))
	for name, v := range raw {
		fields, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		b := ChannelBinding{Name: name}
		if r, ok := fields["resourceId"]; ok {
			b.ResourceID = stringValue(r)
		}
		if i, ok := fields["item"]; ok {
			b.Item = stringValue(i)
		}
		channels = append(channels, b)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].Name < channels[j].Name })
	return channels
}

func (d *Device) Channel(name string) (ChannelBinding, bool) {
	for _, b := range d.Channels() {
		if b.Name == name {
			return b, true
		}
	}
	return ChannelBinding{}, false
}

// State returns the last projected channel values of a heating device.
func (d *Device) State() map[string]interface{} {
	state, ok := d.Data["state"].(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return state
}

// SetStatus records the outcome of the last provider interaction.
func SetStatus(ctx context.Context, store DeviceStore, id, status, detail string) error {
	return store.UpsertDevice(ctx, id, time.Now(), map[string]interface{}{
		"status":       status,
		"statusDetail": detail,
	})
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", v)
	}
}
