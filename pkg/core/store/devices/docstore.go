package devices

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/apex/log"
	"gocloud.dev/docstore"
	"gocloud.dev/gcerrors"
)

type deviceDocStore struct {
	devicesColl *docstore.Collection
	logger      *log.Entry
}

// NewDeviceDocStore create a device store using a gocloud.dev/docstore
// collection keyed by "deviceID".
func NewDeviceDocStore(devicesColl *docstore.Collection) DeviceStore {
	return &deviceDocStore{
		devicesColl: devicesColl,
		logger:      log.WithField("module", "device-docstore"),
	}
}

func (s *deviceDocStore) GetDeviceByID(ctx context.Context, id string) (*Device, error) {
	deviceDoc := make(map[string]interface{})
	deviceDoc["deviceID"] = id
	err := s.devicesColl.Get(ctx, deviceDoc)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, nil
		}
		return nil, err
	}
	return newDevice(id, deviceDoc), nil
}

func (s *deviceDocStore) CreateDevice(ctx context.Context, id string, data map[string]interface{}) error {
	data["created"] = time.Now()
	data["deviceID"] = id
	return s.devicesColl.Create(ctx, data)
}

func (s *deviceDocStore) UpsertDevice(ctx context.Context, id string, updated time.Time, updates map[string]interface{}) error {
	device, err := s.GetDeviceByID(ctx, id)
	if err != nil {
		return err
	}

	if device == nil {
		doc := make(map[string]interface{}, len(updates)+1)
		for k, v := range updates {
			doc[k] = v
		}
		doc["updated"] = updated
		err = s.CreateDevice(ctx, id, doc)
		if err == nil {
			return nil
		}
		if gcerrors.Code(err) != gcerrors.AlreadyExists {
			return err
		}
		// created concurrently, merge into it instead
		if device, err = s.GetDeviceByID(ctx, id); err != nil {
			return err
		}
		if device == nil {
			return fmt.Errorf("device %s vanished during upsert", id)
		}
	}

	mods := docstore.Mods{"updated": updated}
	mergeMods(mods, "", device.Data, updates)

	doc := map[string]interface{}{"deviceID": id}
	if err := s.devicesColl.Actions().Update(doc, mods).Do(ctx); err != nil {
		s.logger.Errorf("err update device %s: %v", id, err)
		return err
	}
	return nil
}

// mergeMods descends into nested updates only where the stored document
// already holds a map at that path; anything else is set whole, so no mod
// ever targets a field below a missing parent.
func mergeMods(mods docstore.Mods, prefix string, stored, updates map[string]interface{}) {
	for k, v := range updates {
		path := prefix + k
		nested, isMap := v.(map[string]interface{})
		current, hasMap := stored[k].(map[string]interface{})
		if isMap && hasMap {
			mergeMods(mods, path+".", current, nested)
			continue
		}
		mods[docstore.FieldPath(path)] = v
	}
}

func (s *deviceDocStore) ListDevices(ctx context.Context) ([]*Device, error) {
	return s.collect(ctx, s.devicesColl.Query())
}

func (s *deviceDocStore) ListDevicesByKind(ctx context.Context, kind string) ([]*Device, error) {
	return s.collect(ctx, s.devicesColl.Query().Where(docstore.FieldPath("kind"), "=", kind))
}

func (s *deviceDocStore) collect(ctx context.Context, q *docstore.Query) ([]*Device, error) {
	iter := q.Get(ctx)
	defer iter.Stop()

	devices := make([]*Device, 0)
	for {
		doc := make(map[string]interface{})
		err := iter.Next(ctx, doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		id, _ := doc["deviceID"].(string)
		devices = append(devices, newDevice(id, doc))
	}
	return devices, nil
}
