package devices

import (
	"context"
	"strings"
	"time"

	"github.com/jeremywohl/flatten"
	"github.com/nqd/flat"
	bolt "go.etcd.io/bbolt"
)

// deviceLocalStore saves device data locally on filesystem, one bucket per
// device holding path-style flattened keys.
type deviceLocalStore struct {
	db *bolt.DB
}

const deviceBucketPrefix = "device_"

func NewDeviceLocalStore(db *bolt.DB) DeviceStore {
	return &deviceLocalStore{
		db: db,
	}
}

func (s *deviceLocalStore) GetDeviceByID(ctx context.Context, id string) (*Device, error) {
	var device *Device
	err := s.db.View(func(tx *bolt.Tx) error {
		buck := tx.Bucket([]byte(deviceBucketPrefix + id))
		if buck == nil {
			return nil
		}
		var err error
		device, err = readDevice(id, buck)
		return err
	})
	return device, err
}

func readDevice(id string, buck *bolt.Bucket) (*Device, error) {
	data := make(map[string]interface{})
	cur := buck.Cursor()
	for k, v := cur.First(); k != nil; k, v = cur.Next() {
		data[string(k)] = string(v)
	}

	nestedData, err := flat.Unflatten(data, &flat.Options{
		Delimiter: "/",
	})
	if err != nil {
		return nil, err
	}
	return newDevice(id, nestedData), nil
}

func (s *deviceLocalStore) CreateDevice(ctx context.Context, id string, data map[string]interface{}) error {
	return s.UpsertDevice(ctx, id, time.Now(), data)
}

func (s *deviceLocalStore) UpsertDevice(ctx context.Context, id string, updated time.Time, updates map[string]interface{}) error {
	flattenData, err := flatten.Flatten(updates, "", flatten.PathStyle)
	if err != nil {
		return err
	}
	flattenData["updated"] = updated

	return s.db.Update(func(tx *bolt.Tx) error {
		name := []byte(deviceBucketPrefix + id)
		buck := tx.Bucket(name)
		if buck == nil {
			var err error
			buck, err = tx.CreateBucket(name)
			if err != nil {
				return err
			}
			flattenData["created"] = time.Now()
			flattenData["deviceID"] = id
		}

		for k, v := range flattenData {
			if err := buck.Put([]byte(k), []byte(stringValue(v))); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *deviceLocalStore) ListDevices(ctx context.Context) ([]*Device, error) {
	return s.list(func(*Device) bool { return true })
}

func (s *deviceLocalStore) ListDevicesByKind(ctx context.Context, kind string) ([]*Device, error) {
	return s.list(func(d *Device) bool { return d.Kind == kind })
}

func (s *deviceLocalStore) list(keep func(*Device) bool) ([]*Device, error) {
	devices := make([]*Device, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, buck *bolt.Bucket) error {
			if !strings.HasPrefix(string(name), deviceBucketPrefix) {
				return nil
			}
			id := strings.TrimPrefix(string(name), deviceBucketPrefix)
			device, err := readDevice(id, buck)
			if err != nil {
				return err
			}
			if keep(device) {
				devices = append(devices, device)
			}
			return nil
		})
	})
	return devices, err
}
