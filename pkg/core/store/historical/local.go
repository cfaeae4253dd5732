package historical

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
)

type localTimeSeriesStore struct {
	db *bolt.DB
}

type storedValue struct {
	Value   float64 `cbor:"1,keyasint"`
	Written int64   `cbor:"2,keyasint"`
}

func NewTimeSeriesLocalStore(db *bolt.DB) TimeSeriesStore {
	return &localTimeSeriesStore{
		db: db,
	}
}

func getBucketName(seriesKey string) []byte {
	return []byte(fmt.Sprintf("history_%s", seriesKey))
}

// signBit flips signed nanos into an order-preserving unsigned key.
const signBit = 1 << 63

// timeKey encodes t as big-endian unix nanos, sign bit flipped, so cursor
// order is time order on both sides of 1970.
func timeKey(t time.Time) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(t.UnixNano())^signBit)
	return k
}

func (s *localTimeSeriesStore) WriteSample(ctx context.Context, seriesKey string, sample Sample) error {
	value, err := cbor.Marshal(storedValue{
		Value:   sample.Value,
		Written: time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		buck, err := tx.CreateBucketIfNotExists(getBucketName(seriesKey))
		if err != nil {
			return err
		}
		return buck.Put(timeKey(sample.Time), value)
	})
}

func (s *localTimeSeriesStore) QuerySamples(ctx context.Context, seriesKey string, start time.Time, end time.Time) ([]Sample, error) {
	samples := make([]Sample, 0)

	err := s.db.View(func(tx *bolt.Tx) error {
		buck := tx.Bucket(getBucketName(seriesKey))
		if buck == nil {
			return nil
		}

		min := timeKey(start)
		max := timeKey(end)
		c := buck.Cursor()
		for k, v := c.Seek(min); k != nil && bytes.Compare(k, max) <= 0; k, v = c.Next() {
			var stored storedValue
			if err := cbor.Unmarshal(v, &stored); err != nil {
				continue
			}
			samples = append(samples, Sample{
				Time:  keyTime(k),
				Value: stored.Value,
			})
		}
		return nil
	})

	return samples, err
}

func keyTime(k []byte) time.Time {
	return time.Unix(0, int64(binary.BigEndian.Uint64(k)^signBit)).UTC()
}
