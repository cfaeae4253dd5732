package historical

import (
	"context"
	"io"
	"sort"
	"strconv"
	"time"

	"gocloud.dev/docstore"
)

type historicalDocStore struct {
	coll *docstore.Collection
}

type sampleDoc struct {
	ID     string  `docstore:"id"`
	Series string  `docstore:"series"`
	TS     int64   `docstore:"ts"`
	Value  float64 `docstore:"value"`
}

// NewHistoricalDocStore create a historical store using a gocloud.dev/docstore collection.
// The collection must be keyed by the "id" field.
func NewHistoricalDocStore(coll *docstore.Collection) TimeSeriesStore {
	return &historicalDocStore{
		coll: coll,
	}
}

func sampleDocID(seriesKey string, t time.Time) string {
	return seriesKey + "@" + strconv.FormatInt(t.UnixNano(), 10)
}

func (s *historicalDocStore) WriteSample(ctx context.Context, seriesKey string, sample Sample) error {
	doc := &sampleDoc{
		ID:     sampleDocID(seriesKey, sample.Time),
		Series: seriesKey,
		TS:     sample.Time.UnixNano(),
		Value:  sample.Value,
	}
	return s.coll.Put(ctx, doc)
}

func (s *historicalDocStore) QuerySamples(ctx context.Context, seriesKey string, start time.Time, end time.Time) ([]Sample, error) {
	iter := s.coll.
		Query().
		Where("series", "=", seriesKey).
		Where("ts", ">=", start.UnixNano()).
		Where("ts", "<=", end.UnixNano()).
		Get(ctx)

	defer iter.Stop()

	samples := make([]Sample, 0)
	for {
		var doc sampleDoc
		err := iter.Next(ctx, &doc)
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		samples = append(samples, Sample{
			Time:  time.Unix(0, doc.TS).UTC(),
			Value: doc.Value,
		})
	}

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Time.Before(samples[j].Time)
	})
	return samples, nil
}
