package historical

import (
	"context"
	"time"
)

// TimeSeriesStore persists numeric samples per series key.
// WriteSample is an upsert keyed by the sample timestamp, so writing the same
// sample twice leaves a single entry.
type TimeSeriesStore interface {
	WriteSample(ctx context.Context, seriesKey string, sample Sample) error
	// QuerySamples returns samples with start <= Time <= end in ascending order.
	QuerySamples(ctx context.Context, seriesKey string, start time.Time, end time.Time) ([]Sample, error)
}

type Sample struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}
