package backfill

import (
	"context"

	"com.qubular.energy-bridge/pkg/core/store/historical"
)

// InspectCoverage reduces the samples stored for seriesKey inside window to
// their earliest and latest timestamps.
func InspectCoverage(ctx context.Context, store historical.TimeSeriesStore, seriesKey string, window Window) (Coverage, error) {
	samples, err := store.QuerySamples(ctx, seriesKey, window.Start, window.End)
	if err != nil {
		return Coverage{}, err
	}
	if len(samples) == 0 {
		return NoCoverage, nil
	}

	coverage := Coverage{Earliest: samples[0].Time, Latest: samples[0].Time}
	for _, s := range samples[1:] {
		if s.Time.Before(coverage.Earliest) {
			coverage.Earliest = s.Time
		}
		if s.Time.After(coverage.Latest) {
			coverage.Latest = s.Time
		}
	}
	return coverage, nil
}
