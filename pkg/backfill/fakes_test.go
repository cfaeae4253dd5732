package backfill

import (
	"context"
	"sort"
	"sync"
	"time"

	"com.qubular.energy-bridge/pkg/core/store/historical"
	"com.qubular.energy-bridge/pkg/provider"
)

const halfHour = 30 * time.Minute

const day = 24 * time.Hour

// fakeSource serves one reading per half hour inside its bounds.
type fakeSource struct {
	mu        sync.Mutex
	bounds    provider.Bounds
	boundsErr error
	calls     []Window
	failOn    int
	failErr   error
	onFetch   func(call int)
}

func (f *fakeSource) Bounds(ctx context.Context, resourceID string) (provider.Bounds, error) {
	if f.boundsErr != nil {
		return provider.Bounds{}, f.boundsErr
	}
	return f.bounds, nil
}

func (f *fakeSource) Samples(ctx context.Context, resourceID string, start, end time.Time, granularity provider.Granularity, reduction provider.Reduction) ([]historical.Sample, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Window{Start: start, End: end})
	call := len(f.calls)
	f.mu.Unlock()

	if f.onFetch != nil {
		f.onFetch(call)
	}
	if f.failOn == call {
		return nil, f.failErr
	}

	samples := make([]historical.Sample, 0)
	t := start.Truncate(halfHour)
	if t.Before(start) {
		t = t.Add(halfHour)
	}
	for ; t.Before(end); t = t.Add(halfHour) {
		if t.Before(f.bounds.FirstAvailable) || !t.Before(f.bounds.LastAvailable) {
			continue
		}
		samples = append(samples, historical.Sample{Time: t, Value: 0.5})
	}
	return samples, nil
}

func (f *fakeSource) fetches() []Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Window(nil), f.calls...)
}

// memoryStore is an in-memory TimeSeriesStore that counts writes.
type memoryStore struct {
	mu      sync.Mutex
	series  map[string]map[int64]float64
	writes  int
	failErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{series: make(map[string]map[int64]float64)}
}

func (m *memoryStore) WriteSample(ctx context.Context, seriesKey string, sample historical.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	if m.series[seriesKey] == nil {
		m.series[seriesKey] = make(map[int64]float64)
	}
	m.series[seriesKey][sample.Time.UnixNano()] = sample.Value
	m.writes++
	return nil
}

func (m *memoryStore) QuerySamples(ctx context.Context, seriesKey string, start time.Time, end time.Time) ([]historical.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	samples := make([]historical.Sample, 0)
	for ts, v := range m.series[seriesKey] {
		t := time.Unix(0, ts).UTC()
		if t.Before(start) || t.After(end) {
			continue
		}
		samples = append(samples, historical.Sample{Time: t, Value: v})
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Time.Before(samples[j].Time) })
	return samples, nil
}

func (m *memoryStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *memoryStore) count(seriesKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.series[seriesKey])
}
