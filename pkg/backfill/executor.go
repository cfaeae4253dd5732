package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"com.qubular.energy-bridge/pkg/core/store/historical"
	"com.qubular.energy-bridge/pkg/provider"
	"github.com/apex/log"
	"go.opencensus.io/stats"
)

// SampleSource is the remote side of a backfill.
type SampleSource interface {
	Bounds(ctx context.Context, resourceID string) (provider.Bounds, error)
	Samples(ctx context.Context, resourceID string, start, end time.Time, granularity provider.Granularity, reduction provider.Reduction) ([]historical.Sample, error)
}

// Series pairs the local storage key with the remote resource it mirrors.
type Series struct {
	Key        string `json:"key"`
	ResourceID string `json:"resourceID"`
}

// Progress counts the work done for one gap or one run.
type Progress struct {
	Chunks  int `json:"chunks"`
	Written int `json:"written"`
}

func (p *Progress) add(o Progress) {
	p.Chunks += o.Chunks
	p.Written += o.Written
}

// Clamp narrows gap to the provider's data range. It returns
// provider.ErrDataUnavailable when nothing of the gap is available.
func Clamp(gap Gap, bounds provider.Bounds) (Window, error) {
	w := Window{Start: gap.Start, End: gap.End}
	if bounds.FirstAvailable.After(w.Start) {
		w.Start = bounds.FirstAvailable
	}
	if bounds.LastAvailable.Before(w.End) {
		w.End = bounds.LastAvailable
	}
	if !w.Start.Before(w.End) {
		return w, provider.ErrDataUnavailable
	}
	return w, nil
}

// Chunks splits w into consecutive windows of at most step.
func Chunks(w Window, step time.Duration) []Window {
	if step <= 0 {
		return nil
	}
	chunks := make([]Window, 0)
	for t := w.Start; t.Before(w.End); {
		t2 := t.Add(step)
		if t2.After(w.End) {
			t2 = w.End
		}
		chunks = append(chunks, Window{Start: t, End: t2})
		t = t2
	}
	return chunks
}

type Executor struct {
	source SampleSource
	store  historical.TimeSeriesStore
	logger *log.Entry
}

func NewExecutor(source SampleSource, store historical.TimeSeriesStore) *Executor {
	return &Executor{
		source: source,
		store:  store,
		logger: log.WithField("module", "backfill-executor"),
	}
}

// Execute fetches gap chunk by chunk and writes each returned sample. Chunks
// that completed before a failure stay written.
func (e *Executor) Execute(ctx context.Context, series Series, gap Gap, bounds provider.Bounds, granularity provider.Granularity) (Progress, error) {
	var progress Progress
	logger := e.logger.WithFields(log.Fields{
		"series":   series.Key,
		"resource": series.ResourceID,
		"gap":      gap.Kind.String(),
	})

	fetch, err := Clamp(gap, bounds)
	if errors.Is(err, provider.ErrDataUnavailable) {
		logger.Debugf("%s outside provider bounds %s..%s", gap, bounds.FirstAvailable, bounds.LastAvailable)
		return progress, nil
	}

	step := granularity.MaxSpan()
	if step <= 0 {
		return progress, fmt.Errorf("no max span for granularity %q", granularity)
	}

	for _, chunk := range Chunks(fetch, step) {
		if err := ctx.Err(); err != nil {
			return progress, err
		}

		samples, err := e.source.Samples(ctx, series.ResourceID, chunk.Start, chunk.End, granularity, provider.ReductionSum)
		if err != nil {
			return progress, fmt.Errorf("fetch %s: %w", chunk, err)
		}
		progress.Chunks++
		stats.Record(ctx, MChunks.M(1))

		written := 0
		for _, s := range samples {
			if !gap.Contains(s.Time) {
				continue
			}
			if err := e.store.WriteSample(ctx, series.Key, s); err != nil {
				progress.Written += written
				stats.Record(ctx, MSamples.M(int64(written)))
				return progress, fmt.Errorf("write %s sample at %s: %w", series.Key, s.Time.Format(time.RFC3339), err)
			}
			written++
		}
		progress.Written += written
		stats.Record(ctx, MSamples.M(int64(written)))
		logger.Debugf("chunk %s: %d readings, %d written", chunk, len(samples), written)
	}

	return progress, nil
}
