package backfill

import (
	"context"
	"fmt"
	"time"

	"com.qubular.energy-bridge/pkg/core/store/historical"
	"com.qubular.energy-bridge/pkg/provider"
	"github.com/apex/log"
	"github.com/google/uuid"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
)

// Granularity is the bucket size every backfill is fetched at. It is the
// finest the provider offers, whatever the caller displays.
const Granularity = provider.PT30M

// Result describes one synchronization run.
type Result struct {
	Run      string   `json:"run"`
	Window   Window   `json:"window"`
	Coverage Coverage `json:"coverage"`
	Gaps     []Gap    `json:"gaps"`
	Progress Progress `json:"progress"`
}

// Synchronizer runs backfills. It keeps no state between runs and may be
// shared by concurrent runs for different series.
type Synchronizer struct {
	source   SampleSource
	store    historical.TimeSeriesStore
	executor *Executor
	logger   *log.Entry
}

func NewSynchronizer(source SampleSource, store historical.TimeSeriesStore) *Synchronizer {
	return &Synchronizer{
		source:   source,
		store:    store,
		executor: NewExecutor(source, store),
		logger:   log.WithField("module", "backfill"),
	}
}

// Sync fills whatever part of window is missing locally for series. It stops
// at the first failing fetch or write and returns the progress made so far
// together with the error.
func (s *Synchronizer) Sync(ctx context.Context, series Series, window Window) (Result, error) {
	startTime := time.Now()
	result := Result{
		Run:    uuid.NewString(),
		Window: window,
	}
	logger := s.logger.WithFields(log.Fields{
		"run":      result.Run,
		"series":   series.Key,
		"resource": series.ResourceID,
	})

	err := s.run(ctx, logger, series, &result)

	outcome := "ok"
	if err != nil {
		outcome = "failed"
		if result.Progress.Chunks > 0 {
			outcome = "partial"
		}
	}
	mctx, tagErr := tag.New(ctx, tag.Insert(KeyOutcome, outcome))
	if tagErr != nil {
		logger.Errorf("err creating metric tags %v", tagErr)
		mctx = ctx
	}
	stats.Record(mctx, MRuns.M(1), MRunLatencyMs.M(sinceInMilliseconds(startTime)))

	if err != nil {
		logger.WithError(err).Warnf("sync %s %s after %d chunks", window, outcome, result.Progress.Chunks)
		return result, err
	}
	logger.Infof("sync %s done: %d gaps, %d chunks, %d samples written",
		window, len(result.Gaps), result.Progress.Chunks, result.Progress.Written)
	return result, nil
}

func (s *Synchronizer) run(ctx context.Context, logger *log.Entry, series Series, result *Result) error {
	coverage, err := InspectCoverage(ctx, s.store, series.Key, result.Window)
	if err != nil {
		return fmt.Errorf("inspect coverage: %w", err)
	}
	result.Coverage = coverage
	result.Gaps = PlanGaps(result.Window, coverage)
	if len(result.Gaps) == 0 {
		logger.Debugf("window %s already covered", result.Window)
		return nil
	}

	for _, gap := range result.Gaps {
		bounds, err := s.resolveBounds(ctx, series)
		if err != nil {
			return err
		}
		progress, err := s.executor.Execute(ctx, series, gap, bounds, Granularity)
		result.Progress.add(progress)
		if err != nil {
			return err
		}
	}
	return nil
}

// resolveBounds asks the provider for its current data range. Bounds move as
// the provider ingests readings, so they are never reused across runs.
func (s *Synchronizer) resolveBounds(ctx context.Context, series Series) (provider.Bounds, error) {
	bounds, err := s.source.Bounds(ctx, series.ResourceID)
	if err != nil {
		return provider.Bounds{}, fmt.Errorf("resolve bounds for %s: %w", series.ResourceID, err)
	}
	return bounds, nil
}
