package backfill

import (
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	MChunks = stats.Int64("backfill/chunks", "Number of chunk fetches completed", stats.UnitDimensionless)

	MSamples = stats.Int64("backfill/samples", "Number of samples written", stats.UnitDimensionless)

	MRuns = stats.Int64("backfill/runs", "Number of synchronization runs", stats.UnitDimensionless)

	MRunLatencyMs = stats.Float64("backfill/run_latency", "Duration of a synchronization run", "ms")
)

var (
	KeyOutcome, _ = tag.NewKey("outcome")
)

var (
	ChunksView = &view.View{
		Name:        "backfill/chunks",
		Measure:     MChunks,
		Description: "Chunk fetches",
		Aggregation: view.Sum(),
	}

	SamplesView = &view.View{
		Name:        "backfill/samples",
		Measure:     MSamples,
		Description: "Samples written",
		Aggregation: view.Sum(),
	}

	RunsView = &view.View{
		Name:        "backfill/runs",
		Measure:     MRuns,
		Description: "Runs by outcome",
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{KeyOutcome},
	}

	RunLatencyView = &view.View{
		Name:        "backfill/run_latency",
		Measure:     MRunLatencyMs,
		Description: "The distribution of run durations",
		Aggregation: view.Distribution(0, 100, 500, 1000, 5000, 10000, 30000, 60000, 300000),
		TagKeys:     []tag.Key{KeyOutcome},
	}
)

// Views are registered by the metrics exporter.
var Views = []*view.View{ChunksView, SamplesView, RunsView, RunLatencyView}

func sinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}
