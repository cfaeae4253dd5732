package coap

import (
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	MLatencyMs = stats.Float64("gateway/coap/latency", "The latency in milliseconds per request", "ms")

	MRequests = stats.Int64("gateway/coap/requests", "Number of requests", "By")

	MTriggers = stats.Int64("gateway/coap/triggers", "Number of triggers published", "1")
)

var (
	LatencyView = &view.View{
		Name:        "gateway/coap/latency",
		Measure:     MLatencyMs,
		Description: "The distribution of the latencies",

		Aggregation: view.Distribution(0, 25, 50, 75, 100, 200, 400, 600, 800, 1000, 2000, 4000, 6000),
		TagKeys:     []tag.Key{KeyMethod},
	}

	RequestsCountView = &view.View{
		Name:        "gateway/coap/requests",
		Measure:     MRequests,
		Description: "Number of requests",
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{KeyMethod, KeyStatus},
	}

	TriggersView = &view.View{
		Name:        "gateway/coap/triggers",
		Measure:     MTriggers,
		Description: "Triggers published by kind",
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{KeyKind},
	}
)

var (
	KeyMethod, _ = tag.NewKey("method")
	KeyStatus, _ = tag.NewKey("status")
	KeyKind, _   = tag.NewKey("kind")
)

var Views = []*view.View{LatencyView, RequestsCountView, TriggersView}

func sinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}
