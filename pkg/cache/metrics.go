package cache

import (
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	MHits = stats.Int64("cache/hits", "Responses served from cache", stats.UnitDimensionless)

	MMisses = stats.Int64("cache/misses", "Responses fetched from the producer", stats.UnitDimensionless)
)

var KeyCache, _ = tag.NewKey("cache")

var Views = []*view.View{
	{
		Name:        "cache/hits",
		Measure:     MHits,
		Description: "Cache hits",
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{KeyCache},
	},
	{
		Name:        "cache/misses",
		Measure:     MMisses,
		Description: "Cache misses",
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{KeyCache},
	},
}
