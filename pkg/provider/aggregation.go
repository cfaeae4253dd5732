package provider

import (
	"fmt"
	"time"
)

// Granularity is the bucket size the provider aggregates readings into.
// Values are the ISO-8601 period strings the provider expects on the wire.
type Granularity string

const (
	PT30M Granularity = "PT30M"
	PT1H  Granularity = "PT1H"
	P1D   Granularity = "P1D"
	P1W   Granularity = "P1W"
	P1M   Granularity = "P1M"
	P1Y   Granularity = "P1Y"
)

const day = 24 * time.Hour

// maxSpans is the widest window the provider accepts in one readings query
// for each granularity.
var maxSpans = map[Granularity]time.Duration{
	PT30M: 10 * day,
	PT1H:  31 * day,
	P1D:   31 * day,
	P1W:   6 * 7 * day,
	P1M:   366 * day,
	P1Y:   366 * day,
}

// MaxSpan returns the maximum query window for g. Unknown granularities
// return zero.
func (g Granularity) MaxSpan() time.Duration {
	return maxSpans[g]
}

func (g Granularity) Valid() bool {
	_, ok := maxSpans[g]
	return ok
}

func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(s)
	if !g.Valid() {
		return "", fmt.Errorf("unknown granularity %q", s)
	}
	return g, nil
}

// Reduction is the function the provider applies inside each bucket.
type Reduction string

const (
	ReductionSum Reduction = "sum"
	ReductionAvg Reduction = "avg"
	ReductionMin Reduction = "min"
	ReductionMax Reduction = "max"
)

// Bounds is the provider's declared data range for one resource.
type Bounds struct {
	FirstAvailable time.Time `json:"firstAvailable"`
	LastAvailable  time.Time `json:"lastAvailable"`
}
