// Package backfill keeps a local time-series store in step with a remote
// provider that serves readings in bounded windows.
//
// A run inspects what is already stored for the desired window, plans the
// leading and trailing gaps, clamps each gap to the provider's declared data
// range and fetches it in chunks no wider than the provider accepts. Every
// chunk is persisted before the next is fetched, so an interrupted run keeps
// its progress and the next run only plans what is still missing.
package backfill

import (
	"fmt"
	"time"
)

// Window is the half-open span [Start, End) a caller wants covered.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Coverage is the earliest and latest stored sample inside a window.
type Coverage struct {
	Empty    bool
	Earliest time.Time
	Latest   time.Time
}

// NoCoverage is the coverage of a series with nothing stored in the window.
var NoCoverage = Coverage{Empty: true}

type GapKind int

const (
	GapFull GapKind = iota
	GapLeading
	GapTrailing
)

func (k GapKind) String() string {
	switch k {
	case GapFull:
		return "full"
	case GapLeading:
		return "leading"
	case GapTrailing:
		return "trailing"
	}
	return "unknown"
}

// Gap is a span with no stored samples. Start is always before End.
type Gap struct {
	Start time.Time
	End   time.Time
	Kind  GapKind
}

// Contains reports whether a sample stamped t belongs to the gap. A trailing
// gap starts at the latest stored sample, which is already persisted.
func (g Gap) Contains(t time.Time) bool {
	if t.Before(g.Start) || !t.Before(g.End) {
		return false
	}
	if g.Kind == GapTrailing && t.Equal(g.Start) {
		return false
	}
	return true
}

func (g Gap) String() string {
	return fmt.Sprintf("%s gap [%s, %s)", g.Kind, g.Start.Format(time.RFC3339), g.End.Format(time.RFC3339))
}

// PlanGaps returns the spans of window not represented by coverage: at most a
// leading gap before the earliest stored sample and a trailing gap after the
// latest one.
func PlanGaps(window Window, coverage Coverage) []Gap {
	if !window.Start.Before(window.End) {
		return nil
	}
	if coverage.Empty {
		return []Gap{{Start: window.Start, End: window.End, Kind: GapFull}}
	}

	gaps := make([]Gap, 0, 2)
	if window.Start.Before(coverage.Earliest) {
		gaps = append(gaps, Gap{
			Start: window.Start,
			End:   minTime(coverage.Earliest, window.End),
			Kind:  GapLeading,
		})
	}
	if window.End.After(coverage.Latest) {
		gaps = append(gaps, Gap{
			Start: maxTime(coverage.Latest, window.Start),
			End:   window.End,
			Kind:  GapTrailing,
		})
	}
	return gaps
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
