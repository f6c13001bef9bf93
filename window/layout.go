// Package window materializes a bounded, contiguous slice of a long and
// growing list against a scrollable viewport. Spacers above and below the
// live slots reproduce the scroll extent of the full list.
package window

import "math"

const (
	TargetCount = 15
	MaxCount    = 30
	// LoadMoreThreshold is the distance in pixels from the end of the loaded
	// content at which the next page is requested.
	LoadMoreThreshold = 100
)

// Metrics describes the grid geometry. An ItemHeight of 0 means unknown
// until a slot has been measured.
type Metrics struct {
	ItemHeight float64
	RowGap     float64
	Columns    int
	Viewport   float64
}

func (m Metrics) columns() int {
	if m.Columns < 1 {
		return 1
	}
	return m.Columns
}

func (m Metrics) RowHeight() float64 { return m.ItemHeight + m.RowGap }

// Range is an inclusive index range. A Range with End < Start is empty.
type Range struct {
	Start, End int
}

var emptyRange = Range{Start: 0, End: -1}

func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DesiredCount is the number of items to keep materialized for a list of n.
func DesiredCount(n int) int {
	return clamp(TargetCount, min(n, TargetCount), MaxCount)
}

// Compute returns the range to materialize for n items at the given scroll
// offset, centered on the row under the offset.
func Compute(n int, scroll float64, m Metrics) Range {
	if n <= 0 {
		return emptyRange
	}
	desired := DesiredCount(n)
	approxRow := 0
	if rh := m.RowHeight(); rh > 0 && scroll > 0 {
		approxRow = int(math.Floor(scroll / rh))
	}
	approxIndex := approxRow * m.columns()
	start := clamp(approxIndex-desired/2, 0, max(0, n-desired))
	end := min(n-1, start+desired-1)
	return Range{Start: start, End: end}
}

// TotalRows is the number of grid rows needed for n items.
func TotalRows(n int, m Metrics) int {
	cols := m.columns()
	return (n + cols - 1) / cols
}

// ContentHeight is the scroll extent of n items.
func ContentHeight(n int, m Metrics) float64 {
	return float64(TotalRows(n, m)) * m.RowHeight()
}

// Spacers returns the heights to place before and after the live slots.
func Spacers(n int, r Range, m Metrics) (before, after float64) {
	if r.Len() == 0 {
		return 0, ContentHeight(n, m)
	}
	cols := m.columns()
	rh := m.RowHeight()
	startRow := r.Start / cols
	endRow := r.End / cols
	before = float64(startRow) * rh
	after = float64(TotalRows(n, m)-endRow-1) * rh
	return before, after
}
