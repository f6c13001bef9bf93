package window

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var grid = Metrics{ItemHeight: 220, RowGap: 20, Columns: 3, Viewport: 800}

func TestDesiredCount(t *testing.T) {
	for n, want := range map[int]int{0: 15, 5: 15, 15: 15, 200: 15} {
		require.Equal(t, want, DesiredCount(n), "n=%d", n)
	}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name   string
		n      int
		scroll float64
		want   Range
	}{
		{"empty", 0, 0, Range{0, -1}},
		{"top", 200, 0, Range{0, 14}},
		{"middle", 200, 3000, Range{29, 43}},
		{"bottom clamps to end", 200, 1e6, Range{185, 199}},
		{"short list", 10, 500, Range{0, 9}},
		{"exactly desired", 15, 2000, Range{0, 14}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Compute(tt.n, tt.scroll, grid)
			require.Equal(t, tt.want, r)
			require.LessOrEqual(t, r.Len(), MaxCount)
		})
	}
}

func TestCompute_UnknownHeightStartsAtTop(t *testing.T) {
	m := Metrics{Columns: 3}
	require.Equal(t, Range{0, 14}, Compute(200, 5000, m))
}

func TestSpacers(t *testing.T) {
	before, after := Spacers(200, Range{29, 43}, grid)
	require.Equal(t, 9*240.0, before)
	require.Equal(t, (67-14-1)*240.0, after)

	before, after = Spacers(200, Range{0, 14}, grid)
	require.Zero(t, before)
	require.Equal(t, (67-4-1)*240.0, after)

	before, after = Spacers(200, Range{185, 199}, grid)
	require.Equal(t, 61*240.0, before)
	require.Zero(t, after)

	rng := Range{29, 43}
	before, after = Spacers(200, rng, grid)
	live := float64(rng.End/3-rng.Start/3+1) * grid.RowHeight()
	require.Equal(t, ContentHeight(200, grid), before+live+after)
}

func TestTotalRows(t *testing.T) {
	require.Equal(t, 67, TotalRows(200, grid))
	require.Equal(t, 0, TotalRows(0, grid))
	require.Equal(t, 7, TotalRows(7, Metrics{}))
}
