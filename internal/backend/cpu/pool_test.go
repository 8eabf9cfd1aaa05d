package cpu

import (
	"sync/atomic"
	"testing"
)

func TestSplitRows(t *testing.T) {
	tests := []struct {
		height, workers int
		want            int
	}{
		{100, 4, 4},
		{10, 4, 4},
		{3, 8, 3},
		{7, 0, 1},
	}
	for _, tt := range tests {
		bands := splitRows(tt.height, tt.workers)
		if len(bands) != tt.want {
			t.Errorf("splitRows(%d,%d) = %d bands, want %d", tt.height, tt.workers, len(bands), tt.want)
		}
		next := 0
		for _, b := range bands {
			if b.y0 != next || b.y1 <= b.y0 {
				t.Fatalf("splitRows(%d,%d) band %+v not contiguous", tt.height, tt.workers, b)
			}
			next = b.y1
		}
		if next != tt.height {
			t.Errorf("splitRows(%d,%d) covers %d rows", tt.height, tt.workers, next)
		}
	}
}

func TestRowPoolCoversEveryRowOnce(t *testing.T) {
	p := newRowPool(4)
	defer p.close()
	const height = 257
	for pass := 0; pass < 5; pass++ {
		var hits [height]int32
		p.run(height, func(y0, y1 int) {
			for y := y0; y < y1; y++ {
				atomic.AddInt32(&hits[y], 1)
			}
		})
		for y, n := range hits {
			if n != 1 {
				t.Fatalf("pass %d row %d visited %d times", pass, y, n)
			}
		}
	}
}
