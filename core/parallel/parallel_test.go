package parallel

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestParallelizeCoversEveryItem(t *testing.T) {
	const n = 1000
	var hits [n]int32
	Parallelize(n, 1, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
	})
	for i, h := range hits {
		if h != 1 {
			t.Fatalf("item %d visited %d times", i, h)
		}
	}
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	calls := 0
	ParallelizeWithThreshold(10, 100, func(start, end int) {
		calls++
		if start != 0 || end != 10 {
			t.Errorf("range = [%d,%d), want [0,10)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestParallelizeMinChunk(t *testing.T) {
	var mu sync.Mutex
	var ranges [][2]int
	ParallelizeWithThreshold(250, 100, func(start, end int) {
		mu.Lock()
		ranges = append(ranges, [2]int{start, end})
		mu.Unlock()
	})
	covered := 0
	for _, r := range ranges {
		covered += r[1] - r[0]
	}
	if covered != 250 {
		t.Errorf("ranges %v cover %d items, want 250", ranges, covered)
	}
	// 250 items with at least 100 per range allow three ranges at most.
	if len(ranges) > 3 {
		t.Errorf("got %d ranges, want at most 3: %v", len(ranges), ranges)
	}
	for _, r := range ranges {
		if r[1]-r[0] < 100 && r[1] != 250 {
			t.Errorf("range %v is shorter than the minimum chunk", r)
		}
	}
}

func TestMapPreservesOrder(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		n       int
	}{
		{"single worker", 1, 7},
		{"more workers than items", 16, 5},
		{"default workers", 0, 50},
		{"empty", 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Map(context.Background(), tt.workers, tt.n, func(_ context.Context, i int) (int, error) {
				return i * i, nil
			})
			if err != nil {
				t.Fatal(err)
			}
			want := make([]int, tt.n)
			for i := range want {
				want[i] = i * i
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Map() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMapFirstErrorWins(t *testing.T) {
	_, err := Map(context.Background(), 2, 10, func(_ context.Context, i int) (int, error) {
		if i == 3 {
			return 0, errors.ErrEmptyData
		}
		return i, nil
	})
	if !errors.Is(err, errors.ErrEmptyData) {
		t.Errorf("Map() error = %v, want ErrEmptyData", err)
	}
}

func TestMapRecoversPanic(t *testing.T) {
	_, err := Map(context.Background(), 2, 4, func(_ context.Context, i int) (int, error) {
		if i == 2 {
			panic("boom")
		}
		return i, nil
	})
	var panicErr *errors.PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Map() error = %v, want *PanicError", err)
	}
}

func TestMapCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Map(ctx, 2, 4, func(_ context.Context, i int) (int, error) { return i, nil })
	if err == nil {
		t.Error("Map() on cancelled context should fail")
	}
}
