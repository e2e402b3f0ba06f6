package parallel

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
)

func TestShardCovers(t *testing.T) {
	for _, n := range []int{0, 1, 7, 8, 100} {
		for world := 1; world <= 5; world++ {
			next := 0
			for rank := 0; rank < world; rank++ {
				lo, hi := Shard(n, world, rank)
				if lo != next || hi < lo {
					t.Fatalf("n %d world %d rank %d: [%d, %d) after %d", n, world, rank, lo, hi, next)
				}
				next = hi
			}
			if next != n {
				t.Fatalf("n %d world %d covers %d", n, world, next)
			}
		}
	}
}

func TestCollectives(t *testing.T) {
	g, err := NewGroup(3, nil)
	if err != nil {
		t.Fatal(err)
	}
	err = g.Run(context.Background(), func(ctx context.Context, r *Rank) error {
		buf := make([]float64, 10)
		for i := range buf {
			buf[i] = float64(r.Rank() * 3)
		}
		if err := r.AllReduceMean(buf); err != nil {
			return err
		}
		for _, v := range buf {
			if v != 3 {
				return errors.Errorf("rank %d mean %v", r.Rank(), buf)
			}
		}
		lo, hi := Shard(len(buf), r.World(), r.Rank())
		for i := lo; i < hi; i++ {
			buf[i] = float64(i)
		}
		if err := r.AllGather(buf); err != nil {
			return err
		}
		for i, v := range buf {
			if v != float64(i) {
				return errors.Errorf("rank %d gathered %v", r.Rank(), buf)
			}
		}
		if r.Rank() == 2 {
			buf[0] = 42
		}
		if err := r.Broadcast(buf, 2); err != nil {
			return err
		}
		if buf[0] != 42 {
			return errors.Errorf("rank %d broadcast %v", r.Rank(), buf)
		}
		return r.Barrier()
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestFailingWorkerAbortsGroup(t *testing.T) {
	g, _ := NewGroup(4, nil)
	boom := errors.New("boom")
	var aborted atomic.Int32
	err := g.Run(context.Background(), func(ctx context.Context, r *Rank) error {
		if r.Rank() == 1 {
			return boom
		}
		for {
			if err := r.Barrier(); err != nil {
				aborted.Add(1)
				return err
			}
		}
	})
	if err != boom {
		t.Errorf("group returned %v, want the worker error", err)
	}
	if aborted.Load() != 3 {
		t.Errorf("%d workers saw the abort, want 3", aborted.Load())
	}
}

func TestFingerprint(t *testing.T) {
	a := make([]float64, 40000)
	for i := range a {
		a[i] = float64(i) * 0.5
	}
	if Fingerprint(a, 1) != Fingerprint(a, 8) {
		t.Errorf("fingerprint depends on concurrency")
	}
	b := append([]float64(nil), a...)
	b[39999] = -b[39999]
	if Fingerprint(a, 4) == Fingerprint(b, 4) {
		t.Errorf("fingerprint ignores the last element")
	}
}
