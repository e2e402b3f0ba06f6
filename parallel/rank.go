package parallel

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// Rank is one worker's handle on its group.
type Rank struct {
	g          *Group
	rank       int
	reductions int
}

// Rank returns the worker index.
func (r *Rank) Rank() int {
	return r.rank
}

// World returns the number of workers.
func (r *Rank) World() int {
	return r.g.world
}

// Coordinator reports whether this worker is the one that prints and writes.
func (r *Rank) Coordinator() bool {
	return r.rank == 0
}

// Logger returns the group logger on the coordinator and a discarding
// logger on every other worker.
func (r *Rank) Logger() *log.Logger {
	if r.Coordinator() {
		return r.g.logger
	}
	return log.New(io.Discard)
}

// Print logs msg once for the whole group.
func (r *Rank) Print(msg string, keyvals ...any) {
	if r.Coordinator() {
		r.g.logger.Info(msg, keyvals...)
	}
}

// Reductions returns the number of AllReduceMean calls this worker made.
func (r *Rank) Reductions() int {
	return r.reductions
}

// Barrier blocks until every worker has called it.
func (r *Rank) Barrier() error {
	return r.g.bar.wait()
}

// publish makes buf visible to the other workers and checks that every
// worker published a buffer of the same length.
func (r *Rank) publish(buf []float64) error {
	r.g.slots[r.rank] = buf
	if err := r.Barrier(); err != nil {
		return err
	}
	for k, s := range r.g.slots {
		if len(s) != len(buf) {
			return errors.Errorf("rank %d published %d elements, rank %d has %d", k, len(s), r.rank, len(buf))
		}
	}
	return nil
}

// AllReduceMean replaces buf on every worker with the element wise mean
// over all workers. Each worker reduces its own shard and writes the result
// to every buffer, in rank order, so all workers see identical bits.
func (r *Rank) AllReduceMean(buf []float64) error {
	r.reductions++
	if err := r.publish(buf); err != nil {
		return err
	}
	lo, hi := Shard(len(buf), r.g.world, r.rank)
	inv := 1 / float64(r.g.world)
	for i := lo; i < hi; i++ {
		var s float64
		for _, slot := range r.g.slots {
			s += slot[i]
		}
		s *= inv
		for _, slot := range r.g.slots {
			slot[i] = s
		}
	}
	return r.Barrier()
}

// AllGather copies every worker's Shard of buf to all other workers.
func (r *Rank) AllGather(buf []float64) error {
	if err := r.publish(buf); err != nil {
		return err
	}
	lo, hi := Shard(len(buf), r.g.world, r.rank)
	for k, slot := range r.g.slots {
		if k != r.rank {
			copy(slot[lo:hi], buf[lo:hi])
		}
	}
	return r.Barrier()
}

// Broadcast copies buf of worker root to every worker.
func (r *Rank) Broadcast(buf []float64, root int) error {
	if err := r.publish(buf); err != nil {
		return err
	}
	if r.rank != root {
		copy(buf, r.g.slots[root])
	}
	return r.Barrier()
}
