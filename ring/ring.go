/*
Package ring hands sample blocks over between the goroutine that drives a
graph and a worker goroutine.

Graph callbacks must not block, so nodes of this package only use the
non-blocking side of the ring: TryAcquire on the producer side and
TryNext on the consumer side. Blocking calls (Reserve, Acquire, Wait,
Next) are made by workers and drivers between scheduling passes. All
slots are allocated by New, channels are buffered to the ring size, so
no call allocates or waits for the other side.
*/
package ring

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrEmpty is returned when no committed slot is available.
var ErrEmpty = errors.New("ring is empty")

// Ring is a fixed set of sample slots. Producer methods (Reserve,
// Acquire, TryAcquire, Commit, Close) must not be called concurrently
// with each other, same for consumer methods (Wait, Next, TryNext,
// Release). Producer and consumer run on different goroutines.
type Ring struct {
	slots [][]float64
	free  chan int
	full  chan int
	once  sync.Once

	// producer side.
	reserved int
	// consumer side.
	peeked int
	ended  bool
}

// New returns ring of size slots, every slot holds blockSize samples.
func New(size, blockSize int) *Ring {
	r := &Ring{
		slots:    make([][]float64, size),
		free:     make(chan int, size),
		full:     make(chan int, size),
		reserved: -1,
		peeked:   -1,
	}
	for i := range r.slots {
		r.slots[i] = make([]float64, blockSize)
		r.free <- i
	}
	return r
}

// Size returns number of slots.
func (r *Ring) Size() int {
	return len(r.slots)
}

// BlockSize returns number of samples in a full slot.
func (r *Ring) BlockSize() int {
	if len(r.slots) == 0 {
		return 0
	}
	return cap(r.slots[0])
}

// Reserve blocks until a free slot is held for the next acquire.
func (r *Ring) Reserve(ctx context.Context) error {
	if r.reserved >= 0 {
		return nil
	}
	select {
	case i := <-r.free:
		r.reserved = i
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Acquire blocks until a free slot is available. Slot is returned at
// full length.
func (r *Ring) Acquire(ctx context.Context) (int, []float64, error) {
	if err := r.Reserve(ctx); err != nil {
		return 0, nil, err
	}
	i, slot, _ := r.TryAcquire()
	return i, slot, nil
}

// TryAcquire returns reserved or free slot. False is returned if all
// slots are in use.
func (r *Ring) TryAcquire() (int, []float64, bool) {
	i := r.reserved
	if i >= 0 {
		r.reserved = -1
	} else {
		select {
		case i = <-r.free:
		default:
			return 0, nil, false
		}
	}
	slot := r.slots[i]
	return i, slot[:cap(slot)], true
}

// Commit hands the first n samples of acquired slot to the consumer.
func (r *Ring) Commit(i, n int) {
	r.slots[i] = r.slots[i][:n]
	r.full <- i
}

// Close tells consumer that nothing else is committed. Slots committed
// before Close are still delivered.
func (r *Ring) Close() {
	r.once.Do(func() { close(r.full) })
}

// Wait blocks until a committed slot is available or the ring is closed
// and drained.
func (r *Ring) Wait(ctx context.Context) error {
	if r.peeked >= 0 || r.ended {
		return nil
	}
	select {
	case i, ok := <-r.full:
		if !ok {
			r.ended = true
			return nil
		}
		r.peeked = i
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryNext returns the next committed slot. ErrEmpty is returned if
// nothing is committed yet and io.EOF when the ring is closed and
// drained.
func (r *Ring) TryNext() (int, []float64, error) {
	if r.ended {
		return 0, nil, io.EOF
	}
	i := r.peeked
	if i >= 0 {
		r.peeked = -1
	} else {
		select {
		case j, ok := <-r.full:
			if !ok {
				r.ended = true
				return 0, nil, io.EOF
			}
			i = j
		default:
			return 0, nil, ErrEmpty
		}
	}
	return i, r.slots[i], nil
}

// Next blocks until the next committed slot is available.
func (r *Ring) Next(ctx context.Context) (int, []float64, error) {
	if err := r.Wait(ctx); err != nil {
		return 0, nil, err
	}
	return r.TryNext()
}

// Release returns consumed slot to the producer.
func (r *Ring) Release(i int) {
	r.free <- i
}
