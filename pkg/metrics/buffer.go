package metrics

import (
	"sync/atomic"
	"time"

	"github.com/mfreeman451/clientradar/pkg/models"
)

// QueryBuffer is a lock-free ring buffer of query samples.
type QueryBuffer struct {
	slots []atomic.Pointer[models.QuerySample]
	pos   atomic.Int64 // next write position
	size  int64
}

// NewQueryBuffer creates a QueryBuffer with the specified size.
func NewQueryBuffer(size int) *QueryBuffer {
	if size <= 0 {
		size = 1
	}

	return &QueryBuffer{
		slots: make([]atomic.Pointer[models.QuerySample], size),
		size:  int64(size),
	}
}

// Observe records a sample, overwriting the oldest once full.
func (b *QueryBuffer) Observe(name string, d time.Duration, at time.Time) {
	pos := b.pos.Add(1) - 1
	idx := pos % b.size

	b.slots[idx].Store(&models.QuerySample{Name: name, Duration: d, At: at})

	QueryDuration.WithLabelValues(name).Observe(d.Seconds())
}

// Samples returns the recorded samples, newest first.
func (b *QueryBuffer) Samples() []models.QuerySample {
	pos := b.pos.Load()
	n := b.lenAt(pos)

	out := make([]models.QuerySample, 0, n)

	for i := int64(0); i < n; i++ {
		idx := (pos - i - 1 + b.size) % b.size

		if s := b.slots[idx].Load(); s != nil {
			out = append(out, *s)
		}
	}

	return out
}

// Len is the number of samples currently held.
func (b *QueryBuffer) Len() int {
	return int(b.lenAt(b.pos.Load()))
}

func (b *QueryBuffer) lenAt(pos int64) int64 {
	if pos < b.size {
		return pos
	}

	return b.size
}
