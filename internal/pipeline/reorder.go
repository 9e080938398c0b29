package pipeline

import (
	"context"
	"sync"

	"github.com/b00ls0ck3t/Polyglot/internal/models"
	"github.com/b00ls0ck3t/Polyglot/internal/observability/metrics"
)

// reorderWindow releases speech units in strict sequence order. Units
// completing out of order are held until the contiguous prefix before
// them has been sent.
type reorderWindow struct {
	mu      sync.Mutex
	pending map[uint64]models.SpeechUnit
	next    uint64
	out     chan models.SpeechUnit
	metrics *metrics.Metrics
}

func newReorderWindow(out chan models.SpeechUnit) *reorderWindow {
	return &reorderWindow{
		pending: make(map[uint64]models.SpeechUnit),
		out:     out,
		metrics: metrics.DefaultMetrics,
	}
}

// add registers a completed unit and sends every unit that is now
// contiguous with the release point. The send blocks when the consumer
// is slow; that backpressure is intentional.
func (w *reorderWindow) add(ctx context.Context, unit models.SpeechUnit) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[unit.Seq] = unit
	for {
		u, ok := w.pending[w.next]
		if !ok {
			break
		}
		select {
		case w.out <- u:
		case <-ctx.Done():
			return ctx.Err()
		}
		delete(w.pending, w.next)
		w.next++
		w.metrics.RecordUnitEmitted()
	}
	w.metrics.ReorderPending.Set(float64(len(w.pending)))
	return nil
}
