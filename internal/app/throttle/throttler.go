// Package throttle buffers locally gathered ICE candidates and releases them
// in bounded batches so the signaling channel is never flooded.
package throttle

import (
	"sync"

	"github.com/dkeye/VoiceCall/internal/domain"
)

const DefaultBatchSize = 5

// Batch is what one Drain call releases. CallID is never empty when
// Candidates is non-empty.
type Batch struct {
	CallID     domain.CallID
	Candidates []domain.Candidate
}

func (b Batch) Empty() bool { return len(b.Candidates) == 0 }

type Throttler struct {
	mu        sync.Mutex
	queue     []domain.Candidate
	callID    domain.CallID
	batchSize int
	ready     chan struct{}
}

func New(batchSize int) *Throttler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Throttler{
		batchSize: batchSize,
		ready:     make(chan struct{}, 1),
	}
}

// Enqueue appends c unconditionally.
func (t *Throttler) Enqueue(c domain.Candidate) {
	t.mu.Lock()
	t.queue = append(t.queue, c)
	t.mu.Unlock()
	t.signal()
}

// Requeue puts a batch that failed to transmit back at the head of the queue,
// provided it still belongs to the bound call.
func (t *Throttler) Requeue(b Batch) {
	if b.Empty() {
		return
	}
	t.mu.Lock()
	if b.CallID != t.callID {
		t.mu.Unlock()
		return
	}
	q := make([]domain.Candidate, 0, len(b.Candidates)+len(t.queue))
	q = append(q, b.Candidates...)
	t.queue = append(q, t.queue...)
	t.mu.Unlock()
	t.signal()
}

// Bind keys the queue to id. Candidates held so far become drainable.
func (t *Throttler) Bind(id domain.CallID) {
	t.mu.Lock()
	t.callID = id
	t.mu.Unlock()
	t.signal()
}

func (t *Throttler) CallID() domain.CallID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.callID
}

// Drain removes and returns up to batchSize candidates in enqueue order.
// While no call id is bound it returns an empty batch and keeps the queue.
func (t *Throttler) Drain() Batch {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.callID == "" || len(t.queue) == 0 {
		return Batch{CallID: t.callID}
	}
	n := min(t.batchSize, len(t.queue))
	out := make([]domain.Candidate, n)
	copy(out, t.queue[:n])
	t.queue = t.queue[n:]
	if len(t.queue) > 0 {
		t.signalLocked()
	}
	return Batch{CallID: t.callID, Candidates: out}
}

// Reset drops every held candidate and unbinds the call id.
func (t *Throttler) Reset() {
	t.mu.Lock()
	t.queue = nil
	t.callID = ""
	t.mu.Unlock()
}

func (t *Throttler) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

func (t *Throttler) BatchSize() int { return t.batchSize }

// Ready fires when a Drain may return something.
func (t *Throttler) Ready() <-chan struct{} { return t.ready }

func (t *Throttler) signal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.signalLocked()
}

func (t *Throttler) signalLocked() {
	if t.callID == "" || len(t.queue) == 0 {
		return
	}
	select {
	case t.ready <- struct{}{}:
	default:
	}
}
