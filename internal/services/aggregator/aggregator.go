// Package aggregator reassembles album uploads. The platform delivers each
// file of an album as its own message sharing a batch id; the aggregator
// buffers them and emits one batch once the burst goes quiet.
package aggregator

import (
	"sync"
	"time"

	"starcast/internal/domain"
	"starcast/pkg/logx"
)

const DefaultWindow = 500 * time.Millisecond

// Batch is one finalized upload: a single file, or every file of an album
// in arrival order.
type Batch struct {
	OperatorID int64
	ChatID     int64
	Assets     []domain.Asset
	Caption    string // first non-empty caption seen in the burst
}

// Sink receives finalized batches. It is called from the debounce timer
// goroutine and must not block for long.
type Sink func(b Batch)

type pending struct {
	batch Batch
	timer *time.Timer
	// gen increments on every debounce restart. A timer that fired before
	// the restart carries a stale gen and must not finalize the batch.
	gen uint64
}

// Aggregator owns all in-flight batches and their debounce timers in a
// single map; entries for different batch ids never block each other beyond
// the map lock itself.
type Aggregator struct {
	mu      sync.Mutex
	window  time.Duration
	sink    Sink
	log     logx.Logger
	pending map[string]*pending
	stopped bool
}

func New(window time.Duration, sink Sink, log logx.Logger) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Aggregator{
		window:  window,
		sink:    sink,
		log:     log,
		pending: make(map[string]*pending),
	}
}

// Add records one received file. An empty batchID means a standalone upload,
// forwarded immediately as a one-item batch. Otherwise the file joins its
// batch and the batch's debounce timer restarts: the batch finalizes only
// after a full quiet window.
func (a *Aggregator) Add(batchID string, operatorID, chatID int64, asset domain.Asset, caption string) {
	if batchID == "" {
		a.sink(Batch{
			OperatorID: operatorID,
			ChatID:     chatID,
			Assets:     []domain.Asset{asset},
			Caption:    caption,
		})
		return
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	p, ok := a.pending[batchID]
	if !ok {
		p = &pending{batch: Batch{OperatorID: operatorID, ChatID: chatID}}
		a.pending[batchID] = p
	}
	p.batch.Assets = append(p.batch.Assets, asset)
	if p.batch.Caption == "" {
		p.batch.Caption = caption
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.gen++
	gen := p.gen
	p.timer = time.AfterFunc(a.window, func() { a.finalize(batchID, gen) })
	n := len(p.batch.Assets)
	a.mu.Unlock()

	a.log.Debug("file buffered", logx.String("batch", batchID), logx.Int("collected", n))
}

func (a *Aggregator) finalize(batchID string, gen uint64) {
	a.mu.Lock()
	p, ok := a.pending[batchID]
	if !ok || p.gen != gen {
		// Timer fired against an already-finalized batch, or it expired
		// concurrently with an Add that restarted the window (Stop cannot
		// cancel an in-flight firing). Either way the batch is not ours.
		a.mu.Unlock()
		return
	}
	delete(a.pending, batchID)
	a.mu.Unlock()

	if len(p.batch.Assets) == 0 {
		return
	}
	a.log.Debug("batch finalized", logx.String("batch", batchID), logx.Int("assets", len(p.batch.Assets)))
	a.sink(p.batch)
}

// PendingCount reports in-flight batches (for tests and stats).
func (a *Aggregator) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Stop cancels all pending timers and drops buffered files. Batches in
// flight at shutdown are lost, the operator simply re-sends the album.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	for id, p := range a.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(a.pending, id)
	}
}
