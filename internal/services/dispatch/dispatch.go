// Package dispatch performs the fan-out delivery of published content.
package dispatch

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"starcast/internal/domain"
	"starcast/internal/observability/metrics"
	"starcast/internal/services/gate"
	"starcast/internal/storage"
	"starcast/internal/transport"
	"starcast/pkg/logx"
)

const statusMax = 50

func New(cfg Config, store storage.Store, gateway transport.Gateway, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	return &Dispatcher{
		cfg:     cfg,
		limiter: newLimiter(cfg.RatePerSec),
		store:   store,
		gateway: gateway,
		log:     log,
		queue:   make(chan job, size),
		status:  make(map[string]*RunStatus),
	}
}

func newLimiter(rps int) *rate.Limiter {
	if rps <= 0 {
		rps = 25
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// Apply updates pacing at runtime (config hot reload).
func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	d.limiter = newLimiter(cfg.RatePerSec)
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.stopCh != nil {
		d.mu.Unlock()
		return
	}
	d.stopCh = make(chan struct{})
	d.runCtx, d.runCancel = context.WithCancel(ctx)
	stopCh := d.stopCh
	runCtx := d.runCtx
	d.mu.Unlock()

	d.workerWG.Add(1)
	go func() {
		defer d.workerWG.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("panic in dispatch worker", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		d.worker(runCtx, stopCh)
	}()
	d.log.Info("dispatcher started", logx.Int("rps", d.cfg.RatePerSec), logx.Int("queue_cap", cap(d.queue)))
}

func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	stopCh := d.stopCh
	cancel := d.runCancel
	d.stopCh = nil
	d.runCancel = nil
	d.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		d.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.log.Info("dispatcher stopped")
	case <-ctx.Done():
		d.log.Warn("dispatcher stop cancelled", logx.Err(ctx.Err()))
	}
}

// Broadcast enqueues delivery of content to every registered recipient.
// Re-enqueuing the same content resends it; callers invoke this once per
// publish.
func (d *Dispatcher) Broadcast(c *domain.Content) string {
	return d.enqueue(job{id: uuid.NewString(), kind: runBroadcast, content: c})
}

// Resync enqueues delivery of the entire active catalog to one recipient.
func (d *Dispatcher) Resync(to transport.DeliveryTarget) string {
	return d.enqueue(job{id: uuid.NewString(), kind: runResync, target: to})
}

func (d *Dispatcher) enqueue(j job) string {
	now := time.Now()
	d.pruneStatus()
	st := &RunStatus{ID: j.id, Kind: string(j.kind), CreatedAt: now}
	d.statusMu.Lock()
	d.status[j.id] = st
	d.statusMu.Unlock()

	select {
	case d.queue <- j:
		d.log.Debug("run enqueued", logx.String("run", j.id), logx.String("kind", string(j.kind)), logx.Int("queue_len", len(d.queue)))
	default:
		d.log.Warn("dispatch queue full; dropping run", logx.String("run", j.id), logx.String("kind", string(j.kind)))
		d.statusMu.Lock()
		st.DoneAt = time.Now()
		d.statusMu.Unlock()
	}
	return j.id
}

// Status returns a copy of a run's status.
func (d *Dispatcher) Status(id string) (RunStatus, bool) {
	d.statusMu.RLock()
	defer d.statusMu.RUnlock()
	st, ok := d.status[id]
	if !ok {
		return RunStatus{}, false
	}
	return *st, true
}

func (d *Dispatcher) setTotal(id string, n int) {
	d.statusMu.Lock()
	if st := d.status[id]; st != nil {
		st.Total = n
	}
	d.statusMu.Unlock()
}

func (d *Dispatcher) pruneStatus() {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	if len(d.status) < statusMax {
		return
	}
	var oldestID string
	var oldest time.Time
	for id, st := range d.status {
		if st.Running {
			continue
		}
		if oldestID == "" || st.CreatedAt.Before(oldest) {
			oldestID, oldest = id, st.CreatedAt
		}
	}
	if oldestID != "" {
		delete(d.status, oldestID)
	}
}

func (d *Dispatcher) worker(ctx context.Context, stopCh <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case j := <-d.queue:
			d.execute(ctx, j)
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, j job) {
	start := time.Now()
	d.statusMu.Lock()
	if st := d.status[j.id]; st != nil {
		st.Running = true
		st.StartedAt = start
	}
	d.statusMu.Unlock()

	switch j.kind {
	case runBroadcast:
		d.runBroadcastJob(ctx, j)
	case runResync:
		d.runResyncJob(ctx, j)
	}

	d.statusMu.Lock()
	st := d.status[j.id]
	if st != nil {
		st.Running = false
		st.DoneAt = time.Now()
	}
	var cp RunStatus
	if st != nil {
		cp = *st
	}
	d.statusMu.Unlock()

	fields := []logx.Field{
		logx.String("run", j.id),
		logx.String("kind", string(j.kind)),
		logx.Int("total", cp.Total),
		logx.Int("failed", cp.Failed),
		logx.Int("locked", cp.Locked),
		logx.Duration("dur", time.Since(start)),
	}
	if cp.Failed > 0 {
		d.log.Warn("run finished with failures", fields...)
	} else {
		d.log.Info("run finished", fields...)
	}
}

// runBroadcastJob delivers one content record to all recipients in
// registration order. A failure for one recipient never aborts the rest.
func (d *Dispatcher) runBroadcastJob(ctx context.Context, j job) {
	ids, err := d.store.ListRecipients(ctx)
	if err != nil {
		d.log.Error("broadcast: listing recipients failed", logx.String("run", j.id), logx.Err(err))
		return
	}
	d.setTotal(j.id, len(ids))
	d.log.Info("broadcast started",
		logx.String("run", j.id),
		logx.Int64("content", j.content.ID),
		logx.Int("recipients", len(ids)))

	for _, userID := range ids {
		if ctx.Err() != nil {
			return
		}
		to := transport.DeliveryTarget{UserID: userID, ChatID: userID}
		d.deliverPaced(ctx, j.id, j.content, to)
	}
}

// runResyncJob replays the whole active catalog to one recipient, applying
// the same pacing and failure isolation per item.
func (d *Dispatcher) runResyncJob(ctx context.Context, j job) {
	catalog, err := d.store.ListActiveContent(ctx)
	if err != nil {
		d.log.Error("resync: listing catalog failed", logx.String("run", j.id), logx.Err(err))
		return
	}
	d.setTotal(j.id, len(catalog))
	d.log.Info("resync started",
		logx.String("run", j.id),
		logx.Int64("user", j.target.UserID),
		logx.Int("items", len(catalog)))

	for i := range catalog {
		if ctx.Err() != nil {
			return
		}
		d.deliverPaced(ctx, j.id, &catalog[i], j.target)
	}
}

func (d *Dispatcher) deliverPaced(ctx context.Context, runID string, c *domain.Content, to transport.DeliveryTarget) {
	d.mu.Lock()
	lim := d.limiter
	d.mu.Unlock()
	if err := lim.Wait(ctx); err != nil {
		return
	}

	act, err := d.DeliverTo(ctx, c, to)
	d.statusMu.Lock()
	if st := d.status[runID]; st != nil {
		st.Done++
		if err != nil {
			st.Failed++
		} else if act == gate.DeliverLockedPreview {
			st.Locked++
		}
	}
	d.statusMu.Unlock()

	if err != nil {
		// Blocked bots and transient API errors land here; the recipient
		// simply receives nothing this run.
		metrics.BroadcastSendErrors.Inc()
		d.log.Warn("delivery failed",
			logx.String("run", runID),
			logx.Int64("user", to.UserID),
			logx.Int64("content", c.ID),
			logx.Err(err))
		return
	}
	metrics.BroadcastDeliveries.WithLabelValues(act.String()).Inc()
}
