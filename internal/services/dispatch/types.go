package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"starcast/internal/domain"
	"starcast/internal/storage"
	"starcast/internal/transport"
	"starcast/pkg/logx"
)

type Config struct {
	RatePerSec int
	QueueSize  int
}

type runKind string

const (
	runBroadcast runKind = "broadcast"
	runResync    runKind = "resync"
)

type job struct {
	id      string
	kind    runKind
	content *domain.Content         // broadcast
	target  transport.DeliveryTarget // resync
}

// RunStatus tracks one broadcast or resync run.
type RunStatus struct {
	ID        string
	Kind      string
	Total     int
	Done      int
	Failed    int
	Locked    int
	CreatedAt time.Time
	StartedAt time.Time
	DoneAt    time.Time
	Running   bool
}

// Dispatcher fans published content out to recipients (broadcast) and the
// current catalog out to one recipient (resync). A single worker drains the
// queue so deliveries to one recipient keep their issue order; pacing uses a
// shared rate limiter.
type Dispatcher struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	store   storage.Store
	gateway transport.Gateway
	log     logx.Logger

	queue  chan job
	stopCh chan struct{}

	statusMu sync.RWMutex
	status   map[string]*RunStatus

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}
