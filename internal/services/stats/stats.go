// Package stats sends operators a scheduled summary of the catalog and
// ledger, and renders the same summary for the /stats command.
package stats

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"starcast/internal/domain"
	"starcast/internal/storage"
	"starcast/internal/transport"
	"starcast/pkg/logx"
)

const DefaultSchedule = "0 9 * * *"

type Config struct {
	Enabled  bool
	Schedule string
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	store   storage.Store
	gateway transport.Gateway
	log     logx.Logger
	admins  func() []int64

	cron  *cron.Cron
	entry cron.EntryID
}

// New creates the stats digest service. admins is read per tick so config
// reloads take effect without a restart.
func New(cfg Config, store storage.Store, gateway transport.Gateway, admins func() []int64, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, store: store, gateway: gateway, admins: admins, log: log}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.cron != nil {
		return nil
	}
	spec := strings.TrimSpace(s.cfg.Schedule)
	if spec == "" {
		spec = DefaultSchedule
	}
	c := cron.New()
	id, err := c.AddFunc(spec, func() { s.tick(ctx) })
	if err != nil {
		return fmt.Errorf("stats schedule %q: %w", spec, err)
	}
	s.cron = c
	s.entry = id
	c.Start()
	s.log.Info("stats digest scheduled", logx.String("spec", spec))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Apply reschedules the digest on config change.
func (s *Service) Apply(ctx context.Context, cfg Config) error {
	s.Stop()
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return s.Start(ctx)
}

func (s *Service) tick(ctx context.Context) {
	text, err := s.Render(ctx)
	if err != nil {
		s.log.Error("stats digest failed", logx.Err(err))
		return
	}
	for _, id := range s.admins() {
		to := transport.DeliveryTarget{UserID: id, ChatID: id}
		if _, err := s.gateway.SendText(ctx, to, text, nil); err != nil {
			s.log.Warn("stats digest delivery failed", logx.Int64("admin", id), logx.Err(err))
		}
	}
}

// Render produces the stats text shared by the cron digest and /stats.
func (s *Service) Render(ctx context.Context) (string, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return "", err
	}
	return RenderStats(st), nil
}

func RenderStats(st domain.Stats) string {
	return fmt.Sprintf(
		"📊 Channel stats\n\n👥 Recipients: %d\n📺 Active content: %d\n💫 Purchases: %d\n⭐ Stars revenue: %d",
		st.Recipients, st.ActiveContent, st.Purchases, st.StarsRevenue)
}
