// Package app wires the bot together: transport, storage, the upload
// aggregator, draft sessions, the purchase gate and the dispatcher.
package app

import (
	"context"
	"sync"
	"time"

	"starcast/internal/config"
	"starcast/internal/observability/metrics"
	"starcast/internal/services/aggregator"
	"starcast/internal/services/dispatch"
	"starcast/internal/services/draft"
	"starcast/internal/services/stats"
	"starcast/internal/storage"
	"starcast/internal/transport"
	"starcast/internal/transport/telegram"
	"starcast/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store      storage.Store
	adapter    transport.Adapter
	aggregator *aggregator.Aggregator
	drafts     *draft.Manager
	dispatcher *dispatch.Dispatcher
	stats      *stats.Service

	updates chan transport.Update
	cfgSub  chan *config.Config

	// draftCards tracks the last draft card sent per operator so edits to
	// the draft refresh the card in place instead of stacking new ones.
	cardMu     sync.Mutex
	draftCards map[int64]transport.MessageRef

	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New loads the config and builds every component. Nothing is started yet.
func New(cfgPath string) (*App, error) {
	cfgMgr := config.NewManager(cfgPath, logx.NewConsole("info"))
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfgMgr.SetValidator(func(c *config.Config) error { return c.Validate() })

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig(cfg.Logging.File),
	})

	busy, _ := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	store, err := storage.Open(storage.Config{Path: cfg.Storage.Path, BusyTimeout: busy}, log.With(logx.String("component", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	pollTimeout, _ := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("component", "telegram")))
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	a := &App{
		cfgMgr:     cfgMgr,
		logSvc:     logSvc,
		log:        log,
		store:      store,
		adapter:    adapter,
		updates:    make(chan transport.Update, 256),
		draftCards: make(map[int64]transport.MessageRef),
	}

	debounce, _ := config.ParseDurationOrDefault("upload.debounce", cfg.Upload.Debounce, aggregator.DefaultWindow)
	a.aggregator = aggregator.New(debounce, a.onBatch, log.With(logx.String("component", "aggregator")))
	a.drafts = draft.NewManager(store, log.With(logx.String("component", "draft")))
	a.dispatcher = dispatch.New(dispatch.Config{
		RatePerSec: cfg.Broadcast.RatePerSec,
		QueueSize:  cfg.Broadcast.QueueSize,
	}, store, adapter, log.With(logx.String("component", "dispatch")))
	a.stats = stats.New(stats.Config{
		Enabled:  cfg.Stats.Enabled,
		Schedule: cfg.Stats.Schedule,
	}, store, adapter, a.adminIDs, log.With(logx.String("component", "stats")))

	return a, nil
}

func (a *App) Config() *config.Config { return a.cfgMgr.Get() }

func (a *App) adminIDs() []int64 {
	return a.cfgMgr.Get().Telegram.AdminUserIDs
}

func (a *App) isAdmin(userID int64) bool {
	return a.cfgMgr.Get().IsAdmin(userID)
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel

	a.dispatcher.Start(runCtx)
	if err := a.stats.Start(runCtx); err != nil {
		return err
	}
	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.route(runCtx)
	}()

	a.cfgSub = a.cfgMgr.Subscribe(1)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.applyConfigUpdates(runCtx)
	}()
	go func() {
		defer a.wg.Done()
		if err := a.cfgMgr.Watch(runCtx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.runCancel != nil {
		a.runCancel()
	}
	_ = a.adapter.Stop(ctx)
	a.aggregator.Stop()
	a.stats.Stop()
	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	a.dispatcher.Stop(stopCtx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	err := a.store.Close()
	a.log.Info("app stopped")
	_ = a.logSvc.Close()
	return err
}

func (a *App) applyConfigUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgSub:
			if !ok || cfg == nil {
				return
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File:    logx.FileConfig(cfg.Logging.File),
			})
			a.dispatcher.Apply(dispatch.Config{
				RatePerSec: cfg.Broadcast.RatePerSec,
				QueueSize:  cfg.Broadcast.QueueSize,
			})
			if err := a.stats.Apply(ctx, stats.Config{
				Enabled:  cfg.Stats.Enabled,
				Schedule: cfg.Stats.Schedule,
			}); err != nil {
				a.log.Warn("stats reschedule failed", logx.Err(err))
			}
			a.log.Info("runtime config applied")
		}
	}
}

// onBatch receives finalized upload batches from the aggregator and turns
// them into draft sessions. It runs on the aggregator's timer goroutine.
func (a *App) onBatch(b aggregator.Batch) {
	metrics.UploadsAggregated.Inc()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sess, replaced := a.drafts.Begin(b.OperatorID, b.ChatID, b.Assets, b.Caption)
	a.dropDraftCard(b.OperatorID)
	to := transport.DeliveryTarget{UserID: b.OperatorID, ChatID: b.ChatID}
	if replaced {
		if _, err := a.adapter.SendText(ctx, to, textDraftReplaced, nil); err != nil {
			a.log.Warn("draft notice failed", logx.Int64("operator", b.OperatorID), logx.Err(err))
		}
	}
	a.sendDraftCard(ctx, to, sess)
	metrics.OpenDrafts.Set(float64(a.drafts.OpenCount()))
}
