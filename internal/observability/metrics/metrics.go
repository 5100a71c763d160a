// Package metrics exposes prometheus collectors and the observability HTTP
// server (/metrics, /healthz).
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"starcast/pkg/logx"
)

var (
	BroadcastDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_deliveries_total",
		Help: "Deliveries performed by the dispatcher, by gate result.",
	}, []string{"result"})
	BroadcastSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_send_errors_total",
		Help: "Per-recipient delivery failures (blocked bot, API errors).",
	})
	UploadsAggregated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uploads_aggregated_total",
		Help: "Finalized upload batches handed to the draft flow.",
	})
	ContentPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "content_published_total",
		Help: "Content records published by operators.",
	})
	PaymentsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payments_total",
		Help: "Successful star payments settled.",
	})
	StarsRevenue = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stars_revenue_total",
		Help: "Stars collected through settled payments.",
	})
	OpenDrafts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "open_drafts",
		Help: "Draft sessions currently open.",
	})
)

// MustRegister registers all collectors on the given registerer.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		BroadcastDeliveries,
		BroadcastSendErrors,
		UploadsAggregated,
		ContentPublished,
		PaymentsTotal,
		StarsRevenue,
		OpenDrafts,
	)
}

// StartServer runs the observability HTTP server until ctx is cancelled.
func StartServer(ctx context.Context, log logx.Logger, addr string) {
	if addr == "" {
		addr = "127.0.0.1:9090"
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server shutdown failed", logx.Err(err))
		}
	}()
	go func() {
		log.Info("metrics server started", logx.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", logx.Err(err))
		}
	}()
}
