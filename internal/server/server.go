// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/matthewbaird/rentledger/internal/activity"
	"github.com/matthewbaird/rentledger/internal/handler"
	"github.com/matthewbaird/rentledger/internal/ledger"
	"github.com/matthewbaird/rentledger/internal/metrics"
)

// Config holds server configuration.
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration

	Ledger   *ledger.Service
	Activity activity.Store
	// Stream serves the live event WebSocket. Optional.
	Stream http.Handler
	// Metrics is optional; without it /metrics is not mounted.
	Metrics *metrics.Metrics
	// Health reports database reachability for /healthz.
	Health func(ctx context.Context) error
	Logger *zap.Logger
}

// NewRouter registers every route on a chi router.
func NewRouter(cfg Config) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(log, cfg.Metrics))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if cfg.Health != nil {
			if err := cfg.Health(r.Context()); err != nil {
				log.Warn("health check failed", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}
	// The WebSocket outlives any request timeout.
	if cfg.Stream != nil {
		r.Handle("/v1/events/ws", cfg.Stream)
	}

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}

		// --- Leases ---
		lh := handler.NewLedgerHandler(cfg.Ledger)
		r.Post("/v1/leases", lh.CreateLease)
		r.Route("/v1/leases/{id}", func(r chi.Router) {
			r.Get("/", lh.GetLease)
			r.Get("/ledger", lh.GetLedger)
			r.Get("/invoices", lh.ListInvoices)
			r.Get("/financial-records", lh.ListFinancialRecords)
			r.Get("/audit", lh.AuditLease)
			r.Post("/advance-rent", lh.CollectAdvanceRent)
			r.Post("/advance-rent/apply", lh.RetroactiveApply)
			r.Post("/deposits", lh.RecordDeposit)
			r.Post("/terminate", lh.TerminateLease)
			r.Post("/refunds", lh.ComputeRefund)
		})

		// --- Invoices ---
		r.Post("/v1/invoices", lh.CreateInvoice)
		r.Route("/v1/invoices/{id}", func(r chi.Router) {
			r.Get("/", lh.GetInvoice)
			r.Post("/allocate", lh.AllocateAdvanceRent)
			r.Post("/payments", lh.RecordPayment)
			r.Post("/void", lh.VoidInvoice)
			r.Post("/submissions", lh.SubmitPayment)
			r.Get("/submissions", lh.ListSubmissions)
		})

		// --- Submissions ---
		r.Get("/v1/submissions/{id}", lh.GetSubmission)
		r.Post("/v1/submissions/{id}/confirm", lh.ConfirmSubmission)
		r.Post("/v1/submissions/{id}/reject", lh.RejectSubmission)

		// --- Refunds ---
		r.Get("/v1/refunds/{id}", lh.GetRefund)
		r.Post("/v1/refunds/{id}/process", lh.ProcessRefund)
		r.Post("/v1/refunds/{id}/cancel", lh.CancelRefund)

		// --- Maintenance ---
		r.Post("/v1/maintenance/repair-deposits", lh.RepairDeposits)
		r.Post("/v1/maintenance/mark-overdue", lh.MarkOverdue)

		// --- Activity ---
		if cfg.Activity != nil {
			ah := handler.NewActivityHandler(cfg.Activity)
			r.Get("/v1/activity/entity/{entity_type}/{entity_id}", ah.HandleGetEntityActivity)
			r.Post("/v1/activity/search", ah.HandleSearchActivity)
		}
	})

	return r
}

// accessLog logs each request and feeds the HTTP metrics, labelled by the
// matched route pattern rather than the raw path.
func accessLog(log *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			if m != nil {
				m.ObserveHTTP(r.Method, route, status, elapsed)
			}
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", elapsed),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// Run starts the HTTP server and shuts it down gracefully when ctx is done.
func Run(ctx context.Context, cfg Config) error {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewRouter(cfg),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
