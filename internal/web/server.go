package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/options_alert_bot/internal/domain"
	"github.com/vitos/options_alert_bot/internal/infrastructure/marketdata"
	"github.com/vitos/options_alert_bot/internal/usecase"
)

// Server is the JSON control surface of the bot: manual sweep trigger,
// entry recording, trade and summary queries, and the Schwab OAuth
// helper endpoints. The recorder, schwab client and streamer may be nil
// when the corresponding feature is disabled.
type Server struct {
	router   *http.ServeMux
	server   *http.Server
	sweeper  *usecase.SymbolSweeper
	ledger   *usecase.Ledger
	monitor  *usecase.TradeMonitor
	notifier domain.Notifier
	calendar domain.Calendar
	recorder domain.EventRecorder
	schwab   *marketdata.SchwabClient
	stream   *marketdata.Streamer
	logger   *zap.Logger
	now      func() time.Time
}

func NewServer(
	port int,
	sweeper *usecase.SymbolSweeper,
	ledger *usecase.Ledger,
	monitor *usecase.TradeMonitor,
	notifier domain.Notifier,
	calendar domain.Calendar,
	recorder domain.EventRecorder,
	schwab *marketdata.SchwabClient,
	stream *marketdata.Streamer,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:   http.NewServeMux(),
		sweeper:  sweeper,
		ledger:   ledger,
		monitor:  monitor,
		notifier: notifier,
		calendar: calendar,
		recorder: recorder,
		schwab:   schwab,
		stream:   stream,
		logger:   logger,
		now:      time.Now,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Landing / liveness
	s.router.HandleFunc("GET /", s.handleIndex)
	s.router.HandleFunc("GET /health", s.handleHealth)

	// Sweep and trades
	s.router.HandleFunc("POST /api/sweep", s.handleSweep)
	s.router.HandleFunc("POST /api/trades/{id}/entry", s.handleRecordEntry)
	s.router.HandleFunc("GET /api/trades", s.handleTrades)
	s.router.HandleFunc("GET /api/summary", s.handleSummary)

	// Status and audit
	s.router.HandleFunc("GET /api/status", s.handleStatus)
	s.router.HandleFunc("GET /api/alerts", s.handleAlerts)
	s.router.HandleFunc("POST /api/test-alert", s.handleTestAlert)
	s.router.HandleFunc("GET /daily-report", s.handleDailyReport)

	// Schwab OAuth helpers
	s.router.HandleFunc("GET /schwab/auth-url", s.handleSchwabAuthURL)
	s.router.HandleFunc("POST /schwab/token", s.handleSchwabToken)
	s.router.HandleFunc("GET /schwab/status", s.handleSchwabStatus)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
