package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/vitos/options_alert_bot/internal/domain"
	"github.com/vitos/options_alert_bot/internal/usecase"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "options-alert-bot",
		"status":  "Bot is live and running.",
		"time":    s.now(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"market_open":     s.calendar.IsOpen(s.now()),
		"monitor_running": s.monitor.Running(),
		"open_trades":     len(s.ledger.ActiveTrades()),
	})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	result, err := s.sweeper.Sweep(r.Context(), force)
	if err != nil {
		s.logger.Error("Sweep failed", zap.Error(err))
		http.Error(w, "Sweep failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRecordEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body struct {
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if body.Price <= 0 {
		http.Error(w, "price must be positive", http.StatusBadRequest)
		return
	}

	trade, entered, err := s.monitor.Enter(r.Context(), id, body.Price)
	switch {
	case errors.Is(err, domain.ErrTradeNotFound):
		http.Error(w, "Trade not found", http.StatusNotFound)
		return
	case errors.Is(err, domain.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		s.logger.Error("Entry failed", zap.String("trade_id", id), zap.Error(err))
		http.Error(w, "Entry failed", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entered": entered,
		"trade":   trade,
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades := s.ledger.ActiveTrades()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(trades),
		"trades": trades,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = parsed
	}
	s.writeJSON(w, http.StatusOK, s.ledger.Summary(days))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := s.now()

	status := map[string]interface{}{
		"market":          s.calendar.Status(now),
		"monitor_running": s.monitor.Running(),
		"open_trades":     len(s.ledger.ActiveTrades()),
		"monitoring":      len(s.ledger.MonitoringTrades()),
		"symbols":         len(s.sweeper.Symbols()),
	}
	status["stream_connected"] = s.stream != nil && s.stream.Connected()
	if s.schwab != nil {
		status["schwab"] = s.schwab.AuthStatus()
	}

	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		http.Error(w, "Event recorder disabled", http.StatusServiceUnavailable)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	alerts, err := s.recorder.ListAlerts(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list alerts", zap.Error(err))
		http.Error(w, "Failed to list alerts", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

// handleTestAlert pushes a fully formatted setup alert with canned AAPL
// numbers through the real notifier, so the operator can verify the
// Telegram path end to end.
func (s *Server) handleTestAlert(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	snap := &domain.IndicatorSnapshot{
		Symbol:         "AAPL",
		Price:          211.77,
		MovingAverages: map[int]float64{21: 209.40, 50: 205.88},
		TrendState: map[string]domain.Trend{
			domain.TrendPairFast: domain.TrendBullish,
			domain.TrendPairSlow: domain.TrendBullish,
		},
		RelativeVolume: 1.25,
		Pivots:         domain.PivotLevels{R1: 216.01, S1: 207.53},
		Timestamp:      now,
	}
	trade := &domain.Trade{
		ID:              domain.SetupID("AAPL", domain.StyleDay, now),
		Symbol:          "AAPL",
		Style:           domain.StyleDay,
		Status:          domain.StatusSetupReady,
		SetupTime:       now,
		Reason:          "Test alert - connectivity check",
		ConfluenceScore: 75,
		EntrySnapshot:   snap,
		EstimatedEntry:  snap.Price * 0.03,
	}

	sent := s.notifier.Send(r.Context(), usecase.BuildSetupAlert(trade, 1.3))
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"sent":   sent,
	})
}

func (s *Server) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	report := usecase.BuildDailyReport(
		s.calendar.Status(now),
		len(s.sweeper.Symbols()),
		s.ledger.Summary(1),
		s.ledger.Summary(7),
		now,
	)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":   now.Format("2006-01-02"),
		"report": report,
	})
}

func (s *Server) handleSchwabAuthURL(w http.ResponseWriter, r *http.Request) {
	if s.schwab == nil {
		http.Error(w, "Schwab client disabled", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"auth_url": s.schwab.AuthURL(),
		"instructions": []string{
			"1. Open auth_url in a browser and authorize the app",
			"2. After authorization you are redirected to the registered callback",
			"3. Copy the 'code' parameter from the callback URL",
			"4. POST it to /schwab/token as {\"code\": \"...\"}",
		},
	})
}

func (s *Server) handleSchwabToken(w http.ResponseWriter, r *http.Request) {
	if s.schwab == nil {
		http.Error(w, "Schwab client disabled", http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		return
	}

	if err := s.schwab.ExchangeCode(r.Context(), body.Code); err != nil {
		s.logger.Error("Schwab code exchange failed", zap.Error(err))
		http.Error(w, "Code exchange failed", http.StatusBadGateway)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "authenticated",
	})
}

func (s *Server) handleSchwabStatus(w http.ResponseWriter, r *http.Request) {
	if s.schwab == nil {
		http.Error(w, "Schwab client disabled", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, s.schwab.AuthStatus())
}
