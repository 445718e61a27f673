package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vitos/options_alert_bot/internal/domain"
)

const defaultListLimit = 50

// SQLiteRecorder keeps the append-only audit trail of dispatched alerts
// and trade lifecycle events. It implements domain.EventRecorder.
type SQLiteRecorder struct {
	db *sql.DB
}

func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	rec := &SQLiteRecorder{db: db}
	if err := rec.initSchema(); err != nil {
		return nil, err
	}

	return rec, nil
}

func (s *SQLiteRecorder) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts DATETIME NOT NULL,
			symbol TEXT NOT NULL,
			style TEXT NOT NULL,
			reason TEXT NOT NULL,
			score INTEGER NOT NULL,
			price REAL NOT NULL,
			sent BOOLEAN NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_symbol ON alerts(symbol);`,
		`CREATE TABLE IF NOT EXISTS trade_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts DATETIME NOT NULL,
			trade_id TEXT NOT NULL,
			event TEXT NOT NULL,
			price REAL NOT NULL,
			detail TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_events_trade ON trade_events(trade_id);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	return nil
}

func (s *SQLiteRecorder) RecordAlert(ctx context.Context, a *domain.AlertEvent) error {
	query := `INSERT INTO alerts (ts, symbol, style, reason, score, price, sent)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		a.Time, a.Symbol, string(a.Style), a.Reason, a.Score, a.Price, a.Sent)
	if err != nil {
		return err
	}
	a.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteRecorder) RecordTradeEvent(ctx context.Context, e *domain.TradeEvent) error {
	query := `INSERT INTO trade_events (ts, trade_id, event, price, detail)
			  VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		e.Time, e.TradeID, e.Event, e.Price, e.Detail)
	if err != nil {
		return err
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteRecorder) ListAlerts(ctx context.Context, limit int) ([]*domain.AlertEvent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT id, ts, symbol, style, reason, score, price, sent
			  FROM alerts ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.AlertEvent
	for rows.Next() {
		var a domain.AlertEvent
		var style string
		if err := rows.Scan(&a.ID, &a.Time, &a.Symbol, &style, &a.Reason, &a.Score, &a.Price, &a.Sent); err != nil {
			return nil, err
		}
		a.Style = domain.TradeStyle(style)
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

func (s *SQLiteRecorder) ListTradeEvents(ctx context.Context, tradeID string, limit int) ([]*domain.TradeEvent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT id, ts, trade_id, event, price, detail
			  FROM trade_events WHERE (? = '' OR trade_id = ?) ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, tradeID, tradeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.TradeEvent
	for rows.Next() {
		var e domain.TradeEvent
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Time, &e.TradeID, &e.Event, &e.Price, &detail); err != nil {
			return nil, err
		}
		e.Detail = detail.String
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (s *SQLiteRecorder) Close() error {
	return s.db.Close()
}
