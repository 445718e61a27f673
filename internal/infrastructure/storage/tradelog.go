package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/vitos/options_alert_bot/internal/domain"
)

// JSONTradeLog persists the full ledger state to one JSON file. Save
// writes a temp file in the same directory and renames it over the old
// one, so a crash mid-write leaves the previous state intact.
type JSONTradeLog struct {
	path   string
	logger *zap.Logger
}

func NewJSONTradeLog(path string, logger *zap.Logger) *JSONTradeLog {
	return &JSONTradeLog{path: path, logger: logger}
}

func (l *JSONTradeLog) Load(ctx context.Context) (*domain.LedgerState, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Info("trade log starts empty", zap.String("path", l.path))
			return &domain.LedgerState{}, nil
		}
		return nil, fmt.Errorf("read trade log %s: %w", l.path, err)
	}

	var state domain.LedgerState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse trade log %s: %w", l.path, err)
	}

	l.logger.Info("trade log loaded",
		zap.String("path", l.path),
		zap.Int("trades", len(state.Trades)))
	return &state, nil
}

func (l *JSONTradeLog) Save(ctx context.Context, state *domain.LedgerState) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create trade log dir: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode trade log: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write trade log %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace trade log %s: %w", l.path, err)
	}
	return nil
}
