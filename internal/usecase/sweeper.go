package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vitos/options_alert_bot/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultBatchSize      = 5
	defaultBatchPause     = 500 * time.Millisecond
	defaultMaxConcurrency = 10
)

// SweepResult summarizes one pass over the symbol universe.
type SweepResult struct {
	Symbols   int           `json:"symbols"`
	Triggered int           `json:"triggered"`
	Errors    int           `json:"errors"`
	Skipped   bool          `json:"skipped"`
	Reason    string        `json:"reason,omitempty"`
	TradeIDs  []string      `json:"trade_ids,omitempty"`
	Duration  time.Duration `json:"duration_ms"`
}

// SymbolSweeper walks the symbol universe looking for fresh setups.
// Symbols are fetched in small batches with a pause between them to stay
// inside the data vendor's rate limits; within a batch evaluation runs
// concurrently up to a fixed bound. Styles are tried strictest threshold
// first and a symbol stops at its first triggered style, so one sweep
// never posts competing alerts for the same ticker.
type SymbolSweeper struct {
	evaluator *SetupEvaluator
	ledger    *Ledger
	market    domain.MarketData
	notifier  domain.Notifier
	recorder  domain.EventRecorder
	calendar  domain.Calendar
	logger    *zap.Logger

	symbols        []string
	batchSize      int
	batchPause     time.Duration
	maxConcurrency int
	now            func() time.Time
}

type SweeperOptions struct {
	Symbols        []string
	BatchSize      int
	BatchPause     time.Duration
	MaxConcurrency int
}

func NewSymbolSweeper(evaluator *SetupEvaluator, ledger *Ledger, market domain.MarketData, notifier domain.Notifier, recorder domain.EventRecorder, calendar domain.Calendar, opts SweeperOptions, logger *zap.Logger) *SymbolSweeper {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.BatchPause <= 0 {
		opts.BatchPause = defaultBatchPause
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	return &SymbolSweeper{
		evaluator:      evaluator,
		ledger:         ledger,
		market:         market,
		notifier:       notifier,
		recorder:       recorder,
		calendar:       calendar,
		logger:         logger,
		symbols:        opts.Symbols,
		batchSize:      opts.BatchSize,
		batchPause:     opts.BatchPause,
		maxConcurrency: opts.MaxConcurrency,
		now:            time.Now,
	}
}

func (s *SymbolSweeper) Symbols() []string {
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// Sweep runs one detection pass. Outside market hours the pass is
// skipped unless force is set (manual test sweeps run any time).
func (s *SymbolSweeper) Sweep(ctx context.Context, force bool) (*SweepResult, error) {
	start := s.now()
	result := &SweepResult{Symbols: len(s.symbols)}

	if !force && s.calendar != nil && !s.calendar.IsOpen(start) {
		status := s.calendar.Status(start)
		result.Skipped = true
		result.Reason = status.Reason
		s.logger.Info("Sweep skipped, market closed",
			zap.String("reason", status.Reason),
			zap.Time("next_open", status.NextOpen))
		return result, nil
	}

	s.logger.Info("Sweep started",
		zap.Int("symbols", len(s.symbols)),
		zap.Int("batch_size", s.batchSize),
		zap.Bool("force", force))

	var (
		mu  sync.Mutex
		sem = make(chan struct{}, s.maxConcurrency)
		wg  sync.WaitGroup
	)

	for i := 0; i < len(s.symbols); i += s.batchSize {
		end := i + s.batchSize
		if end > len(s.symbols) {
			end = len(s.symbols)
		}

		for _, symbol := range s.symbols[i:end] {
			select {
			case <-ctx.Done():
				wg.Wait()
				result.Duration = s.now().Sub(start)
				return result, ctx.Err()
			case sem <- struct{}{}:
			}

			wg.Add(1)
			go func(symbol string) {
				defer wg.Done()
				defer func() { <-sem }()

				ids, err := s.processSymbol(ctx, symbol)
				mu.Lock()
				if err != nil {
					result.Errors++
				}
				result.Triggered += len(ids)
				result.TradeIDs = append(result.TradeIDs, ids...)
				mu.Unlock()
			}(symbol)
		}

		if end < len(s.symbols) {
			select {
			case <-ctx.Done():
				wg.Wait()
				result.Duration = s.now().Sub(start)
				return result, ctx.Err()
			case <-time.After(s.batchPause):
			}
		}
	}

	wg.Wait()
	result.Duration = s.now().Sub(start)

	s.logger.Info("Sweep finished",
		zap.Int("symbols", result.Symbols),
		zap.Int("triggered", result.Triggered),
		zap.Int("errors", result.Errors),
		zap.Duration("took", result.Duration))
	return result, nil
}

// processSymbol fetches one snapshot and tries each style against it,
// stopping at the first triggered setup.
func (s *SymbolSweeper) processSymbol(ctx context.Context, symbol string) ([]string, error) {
	snap, err := s.market.GetSnapshot(ctx, symbol)
	if err != nil {
		s.logger.Warn("No data for symbol, skipping",
			zap.String("symbol", symbol),
			zap.Error(err))
		return nil, err
	}

	for _, style := range domain.Styles() {
		decision := s.evaluator.Evaluate(style, snap)
		if !decision.Triggered {
			continue
		}

		id, err := s.dispatchSetup(ctx, symbol, style, decision, snap)
		if err != nil {
			if errors.Is(err, domain.ErrDuplicateSetup) {
				s.logger.Debug("Setup already tracked this minute",
					zap.String("symbol", symbol),
					zap.String("style", string(style)))
				return nil, nil
			}
			return nil, err
		}
		return []string{id}, nil
	}

	s.logger.Debug("No setup conditions met",
		zap.String("symbol", symbol),
		zap.Float64("rvol", snap.RelativeVolume))
	return nil, nil
}

// dispatchSetup persists the trade record first, then sends the alert.
// Delivery failure is reported but never rolls the record back.
func (s *SymbolSweeper) dispatchSetup(ctx context.Context, symbol string, style domain.TradeStyle, decision domain.Decision, snap *domain.IndicatorSnapshot) (string, error) {
	trade, err := s.ledger.RecordSetup(ctx, symbol, style, decision, snap)
	if err != nil {
		return "", err
	}

	sent := s.notifier.Send(ctx, BuildSetupAlert(trade, s.evaluator.Params(style).RVOLThreshold))
	if sent {
		s.logger.Info("Setup alert sent",
			zap.String("trade_id", trade.ID),
			zap.String("reason", trade.Reason),
			zap.Int("confluence", trade.ConfluenceScore))
	} else {
		s.logger.Warn("Setup alert delivery failed",
			zap.String("trade_id", trade.ID),
			zap.String("reason", trade.Reason))
	}

	if s.recorder != nil {
		alert := &domain.AlertEvent{
			Time:   s.now(),
			Symbol: symbol,
			Style:  style,
			Reason: decision.Reason,
			Score:  decision.ConfluenceScore,
			Price:  snap.Price,
			Sent:   sent,
		}
		if err := s.recorder.RecordAlert(ctx, alert); err != nil {
			s.logger.Warn("Alert record failed",
				zap.String("trade_id", trade.ID),
				zap.Error(err))
		}
		ev := &domain.TradeEvent{
			Time:    s.now(),
			TradeID: trade.ID,
			Event:   domain.EventSetup,
			Price:   snap.Price,
			Detail:  decision.Reason,
		}
		if err := s.recorder.RecordTradeEvent(ctx, ev); err != nil {
			s.logger.Warn("Trade event record failed",
				zap.String("trade_id", trade.ID),
				zap.Error(err))
		}
	}

	return trade.ID, nil
}
