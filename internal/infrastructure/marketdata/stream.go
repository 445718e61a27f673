package marketdata

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 75 * time.Second
)

type streamedQuote struct {
	price float64
	at    time.Time
}

// streamEvent is one inbound quote frame.
type streamEvent struct {
	Type   string  `json:"type"`
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Time   int64   `json:"time"`
}

// Streamer keeps a websocket quote feed open and remembers the last
// price per symbol, so price checks between sweep ticks can skip a REST
// round trip. There is no automatic reconnect; the status endpoint
// exposes Connected and the operator decides.
type Streamer struct {
	url    string
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	conn      *websocket.Conn
	done      chan struct{}
	callbacks []func(symbol string, price float64)
	last      map[string]streamedQuote
}

func NewStreamer(url string, logger *zap.Logger) *Streamer {
	return &Streamer{
		url:    url,
		logger: logger,
		now:    time.Now,
		last:   make(map[string]streamedQuote),
	}
}

// OnQuote registers a callback invoked for every inbound quote.
func (s *Streamer) OnQuote(cb func(symbol string, price float64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// Connect dials the feed and subscribes to symbols. Calling it while
// connected just adds subscriptions.
func (s *Streamer) Connect(symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return s.subscribeLocked(symbols)
	}

	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		return fmt.Errorf("stream dial %s: %w", s.url, err)
	}
	s.conn = conn
	s.done = make(chan struct{})

	_ = conn.SetReadDeadline(s.now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(s.now().Add(pongWait))
	})

	go s.readLoop(conn)
	go s.pingLoop(conn, s.done)

	return s.subscribeLocked(symbols)
}

// Subscribe adds symbols on an open connection, dialing first if needed.
func (s *Streamer) Subscribe(symbols []string) error {
	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return s.Connect(symbols)
	}
	defer s.mu.Unlock()
	return s.subscribeLocked(symbols)
}

func (s *Streamer) subscribeLocked(symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	msg := map[string]interface{}{
		"op":      "subscribe",
		"symbols": symbols,
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("stream subscribe: %w", err)
	}
	return nil
}

func (s *Streamer) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
			close(s.done)
		}
		s.mu.Unlock()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.logger.Warn("stream read failed", zap.Error(err))
			return
		}

		var event streamEvent
		if err := json.Unmarshal(message, &event); err != nil {
			s.logger.Warn("stream frame unparsable", zap.Error(err))
			continue
		}
		if event.Type != "quote" || event.Symbol == "" || event.Last <= 0 {
			continue
		}
		s.record(event.Symbol, event.Last)
	}
}

func (s *Streamer) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := s.now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Warn("stream ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *Streamer) record(symbol string, price float64) {
	s.mu.Lock()
	s.last[symbol] = streamedQuote{price: price, at: s.now()}
	callbacks := make([]func(string, float64), len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(symbol, price)
	}
}

// LastPrice returns the most recent streamed price for symbol and when
// it arrived.
func (s *Streamer) LastPrice(symbol string) (float64, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.last[symbol]
	if !ok {
		return 0, time.Time{}, false
	}
	return q.price, q.at, true
}

func (s *Streamer) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *Streamer) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}
