package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/kmatsuda/swingtrader/internal/domain"
)

const (
	streamWriteWait = 10 * time.Second
	streamPongWait  = 60 * time.Second
	streamPingEvery = (streamPongWait * 9) / 10
)

// QuoteStream subscribes to a quote WebSocket feed and writes each tick into
// the quote cache. It reconnects with backoff on disconnect and resubscribes
// to the full symbol set.
type QuoteStream struct {
	url     string
	cache   domain.QuoteCache
	logger  *slog.Logger
	backoff *backoff.Backoff

	mu      sync.Mutex
	symbols []string

	closeOnce sync.Once
	done      chan struct{}
}

// NewQuoteStream creates a stream for the given endpoint.
func NewQuoteStream(url string, cache domain.QuoteCache, logger *slog.Logger) *QuoteStream {
	return &QuoteStream{
		url:    url,
		cache:  cache,
		logger: logger.With(slog.String("component", "quote_stream")),
		backoff: &backoff.Backoff{
			Min:    2 * time.Second,
			Max:    60 * time.Second,
			Factor: 2,
			Jitter: true,
		},
		done: make(chan struct{}),
	}
}

// Subscribe replaces the symbol set. Takes effect on the next (re)connect;
// an active connection is also told about additions.
func (s *QuoteStream) Subscribe(symbols []string) {
	s.mu.Lock()
	s.symbols = append([]string(nil), symbols...)
	s.mu.Unlock()
}

// Run connects and processes ticks until ctx is cancelled or Close is
// called. Each disconnect is retried with exponential backoff.
func (s *QuoteStream) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		default:
		}

		err := s.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delay := s.backoff.Duration()
		s.logger.Warn("quote stream disconnected, reconnecting",
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-time.After(delay):
		}
	}
}

// Close stops the stream.
func (s *QuoteStream) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// tickMessage is one quote tick on the wire.
type tickMessage struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	DayLow float64 `json:"day_low"`
	Time   int64   `json:"time"`
}

type subscribeCommand struct {
	Subscribe []string `json:"subscribe"`
}

func (s *QuoteStream) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("marketdata: stream connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(streamPongWait))
		return nil
	})

	s.mu.Lock()
	symbols := append([]string(nil), s.symbols...)
	s.mu.Unlock()
	if len(symbols) > 0 {
		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(subscribeCommand{Subscribe: symbols}); err != nil {
			return fmt.Errorf("marketdata: stream subscribe: %w", err)
		}
	}
	s.logger.Info("quote stream subscribed", slog.Int("symbols", len(symbols)))
	s.backoff.Reset()

	pingDone := make(chan struct{})
	defer close(pingDone)
	go s.pingLoop(conn, pingDone)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("marketdata: stream read: %w", err)
		}
		s.handleTick(ctx, raw)
	}
}

func (s *QuoteStream) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(streamPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-s.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *QuoteStream) handleTick(ctx context.Context, raw []byte) {
	var tick tickMessage
	if err := json.Unmarshal(raw, &tick); err != nil || tick.Symbol == "" || tick.Price <= 0 {
		// Drop malformed ticks; the feed also carries heartbeats.
		return
	}
	q := domain.Quote{
		Symbol: tick.Symbol,
		Price:  tick.Price,
		Low:    tick.DayLow,
		At:     time.Unix(tick.Time, 0).UTC(),
	}
	if q.Low <= 0 {
		q.Low = q.Price
	}
	if err := s.cache.SetQuote(ctx, q); err != nil {
		s.logger.Error("quote cache write failed",
			slog.String("symbol", tick.Symbol),
			slog.String("error", err.Error()),
		)
	}
}
