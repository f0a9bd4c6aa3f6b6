package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"hedge_go/internal/domain"
	"hedge_go/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	pingInterval = 20 * time.Second
	readTimeout  = 60 * time.Second
	streamDepth  = 50
)

// BookWorker keeps local order books from the Bybit public websocket and
// pushes a snapshot to inbox after every applied message.
type BookWorker struct {
	url     string
	symbols []string
	inbox   chan<- domain.OrderBookSnapshot
	logger  *slog.Logger

	books map[string]*localBook // Only touched by the read loop

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewBookWorker factory
func NewBookWorker(url string, symbols []string, inbox chan<- domain.OrderBookSnapshot) *BookWorker {
	return &BookWorker{
		url:     url,
		symbols: symbols,
		inbox:   inbox,
		logger:  slog.Default().With("module", "bybit_ws"),
		books:   make(map[string]*localBook),
	}
}

func (w *BookWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

func (w *BookWorker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

func (w *BookWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		connCtx, stop := context.WithCancel(ctx)
		if err := w.connect(connCtx); err != nil {
			stop()
			w.logger.Warn("Bybit connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			retryCount++
			select {
			case <-ctx.Done():
				return
			case <-time.After(infra.CalculateBackoff(retryCount)):
			}
			continue
		}

		retryCount = 0
		w.readLoop(connCtx)
		stop()
	}
}

func (w *BookWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	// Books are rebuilt from the snapshot sent after subscribing
	w.books = make(map[string]*localBook)

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return err
	}

	go w.pingLoop(ctx)
	w.logger.Info("Bybit book stream connected", slog.Int("symbols", len(w.symbols)))
	return nil
}

type wsRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

func (w *BookWorker) subscribe() error {
	args := make([]string, 0, len(w.symbols))
	for _, s := range w.symbols {
		args = append(args, fmt.Sprintf("orderbook.%d.%s", streamDepth, s))
	}
	b, err := json.Marshal(wsRequest{Op: "subscribe", Args: args})
	if err != nil {
		return err
	}
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *BookWorker) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	ping, _ := json.Marshal(wsRequest{Op: "ping"})
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.threadSafeWrite(websocket.TextMessage, ping); err != nil {
				return
			}
		}
	}
}

func (w *BookWorker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *BookWorker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Warn("Bybit read failed", slog.Any("error", err))
			}
			w.closeConnection()
			return
		}
		w.handleMessage(msg)
	}
}

type bookMessage struct {
	Topic string     `json:"topic"`
	Type  string     `json:"type"` // snapshot or delta
	Ts    int64      `json:"ts"`
	Data  bookResult `json:"data"`
	Op    string     `json:"op"`
}

func (w *BookWorker) handleMessage(msg []byte) {
	var m bookMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		w.logger.Debug("Ignoring malformed message", slog.Any("error", err))
		return
	}
	if m.Op != "" || !strings.HasPrefix(m.Topic, "orderbook.") {
		return // pong and subscribe acks
	}

	symbol := m.Data.Symbol
	book, ok := w.books[symbol]

	// u == 1 is a snapshot sent as a delta after a service restart
	if m.Type == "snapshot" || m.Data.Update == 1 {
		book = newLocalBook()
		w.books[symbol] = book
	} else if !ok {
		return // Delta before snapshot
	}

	if err := book.apply(m.Data); err != nil {
		w.logger.Warn("Dropping corrupt book", slog.String("symbol", symbol), slog.Any("error", err))
		delete(w.books, symbol)
		return
	}

	ts := time.Now()
	if m.Ts > 0 {
		ts = time.UnixMilli(m.Ts)
	}
	snap := book.snapshot(symbol, ts)

	select {
	case w.inbox <- snap:
	default:
		// Consumer is behind; the next message carries a newer book
	}
}

func (w *BookWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected = false
}

func (w *BookWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}

// localBook is a price-keyed book rebuilt from snapshot and delta messages.
type localBook struct {
	asks map[string]domain.Level
	bids map[string]domain.Level
}

func newLocalBook() *localBook {
	return &localBook{
		asks: make(map[string]domain.Level),
		bids: make(map[string]domain.Level),
	}
}

func (b *localBook) apply(data bookResult) error {
	if err := applySide(b.asks, data.Asks); err != nil {
		return fmt.Errorf("asks: %w", err)
	}
	if err := applySide(b.bids, data.Bids); err != nil {
		return fmt.Errorf("bids: %w", err)
	}
	return nil
}

// applySide upserts levels; a zero size removes the level.
func applySide(side map[string]domain.Level, rows [][]string) error {
	levels, err := domain.ParseLevels(rows)
	if err != nil {
		return err
	}
	for _, l := range levels {
		key := l.Price.String()
		if l.Size.IsZero() {
			delete(side, key)
			continue
		}
		side[key] = l
	}
	return nil
}

func (b *localBook) snapshot(symbol string, ts time.Time) domain.OrderBookSnapshot {
	return domain.NewOrderBookSnapshot(venueName, symbol, values(b.asks), values(b.bids), ts)
}

func values(m map[string]domain.Level) []domain.Level {
	out := make([]domain.Level, 0, len(m))
	for _, l := range m {
		out = append(out, l)
	}
	return out
}

var _ domain.ExchangeWorker = (*BookWorker)(nil)
