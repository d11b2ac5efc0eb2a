package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"PortfolioPulse/internal/domain/models"
	drepo "PortfolioPulse/internal/domain/repository"
	"PortfolioPulse/pkg/logger"
)

// Client is a MarketStream over the Finnhub trade WebSocket.
type Client struct {
	apiKey         string
	websocketURL   string
	symbols        map[string]models.Ticker
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected bool
}

type Option func(*Client)

func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) { c.reconnectDelay = d }
}

func WithPingInterval(d time.Duration) Option {
	return func(c *Client) { c.pingInterval = d }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New builds a client. Each symbol is either a plain ticker ("AAPL") or a
// Finnhub symbol mapped to a ticker ("BINANCE:BTCUSDT=BTC-USD").
func New(apiKey, websocketURL string, symbols []string, opts ...Option) (*Client, error) {
	mapped, err := ParseSymbols(symbols)
	if err != nil {
		return nil, err
	}
	c := &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        mapped,
		reconnectDelay: 5 * time.Second,
		pingInterval:   30 * time.Second,
		log:            logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ drepo.MarketStream = (*Client)(nil)

// ParseSymbols maps stream symbols to tickers.
func ParseSymbols(raw []string) (map[string]models.Ticker, error) {
	out := make(map[string]models.Ticker, len(raw))
	for _, r := range raw {
		sym, tk := r, r
		if i := strings.IndexByte(r, '='); i >= 0 {
			sym, tk = r[:i], r[i+1:]
		}
		sym = strings.TrimSpace(sym)
		t, err := models.NormalizeTicker(tk)
		if err != nil || sym == "" {
			return nil, fmt.Errorf("finnhub symbol %q: %w", r, models.ErrInvalidTicker)
		}
		out[sym] = t
	}
	return out, nil
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.websocketURL)
	if err != nil {
		return fmt.Errorf("finnhub url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.apiKey)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("finnhub connected", logger.Int("symbols", len(c.symbols)))
	return nil
}

// Subscribe subscribes to configured symbols.
func (c *Client) Subscribe(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		return fmt.Errorf("finnhub not connected")
	}
	for sym := range c.symbols {
		if err := c.write(conn, map[string]string{"type": "subscribe", "symbol": sym}); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}
	return nil
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
}

// Read streams trades until ctx ends or the connection fails. Both channels
// close when the read loop exits; at most one error is sent.
func (c *Client) Read(ctx context.Context) (<-chan *models.Trade, <-chan error) {
	trades := make(chan *models.Trade, 1024)
	errs := make(chan error, 1)
	conn := c.current()

	go c.pingLoop(ctx, conn)
	go func() {
		defer close(trades)
		defer close(errs)
		if conn == nil {
			errs <- fmt.Errorf("finnhub conn nil")
			return
		}
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("finnhub read: %w", err)
				}
				return
			}
			var m fhMessage
			if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
				continue
			}
			for _, d := range m.Data {
				t, ok := c.symbols[d.S]
				if !ok {
					continue
				}
				select {
				case trades <- &models.Trade{Ticker: t, Price: d.P, Volume: d.V, Timestamp: time.UnixMilli(d.T).UTC()}:
				case <-ctx.Done():
					return
				default:
					// drop on backpressure
				}
			}
		}
	}()
	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()
	return trades, errs
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	if conn == nil || c.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Reconnect closes, waits reconnectDelay and connects again.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-time.After(c.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) write(conn *websocket.Conn, v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}
