package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"

	"github.com/gorilla/websocket"
)

// Client implements a crypto MarketStream backed by the Binance combined
// miniTicker WebSocket stream.
type Client struct {
	websocketURL string
	pingInterval time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	reqID     int
}

// New creates a new crypto MarketStream.
func New(websocketURL string, pingInterval time.Duration) drepo.MarketStream {
	return &Client{
		websocketURL: websocketURL,
		pingInterval: pingInterval,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.websocketURL, nil)
	if err != nil {
		return &models.ConnectionError{Source: models.SourceCrypto, Err: fmt.Errorf("dial: %w", err)}
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	return nil
}

type wsCommand struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// Subscribe subscribes to miniTicker streams for the given symbols.
func (c *Client) Subscribe(ctx context.Context, symbols []string) error {
	return c.command(ctx, "SUBSCRIBE", symbols)
}

// Unsubscribe drops miniTicker streams for the given symbols.
func (c *Client) Unsubscribe(ctx context.Context, symbols []string) error {
	return c.command(ctx, "UNSUBSCRIBE", symbols)
}

func (c *Client) command(_ context.Context, method string, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return &models.ConnectionError{Source: models.SourceCrypto, Err: fmt.Errorf("not connected")}
	}
	params := make([]string, 0, len(symbols))
	for _, s := range symbols {
		params = append(params, strings.ToLower(s)+"@miniTicker")
	}
	c.reqID++
	cmd := wsCommand{Method: method, Params: params, ID: c.reqID}
	if err := c.conn.WriteJSON(cmd); err != nil {
		return &models.ConnectionError{Source: models.SourceCrypto, Err: fmt.Errorf("%s: %w", strings.ToLower(method), err)}
	}
	return nil
}

// miniTicker frame; price fields arrive as strings.
type wsMiniTicker struct {
	Event  string `json:"e"`
	TimeMS int64  `json:"E"`
	Symbol string `json:"s"`
	Close  string `json:"c"`
	Open   string `json:"o"`
	High   string `json:"h"`
	Low    string `json:"l"`
	Volume string `json:"v"`
}

// Read streams normalized ticks and errors until ctx is done or the
// connection fails. Malformed frames are reported on the error channel as
// MalformedMessageError and never close the stream.
func (c *Client) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 1024)
	errs := make(chan error, 8)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				if c.conn != nil && c.connected {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
				c.mu.Unlock()
			}
		}
	}()

	// read loop
	go func() {
		defer close(ticks)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				errs <- &models.ConnectionError{Source: models.SourceCrypto, Err: fmt.Errorf("conn nil")}
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- &models.ConnectionError{Source: models.SourceCrypto, Err: fmt.Errorf("read: %w", err)}
				return
			}

			t, merr := normalize(b)
			if merr != nil {
				select {
				case errs <- merr:
				default:
				}
				continue
			}
			if t == nil {
				// subscription ack or other non-ticker frame
				continue
			}
			select {
			case ticks <- t:
			default:
				// drop on backpressure
			}
		}
	}()

	return ticks, errs
}

func normalize(b []byte) (*models.Tick, *models.MalformedMessageError) {
	var m wsMiniTicker
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, &models.MalformedMessageError{Source: models.SourceCrypto, Reason: err.Error()}
	}
	if m.Event != "24hrMiniTicker" {
		return nil, nil
	}

	price, err1 := strconv.ParseFloat(m.Close, 64)
	open, err2 := strconv.ParseFloat(m.Open, 64)
	high, err3 := strconv.ParseFloat(m.High, 64)
	low, err4 := strconv.ParseFloat(m.Low, 64)
	vol, err5 := strconv.ParseFloat(m.Volume, 64)
	for _, err := range []error{err1, err2, err3, err4, err5} {
		if err != nil {
			return nil, &models.MalformedMessageError{Source: models.SourceCrypto, Reason: "bad numeric field: " + err.Error()}
		}
	}
	if m.Symbol == "" || m.TimeMS <= 0 {
		return nil, &models.MalformedMessageError{Source: models.SourceCrypto, Reason: "missing symbol or timestamp"}
	}

	change := price - open
	changePct := 0.0
	if open != 0 {
		changePct = change / open * 100
	}
	return &models.Tick{
		Source:        models.SourceCrypto,
		Symbol:        m.Symbol,
		Price:         price,
		Change:        change,
		ChangePercent: changePct,
		Volume:        vol,
		High:          high,
		Low:           low,
		Timestamp:     time.UnixMilli(m.TimeMS),
	}, nil
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
