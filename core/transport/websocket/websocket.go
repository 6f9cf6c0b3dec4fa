package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-realtime/core/transport"
	"golang.org/x/time/rate"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultPingInterval     = 54 * time.Second
	defaultPongTimeout      = 60 * time.Second
	closeWriteTimeout       = time.Second
)

var (
	errConnClosed = errors.New("websocket connection closed")
	// ErrRateLimited is returned by Send when the outbound rate limit of the
	// connection is exceeded.
	ErrRateLimited = errors.New("outbound rate limit exceeded")
)

// Dialer opens websocket connections and implements [transport.Transport].
type Dialer struct {
	dialer       *websocket.Dialer
	header       http.Header
	writeTimeout time.Duration
	pingInterval time.Duration
	pongTimeout  time.Duration
	sendLimit    rate.Limit
	sendBurst    int
}

type DialerOption func(*Dialer)

// WithHeader sets headers sent with the upgrade request, e.g. Authorization.
func WithHeader(header http.Header) DialerOption {
	return func(d *Dialer) { d.header = header.Clone() }
}

func WithHandshakeTimeout(timeout time.Duration) DialerOption {
	return func(d *Dialer) { d.dialer.HandshakeTimeout = timeout }
}

func WithWriteTimeout(timeout time.Duration) DialerOption {
	return func(d *Dialer) { d.writeTimeout = timeout }
}

// WithKeepAlive configures ping frames every interval. A connection that
// stays silent (no frames, no pongs) for longer than pongTimeout is closed.
// A zero interval disables pings and the read deadline.
func WithKeepAlive(interval, pongTimeout time.Duration) DialerOption {
	return func(d *Dialer) {
		d.pingInterval = interval
		d.pongTimeout = pongTimeout
	}
}

// WithSendRateLimit caps outbound frames per connection. Frames over the
// limit are rejected with [ErrRateLimited] rather than queued.
func WithSendRateLimit(limit rate.Limit, burst int) DialerOption {
	return func(d *Dialer) {
		d.sendLimit = limit
		d.sendBurst = burst
	}
}

func NewDialer(opts ...DialerOption) *Dialer {
	d := &Dialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		writeTimeout: defaultWriteTimeout,
		pingInterval: defaultPingInterval,
		pongTimeout:  defaultPongTimeout,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *Dialer) Open(ctx context.Context, address string) (transport.Handle, error) {
	ws, resp, err := d.dialer.DialContext(ctx, address, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to open socket connection to %s (status %d): %w", address, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to open socket connection to %s: %w", address, err)
	}

	conn := newConn(ws, d.writeTimeout, d.pingInterval, d.pongTimeout)
	if d.sendLimit > 0 && d.sendBurst > 0 {
		conn.limiter = rate.NewLimiter(d.sendLimit, d.sendBurst)
	}
	return conn, nil
}

// Conn is an open websocket connection.
type Conn struct {
	ws      *websocket.Conn
	mu      sync.Mutex
	limiter *rate.Limiter

	writeTimeout time.Duration
	pongTimeout  time.Duration
	// keepAlive is set when pings are sent. Only then does a read deadline
	// guard the connection.
	keepAlive bool

	closeOnce  sync.Once
	done       chan struct{}
	localClose atomic.Pointer[transport.CloseError]
}

func newConn(ws *websocket.Conn, writeTimeout, pingInterval, pongTimeout time.Duration) *Conn {
	c := &Conn{
		ws:           ws,
		writeTimeout: writeTimeout,
		pongTimeout:  pongTimeout,
		done:         make(chan struct{}),
	}

	if pingInterval > 0 && pongTimeout > 0 {
		c.keepAlive = true
		c.extendReadDeadline()
		ws.SetPongHandler(func(string) error {
			c.extendReadDeadline()
			return nil
		})
		go c.ping(pingInterval)
	}

	return c
}

func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	if c.limiter != nil && !c.limiter.Allow() {
		return ErrRateLimited
	}

	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}

func (c *Conn) Receive() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, c.closeError(err)
	}

	if c.keepAlive {
		c.extendReadDeadline()
	}
	return data, nil
}

func (c *Conn) Close(code int, reason string) error {
	err := errConnClosed
	c.closeOnce.Do(func() {
		c.localClose.Store(&transport.CloseError{Code: code, Reason: reason})
		close(c.done)

		msg := websocket.FormatCloseMessage(code, reason)
		writeErr := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		closeErr := c.ws.Close()
		if writeErr != nil && !errors.Is(writeErr, websocket.ErrCloseSent) {
			logger.Debug("failed to send close frame", "error", writeErr)
		}
		err = closeErr
	})
	return err
}

func (c *Conn) closeError(err error) *transport.CloseError {
	var wsCloseErr *websocket.CloseError
	if errors.As(err, &wsCloseErr) {
		return &transport.CloseError{Code: wsCloseErr.Code, Reason: wsCloseErr.Text}
	}

	if local := c.localClose.Load(); local != nil {
		return local
	}

	return &transport.CloseError{Code: transport.CloseAbnormal, Reason: err.Error()}
}

func (c *Conn) controlDeadline() time.Time {
	if c.writeTimeout > 0 {
		return time.Now().Add(c.writeTimeout)
	}
	return time.Now().Add(closeWriteTimeout)
}

func (c *Conn) extendReadDeadline() {
	_ = c.ws.SetReadDeadline(time.Now().Add(c.pongTimeout))
}

func (c *Conn) ping(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, c.controlDeadline()); err != nil {
				logger.Debug("failed to send websocket ping", "error", err)
				return
			}
		}
	}
}
