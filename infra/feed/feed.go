// Package feed streams exchange depth messages over a websocket and hands
// each one to a handler, reconnecting with back-off.
package feed

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Handler consumes one raw message. Errors are logged and the stream
// continues.
type Handler func(raw []byte) error

type Config struct {
	URL string
	// Subscribe is sent after every connect when non-empty.
	Subscribe  []byte
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

type Client struct {
	cfg    Config
	handle Handler
	dialer *websocket.Dialer
	log    *zap.SugaredLogger

	messages atomic.Uint64
	failures atomic.Uint64
	connects atomic.Uint64
}

func New(cfg Config, handle Handler, log *zap.SugaredLogger) *Client {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{
		cfg:    cfg,
		handle: handle,
		dialer: websocket.DefaultDialer,
		log:    log.With("component", "feed", "url", cfg.URL),
	}
}

// Messages is the number of messages handled without error.
func (c *Client) Messages() uint64 { return c.messages.Load() }

// Failures is the number of messages the handler rejected.
func (c *Client) Failures() uint64 { return c.failures.Load() }

func (c *Client) Connects() uint64 { return c.connects.Load() }

// Run keeps a session open until ctx is done and returns ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	backoff := c.cfg.MinBackoff
	for {
		start := time.Now()
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// a session that stayed up resets the back-off
		if time.Since(start) > c.cfg.MaxBackoff {
			backoff = c.cfg.MinBackoff
		}
		c.log.Warnw("disconnected", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.cfg.MaxBackoff)
	}
}

func (c *Client) session(ctx context.Context) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, http.Header{})
	if err != nil {
		if resp != nil {
			return errors.Wrapf(err, "dial: status %d", resp.StatusCode)
		}
		return errors.Wrap(err, "dial")
	}
	defer conn.Close()
	c.connects.Add(1)
	c.log.Info("connected")

	if len(c.cfg.Subscribe) > 0 {
		if err := conn.WriteMessage(websocket.TextMessage, c.cfg.Subscribe); err != nil {
			return errors.Wrap(err, "subscribe")
		}
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read")
		}
		if err := c.handle(raw); err != nil {
			c.failures.Add(1)
			c.log.Warnw("message rejected", "error", err)
			continue
		}
		c.messages.Add(1)
	}
}
