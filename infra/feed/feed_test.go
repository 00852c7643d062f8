package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExchange sends msgs on every connection, then closes it.
func fakeExchange(t *testing.T, msgs []string, subs chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if subs != nil {
			_ = conn.SetReadDeadline(time.Now().Add(time.Second))
			if _, raw, err := conn.ReadMessage(); err == nil {
				subs <- string(raw)
			}
		}
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestRunDeliversAndReconnects(t *testing.T) {
	srv := fakeExchange(t, []string{"one", "bad", "two"}, nil)
	defer srv.Close()

	var (
		mu  sync.Mutex
		got []string
	)
	c := New(Config{URL: wsURL(srv), MinBackoff: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond},
		func(raw []byte) error {
			if string(raw) == "bad" {
				return errors.New("rejected")
			}
			mu.Lock()
			got = append(got, string(raw))
			mu.Unlock()
			return nil
		}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return c.Connects() >= 2 && c.Messages() >= 4 },
		3*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"one", "two"}, got[:2])
	assert.GreaterOrEqual(t, c.Failures(), uint64(2))
}

func TestSubscribeSentOnConnect(t *testing.T) {
	subs := make(chan string, 4)
	srv := fakeExchange(t, nil, subs)
	defer srv.Close()

	c := New(Config{URL: wsURL(srv), Subscribe: []byte(`{"method":"SUBSCRIBE"}`)},
		func([]byte) error { return nil }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	select {
	case s := <-subs:
		assert.Equal(t, `{"method":"SUBSCRIBE"}`, s)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription received")
	}
}

func TestRunStopsWhileConnected(t *testing.T) {
	var open atomic.Bool
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		open.Store(true)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := New(Config{URL: wsURL(srv)}, func([]byte) error { return nil }, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	require.Eventually(t, open.Load, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestDialFailureBacksOff(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1/ws", MinBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond},
		func([]byte) error { return nil }, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, c.Run(ctx), context.DeadlineExceeded)
	assert.Zero(t, c.Connects())
}
