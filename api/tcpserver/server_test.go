package tcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossbook/adapter/depth"
	"crossbook/adapter/message"
	"crossbook/adapter/scale"
	"crossbook/domain/orderbook"
	"crossbook/service"
)

func startServer(t *testing.T, configure ...func(*Server)) (*Server, string) {
	t.Helper()
	svc, err := service.New(
		orderbook.NewBook(),
		message.New("BTC/USDT", scale.DefaultPrice, scale.DefaultQuantity),
		depth.NewDecoder(scale.DefaultPrice, scale.DefaultQuantity),
	)
	require.NoError(t, err)

	srv := New(svc, nil)
	for _, f := range configure {
		f(srv)
	}
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, lis.Addr().String()
}

type client struct {
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) roundTrip(t *testing.T, line string) message.Response {
	t.Helper()
	require.NoError(t, c.conn.SetDeadline(time.Now().Add(2*time.Second)))
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
	raw, err := c.r.ReadBytes('\n')
	require.NoError(t, err)

	var resp message.Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func TestOrdersOverTCP(t *testing.T) {
	_, addr := startServer(t)
	c := dial(t, addr)

	resp := c.roundTrip(t, `{"OrderId":1,"Pair":"BTC/USDT","Price":"100.00","Quantity":"0.05","Side":"BUY"}`)
	assert.Equal(t, message.Success(nil), resp)

	resp = c.roundTrip(t, `{"OrderId":2,"Pair":"BTC/USDT","Price":"99.00","Quantity":"0.02","Side":"SELL"}`)
	require.True(t, resp.OK())
	require.Len(t, resp.Trades, 1)
	assert.Equal(t, int64(10000), resp.Trades[0].Price)
	assert.Equal(t, int64(20), resp.Trades[0].Quantity)

	resp = c.roundTrip(t, `{"OrderId":3,"Pair":"BTC/USDT","Price":"100.00","Side":"SELL"}`)
	assert.Equal(t, message.StatusError, resp.Status)
}

func TestConnectionsShareTheBook(t *testing.T) {
	srv, addr := startServer(t)
	a, b := dial(t, addr), dial(t, addr)

	a.roundTrip(t, `{"OrderId":1,"Pair":"BTC/USDT","Price":"1","Quantity":"1","Side":"SELL"}`)
	resp := b.roundTrip(t, `{"OrderId":2,"Pair":"BTC/USDT","Price":"1","Quantity":"1","Side":"BUY"}`)
	require.Len(t, resp.Trades, 1)
	assert.Equal(t, uint64(1), resp.Trades[0].AskOrderID)
	assert.Equal(t, 2, srv.Sessions())
}

func TestLineTooLong(t *testing.T) {
	_, addr := startServer(t, func(s *Server) { s.maxLine = 128 })
	c := dial(t, addr)

	require.NoError(t, c.conn.SetDeadline(time.Now().Add(2*time.Second)))
	_, err := c.conn.Write([]byte(strings.Repeat("x", 512) + "\n"))
	require.NoError(t, err)
	raw, err := c.r.ReadBytes('\n')
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","message":"Message too long"}`, string(raw))
}

func TestShutdownClosesSessions(t *testing.T) {
	srv, addr := startServer(t)
	c := dial(t, addr)
	c.roundTrip(t, `{"OrderId":1,"Pair":"BTC/USDT","Price":"1","Quantity":"1","Side":"SELL"}`)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.Zero(t, srv.Sessions())

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, err := c.r.ReadByte()
	assert.Error(t, err)
}
