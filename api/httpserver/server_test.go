package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossbook/adapter/depth"
	"crossbook/adapter/message"
	"crossbook/adapter/scale"
	"crossbook/domain/orderbook"
	"crossbook/service"
)

func newTestServer(t *testing.T) (*Server, *service.OrderService) {
	t.Helper()
	svc, err := service.New(
		orderbook.NewBook(),
		message.New("BTC/USDT", scale.DefaultPrice, scale.DefaultQuantity),
		depth.NewDecoder(scale.DefaultPrice, scale.DefaultQuantity),
	)
	require.NoError(t, err)
	return New(svc, Config{StreamInterval: 10 * time.Millisecond, StreamLevels: 5}, nil), svc
}

func post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, message.Response) {
	t.Helper()
	req := httptest.NewRequest("POST", "/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp message.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestPlaceOrder(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	w, resp := post(t, h, `{"OrderId":1,"Pair":"BTC/USDT","Price":"100.00","Quantity":"1","Side":"SELL"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, message.NoTradeMessage, resp.Message)

	w, resp = post(t, h, `{"OrderId":2,"Pair":"BTC/USDT","Price":"101.00","Quantity":"0.4","Side":"BUY"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp.Trades, 1)
	assert.Equal(t, int64(10000), resp.Trades[0].Price)
	assert.Equal(t, "SELL", resp.Trades[0].Maker)

	w, resp = post(t, h, `{"OrderId":3,"Pair":"BTC/USDT","Price":"101.00","Quantity":"0","Side":"BUY"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Quantity cannot be zero or negative", resp.Message)
}

func TestPlaceOrderBodyTooLarge(t *testing.T) {
	srv, _ := newTestServer(t)
	w, resp := post(t, srv.Handler(), `{"pad":"`+strings.Repeat("x", maxBodyBytes)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, message.StatusError, resp.Status)
}

func getBook(t *testing.T, h http.Handler, query string) (int, message.BookView) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/book"+query, nil))
	var v message.BookView
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	}
	return w.Code, v
}

func TestGetBookFollowsVersion(t *testing.T) {
	srv, svc := newTestServer(t)
	h := srv.Handler()

	code, v := getBook(t, h, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "BTC/USDT", v.Instrument)
	assert.Empty(t, v.Bids)

	_, err := svc.Place(orderbook.NewOrder(1, orderbook.Buy, 9900, 5))
	require.NoError(t, err)
	_, err = svc.Place(orderbook.NewOrder(2, orderbook.Buy, 9800, 5))
	require.NoError(t, err)

	code, v = getBook(t, h, "?limit=1")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, uint64(2), v.Version)
	assert.Equal(t, []message.LevelView{{Price: 9900, Quantity: 5, Orders: 1}}, v.Bids)

	code, _ = getBook(t, h, "?limit=abc")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = getBook(t, h, "?limit=-2")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealth(t *testing.T) {
	srv, svc := newTestServer(t)
	_, err := svc.Place(orderbook.NewOrder(1, orderbook.Sell, 100, 5))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var hv healthView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hv))
	assert.Equal(t, "ok", hv.Status)
	assert.Equal(t, 1, hv.Orders)
	assert.Equal(t, 1, hv.AskLevels)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest("OPTIONS", "/orders", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func readBook(t *testing.T, conn *websocket.Conn) message.BookView {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var v message.BookView
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestWebsocketStream(t *testing.T) {
	srv, svc := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Run(ctx)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readBook(t, conn)
	assert.Zero(t, first.Version)

	_, err = svc.Place(orderbook.NewOrder(1, orderbook.Buy, 9900, 5))
	require.NoError(t, err)

	// the hub may push the unchanged book once before seeing the order
	var v message.BookView
	for i := 0; i < 3 && v.Version == 0; i++ {
		v = readBook(t, conn)
	}
	assert.Equal(t, uint64(1), v.Version)
	require.Len(t, v.Bids, 1)
	assert.Equal(t, int64(9900), v.Bids[0].Price)

	assert.Eventually(t, func() bool { return srv.hub.size() == 1 }, time.Second, 10*time.Millisecond)
}
