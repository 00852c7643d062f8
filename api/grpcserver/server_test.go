package grpcserver

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"crossbook/adapter/depth"
	"crossbook/adapter/message"
	"crossbook/adapter/scale"
	"crossbook/domain/orderbook"
	"crossbook/service"
)

func startServer(t *testing.T) *Client {
	t.Helper()
	svc, err := service.New(
		orderbook.NewBook(),
		message.New("BTC/USDT", scale.DefaultPrice, scale.DefaultQuantity),
		depth.NewDecoder(scale.DefaultPrice, scale.DefaultQuantity),
	)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	g := NewGRPCServer(svc, nil)
	go func() { _ = g.Serve(lis) }()
	t.Cleanup(g.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func orderReq(t *testing.T, id int, side, price, qty string) *structpb.Struct {
	return mustStruct(t, map[string]any{
		"OrderId":  id,
		"Pair":     "BTC/USDT",
		"Price":    price,
		"Quantity": qty,
		"Side":     side,
	})
}

func TestPlaceOrderAndMatch(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	resp, err := c.PlaceOrder(ctx, orderReq(t, 1, "BUY", "100.00", "0.1"))
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Fields["status"].GetStringValue())
	assert.Equal(t, message.NoTradeMessage, resp.Fields["message"].GetStringValue())

	resp, err = c.PlaceOrder(ctx, orderReq(t, 2, "SELL", "100.00", "0.1"))
	require.NoError(t, err)
	trades := resp.Fields["trades"].GetListValue().GetValues()
	require.Len(t, trades, 1)
	tr := trades[0].GetStructValue().Fields
	assert.Equal(t, float64(1), tr["bidOrderId"].GetNumberValue())
	assert.Equal(t, float64(2), tr["askOrderId"].GetNumberValue())
	assert.Equal(t, float64(10000), tr["price"].GetNumberValue())
	assert.Equal(t, float64(100), tr["quantity"].GetNumberValue())
	assert.Equal(t, "BUY", tr["maker"].GetStringValue())
}

func TestPlaceOrderValidationEnvelope(t *testing.T) {
	c := startServer(t)
	resp, err := c.PlaceOrder(context.Background(), mustStruct(t, map[string]any{
		"OrderId": 1, "Pair": "BTC/USDT", "Price": "1", "Side": "BUY",
	}))
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Fields["status"].GetStringValue())
	assert.Equal(t, "Invalid message format: missing Quantity", resp.Fields["message"].GetStringValue())
}

func TestGetBook(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()
	for i, p := range []string{"99.00", "98.00", "97.00"} {
		_, err := c.PlaceOrder(ctx, orderReq(t, i+1, "BUY", p, "1"))
		require.NoError(t, err)
	}

	book, err := c.GetBook(ctx, mustStruct(t, map[string]any{"limit": 2}))
	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", book.Fields["instrument"].GetStringValue())
	assert.Equal(t, float64(3), book.Fields["version"].GetNumberValue())
	bids := book.Fields["bids"].GetListValue().GetValues()
	require.Len(t, bids, 2)
	assert.Equal(t, float64(9900), bids[0].GetStructValue().Fields["price"].GetNumberValue())
	assert.Empty(t, book.Fields["asks"].GetListValue().GetValues())

	for _, bad := range []any{-1, 1.5, 1001, 1e300} {
		_, err = c.GetBook(ctx, mustStruct(t, map[string]any{"limit": bad}))
		assert.Equal(t, codes.InvalidArgument, status.Code(err), "limit %v", bad)
	}

	book, err = c.GetBook(ctx, mustStruct(t, map[string]any{"limit": 1000}))
	require.NoError(t, err)
	assert.Len(t, book.Fields["bids"].GetListValue().GetValues(), 3)
}
