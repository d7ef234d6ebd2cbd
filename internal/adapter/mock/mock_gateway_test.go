package mock

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/psp-multisafepay/internal/adapter"
	pspctx "github.com/yourorg/psp-multisafepay/internal/context"
)

func TestGateway_DefaultBehavior(t *testing.T) {
	g := NewGateway()

	resp, err := g.CreateOrder(context.Background(), &adapter.Order{OrderID: "ORD-1"})
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", resp.OrderID)
	assert.Equal(t, "initialized", resp.Status)
	assert.Contains(t, resp.PaymentURL, "https://pay.mock/")

	status, err := g.GetOrder(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", status.Status)

	require.Len(t, g.CreatedOrders(), 1)
	assert.Equal(t, []string{"ORD-1"}, g.QueriedOrderIDs())
}

func TestGateway_CustomFuncs(t *testing.T) {
	g := NewGateway()
	g.CreateOrderFunc = func(ctx context.Context, order *adapter.Order) (*adapter.OrderResponse, error) {
		return nil, fmt.Errorf("custom create error")
	}
	g.GetOrderFunc = func(ctx context.Context, orderID string) (*adapter.OrderResponse, error) {
		return &adapter.OrderResponse{OrderID: orderID, Status: "declined"}, nil
	}

	_, err := g.CreateOrder(context.Background(), &adapter.Order{})
	require.Error(t, err)
	assert.Equal(t, "custom create error", err.Error())

	resp, err := g.GetOrder(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, "declined", resp.Status)
}

func TestGateway_Factory(t *testing.T) {
	g := NewGateway()
	handle := g.Factory()("live-key", pspctx.Live)

	assert.Same(t, g, handle)
	assert.Equal(t, "live-key", g.APIKey)
	assert.Equal(t, pspctx.Live, g.Environment)
}
