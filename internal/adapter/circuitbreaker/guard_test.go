package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/psp-multisafepay/internal/adapter"
	"github.com/yourorg/psp-multisafepay/internal/adapter/mock"
	pspctx "github.com/yourorg/psp-multisafepay/internal/context"
)

func TestGuard_OpensOnTransportFailures(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 2})
	gw := mock.NewGateway()
	gw.GetOrderFunc = func(ctx context.Context, orderID string) (*adapter.OrderResponse, error) {
		return nil, fmt.Errorf("connection refused")
	}
	guarded := Guard(gw, cb, testEndpoint)

	for i := 0; i < 2; i++ {
		_, err := guarded.GetOrder(context.Background(), "ORD-1")
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrCircuitOpen))
	}

	_, err := guarded.GetOrder(context.Background(), "ORD-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.Len(t, gw.QueriedOrderIDs(), 2, "open circuit must not reach the gateway")

	_, err = guarded.CreateOrder(context.Background(), &adapter.Order{OrderID: "ORD-2"})
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.Empty(t, gw.CreatedOrders())
}

func TestGuard_ClientErrorsDoNotTrip(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 1})
	gw := mock.NewGateway()
	gw.CreateOrderFunc = func(ctx context.Context, order *adapter.Order) (*adapter.OrderResponse, error) {
		return nil, &adapter.RemoteError{StatusCode: http.StatusUnauthorized, Code: 1032, Message: "Invalid API key"}
	}
	guarded := Guard(gw, cb, testEndpoint)

	for i := 0; i < 3; i++ {
		_, err := guarded.CreateOrder(context.Background(), &adapter.Order{OrderID: "ORD-1"})
		var remoteErr *adapter.RemoteError
		require.True(t, errors.As(err, &remoteErr))
	}
	state, _ := cb.Status(testEndpoint)
	assert.Equal(t, StateClosed, state)
}

func TestGuard_ServerErrorsTrip(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 1})
	gw := mock.NewGateway()
	gw.CreateOrderFunc = func(ctx context.Context, order *adapter.Order) (*adapter.OrderResponse, error) {
		return nil, &adapter.RemoteError{StatusCode: http.StatusServiceUnavailable, Message: "down"}
	}
	guarded := Guard(gw, cb, testEndpoint)

	_, _ = guarded.CreateOrder(context.Background(), &adapter.Order{OrderID: "ORD-1"})
	state, _ := cb.Status(testEndpoint)
	assert.Equal(t, StateOpen, state)
}

func TestGuard_PassesThroughSuccess(t *testing.T) {
	cb, _ := newTestBreaker(Config{})
	guarded := Guard(mock.NewGateway(), cb, testEndpoint)

	resp, err := guarded.CreateOrder(context.Background(), &adapter.Order{OrderID: "ORD-1"})
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", resp.OrderID)
}

func TestGuard_ForwardsBaseURL(t *testing.T) {
	cb, _ := newTestBreaker(Config{})
	guarded := Guard(mock.NewGateway(), cb, testEndpoint)
	assert.Equal(t, mock.BaseURL, adapter.EndpointOf(guarded))
}

func TestGuardFactory_SharesCircuitPerEndpoint(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 1})
	gw := mock.NewGateway()
	gw.GetOrderFunc = func(context.Context, string) (*adapter.OrderResponse, error) {
		return nil, errors.New("connection reset")
	}
	factory := GuardFactory(gw.Factory(), cb)

	_, err := factory("key-a", pspctx.Live).GetOrder(context.Background(), "ORD-1")
	require.Error(t, err)

	_, err = factory("key-b", pspctx.Live).GetOrder(context.Background(), "ORD-1")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Len(t, gw.QueriedOrderIDs(), 1)
	assert.Equal(t, "key-b", gw.APIKey)
}
