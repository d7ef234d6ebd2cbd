package mock

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/yourorg/psp-multisafepay/internal/adapter"
	pspctx "github.com/yourorg/psp-multisafepay/internal/context"
)

// BaseURL is what the mock reports as its endpoint.
const BaseURL = "https://psp.mock/v1/json/"

// Gateway is a mock implementation of adapter.Gateway for testing.
// Calls are recorded so tests can assert how the orchestrators used the handle.
type Gateway struct {
	APIKey      string
	Environment pspctx.Environment

	CreateOrderFunc func(ctx context.Context, order *adapter.Order) (*adapter.OrderResponse, error)
	GetOrderFunc    func(ctx context.Context, orderID string) (*adapter.OrderResponse, error)

	mu           sync.Mutex
	createdOrder []*adapter.Order
	queriedIDs   []string
}

var _ adapter.Gateway = (*Gateway)(nil)

// NewGateway creates a new mock Gateway.
func NewGateway() *Gateway {
	return &Gateway{}
}

// Factory returns an adapter.Factory that always hands out g, recording the
// key and environment it was asked for.
func (g *Gateway) Factory() adapter.Factory {
	return func(apiKey string, env pspctx.Environment) adapter.Gateway {
		g.mu.Lock()
		g.APIKey = apiKey
		g.Environment = env
		g.mu.Unlock()
		return g
	}
}

// BaseURL implements adapter.Endpointer.
func (g *Gateway) BaseURL() string {
	return BaseURL
}

// CreateOrder calls CreateOrderFunc if defined, otherwise returns an initialized order.
func (g *Gateway) CreateOrder(ctx context.Context, order *adapter.Order) (*adapter.OrderResponse, error) {
	g.mu.Lock()
	g.createdOrder = append(g.createdOrder, order)
	g.mu.Unlock()

	if g.CreateOrderFunc != nil {
		return g.CreateOrderFunc(ctx, order)
	}
	return &adapter.OrderResponse{
		OrderID:    order.OrderID,
		Status:     "initialized",
		PaymentURL: "https://pay.mock/" + uuid.NewString(),
	}, nil
}

// GetOrder calls GetOrderFunc if defined, otherwise reports the order as completed.
func (g *Gateway) GetOrder(ctx context.Context, orderID string) (*adapter.OrderResponse, error) {
	g.mu.Lock()
	g.queriedIDs = append(g.queriedIDs, orderID)
	g.mu.Unlock()

	if g.GetOrderFunc != nil {
		return g.GetOrderFunc(ctx, orderID)
	}
	return &adapter.OrderResponse{OrderID: orderID, Status: "completed"}, nil
}

// CreatedOrders returns the orders passed to CreateOrder.
func (g *Gateway) CreatedOrders() []*adapter.Order {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*adapter.Order(nil), g.createdOrder...)
}

// QueriedOrderIDs returns the ids passed to GetOrder.
func (g *Gateway) QueriedOrderIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.queriedIDs...)
}
