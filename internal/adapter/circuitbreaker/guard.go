package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/yourorg/psp-multisafepay/internal/adapter"
	pspctx "github.com/yourorg/psp-multisafepay/internal/context"
)

// ErrCircuitOpen is returned without calling the PSP while the circuit is open.
var ErrCircuitOpen = errors.New("circuit open")

type guardedGateway struct {
	next adapter.Gateway
	cb   *CircuitBreaker
	key  string
}

// Guard wraps a gateway so calls to key are tracked by cb.
func Guard(next adapter.Gateway, cb *CircuitBreaker, key string) adapter.Gateway {
	return &guardedGateway{next: next, cb: cb, key: key}
}

// GuardFactory wraps every gateway built by next, keyed by its base URL so that
// all handles for one endpoint share a circuit.
func GuardFactory(next adapter.Factory, cb *CircuitBreaker) adapter.Factory {
	return func(apiKey string, env pspctx.Environment) adapter.Gateway {
		gw := next(apiKey, env)
		return Guard(gw, cb, adapter.EndpointOf(gw))
	}
}

// BaseURL forwards to the wrapped gateway.
func (g *guardedGateway) BaseURL() string {
	return adapter.EndpointOf(g.next)
}

func (g *guardedGateway) CreateOrder(ctx context.Context, order *adapter.Order) (*adapter.OrderResponse, error) {
	if !g.cb.AllowRequest(g.key) {
		return nil, fmt.Errorf("%s: %w", g.key, ErrCircuitOpen)
	}
	resp, err := g.next.CreateOrder(ctx, order)
	g.record(err)
	return resp, err
}

func (g *guardedGateway) GetOrder(ctx context.Context, orderID string) (*adapter.OrderResponse, error) {
	if !g.cb.AllowRequest(g.key) {
		return nil, fmt.Errorf("%s: %w", g.key, ErrCircuitOpen)
	}
	resp, err := g.next.GetOrder(ctx, orderID)
	g.record(err)
	return resp, err
}

// record counts transport errors and 5xx answers; a rejected request
// (bad key, unknown order) says nothing about the endpoint's health.
func (g *guardedGateway) record(err error) {
	if err == nil {
		g.cb.RecordSuccess(g.key)
		return
	}
	var remoteErr *adapter.RemoteError
	if errors.As(err, &remoteErr) && remoteErr.StatusCode > 0 && remoteErr.StatusCode < http.StatusInternalServerError {
		g.cb.RecordSuccess(g.key)
		return
	}
	g.cb.RecordFailure(g.key)
}
