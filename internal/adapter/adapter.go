// Package adapter defines the gateway interface the orchestrators call and the
// wire types exchanged with the payment service provider.
// Implementations handle provider-specific serialization and error mapping;
// they never retry, a failed call is reported to the caller immediately.
package adapter

import (
	"context"
	"fmt"

	pspctx "github.com/yourorg/psp-multisafepay/internal/context"
)

// OrderTypeRedirect sends the buyer to a hosted payment page.
const OrderTypeRedirect = "redirect"

// PaymentOptions carries the URLs the PSP calls back or redirects to.
type PaymentOptions struct {
	NotificationURL string `json:"notification_url"`
	RedirectURL     string `json:"redirect_url"`
	CancelURL       string `json:"cancel_url"`
}

// Order is the outbound payment order.
type Order struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"order_id"`
	GatewayID      string         `json:"gateway"`
	AmountInCents  int64          `json:"amount"`
	CurrencyCode   string         `json:"currency"`
	Description    string         `json:"description"`
	PaymentOptions PaymentOptions `json:"payment_options"`

	// APIKey is the key the order must be sent with. Never serialized.
	APIKey string `json:"-"`
}

// OrderResponse is the order as reported back by the PSP.
type OrderResponse struct {
	OrderID       string `json:"order_id"`
	TransactionID any    `json:"transaction_id,omitempty"`
	Status        string `json:"status"`
	PaymentURL    string `json:"payment_url,omitempty"`
	Amount        int64  `json:"amount,omitempty"`
	Currency      string `json:"currency,omitempty"`
	Created       string `json:"created,omitempty"`
	Modified      string `json:"modified,omitempty"`
}

// RemoteError is returned when the PSP answered but rejected the call or sent
// something that could not be understood.
type RemoteError struct {
	StatusCode  int    // HTTP status code of the response
	Code        int    // PSP error_code, if any
	Message     string // PSP error_info or a description of the problem
	RawResponse []byte
}

func (e *RemoteError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("psp error %d (http %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("psp error (http %d): %s", e.StatusCode, e.Message)
}

// Gateway is a handle bound to one API key and endpoint.
type Gateway interface {
	// CreateOrder registers the order and returns the payment URL to redirect to.
	CreateOrder(ctx context.Context, order *Order) (*OrderResponse, error)
	// GetOrder returns the current state of an order.
	GetOrder(ctx context.Context, orderID string) (*OrderResponse, error)
}

// Factory builds a Gateway for an API key and deployment environment.
type Factory func(apiKey string, env pspctx.Environment) Gateway

// Endpointer is implemented by gateways that know the base URL they call.
type Endpointer interface {
	BaseURL() string
}

// EndpointOf returns the base URL of g, or "" when g does not expose one.
func EndpointOf(g Gateway) string {
	if e, ok := g.(Endpointer); ok {
		return e.BaseURL()
	}
	return ""
}
