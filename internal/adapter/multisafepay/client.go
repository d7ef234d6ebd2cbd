package multisafepay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yourorg/psp-multisafepay/internal/adapter"
	pspctx "github.com/yourorg/psp-multisafepay/internal/context"
)

const (
	ProductionBaseURL = "https://api.multisafepay.com/v1/json/"
	SandboxBaseURL    = "https://testapi.multisafepay.com/v1/json/"

	defaultTimeout = 30 * time.Second
)

// BaseURL returns the API endpoint for a deployment environment.
func BaseURL(env pspctx.Environment) string {
	if env.IsProduction() {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

// Client implements adapter.Gateway for the MultiSafepay JSON API.
type Client struct {
	httpClient *http.Client
	apiKey     string
	apiBaseURL string
}

var _ adapter.Gateway = (*Client)(nil)

// NewClient creates a client bound to apiKey and the endpoint for env.
func NewClient(apiKey string, env pspctx.Environment, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		httpClient: httpClient,
		apiKey:     apiKey,
		apiBaseURL: BaseURL(env),
	}
}

// NewFactory returns an adapter.Factory sharing one http.Client across handles.
func NewFactory(httpClient *http.Client) adapter.Factory {
	return func(apiKey string, env pspctx.Environment) adapter.Gateway {
		return NewClient(apiKey, env, httpClient)
	}
}

// WithBaseURL returns a copy of c that talks to baseURL instead. baseURL must
// end with a slash.
func (c *Client) WithBaseURL(baseURL string) *Client {
	cp := *c
	cp.apiBaseURL = baseURL
	return &cp
}

// BaseURL returns the endpoint this client talks to.
func (c *Client) BaseURL() string {
	return c.apiBaseURL
}

// envelope is the wrapper MultiSafepay puts around every response.
type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	ErrorCode int             `json:"error_code"`
	ErrorInfo string          `json:"error_info"`
}

// CreateOrder posts a redirect order.
func (c *Client) CreateOrder(ctx context.Context, order *adapter.Order) (*adapter.OrderResponse, error) {
	if order == nil {
		return nil, fmt.Errorf("multisafepay: order cannot be nil")
	}
	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("multisafepay: failed to encode order: %w", err)
	}
	return c.do(ctx, http.MethodPost, "orders", body)
}

// GetOrder fetches an order by its merchant order id.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*adapter.OrderResponse, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("multisafepay: order id cannot be empty")
	}
	return c.do(ctx, http.MethodGet, "orders/"+url.PathEscape(orderID), nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*adapter.OrderResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("multisafepay: failed to create http request: %w", err)
	}
	req.Header.Set("api_key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("multisafepay: http client error: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("multisafepay: failed to read response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &adapter.RemoteError{
			StatusCode:  resp.StatusCode,
			Message:     fmt.Sprintf("malformed response: %v", err),
			RawResponse: raw,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		msg := env.ErrorInfo
		if msg == "" {
			msg = fmt.Sprintf("request failed with HTTP %d", resp.StatusCode)
		}
		return nil, &adapter.RemoteError{
			StatusCode:  resp.StatusCode,
			Code:        env.ErrorCode,
			Message:     msg,
			RawResponse: raw,
		}
	}

	var order adapter.OrderResponse
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, &adapter.RemoteError{StatusCode: resp.StatusCode, Message: "response has no data", RawResponse: raw}
	}
	if err := json.Unmarshal(env.Data, &order); err != nil {
		return nil, &adapter.RemoteError{
			StatusCode:  resp.StatusCode,
			Message:     fmt.Sprintf("malformed order data: %v", err),
			RawResponse: raw,
		}
	}
	return &order, nil
}
