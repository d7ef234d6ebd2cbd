// Package orchestrator runs the two MultiSafepay flows: starting a payment
// and reconciling an order when the PSP calls the webhook.
// Neither flow returns an error; every failure becomes an outcome the caller
// can act on, and every exchange with the PSP leaves an audit entry.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/yourorg/psp-multisafepay/internal/adapter"
	"github.com/yourorg/psp-multisafepay/internal/auditlog"
	"github.com/yourorg/psp-multisafepay/internal/basket"
	pspctx "github.com/yourorg/psp-multisafepay/internal/context"
	"github.com/yourorg/psp-multisafepay/internal/processor"
)

const (
	// PSPName is written to every audit entry.
	PSPName = "MultiSafepay"

	// TransactionIDParam is the query parameter MultiSafepay puts on webhook calls.
	TransactionIDParam = "transactionid"

	maxWebhookBody = 64 << 10
)

// ErrMissingTransactionID is recorded when a webhook call carries no order id.
var ErrMissingTransactionID = errors.New("webhook request has no " + TransactionIDParam)

// SettingsResolver fills in the API key for the current environment.
type SettingsResolver interface {
	ResolveSettings(ctx context.Context, base pspctx.ProviderSettings) (pspctx.ProviderSettings, error)
}

// OrderBuilder turns baskets into a PSP order.
type OrderBuilder interface {
	BuildOrder(ctx context.Context, baskets []basket.Group, buyer basket.Item, method pspctx.PaymentMethodSettings, invoiceNumber string) (*adapter.Order, error)
}

// SettlementPolicy decides whether an order status means the order is paid.
type SettlementPolicy interface {
	Settled(resp *adapter.OrderResponse) (bool, error)
}

type metrics struct {
	payments        *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		payments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "psp_payment_initiations_total",
			Help: "Payment initiations, partitioned by result.",
		}, []string{"result"}),
		reconciliations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "psp_reconciliations_total",
			Help: "Webhook reconciliations, partitioned by result.",
		}, []string{"result"}),
		gatewayDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "psp_gateway_request_duration_seconds",
			Help:    "Duration of calls to the PSP API.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "result"}),
	}
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	resolver SettingsResolver
	builder  OrderBuilder
	factory  adapter.Factory
	audit    *auditlog.Recorder
	policy   SettlementPolicy
	env      pspctx.Environment
	logger   *zap.Logger
	metrics  *metrics
}

// NewOrchestrator creates an Orchestrator for the given deployment environment.
// Metrics are registered on reg; a nil reg leaves them unregistered.
func NewOrchestrator(
	resolver SettingsResolver,
	builder OrderBuilder,
	factory adapter.Factory,
	audit *auditlog.Recorder,
	policy SettlementPolicy,
	env pspctx.Environment,
	logger *zap.Logger,
	reg prometheus.Registerer,
) *Orchestrator {
	if resolver == nil {
		panic("SettingsResolver cannot be nil")
	}
	if builder == nil {
		panic("OrderBuilder cannot be nil")
	}
	if factory == nil {
		panic("gateway Factory cannot be nil")
	}
	if audit == nil {
		panic("audit Recorder cannot be nil")
	}
	if policy == nil {
		panic("SettlementPolicy cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		resolver: resolver,
		builder:  builder,
		factory:  factory,
		audit:    audit,
		policy:   policy,
		env:      env,
		logger:   logger,
		metrics:  newMetrics(reg),
	}
}

// Environment returns the deployment environment the orchestrator was built for.
func (o *Orchestrator) Environment() pspctx.Environment {
	return o.env
}

// InitiatePayment creates a redirect order for invoiceNumber. On any failure
// the buyer is sent to the method's fail URL. Exactly one outbound audit
// entry is written per call.
func (o *Orchestrator) InitiatePayment(
	ctx context.Context,
	baskets []basket.Group,
	buyer basket.Item,
	method pspctx.PaymentMethodSettings,
	invoiceNumber string,
) (outcome processor.PaymentOutcome) {
	ctx, span := otel.Tracer("orchestrator").Start(ctx, "Orchestrator.InitiatePayment")
	defer span.End()
	span.SetAttributes(attribute.String("invoice_number", invoiceNumber), attribute.String("environment", o.env.String()))

	tc := pspctx.NewTraceContext(ctx)
	logger := o.logger.With(zap.String("trace_id", tc.TraceID), zap.String("invoice_number", invoiceNumber))
	failURL := method.Provider.FailURL

	pending := o.audit.Begin(PSPName, invoiceNumber, auditlog.DirectionOut, "")
	defer pending.Flush(ctx)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic during payment initiation: %v", r)
			logger.Error("Recovered from panic", zap.Error(err))
			pending.SetError(err)
			outcome = processor.PaymentFailed(err, failURL)
		}
		result := "success"
		if !outcome.Successful {
			result = "failure"
			span.SetStatus(codes.Error, outcome.ErrorMessage)
		}
		o.metrics.payments.WithLabelValues(result).Inc()
		span.SetAttributes(attribute.Bool("successful", outcome.Successful))
	}()

	fail := func(stage string, err error) processor.PaymentOutcome {
		logger.Warn("Payment initiation failed", zap.String("stage", stage), zap.Error(err))
		span.RecordError(err)
		pending.SetError(err)
		return processor.PaymentFailed(err, failURL)
	}

	resolved, err := o.resolver.ResolveSettings(ctx, method.Provider)
	if err != nil {
		return fail("resolve_settings", err)
	}

	order, err := o.builder.BuildOrder(ctx, baskets, buyer, method.WithProvider(resolved), invoiceNumber)
	if err != nil {
		return fail("build_order", err)
	}
	if body, err := json.Marshal(order); err == nil {
		pending.SetRequestBody(string(body))
	}

	gw := o.factory(order.APIKey, o.env)
	pending.SetURL(adapter.EndpointOf(gw) + "orders")

	start := time.Now()
	resp, err := gw.CreateOrder(ctx, order)
	o.observeGateway("create_order", start, err)
	if err != nil {
		return fail("create_order", err)
	}
	if body, err := json.Marshal(resp); err == nil {
		pending.SetResponseBody(string(body))
	}

	outcome = processor.PaymentSucceeded(resp, failURL)
	if !outcome.Successful {
		return fail("create_order", processor.ErrNoPaymentURL)
	}
	logger.Info("Payment initiated",
		zap.String("order_id", resp.OrderID),
		zap.String("status", resp.Status),
		zap.Int64("amount_in_cents", order.AmountInCents),
		zap.String("currency", order.CurrencyCode),
	)
	return outcome
}

// ReconcileStatus asks the PSP for the state of the order named in the webhook
// request. A nil request yields "request unavailable" without touching the PSP
// or the audit log; otherwise exactly two audit entries are written, one for
// the inbound webhook hit and one for the outbound status query.
func (o *Orchestrator) ReconcileStatus(ctx context.Context, req *http.Request, method pspctx.PaymentMethodSettings) (outcome processor.ReconciliationOutcome) {
	if req == nil {
		o.metrics.reconciliations.WithLabelValues("request_unavailable").Inc()
		return processor.RequestUnavailable()
	}

	ctx, span := otel.Tracer("orchestrator").Start(ctx, "Orchestrator.ReconcileStatus")
	defer span.End()

	rawBody, truncated := readBody(req)
	orderID := GetInvoiceNumberFromRequest(req)
	span.SetAttributes(attribute.String("order_id", orderID))

	tc := pspctx.NewTraceContext(ctx)
	logger := o.logger.With(zap.String("trace_id", tc.TraceID), zap.String("order_id", orderID))
	if truncated {
		logger.Warn("Webhook body exceeds audit limit, logging a truncated copy", zap.Int("limit", maxWebhookBody))
	}

	inbound := o.audit.Begin(PSPName, orderID, auditlog.DirectionIn, requestURL(req))
	if rawBody != "" {
		inbound.SetRequestBody(rawBody)
	}
	inbound.SetStatusCode(0)
	outbound := o.audit.Begin(PSPName, orderID, auditlog.DirectionOut, "")
	outbound.SetStatusCode(0)

	defer inbound.Flush(ctx)
	defer outbound.Flush(ctx)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic during reconciliation: %v", r)
			logger.Error("Recovered from panic", zap.Error(err))
			outbound.SetError(err)
			outcome = processor.ReconciliationUnavailable()
		}
		settled := 0
		if outcome.Settled {
			settled = 1
		}
		inbound.SetStatusCode(settled)
		outbound.SetStatusCode(settled)
		if body, err := json.Marshal(outcome); err == nil {
			inbound.SetResponseBody(string(body))
		}

		result := "unsettled"
		switch {
		case outcome.Settled:
			result = "settled"
		case outcome.StatusLabel == processor.LabelOrderUnavailable:
			result = "unavailable"
			span.SetStatus(codes.Error, outcome.StatusLabel)
		}
		o.metrics.reconciliations.WithLabelValues(result).Inc()
		span.SetAttributes(attribute.String("status", outcome.StatusLabel), attribute.Bool("settled", outcome.Settled))
	}()

	unavailable := func(stage string, err error) processor.ReconciliationOutcome {
		logger.Warn("Order status unavailable", zap.String("stage", stage), zap.Error(err))
		span.RecordError(err)
		outbound.SetError(err)
		return processor.ReconciliationUnavailable()
	}

	if orderID == "" {
		return unavailable("read_request", ErrMissingTransactionID)
	}

	resolved, err := o.resolver.ResolveSettings(ctx, method.Provider)
	if err != nil {
		return unavailable("resolve_settings", err)
	}

	gw := o.factory(resolved.MultiSafepay.APIKey, o.env)
	outbound.SetURL(adapter.EndpointOf(gw) + "orders/" + url.PathEscape(orderID))

	start := time.Now()
	resp, err := gw.GetOrder(ctx, orderID)
	o.observeGateway("get_order", start, err)
	if err != nil {
		return unavailable("get_order", err)
	}
	if body, err := json.Marshal(resp); err == nil {
		outbound.SetResponseBody(string(body))
	}

	settled, err := o.policy.Settled(resp)
	if err != nil {
		logger.Error("Settlement policy failed, treating order as not settled", zap.Error(err))
		outbound.SetError(err)
		settled = false
	}

	logger.Info("Order status reconciled", zap.String("status", resp.Status), zap.Bool("settled", settled))
	return processor.Reconciled(resp, settled)
}

// GetInvoiceNumberFromRequest returns the transactionid of a webhook request,
// looking at the query string first and then at posted form values.
func GetInvoiceNumberFromRequest(req *http.Request) string {
	if req == nil {
		return ""
	}
	if req.URL != nil {
		if id := req.URL.Query().Get(TransactionIDParam); id != "" {
			return id
		}
	}
	if req.Method == http.MethodPost || req.Method == http.MethodPut {
		return req.FormValue(TransactionIDParam)
	}
	return ""
}

func (o *Orchestrator) observeGateway(operation string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	o.metrics.gatewayDuration.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
}

// readBody returns up to maxWebhookBody bytes of the request body for the
// audit log and reports whether there was more. The body is put back in full
// so it can be read again.
func readBody(req *http.Request) (string, bool) {
	if req.Body == nil || req.Body == http.NoBody {
		return "", false
	}
	raw, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBody+1))
	req.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(raw), req.Body), req.Body}
	if err != nil {
		return "", false
	}
	if len(raw) > maxWebhookBody {
		return string(raw[:maxWebhookBody]), true
	}
	return string(raw), false
}

func requestURL(req *http.Request) string {
	if req.URL == nil {
		return ""
	}
	return req.URL.String()
}
