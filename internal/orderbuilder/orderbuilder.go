// Package orderbuilder turns baskets, buyer data and resolved provider settings
// into the MultiSafepay redirect order that is sent to the gateway.
package orderbuilder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yourorg/psp-multisafepay/internal/adapter"
	"github.com/yourorg/psp-multisafepay/internal/basket"
	pspctx "github.com/yourorg/psp-multisafepay/internal/context"
)

// Basket details that override provider settings for a single transaction.
const (
	APIKeyDetail               = "MultiSafePay_ApiKey"
	TransactionReferenceDetail = "MultiSafePay_TransactionReference"
	CurrencyDetail             = "MultiSafePay_Currency"
)

var (
	// ErrInvalidArgument is returned when no basket was supplied.
	ErrInvalidArgument = errors.New("orderbuilder: at least one basket is required")
	// ErrInvariantViolation is returned when the baskets total to a negative
	// amount or to more cents than an int64 holds.
	ErrInvariantViolation = errors.New("orderbuilder: basket total is negative or not representable")
)

var (
	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(math.MaxInt64)
)

// Builder builds orders. It is safe for concurrent use.
type Builder struct {
	pricer basket.Pricer
	built  *prometheus.CounterVec
}

// NewBuilder creates a Builder. Metrics are registered on reg; a nil reg
// leaves them unregistered.
func NewBuilder(pricer basket.Pricer, reg prometheus.Registerer) *Builder {
	if pricer == nil {
		panic("basket pricer cannot be nil")
	}
	return &Builder{
		pricer: pricer,
		built: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "orderbuilder_orders_built_total",
			Help: "Number of orders built, partitioned by result.",
		}, []string{"result"}),
	}
}

// BuiltCounter exposes the build counter for tests.
func (b *Builder) BuiltCounter() *prometheus.CounterVec {
	return b.built
}

// BuildOrder builds the order for invoiceNumber. method.Provider must already
// carry the resolved API key.
func (b *Builder) BuildOrder(ctx context.Context, baskets []basket.Group, buyer basket.Item, method pspctx.PaymentMethodSettings, invoiceNumber string) (*adapter.Order, error) {
	ctx, span := otel.Tracer("orderbuilder").Start(ctx, "OrderBuilder.BuildOrder")
	defer span.End()
	span.SetAttributes(
		attribute.String("invoice_number", invoiceNumber),
		attribute.Int("basket_count", len(baskets)),
		attribute.Int64("buyer_id", int64(buyer.ID)),
	)

	order, err := b.build(ctx, baskets, method, invoiceNumber)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.built.WithLabelValues("error").Inc()
		return nil, err
	}
	span.SetAttributes(attribute.Int64("amount_in_cents", order.AmountInCents), attribute.String("currency", order.CurrencyCode))
	b.built.WithLabelValues("success").Inc()
	return order, nil
}

func (b *Builder) build(ctx context.Context, baskets []basket.Group, method pspctx.PaymentMethodSettings, invoiceNumber string) (*adapter.Order, error) {
	if len(baskets) == 0 {
		return nil, ErrInvalidArgument
	}
	first := baskets[0].Main
	provider := method.Provider

	apiKey := provider.MultiSafepay.APIKey
	if override := first.Detail(APIKeyDetail); override != "" {
		apiKey = override
	}

	total := decimal.Zero
	for i, group := range baskets {
		price, err := b.pricer.PriceInVat(ctx, group)
		if err != nil {
			return nil, fmt.Errorf("orderbuilder: failed to price basket %d (index %d): %w", group.Main.ID, i, err)
		}
		total = total.Add(price)
	}
	if total.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrInvariantViolation, total.String())
	}
	cents, err := AmountInCents(total)
	if err != nil {
		return nil, err
	}

	currency := provider.Currency
	if override := first.Detail(CurrencyDetail); override != "" {
		currency = override
	}

	description := first.Detail(TransactionReferenceDetail)
	if description == "" {
		description = "Order #" + strconv.FormatUint(first.ID, 10)
	}

	return &adapter.Order{
		Type:          adapter.OrderTypeRedirect,
		OrderID:       invoiceNumber,
		GatewayID:     method.ExternalName,
		AmountInCents: cents,
		CurrencyCode:  currency,
		Description:   description,
		PaymentOptions: adapter.PaymentOptions{
			NotificationURL: provider.WebhookURL,
			RedirectURL:     provider.SuccessURL,
			CancelURL:       provider.FailURL,
		},
		APIKey: apiKey,
	}, nil
}

// AmountInCents converts a decimal amount to minor units, rounding half to even.
// Amounts outside [0, math.MaxInt64] cents yield ErrInvariantViolation.
func AmountInCents(total decimal.Decimal) (int64, error) {
	cents := total.Mul(hundred).RoundBank(0)
	if cents.IsNegative() || cents.GreaterThan(maxCents) {
		return 0, fmt.Errorf("%w: %s", ErrInvariantViolation, total.String())
	}
	return cents.IntPart(), nil
}
