// Package basket holds the shopping-basket representation handed to payment
// providers and the pricing collaborator that totals it.
package basket

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Item is a generic record (basket, basket line, buyer) with free-form details.
type Item struct {
	ID         uint64
	EntityType string
	Title      string
	Details    map[string]string
}

// Detail returns the trimmed value of a detail, or "" when absent.
func (i Item) Detail(key string) string {
	if i.Details == nil {
		return ""
	}
	return strings.TrimSpace(i.Details[key])
}

// Group is one basket with its lines. Several groups can be paid in a single transaction.
type Group struct {
	Main  Item
	Lines []Item
}

// Pricer returns the VAT-inclusive price the PSP should charge for one basket group.
type Pricer interface {
	PriceInVat(ctx context.Context, group Group) (decimal.Decimal, error)
}

const (
	PriceDetail    = "price"
	QuantityDetail = "quantity"
)

// LinePricer prices a group as the sum of price × quantity over its lines.
// Prices are expected to already include VAT. A missing quantity counts as 1.
type LinePricer struct{}

// PriceInVat implements Pricer.
func (LinePricer) PriceInVat(_ context.Context, group Group) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, line := range group.Lines {
		raw := line.Detail(PriceDetail)
		if raw == "" {
			continue
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("basket line %d: invalid price %q: %w", line.ID, raw, err)
		}

		quantity := decimal.NewFromInt(1)
		if q := line.Detail(QuantityDetail); q != "" {
			quantity, err = decimal.NewFromString(q)
			if err != nil {
				return decimal.Zero, fmt.Errorf("basket line %d: invalid quantity %q: %w", line.ID, q, err)
			}
		}
		total = total.Add(price.Mul(quantity))
	}
	return total, nil
}
