// Package reporting summarizes the audit trail of a transaction.
package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yourorg/psp-multisafepay/internal/auditlog"
)

// RetrospectiveReport summarizes every exchange recorded for one correlation id.
type RetrospectiveReport struct {
	CorrelationID   string         `json:"correlation_id"`
	TotalExchanges  int            `json:"total_exchanges"`
	Outbound        int            `json:"outbound"`
	Inbound         int            `json:"inbound"`
	FailedExchanges int            `json:"failed_exchanges"`
	ErrorBreakdown  map[string]int `json:"error_breakdown"`
	AmountInCents   int64          `json:"amount_in_cents"`
	Currency        string         `json:"currency,omitempty"`
	PaymentURL      string         `json:"payment_url,omitempty"`
	LastStatus      string         `json:"last_status,omitempty"`
	Settled         bool           `json:"settled"`
	DateFrom        time.Time      `json:"date_from"`
	DateTo          time.Time      `json:"date_to"`
	Duration        time.Duration  `json:"duration"`
}

// orderFields are the parts of logged request and response bodies the report reads.
type orderFields struct {
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	PaymentURL string `json:"payment_url"`
	Status     string `json:"status"`
}

// RetrospectiveReporter builds reports from an audit log.
type RetrospectiveReporter struct {
	lister auditlog.Lister
}

// NewRetrospectiveReporter creates a reporter reading from lister.
func NewRetrospectiveReporter(lister auditlog.Lister) *RetrospectiveReporter {
	return &RetrospectiveReporter{lister: lister}
}

// Report loads the entries of correlationID and summarizes them.
func (rr *RetrospectiveReporter) Report(ctx context.Context, correlationID string) (*RetrospectiveReport, error) {
	if rr.lister == nil {
		return nil, fmt.Errorf("reporting: no audit log to read from")
	}
	entries, err := rr.lister.ListByCorrelation(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("reporting: %w", err)
	}
	return GenerateRetrospective(correlationID, entries), nil
}

// GenerateRetrospective analyzes the entries of one transaction. Entries of
// other correlation ids are ignored.
func GenerateRetrospective(correlationID string, entries []auditlog.Entry) *RetrospectiveReport {
	report := &RetrospectiveReport{
		CorrelationID:  correlationID,
		ErrorBreakdown: make(map[string]int),
	}

	var latestStatusAt time.Time
	for _, e := range entries {
		if e.CorrelationID != correlationID {
			continue
		}
		report.TotalExchanges++
		if report.DateFrom.IsZero() || e.CreatedAt.Before(report.DateFrom) {
			report.DateFrom = e.CreatedAt
		}
		if e.CreatedAt.After(report.DateTo) {
			report.DateTo = e.CreatedAt
		}

		if e.Error != nil {
			report.FailedExchanges++
			report.ErrorBreakdown[*e.Error]++
		}

		switch e.Direction {
		case auditlog.DirectionIn:
			report.Inbound++
			if e.StatusCode != nil && *e.StatusCode == 1 {
				report.Settled = true
			}
		case auditlog.DirectionOut:
			report.Outbound++
			if req, ok := decode(e.RequestBody); ok && req.Amount != 0 && report.AmountInCents == 0 {
				report.AmountInCents = req.Amount
				report.Currency = req.Currency
			}
			if resp, ok := decode(e.ResponseBody); ok {
				if resp.PaymentURL != "" {
					report.PaymentURL = resp.PaymentURL
				}
				if resp.Status != "" && !e.CreatedAt.Before(latestStatusAt) {
					report.LastStatus = resp.Status
					latestStatusAt = e.CreatedAt
				}
			}
		}
	}

	report.Duration = report.DateTo.Sub(report.DateFrom)
	return report
}

func decode(body *string) (orderFields, bool) {
	var f orderFields
	if body == nil || *body == "" {
		return f, false
	}
	if err := json.Unmarshal([]byte(*body), &f); err != nil {
		return f, false
	}
	return f, true
}
