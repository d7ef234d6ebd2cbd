// Package processor maps gateway results to the outcomes the callers of the
// orchestrators see. It does no I/O.
package processor

import (
	"errors"
	"strings"

	"github.com/yourorg/psp-multisafepay/internal/adapter"
)

// ActionRedirect is the only action a MultiSafepay payment produces.
const ActionRedirect = "redirect"

// Status labels returned by reconciliation when no PSP status is available.
const (
	LabelRequestUnavailable = "request unavailable"
	LabelOrderUnavailable   = "unable to retrieve order information"
)

// ErrNoPaymentURL is reported when the PSP accepted an order without a URL to send the buyer to.
var ErrNoPaymentURL = errors.New("psp returned no payment url")

// PaymentOutcome is what the checkout flow acts on.
type PaymentOutcome struct {
	Successful   bool   `json:"successful"`
	Action       string `json:"action"`
	RedirectURL  string `json:"redirect_url"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ReconciliationOutcome is the result of a status inquiry.
type ReconciliationOutcome struct {
	StatusLabel string `json:"status"`
	Settled     bool   `json:"settled"`
}

// PaymentSucceeded maps a created order. An accepted order without a payment
// URL is a failure, since the buyer could not be redirected anywhere.
func PaymentSucceeded(resp *adapter.OrderResponse, failURL string) PaymentOutcome {
	if resp == nil || strings.TrimSpace(resp.PaymentURL) == "" {
		return PaymentFailed(ErrNoPaymentURL, failURL)
	}
	return PaymentOutcome{
		Successful:  true,
		Action:      ActionRedirect,
		RedirectURL: resp.PaymentURL,
	}
}

// PaymentFailed sends the buyer to failURL.
func PaymentFailed(err error, failURL string) PaymentOutcome {
	msg := "payment could not be initiated"
	if err != nil {
		msg = err.Error()
	}
	return PaymentOutcome{
		Successful:   false,
		Action:       ActionRedirect,
		RedirectURL:  failURL,
		ErrorMessage: msg,
	}
}

// Reconciled maps an order status. settled is decided by the settlement policy.
func Reconciled(resp *adapter.OrderResponse, settled bool) ReconciliationOutcome {
	if resp == nil {
		return ReconciliationUnavailable()
	}
	return ReconciliationOutcome{StatusLabel: resp.Status, Settled: settled}
}

// ReconciliationUnavailable is returned when the PSP could not be asked.
func ReconciliationUnavailable() ReconciliationOutcome {
	return ReconciliationOutcome{StatusLabel: LabelOrderUnavailable}
}

// RequestUnavailable is returned when there is no inbound request to reconcile.
func RequestUnavailable() ReconciliationOutcome {
	return ReconciliationOutcome{StatusLabel: LabelRequestUnavailable}
}
