// Package policy decides whether a PSP order status counts as settled.
package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/yourorg/psp-multisafepay/internal/adapter"
)

// DefaultExpression settles only completed orders.
const DefaultExpression = `status == 'completed'`

// SettlementRule marks an order as settled when Expression evaluates to true.
// Expressions can use status (lower-cased), amount (cents) and currency.
type SettlementRule struct {
	ID         string
	Expression string
	Priority   int // lower runs first
}

type compiledRule struct {
	SettlementRule
	expr *govaluate.EvaluableExpression
}

// SettlementPolicy evaluates settlement rules; an order is settled when any rule matches.
type SettlementPolicy struct {
	rules []compiledRule
}

// NewSettlementPolicy compiles rules. Without rules, DefaultExpression is used.
func NewSettlementPolicy(rules []SettlementRule) (*SettlementPolicy, error) {
	if len(rules) == 0 {
		rules = []SettlementRule{{ID: "default", Expression: DefaultExpression}}
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if strings.TrimSpace(r.Expression) == "" {
			return nil, fmt.Errorf("settlement rule ID '%s' has an empty expression", r.ID)
		}
		expr, err := govaluate.NewEvaluableExpression(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rule ID '%s': %w", r.ID, err)
		}
		compiled = append(compiled, compiledRule{SettlementRule: r, expr: expr})
	}
	sort.SliceStable(compiled, func(i, j int) bool { return compiled[i].Priority < compiled[j].Priority })
	return &SettlementPolicy{rules: compiled}, nil
}

// NewExpressionPolicy is shorthand for a single-rule policy.
func NewExpressionPolicy(expression string) (*SettlementPolicy, error) {
	if strings.TrimSpace(expression) == "" {
		return NewSettlementPolicy(nil)
	}
	return NewSettlementPolicy([]SettlementRule{{ID: "configured", Expression: expression}})
}

// Settled reports whether resp is settled. A rule that fails to evaluate or
// yields a non-boolean stops evaluation and returns an error.
func (p *SettlementPolicy) Settled(resp *adapter.OrderResponse) (bool, error) {
	if resp == nil {
		return false, nil
	}
	params := map[string]interface{}{
		"status":   strings.ToLower(resp.Status),
		"amount":   float64(resp.Amount),
		"currency": resp.Currency,
	}
	for _, r := range p.rules {
		result, err := r.expr.Evaluate(params)
		if err != nil {
			return false, fmt.Errorf("failed to evaluate rule ID '%s': %w", r.ID, err)
		}
		matched, ok := result.(bool)
		if !ok {
			return false, fmt.Errorf("rule ID '%s' did not evaluate to a boolean (got %T)", r.ID, result)
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}
