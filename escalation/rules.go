/*
rules.go - Escalation rule evaluation

PURPOSE:
  Rules decide how long a non-reconciliation case may sit unresolved
  before the sweep escalates it. Rules are scoped by company and
  optionally filtered by reason code, category, or amount range. The
  first matching rule in priority order supplies the delay; with no
  match a default of 7 days applies.

MALFORMED RULES:
  A rule with an inverted amount range or an unknown reason code fails
  with RuleEvaluationError. The sweep logs the failure and leaves the
  case unescalated rather than crashing.

SEE ALSO:
  - sweep.go: applies the computed delays
  - factory package: builds typed rule sets from configuration
*/
package escalation

import (
	"fmt"
	"time"

	"github.com/warp/recon-engine/ledger"
)

// =============================================================================
// RULE MATCHING
// =============================================================================

// matchRule reports whether a rule applies to a case. Empty filters
// match everything in scope.
func matchRule(r ledger.Rule, c ledger.Case) (bool, error) {
	if err := validateRule(r); err != nil {
		return false, err
	}
	if r.Company != "" && r.Company != c.Company {
		return false, nil
	}
	if len(r.ReasonCodes) > 0 && !containsReason(r.ReasonCodes, c.Reason) {
		return false, nil
	}
	if len(r.Categories) > 0 && !containsCategory(r.Categories, c.Reason.Category()) {
		return false, nil
	}
	if r.MinAmount != nil {
		if !r.MinAmount.SameCurrency(c.Amount) || c.Amount.Abs().LessThan(*r.MinAmount) {
			return false, nil
		}
	}
	if r.MaxAmount != nil {
		if !r.MaxAmount.SameCurrency(c.Amount) || c.Amount.Abs().GreaterThan(*r.MaxAmount) {
			return false, nil
		}
	}
	return true, nil
}

func validateRule(r ledger.Rule) error {
	if r.EscalateAfterDays <= 0 {
		return &ledger.RuleError{RuleID: r.ID, Reason: "escalate_after_days must be positive"}
	}
	if r.MinAmount != nil && r.MaxAmount != nil && r.MaxAmount.LessThan(*r.MinAmount) {
		return &ledger.RuleError{RuleID: r.ID, Reason: "inverted amount range"}
	}
	for _, code := range r.ReasonCodes {
		if !ledger.KnownReason(code) {
			return &ledger.RuleError{RuleID: r.ID, Reason: fmt.Sprintf("unknown reason code %q", code)}
		}
	}
	return nil
}

func containsReason(codes []ledger.ReasonCode, code ledger.ReasonCode) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func containsCategory(cats []ledger.ReasonCategory, cat ledger.ReasonCategory) bool {
	for _, c := range cats {
		if c == cat {
			return true
		}
	}
	return false
}

// =============================================================================
// DELAY COMPUTATION
// =============================================================================

// nextEscalation computes now + escalate_after_days from the first
// matching rule. Rules come pre-sorted by priority from the store.
// With no match, DefaultEscalationDays applies. A malformed rule
// surfaces as RuleEvaluationError; the caller decides whether that
// fails an operation or is isolated per case.
func nextEscalation(rules []ledger.Rule, c ledger.Case, now time.Time) (time.Time, error) {
	for _, r := range rules {
		ok, err := matchRule(r, c)
		if err != nil {
			return time.Time{}, err
		}
		if ok {
			return now.AddDate(0, 0, r.EscalateAfterDays), nil
		}
	}
	return now.AddDate(0, 0, ledger.DefaultEscalationDays), nil
}
