/*
scenarios.go - Demo scenario loaders

PURPOSE:
  Seeds the database with small, self-contained data sets that walk
  each reconciliation flow end to end. Useful for demos and for poking
  the API by hand without inventing payloads.

SCENARIOS:
  split-complete:    One expense funded by two movements, exact cover
  split-partial:     One movement partially matched, group stays open
  advance-lifecycle: Advance created, reimbursed in two installments
  escalation:        Case with a 14-day rule, ready for sweeping

DESIGN:
  Loaders go through the real engines, never raw store writes, so the
  seeded data satisfies every invariant the engines enforce. Each
  scenario uses its own id prefix; loading the same scenario twice
  conflicts on the first duplicate id and reports 409.

SEE ALSO:
  - handlers.go: HTTP plumbing
  - server.go: /api/scenarios routes
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/warp/recon-engine/advance"
	"github.com/warp/recon-engine/allocation"
	"github.com/warp/recon-engine/escalation"
	"github.com/warp/recon-engine/factory"
	"github.com/warp/recon-engine/ledger"
)

// ScenarioDTO describes one loadable scenario.
type ScenarioDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var scenarios = []ScenarioDTO{
	{
		Name:        "split-complete",
		Description: "A 500.00 EUR expense funded by two movements that cover it exactly.",
	},
	{
		Name:        "split-partial",
		Description: "A 1000.00 EUR movement matched against two expenses with 200.00 still open.",
	},
	{
		Name:        "advance-lifecycle",
		Description: "An 850.50 EUR employee advance reimbursed in two installments.",
	},
	{
		Name:        "escalation",
		Description: "A missing-receipt case governed by a 14-day escalation rule.",
	},
}

// ListScenarios returns the scenario catalog.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario reports the most recently loaded scenario.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"current": h.currentScenario})
}

// LoadScenario seeds the named scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var err error
	switch req.Name {
	case "split-complete":
		err = h.loadSplitComplete(r.Context())
	case "split-partial":
		err = h.loadSplitPartial(r.Context())
	case "advance-lifecycle":
		err = h.loadAdvanceLifecycle(r.Context())
	case "escalation":
		err = h.loadEscalation(r.Context())
	default:
		writeError(w, http.StatusNotFound, "Unknown scenario: "+req.Name, nil)
		return
	}
	if err != nil {
		h.writeDomainError(w, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.Name
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.Name})
}

func demoAmount(s string) ledger.Amount {
	a, err := ledger.ParseAmount(s, "EUR")
	if err != nil {
		panic("bad demo amount: " + s)
	}
	return a
}

func (h *Handler) seedMovement(ctx context.Context, id, company, amount string, date time.Time) error {
	return h.Store.PutMovement(ctx, ledger.Movement{
		ID:      ledger.MovementID(id),
		Company: company,
		Amount:  demoAmount(amount),
		Date:    date,
		Status:  ledger.MovementPosted,
		Mode:    ledger.ModeSimple,
	})
}

func (h *Handler) seedExpense(ctx context.Context, id, company, amount string, date time.Time) error {
	return h.Store.PutExpense(ctx, ledger.Expense{
		ID:      ledger.ExpenseID(id),
		Company: company,
		Amount:  demoAmount(amount),
		Date:    date,
		Mode:    ledger.ModeSimple,
	})
}

func (h *Handler) loadSplitComplete(ctx context.Context) error {
	day := time.Now().AddDate(0, 0, -3)
	if err := h.seedExpense(ctx, "demo-sc-e1", "demo", "500.00", day); err != nil {
		return err
	}
	if err := h.seedMovement(ctx, "demo-sc-m1", "demo", "300.00", day); err != nil {
		return err
	}
	if err := h.seedMovement(ctx, "demo-sc-m2", "demo", "200.00", day); err != nil {
		return err
	}
	_, err := h.Allocation.ProposeSplit(ctx, allocation.Proposal{
		GroupID:       "demo-sc-g1",
		Type:          ledger.SplitOneToMany,
		TargetExpense: "demo-sc-e1",
		ProposedBy:    "demo",
		Members: []allocation.MemberInput{
			{Movement: "demo-sc-m1", Amount: demoAmount("300.00")},
			{Movement: "demo-sc-m2", Amount: demoAmount("200.00")},
		},
	})
	return err
}

func (h *Handler) loadSplitPartial(ctx context.Context) error {
	day := time.Now().AddDate(0, 0, -5)
	if err := h.seedMovement(ctx, "demo-sp-m1", "demo", "1000.00", day); err != nil {
		return err
	}
	if err := h.seedExpense(ctx, "demo-sp-e1", "demo", "400.00", day); err != nil {
		return err
	}
	if err := h.seedExpense(ctx, "demo-sp-e2", "demo", "400.00", day); err != nil {
		return err
	}
	_, err := h.Allocation.ProposeSplit(ctx, allocation.Proposal{
		GroupID:        "demo-sp-g1",
		Type:           ledger.SplitManyToOne,
		TargetMovement: "demo-sp-m1",
		ProposedBy:     "demo",
		Members: []allocation.MemberInput{
			{Expense: "demo-sp-e1", Amount: demoAmount("400.00")},
			{Expense: "demo-sp-e2", Amount: demoAmount("400.00")},
		},
	})
	return err
}

func (h *Handler) loadAdvanceLifecycle(ctx context.Context) error {
	day := time.Now().AddDate(0, 0, -10)
	if err := h.seedExpense(ctx, "demo-adv-e1", "demo", "850.50", day); err != nil {
		return err
	}
	if _, err := h.Advances.Create(ctx, advance.CreateInput{
		ID:       "demo-adv-a1",
		Company:  "demo",
		Employee: "demo-emp-1",
		Expense:  "demo-adv-e1",
	}); err != nil {
		return err
	}
	// First installment only; the partial state is the point of the demo.
	_, err := h.Advances.RecordReimbursement(ctx, "demo-adv-a1",
		demoAmount("500.00"), "", "demo-adv-op1")
	return err
}

func (h *Handler) loadEscalation(ctx context.Context) error {
	rules, err := factory.ParseRuleSet([]byte(factory.DefaultRuleSetJSON("demo")))
	if err != nil {
		return err
	}
	for _, rule := range rules {
		if err := h.Store.PutRule(ctx, rule); err != nil {
			return err
		}
	}

	day := time.Now().AddDate(0, 0, -2)
	if err := h.seedExpense(ctx, "demo-esc-e1", "demo", "120.00", day); err != nil {
		return err
	}
	_, err = h.Escalation.OpenCase(ctx, escalation.OpenInput{
		ID:       "demo-esc-c1",
		Company:  "demo",
		Subject:  ledger.CaseSubject{Expense: "demo-esc-e1"},
		Reason:   ledger.ReasonMissingReceipt,
		Impact:   ledger.ImpactLow,
		Priority: 3,
		Note:     "receipt never uploaded",
		Actor:    "demo",
	})
	return err
}
