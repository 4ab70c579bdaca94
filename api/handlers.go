/*
handlers.go - HTTP API handlers for the reconciliation engine

PURPOSE:
  Exposes the reconciliation engines via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Movements:
    GET    /api/movements              List movements (?company=)
    POST   /api/movements              Register a bank movement
    GET    /api/movements/{id}         Get one movement
    POST   /api/movements/{id}/cancel  Cancel a movement

  Expenses:
    GET    /api/expenses               List expenses (?company=)
    POST   /api/expenses               Register an expense
    GET    /api/expenses/{id}          Get one expense

  Splits:
    POST   /api/splits                 Propose a split group
    GET    /api/splits                 List split groups
    GET    /api/splits/{id}            Get a group with members
    PUT    /api/splits/{id}            Revise an open group's members
    POST   /api/splits/{id}/finalize   Close a fully covered group
    POST   /api/splits/{id}/reject     Reject a group, release members

  Advances:
    POST   /api/advances                       Flag an expense as advance
    GET    /api/advances                       List advances (?company=)
    GET    /api/advances/{id}                  Get one advance
    POST   /api/advances/{id}/reimbursements   Record a repayment
    POST   /api/advances/{id}/cancel           Cancel an advance

  Cases:
    POST   /api/cases                  Open a case
    GET    /api/cases                  List cases (?company=&status=&open=)
    GET    /api/cases/{id}             Get one case
    GET    /api/cases/{id}/history     Case transition log
    POST   /api/cases/{id}/{action}    start|resolve|dismiss|hold|
                                       require-approval|resume

  Rules & sweeps:
    GET    /api/rules                  List rules (?company=)
    PUT    /api/rules                  Upload a rule set (JSON)
    POST   /api/rules/defaults         Install the starter rule set
    DELETE /api/rules/{id}             Delete a rule
    POST   /api/sweeps                 Run an escalation sweep now
    GET    /api/sweeps                 List sweep runs

  Analytics:
    GET    /api/analytics/report       Aggregated report (?company=)

ERROR HANDLING:
  Domain errors map onto HTTP status through the ledger error
  predicates:
  - 400: Validation errors, malformed amounts, invalid input
  - 404: Record not found
  - 409: Overflow, double-allocation, state conflicts, version races
  - 500: Everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/recon-engine/advance"
	"github.com/warp/recon-engine/allocation"
	"github.com/warp/recon-engine/analytics"
	"github.com/warp/recon-engine/escalation"
	"github.com/warp/recon-engine/factory"
	"github.com/warp/recon-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers. Store is the
// interface type so tests run against the in-memory store.
type Handler struct {
	Store      ledger.TxStore
	Ledger     *ledger.Ledger
	Allocation *allocation.Engine
	Advances   *advance.Ledger
	Escalation *escalation.Engine
	Analytics  *analytics.Aggregator
	Log        *logrus.Logger

	validate *validator.Validate

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a handler with all engines wired to the store.
func NewHandler(store ledger.TxStore, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.New()
	}
	esc := escalation.NewEngine(store, nil, log)
	return &Handler{
		Store:      store,
		Ledger:     ledger.NewLedger(store),
		Allocation: allocation.NewEngine(store),
		Advances:   advance.NewLedger(store),
		Escalation: esc,
		Analytics:  analytics.NewAggregator(store),
		Log:        log,
		validate:   validator.New(),
	}
}

// decode parses and validates a JSON request body.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

// =============================================================================
// MOVEMENT HANDLERS
// =============================================================================

// CreateMovement registers a bank-reported transaction.
func (h *Handler) CreateMovement(w http.ResponseWriter, r *http.Request) {
	var req CreateMovementRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := ledger.ParseAmount(req.Amount, ledger.Currency(req.Currency))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	m := ledger.Movement{
		ID:      ledger.MovementID(req.ID),
		Company: req.Company,
		Amount:  amount,
		Date:    date,
		Status:  ledger.MovementPosted,
		Mode:    ledger.ModeSimple,
	}
	if err := h.Store.PutMovement(r.Context(), m); err != nil {
		h.writeDomainError(w, "Failed to create movement", err)
		return
	}

	created, err := h.Store.GetMovement(r.Context(), m.ID)
	if err != nil {
		h.writeDomainError(w, "Failed to read movement back", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(created))
}

// GetMovement returns one movement.
func (h *Handler) GetMovement(w http.ResponseWriter, r *http.Request) {
	id := ledger.MovementID(chi.URLParam(r, "id"))
	m, err := h.Store.GetMovement(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get movement", err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTO(m))
}

// ListMovements returns movements, optionally filtered by company.
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	movements, err := h.Store.ListMovements(r.Context(), r.URL.Query().Get("company"))
	if err != nil {
		h.writeDomainError(w, "Failed to list movements", err)
		return
	}
	dtos := make([]MovementDTO, len(movements))
	for i, m := range movements {
		dtos[i] = toMovementDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CancelMovement flips a movement to cancelled. The row stays; a
// cancelled movement just refuses further allocation.
func (h *Handler) CancelMovement(w http.ResponseWriter, r *http.Request) {
	id := ledger.MovementID(chi.URLParam(r, "id"))

	var result ledger.Movement
	err := ledger.Retry(3, func() error {
		m, err := h.Store.GetMovement(r.Context(), id)
		if err != nil {
			return err
		}
		if m.Status == ledger.MovementCancelled {
			result = m
			return nil
		}
		m.Status = ledger.MovementCancelled
		if err := h.Store.UpdateMovement(r.Context(), m, m.Version); err != nil {
			return err
		}
		result, err = h.Store.GetMovement(r.Context(), id)
		return err
	})
	if err != nil {
		h.writeDomainError(w, "Failed to cancel movement", err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTO(result))
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

// CreateExpense registers an expense record.
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req CreateExpenseRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := ledger.ParseAmount(req.Amount, ledger.Currency(req.Currency))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	e := ledger.Expense{
		ID:      ledger.ExpenseID(req.ID),
		Company: req.Company,
		Amount:  amount,
		Date:    date,
		Mode:    ledger.ModeSimple,
	}
	if err := h.Store.PutExpense(r.Context(), e); err != nil {
		h.writeDomainError(w, "Failed to create expense", err)
		return
	}

	created, err := h.Store.GetExpense(r.Context(), e.ID)
	if err != nil {
		h.writeDomainError(w, "Failed to read expense back", err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(created))
}

// GetExpense returns one expense.
func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	id := ledger.ExpenseID(chi.URLParam(r, "id"))
	e, err := h.Store.GetExpense(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get expense", err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(e))
}

// ListExpenses returns expenses, optionally filtered by company.
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.Store.ListExpenses(r.Context(), r.URL.Query().Get("company"))
	if err != nil {
		h.writeDomainError(w, "Failed to list expenses", err)
		return
	}
	dtos := make([]ExpenseDTO, len(expenses))
	for i, e := range expenses {
		dtos[i] = toExpenseDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SPLIT HANDLERS
// =============================================================================

func (h *Handler) proposalFromRequest(groupID string, splitType, targetExpense, targetMovement, currency, proposedBy string, members []SplitMemberInput) (allocation.Proposal, error) {
	p := allocation.Proposal{
		GroupID:        ledger.GroupID(groupID),
		Type:           ledger.SplitType(splitType),
		TargetExpense:  ledger.ExpenseID(targetExpense),
		TargetMovement: ledger.MovementID(targetMovement),
		ProposedBy:     proposedBy,
	}
	for _, m := range members {
		amount, err := ledger.ParseAmount(m.Amount, ledger.Currency(currency))
		if err != nil {
			return allocation.Proposal{}, err
		}
		in := allocation.MemberInput{
			Expense:  ledger.ExpenseID(m.ExpenseID),
			Movement: ledger.MovementID(m.MovementID),
			Amount:   amount,
			Note:     m.Note,
		}
		if m.Percent != nil {
			pct, err := parsePercent(*m.Percent)
			if err != nil {
				return allocation.Proposal{}, err
			}
			in.Percent = pct
		}
		p.Members = append(p.Members, in)
	}
	return p, nil
}

// ProposeSplit creates a split group from a member list.
func (h *Handler) ProposeSplit(w http.ResponseWriter, r *http.Request) {
	var req ProposeSplitRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.proposalFromRequest(req.GroupID, req.Type, req.TargetExpense,
		req.TargetMovement, req.Currency, req.ProposedBy, req.Members)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid member amount", err)
		return
	}

	result, err := h.Allocation.ProposeSplit(r.Context(), p)
	if err != nil {
		h.writeDomainError(w, "Failed to propose split", err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupDTO(result.Group))
}

// ReviseSplit replaces the member set of an open group.
func (h *Handler) ReviseSplit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req ReviseSplitRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	group, err := h.Allocation.Group(r.Context(), ledger.GroupID(id))
	if err != nil {
		h.writeDomainError(w, "Failed to get split group", err)
		return
	}

	p, err := h.proposalFromRequest(id, string(group.Type),
		string(group.TargetExpense), string(group.TargetMovement),
		req.Currency, req.ProposedBy, req.Members)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid member amount", err)
		return
	}

	result, err := h.Allocation.ReviseSplit(r.Context(), p)
	if err != nil {
		h.writeDomainError(w, "Failed to revise split", err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(result.Group))
}

// GetSplit returns one group with its members.
func (h *Handler) GetSplit(w http.ResponseWriter, r *http.Request) {
	group, err := h.Allocation.Group(r.Context(), ledger.GroupID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to get split group", err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(group))
}

// ListSplits returns all split groups.
func (h *Handler) ListSplits(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Store.ListGroups(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list split groups", err)
		return
	}
	dtos := make([]GroupDTO, len(groups))
	for i, g := range groups {
		dtos[i] = toGroupDTO(g)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// FinalizeSplit closes a fully covered group.
func (h *Handler) FinalizeSplit(w http.ResponseWriter, r *http.Request) {
	result, err := h.Allocation.Finalize(r.Context(), ledger.GroupID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to finalize split", err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(result.Group))
}

// RejectSplit rejects a group and releases every member allocation.
func (h *Handler) RejectSplit(w http.ResponseWriter, r *http.Request) {
	result, err := h.Allocation.Reject(r.Context(), ledger.GroupID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to reject split", err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(result.Group))
}

// =============================================================================
// ADVANCE HANDLERS
// =============================================================================

// CreateAdvance flags an expense as an employee advance.
func (h *Handler) CreateAdvance(w http.ResponseWriter, r *http.Request) {
	var req CreateAdvanceRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := advance.CreateInput{
		ID:       ledger.AdvanceID(req.ID),
		Company:  req.Company,
		Employee: ledger.EmployeeID(req.Employee),
		Expense:  ledger.ExpenseID(req.ExpenseID),
		Channel:  ledger.ReimbursementChannel(req.Channel),
	}
	if req.Amount != "" {
		amount, err := ledger.ParseAmount(req.Amount, ledger.Currency(req.Currency))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
		in.Amount = amount
	}

	adv, err := h.Advances.Create(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, "Failed to create advance", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdvanceDTO(adv))
}

// GetAdvance returns one advance.
func (h *Handler) GetAdvance(w http.ResponseWriter, r *http.Request) {
	adv, err := h.Advances.Advance(r.Context(), ledger.AdvanceID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to get advance", err)
		return
	}
	writeJSON(w, http.StatusOK, toAdvanceDTO(adv))
}

// ListAdvances returns advances, optionally filtered by company.
func (h *Handler) ListAdvances(w http.ResponseWriter, r *http.Request) {
	advances, err := h.Store.ListAdvances(r.Context(), r.URL.Query().Get("company"))
	if err != nil {
		h.writeDomainError(w, "Failed to list advances", err)
		return
	}
	dtos := make([]AdvanceDTO, len(advances))
	for i, a := range advances {
		dtos[i] = toAdvanceDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordReimbursement records a repayment against an advance.
func (h *Handler) RecordReimbursement(w http.ResponseWriter, r *http.Request) {
	id := ledger.AdvanceID(chi.URLParam(r, "id"))
	var req ReimburseRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := ledger.ParseAmount(req.Amount, ledger.Currency(req.Currency))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	adv, err := h.Advances.RecordReimbursement(r.Context(), id, amount,
		ledger.MovementID(req.MovementID), ledger.OperationID(req.OperationID))
	if err != nil {
		h.writeDomainError(w, "Failed to record reimbursement", err)
		return
	}
	writeJSON(w, http.StatusOK, toAdvanceDTO(adv))
}

// CancelAdvance cancels a pending or partial advance.
func (h *Handler) CancelAdvance(w http.ResponseWriter, r *http.Request) {
	adv, err := h.Advances.Cancel(r.Context(), ledger.AdvanceID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to cancel advance", err)
		return
	}
	writeJSON(w, http.StatusOK, toAdvanceDTO(adv))
}

// =============================================================================
// CASE HANDLERS
// =============================================================================

// OpenCase opens a non-reconciliation case.
func (h *Handler) OpenCase(w http.ResponseWriter, r *http.Request) {
	var req OpenCaseRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := escalation.OpenInput{
		ID:      ledger.CaseID(req.ID),
		Company: req.Company,
		Subject: ledger.CaseSubject{
			Expense:  ledger.ExpenseID(req.ExpenseID),
			Movement: ledger.MovementID(req.MovementID),
		},
		Reason:   ledger.ReasonCode(req.Reason),
		Impact:   ledger.ImpactTier(req.Impact),
		Priority: req.Priority,
		Note:     req.Note,
		Actor:    req.Actor,
	}
	if req.Amount != "" {
		amount, err := ledger.ParseAmount(req.Amount, ledger.Currency(req.Currency))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
		in.Amount = amount
	}

	c, err := h.Escalation.OpenCase(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, "Failed to open case", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCaseDTO(c))
}

// GetCase returns one case.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	c, err := h.Escalation.Case(r.Context(), ledger.CaseID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to get case", err)
		return
	}
	writeJSON(w, http.StatusOK, toCaseDTO(c))
}

// ListCases returns cases filtered by query parameters.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.CaseFilter{
		Company: q.Get("company"),
		Status:  ledger.CaseStatus(q.Get("status")),
		Reason:  ledger.ReasonCode(q.Get("reason")),
	}
	if open, err := strconv.ParseBool(q.Get("open")); err == nil {
		filter.OpenOnly = open
	}

	cases, err := h.Store.ListCases(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, "Failed to list cases", err)
		return
	}
	dtos := make([]CaseDTO, len(cases))
	for i, c := range cases {
		dtos[i] = toCaseDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCaseHistory returns the transition log of a case.
func (h *Handler) GetCaseHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Escalation.History(r.Context(), ledger.CaseID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to get case history", err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryDTOs(entries))
}

// CaseAction dispatches the named transition on a case.
func (h *Handler) CaseAction(w http.ResponseWriter, r *http.Request) {
	id := ledger.CaseID(chi.URLParam(r, "id"))
	action := chi.URLParam(r, "action")

	var req CaseActionRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var c ledger.Case
	var err error
	switch action {
	case "start":
		c, err = h.Escalation.Start(r.Context(), id, req.Actor)
	case "resolve":
		c, err = h.Escalation.Resolve(r.Context(), id, req.Actor, req.Note)
	case "dismiss":
		c, err = h.Escalation.Dismiss(r.Context(), id, req.Actor, req.Note)
	case "hold":
		c, err = h.Escalation.Hold(r.Context(), id, req.Actor, req.Note)
	case "require-approval":
		c, err = h.Escalation.RequireApproval(r.Context(), id, req.Actor, req.Note)
	case "resume":
		c, err = h.Escalation.Resume(r.Context(), id, req.Actor)
	default:
		writeError(w, http.StatusNotFound, "Unknown case action: "+action, nil)
		return
	}
	if err != nil {
		h.writeDomainError(w, "Case transition failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toCaseDTO(c))
}

// =============================================================================
// RULE HANDLERS
// =============================================================================

// ListRules returns escalation rules, optionally filtered by company.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Store.ListRules(r.Context(), r.URL.Query().Get("company"))
	if err != nil {
		h.writeDomainError(w, "Failed to list rules", err)
		return
	}
	dtos := make([]RuleDTO, len(rules))
	for i, rule := range rules {
		dtos[i] = toRuleDTO(rule)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PutRuleSet parses and installs a rule set. The whole set is rejected
// if any rule fails validation.
func (h *Handler) PutRuleSet(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	rules, err := factory.ParseRuleSet(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule set", err)
		return
	}

	for _, rule := range rules {
		if err := h.Store.PutRule(r.Context(), rule); err != nil {
			h.writeDomainError(w, "Failed to store rule", err)
			return
		}
	}

	dtos := make([]RuleDTO, len(rules))
	for i, rule := range rules {
		dtos[i] = toRuleDTO(rule)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// InstallDefaultRules installs the starter rule set for a company.
func (h *Handler) InstallDefaultRules(w http.ResponseWriter, r *http.Request) {
	company := r.URL.Query().Get("company")
	if company == "" {
		writeError(w, http.StatusBadRequest, "company query parameter is required", nil)
		return
	}

	rules, err := factory.ParseRuleSet([]byte(factory.DefaultRuleSetJSON(company)))
	if err != nil {
		h.writeDomainError(w, "Failed to build default rules", err)
		return
	}
	for _, rule := range rules {
		if err := h.Store.PutRule(r.Context(), rule); err != nil {
			h.writeDomainError(w, "Failed to store rule", err)
			return
		}
	}

	dtos := make([]RuleDTO, len(rules))
	for i, rule := range rules {
		dtos[i] = toRuleDTO(rule)
	}
	writeJSON(w, http.StatusCreated, dtos)
}

// DeleteRule removes one rule.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteRule(r.Context(), ledger.RuleID(chi.URLParam(r, "id"))); err != nil {
		h.writeDomainError(w, "Failed to delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SWEEP HANDLERS
// =============================================================================

// RunSweep triggers one escalation sweep and returns its audit row.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	run, err := h.Escalation.Sweep(r.Context())
	if err != nil {
		h.writeDomainError(w, "Sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toSweepRunDTO(run))
}

// ListSweepRuns returns the sweep audit log.
func (h *Handler) ListSweepRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListSweepRuns(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list sweep runs", err)
		return
	}
	dtos := make([]SweepRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toSweepRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ANALYTICS HANDLERS
// =============================================================================

// GetReport returns the aggregated reconciliation report.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.Analytics.Report(r.Context(), r.URL.Query().Get("company"))
	if err != nil {
		h.writeDomainError(w, "Failed to build report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func parsePercent(s string) (*decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// writeDomainError maps a domain error onto an HTTP status.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case ledger.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrAllocationOverflow),
		errors.Is(err, ledger.ErrAlreadyAllocated),
		errors.Is(err, ledger.ErrConflictingReconciliationMode),
		errors.Is(err, ledger.ErrConcurrencyConflict),
		errors.Is(err, ledger.ErrDuplicateOperation):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidState),
		errors.Is(err, ledger.ErrInvalidSplitType),
		errors.Is(err, ledger.ErrCurrencyMismatch),
		errors.Is(err, ledger.ErrRuleEvaluation):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.Log.WithError(err).Error(message)
	}
	writeError(w, status, message, err)
}
