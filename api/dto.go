/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Amounts cross the wire as decimal strings plus a currency code
  ("123.45", "EUR"). ledger.ParseAmount rejects anything finer than the
  currency's minor unit, so malformed client amounts never reach the
  engines.

VALIDATION:
  Request types carry go-playground/validator struct tags; handlers run
  the shared validator before touching domain logic.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rules.go: RuleSetJSON for rule uploads
*/
package api

import (
	"time"

	"github.com/warp/recon-engine/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateMovementRequest registers a bank-reported transaction.
type CreateMovementRequest struct {
	ID       string `json:"id" validate:"required"`
	Company  string `json:"company" validate:"required"`
	Amount   string `json:"amount" validate:"required"`
	Currency string `json:"currency" validate:"required,len=3"`
	Date     string `json:"date" validate:"required"`
}

// CreateExpenseRequest registers an expense record.
type CreateExpenseRequest struct {
	ID       string `json:"id" validate:"required"`
	Company  string `json:"company" validate:"required"`
	Amount   string `json:"amount" validate:"required"`
	Currency string `json:"currency" validate:"required,len=3"`
	Date     string `json:"date" validate:"required"`
}

// SplitMemberInput is one member row of a split proposal. Exactly one
// of expense_id/movement_id is set, matching the group's type.
type SplitMemberInput struct {
	ExpenseID  string  `json:"expense_id,omitempty"`
	MovementID string  `json:"movement_id,omitempty"`
	Amount     string  `json:"amount" validate:"required"`
	Percent    *string `json:"percent,omitempty"`
	Note       string  `json:"note,omitempty"`
}

// ProposeSplitRequest creates a split group. For one_to_many the target
// is an expense and members are movements; for many_to_one the target
// is a movement and members are expenses.
type ProposeSplitRequest struct {
	GroupID        string             `json:"group_id" validate:"required"`
	Type           string             `json:"type" validate:"required,oneof=one_to_many many_to_one"`
	TargetExpense  string             `json:"target_expense,omitempty"`
	TargetMovement string             `json:"target_movement,omitempty"`
	Currency       string             `json:"currency" validate:"required,len=3"`
	Members        []SplitMemberInput `json:"members" validate:"required,min=1,dive"`
	ProposedBy     string             `json:"proposed_by,omitempty"`
}

// ReviseSplitRequest replaces an open group's member set.
type ReviseSplitRequest struct {
	Currency   string             `json:"currency" validate:"required,len=3"`
	Members    []SplitMemberInput `json:"members" validate:"required,min=1,dive"`
	ProposedBy string             `json:"proposed_by,omitempty"`
}

// CreateAdvanceRequest flags an expense as an employee advance.
type CreateAdvanceRequest struct {
	ID        string `json:"id" validate:"required"`
	Company   string `json:"company" validate:"required"`
	Employee  string `json:"employee" validate:"required"`
	ExpenseID string `json:"expense_id" validate:"required"`
	Amount    string `json:"amount,omitempty"`
	Currency  string `json:"currency,omitempty"`
	Channel   string `json:"channel,omitempty" validate:"omitempty,oneof=pending payroll transfer cash"`
}

// ReimburseRequest records a repayment against an advance. OperationID
// makes retries safe: a repeated id returns the current state unchanged.
type ReimburseRequest struct {
	Amount      string `json:"amount" validate:"required"`
	Currency    string `json:"currency" validate:"required,len=3"`
	MovementID  string `json:"movement_id,omitempty"`
	OperationID string `json:"operation_id" validate:"required"`
}

// OpenCaseRequest opens a non-reconciliation case.
type OpenCaseRequest struct {
	ID         string `json:"id" validate:"required"`
	Company    string `json:"company" validate:"required"`
	ExpenseID  string `json:"expense_id,omitempty"`
	MovementID string `json:"movement_id,omitempty"`
	Reason     string `json:"reason" validate:"required"`
	Impact     string `json:"impact,omitempty" validate:"omitempty,oneof=low medium high critical"`
	Priority   int    `json:"priority" validate:"required,min=1,max=4"`
	Amount     string `json:"amount,omitempty"`
	Currency   string `json:"currency,omitempty"`
	Note       string `json:"note,omitempty"`
	Actor      string `json:"actor,omitempty"`
}

// CaseActionRequest covers the simple case transitions.
type CaseActionRequest struct {
	Actor string `json:"actor" validate:"required"`
	Note  string `json:"note,omitempty"`
}

// LoadScenarioRequest loads a named demo scenario.
type LoadScenarioRequest struct {
	Name string `json:"name" validate:"required"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// MovementDTO represents a bank movement in API responses.
type MovementDTO struct {
	ID          string `json:"id"`
	Company     string `json:"company"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Date        string `json:"date"`
	Status      string `json:"status"`
	Mode        string `json:"mode"`
	Allocated   string `json:"allocated"`
	Unallocated string `json:"unallocated"`
	SplitGroup  string `json:"split_group,omitempty"`
	Version     int64  `json:"version"`
}

func toMovementDTO(m ledger.Movement) MovementDTO {
	return MovementDTO{
		ID:          string(m.ID),
		Company:     m.Company,
		Amount:      m.Amount.String(),
		Currency:    string(m.Amount.Currency),
		Date:        m.Date.Format("2006-01-02"),
		Status:      string(m.Status),
		Mode:        string(m.Mode),
		Allocated:   m.Allocated.String(),
		Unallocated: m.Unallocated().String(),
		SplitGroup:  string(m.SplitGroup),
		Version:     m.Version,
	}
}

// ExpenseDTO represents an expense record in API responses.
type ExpenseDTO struct {
	ID            string `json:"id"`
	Company       string `json:"company"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Date          string `json:"date"`
	Mode          string `json:"mode"`
	Reconciled    string `json:"reconciled"`
	Pending       string `json:"pending"`
	IsAdvance     bool   `json:"is_advance"`
	AdvanceRef    string `json:"advance_ref,omitempty"`
	Reimbursement string `json:"reimbursement"`
	SplitGroup    string `json:"split_group,omitempty"`
	Version       int64  `json:"version"`
}

func toExpenseDTO(e ledger.Expense) ExpenseDTO {
	return ExpenseDTO{
		ID:            string(e.ID),
		Company:       e.Company,
		Amount:        e.Amount.String(),
		Currency:      string(e.Amount.Currency),
		Date:          e.Date.Format("2006-01-02"),
		Mode:          string(e.Mode),
		Reconciled:    e.Reconciled.String(),
		Pending:       e.Pending().String(),
		IsAdvance:     e.IsAdvance,
		AdvanceRef:    string(e.AdvanceRef),
		Reimbursement: string(e.Reimbursement),
		SplitGroup:    string(e.SplitGroup),
		Version:       e.Version,
	}
}

// SplitMemberDTO is one member row of a group response.
type SplitMemberDTO struct {
	ExpenseID  string  `json:"expense_id,omitempty"`
	MovementID string  `json:"movement_id,omitempty"`
	Allocated  string  `json:"allocated"`
	Percent    *string `json:"percent,omitempty"`
	Note       string  `json:"note,omitempty"`
}

// GroupDTO represents a split group in API responses.
type GroupDTO struct {
	ID             string           `json:"id"`
	Type           string           `json:"type"`
	TargetExpense  string           `json:"target_expense,omitempty"`
	TargetMovement string           `json:"target_movement,omitempty"`
	TargetAmount   string           `json:"target_amount"`
	Currency       string           `json:"currency"`
	Allocated      string           `json:"allocated"`
	Remaining      string           `json:"remaining"`
	Status         string           `json:"status"`
	Complete       bool             `json:"complete"`
	Revision       int              `json:"revision"`
	CreatedBy      string           `json:"created_by,omitempty"`
	CreatedAt      string           `json:"created_at"`
	Members        []SplitMemberDTO `json:"members"`
}

func toGroupDTO(g ledger.SplitGroup) GroupDTO {
	members := make([]SplitMemberDTO, len(g.Members))
	for i, m := range g.Members {
		dto := SplitMemberDTO{
			ExpenseID:  string(m.Expense),
			MovementID: string(m.Movement),
			Allocated:  m.Allocated.String(),
			Note:       m.Note,
		}
		if m.Percent != nil {
			s := m.Percent.String()
			dto.Percent = &s
		}
		members[i] = dto
	}
	return GroupDTO{
		ID:             string(g.ID),
		Type:           string(g.Type),
		TargetExpense:  string(g.TargetExpense),
		TargetMovement: string(g.TargetMovement),
		TargetAmount:   g.TargetAmount.String(),
		Currency:       string(g.TargetAmount.Currency),
		Allocated:      g.Allocated.String(),
		Remaining:      g.Remaining().String(),
		Status:         string(g.Status),
		Complete:       g.Complete,
		Revision:       g.Revision,
		CreatedBy:      g.CreatedBy,
		CreatedAt:      g.CreatedAt.Format(time.RFC3339),
		Members:        members,
	}
}

// AdvanceDTO represents an employee advance in API responses.
type AdvanceDTO struct {
	ID         string `json:"id"`
	Company    string `json:"company"`
	Employee   string `json:"employee"`
	ExpenseID  string `json:"expense_id"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Reimbursed string `json:"reimbursed"`
	Pending    string `json:"pending"`
	Channel    string `json:"channel"`
	Status     string `json:"status"`
	MovementID string `json:"movement_id,omitempty"`
	Version    int64  `json:"version"`
}

func toAdvanceDTO(a ledger.Advance) AdvanceDTO {
	return AdvanceDTO{
		ID:         string(a.ID),
		Company:    a.Company,
		Employee:   string(a.Employee),
		ExpenseID:  string(a.Expense),
		Amount:     a.Amount.String(),
		Currency:   string(a.Amount.Currency),
		Reimbursed: a.Reimbursed.String(),
		Pending:    a.PendingAmount().String(),
		Channel:    string(a.Channel),
		Status:     string(a.Status),
		MovementID: string(a.Movement),
		Version:    a.Version,
	}
}

// CaseDTO represents a non-reconciliation case in API responses.
type CaseDTO struct {
	ID               string `json:"id"`
	Company          string `json:"company"`
	ExpenseID        string `json:"expense_id,omitempty"`
	MovementID       string `json:"movement_id,omitempty"`
	Reason           string `json:"reason"`
	Category         string `json:"category"`
	Status           string `json:"status"`
	Level            int    `json:"level"`
	NextEscalationAt string `json:"next_escalation_at"`
	Impact           string `json:"impact"`
	Priority         int    `json:"priority"`
	Amount           string `json:"amount,omitempty"`
	Currency         string `json:"currency,omitempty"`
	Note             string `json:"note,omitempty"`
	CreatedAt        string `json:"created_at"`
	ResolvedAt       string `json:"resolved_at,omitempty"`
	Version          int64  `json:"version"`
}

func toCaseDTO(c ledger.Case) CaseDTO {
	dto := CaseDTO{
		ID:               string(c.ID),
		Company:          c.Company,
		ExpenseID:        string(c.Subject.Expense),
		MovementID:       string(c.Subject.Movement),
		Reason:           string(c.Reason),
		Category:         string(c.Reason.Category()),
		Status:           string(c.Status),
		Level:            c.Level,
		NextEscalationAt: c.NextEscalationAt.Format(time.RFC3339),
		Impact:           string(c.Impact),
		Priority:         c.Priority,
		Note:             c.Note,
		CreatedAt:        c.CreatedAt.Format(time.RFC3339),
		Version:          c.Version,
	}
	if !c.Amount.IsZero() {
		dto.Amount = c.Amount.String()
		dto.Currency = string(c.Amount.Currency)
	}
	if c.ResolvedAt != nil {
		dto.ResolvedAt = c.ResolvedAt.Format(time.RFC3339)
	}
	return dto
}

// HistoryEntryDTO is one case transition.
type HistoryEntryDTO struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to"`
	Actor string `json:"actor"`
	Note  string `json:"note,omitempty"`
	At    string `json:"at"`
}

func toHistoryDTOs(entries []ledger.HistoryEntry) []HistoryEntryDTO {
	out := make([]HistoryEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = HistoryEntryDTO{
			From:  string(e.From),
			To:    string(e.To),
			Actor: e.Actor,
			Note:  e.Note,
			At:    e.At.Format(time.RFC3339),
		}
	}
	return out
}

// SweepRunDTO summarizes one escalation sweep.
type SweepRunDTO struct {
	ID          string `json:"id"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
	Examined    int    `json:"examined"`
	Escalated   int    `json:"escalated"`
	Failed      int    `json:"failed"`
	Error       string `json:"error,omitempty"`
}

func toSweepRunDTO(run ledger.SweepRun) SweepRunDTO {
	dto := SweepRunDTO{
		ID:        run.ID,
		StartedAt: run.StartedAt.Format(time.RFC3339),
		Examined:  run.Examined,
		Escalated: run.Escalated,
		Failed:    run.Failed,
		Error:     run.Error,
	}
	if run.CompletedAt != nil {
		dto.CompletedAt = run.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

// RuleDTO represents an escalation rule in API responses.
type RuleDTO struct {
	ID                string   `json:"id"`
	Company           string   `json:"company"`
	ReasonCodes       []string `json:"reason_codes,omitempty"`
	Categories        []string `json:"categories,omitempty"`
	MinAmount         string   `json:"min_amount,omitempty"`
	MaxAmount         string   `json:"max_amount,omitempty"`
	Currency          string   `json:"currency,omitempty"`
	EscalateAfterDays int      `json:"escalate_after_days"`
	Priority          int      `json:"priority"`
}

func toRuleDTO(r ledger.Rule) RuleDTO {
	dto := RuleDTO{
		ID:                string(r.ID),
		Company:           r.Company,
		EscalateAfterDays: r.EscalateAfterDays,
		Priority:          r.Priority,
	}
	for _, c := range r.ReasonCodes {
		dto.ReasonCodes = append(dto.ReasonCodes, string(c))
	}
	for _, c := range r.Categories {
		dto.Categories = append(dto.Categories, string(c))
	}
	if r.MinAmount != nil {
		dto.MinAmount = r.MinAmount.String()
		dto.Currency = string(r.MinAmount.Currency)
	}
	if r.MaxAmount != nil {
		dto.MaxAmount = r.MaxAmount.String()
		dto.Currency = string(r.MaxAmount.Currency)
	}
	return dto
}
