/*
Package allocation implements split-group reconciliation between bank
movements and expense records.

PURPOSE:
  A split group is one logical partial match: either one expense funded
  by several movements (one_to_many) or one movement funding several
  expenses (many_to_one). This package creates, revises, and settles
  split groups while preserving the conservation invariant.

SPLIT FLOW:
  ┌──────────────────────────────────────────────────────────────────┐
  │                                                                  │
  │  Matching        ProposeSplit       sum == target?    Complete   │
  │  heuristic  ──▶  validate +    ──▶  yes ─────────▶    group      │
  │  (external)      apply deltas       no                           │
  │                                      │                           │
  │                                      ▼                           │
  │                                 Open group ──▶ ReviseSplit       │
  │                                      │         (from scratch)    │
  │                                      ▼                           │
  │                              FinalizeOrReject                    │
  │                              reject = full atomic rollback       │
  │                                                                  │
  └──────────────────────────────────────────────────────────────────┘

CONSERVATION INVARIANT:
  For every group, sum(member allocations) <= target amount at all
  times, and the group is complete exactly when the sum equals the
  target in integer minor units. No tolerance, no rounding: a proposal
  that sums to slightly more or less than intended is rejected, never
  silently truncated.

ATOMICITY:
  Every operation runs inside one store transaction. Either all member
  deltas and the group row commit together, or none do. A failed
  proposal leaves every participating record untouched.

SEE ALSO:
  - ledger package: delta application and invariant enforcement
  - advance package: reimbursement via movement-linked splits
*/
package allocation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/recon-engine/ledger"
)

// =============================================================================
// PROPOSAL - Input to ProposeSplit and ReviseSplit
// =============================================================================

// MemberInput names one record on the "many" side of a split, with the
// exact amount to allocate from it. For one_to_many members are
// movements; for many_to_one members are expenses.
type MemberInput struct {
	Expense  ledger.ExpenseID
	Movement ledger.MovementID
	Amount   ledger.Amount
	// Percent is an optional display hint, never used in arithmetic.
	Percent *decimal.Decimal
	Note    string
}

// Proposal describes one split group to create. Exactly one of
// TargetExpense/TargetMovement is set, matching Type.
type Proposal struct {
	GroupID        ledger.GroupID
	Type           ledger.SplitType
	TargetExpense  ledger.ExpenseID  // the one expense (one_to_many)
	TargetMovement ledger.MovementID // the one movement (many_to_one)
	Members        []MemberInput
	ProposedBy     string
}

// Result reports a group's state after an operation.
type Result struct {
	Group     ledger.SplitGroup
	Complete  bool
	Remaining ledger.Amount
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine creates and settles split groups. All operations are atomic
// and validate from current record state; stale input is rejected via
// the store's optimistic version checks.
type Engine struct {
	Store ledger.TxStore

	// Now is overridable for tests.
	Now func() time.Time
}

func NewEngine(store ledger.TxStore) *Engine {
	return &Engine{Store: store, Now: time.Now}
}

// Group returns a split group with its member rows.
func (e *Engine) Group(ctx context.Context, id ledger.GroupID) (ledger.SplitGroup, error) {
	return e.Store.GetGroup(ctx, id)
}

// =============================================================================
// PROPOSE
// =============================================================================

// ProposeSplit validates and commits a new split group. Member amounts
// must be positive, sum to at most the target's unmatched remainder,
// and no participant may already belong to a different open group.
// The group completes immediately when the sum equals the target
// exactly; otherwise it stays open for revision.
func (e *Engine) ProposeSplit(ctx context.Context, p Proposal) (Result, error) {
	var res Result
	err := e.Store.WithTx(ctx, func(s ledger.Store) error {
		var err error
		res, err = e.propose(ctx, s, p)
		return err
	})
	return res, err
}

func (e *Engine) propose(ctx context.Context, s ledger.Store, p Proposal) (Result, error) {
	if err := validateShape(p); err != nil {
		return Result{}, err
	}
	if _, err := s.GetGroup(ctx, p.GroupID); err == nil {
		return Result{}, &ledger.StateError{
			Record: "split group " + string(p.GroupID),
			Reason: "group already exists",
		}
	} else if !ledger.IsNotFound(err) {
		return Result{}, err
	}

	group, err := e.apply(ctx, s, p, 0)
	if err != nil {
		return Result{}, err
	}
	if err := s.PutGroup(ctx, group); err != nil {
		return Result{}, err
	}
	return Result{Group: group, Complete: group.Complete, Remaining: group.Remaining()}, nil
}

// apply runs the shared validate-and-allocate path for propose and
// revise: loads the target, checks membership and overflow, applies
// one delta per participant, and returns the assembled group row.
func (e *Engine) apply(ctx context.Context, s ledger.Store, p Proposal, revision int) (ledger.SplitGroup, error) {
	now := e.Now()

	// Load the "one" side and take its unmatched remainder as the
	// group target. Prior completed groups reduce the remainder; an
	// open group blocks a second one.
	var target ledger.Amount
	var currency ledger.Currency
	switch p.Type {
	case ledger.SplitOneToMany:
		exp, err := s.GetExpense(ctx, p.TargetExpense)
		if err != nil {
			return ledger.SplitGroup{}, err
		}
		if exp.SplitGroup != "" && exp.SplitGroup != p.GroupID {
			return ledger.SplitGroup{}, &ledger.AllocatedError{
				Record: "expense " + string(exp.ID),
				Group:  exp.SplitGroup,
			}
		}
		target = exp.Pending()
		currency = exp.Amount.Currency
	case ledger.SplitManyToOne:
		mov, err := s.GetMovement(ctx, p.TargetMovement)
		if err != nil {
			return ledger.SplitGroup{}, err
		}
		if mov.SplitGroup != "" && mov.SplitGroup != p.GroupID {
			return ledger.SplitGroup{}, &ledger.AllocatedError{
				Record: "movement " + string(mov.ID),
				Group:  mov.SplitGroup,
			}
		}
		target = mov.Unallocated()
		currency = mov.Amount.Currency
	}

	// Validate members against current state before touching anything.
	sum := ledger.NewAmount(0, currency)
	for _, m := range p.Members {
		if !m.Amount.IsPositive() {
			return ledger.SplitGroup{}, &ledger.StateError{
				Record: memberRef(m),
				Reason: "member amount must be positive",
			}
		}
		if m.Amount.Currency != currency {
			return ledger.SplitGroup{}, fmt.Errorf("%s: %w", memberRef(m), ledger.ErrCurrencyMismatch)
		}
		if m.Percent != nil && (m.Percent.IsNegative() || m.Percent.GreaterThan(decimal.NewFromInt(100))) {
			return ledger.SplitGroup{}, &ledger.StateError{
				Record: memberRef(m),
				Reason: "percent outside [0, 100]",
			}
		}
		if err := e.checkMemberFree(ctx, s, p, m); err != nil {
			return ledger.SplitGroup{}, err
		}
		sum = sum.Add(m.Amount)
	}
	if sum.GreaterThan(target) {
		return ledger.SplitGroup{}, &ledger.OverflowError{
			GroupID:   p.GroupID,
			Target:    target,
			Requested: sum,
		}
	}

	// The group ref is only carried while the group stays open; a
	// completing proposal leaves every participant free to join future
	// groups with whatever capacity remains.
	complete := sum.Equal(target)
	var groupRef *ledger.GroupID
	if !complete {
		ref := p.GroupID
		groupRef = &ref
	}

	group := ledger.SplitGroup{
		ID:           p.GroupID,
		Type:         p.Type,
		TargetAmount: target,
		Allocated:    sum,
		Status:       ledger.GroupOpen,
		Complete:     complete,
		Revision:     revision,
		CreatedBy:    p.ProposedBy,
		CreatedAt:    now,
	}
	if complete {
		group.Status = ledger.GroupComplete
	}

	for _, m := range p.Members {
		member := ledger.SplitMember{
			GroupID:   p.GroupID,
			Allocated: m.Amount,
			Percent:   m.Percent,
			Note:      m.Note,
			CreatedAt: now,
		}
		switch p.Type {
		case ledger.SplitOneToMany:
			member.Expense = p.TargetExpense
			member.Movement = m.Movement
			op := opID(p.GroupID, revision, "mov", string(m.Movement))
			if _, err := ledger.ApplyMovementDelta(ctx, s, m.Movement, m.Amount, op, groupRef); err != nil {
				return ledger.SplitGroup{}, err
			}
		case ledger.SplitManyToOne:
			member.Expense = m.Expense
			member.Movement = p.TargetMovement
			op := opID(p.GroupID, revision, "exp", string(m.Expense))
			if _, err := ledger.ApplyExpenseDelta(ctx, s, m.Expense, m.Amount, op, groupRef); err != nil {
				return ledger.SplitGroup{}, err
			}
		}
		group.Members = append(group.Members, member)
	}

	// One delta for the target side, covering the whole member sum.
	switch p.Type {
	case ledger.SplitOneToMany:
		group.TargetExpense = p.TargetExpense
		op := opID(p.GroupID, revision, "target", string(p.TargetExpense))
		if _, err := ledger.ApplyExpenseDelta(ctx, s, p.TargetExpense, sum, op, groupRef); err != nil {
			return ledger.SplitGroup{}, err
		}
	case ledger.SplitManyToOne:
		group.TargetMovement = p.TargetMovement
		op := opID(p.GroupID, revision, "target", string(p.TargetMovement))
		if _, err := ledger.ApplyMovementDelta(ctx, s, p.TargetMovement, sum, op, groupRef); err != nil {
			return ledger.SplitGroup{}, err
		}
	}

	return group, nil
}

// checkMemberFree rejects a member that already belongs to a different
// open split group.
func (e *Engine) checkMemberFree(ctx context.Context, s ledger.Store, p Proposal, m MemberInput) error {
	switch p.Type {
	case ledger.SplitOneToMany:
		mov, err := s.GetMovement(ctx, m.Movement)
		if err != nil {
			return err
		}
		if mov.SplitGroup != "" && mov.SplitGroup != p.GroupID {
			return &ledger.AllocatedError{
				Record: "movement " + string(mov.ID),
				Group:  mov.SplitGroup,
			}
		}
	case ledger.SplitManyToOne:
		exp, err := s.GetExpense(ctx, m.Expense)
		if err != nil {
			return err
		}
		if exp.SplitGroup != "" && exp.SplitGroup != p.GroupID {
			return &ledger.AllocatedError{
				Record: "expense " + string(exp.ID),
				Group:  exp.SplitGroup,
			}
		}
	}
	return nil
}

// =============================================================================
// REVISE
// =============================================================================

// ReviseSplit replaces an open group's member set. It releases every
// existing allocation and re-runs the full proposal validation with the
// new members rather than patching the difference, so rounding and
// double-counting errors cannot compound across revisions. Only
// incomplete groups may be revised.
func (e *Engine) ReviseSplit(ctx context.Context, p Proposal) (Result, error) {
	var res Result
	err := e.Store.WithTx(ctx, func(s ledger.Store) error {
		group, err := s.GetGroup(ctx, p.GroupID)
		if err != nil {
			return err
		}
		if group.Status != ledger.GroupOpen || group.Complete {
			return &ledger.StateError{
				Record: "split group " + string(p.GroupID),
				Reason: "only open incomplete groups can be revised",
			}
		}
		if p.Type != group.Type {
			return fmt.Errorf("split group %s: cannot change type on revision: %w",
				p.GroupID, ledger.ErrInvalidSplitType)
		}
		if err := validateShape(p); err != nil {
			return err
		}
		if err := e.release(ctx, s, group); err != nil {
			return err
		}

		next, err := e.apply(ctx, s, p, group.Revision+1)
		if err != nil {
			return err
		}
		next.CreatedAt = group.CreatedAt
		next.CreatedBy = group.CreatedBy
		if err := s.UpdateGroup(ctx, next); err != nil {
			return err
		}
		res = Result{Group: next, Complete: next.Complete, Remaining: next.Remaining()}
		return nil
	})
	return res, err
}

// =============================================================================
// FINALIZE / REJECT
// =============================================================================

// Finalize marks an open group complete. The member sum must already
// equal the target exactly; a short group cannot be finalized, only
// revised or rejected.
func (e *Engine) Finalize(ctx context.Context, id ledger.GroupID) (Result, error) {
	var res Result
	err := e.Store.WithTx(ctx, func(s ledger.Store) error {
		group, err := s.GetGroup(ctx, id)
		if err != nil {
			return err
		}
		if group.Status != ledger.GroupOpen {
			return &ledger.StateError{
				Record: "split group " + string(id),
				Reason: "group is not open",
			}
		}
		if !group.Remaining().IsZero() {
			return &ledger.StateError{
				Record: "split group " + string(id),
				Reason: "incomplete group cannot be finalized, remaining " + group.Remaining().String(),
			}
		}
		if err := e.clearRefs(ctx, s, group); err != nil {
			return err
		}
		group.Status = ledger.GroupComplete
		group.Complete = true
		if err := s.UpdateGroup(ctx, group); err != nil {
			return err
		}
		res = Result{Group: group, Complete: true, Remaining: group.Remaining()}
		return nil
	})
	return res, err
}

// Reject rolls an open group back entirely: every member allocation and
// the target total return to their pre-group values in one transaction,
// and the group row is kept with status rejected for audit. Partial
// rollback is never observable.
func (e *Engine) Reject(ctx context.Context, id ledger.GroupID) (Result, error) {
	var res Result
	err := e.Store.WithTx(ctx, func(s ledger.Store) error {
		group, err := s.GetGroup(ctx, id)
		if err != nil {
			return err
		}
		if group.Status != ledger.GroupOpen {
			return &ledger.StateError{
				Record: "split group " + string(id),
				Reason: "group is not open",
			}
		}
		if err := e.release(ctx, s, group); err != nil {
			return err
		}
		group.Status = ledger.GroupRejected
		group.Complete = false
		group.Allocated = group.Allocated.Zero()
		if err := s.UpdateGroup(ctx, group); err != nil {
			return err
		}
		res = Result{Group: group, Complete: false, Remaining: group.Remaining()}
		return nil
	})
	return res, err
}

// release undoes every allocation a group holds and clears group refs.
func (e *Engine) release(ctx context.Context, s ledger.Store, group ledger.SplitGroup) error {
	clear := ledger.GroupID("")
	sum := group.TargetAmount.Zero()
	for _, m := range group.Members {
		sum = sum.Add(m.Allocated)
		switch group.Type {
		case ledger.SplitOneToMany:
			if _, err := ledger.ApplyMovementDelta(ctx, s, m.Movement, m.Allocated.Neg(), "", &clear); err != nil {
				return err
			}
		case ledger.SplitManyToOne:
			if _, err := ledger.ApplyExpenseDelta(ctx, s, m.Expense, m.Allocated.Neg(), "", &clear); err != nil {
				return err
			}
		}
	}
	if sum.IsZero() {
		return nil
	}
	switch group.Type {
	case ledger.SplitOneToMany:
		_, err := ledger.ApplyExpenseDelta(ctx, s, group.TargetExpense, sum.Neg(), "", &clear)
		return err
	case ledger.SplitManyToOne:
		_, err := ledger.ApplyMovementDelta(ctx, s, group.TargetMovement, sum.Neg(), "", &clear)
		return err
	}
	return nil
}

// clearRefs detaches participants from the group without touching their
// totals. Used on finalize so completed members may join future groups.
func (e *Engine) clearRefs(ctx context.Context, s ledger.Store, group ledger.SplitGroup) error {
	clear := ledger.GroupID("")
	for _, m := range group.Members {
		switch group.Type {
		case ledger.SplitOneToMany:
			mov, err := s.GetMovement(ctx, m.Movement)
			if err != nil {
				return err
			}
			if mov.SplitGroup == group.ID {
				mov.SplitGroup = clear
				if err := s.UpdateMovement(ctx, mov, mov.Version); err != nil {
					return err
				}
			}
		case ledger.SplitManyToOne:
			exp, err := s.GetExpense(ctx, m.Expense)
			if err != nil {
				return err
			}
			if exp.SplitGroup == group.ID {
				exp.SplitGroup = clear
				if err := s.UpdateExpense(ctx, exp, exp.Version); err != nil {
					return err
				}
			}
		}
	}
	switch group.Type {
	case ledger.SplitOneToMany:
		exp, err := s.GetExpense(ctx, group.TargetExpense)
		if err != nil {
			return err
		}
		if exp.SplitGroup == group.ID {
			exp.SplitGroup = clear
			return s.UpdateExpense(ctx, exp, exp.Version)
		}
	case ledger.SplitManyToOne:
		mov, err := s.GetMovement(ctx, group.TargetMovement)
		if err != nil {
			return err
		}
		if mov.SplitGroup == group.ID {
			mov.SplitGroup = clear
			return s.UpdateMovement(ctx, mov, mov.Version)
		}
	}
	return nil
}

// =============================================================================
// SHAPE VALIDATION
// =============================================================================

// validateShape checks the proposal's structure: a known type, the
// matching target reference, and members that all sit on the correct
// side. Mixed-direction member lists are a hard error, never silently
// reinterpreted.
func validateShape(p Proposal) error {
	if p.GroupID == "" {
		return &ledger.StateError{Record: "split group", Reason: "missing group id"}
	}
	if len(p.Members) == 0 {
		return &ledger.StateError{
			Record: "split group " + string(p.GroupID),
			Reason: "no members",
		}
	}

	switch p.Type {
	case ledger.SplitOneToMany:
		if p.TargetExpense == "" || p.TargetMovement != "" {
			return fmt.Errorf("split group %s: one_to_many requires exactly one target expense: %w",
				p.GroupID, ledger.ErrInvalidSplitType)
		}
		seen := make(map[ledger.MovementID]bool, len(p.Members))
		for _, m := range p.Members {
			if m.Movement == "" || m.Expense != "" {
				return fmt.Errorf("split group %s: one_to_many members must reference movements only: %w",
					p.GroupID, ledger.ErrInvalidSplitType)
			}
			if seen[m.Movement] {
				return &ledger.StateError{
					Record: "movement " + string(m.Movement),
					Reason: "duplicate member",
				}
			}
			seen[m.Movement] = true
		}
	case ledger.SplitManyToOne:
		if p.TargetMovement == "" || p.TargetExpense != "" {
			return fmt.Errorf("split group %s: many_to_one requires exactly one target movement: %w",
				p.GroupID, ledger.ErrInvalidSplitType)
		}
		seen := make(map[ledger.ExpenseID]bool, len(p.Members))
		for _, m := range p.Members {
			if m.Expense == "" || m.Movement != "" {
				return fmt.Errorf("split group %s: many_to_one members must reference expenses only: %w",
					p.GroupID, ledger.ErrInvalidSplitType)
			}
			if seen[m.Expense] {
				return &ledger.StateError{
					Record: "expense " + string(m.Expense),
					Reason: "duplicate member",
				}
			}
			seen[m.Expense] = true
		}
	default:
		return fmt.Errorf("split group %s: unknown split type %q: %w",
			p.GroupID, p.Type, ledger.ErrInvalidSplitType)
	}
	return nil
}

func memberRef(m MemberInput) string {
	if m.Movement != "" {
		return "movement " + string(m.Movement)
	}
	return "expense " + string(m.Expense)
}

func opID(group ledger.GroupID, revision int, kind, ref string) ledger.OperationID {
	return ledger.OperationID(fmt.Sprintf("%s:r%d:%s:%s", group, revision, kind, ref))
}
