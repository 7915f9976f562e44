/*
installment.go - Installment schedule allocation

PURPOSE:
  Turns a percentage plan plus a total amount into a schedule of
  installments that sums to the total EXACTLY. Due dates are derived by
  the caller from the term calendar; this file only allocates money.

ROUNDING:
  Each installment is rounded to the currency minor unit (2dp, round
  half away from zero). Rounding drift is absorbed entirely by the FINAL
  installment: it is replaced by total minus the sum of all previous
  installments. {33%, 33%, 34%} of 1000.00 therefore allocates
  330.00, 330.00, 340.00 - and {33.33%, 33.33%, 33.34%} of 100.00
  allocates 33.33, 33.33, 33.34.

VALIDATION:
  Percentages must be positive and sum to exactly 100. This is checked
  when a plan is DEFINED, not when a schedule is computed - a stored
  plan is always computable.

SEE ALSO:
  - types.go: InstallmentPlan / PlanStep / Installment
*/
package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ValidatePlan checks that a plan's schedule is well formed: at least one
// step, every percentage positive, and a sum of exactly 100.
func ValidatePlan(plan InstallmentPlan) error {
	if len(plan.Schedule) == 0 {
		return &InvalidPlanError{PlanID: plan.ID, Sum: "0"}
	}

	sum := decimal.Zero
	for _, step := range plan.Schedule {
		if !step.Percentage.IsPositive() {
			return &ValidationError{Field: "schedule", Message: "percentages must be positive"}
		}
		sum = sum.Add(step.Percentage)
	}
	if !sum.Equal(hundred) {
		return &InvalidPlanError{PlanID: plan.ID, Sum: sum.String()}
	}
	return nil
}

// ComputeSchedule allocates totalAmount across the plan's percentages.
// The returned installments always sum to totalAmount exactly.
func ComputeSchedule(plan InstallmentPlan, totalAmount Money) ([]Installment, error) {
	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}

	installments := make([]Installment, len(plan.Schedule))
	allocated := ZeroMoney()

	for i, step := range plan.Schedule {
		var amount Money
		if i == len(plan.Schedule)-1 {
			// Final installment absorbs all rounding drift.
			amount = totalAmount.Sub(allocated)
		} else {
			amount = totalAmount.Percent(step.Percentage)
		}
		installments[i] = Installment{Sequence: i + 1, Amount: amount}
		allocated = allocated.Add(amount)
	}

	return installments, nil
}

// =============================================================================
// PLAN ADMINISTRATION
// =============================================================================

// PlanService is the validated write path for installment plans.
type PlanService struct {
	Store TxStore
}

func NewPlanService(store TxStore) *PlanService {
	return &PlanService{Store: store}
}

// CreatePlan validates and persists a plan definition.
func (s *PlanService) CreatePlan(ctx context.Context, name, description string, percentages []decimal.Decimal) (*InstallmentPlan, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "required"}
	}

	plan := InstallmentPlan{
		ID:          PlanID(uuid.NewString()),
		Name:        name,
		Description: description,
		Active:      true,
		Schedule:    make([]PlanStep, len(percentages)),
	}
	for i, p := range percentages {
		plan.Schedule[i] = PlanStep{Percentage: p}
	}

	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}
	if err := s.Store.SavePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("%w: saving plan: %v", ErrPersistence, err)
	}
	return &plan, nil
}

// ListPlans returns all plan definitions, active and retired.
func (s *PlanService) ListPlans(ctx context.Context) ([]InstallmentPlan, error) {
	plans, err := s.Store.ListPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing plans: %v", ErrPersistence, err)
	}
	return plans, nil
}

// PreviewSchedule computes the installment schedule a stored plan would
// produce for a given total. Used by parent-facing UIs before selection.
func (s *PlanService) PreviewSchedule(ctx context.Context, id PlanID, totalAmount Money) ([]Installment, error) {
	plan, err := s.Store.GetPlan(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: loading plan: %v", ErrPersistence, err)
	}
	if plan == nil {
		return nil, &NotFoundError{Kind: "installment plan", ID: string(id)}
	}
	return ComputeSchedule(*plan, totalAmount)
}
