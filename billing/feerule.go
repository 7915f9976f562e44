/*
feerule.go - Mandatory fee resolution with class/term precedence

PURPOSE:
  Resolves the set of mandatory fee items a class is charged for a term,
  and guards the write side so resolution can never become ambiguous.

PRECEDENCE:
  For each fee item a class may have:
  - a term-specific rule (term_id set), and/or
  - a general default rule (term_id null, applies to all terms)
  The term-specific rule ALWAYS wins. That is the sole precedence rule,
  applied independently per fee item. If neither exists the item is
  simply not charged.

AMBIGUITY:
  Two equally specific active rules for the same fee item (two
  term-specific for the same term, or two general defaults) is a
  data-integrity condition. The write side prevents it with a unique
  constraint; if the resolver ever sees it anyway, it fails with
  ConfigurationError rather than guessing.

WRITE-SIDE CONTRACT:
  CreateRule/UpdateRule run a fast-path duplicate check for a friendly
  error message, but the store's unique index is the authority - the
  check-then-insert race is closed by the constraint, not the check.

SEE ALSO:
  - store.go: Unique-constraint contract
  - store/sqlite/sqlite.go: The index that enforces it
*/
package billing

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// =============================================================================
// RESOLUTION
// =============================================================================

// FeeRuleResolver computes mandatory fees for a (class, term) pair.
type FeeRuleResolver struct {
	Store Store
}

func NewFeeRuleResolver(store Store) *FeeRuleResolver {
	return &FeeRuleResolver{Store: store}
}

// ResolveMandatoryFees returns one charge per fee item that applies to
// classID for termID, with term-specific rules beating general defaults.
func (r *FeeRuleResolver) ResolveMandatoryFees(ctx context.Context, classID ClassID, termID TermID) ([]ResolvedFee, error) {
	rules, err := r.Store.ActiveRulesForClass(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading rules for class %s: %v", ErrPersistence, classID, err)
	}

	selected, err := SelectApplicableRules(rules, termID)
	if err != nil {
		return nil, err
	}

	fees := make([]ResolvedFee, 0, len(selected))
	for _, rule := range selected {
		item, err := r.Store.GetFeeItem(ctx, rule.FeeItemID)
		if err != nil {
			return nil, fmt.Errorf("%w: loading fee item %s: %v", ErrPersistence, rule.FeeItemID, err)
		}
		label := string(rule.FeeItemID)
		if item != nil {
			label = item.Name
		}
		fees = append(fees, ResolvedFee{
			FeeItemID: rule.FeeItemID,
			Label:     label,
			Amount:    rule.Amount,
		})
	}

	sort.Slice(fees, func(i, j int) bool { return fees[i].Label < fees[j].Label })
	return fees, nil
}

// SelectApplicableRules applies the precedence rule to a set of active
// rules for one class. Exported so it can be tested as a pure function.
func SelectApplicableRules(rules []FeeItemRule, termID TermID) ([]FeeItemRule, error) {
	type candidates struct {
		termSpecific *FeeItemRule
		general      *FeeItemRule
	}

	byItem := make(map[FeeItemID]*candidates)
	order := make([]FeeItemID, 0, len(rules))

	for i := range rules {
		rule := rules[i]
		if !rule.Active {
			continue
		}

		c, ok := byItem[rule.FeeItemID]
		if !ok {
			c = &candidates{}
			byItem[rule.FeeItemID] = c
			order = append(order, rule.FeeItemID)
		}

		switch {
		case rule.TermSpecific() && *rule.TermID == termID:
			if c.termSpecific != nil {
				return nil, &ConfigurationError{Message: fmt.Sprintf(
					"fee item %s has two active rules for term %s", rule.FeeItemID, termID)}
			}
			c.termSpecific = &rule
		case !rule.TermSpecific():
			if c.general != nil {
				return nil, &ConfigurationError{Message: fmt.Sprintf(
					"fee item %s has two active general rules", rule.FeeItemID)}
			}
			c.general = &rule
		default:
			// Term-specific for a different term: not applicable.
		}
	}

	var selected []FeeItemRule
	for _, itemID := range order {
		c := byItem[itemID]
		switch {
		case c.termSpecific != nil:
			selected = append(selected, *c.termSpecific)
		case c.general != nil:
			selected = append(selected, *c.general)
		}
	}
	return selected, nil
}

// =============================================================================
// RULE ADMINISTRATION (validated writes)
// =============================================================================

// RuleService is the validated write path for fee rules. Fee structure
// administration UIs go through here, never directly to the store.
type RuleService struct {
	Store TxStore
	Clock Clock
}

func NewRuleService(store TxStore) *RuleService {
	return &RuleService{Store: store, Clock: NowUTC}
}

// CreateRule inserts a new active rule, rejecting duplicates of an
// existing active (fee_item, class, term) triple.
func (s *RuleService) CreateRule(ctx context.Context, feeItemID FeeItemID, classID ClassID, termID *TermID, amount Money) (*FeeItemRule, error) {
	if feeItemID == "" {
		return nil, &ValidationError{Field: "fee_item_id", Message: "required"}
	}
	if classID == "" {
		return nil, &ValidationError{Field: "class_id", Message: "required"}
	}
	if amount.IsNegative() {
		return nil, &ValidationError{Field: "amount", Message: "must not be negative"}
	}

	rule := FeeItemRule{
		ID:        RuleID(uuid.NewString()),
		FeeItemID: feeItemID,
		ClassID:   classID,
		TermID:    termID,
		Amount:    amount,
		Active:    true,
		CreatedAt: s.Clock(),
	}

	err := s.Store.WithTx(ctx, func(tx Store) error {
		item, err := tx.GetFeeItem(ctx, feeItemID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if item == nil {
			return &NotFoundError{Kind: "fee item", ID: string(feeItemID)}
		}

		// Fast-path hint only; the unique index is the authority.
		if dup, err := s.findDuplicate(ctx, tx, rule, ""); err != nil {
			return err
		} else if dup {
			return &DuplicateRuleError{FeeItemID: feeItemID, ClassID: classID, TermID: termID}
		}

		if err := tx.InsertRule(ctx, rule); err != nil {
			return mapRuleConflict(err, rule)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// UpdateRule changes a rule's amount, scope, or active flag. Reactivating
// or rescoping a rule is subject to the same duplicate check as creation.
func (s *RuleService) UpdateRule(ctx context.Context, id RuleID, termID *TermID, amount Money, active bool) (*FeeItemRule, error) {
	if amount.IsNegative() {
		return nil, &ValidationError{Field: "amount", Message: "must not be negative"}
	}

	var updated FeeItemRule
	err := s.Store.WithTx(ctx, func(tx Store) error {
		existing, err := tx.GetRule(ctx, id)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if existing == nil {
			return &NotFoundError{Kind: "fee rule", ID: string(id)}
		}

		updated = *existing
		updated.TermID = termID
		updated.Amount = amount
		updated.Active = active

		if updated.Active {
			if dup, err := s.findDuplicate(ctx, tx, updated, id); err != nil {
				return err
			} else if dup {
				return &DuplicateRuleError{FeeItemID: updated.FeeItemID, ClassID: updated.ClassID, TermID: termID}
			}
		}

		if err := tx.UpdateRule(ctx, updated); err != nil {
			return mapRuleConflict(err, updated)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeactivateRule retires a rule without deleting its history.
func (s *RuleService) DeactivateRule(ctx context.Context, id RuleID) error {
	return s.Store.WithTx(ctx, func(tx Store) error {
		existing, err := tx.GetRule(ctx, id)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if existing == nil {
			return &NotFoundError{Kind: "fee rule", ID: string(id)}
		}
		existing.Active = false
		return tx.UpdateRule(ctx, *existing)
	})
}

// ListRules returns every rule, active or retired, oldest first.
func (s *RuleService) ListRules(ctx context.Context) ([]FeeItemRule, error) {
	rules, err := s.Store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing rules: %v", ErrPersistence, err)
	}
	return rules, nil
}

func (s *RuleService) findDuplicate(ctx context.Context, tx Store, rule FeeItemRule, ignore RuleID) (bool, error) {
	rules, err := tx.ActiveRulesForClass(ctx, rule.ClassID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	for _, other := range rules {
		if other.ID == ignore || other.FeeItemID != rule.FeeItemID {
			continue
		}
		if sameTermScope(other.TermID, rule.TermID) {
			return true, nil
		}
	}
	return false, nil
}

func sameTermScope(a, b *TermID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func mapRuleConflict(err error, rule FeeItemRule) error {
	if err == nil {
		return nil
	}
	if IsConflict(err) {
		return &DuplicateRuleError{FeeItemID: rule.FeeItemID, ClassID: rule.ClassID, TermID: rule.TermID}
	}
	return err
}
