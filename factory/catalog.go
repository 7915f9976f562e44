/*
Package factory provides JSON to Go fee-catalog conversion.

PURPOSE:
  Converts JSON catalog definitions into fee items, fee rules,
  installment plans and optional services, and seeds them through the
  same validated services the API uses. This enables fee configuration
  without code changes - the finance office can define a term's catalog
  in JSON, and the factory loads it.

WHY JSON?
  - Non-developers can modify the fee catalog
  - Easy integration with an admin UI
  - Version control for fee definitions
  - Same format can live in a database later

JSON SCHEMA:
  {
    "terms": [
      {"id": "2026-term-1", "name": "2026 Term 1", "active": true}
    ],
    "fee_items": [
      {"id": "tuition", "name": "Tuition"}
    ],
    "fee_rules": [
      {"fee_item_id": "tuition", "class_id": "grade-1", "amount": "500.00"},
      {"fee_item_id": "tuition", "class_id": "grade-1",
       "term_id": "2026-term-1", "amount": "550.00"}
    ],
    "installment_plans": [
      {"name": "Two halves", "percentages": ["50", "50"]}
    ],
    "optional_services": [
      {"name": "School bus", "amount": "80.00"}
    ]
  }

KEY FEATURES:
  - Amounts and percentages are decimal strings, never floats
  - Rules omit term_id for general defaults, set it for term overrides
  - Seeding goes through RuleService / PlanService / DirectoryService,
    so catalog files get the same validation as API writes
  - Duplicate active rules in a file fail the load with the same typed
    error a conflicting API write would get

USAGE:
  loader := factory.NewCatalogLoader(store)
  catalog, err := factory.ParseCatalog(jsonBytes)
  if err != nil { ... }
  if err := loader.Seed(ctx, catalog); err != nil { ... }

SEE ALSO:
  - billing/feerule.go: Rule validation the loader delegates to
  - billing/installment.go: Plan validation the loader delegates to
  - api/scenarios.go: Demo catalog built with this package
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/enrollment-engine/billing"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CatalogJSON is the JSON representation of a fee catalog.
type CatalogJSON struct {
	Terms            []TermJSON    `json:"terms,omitempty"`
	FeeItems         []FeeItemJSON `json:"fee_items,omitempty"`
	FeeRules         []FeeRuleJSON `json:"fee_rules,omitempty"`
	InstallmentPlans []PlanJSON    `json:"installment_plans,omitempty"`
	OptionalServices []ServiceJSON `json:"optional_services,omitempty"`
}

type TermJSON struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active,omitempty"`
}

type FeeItemJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FeeRuleJSON represents one fee rule. TermID empty means a general
// default for all terms; set, it is a term-specific override.
type FeeRuleJSON struct {
	FeeItemID string `json:"fee_item_id"`
	ClassID   string `json:"class_id"`
	TermID    string `json:"term_id,omitempty"`
	Amount    string `json:"amount"`
}

type PlanJSON struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Percentages []string `json:"percentages"`
}

type ServiceJSON struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
}

// ParseCatalog parses a JSON catalog document.
func ParseCatalog(data []byte) (*CatalogJSON, error) {
	var catalog CatalogJSON
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}
	return &catalog, nil
}

// =============================================================================
// CATALOG LOADER
// =============================================================================

// CatalogLoader seeds a parsed catalog through the validated services.
type CatalogLoader struct {
	directory *billing.DirectoryService
	rules     *billing.RuleService
	plans     *billing.PlanService
}

// NewCatalogLoader creates a loader bound to a store.
func NewCatalogLoader(store billing.TxStore) *CatalogLoader {
	return &CatalogLoader{
		directory: billing.NewDirectoryService(store),
		rules:     billing.NewRuleService(store),
		plans:     billing.NewPlanService(store),
	}
}

// Seed loads the catalog in dependency order: terms and fee items
// first, then the rules that reference them, then plans and services.
// Each entry goes through the same validation as an API write, so a
// bad amount or a duplicate active rule fails the load with a typed
// error.
func (l *CatalogLoader) Seed(ctx context.Context, catalog *CatalogJSON) error {
	for _, tj := range catalog.Terms {
		term := billing.Term{
			ID:     billing.TermID(tj.ID),
			Name:   tj.Name,
			Active: tj.Active,
		}
		if err := l.directory.SaveTerm(ctx, term); err != nil {
			return fmt.Errorf("term %q: %w", tj.Name, err)
		}
	}

	for _, fj := range catalog.FeeItems {
		item := billing.FeeItem{
			ID:   billing.FeeItemID(fj.ID),
			Name: fj.Name,
		}
		if _, err := l.directory.SaveFeeItem(ctx, item); err != nil {
			return fmt.Errorf("fee item %q: %w", fj.Name, err)
		}
	}

	for _, rj := range catalog.FeeRules {
		amount, err := parseAmount(rj.Amount)
		if err != nil {
			return fmt.Errorf("fee rule for %q: %w", rj.FeeItemID, err)
		}
		var termID *billing.TermID
		if rj.TermID != "" {
			t := billing.TermID(rj.TermID)
			termID = &t
		}
		_, err = l.rules.CreateRule(ctx,
			billing.FeeItemID(rj.FeeItemID), billing.ClassID(rj.ClassID), termID, amount)
		if err != nil {
			return fmt.Errorf("fee rule for %q class %q: %w", rj.FeeItemID, rj.ClassID, err)
		}
	}

	for _, pj := range catalog.InstallmentPlans {
		percentages, err := parsePercentages(pj.Percentages)
		if err != nil {
			return fmt.Errorf("plan %q: %w", pj.Name, err)
		}
		if _, err := l.plans.CreatePlan(ctx, pj.Name, pj.Description, percentages); err != nil {
			return fmt.Errorf("plan %q: %w", pj.Name, err)
		}
	}

	for _, sj := range catalog.OptionalServices {
		amount, err := parseAmount(sj.Amount)
		if err != nil {
			return fmt.Errorf("service %q: %w", sj.Name, err)
		}
		svc := billing.OptionalService{
			ID:          billing.ServiceID(sj.ID),
			Name:        sj.Name,
			Description: sj.Description,
			Amount:      amount,
		}
		if _, err := l.directory.SaveService(ctx, svc); err != nil {
			return fmt.Errorf("service %q: %w", sj.Name, err)
		}
	}

	return nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseAmount(s string) (billing.Money, error) {
	if s == "" {
		return billing.ZeroMoney(), fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return billing.ZeroMoney(), fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return billing.Money{Value: d.Round(2)}, nil
}

func parsePercentages(raw []string) ([]decimal.Decimal, error) {
	percentages := make([]decimal.Decimal, len(raw))
	for i, s := range raw {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid percentage %q: %w", s, err)
		}
		percentages[i] = d
	}
	return percentages, nil
}
