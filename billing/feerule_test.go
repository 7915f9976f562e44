package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/enrollment-engine/billing"
	"github.com/warp/enrollment-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func termRule(id, item, class, term, amount string) billing.FeeItemRule {
	rule := billing.FeeItemRule{
		ID:        billing.RuleID(id),
		FeeItemID: billing.FeeItemID(item),
		ClassID:   billing.ClassID(class),
		Amount:    billing.MustParseMoney(amount),
		Active:    true,
	}
	if term != "" {
		t := billing.TermID(term)
		rule.TermID = &t
	}
	return rule
}

func newRuleFixture(t *testing.T) (*billing.RuleService, *billing.DirectoryService, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return billing.NewRuleService(store), billing.NewDirectoryService(store), store
}

// =============================================================================
// PRECEDENCE TESTS (pure)
// =============================================================================

func TestSelectApplicableRules_TermSpecificBeatsGeneral(t *testing.T) {
	// GIVEN: Tuition has a 500 general default and a 550 override for term-1
	// WHEN: Resolving for term-1
	// THEN: The 550 override wins

	rules := []billing.FeeItemRule{
		termRule("r1", "tuition", "grade-1", "", "500.00"),
		termRule("r2", "tuition", "grade-1", "term-1", "550.00"),
	}

	selected, err := billing.SelectApplicableRules(rules, "term-1")

	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "550.00", selected[0].Amount.String())
}

func TestSelectApplicableRules_GeneralAppliesWhenNoOverride(t *testing.T) {
	rules := []billing.FeeItemRule{
		termRule("r1", "tuition", "grade-1", "", "500.00"),
		termRule("r2", "tuition", "grade-1", "term-2", "550.00"),
	}

	// term-1 has no override, so the general default applies; the term-2
	// override is not applicable at all.
	selected, err := billing.SelectApplicableRules(rules, "term-1")

	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "500.00", selected[0].Amount.String())
}

func TestSelectApplicableRules_NoRuleForItem_NotCharged(t *testing.T) {
	rules := []billing.FeeItemRule{
		termRule("r1", "lab", "grade-1", "term-2", "120.00"),
	}

	selected, err := billing.SelectApplicableRules(rules, "term-1")

	require.NoError(t, err)
	assert.Empty(t, selected, "an override for another term charges nothing")
}

func TestSelectApplicableRules_InactiveRules_Ignored(t *testing.T) {
	retired := termRule("r1", "tuition", "grade-1", "", "500.00")
	retired.Active = false

	selected, err := billing.SelectApplicableRules([]billing.FeeItemRule{retired}, "term-1")

	require.NoError(t, err)
	assert.Empty(t, selected)
}

func TestSelectApplicableRules_TwoTermSpecific_ConfigurationError(t *testing.T) {
	// Two equally specific rules for the same item is ambiguity the
	// resolver refuses to guess around.
	rules := []billing.FeeItemRule{
		termRule("r1", "tuition", "grade-1", "term-1", "550.00"),
		termRule("r2", "tuition", "grade-1", "term-1", "560.00"),
	}

	_, err := billing.SelectApplicableRules(rules, "term-1")
	assert.ErrorIs(t, err, billing.ErrConfiguration)
}

func TestSelectApplicableRules_TwoGeneralDefaults_ConfigurationError(t *testing.T) {
	rules := []billing.FeeItemRule{
		termRule("r1", "tuition", "grade-1", "", "500.00"),
		termRule("r2", "tuition", "grade-1", "", "510.00"),
	}

	_, err := billing.SelectApplicableRules(rules, "term-1")
	assert.ErrorIs(t, err, billing.ErrConfiguration)
}

func TestSelectApplicableRules_IndependentPerFeeItem(t *testing.T) {
	// GIVEN: Tuition has an override, library only a general default
	// WHEN: Resolving
	// THEN: Both are charged, each via its own precedence

	rules := []billing.FeeItemRule{
		termRule("r1", "tuition", "grade-1", "", "500.00"),
		termRule("r2", "tuition", "grade-1", "term-1", "550.00"),
		termRule("r3", "library", "grade-1", "", "50.00"),
	}

	selected, err := billing.SelectApplicableRules(rules, "term-1")

	require.NoError(t, err)
	require.Len(t, selected, 2)

	byItem := make(map[billing.FeeItemID]string)
	for _, rule := range selected {
		byItem[rule.FeeItemID] = rule.Amount.String()
	}
	assert.Equal(t, "550.00", byItem["tuition"])
	assert.Equal(t, "50.00", byItem["library"])
}

// =============================================================================
// RULE SERVICE TESTS
// =============================================================================

func TestRuleService_CreateRule_DuplicateActiveRule_Rejected(t *testing.T) {
	// GIVEN: An active general default for (tuition, grade-1)
	// WHEN: Creating a second general default for the same pair
	// THEN: Rejected with DuplicateRuleError

	rules, directory, _ := newRuleFixture(t)
	ctx := context.Background()

	_, err := directory.SaveFeeItem(ctx, billing.FeeItem{ID: "tuition", Name: "Tuition"})
	require.NoError(t, err)

	_, err = rules.CreateRule(ctx, "tuition", "grade-1", nil, billing.NewMoney(500))
	require.NoError(t, err)

	_, err = rules.CreateRule(ctx, "tuition", "grade-1", nil, billing.NewMoney(510))

	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrDuplicateRule)
	var dupErr *billing.DuplicateRuleError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, billing.FeeItemID("tuition"), dupErr.FeeItemID)
}

func TestRuleService_CreateRule_OverrideAlongsideDefault_Allowed(t *testing.T) {
	// A term override does not conflict with the general default.
	rules, directory, _ := newRuleFixture(t)
	ctx := context.Background()

	_, err := directory.SaveFeeItem(ctx, billing.FeeItem{ID: "tuition", Name: "Tuition"})
	require.NoError(t, err)

	_, err = rules.CreateRule(ctx, "tuition", "grade-1", nil, billing.NewMoney(500))
	require.NoError(t, err)

	termID := billing.TermID("term-1")
	_, err = rules.CreateRule(ctx, "tuition", "grade-1", &termID, billing.NewMoney(550))
	assert.NoError(t, err)
}

func TestRuleService_CreateRule_AfterDeactivation_Allowed(t *testing.T) {
	// Retiring the old rule frees the (fee_item, class, term) slot.
	rules, directory, _ := newRuleFixture(t)
	ctx := context.Background()

	_, err := directory.SaveFeeItem(ctx, billing.FeeItem{ID: "tuition", Name: "Tuition"})
	require.NoError(t, err)

	old, err := rules.CreateRule(ctx, "tuition", "grade-1", nil, billing.NewMoney(500))
	require.NoError(t, err)
	require.NoError(t, rules.DeactivateRule(ctx, old.ID))

	_, err = rules.CreateRule(ctx, "tuition", "grade-1", nil, billing.NewMoney(520))
	assert.NoError(t, err)
}

func TestRuleService_CreateRule_UnknownFeeItem_NotFound(t *testing.T) {
	rules, _, _ := newRuleFixture(t)

	_, err := rules.CreateRule(context.Background(), "ghost", "grade-1", nil, billing.NewMoney(500))
	assert.True(t, billing.IsNotFound(err))
}

func TestRuleService_CreateRule_NegativeAmount_Rejected(t *testing.T) {
	rules, directory, _ := newRuleFixture(t)
	ctx := context.Background()

	_, err := directory.SaveFeeItem(ctx, billing.FeeItem{ID: "tuition", Name: "Tuition"})
	require.NoError(t, err)

	_, err = rules.CreateRule(ctx, "tuition", "grade-1", nil, billing.NewMoney(-5))
	assert.ErrorIs(t, err, billing.ErrValidation)
}

// =============================================================================
// RESOLVER TESTS (against the store)
// =============================================================================

func TestFeeRuleResolver_ResolveMandatoryFees_UsesLabelsAndPrecedence(t *testing.T) {
	rules, directory, store := newRuleFixture(t)
	ctx := context.Background()

	_, err := directory.SaveFeeItem(ctx, billing.FeeItem{ID: "tuition", Name: "Tuition"})
	require.NoError(t, err)
	_, err = directory.SaveFeeItem(ctx, billing.FeeItem{ID: "library", Name: "Library Fee"})
	require.NoError(t, err)

	_, err = rules.CreateRule(ctx, "tuition", "grade-1", nil, billing.NewMoney(500))
	require.NoError(t, err)
	termID := billing.TermID("term-1")
	_, err = rules.CreateRule(ctx, "tuition", "grade-1", &termID, billing.NewMoney(550))
	require.NoError(t, err)
	_, err = rules.CreateRule(ctx, "library", "grade-1", nil, billing.NewMoney(50))
	require.NoError(t, err)

	resolver := billing.NewFeeRuleResolver(store)
	fees, err := resolver.ResolveMandatoryFees(ctx, "grade-1", "term-1")

	require.NoError(t, err)
	require.Len(t, fees, 2)
	// Sorted by label.
	assert.Equal(t, "Library Fee", fees[0].Label)
	assert.Equal(t, "50.00", fees[0].Amount.String())
	assert.Equal(t, "Tuition", fees[1].Label)
	assert.Equal(t, "550.00", fees[1].Amount.String())
}

func TestFeeRuleResolver_NoRules_EmptyInvoiceNotError(t *testing.T) {
	_, _, store := newRuleFixture(t)

	resolver := billing.NewFeeRuleResolver(store)
	fees, err := resolver.ResolveMandatoryFees(context.Background(), "grade-9", "term-1")

	require.NoError(t, err)
	assert.Empty(t, fees)
}
