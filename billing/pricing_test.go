package billing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jelela/mishorasmed/billing"
)

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func rolePtr(r billing.Role) *billing.Role { return &r }

func surgeryAct() billing.MedicalAct {
	return billing.MedicalAct{
		ID:             "act-surgery",
		HospitalID:     "uh-1",
		Name:           "Cirugía",
		UnitKind:       billing.UnitHours,
		PrincipalValue: decPtr("1500"),
		AssistantValue: decPtr("750"),
		SupportsRoles:  true,
		Active:         true,
	}
}

func guardAct() billing.MedicalAct {
	return billing.MedicalAct{
		ID:         "act-guard",
		HospitalID: "uh-1",
		Name:       "Guardia",
		UnitKind:   billing.UnitHours,
		UnitValue:  decPtr("200"),
		Active:     true,
	}
}

// =============================================================================
// ROLE PRICING
// =============================================================================

func TestPriceEntry_RoleAct_Principal(t *testing.T) {
	price, err := billing.PriceEntry(surgeryAct(), dec("4"), rolePtr(billing.RolePrincipal))
	require.NoError(t, err)

	assertDecimal(t, "6000", price.Value)
	require.NotNil(t, price.Detail)
	assert.Equal(t, billing.RolePrincipal, price.Detail.Role)
	assertDecimal(t, "1500", price.Detail.Rate)
	assertDecimal(t, "4", price.Detail.Quantity)
	assertDecimal(t, "6000", price.Detail.Total)
}

func TestPriceEntry_RoleAct_Assistant(t *testing.T) {
	price, err := billing.PriceEntry(surgeryAct(), dec("4"), rolePtr(billing.RoleAssistant))
	require.NoError(t, err)
	assertDecimal(t, "3000", price.Value)
}

func TestPriceEntry_RoleAct_RoleRequired(t *testing.T) {
	_, err := billing.PriceEntry(surgeryAct(), dec("4"), nil)

	assert.ErrorIs(t, err, billing.ErrRoleRequired)
	assert.ErrorIs(t, err, billing.ErrValidation)
	assert.NotErrorIs(t, err, billing.ErrMissingRoleRate)
}

func TestPriceEntry_RoleAct_MissingRate(t *testing.T) {
	act := surgeryAct()
	act.AssistantValue = nil

	_, err := billing.PriceEntry(act, dec("4"), rolePtr(billing.RoleAssistant))

	var missing *billing.MissingRoleRateError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "act-surgery", missing.ActID)
	assert.Equal(t, billing.RoleAssistant, missing.Role)
	assert.ErrorIs(t, err, billing.ErrMissingRoleRate)
	assert.True(t, billing.IsClientError(err))
}

func TestPriceEntry_DoesNotMutateAct(t *testing.T) {
	act := surgeryAct()
	before := act.PrincipalValue.String()

	_, err := billing.PriceEntry(act, dec("4"), rolePtr(billing.RolePrincipal))
	require.NoError(t, err)

	assert.Equal(t, before, act.PrincipalValue.String())
	assert.Nil(t, act.UnitValue)
}

// =============================================================================
// FLAT PRICING
// =============================================================================

func TestPriceEntry_FlatAct(t *testing.T) {
	price, err := billing.PriceEntry(guardAct(), dec("3"), nil)
	require.NoError(t, err)
	assertDecimal(t, "600", price.Value)
	assert.Nil(t, price.Detail)
}

func TestPriceEntry_FlatAct_IgnoresRole(t *testing.T) {
	price, err := billing.PriceEntry(guardAct(), dec("3"), rolePtr(billing.RolePrincipal))
	require.NoError(t, err)
	assertDecimal(t, "600", price.Value)
	assert.Nil(t, price.Detail)
}

func TestPriceEntry_FlatAct_NocturnalMultiplier(t *testing.T) {
	act := guardAct()
	act.PricingRules = &billing.PricingRules{Nocturnal: &billing.NocturnalRule{Multiplier: dec("1.5")}}

	price, err := billing.PriceEntry(act, dec("3"), nil)
	require.NoError(t, err)
	assertDecimal(t, "900", price.Value)
}

func TestPriceEntry_FlatAct_NoUnitValueIsZero(t *testing.T) {
	act := guardAct()
	act.UnitValue = nil

	price, err := billing.PriceEntry(act, dec("3"), nil)
	require.NoError(t, err)
	assert.True(t, price.Value.IsZero())
}

func TestPriceEntry_NegativeQuantity(t *testing.T) {
	_, err := billing.PriceEntry(guardAct(), dec("-1"), nil)
	assert.ErrorIs(t, err, billing.ErrNegativeQuantity)
	assert.ErrorIs(t, err, billing.ErrValidation)
}

// =============================================================================
// ENTRY VALUE
// =============================================================================

func TestEntryValue_PrecomputedTotalWins(t *testing.T) {
	// GIVEN: a flat act whose rate changed after the entry was priced
	act := guardAct()
	entry := billing.Entry{ID: "e-1", Quantity: dec("3"), TotalAmount: decPtr("500")}

	// WHEN: valuing the entry
	value, err := billing.EntryValue(entry, act)

	// THEN: the stored total is used, not 3 × 200
	require.NoError(t, err)
	assertDecimal(t, "500", value)
}

func TestEntryValue_RoleActWithoutStoredTotal(t *testing.T) {
	entry := billing.Entry{ID: "e-1", Quantity: dec("2"), Role: rolePtr(billing.RolePrincipal)}

	value, err := billing.EntryValue(entry, surgeryAct())
	require.NoError(t, err)
	assertDecimal(t, "3000", value)
}

func TestParsePricingRules(t *testing.T) {
	rules, err := billing.ParsePricingRules([]byte(`{"nocturnidad":{"multiplier":1.5}}`))
	require.NoError(t, err)
	require.NotNil(t, rules)
	require.NotNil(t, rules.Nocturnal)
	assertDecimal(t, "1.5", rules.Nocturnal.Multiplier)

	rules, err = billing.ParsePricingRules(nil)
	require.NoError(t, err)
	assert.Nil(t, rules)

	_, err = billing.ParsePricingRules([]byte(`{"nocturnidad":`))
	assert.ErrorIs(t, err, billing.ErrMalformedInput)
}
