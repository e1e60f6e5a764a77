package billing

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// PRICING ENGINE
// =============================================================================
//
// Role acts:  value = quantity × rate[role], detail retained for audit.
// Flat acts:  value = quantity × unit value (0 when unset), times the act's
//             nocturnal multiplier when one is attached. The multiplier is an
//             act-level toggle; no time-of-day check happens here.
//
// A total stored on the entry at write time always wins over recomputation.

// Price is the value of one entry and, for role acts, how it was obtained.
type Price struct {
	Value  decimal.Decimal
	Detail *CalculationDetail
}

// PriceEntry values a quantity of an act. The act is never modified.
func PriceEntry(act MedicalAct, quantity decimal.Decimal, role *Role) (Price, error) {
	if quantity.IsNegative() {
		return Price{}, ErrNegativeQuantity
	}

	if act.SupportsRoles {
		if role == nil {
			return Price{}, ErrRoleRequired
		}
		if !role.Valid() {
			return Price{}, &FieldError{Field: "role", Message: "unknown role " + string(*role)}
		}
		rate := act.RoleRate(*role)
		if rate == nil {
			return Price{}, &MissingRoleRateError{ActID: act.ID, Role: *role}
		}
		total := quantity.Mul(*rate)
		return Price{
			Value: total,
			Detail: &CalculationDetail{
				Role:     *role,
				Rate:     *rate,
				Quantity: quantity,
				Total:    total,
			},
		}, nil
	}

	if act.UnitValue == nil {
		return Price{Value: decimal.Zero}, nil
	}
	value := quantity.Mul(*act.UnitValue)
	if act.PricingRules != nil && act.PricingRules.Nocturnal != nil {
		value = value.Mul(act.PricingRules.Nocturnal.Multiplier)
	}
	return Price{Value: value}, nil
}

// EntryValue returns the entry's stored total when present, else prices it.
func EntryValue(entry Entry, act MedicalAct) (decimal.Decimal, error) {
	if entry.TotalAmount != nil {
		return *entry.TotalAmount, nil
	}
	price, err := PriceEntry(act, entry.Quantity, entry.Role)
	if err != nil {
		return decimal.Zero, err
	}
	return price.Value, nil
}
