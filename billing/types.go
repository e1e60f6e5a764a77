/*
Package billing provides the closing-period and consolidation engine.

PURPOSE:
  Medical professionals record work sessions ("entries") against hospital
  assignments. Each hospital closes its billing period on a fixed day of the
  month. This package derives those periods, prices entries, aggregates them
  into per-group totals and tracks the consolidation state of each period.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: one recorded work session, optionally priced at write time
  - MedicalAct: a billable act type with flat or role-based rates
  - ReportGroup: a bucket partitioning acts for a hospital's submission format
  - HospitalClosure: one concrete billing period for one hospital assignment
  - ClosureGroupStatus: consolidation flag of one report group in one closure

DESIGN PRINCIPLES:
  1. Naive time: dates and instants are literal values, never shifted by a zone
  2. Precision: money and quantities use decimal.Decimal
  3. Compute once: a total priced at write time always wins over recomputation
  4. Explicit inputs: nothing in this package reads the wall clock on its own

SEE ALSO:
  - clock.go: naive dates, instants and durations
  - period.go: closing-day arithmetic
  - pricing.go: entry valuation
  - aggregate.go: grouped totals for a period
  - closure.go: closure bookkeeping
*/
package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ROLES AND UNITS
// =============================================================================

// Role is the part a professional played in a role-priced act.
type Role string

const (
	RolePrincipal Role = "principal"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool { return r == RolePrincipal || r == RoleAssistant }

// ParseRole returns nil for an empty literal.
func ParseRole(s string) (*Role, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	r := Role(s)
	if !r.Valid() {
		return nil, &FieldError{Field: "role", Message: fmt.Sprintf("unknown role %q", s)}
	}
	return &r, nil
}

// UnitKind is what an act's quantity counts.
type UnitKind string

const (
	UnitHours UnitKind = "hours"
	UnitUnits UnitKind = "units"
)

func (u UnitKind) Valid() bool { return u == UnitHours || u == UnitUnits }

// =============================================================================
// PRICING CONFIGURATION
// =============================================================================

// NocturnalRule multiplies a flat act's value unconditionally.
type NocturnalRule struct {
	Multiplier decimal.Decimal `json:"multiplier"`
}

// PricingRules is the optional extension stored with an act as JSON.
type PricingRules struct {
	Nocturnal *NocturnalRule `json:"nocturnidad,omitempty"`
}

// ParsePricingRules decodes the stored JSON form. Empty input means no rules.
func ParsePricingRules(raw []byte) (*PricingRules, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var rules PricingRules
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, &MalformedInputError{Field: "pricing_rules", Value: string(raw), Layout: "JSON object"}
	}
	return &rules, nil
}

// CalculationDetail records how a role-priced total was obtained.
type CalculationDetail struct {
	Role     Role            `json:"role"`
	Rate     decimal.Decimal `json:"rate"`
	Quantity decimal.Decimal `json:"quantity"`
	Total    decimal.Decimal `json:"total"`
}

// =============================================================================
// CATALOG
// =============================================================================

// MedicalAct is a billable act type scoped to one hospital assignment.
// When SupportsRoles is set, UnitValue is unused and both role values must be
// set before the act can be priced.
type MedicalAct struct {
	ID               string           `json:"id"`
	HospitalID       string           `json:"hospital_id"`
	Name             string           `json:"name"`
	UnitKind         UnitKind         `json:"unit_type"`
	UnitValue        *decimal.Decimal `json:"unit_value,omitempty"`
	PrincipalValue   *decimal.Decimal `json:"principal_value,omitempty"`
	AssistantValue   *decimal.Decimal `json:"assistant_value,omitempty"`
	RequiresPatients bool             `json:"requires_patients"`
	SupportsRoles    bool             `json:"supports_roles"`
	PricingRules     *PricingRules    `json:"pricing_rules,omitempty"`
	ReportGroupID    *string          `json:"report_group_id,omitempty"`
	Active           bool             `json:"active"`
	SortOrder        int              `json:"sort_order"`
}

// RoleRate returns the configured rate for a role, or nil.
func (a MedicalAct) RoleRate(role Role) *decimal.Decimal {
	switch role {
	case RolePrincipal:
		return a.PrincipalValue
	case RoleAssistant:
		return a.AssistantValue
	default:
		return nil
	}
}

// ReportGroup partitions acts for a hospital's submission format.
type ReportGroup struct {
	ID         string `json:"id"`
	HospitalID string `json:"hospital_id"`
	Name       string `json:"name"`
	SortOrder  int    `json:"sort_order"`
	Active     bool   `json:"active"`
}

// HospitalAssignment links a user to a catalog hospital. The catalog's
// closing day drives the billing periods; nil means the hospital never closes.
type HospitalAssignment struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id"`
	CatalogHospitalID string `json:"hospital_id"`
	HospitalName      string `json:"hospital_name"`
	ClosingDay        *int   `json:"closing_day,omitempty"`
}

// =============================================================================
// ENTRIES
// =============================================================================

// Entry is one recorded work session. When StartAt and EndAt are both set,
// EndAt is after StartAt and Quantity is the elapsed hours.
type Entry struct {
	ID                string             `json:"id"`
	UserID            string             `json:"user_id"`
	HospitalID        string             `json:"user_hospital_id"`
	ActID             string             `json:"act_id"`
	Date              Date               `json:"date"`
	StartAt           *Instant           `json:"start_time,omitempty"`
	EndAt             *Instant           `json:"end_time,omitempty"`
	Quantity          decimal.Decimal    `json:"quantity"`
	Notes             *string            `json:"notes,omitempty"`
	PatientsCount     *int               `json:"patients_count,omitempty"`
	Role              *Role              `json:"role,omitempty"`
	TotalAmount       *decimal.Decimal   `json:"total_amount,omitempty"`
	CalculationDetail *CalculationDetail `json:"calculation_detail,omitempty"`
}

// EntryWithAct is an entry joined with its act and the act's report group.
// Group is nil when the act has no group or the group does not resolve.
type EntryWithAct struct {
	Entry Entry
	Act   MedicalAct
	Group *ReportGroup
}

// =============================================================================
// CLOSURES
// =============================================================================

// ClosureState is derived from a closure's periods, never stored.
type ClosureState string

const (
	StateCalculated ClosureState = "calculated"
	StateAdjusted   ClosureState = "adjusted"
)

// ClosureKey is the natural key of a closure.
type ClosureKey struct {
	UserID     string
	HospitalID string
	Calculated Period
}

func (k ClosureKey) String() string {
	return k.HospitalID + "/" + k.Calculated.String()
}

// HospitalClosure is one billing period instance for one hospital assignment.
// IsAdjusted always equals Effective != Calculated.
type HospitalClosure struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	HospitalID   string    `json:"user_hospital_id"`
	Calculated   Period    `json:"calculated"`
	Effective    Period    `json:"effective"`
	IsAdjusted   bool      `json:"is_adjusted"`
	AdjustReason *string   `json:"adjust_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (c HospitalClosure) Key() ClosureKey {
	return ClosureKey{UserID: c.UserID, HospitalID: c.HospitalID, Calculated: c.Calculated}
}

func (c HospitalClosure) State() ClosureState {
	if c.IsAdjusted {
		return StateAdjusted
	}
	return StateCalculated
}

// ClosureGroupStatus is the consolidation flag of one report group within one
// closure. A nil ReportGroupID is the ungrouped bucket.
type ClosureGroupStatus struct {
	ID             string     `json:"id"`
	ClosureID      string     `json:"closure_id"`
	ReportGroupID  *string    `json:"report_group_id"`
	IsConsolidated bool       `json:"is_consolidated"`
	ConsolidatedAt *time.Time `json:"consolidated_at"`
}

// GroupKey is the aggregation key of the status's group.
func (s ClosureGroupStatus) GroupKey() string { return GroupKey(s.ReportGroupID) }

// UngroupedKey is the aggregation key of acts without a report group.
const UngroupedKey = "ungrouped"

// GroupKey maps a nullable group id to its aggregation key.
func GroupKey(groupID *string) string {
	if groupID == nil || *groupID == "" {
		return UngroupedKey
	}
	return *groupID
}
