/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Engine types already
  carry JSON tags and are returned as-is where their shape is the contract;
  the types here add derived fields or carry request input.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request structs carry go-playground/validator tags for presence and shape.
  Semantic checks (date layouts, period order, pricing) stay in the engine so
  every caller gets the same rules.

SEE ALSO:
  - handlers.go: Uses these types
  - billing/types.go: Engine types returned directly
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/Jelela/mishorasmed/billing"
	"github.com/Jelela/mishorasmed/consolidation"
)

// =============================================================================
// REQUESTS
// =============================================================================

// AdjustPeriodRequest edits a closure's effective period.
type AdjustPeriodRequest struct {
	Start  string  `json:"start" validate:"required"`
	End    string  `json:"end" validate:"required"`
	Reason *string `json:"reason" validate:"omitempty,max=500"`
}

// SetConsolidatedRequest sets a group status flag.
type SetConsolidatedRequest struct {
	Consolidated *bool `json:"consolidated" validate:"required"`
}

// EntryRequest creates or replaces an entry.
type EntryRequest struct {
	HospitalID    string           `json:"user_hospital_id" validate:"required"`
	ActID         string           `json:"act_id" validate:"required"`
	Date          string           `json:"date"`
	StartTime     string           `json:"start_time"`
	EndTime       string           `json:"end_time"`
	Quantity      *decimal.Decimal `json:"quantity"`
	Notes         *string          `json:"notes" validate:"omitempty,max=2000"`
	PatientsCount *int             `json:"patients_count"`
	Role          string           `json:"role" validate:"omitempty,oneof=principal assistant"`
}

// AddHospitalRequest assigns a hospital to the caller.
type AddHospitalRequest struct {
	HospitalID string `json:"hospital_id" validate:"max=100"`
	Name       string `json:"name" validate:"required,max=200"`
	ClosingDay *int   `json:"closing_day" validate:"omitempty,min=1,max=31"`
}

// ClosingDayRequest sets or clears a closing day.
type ClosingDayRequest struct {
	ClosingDay *int `json:"closing_day" validate:"omitempty,min=1,max=31"`
}

// UnitValueRequest sets a flat act's rate.
type UnitValueRequest struct {
	UnitValue *decimal.Decimal `json:"unit_value" validate:"required"`
}

// RoleValuesRequest sets a role act's rates. A null value clears it.
type RoleValuesRequest struct {
	PrincipalValue *decimal.Decimal `json:"principal_value"`
	AssistantValue *decimal.Decimal `json:"assistant_value"`
}

// ActGroupRequest moves an act between report groups.
type ActGroupRequest struct {
	ReportGroupID *string `json:"report_group_id"`
}

// GroupRequest creates a report group.
type GroupRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

func (r EntryRequest) draft(userID, entryID string) billing.EntryDraft {
	return billing.EntryDraft{
		ID:            entryID,
		UserID:        userID,
		HospitalID:    r.HospitalID,
		ActID:         r.ActID,
		Date:          r.Date,
		StartAt:       r.StartTime,
		EndAt:         r.EndTime,
		Quantity:      r.Quantity,
		Notes:         r.Notes,
		PatientsCount: r.PatientsCount,
		Role:          r.Role,
	}
}

// =============================================================================
// RESPONSES
// =============================================================================

// ClosureDTO is a closure with its derived state.
type ClosureDTO struct {
	billing.HospitalClosure
	State billing.ClosureState `json:"state"`
}

func toClosureDTO(c billing.HospitalClosure) ClosureDTO {
	return ClosureDTO{HospitalClosure: c, State: c.State()}
}

// ClosingDTO is a loaded closing.
type ClosingDTO struct {
	Closing   consolidation.ClosingInfo    `json:"closing"`
	Closure   ClosureDTO                   `json:"closure"`
	Statuses  []billing.ClosureGroupStatus `json:"statuses"`
	Breakdown billing.Breakdown            `json:"breakdown"`
}

func toClosingDTO(b consolidation.ClosingBreakdown) ClosingDTO {
	return ClosingDTO{
		Closing:   b.Closing,
		Closure:   toClosureDTO(b.Closure),
		Statuses:  b.Statuses,
		Breakdown: b.Breakdown,
	}
}

// ErrorResponse is the body of every error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// HealthDTO is the health check body.
type HealthDTO struct {
	Status string `json:"status"`
}
