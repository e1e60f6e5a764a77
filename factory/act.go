/*
Package factory provides JSON to Go catalog conversion.

PURPOSE:
  Converts JSON act definitions and seed datasets into billing.MedicalAct,
  billing.ReportGroup and billing.HospitalAssignment values. Hospitals can be
  configured without code changes, and the CLI and the memory-backed server
  load the bundled demo dataset from here.

JSON SCHEMA (act):
  {
    "id": "act-guardia",
    "name": "Guardia",
    "unit_type": "hours",
    "unit_value": "200",
    "requires_patients": false,
    "supports_roles": false,
    "pricing_rules": {"nocturnidad": {"multiplier": "1.5"}},
    "report_group_id": "g-os",
    "active": true,
    "sort_order": 1
  }

  Role acts set "supports_roles": true with "principal_value" and
  "assistant_value" instead of "unit_value".

JSON SCHEMA (seed):
  {
    "hospitals": [
      {
        "id": "uh-1", "user_id": "user-1", "hospital_id": "h-central",
        "name": "Hospital Central", "closing_day": 15,
        "groups": [{"id": "g-os", "name": "Obra social", "sort_order": 1}],
        "acts":   [ ...act... ]
      }
    ],
    "entries": [
      {"user_hospital_id": "uh-1", "act_id": "act-guardia",
       "start_time": "2024-03-01T22:00:00", "end_time": "2024-03-02T01:00:00"}
    ]
  }

USAGE:
  f := factory.NewCatalogFactory()
  seed, err := f.ParseSeed(data)
  err = seed.Apply(ctx, store)
  for _, draft := range seed.Entries { recorder.Create(ctx, draft) }

SEE ALSO:
  - billing/types.go: catalog type definitions
  - entries/recorder.go: write path for seeded entries
*/
package factory

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Jelela/mishorasmed/billing"
)

//go:embed seed/demo.json
var demoSeed []byte

// DemoSeed returns the bundled demo dataset.
func DemoSeed() []byte { return demoSeed }

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ActJSON is the JSON representation of a medical act.
type ActJSON struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	UnitType         string           `json:"unit_type"`
	UnitValue        *decimal.Decimal `json:"unit_value,omitempty"`
	PrincipalValue   *decimal.Decimal `json:"principal_value,omitempty"`
	AssistantValue   *decimal.Decimal `json:"assistant_value,omitempty"`
	RequiresPatients bool             `json:"requires_patients,omitempty"`
	SupportsRoles    bool             `json:"supports_roles,omitempty"`
	PricingRules     json.RawMessage  `json:"pricing_rules,omitempty"`
	ReportGroupID    *string          `json:"report_group_id,omitempty"`
	Active           *bool            `json:"active,omitempty"` // Default true
	SortOrder        int              `json:"sort_order,omitempty"`
}

// GroupJSON is the JSON representation of a report group.
type GroupJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
	Active    *bool  `json:"active,omitempty"` // Default true
}

// HospitalJSON is one hospital assignment with its catalog.
type HospitalJSON struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	HospitalID string      `json:"hospital_id"`
	Name       string      `json:"name"`
	ClosingDay *int        `json:"closing_day,omitempty"`
	Groups     []GroupJSON `json:"groups,omitempty"`
	Acts       []ActJSON   `json:"acts,omitempty"`
}

// EntryJSON is a seeded entry in the same shape the API accepts.
type EntryJSON struct {
	HospitalID    string           `json:"user_hospital_id"`
	ActID         string           `json:"act_id"`
	Date          string           `json:"date,omitempty"`
	StartTime     string           `json:"start_time,omitempty"`
	EndTime       string           `json:"end_time,omitempty"`
	Quantity      *decimal.Decimal `json:"quantity,omitempty"`
	Notes         *string          `json:"notes,omitempty"`
	PatientsCount *int             `json:"patients_count,omitempty"`
	Role          string           `json:"role,omitempty"`
}

// SeedJSON is a full dataset.
type SeedJSON struct {
	Hospitals []HospitalJSON `json:"hospitals"`
	Entries   []EntryJSON    `json:"entries,omitempty"`
}

// Seed is a parsed dataset ready to load into a store.
type Seed struct {
	Assignments []billing.HospitalAssignment
	Groups      []billing.ReportGroup
	Acts        []billing.MedicalAct
	Entries     []billing.EntryDraft
}

// =============================================================================
// CATALOG FACTORY
// =============================================================================

// CatalogFactory converts JSON definitions to billing types.
type CatalogFactory struct{}

// NewCatalogFactory creates a new catalog factory.
func NewCatalogFactory() *CatalogFactory {
	return &CatalogFactory{}
}

// ParseAct parses a JSON act definition for the given hospital assignment.
func (f *CatalogFactory) ParseAct(hospitalID, jsonStr string) (billing.MedicalAct, error) {
	var aj ActJSON
	if err := json.Unmarshal([]byte(jsonStr), &aj); err != nil {
		return billing.MedicalAct{}, fmt.Errorf("failed to parse act JSON: %w", err)
	}
	return f.ActFromJSON(hospitalID, aj)
}

// ActFromJSON converts ActJSON to billing.MedicalAct.
func (f *CatalogFactory) ActFromJSON(hospitalID string, aj ActJSON) (billing.MedicalAct, error) {
	if strings.TrimSpace(aj.ID) == "" {
		return billing.MedicalAct{}, &billing.FieldError{Field: "id", Message: "act id is required"}
	}
	if strings.TrimSpace(aj.Name) == "" {
		return billing.MedicalAct{}, &billing.FieldError{Field: "name", Message: fmt.Sprintf("act %s has no name", aj.ID)}
	}

	unit := billing.UnitKind(aj.UnitType)
	if !unit.Valid() {
		return billing.MedicalAct{}, &billing.FieldError{Field: "unit_type", Message: fmt.Sprintf("act %s: unknown unit type %q", aj.ID, aj.UnitType)}
	}
	for field, v := range map[string]*decimal.Decimal{
		"unit_value":      aj.UnitValue,
		"principal_value": aj.PrincipalValue,
		"assistant_value": aj.AssistantValue,
	} {
		if v != nil && v.IsNegative() {
			return billing.MedicalAct{}, &billing.FieldError{Field: field, Message: fmt.Sprintf("act %s: value must not be negative", aj.ID)}
		}
	}

	rules, err := billing.ParsePricingRules(aj.PricingRules)
	if err != nil {
		return billing.MedicalAct{}, err
	}
	if rules != nil && rules.Nocturnal != nil && !rules.Nocturnal.Multiplier.IsPositive() {
		return billing.MedicalAct{}, &billing.FieldError{Field: "pricing_rules", Message: fmt.Sprintf("act %s: nocturnal multiplier must be positive", aj.ID)}
	}

	act := billing.MedicalAct{
		ID:               aj.ID,
		HospitalID:       hospitalID,
		Name:             aj.Name,
		UnitKind:         unit,
		RequiresPatients: aj.RequiresPatients,
		SupportsRoles:    aj.SupportsRoles,
		PricingRules:     rules,
		ReportGroupID:    aj.ReportGroupID,
		Active:           aj.Active == nil || *aj.Active,
		SortOrder:        aj.SortOrder,
	}
	// Role acts ignore the flat value; flat acts ignore role values.
	if aj.SupportsRoles {
		act.PrincipalValue = aj.PrincipalValue
		act.AssistantValue = aj.AssistantValue
	} else {
		act.UnitValue = aj.UnitValue
	}
	return act, nil
}

// ToJSON converts an act back to its JSON form.
func (f *CatalogFactory) ToJSON(act billing.MedicalAct) (ActJSON, error) {
	aj := ActJSON{
		ID:               act.ID,
		Name:             act.Name,
		UnitType:         string(act.UnitKind),
		UnitValue:        act.UnitValue,
		PrincipalValue:   act.PrincipalValue,
		AssistantValue:   act.AssistantValue,
		RequiresPatients: act.RequiresPatients,
		SupportsRoles:    act.SupportsRoles,
		ReportGroupID:    act.ReportGroupID,
		Active:           &act.Active,
		SortOrder:        act.SortOrder,
	}
	if act.PricingRules != nil {
		raw, err := json.Marshal(act.PricingRules)
		if err != nil {
			return ActJSON{}, err
		}
		aj.PricingRules = raw
	}
	return aj, nil
}

// ParseSeed parses and validates a full dataset.
func (f *CatalogFactory) ParseSeed(data []byte) (Seed, error) {
	var sj SeedJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return Seed{}, fmt.Errorf("failed to parse seed JSON: %w", err)
	}
	return f.SeedFromJSON(sj)
}

// SeedFromJSON converts SeedJSON to a Seed. Every act's report group must be
// one of its own hospital's groups, and every entry must name a known act.
func (f *CatalogFactory) SeedFromJSON(sj SeedJSON) (Seed, error) {
	var seed Seed
	owners := make(map[string]string) // hospital assignment id -> user id
	actHospital := make(map[string]string)

	for _, hj := range sj.Hospitals {
		if hj.ID == "" || hj.UserID == "" {
			return Seed{}, &billing.FieldError{Field: "hospitals", Message: "hospital id and user_id are required"}
		}
		if _, dup := owners[hj.ID]; dup {
			return Seed{}, &billing.FieldError{Field: "hospitals", Message: "duplicate hospital " + hj.ID}
		}
		if hj.ClosingDay != nil {
			if err := billing.ValidateClosingDay(*hj.ClosingDay); err != nil {
				return Seed{}, fmt.Errorf("hospital %s: %w", hj.ID, err)
			}
		}
		owners[hj.ID] = hj.UserID
		seed.Assignments = append(seed.Assignments, billing.HospitalAssignment{
			ID:                hj.ID,
			UserID:            hj.UserID,
			CatalogHospitalID: hj.HospitalID,
			HospitalName:      hj.Name,
			ClosingDay:        hj.ClosingDay,
		})

		groups := make(map[string]bool, len(hj.Groups))
		for _, gj := range hj.Groups {
			if gj.ID == "" || gj.Name == "" {
				return Seed{}, &billing.FieldError{Field: "groups", Message: fmt.Sprintf("hospital %s: group id and name are required", hj.ID)}
			}
			groups[gj.ID] = true
			seed.Groups = append(seed.Groups, billing.ReportGroup{
				ID:         gj.ID,
				HospitalID: hj.ID,
				Name:       gj.Name,
				SortOrder:  gj.SortOrder,
				Active:     gj.Active == nil || *gj.Active,
			})
		}

		for _, aj := range hj.Acts {
			act, err := f.ActFromJSON(hj.ID, aj)
			if err != nil {
				return Seed{}, fmt.Errorf("hospital %s: %w", hj.ID, err)
			}
			if act.ReportGroupID != nil && !groups[*act.ReportGroupID] {
				return Seed{}, &billing.FieldError{
					Field:   "report_group_id",
					Message: fmt.Sprintf("act %s references unknown group %s", act.ID, *act.ReportGroupID),
				}
			}
			actHospital[act.ID] = hj.ID
			seed.Acts = append(seed.Acts, act)
		}
	}

	for i, ej := range sj.Entries {
		userID, ok := owners[ej.HospitalID]
		if !ok {
			return Seed{}, &billing.FieldError{Field: "entries", Message: fmt.Sprintf("entry %d: unknown hospital %s", i, ej.HospitalID)}
		}
		if actHospital[ej.ActID] != ej.HospitalID {
			return Seed{}, &billing.FieldError{Field: "entries", Message: fmt.Sprintf("entry %d: unknown act %s", i, ej.ActID)}
		}
		seed.Entries = append(seed.Entries, billing.EntryDraft{
			UserID:        userID,
			HospitalID:    ej.HospitalID,
			ActID:         ej.ActID,
			Date:          ej.Date,
			StartAt:       ej.StartTime,
			EndAt:         ej.EndTime,
			Quantity:      ej.Quantity,
			Notes:         ej.Notes,
			PatientsCount: ej.PatientsCount,
			Role:          ej.Role,
		})
	}
	return seed, nil
}

// Apply writes the catalog part of the seed. Entries go through the recorder
// so they are validated and priced like any other write.
func (s Seed) Apply(ctx context.Context, w billing.CatalogWriter) error {
	for _, a := range s.Assignments {
		if err := w.PutAssignment(ctx, a); err != nil {
			return err
		}
	}
	for _, g := range s.Groups {
		if err := w.PutGroup(ctx, g); err != nil {
			return err
		}
	}
	for _, a := range s.Acts {
		if err := w.PutAct(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
