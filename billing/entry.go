package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// EntryDraft is an entry as submitted by a user, before validation.
// Instants and the date are naive literals.
type EntryDraft struct {
	ID            string
	UserID        string
	HospitalID    string
	ActID         string
	Date          string
	StartAt       string
	EndAt         string
	Quantity      *decimal.Decimal
	Notes         *string
	PatientsCount *int
	Role          string
}

// PrepareEntry validates a draft against its act and returns the entry to
// persist. Timed entries take their quantity from the elapsed hours and their
// date from the start. Role acts are priced here, once; the stored total is
// what every later read uses.
func PrepareEntry(draft EntryDraft, act MedicalAct) (Entry, error) {
	if act.ID != draft.ActID {
		return Entry{}, &FieldError{Field: "act_id", Message: "act does not match draft"}
	}
	if act.HospitalID != draft.HospitalID {
		return Entry{}, &FieldError{Field: "act_id", Message: "act does not belong to hospital " + draft.HospitalID}
	}
	if !act.Active {
		return Entry{}, &FieldError{Field: "act_id", Message: "act is inactive"}
	}

	entry := Entry{
		ID:         draft.ID,
		UserID:     draft.UserID,
		HospitalID: draft.HospitalID,
		ActID:      draft.ActID,
	}

	if draft.StartAt != "" || draft.EndAt != "" {
		start, err := ParseInstant(draft.StartAt)
		if err != nil {
			return Entry{}, withField(err, "start_at")
		}
		end, err := ParseInstant(draft.EndAt)
		if err != nil {
			return Entry{}, withField(err, "end_at")
		}
		hours, err := DurationHours(start, end, ElapsedStrict)
		if err != nil {
			return Entry{}, err
		}
		entry.StartAt, entry.EndAt = &start, &end
		entry.Date = start.Date()
		entry.Quantity = hours
	} else {
		if draft.Date == "" {
			return Entry{}, &FieldError{Field: "date", Message: "date is required for untimed entries"}
		}
		date, err := ParseDate(draft.Date)
		if err != nil {
			return Entry{}, withField(err, "date")
		}
		if draft.Quantity == nil {
			return Entry{}, &FieldError{Field: "quantity", Message: "quantity is required for untimed entries"}
		}
		if draft.Quantity.IsNegative() {
			return Entry{}, ErrNegativeQuantity
		}
		entry.Date = date
		entry.Quantity = *draft.Quantity
	}

	if act.RequiresPatients && draft.PatientsCount != nil && *draft.PatientsCount >= 0 {
		count := *draft.PatientsCount
		entry.PatientsCount = &count
	}

	if act.SupportsRoles {
		role, err := ParseRole(draft.Role)
		if err != nil {
			return Entry{}, err
		}
		price, err := PriceEntry(act, entry.Quantity, role)
		if err != nil {
			return Entry{}, err
		}
		total := price.Value
		entry.Role = role
		entry.TotalAmount = &total
		entry.CalculationDetail = price.Detail
	}

	if draft.Notes != nil {
		if trimmed := strings.TrimSpace(*draft.Notes); trimmed != "" {
			entry.Notes = &trimmed
		}
	}
	return entry, nil
}

func withField(err error, field string) error {
	var malformed *MalformedInputError
	if errors.As(err, &malformed) {
		malformed.Field = field
		return malformed
	}
	return fmt.Errorf("%s: %w", field, err)
}
