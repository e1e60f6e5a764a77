package entries_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jelela/mishorasmed/billing"
	"github.com/Jelela/mishorasmed/billing/store"
	"github.com/Jelela/mishorasmed/entries"
)

func setup(t *testing.T) (*store.Memory, *entries.Recorder) {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()
	principal := decimal.NewFromInt(1500)
	assistant := decimal.NewFromInt(750)
	unit := decimal.NewFromInt(200)

	require.NoError(t, m.PutAssignment(ctx, billing.HospitalAssignment{ID: "uh-1", UserID: "user-1", HospitalName: "Central"}))
	require.NoError(t, m.PutAct(ctx, billing.MedicalAct{
		ID: "act-surgery", HospitalID: "uh-1", Name: "Cirugia", UnitKind: billing.UnitUnits,
		SupportsRoles: true, PrincipalValue: &principal, AssistantValue: &assistant, Active: true,
	}))
	require.NoError(t, m.PutAct(ctx, billing.MedicalAct{
		ID: "act-guard", HospitalID: "uh-1", Name: "Guardia", UnitKind: billing.UnitHours,
		UnitValue: &unit, Active: true,
	}))

	return m, entries.NewRecorder(m, entries.WithIDGenerator(func() string { return "entry-1" }))
}

func TestRecorder_CreateTimedEntry(t *testing.T) {
	// GIVEN: A night guard from 22:00 to 01:00
	// WHEN: The draft is recorded
	// THEN: Quantity is 3 hours, dated on the start day, with a generated id

	ctx := context.Background()
	m, rec := setup(t)

	entry, err := rec.Create(ctx, billing.EntryDraft{
		UserID:     "user-1",
		HospitalID: "uh-1",
		ActID:      "act-guard",
		StartAt:    "2024-03-01T22:00:00",
		EndAt:      "2024-03-02T01:00:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "entry-1", entry.ID)
	assert.Equal(t, "2024-03-01", entry.Date.String())
	assert.True(t, entry.Quantity.Equal(decimal.NewFromInt(3)))
	assert.Nil(t, entry.TotalAmount)

	stored, err := m.GetEntry(ctx, "user-1", "entry-1")
	require.NoError(t, err)
	assert.Equal(t, entry, stored)
}

func TestRecorder_CreatePricesRoleActOnce(t *testing.T) {
	ctx := context.Background()
	m, rec := setup(t)
	qty := decimal.NewFromInt(4)

	_, err := rec.Create(ctx, billing.EntryDraft{
		UserID: "user-1", HospitalID: "uh-1", ActID: "act-surgery",
		Date: "2024-03-05", Quantity: &qty, Role: "principal",
	})
	require.NoError(t, err)

	stored, err := m.GetEntry(ctx, "user-1", "entry-1")
	require.NoError(t, err)
	require.NotNil(t, stored.TotalAmount)
	assert.True(t, stored.TotalAmount.Equal(decimal.NewFromInt(6000)))
	require.NotNil(t, stored.CalculationDetail)
	assert.Equal(t, billing.RolePrincipal, stored.CalculationDetail.Role)
}

func TestRecorder_CalculationErrorBlocksWrite(t *testing.T) {
	ctx := context.Background()
	m, rec := setup(t)
	qty := decimal.NewFromInt(1)

	_, err := rec.Create(ctx, billing.EntryDraft{
		UserID: "user-1", HospitalID: "uh-1", ActID: "act-surgery",
		Date: "2024-03-05", Quantity: &qty,
	})
	assert.ErrorIs(t, err, billing.ErrRoleRequired)

	_, err = m.GetEntry(ctx, "user-1", "entry-1")
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func TestRecorder_Rejections(t *testing.T) {
	qty := decimal.NewFromInt(1)

	tests := []struct {
		name  string
		draft billing.EntryDraft
		want  error
	}{
		{
			name:  "end before start",
			draft: billing.EntryDraft{UserID: "user-1", HospitalID: "uh-1", ActID: "act-guard", StartAt: "2024-03-01T10:00:00", EndAt: "2024-03-01T09:00:00"},
			want:  billing.ErrEndBeforeStart,
		},
		{
			name:  "missing end instant",
			draft: billing.EntryDraft{UserID: "user-1", HospitalID: "uh-1", ActID: "act-guard", StartAt: "2024-03-01T10:00:00"},
			want:  billing.ErrMissingInstant,
		},
		{
			name:  "foreign hospital",
			draft: billing.EntryDraft{UserID: "user-2", HospitalID: "uh-1", ActID: "act-guard", Date: "2024-03-01", Quantity: &qty},
			want:  billing.ErrNotFound,
		},
		{
			name:  "unknown act",
			draft: billing.EntryDraft{UserID: "user-1", HospitalID: "uh-1", ActID: "act-missing", Date: "2024-03-01", Quantity: &qty},
			want:  billing.ErrNotFound,
		},
		{
			name:  "malformed date",
			draft: billing.EntryDraft{UserID: "user-1", HospitalID: "uh-1", ActID: "act-guard", Date: "01/03/2024", Quantity: &qty},
			want:  billing.ErrMalformedInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rec := setup(t)
			_, err := rec.Create(context.Background(), tt.draft)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRecorder_UpdateReprices(t *testing.T) {
	// GIVEN: A stored principal surgery worth 6000
	// WHEN: It is updated to the assistant role
	// THEN: The stored total is recomputed to 3000

	ctx := context.Background()
	m, rec := setup(t)
	qty := decimal.NewFromInt(4)
	draft := billing.EntryDraft{
		UserID: "user-1", HospitalID: "uh-1", ActID: "act-surgery",
		Date: "2024-03-05", Quantity: &qty, Role: "principal",
	}
	created, err := rec.Create(ctx, draft)
	require.NoError(t, err)

	draft.ID = created.ID
	draft.Role = "assistant"
	_, err = rec.Update(ctx, draft)
	require.NoError(t, err)

	stored, err := m.GetEntry(ctx, "user-1", created.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalAmount.Equal(decimal.NewFromInt(3000)))

	draft.UserID = "user-2"
	_, err = rec.Update(ctx, draft)
	assert.ErrorIs(t, err, billing.ErrNotFound)
}
