package store_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jelela/mishorasmed/billing"
	"github.com/Jelela/mishorasmed/billing/store"
)

func seed(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()
	groupID := "g-1"

	require.NoError(t, m.PutAssignment(ctx, billing.HospitalAssignment{ID: "uh-1", UserID: "user-1", HospitalName: "Central"}))
	require.NoError(t, m.PutGroup(ctx, billing.ReportGroup{ID: groupID, HospitalID: "uh-1", Name: "OS", SortOrder: 2, Active: true}))
	require.NoError(t, m.PutGroup(ctx, billing.ReportGroup{ID: "g-off", HospitalID: "uh-1", Name: "Old", SortOrder: 1}))
	require.NoError(t, m.PutAct(ctx, billing.MedicalAct{ID: "act-1", HospitalID: "uh-1", Name: "Guardia", UnitKind: billing.UnitHours, ReportGroupID: &groupID, Active: true}))
	require.NoError(t, m.PutAct(ctx, billing.MedicalAct{ID: "act-2", HospitalID: "uh-1", Name: "Consulta", UnitKind: billing.UnitUnits, Active: true}))
	return m
}

func entry(id, actID, day string) billing.Entry {
	return billing.Entry{
		ID:         id,
		UserID:     "user-1",
		HospitalID: "uh-1",
		ActID:      actID,
		Date:       billing.MustParseDate(day),
		Quantity:   decimal.NewFromInt(1),
	}
}

func TestMemory_ListEntries_JoinsAndFilters(t *testing.T) {
	ctx := context.Background()
	m := seed(t)

	require.NoError(t, m.InsertEntry(ctx, entry("e-late", "act-2", "2024-03-10")))
	require.NoError(t, m.InsertEntry(ctx, entry("e-early", "act-1", "2024-03-01")))
	require.NoError(t, m.InsertEntry(ctx, entry("e-outside", "act-1", "2024-04-01")))
	other := entry("e-other-user", "act-1", "2024-03-02")
	other.UserID = "user-2"
	require.NoError(t, m.InsertEntry(ctx, other))

	rows, err := m.ListEntries(ctx, billing.EntryQuery{
		UserID:     "user-1",
		HospitalID: "uh-1",
		Period:     billing.Period{Start: billing.MustParseDate("2024-03-01"), End: billing.MustParseDate("2024-03-31")},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "e-early", rows[0].Entry.ID)
	require.NotNil(t, rows[0].Group)
	assert.Equal(t, "OS", rows[0].Group.Name)
	assert.Equal(t, "e-late", rows[1].Entry.ID)
	assert.Nil(t, rows[1].Group)
}

func TestMemory_ClosureNaturalKeyIsUnique(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	period := billing.Period{Start: billing.MustParseDate("2024-02-15"), End: billing.MustParseDate("2024-03-14")}

	c := billing.HospitalClosure{ID: "c-1", UserID: "user-1", HospitalID: "uh-1", Calculated: period, Effective: period}
	require.NoError(t, m.InsertClosure(ctx, c))

	c.ID = "c-2"
	err := m.InsertClosure(ctx, c)
	assert.ErrorIs(t, err, billing.ErrConflict)

	found, err := m.FindClosure(ctx, c.Key())
	require.NoError(t, err)
	assert.Equal(t, "c-1", found.ID)
}

func TestMemory_GroupStatusUniquePerGroupIncludingUngrouped(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	g := "g-1"

	require.NoError(t, m.InsertGroupStatus(ctx, billing.ClosureGroupStatus{ID: "s-1", ClosureID: "c-1"}))
	require.NoError(t, m.InsertGroupStatus(ctx, billing.ClosureGroupStatus{ID: "s-2", ClosureID: "c-1", ReportGroupID: &g}))

	err := m.InsertGroupStatus(ctx, billing.ClosureGroupStatus{ID: "s-3", ClosureID: "c-1"})
	assert.True(t, billing.IsConflict(err), "second ungrouped row must conflict")

	require.NoError(t, m.InsertGroupStatus(ctx, billing.ClosureGroupStatus{ID: "s-4", ClosureID: "c-2"}))
}

func TestMemory_GroupStatusIDIsUnique(t *testing.T) {
	// GIVEN: a status row for the ungrouped bucket of c-1
	ctx := context.Background()
	m := store.NewMemory()
	g := "g-1"
	require.NoError(t, m.InsertGroupStatus(ctx, billing.ClosureGroupStatus{ID: "s-1", ClosureID: "c-1"}))

	// WHEN: another (closure, group) pair reuses the same id
	err := m.InsertGroupStatus(ctx, billing.ClosureGroupStatus{ID: "s-1", ClosureID: "c-2", ReportGroupID: &g})

	// THEN: it conflicts and the original row is untouched
	assert.True(t, billing.IsConflict(err))
	got, err := m.GetGroupStatus(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "c-1", got.ClosureID)
	assert.Nil(t, got.ReportGroupID)

	statuses, err := m.ListGroupStatuses(ctx, "c-2")
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestMemory_ActiveGroupsAndOwnership(t *testing.T) {
	ctx := context.Background()
	m := seed(t)

	groups, err := m.ListActiveGroups(ctx, "uh-1")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "g-1", groups[0].ID)

	_, err = m.GetAssignment(ctx, "user-2", "uh-1")
	assert.ErrorIs(t, err, billing.ErrNotFound)

	require.NoError(t, m.InsertEntry(ctx, entry("e-1", "act-1", "2024-03-01")))
	_, err = m.GetEntry(ctx, "user-2", "e-1")
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func TestMemory_DeleteAssignmentCascades(t *testing.T) {
	ctx := context.Background()
	m := seed(t)
	require.NoError(t, m.InsertEntry(ctx, entry("e-1", "act-1", "2024-03-01")))
	period := billing.Period{Start: billing.MustParseDate("2024-02-15"), End: billing.MustParseDate("2024-03-14")}
	c := billing.HospitalClosure{ID: "c-1", UserID: "user-1", HospitalID: "uh-1", Calculated: period, Effective: period}
	require.NoError(t, m.InsertClosure(ctx, c))
	require.NoError(t, m.InsertGroupStatus(ctx, billing.ClosureGroupStatus{ID: "s-1", ClosureID: "c-1"}))

	assert.ErrorIs(t, m.DeleteAssignment(ctx, "user-2", "uh-1"), billing.ErrNotFound)
	require.NoError(t, m.DeleteAssignment(ctx, "user-1", "uh-1"))

	_, err := m.GetAssignment(ctx, "user-1", "uh-1")
	assert.ErrorIs(t, err, billing.ErrNotFound)
	acts, err := m.ListActs(ctx, "uh-1")
	require.NoError(t, err)
	assert.Empty(t, acts)
	_, err = m.GetEntry(ctx, "user-1", "e-1")
	assert.ErrorIs(t, err, billing.ErrNotFound)
	_, err = m.FindClosure(ctx, c.Key())
	assert.ErrorIs(t, err, billing.ErrNotFound)
	_, err = m.GetGroupStatus(ctx, "s-1")
	assert.ErrorIs(t, err, billing.ErrNotFound)

	// The natural key is free again once the hospital is gone.
	require.NoError(t, m.InsertClosure(ctx, c))
}
