package consolidation_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jelela/mishorasmed/billing"
	"github.com/Jelela/mishorasmed/billing/store"
	"github.com/Jelela/mishorasmed/consolidation"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func intPtr(n int) *int { return &n }

func newService(t *testing.T) (*store.Memory, *consolidation.Service) {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()
	group := "g-os"
	unit := decimal.NewFromInt(200)
	principal := decimal.NewFromInt(1500)
	assistant := decimal.NewFromInt(750)

	require.NoError(t, m.PutAssignment(ctx, billing.HospitalAssignment{ID: "uh-1", UserID: "user-1", HospitalName: "Central", ClosingDay: intPtr(15)}))
	require.NoError(t, m.PutAssignment(ctx, billing.HospitalAssignment{ID: "uh-2", UserID: "user-1", HospitalName: "Norte", ClosingDay: intPtr(31)}))
	require.NoError(t, m.PutAssignment(ctx, billing.HospitalAssignment{ID: "uh-3", UserID: "user-1", HospitalName: "Sin cierre"}))
	require.NoError(t, m.PutGroup(ctx, billing.ReportGroup{ID: group, HospitalID: "uh-1", Name: "Obra social", SortOrder: 1, Active: true}))
	require.NoError(t, m.PutAct(ctx, billing.MedicalAct{
		ID: "act-guard", HospitalID: "uh-1", Name: "Guardia", UnitKind: billing.UnitHours,
		UnitValue: &unit, ReportGroupID: &group, Active: true,
	}))
	require.NoError(t, m.PutAct(ctx, billing.MedicalAct{
		ID: "act-surgery", HospitalID: "uh-1", Name: "Cirugia", UnitKind: billing.UnitUnits,
		SupportsRoles: true, PrincipalValue: &principal, AssistantValue: &assistant, Active: true,
	}))

	n := 0
	closures := billing.NewClosureManager(m,
		billing.WithClock(func() time.Time { return time.Date(2024, time.March, 20, 9, 0, 0, 0, time.UTC) }),
		billing.WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	)
	return m, consolidation.NewService(m, consolidation.WithClosureManager(closures))
}

func seedEntries(t *testing.T, m *store.Memory) {
	t.Helper()
	ctx := context.Background()
	role := billing.RolePrincipal
	total := decimal.NewFromInt(6000)

	require.NoError(t, m.InsertEntry(ctx, billing.Entry{
		ID: "e-guard", UserID: "user-1", HospitalID: "uh-1", ActID: "act-guard",
		Date: billing.MustParseDate("2024-03-01"), Quantity: decimal.NewFromInt(3),
	}))
	require.NoError(t, m.InsertEntry(ctx, billing.Entry{
		ID: "e-surgery", UserID: "user-1", HospitalID: "uh-1", ActID: "act-surgery",
		Date: billing.MustParseDate("2024-02-20"), Quantity: decimal.NewFromInt(4),
		Role: &role, TotalAmount: &total,
	}))
	require.NoError(t, m.InsertEntry(ctx, billing.Entry{
		ID: "e-closing-day", UserID: "user-1", HospitalID: "uh-1", ActID: "act-guard",
		Date: billing.MustParseDate("2024-03-15"), Quantity: decimal.NewFromInt(1),
	}))
}

func dates(infos []consolidation.ClosingInfo) []string {
	out := make([]string, len(infos))
	for i, c := range infos {
		out[i] = c.HospitalID + "@" + c.ClosingDate.String()
	}
	return out
}

// =============================================================================
// LISTING TESTS
// =============================================================================

func TestListClosings_UpcomingAndHistory(t *testing.T) {
	// GIVEN: Hospitals closing on the 15th and the 31st, and one without a closing day
	// WHEN: Listing on 2026-03-20
	// THEN: One upcoming closing per hospital, history back to 2026-01-01

	_, svc := newService(t)

	closings, err := svc.ListClosings(context.Background(), "user-1", billing.MustParseDate("2026-03-20"))
	require.NoError(t, err)

	assert.Equal(t, []string{"uh-2@2026-03-31", "uh-1@2026-04-15"}, dates(closings.Upcoming))
	assert.Equal(t, []string{
		"uh-1@2026-03-15",
		"uh-2@2026-02-28",
		"uh-1@2026-02-15",
		"uh-2@2026-01-31",
		"uh-1@2026-01-15",
	}, dates(closings.Past))

	next := closings.Upcoming[1]
	assert.Equal(t, "uh-1-2026-04-15", next.ID)
	assert.Equal(t, "2026-03-15..2026-04-14", next.Calculated.String())
	assert.False(t, next.IsPast)
	assert.Nil(t, next.ClosureID)
	assert.True(t, closings.Past[0].IsPast)
}

func TestListClosings_ShowsExistingClosure(t *testing.T) {
	ctx := context.Background()
	_, svc := newService(t)

	loaded, err := svc.LoadClosing(ctx, "user-1", "uh-1", billing.MustParseDate("2026-03-15"))
	require.NoError(t, err)

	closings, err := svc.ListClosings(ctx, "user-1", billing.MustParseDate("2026-03-20"))
	require.NoError(t, err)

	past := closings.Past[0]
	require.NotNil(t, past.ClosureID)
	assert.Equal(t, loaded.Closure.ID, *past.ClosureID)
	require.NotNil(t, past.Effective)
	assert.Equal(t, past.Calculated, *past.Effective)
	assert.False(t, past.IsAdjusted)
}

func TestListClosings_RolloverClosingsAllLoad(t *testing.T) {
	// GIVEN: A hospital closing on the 31st under the rollover policy
	// WHEN: Listing on 2026-04-15 and loading every listed closing
	// THEN: Each loads; Mar 31, whose period would be inverted, is never offered

	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.PutAssignment(ctx, billing.HospitalAssignment{ID: "uh-r", UserID: "user-1", HospitalName: "Rollover", ClosingDay: intPtr(31)}))
	calc := billing.PeriodCalculator{MonthEnd: billing.MonthEndRollover, HistoryCutoff: billing.MustParseDate("2026-01-01")}
	svc := consolidation.NewService(m, consolidation.WithPeriodCalculator(calc))

	closings, err := svc.ListClosings(ctx, "user-1", billing.MustParseDate("2026-04-15"))
	require.NoError(t, err)
	assert.Equal(t, []string{"uh-r@2026-05-01"}, dates(closings.Upcoming))
	assert.Equal(t, []string{"uh-r@2026-03-03", "uh-r@2026-01-31"}, dates(closings.Past))

	for _, c := range append(closings.Past, closings.Upcoming...) {
		loaded, err := svc.LoadClosing(ctx, "user-1", c.HospitalID, c.ClosingDate)
		require.NoError(t, err, "closing %s", c.ID)
		assert.Equal(t, c.Calculated, loaded.Closure.Calculated)
	}

	_, err = svc.LoadClosing(ctx, "user-1", "uh-r", billing.MustParseDate("2026-03-31"))
	assert.ErrorIs(t, err, billing.ErrValidation)
}

// =============================================================================
// BREAKDOWN TESTS
// =============================================================================

func TestLoadClosing_Breakdown(t *testing.T) {
	// GIVEN: A guard (3h x 200) in a group and a stored surgery total of 6000 ungrouped
	// WHEN: Loading the 2024-03-15 closing (period 2024-02-15..2024-03-14)
	// THEN: Total 6600, grouped first, ungrouped last, statuses backfilled

	m, svc := newService(t)
	seedEntries(t, m)

	got, err := svc.LoadClosing(context.Background(), "user-1", "uh-1", billing.MustParseDate("2024-03-15"))
	require.NoError(t, err)

	assert.Equal(t, "2024-02-15..2024-03-14", got.Closure.Calculated.String())
	assert.Equal(t, "uh-1-2024-03-15", got.Closing.ID)
	assert.True(t, got.Breakdown.TotalValue.Equal(decimal.NewFromInt(6600)), "got %s", got.Breakdown.TotalValue)

	require.Len(t, got.Breakdown.Groups, 2)
	assert.Equal(t, "g-os", got.Breakdown.Groups[0].Key)
	assert.True(t, got.Breakdown.Groups[0].TotalValue.Equal(decimal.NewFromInt(600)))
	assert.Equal(t, billing.UngroupedKey, got.Breakdown.Groups[1].Key)
	assert.Equal(t, billing.DefaultUngroupedLabel, got.Breakdown.Groups[1].Name)

	assert.Len(t, got.Statuses, 2)
	for _, g := range got.Breakdown.Groups {
		require.NotNil(t, g.Status, "group %s has no status", g.Key)
		assert.False(t, g.Status.IsConsolidated)
	}
}

func TestLoadClosing_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		hospital string
		date     string
		want     error
	}{
		{"not a closing date", "user-1", "uh-1", "2024-03-16", billing.ErrValidation},
		{"hospital without closing day", "user-1", "uh-3", "2024-03-15", billing.ErrValidation},
		{"foreign hospital", "user-2", "uh-1", "2024-03-15", billing.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, svc := newService(t)
			_, err := svc.LoadClosing(context.Background(), tt.user, tt.hospital, billing.MustParseDate(tt.date))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadClosing_UsesEffectivePeriod(t *testing.T) {
	// GIVEN: A loaded closing whose period is then extended by one day
	// WHEN: Loading the same closing again
	// THEN: The entry on the closing day is included and the closure is reused

	ctx := context.Background()
	m, svc := newService(t)
	seedEntries(t, m)
	closingDate := billing.MustParseDate("2024-03-15")

	first, err := svc.LoadClosing(ctx, "user-1", "uh-1", closingDate)
	require.NoError(t, err)

	reason := "late guard"
	adjusted, err := svc.AdjustPeriod(ctx, "user-1", first.Closure.ID,
		billing.MustParseDate("2024-02-15"), billing.MustParseDate("2024-03-15"), &reason)
	require.NoError(t, err)
	assert.True(t, adjusted.IsAdjusted)

	second, err := svc.LoadClosing(ctx, "user-1", "uh-1", closingDate)
	require.NoError(t, err)
	assert.Equal(t, first.Closure.ID, second.Closure.ID)
	assert.True(t, second.Breakdown.TotalValue.Equal(decimal.NewFromInt(6800)), "got %s", second.Breakdown.TotalValue)
	assert.True(t, second.Closing.IsAdjusted)
}

// =============================================================================
// MUTATION TESTS
// =============================================================================

func TestMutations_RequireOwnership(t *testing.T) {
	ctx := context.Background()
	_, svc := newService(t)

	loaded, err := svc.LoadClosing(ctx, "user-1", "uh-1", billing.MustParseDate("2024-03-15"))
	require.NoError(t, err)
	statusID := loaded.Statuses[0].ID

	_, err = svc.ToggleGroup(ctx, "user-2", statusID)
	assert.ErrorIs(t, err, billing.ErrNotFound)

	_, err = svc.AdjustPeriod(ctx, "user-2", loaded.Closure.ID,
		billing.MustParseDate("2024-02-01"), billing.MustParseDate("2024-03-14"), nil)
	assert.ErrorIs(t, err, billing.ErrNotFound)

	toggled, err := svc.ToggleGroup(ctx, "user-1", statusID)
	require.NoError(t, err)
	assert.True(t, toggled.IsConsolidated)

	cleared, err := svc.SetGroupConsolidated(ctx, "user-1", statusID, false)
	require.NoError(t, err)
	assert.False(t, cleared.IsConsolidated)
	assert.Nil(t, cleared.ConsolidatedAt)
}

func TestPreviewPeriod(t *testing.T) {
	calc := billing.NewPeriodCalculator()

	p, err := consolidation.PreviewPeriod(calc, billing.MustParseDate("2024-03-10"), 15)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", p.ClosingDate.String())
	assert.Equal(t, "2024-02-15..2024-03-14", p.Period.String())

	p, err = consolidation.PreviewPeriod(calc, billing.MustParseDate("2024-02-10"), 31)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", p.ClosingDate.String())
	assert.Equal(t, "2024-01-31..2024-02-28", p.Period.String())

	_, err = consolidation.PreviewPeriod(calc, billing.MustParseDate("2024-02-10"), 32)
	assert.ErrorIs(t, err, billing.ErrInvalidClosingDay)
}
