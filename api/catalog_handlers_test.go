package api

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jelela/mishorasmed/billing"
	"github.com/Jelela/mishorasmed/consolidation"
)

// =============================================================================
// HOSPITALS
// =============================================================================

func TestHospitals_AddListRemove(t *testing.T) {
	// GIVEN: The demo user with three hospitals
	// WHEN: A hospital is added, re-added, and then removed
	// THEN: 201, 409 for the duplicate, 204 on removal and 404 afterwards

	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/hospitals", demoUser,
		map[string]any{"hospital_id": "h-sur", "name": " Sanatorio Sur ", "closing_day": 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decodeBody[billing.HospitalAssignment](t, rec)
	assert.Equal(t, "Sanatorio Sur", added.HospitalName)
	assert.Equal(t, demoUser, added.UserID)
	require.NotNil(t, added.ClosingDay)
	assert.Equal(t, 10, *added.ClosingDay)

	rec = do(t, srv, http.MethodPost, "/api/hospitals", demoUser, map[string]any{"hospital_id": "h-central", "name": "Central"})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/hospitals", demoUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]billing.HospitalAssignment](t, rec), 4)

	rec = do(t, srv, http.MethodDelete, "/api/hospitals/"+added.ID, demoUser, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = do(t, srv, http.MethodDelete, "/api/hospitals/"+added.ID, demoUser, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHospitals_RemoveCascadesAndRequiresOwner(t *testing.T) {
	srv := newTestServer(t)
	loadCentral(t, srv)

	rec := do(t, srv, http.MethodDelete, "/api/hospitals/uh-central", "someone-else", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	loadCentral(t, srv)

	rec = do(t, srv, http.MethodDelete, "/api/hospitals/uh-central", demoUser, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/hospitals/uh-central/closings/2024-03-15", demoUser, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, srv, http.MethodGet, "/api/hospitals/uh-central/acts", demoUser, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHospitals_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		status int
		field  string
	}{
		{"missing name", map[string]any{"hospital_id": "h-x"}, http.StatusUnprocessableEntity, "name"},
		{"blank name", map[string]any{"name": "   "}, http.StatusUnprocessableEntity, "name"},
		{"closing day out of range", map[string]any{"name": "X", "closing_day": 32}, http.StatusUnprocessableEntity, "closing_day"},
		{"not JSON", "{", http.StatusBadRequest, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			rec := do(t, srv, http.MethodPost, "/api/hospitals", demoUser, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.field, decodeBody[ErrorResponse](t, rec).Field)
		})
	}
}

func TestHospitals_SetClosingDay(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPut, "/api/hospitals/uh-consultora/closing-day", demoUser, map[string]any{"closing_day": 20})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, decodeBody[billing.HospitalAssignment](t, rec).ClosingDay)

	rec = do(t, srv, http.MethodGet, "/api/hospitals/uh-consultora/closings/2024-03-20", demoUser, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodPut, "/api/hospitals/uh-consultora/closing-day", demoUser, map[string]any{"closing_day": nil})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody[billing.HospitalAssignment](t, rec).ClosingDay)
}

// =============================================================================
// ACTS
// =============================================================================

func TestActs_CreateAndEdit(t *testing.T) {
	// GIVEN: Hospital Central's demo catalog
	// WHEN: A flat act is created with stray role values, then a flat act is
	//       edited into a role act
	// THEN: Each keeps only the values of its pricing mode

	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/hospitals/uh-central/acts", demoUser, map[string]any{
		"id": "ignored", "name": "Interconsulta", "unit_type": "units",
		"unit_value": "300", "principal_value": "5", "report_group_id": "g-particular",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[billing.MedicalAct](t, rec)
	assert.NotEqual(t, "ignored", created.ID)
	assert.Equal(t, 5, created.SortOrder)
	require.NotNil(t, created.UnitValue)
	assert.True(t, created.UnitValue.Equal(decimal.NewFromInt(300)))
	assert.Nil(t, created.PrincipalValue)

	rec = do(t, srv, http.MethodPut, "/api/hospitals/uh-central/acts/act-consultorio", demoUser, map[string]any{
		"name": "Consultorio", "unit_type": "hours", "supports_roles": true,
		"unit_value": "150", "principal_value": "400", "assistant_value": "200", "sort_order": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decodeBody[billing.MedicalAct](t, rec)
	assert.Equal(t, "act-consultorio", edited.ID)
	assert.True(t, edited.SupportsRoles)
	assert.Nil(t, edited.UnitValue)
	require.NotNil(t, edited.AssistantValue)
	assert.True(t, edited.AssistantValue.Equal(decimal.NewFromInt(200)))

	rec = do(t, srv, http.MethodGet, "/api/hospitals/uh-central/acts", demoUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]billing.MedicalAct](t, rec), 5)
}

func TestActs_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		status int
		field  string
	}{
		{"role act without assistant value", http.MethodPost, "/api/hospitals/uh-central/acts", demoUser,
			map[string]any{"name": "Parto", "unit_type": "units", "supports_roles": true, "principal_value": "900"},
			http.StatusUnprocessableEntity, "assistant_value"},
		{"flat rate of zero", http.MethodPost, "/api/hospitals/uh-central/acts", demoUser,
			map[string]any{"name": "Visita", "unit_type": "units", "unit_value": "0"},
			http.StatusUnprocessableEntity, "unit_value"},
		{"inactive group", http.MethodPost, "/api/hospitals/uh-central/acts", demoUser,
			map[string]any{"name": "Visita", "unit_type": "units", "report_group_id": "g-legacy"},
			http.StatusUnprocessableEntity, "report_group_id"},
		{"act of another hospital", http.MethodPut, "/api/hospitals/uh-norte/acts/act-guardia", demoUser,
			map[string]any{"name": "Guardia", "unit_type": "hours"},
			http.StatusNotFound, ""},
		{"hospital of another user", http.MethodPost, "/api/hospitals/uh-central/acts", "someone-else",
			map[string]any{"name": "Visita", "unit_type": "units"},
			http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			rec := do(t, srv, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.field != "" {
				assert.Equal(t, tt.field, decodeBody[ErrorResponse](t, rec).Field)
			}
		})
	}
}

func TestActs_Rates(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPut, "/api/acts/act-guardia/unit-value", demoUser, map[string]any{"unit_value": "250"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeBody[billing.MedicalAct](t, rec).UnitValue.Equal(decimal.NewFromInt(250)))

	rec = do(t, srv, http.MethodPut, "/api/acts/act-guardia/unit-value", demoUser, map[string]any{"unit_value": "0"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = do(t, srv, http.MethodPut, "/api/acts/act-guardia/unit-value", demoUser, map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "unit_value", decodeBody[ErrorResponse](t, rec).Field)
	rec = do(t, srv, http.MethodPut, "/api/acts/act-cirugia/unit-value", demoUser, map[string]any{"unit_value": "10"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, srv, http.MethodPut, "/api/acts/act-cirugia/role-values", demoUser,
		map[string]any{"principal_value": "2000", "assistant_value": "1000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	surgery := decodeBody[billing.MedicalAct](t, rec)
	assert.True(t, surgery.PrincipalValue.Equal(decimal.NewFromInt(2000)))
	assert.True(t, surgery.AssistantValue.Equal(decimal.NewFromInt(1000)))

	rec = do(t, srv, http.MethodPut, "/api/acts/act-cirugia/role-values", demoUser, map[string]any{"principal_value": "-5"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = do(t, srv, http.MethodPut, "/api/acts/act-cirugia/role-values", "someone-else", map[string]any{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActs_MoveBetweenGroups(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPut, "/api/acts/act-guardia/group", demoUser, map[string]any{"report_group_id": "g-particular"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decodeBody[billing.MedicalAct](t, rec)
	require.NotNil(t, moved.ReportGroupID)
	assert.Equal(t, "g-particular", *moved.ReportGroupID)

	rec = do(t, srv, http.MethodPut, "/api/acts/act-guardia/group", demoUser, map[string]any{"report_group_id": nil})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody[billing.MedicalAct](t, rec).ReportGroupID)

	rec = do(t, srv, http.MethodPut, "/api/acts/act-guardia/group", demoUser, map[string]any{"report_group_id": "g-legacy"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// =============================================================================
// REPORT GROUPS
// =============================================================================

func TestGroups_Create(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/hospitals/uh-central/groups", demoUser, map[string]any{"name": " Prepagas "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	group := decodeBody[billing.ReportGroup](t, rec)
	assert.Equal(t, "Prepagas", group.Name)
	assert.Equal(t, 3, group.SortOrder, "after the last active group")
	assert.True(t, group.Active)

	rec = do(t, srv, http.MethodGet, "/api/hospitals/uh-central/groups", demoUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]billing.ReportGroup](t, rec), 3)

	rec = do(t, srv, http.MethodPost, "/api/hospitals/uh-central/groups", demoUser, map[string]any{"name": "  "})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = do(t, srv, http.MethodPost, "/api/hospitals/uh-central/groups", "someone-else", map[string]any{"name": "X"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// ACTIONABLES
// =============================================================================

func TestActionables(t *testing.T) {
	// GIVEN: The demo user, with an entry on Sunday 2024-03-10
	// WHEN: Reminders are requested for Tuesday 2024-03-12
	// THEN: Central closes in 3 days and the consultora lacks acts and a closing day

	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/actionables?today=2024-03-12", demoUser, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[consolidation.Actionables](t, rec)

	assert.False(t, got.NoHospitals)
	assert.False(t, got.NoActivityThisWeek)
	require.Len(t, got.HospitalsWithoutActs, 1)
	assert.Equal(t, "uh-consultora", got.HospitalsWithoutActs[0].ID)
	require.Len(t, got.HospitalsWithoutClosingDay, 1)
	assert.Equal(t, "uh-consultora", got.HospitalsWithoutClosingDay[0].ID)
	assert.Zero(t, got.PendingCount, "history starts in 2026")
	require.Len(t, got.UpcomingClosings, 1)
	assert.Equal(t, "uh-central", got.UpcomingClosings[0].HospitalID)
	assert.Equal(t, 3, got.UpcomingClosings[0].DaysUntil)

	rec = do(t, srv, http.MethodGet, "/api/actionables", "someone-else", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[consolidation.Actionables](t, rec).NoHospitals)

	rec = do(t, srv, http.MethodGet, "/api/actionables?today=12/03/2024", demoUser, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
