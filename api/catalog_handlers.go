package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Jelela/mishorasmed/catalog"
	"github.com/Jelela/mishorasmed/factory"
)

// =============================================================================
// HOSPITAL HANDLERS
// =============================================================================

// ListHospitals returns the caller's hospitals.
// GET /api/hospitals
func (h *Handler) ListHospitals(w http.ResponseWriter, r *http.Request) {
	hospitals, err := h.Catalog.Hospitals(r.Context(), userFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hospitals)
}

// AddHospital assigns a hospital to the caller.
// POST /api/hospitals
func (h *Handler) AddHospital(w http.ResponseWriter, r *http.Request) {
	var req AddHospitalRequest
	if !h.decode(w, r, &req) {
		return
	}

	hospital, err := h.Catalog.AddHospital(r.Context(), userFrom(r), catalog.HospitalInput{
		CatalogHospitalID: req.HospitalID,
		Name:              req.Name,
		ClosingDay:        req.ClosingDay,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, hospital)
}

// SetClosingDay sets or clears a hospital's closing day.
// PUT /api/hospitals/{hospitalID}/closing-day
func (h *Handler) SetClosingDay(w http.ResponseWriter, r *http.Request) {
	var req ClosingDayRequest
	if !h.decode(w, r, &req) {
		return
	}

	hospital, err := h.Catalog.SetClosingDay(r.Context(), userFrom(r), chi.URLParam(r, "hospitalID"), req.ClosingDay)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hospital)
}

// RemoveHospital deletes a hospital and everything recorded under it.
// DELETE /api/hospitals/{hospitalID}
func (h *Handler) RemoveHospital(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.RemoveHospital(r.Context(), userFrom(r), chi.URLParam(r, "hospitalID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ACT HANDLERS
// =============================================================================

// ListActs returns a hospital's acts.
// GET /api/hospitals/{hospitalID}/acts
func (h *Handler) ListActs(w http.ResponseWriter, r *http.Request) {
	acts, err := h.Catalog.Acts(r.Context(), userFrom(r), chi.URLParam(r, "hospitalID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acts)
}

// CreateAct adds an act to a hospital. Any id in the body is ignored.
// POST /api/hospitals/{hospitalID}/acts
func (h *Handler) CreateAct(w http.ResponseWriter, r *http.Request) {
	var req factory.ActJSON
	if !h.decode(w, r, &req) {
		return
	}
	req.ID = ""

	act, err := h.Catalog.SaveAct(r.Context(), userFrom(r), chi.URLParam(r, "hospitalID"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, act)
}

// EditAct replaces an act. Role acts drop the flat value; flat acts drop role values.
// PUT /api/hospitals/{hospitalID}/acts/{actID}
func (h *Handler) EditAct(w http.ResponseWriter, r *http.Request) {
	var req factory.ActJSON
	if !h.decode(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "actID")

	act, err := h.Catalog.SaveAct(r.Context(), userFrom(r), chi.URLParam(r, "hospitalID"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}

// SetUnitValue sets a flat act's rate.
// PUT /api/acts/{actID}/unit-value
func (h *Handler) SetUnitValue(w http.ResponseWriter, r *http.Request) {
	var req UnitValueRequest
	if !h.decode(w, r, &req) {
		return
	}

	act, err := h.Catalog.SetUnitValue(r.Context(), userFrom(r), chi.URLParam(r, "actID"), *req.UnitValue)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}

// SetRoleValues sets a role act's principal and assistant rates.
// PUT /api/acts/{actID}/role-values
func (h *Handler) SetRoleValues(w http.ResponseWriter, r *http.Request) {
	var req RoleValuesRequest
	if !h.decode(w, r, &req) {
		return
	}

	act, err := h.Catalog.SetRoleValues(r.Context(), userFrom(r), chi.URLParam(r, "actID"), catalog.RoleValues{
		Principal: req.PrincipalValue,
		Assistant: req.AssistantValue,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}

// SetActGroup moves an act into a report group, or out of any with null.
// PUT /api/acts/{actID}/group
func (h *Handler) SetActGroup(w http.ResponseWriter, r *http.Request) {
	var req ActGroupRequest
	if !h.decode(w, r, &req) {
		return
	}

	act, err := h.Catalog.SetActGroup(r.Context(), userFrom(r), chi.URLParam(r, "actID"), req.ReportGroupID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}

// =============================================================================
// REPORT GROUP HANDLERS
// =============================================================================

// ListGroups returns a hospital's active report groups.
// GET /api/hospitals/{hospitalID}/groups
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Catalog.Groups(r.Context(), userFrom(r), chi.URLParam(r, "hospitalID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// CreateGroup adds a report group after the hospital's last one.
// POST /api/hospitals/{hospitalID}/groups
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req GroupRequest
	if !h.decode(w, r, &req) {
		return
	}

	group, err := h.Catalog.CreateGroup(r.Context(), userFrom(r), chi.URLParam(r, "hospitalID"), req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

// =============================================================================
// ACTIONABLES
// =============================================================================

// Actionables returns the caller's reminders for a day.
// GET /api/actionables?today=2026-03-10
func (h *Handler) Actionables(w http.ResponseWriter, r *http.Request) {
	today, err := h.dateParam(r, "today")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := h.Closings.Actionables(r.Context(), userFrom(r), today)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
