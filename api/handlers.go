/*
handlers.go - HTTP API handlers for closings and entries

PURPOSE:
  Exposes the closing engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the consolidation service and the
  entry recorder.

ENDPOINTS:
  Periods:
    GET    /api/periods/preview?closing_day=&reference=   Next closing and period

  Closings:
    GET    /api/closings?today=                            Upcoming and past closings
    GET    /api/hospitals/{hospitalID}/closings/{date}     Load one closing breakdown
    PUT    /api/closures/{closureID}/period                Adjust effective period

  Consolidation:
    PUT    /api/group-statuses/{statusID}                  Set consolidated flag
    POST   /api/group-statuses/{statusID}/toggle           Flip consolidated flag

  Entries:
    POST   /api/entries                                    Record an entry
    PUT    /api/entries/{entryID}                          Replace an entry

  Catalog (when a catalog service is configured):
    GET    /api/hospitals                                  The caller's hospitals
    POST   /api/hospitals                                  Add a hospital
    DELETE /api/hospitals/{hospitalID}                     Remove a hospital
    PUT    /api/hospitals/{hospitalID}/closing-day         Set or clear the closing day
    GET    /api/hospitals/{hospitalID}/acts                List acts
    POST   /api/hospitals/{hospitalID}/acts                Create an act
    PUT    /api/hospitals/{hospitalID}/acts/{actID}        Edit an act
    GET    /api/hospitals/{hospitalID}/groups              List active report groups
    POST   /api/hospitals/{hospitalID}/groups              Create a report group
    PUT    /api/acts/{actID}/unit-value                    Set a flat rate
    PUT    /api/acts/{actID}/role-values                   Set role rates
    PUT    /api/acts/{actID}/group                         Move an act between groups

  Home:
    GET    /api/actionables?today=                         Reminders for the day

IDENTITY:
  The caller's user id comes from the X-User-ID header, set by the
  authenticating proxy in front of this service. Requests without it are
  rejected with 401.

ERROR HANDLING:
  Errors are returned as JSON {error, kind, field, details} with status:
  - 400: malformed_input (unparseable literal or body)
  - 422: validation_failure (well-formed but not acceptable)
  - 404: not_found (missing, or owned by another user)
  - 409: conflict
  - 503: store_unavailable (retryable)
  - 500: internal

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Jelela/mishorasmed/billing"
	"github.com/Jelela/mishorasmed/catalog"
	"github.com/Jelela/mishorasmed/consolidation"
	"github.com/Jelela/mishorasmed/entries"
)

// UserHeader carries the authenticated user id.
const UserHeader = "X-User-ID"

type ctxKey struct{}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Closings *consolidation.Service
	Entries  *entries.Recorder
	Catalog  *catalog.Service

	today    func() billing.Date
	health   func(ctx context.Context) error
	logger   *zap.Logger
	validate *validator.Validate
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithToday sets how the handler derives the user's current date when a
// request does not name one.
func WithToday(today func() billing.Date) HandlerOption {
	return func(h *Handler) { h.today = today }
}

// WithHealthCheck sets the dependency check used by /healthz.
func WithHealthCheck(check func(ctx context.Context) error) HandlerOption {
	return func(h *Handler) { h.health = check }
}

// WithCatalog enables the hospital, act and report group routes.
func WithCatalog(c *catalog.Service) HandlerOption {
	return func(h *Handler) { h.Catalog = c }
}

func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

// NewHandler creates a new handler.
func NewHandler(closings *consolidation.Service, recorder *entries.Recorder, opts ...HandlerOption) *Handler {
	h := &Handler{
		Closings: closings,
		Entries:  recorder,
		today:    func() billing.Date { return billing.DateOf(time.Now().UTC()) },
		health:   func(context.Context) error { return nil },
		logger:   zap.NewNop(),
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names, not Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// IDENTITY
// =============================================================================

// RequireUser rejects requests without a user id.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserHeader))
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{
				Error: "missing " + UserHeader + " header",
				Kind:  "unauthenticated",
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func userFrom(r *http.Request) string {
	userID, _ := r.Context().Value(ctxKey{}).(string)
	return userID
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports whether the store is reachable.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.health(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HealthDTO{Status: "ok"})
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

// PreviewPeriod returns the next closing on or after reference.
// GET /api/periods/preview?closing_day=15&reference=2024-03-10
func (h *Handler) PreviewPeriod(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("closing_day")
	closingDay, err := strconv.Atoi(raw)
	if err != nil {
		h.writeError(w, r, &billing.MalformedInputError{Field: "closing_day", Value: raw, Layout: "integer"})
		return
	}
	reference, err := h.dateParam(r, "reference")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	preview, err := consolidation.PreviewPeriod(h.Closings.Calculator(), reference, closingDay)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// =============================================================================
// CLOSING HANDLERS
// =============================================================================

// ListClosings returns the caller's upcoming and past closings.
// GET /api/closings?today=2026-03-20
func (h *Handler) ListClosings(w http.ResponseWriter, r *http.Request) {
	today, err := h.dateParam(r, "today")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	closings, err := h.Closings.ListClosings(r.Context(), userFrom(r), today)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, closings)
}

// LoadClosing returns one closing's breakdown, creating its closure on first access.
// GET /api/hospitals/{hospitalID}/closings/{closingDate}
func (h *Handler) LoadClosing(w http.ResponseWriter, r *http.Request) {
	closingDate, err := billing.ParseDate(chi.URLParam(r, "closingDate"))
	if err != nil {
		h.writeError(w, r, withField(err, "closing_date"))
		return
	}

	loaded, err := h.Closings.LoadClosing(r.Context(), userFrom(r), chi.URLParam(r, "hospitalID"), closingDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClosingDTO(loaded))
}

// AdjustPeriod edits a closure's effective period.
// PUT /api/closures/{closureID}/period
func (h *Handler) AdjustPeriod(w http.ResponseWriter, r *http.Request) {
	var req AdjustPeriodRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := billing.ParseDate(req.Start)
	if err != nil {
		h.writeError(w, r, withField(err, "start"))
		return
	}
	end, err := billing.ParseDate(req.End)
	if err != nil {
		h.writeError(w, r, withField(err, "end"))
		return
	}

	closure, err := h.Closings.AdjustPeriod(r.Context(), userFrom(r), chi.URLParam(r, "closureID"), start, end, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClosureDTO(closure))
}

// =============================================================================
// CONSOLIDATION HANDLERS
// =============================================================================

// SetConsolidated sets a group status flag.
// PUT /api/group-statuses/{statusID}
func (h *Handler) SetConsolidated(w http.ResponseWriter, r *http.Request) {
	var req SetConsolidatedRequest
	if !h.decode(w, r, &req) {
		return
	}

	status, err := h.Closings.SetGroupConsolidated(r.Context(), userFrom(r), chi.URLParam(r, "statusID"), *req.Consolidated)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ToggleConsolidated flips a group status flag.
// POST /api/group-statuses/{statusID}/toggle
func (h *Handler) ToggleConsolidated(w http.ResponseWriter, r *http.Request) {
	status, err := h.Closings.ToggleGroup(r.Context(), userFrom(r), chi.URLParam(r, "statusID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

// CreateEntry records a new entry.
// POST /api/entries
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := h.Entries.Create(r.Context(), req.draft(userFrom(r), ""))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// UpdateEntry replaces an entry.
// PUT /api/entries/{entryID}
func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := h.Entries.Update(r.Context(), req.draft(userFrom(r), chi.URLParam(r, "entryID")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// =============================================================================
// HELPERS
// =============================================================================

// dateParam reads an optional YYYY-MM-DD query parameter, defaulting to today.
func (h *Handler) dateParam(r *http.Request, name string) (billing.Date, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return h.today(), nil
	}
	d, err := billing.ParseDate(raw)
	if err != nil {
		return billing.Date{}, withField(err, name)
	}
	return d, nil
}

// decode reads and validates a JSON body, writing the error response itself.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, &billing.MalformedInputError{Field: "body", Value: err.Error(), Layout: "JSON object"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			err = &billing.FieldError{Field: fe.Field(), Message: "failed " + fe.Tag() + " validation"}
		}
		h.writeError(w, r, err)
		return false
	}
	return true
}

func withField(err error, field string) error {
	var malformed *billing.MalformedInputError
	if errors.As(err, &malformed) {
		malformed.Field = field
	}
	return err
}

func statusFor(kind string) int {
	switch kind {
	case "malformed_input":
		return http.StatusBadRequest
	case "validation_failure":
		return http.StatusUnprocessableEntity
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "store_unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := billing.Kind(err)
	status := statusFor(kind)
	resp := ErrorResponse{Error: http.StatusText(status), Kind: kind, Details: err.Error()}

	var fieldErr *billing.FieldError
	var malformed *billing.MalformedInputError
	switch {
	case errors.As(err, &fieldErr):
		resp.Field = fieldErr.Field
	case errors.As(err, &malformed):
		resp.Field = malformed.Field
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("kind", kind),
			zap.Error(err),
		)
		if kind == "internal" {
			resp.Details = ""
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
