/*
Package catalog manages a user's hospitals, medical acts and report groups.

RULES:
  - Every operation is scoped to the calling user. A hospital, act or group
    that belongs to someone else is reported as not found.
  - Role acts are priced per role: principal and assistant values are both
    required and positive, and the flat unit value is cleared. Flat acts
    take an optional positive unit value and clear both role values.
  - A report group named on an act must be an active group of the act's own
    hospital.
  - A catalog hospital can be added once per user.

Removing a hospital removes its acts, groups, entries and closures.
*/
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Jelela/mishorasmed/billing"
	"github.com/Jelela/mishorasmed/factory"
)

// Store is what the catalog service reads and writes.
type Store interface {
	billing.CatalogStore
	billing.CatalogWriter
}

// HospitalInput describes a hospital being added to the user's list.
type HospitalInput struct {
	CatalogHospitalID string
	Name              string
	ClosingDay        *int
}

// RoleValues are the per-role rates of a role act. A nil value is cleared.
type RoleValues struct {
	Principal *decimal.Decimal
	Assistant *decimal.Decimal
}

// Service edits the catalog.
type Service struct {
	store   Store
	factory *factory.CatalogFactory
	newID   func() string
	logger  *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithIDGenerator replaces the UUID generator for new rows.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		factory: factory.NewCatalogFactory(),
		newID:   uuid.NewString,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// HOSPITALS
// =============================================================================

func (s *Service) Hospitals(ctx context.Context, userID string) ([]billing.HospitalAssignment, error) {
	return s.store.ListAssignments(ctx, userID)
}

// AddHospital assigns a hospital to the user.
func (s *Service) AddHospital(ctx context.Context, userID string, in HospitalInput) (billing.HospitalAssignment, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return billing.HospitalAssignment{}, &billing.FieldError{Field: "name", Message: "hospital name is required"}
	}
	if in.ClosingDay != nil {
		if err := billing.ValidateClosingDay(*in.ClosingDay); err != nil {
			return billing.HospitalAssignment{}, &billing.FieldError{Field: "closing_day", Message: err.Error()}
		}
	}

	existing, err := s.store.ListAssignments(ctx, userID)
	if err != nil {
		return billing.HospitalAssignment{}, err
	}
	for _, a := range existing {
		if in.CatalogHospitalID != "" && a.CatalogHospitalID == in.CatalogHospitalID {
			return billing.HospitalAssignment{}, billing.Conflict("add hospital", in.CatalogHospitalID)
		}
	}

	a := billing.HospitalAssignment{
		ID:                s.newID(),
		UserID:            userID,
		CatalogHospitalID: in.CatalogHospitalID,
		HospitalName:      name,
		ClosingDay:        in.ClosingDay,
	}
	if err := s.store.PutAssignment(ctx, a); err != nil {
		return billing.HospitalAssignment{}, fmt.Errorf("failed to add hospital: %w", err)
	}
	s.logger.Info("hospital added", zap.String("hospital_id", a.ID), zap.String("user_id", userID))
	return a, nil
}

// SetClosingDay sets or clears the closing day of one of the user's hospitals.
func (s *Service) SetClosingDay(ctx context.Context, userID, hospitalID string, closingDay *int) (billing.HospitalAssignment, error) {
	if closingDay != nil {
		if err := billing.ValidateClosingDay(*closingDay); err != nil {
			return billing.HospitalAssignment{}, &billing.FieldError{Field: "closing_day", Message: err.Error()}
		}
	}
	a, err := s.store.GetAssignment(ctx, userID, hospitalID)
	if err != nil {
		return billing.HospitalAssignment{}, err
	}
	a.ClosingDay = closingDay
	if err := s.store.PutAssignment(ctx, a); err != nil {
		return billing.HospitalAssignment{}, fmt.Errorf("failed to set closing day: %w", err)
	}
	return a, nil
}

// RemoveHospital deletes one of the user's hospitals and everything under it.
func (s *Service) RemoveHospital(ctx context.Context, userID, hospitalID string) error {
	if err := s.store.DeleteAssignment(ctx, userID, hospitalID); err != nil {
		return err
	}
	s.logger.Info("hospital removed", zap.String("hospital_id", hospitalID), zap.String("user_id", userID))
	return nil
}

// =============================================================================
// ACTS
// =============================================================================

// Acts lists the acts of one of the user's hospitals.
func (s *Service) Acts(ctx context.Context, userID, hospitalID string) ([]billing.MedicalAct, error) {
	if _, err := s.store.GetAssignment(ctx, userID, hospitalID); err != nil {
		return nil, err
	}
	acts, err := s.store.ListActs(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	if acts == nil {
		acts = []billing.MedicalAct{}
	}
	return acts, nil
}

// SaveAct creates an act when aj.ID is empty and replaces it otherwise.
// A new act without a sort order goes after the hospital's last act.
func (s *Service) SaveAct(ctx context.Context, userID, hospitalID string, aj factory.ActJSON) (billing.MedicalAct, error) {
	if _, err := s.store.GetAssignment(ctx, userID, hospitalID); err != nil {
		return billing.MedicalAct{}, err
	}

	creating := aj.ID == ""
	if creating {
		aj.ID = s.newID()
	} else {
		current, err := s.store.GetAct(ctx, aj.ID)
		if err != nil {
			return billing.MedicalAct{}, err
		}
		if current.HospitalID != hospitalID {
			return billing.MedicalAct{}, billing.NotFound("get act", aj.ID)
		}
	}
	aj.Name = strings.TrimSpace(aj.Name)

	act, err := s.factory.ActFromJSON(hospitalID, aj)
	if err != nil {
		return billing.MedicalAct{}, err
	}
	if err := checkRates(act); err != nil {
		return billing.MedicalAct{}, err
	}
	if err := s.checkGroup(ctx, hospitalID, act.ReportGroupID); err != nil {
		return billing.MedicalAct{}, err
	}

	if creating && act.SortOrder == 0 {
		acts, err := s.store.ListActs(ctx, hospitalID)
		if err != nil {
			return billing.MedicalAct{}, err
		}
		for _, a := range acts {
			act.SortOrder = max(act.SortOrder, a.SortOrder)
		}
		act.SortOrder++
	}

	if err := s.store.PutAct(ctx, act); err != nil {
		return billing.MedicalAct{}, fmt.Errorf("failed to save act: %w", err)
	}
	s.logger.Info("act saved",
		zap.String("act_id", act.ID),
		zap.String("hospital_id", hospitalID),
		zap.Bool("created", creating),
		zap.Bool("supports_roles", act.SupportsRoles),
	)
	return act, nil
}

// checkRates applies the pricing rules of a saved act on top of the factory's
// non-negative check.
func checkRates(act billing.MedicalAct) error {
	if act.SupportsRoles {
		if err := positive("principal_value", act.PrincipalValue, true); err != nil {
			return err
		}
		return positive("assistant_value", act.AssistantValue, true)
	}
	return positive("unit_value", act.UnitValue, false)
}

func positive(field string, v *decimal.Decimal, required bool) error {
	switch {
	case v == nil && required:
		return &billing.FieldError{Field: field, Message: "value is required"}
	case v != nil && !v.IsPositive():
		return &billing.FieldError{Field: field, Message: "value must be greater than 0"}
	}
	return nil
}

// SetUnitValue sets the flat rate of one of the user's acts.
func (s *Service) SetUnitValue(ctx context.Context, userID, actID string, value decimal.Decimal) (billing.MedicalAct, error) {
	if err := positive("unit_value", &value, true); err != nil {
		return billing.MedicalAct{}, err
	}
	act, err := s.ownAct(ctx, userID, actID)
	if err != nil {
		return billing.MedicalAct{}, err
	}
	if act.SupportsRoles {
		return billing.MedicalAct{}, &billing.FieldError{Field: "unit_value", Message: "act is priced per role"}
	}
	act.UnitValue = &value
	return act, s.putAct(ctx, act)
}

// SetRoleValues sets the per-role rates of one of the user's role acts.
func (s *Service) SetRoleValues(ctx context.Context, userID, actID string, values RoleValues) (billing.MedicalAct, error) {
	if err := positive("principal_value", values.Principal, false); err != nil {
		return billing.MedicalAct{}, err
	}
	if err := positive("assistant_value", values.Assistant, false); err != nil {
		return billing.MedicalAct{}, err
	}
	act, err := s.ownAct(ctx, userID, actID)
	if err != nil {
		return billing.MedicalAct{}, err
	}
	if !act.SupportsRoles {
		return billing.MedicalAct{}, &billing.FieldError{Field: "supports_roles", Message: "act has no roles"}
	}
	act.PrincipalValue = values.Principal
	act.AssistantValue = values.Assistant
	return act, s.putAct(ctx, act)
}

// SetActGroup moves one of the user's acts into a report group, or out of any
// group when groupID is nil.
func (s *Service) SetActGroup(ctx context.Context, userID, actID string, groupID *string) (billing.MedicalAct, error) {
	act, err := s.ownAct(ctx, userID, actID)
	if err != nil {
		return billing.MedicalAct{}, err
	}
	if err := s.checkGroup(ctx, act.HospitalID, groupID); err != nil {
		return billing.MedicalAct{}, err
	}
	act.ReportGroupID = groupID
	return act, s.putAct(ctx, act)
}

func (s *Service) ownAct(ctx context.Context, userID, actID string) (billing.MedicalAct, error) {
	act, err := s.store.GetAct(ctx, actID)
	if err != nil {
		return billing.MedicalAct{}, err
	}
	if _, err := s.store.GetAssignment(ctx, userID, act.HospitalID); err != nil {
		if errors.Is(err, billing.ErrNotFound) {
			return billing.MedicalAct{}, billing.NotFound("get act", actID)
		}
		return billing.MedicalAct{}, err
	}
	return act, nil
}

func (s *Service) putAct(ctx context.Context, act billing.MedicalAct) error {
	if err := s.store.PutAct(ctx, act); err != nil {
		return fmt.Errorf("failed to save act: %w", err)
	}
	return nil
}

func (s *Service) checkGroup(ctx context.Context, hospitalID string, groupID *string) error {
	if groupID == nil {
		return nil
	}
	groups, err := s.store.ListActiveGroups(ctx, hospitalID)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if g.ID == *groupID {
			return nil
		}
	}
	return &billing.FieldError{Field: "report_group_id", Message: fmt.Sprintf("unknown group %s", *groupID)}
}

// =============================================================================
// REPORT GROUPS
// =============================================================================

// Groups lists the active report groups of one of the user's hospitals.
func (s *Service) Groups(ctx context.Context, userID, hospitalID string) ([]billing.ReportGroup, error) {
	if _, err := s.store.GetAssignment(ctx, userID, hospitalID); err != nil {
		return nil, err
	}
	groups, err := s.store.ListActiveGroups(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []billing.ReportGroup{}
	}
	return groups, nil
}

// CreateGroup adds an active report group after the hospital's last one.
func (s *Service) CreateGroup(ctx context.Context, userID, hospitalID, name string) (billing.ReportGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return billing.ReportGroup{}, &billing.FieldError{Field: "name", Message: "group name is required"}
	}
	groups, err := s.Groups(ctx, userID, hospitalID)
	if err != nil {
		return billing.ReportGroup{}, err
	}

	g := billing.ReportGroup{ID: s.newID(), HospitalID: hospitalID, Name: name, SortOrder: 1, Active: true}
	for _, existing := range groups {
		g.SortOrder = max(g.SortOrder, existing.SortOrder+1)
	}
	if err := s.store.PutGroup(ctx, g); err != nil {
		return billing.ReportGroup{}, fmt.Errorf("failed to create group: %w", err)
	}
	s.logger.Info("report group created",
		zap.String("group_id", g.ID),
		zap.String("hospital_id", hospitalID),
		zap.Int("sort_order", g.SortOrder),
	)
	return g, nil
}
