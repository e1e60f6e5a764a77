package entries_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/Jelela/mishorasmed/billing"
	"github.com/Jelela/mishorasmed/entries"
)

// MockStore is a mock type for the entries.Store interface
type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListEntries(ctx context.Context, q billing.EntryQuery) ([]billing.EntryWithAct, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.EntryWithAct), args.Error(1)
}

func (m *MockStore) GetEntry(ctx context.Context, userID, entryID string) (billing.Entry, error) {
	args := m.Called(ctx, userID, entryID)
	return args.Get(0).(billing.Entry), args.Error(1)
}

func (m *MockStore) InsertEntry(ctx context.Context, e billing.Entry) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockStore) UpdateEntry(ctx context.Context, e billing.Entry) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockStore) GetAct(ctx context.Context, actID string) (billing.MedicalAct, error) {
	args := m.Called(ctx, actID)
	return args.Get(0).(billing.MedicalAct), args.Error(1)
}

func (m *MockStore) ListActs(ctx context.Context, hospitalID string) ([]billing.MedicalAct, error) {
	args := m.Called(ctx, hospitalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.MedicalAct), args.Error(1)
}

func (m *MockStore) ListActiveGroups(ctx context.Context, hospitalID string) ([]billing.ReportGroup, error) {
	args := m.Called(ctx, hospitalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.ReportGroup), args.Error(1)
}

func (m *MockStore) GetAssignment(ctx context.Context, userID, hospitalID string) (billing.HospitalAssignment, error) {
	args := m.Called(ctx, userID, hospitalID)
	return args.Get(0).(billing.HospitalAssignment), args.Error(1)
}

func (m *MockStore) ListAssignments(ctx context.Context, userID string) ([]billing.HospitalAssignment, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.HospitalAssignment), args.Error(1)
}

// --- Test Suite Setup ---

type RecorderTestSuite struct {
	suite.Suite
	store    *MockStore
	recorder *entries.Recorder
	ctx      context.Context
}

func (s *RecorderTestSuite) SetupTest() {
	s.store = new(MockStore)
	s.recorder = entries.NewRecorder(s.store, entries.WithIDGenerator(func() string { return "entry-1" }))
	s.ctx = context.Background()
}

func (s *RecorderTestSuite) guardAct() billing.MedicalAct {
	unit := decimal.NewFromInt(200)
	return billing.MedicalAct{
		ID: "act-guard", HospitalID: "uh-1", Name: "Guardia",
		UnitKind: billing.UnitHours, UnitValue: &unit, Active: true,
	}
}

func (s *RecorderTestSuite) draft() billing.EntryDraft {
	qty := decimal.NewFromInt(2)
	return billing.EntryDraft{
		UserID: "user-1", HospitalID: "uh-1", ActID: "act-guard",
		Date: "2024-03-05", Quantity: &qty,
	}
}

// --- Test Cases ---

func (s *RecorderTestSuite) TestCreate_Success() {
	s.store.On("GetAssignment", s.ctx, "user-1", "uh-1").Return(billing.HospitalAssignment{ID: "uh-1", UserID: "user-1"}, nil).Once()
	s.store.On("GetAct", s.ctx, "act-guard").Return(s.guardAct(), nil).Once()
	s.store.On("InsertEntry", s.ctx, mock.MatchedBy(func(e billing.Entry) bool {
		return e.ID == "entry-1" && e.Date.String() == "2024-03-05" && e.Quantity.Equal(decimal.NewFromInt(2))
	})).Return(nil).Once()

	entry, err := s.recorder.Create(s.ctx, s.draft())

	s.Require().NoError(err)
	s.Equal("entry-1", entry.ID)
	s.store.AssertExpectations(s.T())
}

func (s *RecorderTestSuite) TestCreate_UnknownAssignmentStopsBeforeActLookup() {
	s.store.On("GetAssignment", s.ctx, "user-1", "uh-1").Return(billing.HospitalAssignment{}, billing.NotFound("get assignment", "uh-1")).Once()

	_, err := s.recorder.Create(s.ctx, s.draft())

	s.ErrorIs(err, billing.ErrNotFound)
	s.store.AssertNotCalled(s.T(), "GetAct", mock.Anything, mock.Anything)
	s.store.AssertNotCalled(s.T(), "InsertEntry", mock.Anything, mock.Anything)
}

func (s *RecorderTestSuite) TestCreate_InactiveActBlocksWrite() {
	act := s.guardAct()
	act.Active = false
	s.store.On("GetAssignment", s.ctx, "user-1", "uh-1").Return(billing.HospitalAssignment{ID: "uh-1"}, nil).Once()
	s.store.On("GetAct", s.ctx, "act-guard").Return(act, nil).Once()

	_, err := s.recorder.Create(s.ctx, s.draft())

	s.ErrorIs(err, billing.ErrValidation)
	s.store.AssertNotCalled(s.T(), "InsertEntry", mock.Anything, mock.Anything)
}

func (s *RecorderTestSuite) TestCreate_StoreFailureIsRetryable() {
	s.store.On("GetAssignment", s.ctx, "user-1", "uh-1").Return(billing.HospitalAssignment{ID: "uh-1"}, nil).Once()
	s.store.On("GetAct", s.ctx, "act-guard").Return(s.guardAct(), nil).Once()
	s.store.On("InsertEntry", s.ctx, mock.Anything).
		Return(billing.NewStoreError("insert entry", "entry-1", errors.New("connection reset"))).Once()

	_, err := s.recorder.Create(s.ctx, s.draft())

	s.True(billing.IsRetryable(err))
	s.Equal("store_unavailable", billing.Kind(err))
}

func (s *RecorderTestSuite) TestUpdate_MissingEntry() {
	draft := s.draft()
	draft.ID = "entry-9"
	s.store.On("GetEntry", s.ctx, "user-1", "entry-9").Return(billing.Entry{}, billing.NotFound("get entry", "entry-9")).Once()

	_, err := s.recorder.Update(s.ctx, draft)

	s.ErrorIs(err, billing.ErrNotFound)
	s.store.AssertNotCalled(s.T(), "UpdateEntry", mock.Anything, mock.Anything)
}

func TestRecorderTestSuite(t *testing.T) {
	suite.Run(t, new(RecorderTestSuite))
}
