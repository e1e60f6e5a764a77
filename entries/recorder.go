// Package entries is the write path for recorded work sessions.
//
// A Recorder checks that the user owns the hospital assignment, loads the
// act, lets billing.PrepareEntry validate and price the draft, and persists
// the result. Any validation or pricing error blocks the write.
package entries

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Jelela/mishorasmed/billing"
)

// Store is what the recorder reads and writes.
type Store interface {
	billing.EntryStore
	billing.CatalogStore
}

// Recorder creates and updates entries.
type Recorder struct {
	store  Store
	newID  func() string
	logger *zap.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// WithIDGenerator replaces the UUID generator for new entries.
func WithIDGenerator(newID func() string) Option {
	return func(r *Recorder) { r.newID = newID }
}

func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:  store,
		newID:  uuid.NewString,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create validates and stores a new entry. An empty draft ID is generated.
func (r *Recorder) Create(ctx context.Context, draft billing.EntryDraft) (billing.Entry, error) {
	if draft.ID == "" {
		draft.ID = r.newID()
	}

	entry, err := r.prepare(ctx, draft)
	if err != nil {
		return billing.Entry{}, err
	}
	if err := r.store.InsertEntry(ctx, entry); err != nil {
		return billing.Entry{}, fmt.Errorf("failed to store entry: %w", err)
	}

	r.logger.Info("entry recorded",
		zap.String("entry_id", entry.ID),
		zap.String("hospital_id", entry.HospitalID),
		zap.String("act_id", entry.ActID),
		zap.Stringer("date", entry.Date),
		zap.Stringer("quantity", entry.Quantity),
	)
	return entry, nil
}

// Update replaces an existing entry of the same user. The entry is re-priced
// from the draft; the previously stored total is discarded.
func (r *Recorder) Update(ctx context.Context, draft billing.EntryDraft) (billing.Entry, error) {
	if _, err := r.store.GetEntry(ctx, draft.UserID, draft.ID); err != nil {
		return billing.Entry{}, err
	}

	entry, err := r.prepare(ctx, draft)
	if err != nil {
		return billing.Entry{}, err
	}
	if err := r.store.UpdateEntry(ctx, entry); err != nil {
		return billing.Entry{}, fmt.Errorf("failed to update entry: %w", err)
	}

	r.logger.Info("entry updated",
		zap.String("entry_id", entry.ID),
		zap.String("act_id", entry.ActID),
		zap.Stringer("date", entry.Date),
	)
	return entry, nil
}

func (r *Recorder) prepare(ctx context.Context, draft billing.EntryDraft) (billing.Entry, error) {
	if _, err := r.store.GetAssignment(ctx, draft.UserID, draft.HospitalID); err != nil {
		return billing.Entry{}, err
	}
	act, err := r.store.GetAct(ctx, draft.ActID)
	if err != nil {
		return billing.Entry{}, err
	}

	entry, err := billing.PrepareEntry(draft, act)
	if err != nil {
		r.logger.Debug("entry rejected",
			zap.String("act_id", draft.ActID),
			zap.String("kind", billing.Kind(err)),
			zap.Error(err),
		)
		return billing.Entry{}, err
	}
	return entry, nil
}
