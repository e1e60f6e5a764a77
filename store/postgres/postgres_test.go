package postgres

import (
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jelela/mishorasmed/billing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, billing.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "uq_hospital_closures_period"}, billing.ErrConflict},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, billing.ErrStoreUnavailable},
		{"connection reset", errors.New("connection reset by peer"), billing.ErrStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("insert closure", "uh-1/2024-02-15..2024-03-14", tt.err)
			assert.ErrorIs(t, err, tt.want)

			var storeErr *billing.StoreError
			require.ErrorAs(t, err, &storeErr)
			assert.Equal(t, "insert closure", storeErr.Op)
		})
	}

	assert.NoError(t, classify("noop", "", nil))
}

func TestEmbeddedMigrations(t *testing.T) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"migrations/000001_billing.up.sql",
		"migrations/000001_billing.down.sql",
	}, names)

	up, err := fs.ReadFile(migrations, "migrations/000001_billing.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "UNIQUE (closure_id, group_key)")
	assert.Contains(t, string(up), "UNIQUE (user_id, user_hospital_id, period_start_calc, period_end_calc)")
}

func TestNaiveConversions(t *testing.T) {
	// GIVEN: A wall-clock instant read back from a TIMESTAMP column in a non-UTC zone
	// WHEN: Converted to a billing instant
	// THEN: The literal wall clock is kept

	zone := time.FixedZone("ART", -3*60*60)
	stored := time.Date(2024, time.March, 1, 22, 0, 0, 0, zone)

	got := timeInstant(&stored)
	require.NotNil(t, got)
	assert.Equal(t, "2024-03-01T22:00:00", got.String())
	assert.Nil(t, timeInstant(nil))

	back := instantTime(got)
	require.NotNil(t, back)
	assert.Equal(t, 22, back.Hour())

	d := decimal.RequireFromString("12.50")
	assert.True(t, nullDecimal(&d).Valid)
	assert.False(t, nullDecimal(nil).Valid)
	assert.True(t, decimalPtr(nullDecimal(&d)).Equal(d))
}
