package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
)

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	calls []execCall
	err   error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, f.err
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func TestJournal_RecordUpserts(t *testing.T) {
	db := &fakeDB{}
	j := &Journal{db: db}
	detected := time.Date(2024, time.November, 4, 9, 0, 0, 0, time.UTC)
	resolved := detected.Add(time.Hour)

	err := j.Record(context.Background(), domain.Alert{
		ID:                "alert-1",
		ZoneID:            "Tongelre",
		PressureDrop:      0.8,
		FlowRateAnomaly:   150,
		Severity:          domain.SeverityHigh,
		DetectedAt:        detected,
		IsResolved:        true,
		ResolvedAt:        &resolved,
		Description:       "pressure drop",
		AffectedCustomers: 46,
	})
	require.NoError(t, err)

	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "ON CONFLICT (id) DO UPDATE")
	assert.Equal(t, []any{
		"alert-1", "Tongelre", 0.8, 150.0, "high",
		detected, true, &resolved, "pressure drop", 46,
	}, db.calls[0].args)
}

func TestJournal_RecordError(t *testing.T) {
	j := &Journal{db: &fakeDB{err: errors.New("connection refused")}}

	err := j.Record(context.Background(), domain.Alert{ID: "alert-9"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alert-9")
}

func TestJournal_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	j := &Journal{db: db}

	require.NoError(t, j.EnsureSchema(context.Background()))
	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "CREATE TABLE IF NOT EXISTS gas_leak_alerts")
	assert.Contains(t, db.calls[0].sql, "WHERE NOT is_resolved")
}

func TestJournal_LoadQueryError(t *testing.T) {
	j := &Journal{db: &fakeDB{}}

	_, err := j.Load(context.Background())
	require.Error(t, err)
}
