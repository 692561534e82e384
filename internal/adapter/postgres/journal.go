// Package postgres journals leak alerts to PostgreSQL so alert history
// survives restarts.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS gas_leak_alerts (
	id                 TEXT PRIMARY KEY,
	zone_id            TEXT NOT NULL,
	pressure_drop      DOUBLE PRECISION NOT NULL,
	flow_rate_anomaly  DOUBLE PRECISION NOT NULL,
	severity           TEXT NOT NULL,
	detected_at        TIMESTAMPTZ NOT NULL,
	is_resolved        BOOLEAN NOT NULL DEFAULT FALSE,
	resolved_at        TIMESTAMPTZ,
	description        TEXT NOT NULL DEFAULT '',
	affected_customers INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS gas_leak_alerts_one_unresolved_per_zone
	ON gas_leak_alerts (zone_id) WHERE NOT is_resolved;
`

const upsertAlert = `
INSERT INTO gas_leak_alerts (
	id, zone_id, pressure_drop, flow_rate_anomaly, severity,
	detected_at, is_resolved, resolved_at, description, affected_customers
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
	is_resolved = EXCLUDED.is_resolved,
	resolved_at = EXCLUDED.resolved_at`

const selectAlerts = `
SELECT id, zone_id, pressure_drop, flow_rate_anomaly, severity,
	detected_at, is_resolved, resolved_at, description, affected_customers
FROM gas_leak_alerts
ORDER BY detected_at, id`

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Journal implements registry.Journal on a pgx connection pool.
type Journal struct {
	db    db
	close func()
}

// NewJournal connects to databaseURL and ensures the alerts table exists.
func NewJournal(ctx context.Context, databaseURL string) (*Journal, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	j := &Journal{db: pool, close: pool.Close}
	if err := j.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return j, nil
}

// EnsureSchema creates the alerts table and its indexes if missing.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create gas_leak_alerts schema: %w", err)
	}
	return nil
}

// Record upserts the alert. Only the resolution columns change after the
// first write.
func (j *Journal) Record(ctx context.Context, a domain.Alert) error {
	if _, err := j.db.Exec(ctx, upsertAlert, alertArgs(a)...); err != nil {
		return fmt.Errorf("upsert alert %s: %w", a.ID, err)
	}
	return nil
}

// Load returns every journaled alert ordered by detection time.
func (j *Journal) Load(ctx context.Context) ([]domain.Alert, error) {
	rows, err := j.db.Query(ctx, selectAlerts)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var (
			a          domain.Alert
			severity   string
			resolvedAt *time.Time
		)
		if err := rows.Scan(&a.ID, &a.ZoneID, &a.PressureDrop, &a.FlowRateAnomaly, &severity,
			&a.DetectedAt, &a.IsResolved, &resolvedAt, &a.Description, &a.AffectedCustomers); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if a.Severity, err = domain.ParseSeverity(severity); err != nil {
			return nil, fmt.Errorf("alert %s: %w", a.ID, err)
		}
		a.ResolvedAt = resolvedAt
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read alerts: %w", err)
	}
	return alerts, nil
}

func (j *Journal) Close() {
	if j.close != nil {
		j.close()
	}
}

func alertArgs(a domain.Alert) []any {
	return []any{
		a.ID,
		a.ZoneID,
		a.PressureDrop,
		a.FlowRateAnomaly,
		a.Severity.String(),
		a.DetectedAt,
		a.IsResolved,
		a.ResolvedAt,
		a.Description,
		a.AffectedCustomers,
	}
}
