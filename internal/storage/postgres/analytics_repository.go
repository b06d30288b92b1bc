package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherspace/server/internal/domain/analytics"
)

// AnalyticsRepository is the pgx-backed implementation of
// analytics.Repository. Registration counts always mean confirmed member
// registrations plus active guest registrations; deleted events are
// excluded everywhere.
type AnalyticsRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewAnalyticsRepository(pool *pgxpool.Pool) *AnalyticsRepository {
	return &AnalyticsRepository{pool: pool}
}

var _ analytics.Repository = (*AnalyticsRepository)(nil)

func (r *AnalyticsRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *AnalyticsRepository) Totals(ctx context.Context) (analytics.Totals, error) {
	queryer := r.queryer()
	var totals analytics.Totals
	err := queryer.QueryRow(ctx, `
SELECT (SELECT COUNT(*) FROM users),
       (SELECT COUNT(*) FROM events WHERE deleted_at IS NULL),
       (SELECT COUNT(*) FROM registrations WHERE status = 'confirmed')
     + (SELECT COUNT(*) FROM guest_registrations WHERE status = 'active'),
       (SELECT COUNT(*) FROM system_messages)
`).Scan(&totals.Users, &totals.Events, &totals.Registrations, &totals.Messages)
	if err != nil {
		return analytics.Totals{}, fmt.Errorf("query totals: %w", err)
	}
	return totals, nil
}

func (r *AnalyticsRepository) NewUsersBetween(ctx context.Context, from, to time.Time) (int64, error) {
	queryer := r.queryer()
	var count int64
	err := queryer.QueryRow(ctx, `
SELECT COUNT(*)
  FROM users
 WHERE created_at >= $1 AND created_at < $2
`, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count new users: %w", err)
	}
	return count, nil
}

func (r *AnalyticsRepository) NewEventsBetween(ctx context.Context, from, to time.Time) (int64, error) {
	queryer := r.queryer()
	var count int64
	err := queryer.QueryRow(ctx, `
SELECT COUNT(*)
  FROM events
 WHERE deleted_at IS NULL AND created_at >= $1 AND created_at < $2
`, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count new events: %w", err)
	}
	return count, nil
}

func (r *AnalyticsRepository) NewRegistrationsBetween(ctx context.Context, from, to time.Time) (int64, error) {
	queryer := r.queryer()
	var count int64
	err := queryer.QueryRow(ctx, `
SELECT (SELECT COUNT(*) FROM registrations WHERE status = 'confirmed' AND created_at >= $1 AND created_at < $2)
     + (SELECT COUNT(*) FROM guest_registrations WHERE status = 'active' AND created_at >= $1 AND created_at < $2)
`, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count new registrations: %w", err)
	}
	return count, nil
}

func (r *AnalyticsRepository) EventCountsByStatus(ctx context.Context) ([]analytics.StatusCount, error) {
	queryer := r.queryer()
	rows, err := queryer.Query(ctx, `
SELECT status, COUNT(*)
  FROM events
 WHERE deleted_at IS NULL
 GROUP BY status
 ORDER BY status
`)
	if err != nil {
		return nil, fmt.Errorf("count events by status: %w", err)
	}
	defer rows.Close()

	return collectStatusCounts(rows)
}

func (r *AnalyticsRepository) MonthlyRegistrations(ctx context.Context, from, to time.Time) ([]analytics.MonthlyRegistrations, error) {
	queryer := r.queryer()
	rows, err := queryer.Query(ctx, `
SELECT month, SUM(users)::bigint, SUM(guests)::bigint
  FROM (
       SELECT to_char(date_trunc('month', created_at AT TIME ZONE 'UTC'), 'YYYY-MM') AS month,
              COUNT(*) AS users, 0 AS guests
         FROM registrations
        WHERE status = 'confirmed' AND created_at >= $1 AND created_at < $2
        GROUP BY 1
       UNION ALL
       SELECT to_char(date_trunc('month', created_at AT TIME ZONE 'UTC'), 'YYYY-MM'),
              0, COUNT(*)
         FROM guest_registrations
        WHERE status = 'active' AND created_at >= $1 AND created_at < $2
        GROUP BY 1
  ) monthly
 GROUP BY month
 ORDER BY month
`, from, to)
	if err != nil {
		return nil, fmt.Errorf("count monthly registrations: %w", err)
	}
	defer rows.Close()

	var result []analytics.MonthlyRegistrations
	for rows.Next() {
		var item analytics.MonthlyRegistrations
		if err := rows.Scan(&item.Month, &item.Users, &item.Guests); err != nil {
			return nil, fmt.Errorf("scan monthly registrations: %w", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate monthly registrations: %w", err)
	}
	return result, nil
}

func (r *AnalyticsRepository) RegistrationCountsByEventStatus(ctx context.Context) ([]analytics.StatusCount, error) {
	queryer := r.queryer()
	rows, err := queryer.Query(ctx, `
SELECT status, SUM(n)::bigint
  FROM (
       SELECT e.status, COUNT(*) AS n
         FROM registrations r
         JOIN events e ON e.id = r.event_id
        WHERE r.status = 'confirmed' AND e.deleted_at IS NULL
        GROUP BY e.status
       UNION ALL
       SELECT e.status, COUNT(*)
         FROM guest_registrations g
         JOIN events e ON e.id = g.event_id
        WHERE g.status = 'active' AND e.deleted_at IS NULL
        GROUP BY e.status
  ) counts
 GROUP BY status
 ORDER BY status
`)
	if err != nil {
		return nil, fmt.Errorf("count registrations by event status: %w", err)
	}
	defer rows.Close()

	return collectStatusCounts(rows)
}

func (r *AnalyticsRepository) ProgramStats(ctx context.Context) ([]analytics.ProgramStats, error) {
	queryer := r.queryer()
	rows, err := queryer.Query(ctx, `
SELECT p.id, p.name,
       (SELECT COUNT(*)
          FROM events e
         WHERE e.program_id = p.id AND e.deleted_at IS NULL),
       (SELECT COUNT(*)
          FROM registrations r
          JOIN events e ON e.id = r.event_id
         WHERE e.program_id = p.id AND e.deleted_at IS NULL AND r.status = 'confirmed')
     + (SELECT COUNT(*)
          FROM guest_registrations g
          JOIN events e ON e.id = g.event_id
         WHERE e.program_id = p.id AND e.deleted_at IS NULL AND g.status = 'active')
  FROM programs p
 ORDER BY p.name
`)
	if err != nil {
		return nil, fmt.Errorf("query program stats: %w", err)
	}
	defer rows.Close()

	var result []analytics.ProgramStats
	for rows.Next() {
		var item analytics.ProgramStats
		if err := rows.Scan(&item.ProgramID, &item.Name, &item.Events, &item.Registrations); err != nil {
			return nil, fmt.Errorf("scan program stats: %w", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate program stats: %w", err)
	}
	return result, nil
}

func collectStatusCounts(rows pgx.Rows) ([]analytics.StatusCount, error) {
	var result []analytics.StatusCount
	for rows.Next() {
		var item analytics.StatusCount
		if err := rows.Scan(&item.Status, &item.Count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return result, nil
}
