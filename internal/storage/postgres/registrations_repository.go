package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherspace/server/internal/domain/registrations"
)

// RegistrationsRepository is the pgx-backed implementation of
// registrations.Repository. Partial unique indexes keep at most one
// confirmed row per (event, user, role) and one active guest row per
// (event, email, role), so a racing duplicate insert maps to ErrDuplicate
// instead of surfacing as a raw constraint error.
type RegistrationsRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewRegistrationsRepository(pool *pgxpool.Pool) *RegistrationsRepository {
	return &RegistrationsRepository{pool: pool}
}

var _ registrations.Repository = (*RegistrationsRepository)(nil)

const registrationColumns = `id, event_id, user_id, role, status, created_at, updated_at`

const guestColumns = `id, event_id, name, email, phone, role, status, migrated_user_id, created_at, updated_at`

func (r *RegistrationsRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *RegistrationsRepository) Create(ctx context.Context, params registrations.CreateParams) (*registrations.Registration, error) {
	queryer := r.queryer()
	row := queryer.QueryRow(ctx, `
INSERT INTO registrations (id, event_id, user_id, role, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+registrationColumns+`
`, params.ID, params.EventID, params.UserID, params.Role, params.Status)

	registration, err := scanRegistration(row)
	if err != nil {
		if isUniqueViolation(err, "registrations_active_idx") {
			return nil, registrations.ErrDuplicate
		}
		return nil, fmt.Errorf("create registration: %w", err)
	}
	return registration, nil
}

func (r *RegistrationsRepository) FindActive(ctx context.Context, eventID, userID, role string) (*registrations.Registration, error) {
	queryer := r.queryer()
	row := queryer.QueryRow(ctx, `
SELECT `+registrationColumns+`
  FROM registrations
 WHERE event_id = $1 AND user_id = $2 AND role = $3 AND status = 'confirmed'
`, eventID, userID, role)

	registration, err := scanRegistration(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, registrations.ErrNotFound
		}
		return nil, fmt.Errorf("find active registration: %w", err)
	}
	return registration, nil
}

func (r *RegistrationsRepository) Cancel(ctx context.Context, eventID, userID, role string) error {
	queryer := r.queryer()
	tag, err := queryer.Exec(ctx, `
UPDATE registrations
   SET status = 'cancelled',
       updated_at = now()
 WHERE event_id = $1 AND user_id = $2 AND role = $3 AND status = 'confirmed'
`, eventID, userID, role)
	if err != nil {
		return fmt.Errorf("cancel registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registrations.ErrNotFound
	}
	return nil
}

func (r *RegistrationsRepository) ListByEvent(ctx context.Context, eventID string) ([]registrations.Registration, error) {
	queryer := r.queryer()
	rows, err := queryer.Query(ctx, `
SELECT `+registrationColumns+`
  FROM registrations
 WHERE event_id = $1
 ORDER BY created_at
`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var result []registrations.Registration
	for rows.Next() {
		registration, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		result = append(result, *registration)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return result, nil
}

func (r *RegistrationsRepository) ListByUser(ctx context.Context, userID string) ([]registrations.RegistrationWithEvent, error) {
	queryer := r.queryer()
	rows, err := queryer.Query(ctx, `
SELECT r.id, r.event_id, r.user_id, r.role, r.status, r.created_at, r.updated_at,
       e.title, e.date, e.start_time, e.location, e.timezone, e.status
  FROM registrations r
  JOIN events e ON e.id = r.event_id
 WHERE r.user_id = $1
 ORDER BY r.created_at DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list registrations by user: %w", err)
	}
	defer rows.Close()

	var result []registrations.RegistrationWithEvent
	for rows.Next() {
		var item registrations.RegistrationWithEvent
		if err := rows.Scan(
			&item.ID,
			&item.EventID,
			&item.UserID,
			&item.Role,
			&item.Status,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.EventTitle,
			&item.EventDate,
			&item.EventStartTime,
			&item.EventLocation,
			&item.EventTimeZone,
			&item.EventStatus,
		); err != nil {
			return nil, fmt.Errorf("scan registration with event: %w", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations by user: %w", err)
	}
	return result, nil
}

func (r *RegistrationsRepository) ActiveUserIDs(ctx context.Context, eventID string) ([]string, error) {
	queryer := r.queryer()
	rows, err := queryer.Query(ctx, `
SELECT user_id
  FROM registrations
 WHERE event_id = $1 AND status = 'confirmed'
 GROUP BY user_id
 ORDER BY MIN(created_at)
`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list active user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user ids: %w", err)
	}
	return ids, nil
}

func (r *RegistrationsRepository) CountActiveForRole(ctx context.Context, eventID, role string) (int, error) {
	queryer := r.queryer()
	var count int
	err := queryer.QueryRow(ctx, `
SELECT (SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND role = $2 AND status = 'confirmed')
     + (SELECT COUNT(*) FROM guest_registrations WHERE event_id = $1 AND role = $2 AND status = 'active')
`, eventID, role).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count registrations for role: %w", err)
	}
	return count, nil
}

func (r *RegistrationsRepository) CountsByRole(ctx context.Context, eventID string) (map[string]int, error) {
	queryer := r.queryer()
	rows, err := queryer.Query(ctx, `
SELECT role, SUM(n)::int
  FROM (
       SELECT role, COUNT(*) AS n
         FROM registrations
        WHERE event_id = $1 AND status = 'confirmed'
        GROUP BY role
       UNION ALL
       SELECT role, COUNT(*)
         FROM guest_registrations
        WHERE event_id = $1 AND status = 'active'
        GROUP BY role
  ) counts
 GROUP BY role
`, eventID)
	if err != nil {
		return nil, fmt.Errorf("count registrations by role: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var role string
		var count int
		if err := rows.Scan(&role, &count); err != nil {
			return nil, fmt.Errorf("scan role count: %w", err)
		}
		result[role] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role counts: %w", err)
	}
	return result, nil
}

func (r *RegistrationsRepository) CreateGuest(ctx context.Context, params registrations.GuestCreateParams) (*registrations.GuestRegistration, error) {
	queryer := r.queryer()
	row := queryer.QueryRow(ctx, `
INSERT INTO guest_registrations (id, event_id, name, email, phone, role, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+guestColumns+`
`, params.ID, params.EventID, params.Name, params.Email, params.Phone, params.Role, params.Status)

	guest, err := scanGuest(row)
	if err != nil {
		if isUniqueViolation(err, "guest_registrations_active_idx") {
			return nil, registrations.ErrDuplicate
		}
		return nil, fmt.Errorf("create guest registration: %w", err)
	}
	return guest, nil
}

func (r *RegistrationsRepository) FindActiveGuest(ctx context.Context, eventID, email, role string) (*registrations.GuestRegistration, error) {
	queryer := r.queryer()
	row := queryer.QueryRow(ctx, `
SELECT `+guestColumns+`
  FROM guest_registrations
 WHERE event_id = $1 AND lower(email) = lower($2) AND role = $3 AND status = 'active'
`, eventID, email, role)

	guest, err := scanGuest(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, registrations.ErrNotFound
		}
		return nil, fmt.Errorf("find active guest registration: %w", err)
	}
	return guest, nil
}

func (r *RegistrationsRepository) ListActiveGuestsByEmail(ctx context.Context, email string) ([]registrations.GuestRegistration, error) {
	queryer := r.queryer()
	rows, err := queryer.Query(ctx, `
SELECT `+guestColumns+`
  FROM guest_registrations
 WHERE lower(email) = lower($1) AND status = 'active'
 ORDER BY created_at
`, email)
	if err != nil {
		return nil, fmt.Errorf("list guest registrations by email: %w", err)
	}
	defer rows.Close()

	return collectGuests(rows)
}

func (r *RegistrationsRepository) ListGuestsByEvent(ctx context.Context, eventID string) ([]registrations.GuestRegistration, error) {
	queryer := r.queryer()
	rows, err := queryer.Query(ctx, `
SELECT `+guestColumns+`
  FROM guest_registrations
 WHERE event_id = $1
 ORDER BY created_at
`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list guest registrations: %w", err)
	}
	defer rows.Close()

	return collectGuests(rows)
}

func (r *RegistrationsRepository) MigrateGuest(ctx context.Context, guestID string, params registrations.CreateParams) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
UPDATE guest_registrations
   SET status = 'migrated',
       migrated_user_id = $2,
       updated_at = now()
 WHERE id = $1 AND status = 'active'
`, guestID, params.UserID)
	if err != nil {
		return fmt.Errorf("mark guest migrated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registrations.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO registrations (id, event_id, user_id, role, status)
VALUES ($1, $2, $3, $4, $5)
`, params.ID, params.EventID, params.UserID, params.Role, params.Status); err != nil {
		if isUniqueViolation(err, "registrations_active_idx") {
			return registrations.ErrDuplicate
		}
		return fmt.Errorf("insert migrated registration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanRegistration(row pgx.Row) (*registrations.Registration, error) {
	var registration registrations.Registration
	if err := row.Scan(
		&registration.ID,
		&registration.EventID,
		&registration.UserID,
		&registration.Role,
		&registration.Status,
		&registration.CreatedAt,
		&registration.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &registration, nil
}

func scanGuest(row pgx.Row) (*registrations.GuestRegistration, error) {
	var guest registrations.GuestRegistration
	if err := row.Scan(
		&guest.ID,
		&guest.EventID,
		&guest.Name,
		&guest.Email,
		&guest.Phone,
		&guest.Role,
		&guest.Status,
		&guest.MigratedUserID,
		&guest.CreatedAt,
		&guest.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &guest, nil
}

func collectGuests(rows pgx.Rows) ([]registrations.GuestRegistration, error) {
	var result []registrations.GuestRegistration
	for rows.Next() {
		guest, err := scanGuest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan guest registration: %w", err)
		}
		result = append(result, *guest)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate guest registrations: %w", err)
	}
	return result, nil
}
