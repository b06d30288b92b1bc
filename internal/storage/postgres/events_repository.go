package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherspace/server/internal/domain/events"
)

// EventsRepository is the pgx-backed implementation of events.Repository.
// Deleted events keep their row with deleted_at set so registration history
// stays intact; every read filters them out.
type EventsRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewEventsRepository(pool *pgxpool.Pool) *EventsRepository {
	return &EventsRepository{pool: pool}
}

var _ events.Repository = (*EventsRepository)(nil)

const eventColumns = `id, title, description, location, program_id, organizer_id, date, start_time, end_date, end_time, timezone, status, reminder_sent_at, created_at, updated_at`

const defaultEventPageSize = 20

func (r *EventsRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *EventsRepository) List(ctx context.Context, filters events.Filters, pagination events.Pagination) (events.ListResult, error) {
	limit := pagination.Limit
	if limit <= 0 {
		limit = defaultEventPageSize
	}

	var from, to string
	if filters.From != nil {
		from = filters.From.Format("2006-01-02")
	}
	if filters.To != nil {
		to = filters.To.Format("2006-01-02")
	}

	queryer := r.queryer()
	rows, err := queryer.Query(ctx, `
SELECT `+eventColumns+`
  FROM events
 WHERE deleted_at IS NULL
   AND ($1 = '' OR status = $1)
   AND ($2 = '' OR program_id = $2)
   AND ($3 = '' OR date >= $3)
   AND ($4 = '' OR date <= $4)
   AND ($5 = '' OR title ILIKE '%' || $5 || '%' OR description ILIKE '%' || $5 || '%')
   AND ($6 = '' OR id > $6)
 ORDER BY id
 LIMIT $7
`,
		filters.Status,
		filters.ProgramID,
		from,
		to,
		escapeILIKEPattern(filters.Query),
		pagination.After,
		limit+1,
	)
	if err != nil {
		return events.ListResult{}, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	items, err := collectEvents(rows)
	if err != nil {
		return events.ListResult{}, err
	}

	var result events.ListResult
	if len(items) > limit {
		items = items[:limit]
		result.NextCursor = items[len(items)-1].ID
	}

	if err := r.attachRoles(ctx, queryer, items); err != nil {
		return events.ListResult{}, err
	}
	result.Events = items
	return result, nil
}

func (r *EventsRepository) GetByID(ctx context.Context, id string) (*events.Event, error) {
	queryer := r.queryer()
	row := queryer.QueryRow(ctx, `
SELECT `+eventColumns+`
  FROM events
 WHERE id = $1 AND deleted_at IS NULL
`, id)

	event, err := scanEvent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}

	roles, err := loadRoles(ctx, queryer, []string{event.ID})
	if err != nil {
		return nil, err
	}
	event.Roles = roles[event.ID]
	return event, nil
}

func (r *EventsRepository) Create(ctx context.Context, params events.CreateParams) (*events.Event, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
INSERT INTO events (id, title, description, location, program_id, organizer_id, date, start_time, end_date, end_time, timezone, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING `+eventColumns+`
`,
		params.ID,
		params.Title,
		params.Description,
		params.Location,
		params.ProgramID,
		params.OrganizerID,
		params.Date,
		params.StartTime,
		params.EndDate,
		params.EndTime,
		params.TimeZone,
		params.Status,
	)

	event, err := scanEvent(row)
	if err != nil {
		if isForeignKeyViolation(err, "events_program_id_fkey") {
			return nil, events.ErrProgramNotFound
		}
		return nil, fmt.Errorf("create event: %w", err)
	}

	if err := insertRoles(ctx, tx, event.ID, params.Roles); err != nil {
		return nil, err
	}
	event.Roles = params.Roles

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return event, nil
}

func (r *EventsRepository) Update(ctx context.Context, id string, params events.UpdateParams) (*events.Event, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
UPDATE events
   SET title = COALESCE($2, title),
       description = COALESCE($3, description),
       location = COALESCE($4, location),
       program_id = CASE WHEN $5::text IS NULL THEN program_id WHEN $5::text = '' THEN NULL ELSE $5::text END,
       date = COALESCE($6, date),
       start_time = COALESCE($7, start_time),
       end_date = CASE WHEN $8::text IS NULL THEN end_date WHEN $8::text = '' THEN NULL ELSE $8::text END,
       end_time = CASE WHEN $9::text IS NULL THEN end_time WHEN $9::text = '' THEN NULL ELSE $9::text END,
       timezone = COALESCE($10, timezone),
       status = COALESCE($11, status),
       updated_at = now()
 WHERE id = $1 AND deleted_at IS NULL
RETURNING `+eventColumns+`
`,
		id,
		params.Title,
		params.Description,
		params.Location,
		params.ProgramID,
		params.Date,
		params.StartTime,
		params.EndDate,
		params.EndTime,
		params.TimeZone,
		params.Status,
	)

	event, err := scanEvent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, events.ErrNotFound
		}
		if isForeignKeyViolation(err, "events_program_id_fkey") {
			return nil, events.ErrProgramNotFound
		}
		return nil, fmt.Errorf("update event: %w", err)
	}

	if params.Roles != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM event_roles WHERE event_id = $1`, id); err != nil {
			return nil, fmt.Errorf("clear event roles: %w", err)
		}
		if err := insertRoles(ctx, tx, id, params.Roles); err != nil {
			return nil, err
		}
		event.Roles = params.Roles
	} else {
		roles, err := loadRoles(ctx, tx, []string{id})
		if err != nil {
			return nil, err
		}
		event.Roles = roles[id]
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return event, nil
}

func (r *EventsRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
UPDATE events
   SET deleted_at = now(),
       updated_at = now()
 WHERE id = $1 AND deleted_at IS NULL
`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `
UPDATE registrations
   SET status = 'cancelled',
       updated_at = now()
 WHERE event_id = $1 AND status = 'confirmed'
`, id); err != nil {
		return fmt.Errorf("cancel registrations: %w", err)
	}

	if _, err := tx.Exec(ctx, `
UPDATE guest_registrations
   SET status = 'cancelled',
       updated_at = now()
 WHERE event_id = $1 AND status = 'active'
`, id); err != nil {
		return fmt.Errorf("cancel guest registrations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *EventsRepository) ListAll(ctx context.Context) ([]events.Event, error) {
	queryer := r.queryer()
	rows, err := queryer.Query(ctx, `
SELECT `+eventColumns+`
  FROM events
 WHERE deleted_at IS NULL
 ORDER BY id
`)
	if err != nil {
		return nil, fmt.Errorf("list all events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

func (r *EventsRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	queryer := r.queryer()
	tag, err := queryer.Exec(ctx, `
UPDATE events
   SET status = $2,
       updated_at = now()
 WHERE id = $1 AND deleted_at IS NULL
`, id, status)
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

func (r *EventsRepository) ListUpcomingWithoutReminder(ctx context.Context) ([]events.Event, error) {
	queryer := r.queryer()
	rows, err := queryer.Query(ctx, `
SELECT `+eventColumns+`
  FROM events
 WHERE deleted_at IS NULL
   AND status = 'upcoming'
   AND reminder_sent_at IS NULL
 ORDER BY date, start_time
`)
	if err != nil {
		return nil, fmt.Errorf("list events awaiting reminder: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

func (r *EventsRepository) MarkReminderSent(ctx context.Context, id string, at time.Time) error {
	queryer := r.queryer()
	tag, err := queryer.Exec(ctx, `
UPDATE events
   SET reminder_sent_at = $2
 WHERE id = $1 AND deleted_at IS NULL
`, id, at)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

func (r *EventsRepository) attachRoles(ctx context.Context, queryer queryer, items []events.Event) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	roles, err := loadRoles(ctx, queryer, ids)
	if err != nil {
		return err
	}
	for i := range items {
		items[i].Roles = roles[items[i].ID]
	}
	return nil
}

func loadRoles(ctx context.Context, queryer queryer, eventIDs []string) (map[string][]events.Role, error) {
	rows, err := queryer.Query(ctx, `
SELECT event_id, name, capacity
  FROM event_roles
 WHERE event_id = ANY($1)
 ORDER BY event_id, position
`, eventIDs)
	if err != nil {
		return nil, fmt.Errorf("load event roles: %w", err)
	}
	defer rows.Close()

	byEvent := make(map[string][]events.Role)
	for rows.Next() {
		var eventID string
		var role events.Role
		if err := rows.Scan(&eventID, &role.Name, &role.Capacity); err != nil {
			return nil, fmt.Errorf("scan event role: %w", err)
		}
		byEvent[eventID] = append(byEvent[eventID], role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event roles: %w", err)
	}
	return byEvent, nil
}

func insertRoles(ctx context.Context, tx pgx.Tx, eventID string, roles []events.Role) error {
	for i, role := range roles {
		if _, err := tx.Exec(ctx, `
INSERT INTO event_roles (event_id, name, capacity, position)
VALUES ($1, $2, $3, $4)
`, eventID, role.Name, role.Capacity, i); err != nil {
			return fmt.Errorf("insert event role: %w", err)
		}
	}
	return nil
}

func scanEvent(row pgx.Row) (*events.Event, error) {
	var event events.Event
	if err := row.Scan(
		&event.ID,
		&event.Title,
		&event.Description,
		&event.Location,
		&event.ProgramID,
		&event.OrganizerID,
		&event.Date,
		&event.StartTime,
		&event.EndDate,
		&event.EndTime,
		&event.TimeZone,
		&event.Status,
		&event.ReminderSentAt,
		&event.CreatedAt,
		&event.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &event, nil
}

func collectEvents(rows pgx.Rows) ([]events.Event, error) {
	var result []events.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		result = append(result, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return result, nil
}
