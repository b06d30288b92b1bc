package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherspace/server/internal/domain/messages"
)

// MessagesRepository is the pgx-backed implementation of
// messages.Repository. One system_messages row is shared by all
// recipients; per-recipient flags live in message_states, keyed by
// (message, user, channel).
type MessagesRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewMessagesRepository(pool *pgxpool.Pool) *MessagesRepository {
	return &MessagesRepository{pool: pool}
}

var _ messages.Repository = (*MessagesRepository)(nil)

const messageColumns = `id, kind, title, body, event_id, created_by, created_at`

const defaultMessagePageSize = 20

func (r *MessagesRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *MessagesRepository) CreateWithStates(ctx context.Context, params messages.CreateParams, recipientIDs []string) (*messages.SystemMessage, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
INSERT INTO system_messages (id, kind, title, body, event_id, created_by)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+messageColumns+`
`, params.ID, params.Kind, params.Title, params.Body, params.EventID, params.CreatedBy)

	message, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	if len(recipientIDs) > 0 {
		if _, err := tx.Exec(ctx, `
INSERT INTO message_states (message_id, user_id, channel)
SELECT $1, recipient.id, channel.name
  FROM unnest($2::text[]) AS recipient(id)
 CROSS JOIN (VALUES ('system'), ('bell')) AS channel(name)
`, message.ID, recipientIDs); err != nil {
			return nil, fmt.Errorf("create message states: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return message, nil
}

func (r *MessagesRepository) GetByID(ctx context.Context, id string) (*messages.SystemMessage, error) {
	queryer := r.queryer()
	row := queryer.QueryRow(ctx, `
SELECT `+messageColumns+`
  FROM system_messages
 WHERE id = $1
`, id)

	message, err := scanMessage(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, messages.ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return message, nil
}

func (r *MessagesRepository) ListForUser(ctx context.Context, userID, channel string, opts messages.ListOptions) (messages.ListResult, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultMessagePageSize
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	queryer := r.queryer()

	var result messages.ListResult
	err := queryer.QueryRow(ctx, `
SELECT COUNT(*) FILTER (WHERE $3 = false OR NOT is_read)::int,
       COUNT(*) FILTER (WHERE NOT is_read)::int
  FROM message_states
 WHERE user_id = $1 AND channel = $2 AND NOT is_deleted AND NOT is_removed
`, userID, channel, opts.UnreadOnly).Scan(&result.Total, &result.UnreadCount)
	if err != nil {
		return messages.ListResult{}, fmt.Errorf("count messages: %w", err)
	}

	rows, err := queryer.Query(ctx, `
SELECT m.id, m.kind, m.title, m.body, m.event_id, m.created_by, m.created_at, s.is_read
  FROM message_states s
  JOIN system_messages m ON m.id = s.message_id
 WHERE s.user_id = $1 AND s.channel = $2 AND NOT s.is_deleted AND NOT s.is_removed
   AND ($3 = false OR NOT s.is_read)
 ORDER BY m.created_at DESC, m.id DESC
 LIMIT $4 OFFSET $5
`, userID, channel, opts.UnreadOnly, opts.Limit, opts.Offset)
	if err != nil {
		return messages.ListResult{}, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry messages.InboxEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.Kind,
			&entry.Title,
			&entry.Body,
			&entry.EventID,
			&entry.CreatedBy,
			&entry.CreatedAt,
			&entry.IsRead,
		); err != nil {
			return messages.ListResult{}, fmt.Errorf("scan message: %w", err)
		}
		result.Entries = append(result.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return messages.ListResult{}, fmt.Errorf("iterate messages: %w", err)
	}
	return result, nil
}

func (r *MessagesRepository) MarkRead(ctx context.Context, messageID, userID, channel string) error {
	queryer := r.queryer()
	tag, err := queryer.Exec(ctx, `
UPDATE message_states
   SET is_read = true,
       updated_at = now()
 WHERE message_id = $1 AND user_id = $2 AND channel = $3 AND NOT is_removed
`, messageID, userID, channel)
	if err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return messages.ErrNotFound
	}
	return nil
}

func (r *MessagesRepository) MarkAllRead(ctx context.Context, userID, channel string) error {
	queryer := r.queryer()
	_, err := queryer.Exec(ctx, `
UPDATE message_states
   SET is_read = true,
       updated_at = now()
 WHERE user_id = $1 AND channel = $2 AND NOT is_read AND NOT is_deleted AND NOT is_removed
`, userID, channel)
	if err != nil {
		return fmt.Errorf("mark all messages read: %w", err)
	}
	return nil
}

func (r *MessagesRepository) SoftDelete(ctx context.Context, messageID, userID, channel string) error {
	queryer := r.queryer()
	tag, err := queryer.Exec(ctx, `
UPDATE message_states
   SET is_deleted = true,
       updated_at = now()
 WHERE message_id = $1 AND user_id = $2 AND channel = $3 AND NOT is_removed
`, messageID, userID, channel)
	if err != nil {
		return fmt.Errorf("dismiss message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return messages.ErrNotFound
	}
	return nil
}

func (r *MessagesRepository) RetractAll(ctx context.Context, messageID string) error {
	queryer := r.queryer()
	_, err := queryer.Exec(ctx, `
UPDATE message_states
   SET is_removed = true,
       updated_at = now()
 WHERE message_id = $1
`, messageID)
	if err != nil {
		return fmt.Errorf("retract message: %w", err)
	}
	return nil
}

func (r *MessagesRepository) PurgeStates(ctx context.Context, before time.Time) (int64, error) {
	queryer := r.queryer()
	tag, err := queryer.Exec(ctx, `
DELETE FROM message_states
 WHERE (is_deleted OR is_removed) AND updated_at < $1
`, before)
	if err != nil {
		return 0, fmt.Errorf("purge message states: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanMessage(row pgx.Row) (*messages.SystemMessage, error) {
	var message messages.SystemMessage
	if err := row.Scan(
		&message.ID,
		&message.Kind,
		&message.Title,
		&message.Body,
		&message.EventID,
		&message.CreatedBy,
		&message.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &message, nil
}
