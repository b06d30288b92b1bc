package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherspace/server/internal/domain/users"
)

// UsersRepository is the pgx-backed implementation of users.Repository.
type UsersRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewUsersRepository(pool *pgxpool.Pool) *UsersRepository {
	return &UsersRepository{pool: pool}
}

var _ users.Repository = (*UsersRepository)(nil)

const userColumns = `id, name, email, password_hash, role, is_active, email_notifications, timezone, last_login_at, created_at, updated_at`

func (r *UsersRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *UsersRepository) GetByID(ctx context.Context, id string) (*users.User, error) {
	queryer := r.queryer()
	row := queryer.QueryRow(ctx, `
SELECT `+userColumns+`
  FROM users
 WHERE id = $1
`, id)

	user, err := scanUser(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	queryer := r.queryer()
	row := queryer.QueryRow(ctx, `
SELECT `+userColumns+`
  FROM users
 WHERE lower(email) = lower($1)
`, email)

	user, err := scanUser(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (r *UsersRepository) GetByIDs(ctx context.Context, ids []string) ([]users.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	queryer := r.queryer()
	rows, err := queryer.Query(ctx, `
SELECT `+userColumns+`
  FROM users
 WHERE id = ANY($1)
 ORDER BY created_at
`, ids)
	if err != nil {
		return nil, fmt.Errorf("get users by ids: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

func (r *UsersRepository) ListActive(ctx context.Context) ([]users.User, error) {
	queryer := r.queryer()
	rows, err := queryer.Query(ctx, `
SELECT `+userColumns+`
  FROM users
 WHERE is_active
 ORDER BY created_at
`)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

func (r *UsersRepository) Create(ctx context.Context, params users.CreateParams) (*users.User, error) {
	queryer := r.queryer()
	row := queryer.QueryRow(ctx, `
INSERT INTO users (id, name, email, password_hash, role, is_active, email_notifications, timezone)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+userColumns+`
`,
		params.ID,
		params.Name,
		params.Email,
		params.PasswordHash,
		params.Role,
		params.IsActive,
		params.EmailNotifications,
		params.Timezone,
	)

	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err, "users_email_lower_idx") {
			return nil, users.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (r *UsersRepository) UpdateProfile(ctx context.Context, id string, params users.UpdateProfileParams) (*users.User, error) {
	queryer := r.queryer()
	row := queryer.QueryRow(ctx, `
UPDATE users
   SET name = COALESCE($2, name),
       timezone = COALESCE($3, timezone),
       email_notifications = COALESCE($4, email_notifications),
       updated_at = now()
 WHERE id = $1
RETURNING `+userColumns+`
`, id, params.Name, params.Timezone, params.EmailNotifications)

	user, err := scanUser(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("update user profile: %w", err)
	}
	return user, nil
}

func (r *UsersRepository) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	queryer := r.queryer()
	tag, err := queryer.Exec(ctx, `
UPDATE users
   SET password_hash = $2,
       updated_at = now()
 WHERE id = $1
`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*users.User, error) {
	var user users.User
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.IsActive,
		&user.EmailNotifications,
		&user.Timezone,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func collectUsers(rows pgx.Rows) ([]users.User, error) {
	var result []users.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		result = append(result, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return result, nil
}
