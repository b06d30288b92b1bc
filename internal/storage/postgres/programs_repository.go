package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherspace/server/internal/domain/programs"
)

// ProgramsRepository is the pgx-backed implementation of programs.Repository.
type ProgramsRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewProgramsRepository(pool *pgxpool.Pool) *ProgramsRepository {
	return &ProgramsRepository{pool: pool}
}

var _ programs.Repository = (*ProgramsRepository)(nil)

const programColumns = `id, name, description, owner_id, is_active, created_at, updated_at`

func (r *ProgramsRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *ProgramsRepository) List(ctx context.Context, includeInactive bool) ([]programs.ProgramWithCount, error) {
	queryer := r.queryer()
	rows, err := queryer.Query(ctx, `
SELECT p.id, p.name, p.description, p.owner_id, p.is_active, p.created_at, p.updated_at,
       COUNT(e.id) AS event_count
  FROM programs p
  LEFT JOIN events e ON e.program_id = p.id AND e.deleted_at IS NULL
 WHERE ($1 OR p.is_active)
 GROUP BY p.id
 ORDER BY p.created_at
`, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	defer rows.Close()

	var result []programs.ProgramWithCount
	for rows.Next() {
		var item programs.ProgramWithCount
		if err := rows.Scan(
			&item.ID,
			&item.Name,
			&item.Description,
			&item.OwnerID,
			&item.IsActive,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.EventCount,
		); err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate programs: %w", err)
	}
	return result, nil
}

func (r *ProgramsRepository) GetByID(ctx context.Context, id string) (*programs.Program, error) {
	queryer := r.queryer()
	row := queryer.QueryRow(ctx, `
SELECT `+programColumns+`
  FROM programs
 WHERE id = $1
`, id)

	program, err := scanProgram(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, programs.ErrNotFound
		}
		return nil, fmt.Errorf("get program: %w", err)
	}
	return program, nil
}

func (r *ProgramsRepository) Create(ctx context.Context, params programs.CreateParams) (*programs.Program, error) {
	queryer := r.queryer()
	row := queryer.QueryRow(ctx, `
INSERT INTO programs (id, name, description, owner_id)
VALUES ($1, $2, $3, $4)
RETURNING `+programColumns+`
`, params.ID, params.Name, params.Description, params.OwnerID)

	program, err := scanProgram(row)
	if err != nil {
		return nil, fmt.Errorf("create program: %w", err)
	}
	return program, nil
}

func (r *ProgramsRepository) Update(ctx context.Context, id string, params programs.UpdateParams) (*programs.Program, error) {
	queryer := r.queryer()
	row := queryer.QueryRow(ctx, `
UPDATE programs
   SET name = COALESCE($2, name),
       description = COALESCE($3, description),
       is_active = COALESCE($4, is_active),
       updated_at = now()
 WHERE id = $1
RETURNING `+programColumns+`
`, id, params.Name, params.Description, params.IsActive)

	program, err := scanProgram(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, programs.ErrNotFound
		}
		return nil, fmt.Errorf("update program: %w", err)
	}
	return program, nil
}

func scanProgram(row pgx.Row) (*programs.Program, error) {
	var program programs.Program
	if err := row.Scan(
		&program.ID,
		&program.Name,
		&program.Description,
		&program.OwnerID,
		&program.IsActive,
		&program.CreatedAt,
		&program.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &program, nil
}
