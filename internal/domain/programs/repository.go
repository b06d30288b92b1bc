package programs

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("program not found")

// Program groups related events under a named track, such as a workshop
// series or a seasonal league.
type Program struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProgramWithCount pairs a program with the number of events attached to it.
type ProgramWithCount struct {
	Program
	EventCount int
}

type CreateParams struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
}

type UpdateParams struct {
	Name        *string
	Description *string
	IsActive    *bool
}

type Repository interface {
	List(ctx context.Context, includeInactive bool) ([]ProgramWithCount, error)
	GetByID(ctx context.Context, id string) (*Program, error)
	Create(ctx context.Context, params CreateParams) (*Program, error)
	Update(ctx context.Context, id string, params UpdateParams) (*Program, error)
}
