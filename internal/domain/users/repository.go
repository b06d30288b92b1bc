package users

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("user not found")

var ErrEmailTaken = errors.New("email already taken")

type User struct {
	ID                 string
	Name               string
	Email              string
	PasswordHash       string
	Role               string
	IsActive           bool
	EmailNotifications bool
	Timezone           string
	LastLoginAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type CreateParams struct {
	ID                 string
	Name               string
	Email              string
	PasswordHash       string
	Role               string
	IsActive           bool
	EmailNotifications bool
	Timezone           string
}

type UpdateProfileParams struct {
	Name               *string
	Timezone           *string
	EmailNotifications *bool
}

type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// GetByIDs resolves a batch of user IDs. Unknown IDs are silently
	// omitted from the result.
	GetByIDs(ctx context.Context, ids []string) ([]User, error)
	ListActive(ctx context.Context) ([]User, error)
	Create(ctx context.Context, params CreateParams) (*User, error)
	UpdateProfile(ctx context.Context, id string, params UpdateProfileParams) (*User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
}
