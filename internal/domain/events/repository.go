package events

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("event not found")

// ErrProgramNotFound is returned when an event references a program that
// does not exist.
var ErrProgramNotFound = errors.New("program not found")

// Status values derived from an event's schedule. Stored copies exist only
// so lists can filter without recomputing; the status updater keeps them
// in sync.
const (
	StatusUpcoming  = "upcoming"
	StatusOngoing   = "ongoing"
	StatusCompleted = "completed"
)

type Event struct {
	ID             string
	Title          string
	Description    string
	Location       string
	ProgramID      *string
	OrganizerID    string
	Date           string // YYYY-MM-DD
	StartTime      string // HH:MM, 24h clock
	EndDate        *string
	EndTime        *string
	TimeZone       string // IANA name
	Status         string
	ReminderSentAt *time.Time
	Roles          []Role
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Role is a named sign-up slot on an event. Capacity 0 means unlimited.
type Role struct {
	Name     string
	Capacity int
}

type CreateParams struct {
	ID          string
	Title       string
	Description string
	Location    string
	ProgramID   *string
	OrganizerID string
	Date        string
	StartTime   string
	EndDate     *string
	EndTime     *string
	TimeZone    string
	Status      string
	Roles       []Role
}

// UpdateParams carries a partial update. Nil fields are left unchanged;
// for EndDate, EndTime and ProgramID an empty string clears the value.
type UpdateParams struct {
	Title       *string
	Description *string
	Location    *string
	ProgramID   *string
	Date        *string
	StartTime   *string
	EndDate     *string
	EndTime     *string
	TimeZone    *string
	Status      *string
	Roles       []Role
}

type Filters struct {
	Status    string
	ProgramID string
	From      *time.Time
	To        *time.Time
	Query     string
}

type Pagination struct {
	Limit int
	After string
}

type ListResult struct {
	Events     []Event
	NextCursor string
}

type Repository interface {
	List(ctx context.Context, filters Filters, pagination Pagination) (ListResult, error)
	GetByID(ctx context.Context, id string) (*Event, error)
	Create(ctx context.Context, params CreateParams) (*Event, error)
	Update(ctx context.Context, id string, params UpdateParams) (*Event, error)
	// Delete hides the event and cancels its active registrations in one
	// transaction. Cancelled registrations survive for member history.
	Delete(ctx context.Context, id string) error
	// ListAll returns every visible event without roles, for the status
	// sweep.
	ListAll(ctx context.Context) ([]Event, error)
	UpdateStatus(ctx context.Context, id string, status string) error
	// ListUpcomingWithoutReminder returns upcoming events whose reminder
	// has not gone out, without roles.
	ListUpcomingWithoutReminder(ctx context.Context) ([]Event, error)
	MarkReminderSent(ctx context.Context, id string, at time.Time) error
}
