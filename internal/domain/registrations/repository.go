package registrations

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("registration not found")

// Registration statuses. A cancelled row stays around for member history.
const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Guest registration statuses. Migrated rows keep a pointer to the user
// registration that replaced them.
const (
	GuestStatusActive    = "active"
	GuestStatusMigrated  = "migrated"
	GuestStatusCancelled = "cancelled"
)

type Registration struct {
	ID        string
	EventID   string
	UserID    string
	Role      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type GuestRegistration struct {
	ID             string
	EventID        string
	Name           string
	Email          string
	Phone          string
	Role           string
	Status         string
	MigratedUserID *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RegistrationWithEvent pairs a member's registration with enough of the
// event to render a history line without a second lookup.
type RegistrationWithEvent struct {
	Registration
	EventTitle     string
	EventDate      string
	EventStartTime string
	EventLocation  string
	EventTimeZone  string
	EventStatus    string
}

type CreateParams struct {
	ID      string
	EventID string
	UserID  string
	Role    string
	Status  string
}

type GuestCreateParams struct {
	ID      string
	EventID string
	Name    string
	Email   string
	Phone   string
	Role    string
	Status  string
}

type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Registration, error)
	// FindActive returns the confirmed registration for (event, user, role),
	// or ErrNotFound.
	FindActive(ctx context.Context, eventID, userID, role string) (*Registration, error)
	// Cancel marks the active registration cancelled, ErrNotFound when the
	// user holds none for that role.
	Cancel(ctx context.Context, eventID, userID, role string) error
	ListByEvent(ctx context.Context, eventID string) ([]Registration, error)
	ListByUser(ctx context.Context, userID string) ([]RegistrationWithEvent, error)
	// ActiveUserIDs returns the distinct users holding a confirmed
	// registration on the event, in first-registered order.
	ActiveUserIDs(ctx context.Context, eventID string) ([]string, error)
	// CountActiveForRole counts confirmed user registrations plus active
	// guest registrations for one role, the number capacity is checked
	// against.
	CountActiveForRole(ctx context.Context, eventID, role string) (int, error)
	CountsByRole(ctx context.Context, eventID string) (map[string]int, error)

	CreateGuest(ctx context.Context, params GuestCreateParams) (*GuestRegistration, error)
	FindActiveGuest(ctx context.Context, eventID, email, role string) (*GuestRegistration, error)
	ListActiveGuestsByEmail(ctx context.Context, email string) ([]GuestRegistration, error)
	ListGuestsByEvent(ctx context.Context, eventID string) ([]GuestRegistration, error)
	// MigrateGuest converts one guest row into a user registration in a
	// single transaction: the new registration is inserted and the guest
	// row is marked migrated with a pointer to the user.
	MigrateGuest(ctx context.Context, guestID string, params CreateParams) error
}
