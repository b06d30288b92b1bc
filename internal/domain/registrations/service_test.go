package registrations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gatherspace/server/internal/domain/events"
)

type stubRegsRepo struct {
	createFn          func(params CreateParams) (*Registration, error)
	findActiveFn      func(eventID, userID, role string) (*Registration, error)
	cancelFn          func(eventID, userID, role string) error
	listByEventFn     func(eventID string) ([]Registration, error)
	listByUserFn      func(userID string) ([]RegistrationWithEvent, error)
	activeUserIDsFn   func(eventID string) ([]string, error)
	countForRoleFn    func(eventID, role string) (int, error)
	countsByRoleFn    func(eventID string) (map[string]int, error)
	createGuestFn     func(params GuestCreateParams) (*GuestRegistration, error)
	findActiveGuestFn func(eventID, email, role string) (*GuestRegistration, error)
	listGuestsEmailFn func(email string) ([]GuestRegistration, error)
	listGuestsEventFn func(eventID string) ([]GuestRegistration, error)
	migrateGuestFn    func(guestID string, params CreateParams) error
}

func (s stubRegsRepo) Create(_ context.Context, params CreateParams) (*Registration, error) {
	if s.createFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.createFn(params)
}

func (s stubRegsRepo) FindActive(_ context.Context, eventID, userID, role string) (*Registration, error) {
	if s.findActiveFn == nil {
		return nil, ErrNotFound
	}
	return s.findActiveFn(eventID, userID, role)
}

func (s stubRegsRepo) Cancel(_ context.Context, eventID, userID, role string) error {
	if s.cancelFn == nil {
		return errors.New("not implemented")
	}
	return s.cancelFn(eventID, userID, role)
}

func (s stubRegsRepo) ListByEvent(_ context.Context, eventID string) ([]Registration, error) {
	if s.listByEventFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.listByEventFn(eventID)
}

func (s stubRegsRepo) ListByUser(_ context.Context, userID string) ([]RegistrationWithEvent, error) {
	if s.listByUserFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.listByUserFn(userID)
}

func (s stubRegsRepo) ActiveUserIDs(_ context.Context, eventID string) ([]string, error) {
	if s.activeUserIDsFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.activeUserIDsFn(eventID)
}

func (s stubRegsRepo) CountActiveForRole(_ context.Context, eventID, role string) (int, error) {
	if s.countForRoleFn == nil {
		return 0, errors.New("not implemented")
	}
	return s.countForRoleFn(eventID, role)
}

func (s stubRegsRepo) CountsByRole(_ context.Context, eventID string) (map[string]int, error) {
	if s.countsByRoleFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.countsByRoleFn(eventID)
}

func (s stubRegsRepo) CreateGuest(_ context.Context, params GuestCreateParams) (*GuestRegistration, error) {
	if s.createGuestFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.createGuestFn(params)
}

func (s stubRegsRepo) FindActiveGuest(_ context.Context, eventID, email, role string) (*GuestRegistration, error) {
	if s.findActiveGuestFn == nil {
		return nil, ErrNotFound
	}
	return s.findActiveGuestFn(eventID, email, role)
}

func (s stubRegsRepo) ListActiveGuestsByEmail(_ context.Context, email string) ([]GuestRegistration, error) {
	if s.listGuestsEmailFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.listGuestsEmailFn(email)
}

func (s stubRegsRepo) ListGuestsByEvent(_ context.Context, eventID string) ([]GuestRegistration, error) {
	if s.listGuestsEventFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.listGuestsEventFn(eventID)
}

func (s stubRegsRepo) MigrateGuest(_ context.Context, guestID string, params CreateParams) error {
	if s.migrateGuestFn == nil {
		return errors.New("not implemented")
	}
	return s.migrateGuestFn(guestID, params)
}

type stubEventsStore struct {
	getFn func(id string) (*events.Event, error)
}

func (s stubEventsStore) GetByID(_ context.Context, id string) (*events.Event, error) {
	if s.getFn == nil {
		return nil, events.ErrNotFound
	}
	return s.getFn(id)
}

func (s stubEventsStore) List(_ context.Context, _ events.Filters, _ events.Pagination) (events.ListResult, error) {
	return events.ListResult{}, errors.New("not implemented")
}

func (s stubEventsStore) Create(_ context.Context, _ events.CreateParams) (*events.Event, error) {
	return nil, errors.New("not implemented")
}

func (s stubEventsStore) Update(_ context.Context, _ string, _ events.UpdateParams) (*events.Event, error) {
	return nil, errors.New("not implemented")
}

func (s stubEventsStore) Delete(_ context.Context, _ string) error {
	return errors.New("not implemented")
}

func (s stubEventsStore) ListAll(_ context.Context) ([]events.Event, error) {
	return nil, errors.New("not implemented")
}

func (s stubEventsStore) UpdateStatus(_ context.Context, _ string, _ string) error {
	return errors.New("not implemented")
}

func (s stubEventsStore) ListUpcomingWithoutReminder(_ context.Context) ([]events.Event, error) {
	return nil, errors.New("not implemented")
}

func (s stubEventsStore) MarkReminderSent(_ context.Context, _ string, _ time.Time) error {
	return errors.New("not implemented")
}

func futureEvent(roles ...events.Role) *events.Event {
	return &events.Event{
		ID:        "evt-1",
		Title:     "Community Picnic",
		Date:      "2030-06-15",
		StartTime: "12:00",
		TimeZone:  "UTC",
		Status:    events.StatusUpcoming,
		Roles:     roles,
	}
}

func newRegsService(repo Repository, store events.Repository) *Service {
	return NewService(repo, store, nil, zerolog.Nop())
}

func TestRegister(t *testing.T) {
	var captured CreateParams
	repo := stubRegsRepo{
		createFn: func(params CreateParams) (*Registration, error) {
			captured = params
			return &Registration{ID: params.ID, EventID: params.EventID, Role: params.Role, Status: params.Status}, nil
		},
	}
	eventsRepo := stubEventsStore{
		getFn: func(_ string) (*events.Event, error) {
			return futureEvent(events.Role{Name: "Volunteer", Capacity: 0}), nil
		},
	}

	registration, err := newRegsService(repo, eventsRepo).Register(context.Background(), "evt-1", "user-1", "volunteer")

	require.NoError(t, err)
	require.Equal(t, "Volunteer", captured.Role)
	require.Equal(t, StatusConfirmed, captured.Status)
	require.Equal(t, "user-1", captured.UserID)
	require.Equal(t, StatusConfirmed, registration.Status)
}

func TestRegisterEventNotFound(t *testing.T) {
	svc := newRegsService(stubRegsRepo{}, stubEventsStore{})

	_, err := svc.Register(context.Background(), "missing", "user-1", "Volunteer")

	require.ErrorIs(t, err, events.ErrNotFound)
}

func TestRegisterCompletedEvent(t *testing.T) {
	eventsRepo := stubEventsStore{
		getFn: func(_ string) (*events.Event, error) {
			// Stored status lags behind; derivation must still reject.
			return &events.Event{
				ID: "evt-1", Date: "2020-01-10", StartTime: "12:00",
				TimeZone: "UTC", Status: events.StatusUpcoming,
				Roles: []events.Role{{Name: "Volunteer"}},
			}, nil
		},
	}

	_, err := newRegsService(stubRegsRepo{}, eventsRepo).Register(context.Background(), "evt-1", "user-1", "Volunteer")

	require.ErrorIs(t, err, ErrEventCompleted)
}

func TestRegisterRoleNotOffered(t *testing.T) {
	eventsRepo := stubEventsStore{
		getFn: func(_ string) (*events.Event, error) {
			return futureEvent(events.Role{Name: "Volunteer"}), nil
		},
	}

	_, err := newRegsService(stubRegsRepo{}, eventsRepo).Register(context.Background(), "evt-1", "user-1", "Speaker")

	require.ErrorIs(t, err, ErrRoleNotOffered)
}

func TestRegisterDuplicate(t *testing.T) {
	repo := stubRegsRepo{
		findActiveFn: func(_, _, _ string) (*Registration, error) {
			return &Registration{ID: "existing", Status: StatusConfirmed}, nil
		},
	}
	eventsRepo := stubEventsStore{
		getFn: func(_ string) (*events.Event, error) {
			return futureEvent(events.Role{Name: "Volunteer"}), nil
		},
	}

	_, err := newRegsService(repo, eventsRepo).Register(context.Background(), "evt-1", "user-1", "Volunteer")

	require.ErrorIs(t, err, ErrDuplicate)
}

func TestRegisterCapacityFull(t *testing.T) {
	repo := stubRegsRepo{
		countForRoleFn: func(_, _ string) (int, error) {
			return 2, nil
		},
	}
	eventsRepo := stubEventsStore{
		getFn: func(_ string) (*events.Event, error) {
			return futureEvent(events.Role{Name: "Volunteer", Capacity: 2}), nil
		},
	}

	_, err := newRegsService(repo, eventsRepo).Register(context.Background(), "evt-1", "user-1", "Volunteer")

	require.ErrorIs(t, err, ErrCapacityFull)
}

func TestRegisterUnlimitedCapacitySkipsCount(t *testing.T) {
	// countForRoleFn is unset: a call would fail the test.
	repo := stubRegsRepo{
		createFn: func(params CreateParams) (*Registration, error) {
			return &Registration{ID: params.ID, Status: params.Status}, nil
		},
	}
	eventsRepo := stubEventsStore{
		getFn: func(_ string) (*events.Event, error) {
			return futureEvent(events.Role{Name: "Volunteer", Capacity: 0}), nil
		},
	}

	_, err := newRegsService(repo, eventsRepo).Register(context.Background(), "evt-1", "user-1", "Volunteer")

	require.NoError(t, err)
}

func TestCancelNotRegistered(t *testing.T) {
	repo := stubRegsRepo{
		cancelFn: func(_, _, _ string) error {
			return ErrNotFound
		},
	}

	err := newRegsService(repo, stubEventsStore{}).Cancel(context.Background(), "evt-1", "user-1", "Volunteer")

	require.ErrorIs(t, err, ErrNotFound)
}

func TestGuestSignup(t *testing.T) {
	var captured GuestCreateParams
	repo := stubRegsRepo{
		createGuestFn: func(params GuestCreateParams) (*GuestRegistration, error) {
			captured = params
			return &GuestRegistration{ID: params.ID, Email: params.Email, Status: params.Status}, nil
		},
	}
	eventsRepo := stubEventsStore{
		getFn: func(_ string) (*events.Event, error) {
			return futureEvent(events.Role{Name: "Volunteer", Capacity: 10}), nil
		},
	}
	repo.countForRoleFn = func(_, _ string) (int, error) { return 3, nil }

	guest, err := newRegsService(repo, eventsRepo).GuestSignup(context.Background(), "evt-1", GuestSignupInput{
		Name:  "<b>Dana</b> Flores",
		Email: " Dana.Flores@Example.COM ",
		Phone: "555-0101",
		Role:  "volunteer",
	})

	require.NoError(t, err)
	require.Equal(t, "Dana Flores", captured.Name)
	require.Equal(t, "dana.flores@example.com", captured.Email)
	require.Equal(t, "Volunteer", captured.Role)
	require.Equal(t, GuestStatusActive, captured.Status)
	require.Equal(t, GuestStatusActive, guest.Status)
}

func TestGuestSignupDuplicate(t *testing.T) {
	repo := stubRegsRepo{
		findActiveGuestFn: func(_, _, _ string) (*GuestRegistration, error) {
			return &GuestRegistration{ID: "existing"}, nil
		},
	}
	eventsRepo := stubEventsStore{
		getFn: func(_ string) (*events.Event, error) {
			return futureEvent(events.Role{Name: "Volunteer"}), nil
		},
	}

	_, err := newRegsService(repo, eventsRepo).GuestSignup(context.Background(), "evt-1", GuestSignupInput{
		Name:  "Dana",
		Email: "dana@example.com",
		Role:  "Volunteer",
	})

	require.ErrorIs(t, err, ErrDuplicate)
}

func TestGuestSignupRequiresName(t *testing.T) {
	eventsRepo := stubEventsStore{
		getFn: func(_ string) (*events.Event, error) {
			return futureEvent(events.Role{Name: "Volunteer"}), nil
		},
	}

	_, err := newRegsService(stubRegsRepo{}, eventsRepo).GuestSignup(context.Background(), "evt-1", GuestSignupInput{
		Name:  "<p></p>",
		Email: "dana@example.com",
		Role:  "Volunteer",
	})

	require.ErrorIs(t, err, ErrNameRequired)
}

func TestMigrateGuests(t *testing.T) {
	migrated := map[string]CreateParams{}
	repo := stubRegsRepo{
		listGuestsEmailFn: func(email string) ([]GuestRegistration, error) {
			require.Equal(t, "dana@example.com", email)
			return []GuestRegistration{
				{ID: "guest-1", EventID: "evt-1", Role: "Volunteer", Email: email},
				{ID: "guest-2", EventID: "evt-2", Role: "Attendee", Email: email},
			}, nil
		},
		findActiveFn: func(eventID, _, _ string) (*Registration, error) {
			if eventID == "evt-1" {
				return &Registration{ID: "already-there", Status: StatusConfirmed}, nil
			}
			return nil, ErrNotFound
		},
		migrateGuestFn: func(guestID string, params CreateParams) error {
			migrated[guestID] = params
			return nil
		},
	}

	result, err := newRegsService(repo, stubEventsStore{}).MigrateGuests(context.Background(), "user-1", "Dana@Example.com")

	require.NoError(t, err)
	require.Equal(t, []string{"guest-2"}, result.Migrated)
	require.Equal(t, []string{"guest-1"}, result.Skipped)
	require.Len(t, migrated, 1)
	require.Equal(t, "user-1", migrated["guest-2"].UserID)
	require.Equal(t, "Attendee", migrated["guest-2"].Role)
	require.Equal(t, StatusConfirmed, migrated["guest-2"].Status)
}

func TestMigrateGuestsNothingToDo(t *testing.T) {
	repo := stubRegsRepo{
		listGuestsEmailFn: func(_ string) ([]GuestRegistration, error) {
			return nil, nil
		},
	}

	result, err := newRegsService(repo, stubEventsStore{}).MigrateGuests(context.Background(), "user-1", "dana@example.com")

	require.NoError(t, err)
	require.Empty(t, result.Migrated)
	require.Empty(t, result.Skipped)
}
