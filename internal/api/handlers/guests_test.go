package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherspace/server/internal/auth"
	"github.com/gatherspace/server/internal/domain/events"
	"github.com/gatherspace/server/internal/domain/messages"
	"github.com/gatherspace/server/internal/domain/registrations"
	"github.com/gatherspace/server/internal/domain/users"
)

func newGuestsFixture(eventsRepo stubEventsRepo, regsRepo stubRegistrationsRepo, usersRepo stubUsersRepo, msgRepo stubMessagesRepo, emailer *recordingEmailer) *GuestsHandler {
	eventService := events.NewService(eventsRepo, nil, zerolog.Nop())
	return NewGuestsHandler(
		registrations.NewService(regsRepo, eventsRepo, nil, zerolog.Nop()),
		eventService,
		users.NewService(usersRepo, testAuditLogger(), zerolog.Nop()),
		newTestOrchestrator(msgRepo, usersRepo, emailer),
		emailer,
	)
}

func TestGuestSignup(t *testing.T) {
	eventsRepo := stubEventsRepo{
		getFn: func(id string) (*events.Event, error) { return upcomingEvent(), nil },
	}
	var created registrations.GuestCreateParams
	regsRepo := stubRegistrationsRepo{
		findActiveGuestFn: func(eventID, address, role string) (*registrations.GuestRegistration, error) {
			return nil, registrations.ErrNotFound
		},
		countActiveForRoleFn: func(eventID, role string) (int, error) { return 0, nil },
		createGuestFn: func(params registrations.GuestCreateParams) (*registrations.GuestRegistration, error) {
			created = params
			return &registrations.GuestRegistration{
				ID:        testGuestID,
				EventID:   params.EventID,
				Name:      params.Name,
				Email:     params.Email,
				Phone:     params.Phone,
				Role:      params.Role,
				Status:    params.Status,
				CreatedAt: time.Now(),
			}, nil
		},
	}
	emailer := &recordingEmailer{}
	handler := newGuestsFixture(eventsRepo, regsRepo, stubUsersRepo{}, stubMessagesRepo{}, emailer)

	req := jsonRequest(t, http.MethodPost, "/api/v1/events/"+testEventID+"/guest-signup", map[string]any{
		"name":  "Casey Park",
		"email": "Casey@Example.com",
		"role":  "Helper",
	})
	req.SetPathValue("id", testEventID)
	rec := httptest.NewRecorder()
	handler.Signup(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "casey@example.com", created.Email, "guest email is normalized before storage")
	assert.Equal(t, registrations.GuestStatusActive, created.Status)

	var resp struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	decodeData(t, rec, &resp)
	assert.Equal(t, testGuestID, resp.ID)
	assert.Equal(t, "Helper", resp.Role)

	require.Len(t, emailer.confirmations, 1)
	confirmation := emailer.confirmations[0]
	assert.Equal(t, "casey@example.com", confirmation.To)
	assert.Equal(t, "Spring Orientation", confirmation.Data.EventTitle)
	assert.Equal(t, "Casey Park", confirmation.Data.Name)
	assert.Equal(t, "Helper", confirmation.Data.Role)
}

func TestGuestSignupValidation(t *testing.T) {
	handler := newGuestsFixture(stubEventsRepo{}, stubRegistrationsRepo{}, stubUsersRepo{}, stubMessagesRepo{}, &recordingEmailer{})

	tests := []struct {
		name    string
		body    map[string]any
		message string
	}{
		{"missing name", map[string]any{"email": "casey@example.com", "role": "Helper"}, "name is required"},
		{"missing email", map[string]any{"name": "Casey Park", "role": "Helper"}, "email is required"},
		{"bad email", map[string]any{"name": "Casey Park", "email": "not-an-address", "role": "Helper"}, "email must be a valid email address"},
		{"missing role", map[string]any{"name": "Casey Park", "email": "casey@example.com"}, "role is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := jsonRequest(t, http.MethodPost, "/api/v1/events/"+testEventID+"/guest-signup", tt.body)
			req.SetPathValue("id", testEventID)
			rec := httptest.NewRecorder()
			handler.Signup(rec, req)
			requireError(t, rec, http.StatusBadRequest, tt.message)
		})
	}
}

func TestGuestSignupDuplicate(t *testing.T) {
	eventsRepo := stubEventsRepo{
		getFn: func(id string) (*events.Event, error) { return upcomingEvent(), nil },
	}
	regsRepo := stubRegistrationsRepo{
		findActiveGuestFn: func(eventID, address, role string) (*registrations.GuestRegistration, error) {
			return &registrations.GuestRegistration{ID: testGuestID, Status: registrations.GuestStatusActive}, nil
		},
		countActiveForRoleFn: func(eventID, role string) (int, error) { return 0, nil },
	}
	handler := newGuestsFixture(eventsRepo, regsRepo, stubUsersRepo{}, stubMessagesRepo{}, &recordingEmailer{})

	req := jsonRequest(t, http.MethodPost, "/api/v1/events/"+testEventID+"/guest-signup", map[string]any{
		"name":  "Casey Park",
		"email": "casey@example.com",
		"role":  "Helper",
	})
	req.SetPathValue("id", testEventID)
	rec := httptest.NewRecorder()
	handler.Signup(rec, req)

	requireError(t, rec, http.StatusBadRequest, "Already registered for this role")
}

func TestGuestSignupSurvivesEmailFailure(t *testing.T) {
	eventsRepo := stubEventsRepo{
		getFn: func(id string) (*events.Event, error) { return upcomingEvent(), nil },
	}
	regsRepo := stubRegistrationsRepo{
		findActiveGuestFn: func(eventID, address, role string) (*registrations.GuestRegistration, error) {
			return nil, registrations.ErrNotFound
		},
		countActiveForRoleFn: func(eventID, role string) (int, error) { return 0, nil },
		createGuestFn: func(params registrations.GuestCreateParams) (*registrations.GuestRegistration, error) {
			return &registrations.GuestRegistration{ID: testGuestID, EventID: params.EventID, Email: params.Email, Role: params.Role, Status: params.Status}, nil
		},
	}
	emailer := &recordingEmailer{err: errors.New("smtp unreachable")}
	handler := newGuestsFixture(eventsRepo, regsRepo, stubUsersRepo{}, stubMessagesRepo{}, emailer)

	req := jsonRequest(t, http.MethodPost, "/api/v1/events/"+testEventID+"/guest-signup", map[string]any{
		"name":  "Casey Park",
		"email": "casey@example.com",
		"role":  "Helper",
	})
	req.SetPathValue("id", testEventID)
	rec := httptest.NewRecorder()
	handler.Signup(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, "a failed confirmation email must not fail the sign-up")
}

func TestGuestMigrate(t *testing.T) {
	conflictEventID := testOtherID
	usersRepo := stubUsersRepo{
		getFn: func(id string) (*users.User, error) {
			user := activeUser(testMemberID, "casey@example.com")
			return &user, nil
		},
		getByIDsFn: func(ids []string) ([]users.User, error) {
			return []users.User{activeUser(testMemberID, "casey@example.com")}, nil
		},
	}
	var migrated []string
	regsRepo := stubRegistrationsRepo{
		listGuestsByEmailFn: func(address string) ([]registrations.GuestRegistration, error) {
			assert.Equal(t, "casey@example.com", address)
			return []registrations.GuestRegistration{
				{ID: testGuestID, EventID: testEventID, Role: "Helper", Status: registrations.GuestStatusActive},
				{ID: testProgramID, EventID: conflictEventID, Role: "Greeter", Status: registrations.GuestStatusActive},
			}, nil
		},
		findActiveFn: func(eventID, userID, role string) (*registrations.Registration, error) {
			if eventID == conflictEventID {
				return &registrations.Registration{ID: testMessageID, Status: registrations.StatusConfirmed}, nil
			}
			return nil, registrations.ErrNotFound
		},
		migrateGuestFn: func(guestID string, params registrations.CreateParams) error {
			migrated = append(migrated, guestID)
			assert.Equal(t, testMemberID, params.UserID)
			assert.Equal(t, registrations.StatusConfirmed, params.Status)
			return nil
		},
	}
	var noticeKind string
	msgRepo := stubMessagesRepo{
		createWithStatesFn: func(params messages.CreateParams, recipientIDs []string) (*messages.SystemMessage, error) {
			noticeKind = params.Kind
			assert.Equal(t, []string{testMemberID}, recipientIDs)
			return &messages.SystemMessage{ID: testMessageID, Kind: params.Kind, Title: params.Title, CreatedAt: time.Now()}, nil
		},
	}
	handler := newGuestsFixture(stubEventsRepo{}, regsRepo, usersRepo, msgRepo, &recordingEmailer{})

	req := asUser(jsonRequest(t, http.MethodPost, "/api/v1/profile/migrate-guests", nil), claimsFor(testMemberID, auth.RoleMember))
	rec := httptest.NewRecorder()
	handler.Migrate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{testGuestID}, migrated)
	assert.Equal(t, messages.KindGuestMigrated, noticeKind)

	var resp struct {
		Migrated []string `json:"migrated"`
		Skipped  []string `json:"skipped"`
	}
	decodeData(t, rec, &resp)
	assert.Equal(t, []string{testGuestID}, resp.Migrated)
	assert.Equal(t, []string{testProgramID}, resp.Skipped)
}

func TestGuestMigrateNothingToDo(t *testing.T) {
	usersRepo := stubUsersRepo{
		getFn: func(id string) (*users.User, error) {
			user := activeUser(testMemberID, "casey@example.com")
			return &user, nil
		},
	}
	regsRepo := stubRegistrationsRepo{
		listGuestsByEmailFn: func(address string) ([]registrations.GuestRegistration, error) { return nil, nil },
	}
	handler := newGuestsFixture(stubEventsRepo{}, regsRepo, usersRepo, stubMessagesRepo{}, &recordingEmailer{})

	req := asUser(jsonRequest(t, http.MethodPost, "/api/v1/profile/migrate-guests", nil), claimsFor(testMemberID, auth.RoleMember))
	rec := httptest.NewRecorder()
	handler.Migrate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Migrated []string `json:"migrated"`
		Skipped  []string `json:"skipped"`
	}
	decodeData(t, rec, &resp)
	assert.Empty(t, resp.Migrated)
	assert.Empty(t, resp.Skipped)
}
