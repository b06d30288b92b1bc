package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherspace/server/internal/auth"
	"github.com/gatherspace/server/internal/domain/registrations"
	"github.com/gatherspace/server/internal/domain/users"
)

func newProfileHandler(usersRepo stubUsersRepo, regsRepo stubRegistrationsRepo) *ProfileHandler {
	return NewProfileHandler(
		users.NewService(usersRepo, testAuditLogger(), zerolog.Nop()),
		registrations.NewService(regsRepo, stubEventsRepo{}, nil, zerolog.Nop()),
	)
}

func TestProfileGet(t *testing.T) {
	usersRepo := stubUsersRepo{
		getFn: func(id string) (*users.User, error) {
			assert.Equal(t, testMemberID, id)
			user := activeUser(testMemberID, "casey@example.com")
			return &user, nil
		},
	}
	handler := newProfileHandler(usersRepo, stubRegistrationsRepo{})

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil), claimsFor(testMemberID, auth.RoleMember))
	rec := httptest.NewRecorder()
	handler.Get(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		ID                 string `json:"id"`
		Email              string `json:"email"`
		Role               string `json:"role"`
		EmailNotifications bool   `json:"email_notifications"`
	}
	decodeData(t, rec, &resp)
	assert.Equal(t, testMemberID, resp.ID)
	assert.Equal(t, "casey@example.com", resp.Email)
	assert.Equal(t, string(auth.RoleMember), resp.Role)
	assert.True(t, resp.EmailNotifications)
}

func TestProfileGetNotFound(t *testing.T) {
	usersRepo := stubUsersRepo{
		getFn: func(id string) (*users.User, error) { return nil, users.ErrNotFound },
	}
	handler := newProfileHandler(usersRepo, stubRegistrationsRepo{})

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil), claimsFor(testMemberID, auth.RoleMember))
	rec := httptest.NewRecorder()
	handler.Get(rec, req)

	requireError(t, rec, http.StatusNotFound, "User not found")
}

func TestProfileUpdate(t *testing.T) {
	var captured users.UpdateProfileParams
	usersRepo := stubUsersRepo{
		updateProfileFn: func(id string, params users.UpdateProfileParams) (*users.User, error) {
			assert.Equal(t, testMemberID, id)
			captured = params
			updated := activeUser(testMemberID, "casey@example.com")
			updated.Name = *params.Name
			updated.Timezone = *params.Timezone
			return &updated, nil
		},
	}
	handler := newProfileHandler(usersRepo, stubRegistrationsRepo{})

	req := asUser(jsonRequest(t, http.MethodPatch, "/api/v1/profile", map[string]any{
		"name":     "Casey Morgan",
		"timezone": "Europe/Berlin",
	}), claimsFor(testMemberID, auth.RoleMember))
	rec := httptest.NewRecorder()
	handler.Update(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, captured.Name)
	assert.Equal(t, "Casey Morgan", *captured.Name)
	require.NotNil(t, captured.Timezone)
	assert.Equal(t, "Europe/Berlin", *captured.Timezone)
	assert.Nil(t, captured.EmailNotifications, "untouched fields stay nil")

	var resp struct {
		Name     string `json:"name"`
		Timezone string `json:"timezone"`
	}
	decodeData(t, rec, &resp)
	assert.Equal(t, "Casey Morgan", resp.Name)
	assert.Equal(t, "Europe/Berlin", resp.Timezone)
}

func TestProfileUpdateInvalidTimezone(t *testing.T) {
	handler := newProfileHandler(stubUsersRepo{}, stubRegistrationsRepo{})

	req := asUser(jsonRequest(t, http.MethodPatch, "/api/v1/profile", map[string]any{
		"timezone": "Mars/Olympus_Mons",
	}), claimsFor(testMemberID, auth.RoleMember))
	rec := httptest.NewRecorder()
	handler.Update(rec, req)

	requireError(t, rec, http.StatusBadRequest, "Invalid timezone")
}

func TestProfileChangePassword(t *testing.T) {
	currentHash, err := auth.HashPassword("old-secret-1")
	require.NoError(t, err)

	var storedHash string
	usersRepo := stubUsersRepo{
		getFn: func(id string) (*users.User, error) {
			user := activeUser(testMemberID, "casey@example.com")
			user.PasswordHash = currentHash
			return &user, nil
		},
		updatePasswordFn: func(id, passwordHash string) error {
			assert.Equal(t, testMemberID, id)
			storedHash = passwordHash
			return nil
		},
	}
	handler := newProfileHandler(usersRepo, stubRegistrationsRepo{})

	req := asUser(jsonRequest(t, http.MethodPost, "/api/v1/profile/password", map[string]any{
		"current_password": "old-secret-1",
		"new_password":     "new-secret-2",
	}), claimsFor(testMemberID, auth.RoleMember))
	rec := httptest.NewRecorder()
	handler.ChangePassword(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, storedHash)
	assert.NotEqual(t, "new-secret-2", storedHash, "plaintext must never reach the repository")
	assert.NoError(t, auth.CheckPassword(storedHash, "new-secret-2"))
}

func TestProfileChangePasswordWrongCurrent(t *testing.T) {
	currentHash, err := auth.HashPassword("old-secret-1")
	require.NoError(t, err)

	usersRepo := stubUsersRepo{
		getFn: func(id string) (*users.User, error) {
			user := activeUser(testMemberID, "casey@example.com")
			user.PasswordHash = currentHash
			return &user, nil
		},
	}
	handler := newProfileHandler(usersRepo, stubRegistrationsRepo{})

	req := asUser(jsonRequest(t, http.MethodPost, "/api/v1/profile/password", map[string]any{
		"current_password": "not-the-old-one",
		"new_password":     "new-secret-2",
	}), claimsFor(testMemberID, auth.RoleMember))
	rec := httptest.NewRecorder()
	handler.ChangePassword(rec, req)

	requireError(t, rec, http.StatusBadRequest, "Current password is incorrect")
}

func TestProfileChangePasswordTooShort(t *testing.T) {
	handler := newProfileHandler(stubUsersRepo{}, stubRegistrationsRepo{})

	req := asUser(jsonRequest(t, http.MethodPost, "/api/v1/profile/password", map[string]any{
		"current_password": "old-secret-1",
		"new_password":     "short",
	}), claimsFor(testMemberID, auth.RoleMember))
	rec := httptest.NewRecorder()
	handler.ChangePassword(rec, req)

	requireError(t, rec, http.StatusBadRequest, "new_password must be at least 8 characters")
}

func TestProfileRegistrations(t *testing.T) {
	regsRepo := stubRegistrationsRepo{
		listByUserFn: func(userID string) ([]registrations.RegistrationWithEvent, error) {
			assert.Equal(t, testMemberID, userID)
			return []registrations.RegistrationWithEvent{{
				Registration: registrations.Registration{
					ID:      testOtherID,
					EventID: testEventID,
					UserID:  testMemberID,
					Role:    "Helper",
					Status:  registrations.StatusConfirmed,
				},
				EventTitle:     "Spring Orientation",
				EventDate:      "2099-05-04",
				EventStartTime: "18:00",
				EventLocation:  "Community Hall",
				EventTimeZone:  "UTC",
				EventStatus:    "upcoming",
			}}, nil
		},
	}
	handler := newProfileHandler(stubUsersRepo{}, regsRepo)

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/profile/registrations", nil), claimsFor(testMemberID, auth.RoleMember))
	rec := httptest.NewRecorder()
	handler.Registrations(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp []struct {
		ID         string `json:"id"`
		EventID    string `json:"event_id"`
		Role       string `json:"role"`
		Status     string `json:"status"`
		EventTitle string `json:"event_title"`
		EventDate  string `json:"event_date"`
	}
	decodeData(t, rec, &resp)
	require.Len(t, resp, 1)
	assert.Equal(t, testEventID, resp[0].EventID)
	assert.Equal(t, "Helper", resp[0].Role)
	assert.Equal(t, registrations.StatusConfirmed, resp[0].Status)
	assert.Equal(t, "Spring Orientation", resp[0].EventTitle)
	assert.Equal(t, "2099-05-04", resp[0].EventDate)
}
