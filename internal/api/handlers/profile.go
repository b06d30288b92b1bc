package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gatherspace/server/internal/api/middleware"
	"github.com/gatherspace/server/internal/api/respond"
	"github.com/gatherspace/server/internal/domain/registrations"
	"github.com/gatherspace/server/internal/domain/users"
)

type ProfileHandler struct {
	Users               *users.Service
	RegistrationService *registrations.Service
}

func NewProfileHandler(userService *users.Service, registrationService *registrations.Service) *ProfileHandler {
	return &ProfileHandler{Users: userService, RegistrationService: registrationService}
}

type profileResponse struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	Role               string     `json:"role"`
	EmailNotifications bool       `json:"email_notifications"`
	Timezone           string     `json:"timezone,omitempty"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func newProfileResponse(user *users.User) profileResponse {
	return profileResponse{
		ID:                 user.ID,
		Name:               user.Name,
		Email:              user.Email,
		Role:               user.Role,
		EmailNotifications: user.EmailNotifications,
		Timezone:           user.Timezone,
		LastLoginAt:        user.LastLoginAt,
		CreatedAt:          user.CreatedAt,
	}
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Users == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	claims := middleware.Claims(r)
	user, err := h.Users.Get(r.Context(), claims.UserID())
	if err != nil {
		writeUserError(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, newProfileResponse(user))
}

type updateProfileRequest struct {
	Name               *string `json:"name" validate:"omitempty,min=1,max=200"`
	Timezone           *string `json:"timezone" validate:"omitempty,max=100"`
	EmailNotifications *bool   `json:"email_notifications"`
}

func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Users == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	claims := middleware.Claims(r)
	user, err := h.Users.UpdateProfile(r.Context(), claims.UserID(), users.UpdateProfileParams{
		Name:               req.Name,
		Timezone:           req.Timezone,
		EmailNotifications: req.EmailNotifications,
	})
	if err != nil {
		writeUserError(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, newProfileResponse(user))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

func (h *ProfileHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Users == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	claims := middleware.Claims(r)
	if err := h.Users.ChangePassword(r.Context(), claims.UserID(), req.CurrentPassword, req.NewPassword); err != nil {
		writeUserError(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, nil)
}

type profileRegistrationResponse struct {
	registrationResponse
	EventTitle     string `json:"event_title"`
	EventDate      string `json:"event_date"`
	EventStartTime string `json:"event_start_time"`
	EventLocation  string `json:"event_location,omitempty"`
	EventTimeZone  string `json:"event_time_zone"`
	EventStatus    string `json:"event_status"`
}

// Registrations lists the caller's sign-up history with event summaries.
func (h *ProfileHandler) Registrations(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.RegistrationService == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	claims := middleware.Claims(r)
	rows, err := h.RegistrationService.ListByUser(r.Context(), claims.UserID())
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "", err)
		return
	}

	items := make([]profileRegistrationResponse, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		items = append(items, profileRegistrationResponse{
			registrationResponse: newRegistrationResponse(&row.Registration),
			EventTitle:           row.EventTitle,
			EventDate:            row.EventDate,
			EventStartTime:       row.EventStartTime,
			EventLocation:        row.EventLocation,
			EventTimeZone:        row.EventTimeZone,
			EventStatus:          row.EventStatus,
		})
	}
	respond.JSON(w, http.StatusOK, items)
}

func writeUserError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, users.ErrNotFound):
		respond.Error(w, r, http.StatusNotFound, "User not found", err)
	case errors.Is(err, users.ErrWrongPassword):
		respond.Error(w, r, http.StatusBadRequest, "Current password is incorrect", err)
	case errors.Is(err, users.ErrInvalidTimezone):
		respond.Error(w, r, http.StatusBadRequest, "Invalid timezone", err)
	case errors.Is(err, users.ErrInactive):
		respond.Error(w, r, http.StatusForbidden, "Account is inactive", err)
	default:
		respond.Error(w, r, http.StatusInternalServerError, "", err)
	}
}
