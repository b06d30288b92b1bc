package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gatherspace/server/internal/api/middleware"
	"github.com/gatherspace/server/internal/api/respond"
	"github.com/gatherspace/server/internal/auth"
	"github.com/gatherspace/server/internal/domain/events"
	"github.com/gatherspace/server/internal/domain/messages"
	"github.com/gatherspace/server/internal/domain/registrations"
	"github.com/gatherspace/server/internal/notify"
)

type EventsHandler struct {
	Events        *events.Service
	Registrations *registrations.Service
	Notifier      *notify.Orchestrator
	Enqueue       NotifyEnqueuer
}

func NewEventsHandler(eventService *events.Service, registrationService *registrations.Service, notifier *notify.Orchestrator, enqueue NotifyEnqueuer) *EventsHandler {
	return &EventsHandler{
		Events:        eventService,
		Registrations: registrationService,
		Notifier:      notifier,
		Enqueue:       enqueue,
	}
}

type eventRoleRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Capacity int    `json:"capacity" validate:"min=0"`
}

type createEventRequest struct {
	Title       string             `json:"title" validate:"required,max=200"`
	Description string             `json:"description"`
	Location    string             `json:"location" validate:"max=300"`
	ProgramID   string             `json:"program_id"`
	Date        string             `json:"date" validate:"required"`
	StartTime   string             `json:"start_time" validate:"required"`
	EndDate     string             `json:"end_date"`
	EndTime     string             `json:"end_time"`
	TimeZone    string             `json:"time_zone"`
	Roles       []eventRoleRequest `json:"roles" validate:"dive"`
}

type updateEventRequest struct {
	Title       *string            `json:"title" validate:"omitempty,max=200"`
	Description *string            `json:"description"`
	Location    *string            `json:"location" validate:"omitempty,max=300"`
	ProgramID   *string            `json:"program_id"`
	Date        *string            `json:"date"`
	StartTime   *string            `json:"start_time"`
	EndDate     *string            `json:"end_date"`
	EndTime     *string            `json:"end_time"`
	TimeZone    *string            `json:"time_zone"`
	Roles       []eventRoleRequest `json:"roles" validate:"omitempty,dive"`
}

type eventRoleResponse struct {
	Name      string `json:"name"`
	Capacity  int    `json:"capacity"`
	Confirmed *int   `json:"confirmed,omitempty"`
}

type eventResponse struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Location    string              `json:"location"`
	ProgramID   *string             `json:"program_id,omitempty"`
	OrganizerID string              `json:"organizer_id"`
	Date        string              `json:"date"`
	StartTime   string              `json:"start_time"`
	EndDate     *string             `json:"end_date,omitempty"`
	EndTime     *string             `json:"end_time,omitempty"`
	TimeZone    string              `json:"time_zone"`
	Status      string              `json:"status"`
	Roles       []eventRoleResponse `json:"roles"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

type eventListResponse struct {
	Events     []eventResponse `json:"events"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func newEventResponse(event *events.Event) eventResponse {
	roles := make([]eventRoleResponse, 0, len(event.Roles))
	for _, role := range event.Roles {
		roles = append(roles, eventRoleResponse{Name: role.Name, Capacity: role.Capacity})
	}
	return eventResponse{
		ID:          event.ID,
		Title:       event.Title,
		Description: event.Description,
		Location:    event.Location,
		ProgramID:   event.ProgramID,
		OrganizerID: event.OrganizerID,
		Date:        event.Date,
		StartTime:   event.StartTime,
		EndDate:     event.EndDate,
		EndTime:     event.EndTime,
		TimeZone:    event.TimeZone,
		Status:      event.Status,
		Roles:       roles,
		CreatedAt:   event.CreatedAt,
		UpdatedAt:   event.UpdatedAt,
	}
}

func newEventDetailResponse(event *events.Event, confirmed map[string]int) eventResponse {
	resp := newEventResponse(event)
	for i := range resp.Roles {
		count := confirmed[resp.Roles[i].Name]
		resp.Roles[i].Confirmed = &count
	}
	return resp
}

func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Events == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	filters, pagination, err := events.ParseFilters(r.URL.Query())
	if err != nil {
		respond.Error(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	result, err := h.Events.List(r.Context(), filters, pagination)
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "", err)
		return
	}

	items := make([]eventResponse, 0, len(result.Events))
	for i := range result.Events {
		items = append(items, newEventResponse(&result.Events[i]))
	}
	respond.JSON(w, http.StatusOK, eventListResponse{Events: items, NextCursor: result.NextCursor})
}

func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Events == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	var req createEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	claims := middleware.Claims(r)
	event, err := h.Events.Create(r.Context(), claims.UserID(), events.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		ProgramID:   req.ProgramID,
		Date:        req.Date,
		StartTime:   req.StartTime,
		EndDate:     req.EndDate,
		EndTime:     req.EndTime,
		TimeZone:    req.TimeZone,
		Roles:       rolesFromRequest(req.Roles),
	})
	if err != nil {
		writeEventError(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, newEventResponse(event))
}

func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Events == nil || h.Registrations == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	id, ok := pathULID(w, r, "id")
	if !ok {
		return
	}

	event, err := h.Events.Get(r.Context(), id)
	if err != nil {
		writeEventError(w, r, err)
		return
	}

	confirmed, err := h.Registrations.CountsByRole(r.Context(), id)
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "", err)
		return
	}

	respond.JSON(w, http.StatusOK, newEventDetailResponse(event, confirmed))
}

func (h *EventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Events == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	id, ok := pathULID(w, r, "id")
	if !ok {
		return
	}

	var req updateEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	claims := middleware.Claims(r)
	input := events.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		ProgramID:   req.ProgramID,
		Date:        req.Date,
		StartTime:   req.StartTime,
		EndDate:     req.EndDate,
		EndTime:     req.EndTime,
		TimeZone:    req.TimeZone,
	}
	if req.Roles != nil {
		input.Roles = rolesFromRequest(req.Roles)
	}

	event, scheduleChanged, err := h.Events.Update(r.Context(), id, claims.UserID(), claims.Role, input)
	if err != nil {
		writeEventError(w, r, err)
		return
	}

	if scheduleChanged {
		h.notifyRegistrants(r.Context(), event, claims.UserID(), messages.KindEventUpdated)
	}

	respond.JSON(w, http.StatusOK, newEventResponse(event))
}

func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Events == nil || h.Registrations == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	id, ok := pathULID(w, r, "id")
	if !ok {
		return
	}

	// Registrant IDs must be read before the delete, which cancels the
	// registrations in the same transaction.
	recipients, err := h.Registrations.ActiveUserIDs(r.Context(), id)
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "", err)
		return
	}

	claims := middleware.Claims(r)
	event, err := h.Events.Delete(r.Context(), id, claims.UserID(), claims.Role)
	if err != nil {
		writeEventError(w, r, err)
		return
	}

	if len(recipients) > 0 {
		title, body := eventCancelledNotice(event)
		h.enqueueNotice(r.Context(), notify.Input{
			Kind:       messages.KindEventCancelled,
			Title:      title,
			Body:       body,
			EventID:    event.ID,
			ActorID:    claims.UserID(),
			Recipients: recipients,
		})
	}

	respond.JSON(w, http.StatusOK, nil)
}

type registerRequest struct {
	Role string `json:"role" validate:"required,max=100"`
}

type registrationResponse struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func newRegistrationResponse(reg *registrations.Registration) registrationResponse {
	return registrationResponse{
		ID:        reg.ID,
		EventID:   reg.EventID,
		UserID:    reg.UserID,
		Role:      reg.Role,
		Status:    reg.Status,
		CreatedAt: reg.CreatedAt,
	}
}

func (h *EventsHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Events == nil || h.Registrations == nil || h.Notifier == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	id, ok := pathULID(w, r, "id")
	if !ok {
		return
	}

	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	claims := middleware.Claims(r)
	reg, err := h.Registrations.Register(r.Context(), id, claims.UserID(), req.Role)
	if err != nil {
		writeRegistrationError(w, r, err)
		return
	}

	// Confirmation is delivered inline; a failure here never takes the
	// committed registration down with it.
	if event, err := h.Events.Get(r.Context(), id); err == nil {
		title, body := registrationConfirmedNotice(event, reg.Role)
		if _, err := h.Notifier.Deliver(r.Context(), notify.Input{
			Kind:       messages.KindRegistrationConfirmed,
			Title:      title,
			Body:       body,
			EventID:    event.ID,
			ActorID:    claims.UserID(),
			Recipients: []string{claims.UserID()},
		}); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).
				Str("event_id", id).
				Msg("registration confirmation fan-out failed")
		}
	}

	respond.JSON(w, http.StatusCreated, newRegistrationResponse(reg))
}

func (h *EventsHandler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Registrations == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	id, ok := pathULID(w, r, "id")
	if !ok {
		return
	}

	role := strings.TrimSpace(r.URL.Query().Get("role"))
	if role == "" {
		respond.Error(w, r, http.StatusBadRequest, "Query parameter role is required", nil)
		return
	}

	claims := middleware.Claims(r)
	if err := h.Registrations.Cancel(r.Context(), id, claims.UserID(), role); err != nil {
		writeRegistrationError(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, nil)
}

type guestRegistrationResponse struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func newGuestRegistrationResponse(guest *registrations.GuestRegistration) guestRegistrationResponse {
	return guestRegistrationResponse{
		ID:        guest.ID,
		EventID:   guest.EventID,
		Name:      guest.Name,
		Email:     guest.Email,
		Phone:     guest.Phone,
		Role:      guest.Role,
		Status:    guest.Status,
		CreatedAt: guest.CreatedAt,
	}
}

type eventRegistrationsResponse struct {
	Registrations []registrationResponse      `json:"registrations"`
	Guests        []guestRegistrationResponse `json:"guests"`
}

func (h *EventsHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Events == nil || h.Registrations == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	id, ok := pathULID(w, r, "id")
	if !ok {
		return
	}

	event, err := h.Events.Get(r.Context(), id)
	if err != nil {
		writeEventError(w, r, err)
		return
	}

	claims := middleware.Claims(r)
	if !auth.IsAdmin(claims.Role) && event.OrganizerID != claims.UserID() {
		respond.Error(w, r, http.StatusForbidden, "Not allowed to view registrations for this event", nil)
		return
	}

	regs, guests, err := h.Registrations.ListForEvent(r.Context(), id)
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "", err)
		return
	}

	resp := eventRegistrationsResponse{
		Registrations: make([]registrationResponse, 0, len(regs)),
		Guests:        make([]guestRegistrationResponse, 0, len(guests)),
	}
	for i := range regs {
		resp.Registrations = append(resp.Registrations, newRegistrationResponse(&regs[i]))
	}
	for i := range guests {
		resp.Guests = append(resp.Guests, newGuestRegistrationResponse(&guests[i]))
	}
	respond.JSON(w, http.StatusOK, resp)
}

// notifyRegistrants fans a schedule-change notice out to everyone holding
// a confirmed registration. Failures are logged, never surfaced.
func (h *EventsHandler) notifyRegistrants(ctx context.Context, event *events.Event, actorID, kind string) {
	recipients, err := h.Registrations.ActiveUserIDs(ctx, event.ID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("event_id", event.ID).
			Msg("resolve registrants for notice failed")
		return
	}
	if len(recipients) == 0 {
		return
	}

	title, body := eventUpdatedNotice(event)
	h.enqueueNotice(ctx, notify.Input{
		Kind:       kind,
		Title:      title,
		Body:       body,
		EventID:    event.ID,
		ActorID:    actorID,
		Recipients: recipients,
	})
}

func (h *EventsHandler) enqueueNotice(ctx context.Context, input notify.Input) {
	if h.Enqueue == nil {
		return
	}
	if err := h.Enqueue(ctx, input); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("kind", input.Kind).
			Str("event_id", input.EventID).
			Msg("notification enqueue failed")
	}
}

func rolesFromRequest(roles []eventRoleRequest) []events.Role {
	out := make([]events.Role, 0, len(roles))
	for _, role := range roles {
		out = append(out, events.Role{Name: role.Name, Capacity: role.Capacity})
	}
	return out
}

func writeEventError(w http.ResponseWriter, r *http.Request, err error) {
	var validation events.ValidationError
	switch {
	case errors.Is(err, events.ErrNotFound):
		respond.Error(w, r, http.StatusNotFound, "Event not found", err)
	case errors.Is(err, events.ErrProgramNotFound):
		respond.Error(w, r, http.StatusBadRequest, "Program not found", err)
	case errors.Is(err, events.ErrForbidden):
		respond.Error(w, r, http.StatusForbidden, "Not allowed to modify this event", err)
	case errors.As(err, &validation):
		respond.Error(w, r, http.StatusBadRequest, validation.Error(), err)
	default:
		respond.Error(w, r, http.StatusInternalServerError, "", err)
	}
}

func writeRegistrationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, events.ErrNotFound):
		respond.Error(w, r, http.StatusNotFound, "Event not found", err)
	case errors.Is(err, registrations.ErrNotFound):
		respond.Error(w, r, http.StatusNotFound, "No active registration for this role", err)
	case errors.Is(err, registrations.ErrEventCompleted):
		respond.Error(w, r, http.StatusBadRequest, "Event has already completed", err)
	case errors.Is(err, registrations.ErrRoleNotOffered):
		respond.Error(w, r, http.StatusBadRequest, "Role is not offered for this event", err)
	case errors.Is(err, registrations.ErrCapacityFull):
		respond.Error(w, r, http.StatusBadRequest, "Role capacity is full", err)
	case errors.Is(err, registrations.ErrDuplicate):
		respond.Error(w, r, http.StatusBadRequest, "Already registered for this role", err)
	case errors.Is(err, registrations.ErrNameRequired):
		respond.Error(w, r, http.StatusBadRequest, "Name is required", err)
	default:
		respond.Error(w, r, http.StatusInternalServerError, "", err)
	}
}
