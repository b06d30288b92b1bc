package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gatherspace/server/internal/api/middleware"
	"github.com/gatherspace/server/internal/audit"
	"github.com/gatherspace/server/internal/auth"
	"github.com/gatherspace/server/internal/domain/analytics"
	"github.com/gatherspace/server/internal/domain/events"
	"github.com/gatherspace/server/internal/domain/messages"
	"github.com/gatherspace/server/internal/domain/programs"
	"github.com/gatherspace/server/internal/domain/registrations"
	"github.com/gatherspace/server/internal/domain/users"
	"github.com/gatherspace/server/internal/email"
	"github.com/gatherspace/server/internal/notify"
)

const (
	testEventID     = "01J6WDJW5H4B7N8Q2R3S4T5V6W"
	testMemberID    = "01J6WDKX2M9C3D4E5F6G7H8J9K"
	testOrganizerID = "01J6WDM0N1P2Q3R4S5T6V7W8X9"
	testAdminID     = "01J6WDN4Y5Z6A7B8C9D0E1F2G3"
	testMessageID   = "01J6WDP8H9J0K1M2N3P4Q5R6S7"
	testProgramID   = "01J6WDQ2T3V4W5X6Y7Z8A9B0C1"
	testGuestID     = "01J6WDR6D7E8F9G0H1J2K3M4N5"
	testOtherID     = "01J6WDS0P1Q2R3S4T5V6W7X8Y9"
)

type stubEventsRepo struct {
	listFn         func(filters events.Filters, pagination events.Pagination) (events.ListResult, error)
	getFn          func(id string) (*events.Event, error)
	createFn       func(params events.CreateParams) (*events.Event, error)
	updateFn       func(id string, params events.UpdateParams) (*events.Event, error)
	deleteFn       func(id string) error
	listAllFn      func() ([]events.Event, error)
	updateStatusFn func(id, status string) error
	listUpcomingFn func() ([]events.Event, error)
	markReminderFn func(id string, at time.Time) error
}

func (s stubEventsRepo) List(_ context.Context, filters events.Filters, pagination events.Pagination) (events.ListResult, error) {
	if s.listFn == nil {
		return events.ListResult{}, errors.New("not implemented")
	}
	return s.listFn(filters, pagination)
}

func (s stubEventsRepo) GetByID(_ context.Context, id string) (*events.Event, error) {
	if s.getFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.getFn(id)
}

func (s stubEventsRepo) Create(_ context.Context, params events.CreateParams) (*events.Event, error) {
	if s.createFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.createFn(params)
}

func (s stubEventsRepo) Update(_ context.Context, id string, params events.UpdateParams) (*events.Event, error) {
	if s.updateFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.updateFn(id, params)
}

func (s stubEventsRepo) Delete(_ context.Context, id string) error {
	if s.deleteFn == nil {
		return errors.New("not implemented")
	}
	return s.deleteFn(id)
}

func (s stubEventsRepo) ListAll(_ context.Context) ([]events.Event, error) {
	if s.listAllFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.listAllFn()
}

func (s stubEventsRepo) UpdateStatus(_ context.Context, id string, status string) error {
	if s.updateStatusFn == nil {
		return errors.New("not implemented")
	}
	return s.updateStatusFn(id, status)
}

func (s stubEventsRepo) ListUpcomingWithoutReminder(_ context.Context) ([]events.Event, error) {
	if s.listUpcomingFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.listUpcomingFn()
}

func (s stubEventsRepo) MarkReminderSent(_ context.Context, id string, at time.Time) error {
	if s.markReminderFn == nil {
		return errors.New("not implemented")
	}
	return s.markReminderFn(id, at)
}

type stubRegistrationsRepo struct {
	createFn             func(params registrations.CreateParams) (*registrations.Registration, error)
	findActiveFn         func(eventID, userID, role string) (*registrations.Registration, error)
	cancelFn             func(eventID, userID, role string) error
	listByEventFn        func(eventID string) ([]registrations.Registration, error)
	listByUserFn         func(userID string) ([]registrations.RegistrationWithEvent, error)
	activeUserIDsFn      func(eventID string) ([]string, error)
	countActiveForRoleFn func(eventID, role string) (int, error)
	countsByRoleFn       func(eventID string) (map[string]int, error)
	createGuestFn        func(params registrations.GuestCreateParams) (*registrations.GuestRegistration, error)
	findActiveGuestFn    func(eventID, email, role string) (*registrations.GuestRegistration, error)
	listGuestsByEmailFn  func(email string) ([]registrations.GuestRegistration, error)
	listGuestsByEventFn  func(eventID string) ([]registrations.GuestRegistration, error)
	migrateGuestFn       func(guestID string, params registrations.CreateParams) error
}

func (s stubRegistrationsRepo) Create(_ context.Context, params registrations.CreateParams) (*registrations.Registration, error) {
	if s.createFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.createFn(params)
}

func (s stubRegistrationsRepo) FindActive(_ context.Context, eventID, userID, role string) (*registrations.Registration, error) {
	if s.findActiveFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.findActiveFn(eventID, userID, role)
}

func (s stubRegistrationsRepo) Cancel(_ context.Context, eventID, userID, role string) error {
	if s.cancelFn == nil {
		return errors.New("not implemented")
	}
	return s.cancelFn(eventID, userID, role)
}

func (s stubRegistrationsRepo) ListByEvent(_ context.Context, eventID string) ([]registrations.Registration, error) {
	if s.listByEventFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.listByEventFn(eventID)
}

func (s stubRegistrationsRepo) ListByUser(_ context.Context, userID string) ([]registrations.RegistrationWithEvent, error) {
	if s.listByUserFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.listByUserFn(userID)
}

func (s stubRegistrationsRepo) ActiveUserIDs(_ context.Context, eventID string) ([]string, error) {
	if s.activeUserIDsFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.activeUserIDsFn(eventID)
}

func (s stubRegistrationsRepo) CountActiveForRole(_ context.Context, eventID, role string) (int, error) {
	if s.countActiveForRoleFn == nil {
		return 0, errors.New("not implemented")
	}
	return s.countActiveForRoleFn(eventID, role)
}

func (s stubRegistrationsRepo) CountsByRole(_ context.Context, eventID string) (map[string]int, error) {
	if s.countsByRoleFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.countsByRoleFn(eventID)
}

func (s stubRegistrationsRepo) CreateGuest(_ context.Context, params registrations.GuestCreateParams) (*registrations.GuestRegistration, error) {
	if s.createGuestFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.createGuestFn(params)
}

func (s stubRegistrationsRepo) FindActiveGuest(_ context.Context, eventID, email, role string) (*registrations.GuestRegistration, error) {
	if s.findActiveGuestFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.findActiveGuestFn(eventID, email, role)
}

func (s stubRegistrationsRepo) ListActiveGuestsByEmail(_ context.Context, email string) ([]registrations.GuestRegistration, error) {
	if s.listGuestsByEmailFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.listGuestsByEmailFn(email)
}

func (s stubRegistrationsRepo) ListGuestsByEvent(_ context.Context, eventID string) ([]registrations.GuestRegistration, error) {
	if s.listGuestsByEventFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.listGuestsByEventFn(eventID)
}

func (s stubRegistrationsRepo) MigrateGuest(_ context.Context, guestID string, params registrations.CreateParams) error {
	if s.migrateGuestFn == nil {
		return errors.New("not implemented")
	}
	return s.migrateGuestFn(guestID, params)
}

type stubMessagesRepo struct {
	createWithStatesFn func(params messages.CreateParams, recipientIDs []string) (*messages.SystemMessage, error)
	getFn              func(id string) (*messages.SystemMessage, error)
	listForUserFn      func(userID, channel string, opts messages.ListOptions) (messages.ListResult, error)
	markReadFn         func(messageID, userID, channel string) error
	markAllReadFn      func(userID, channel string) error
	softDeleteFn       func(messageID, userID, channel string) error
	retractAllFn       func(messageID string) error
	purgeStatesFn      func(before time.Time) (int64, error)
}

func (s stubMessagesRepo) CreateWithStates(_ context.Context, params messages.CreateParams, recipientIDs []string) (*messages.SystemMessage, error) {
	if s.createWithStatesFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.createWithStatesFn(params, recipientIDs)
}

func (s stubMessagesRepo) GetByID(_ context.Context, id string) (*messages.SystemMessage, error) {
	if s.getFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.getFn(id)
}

func (s stubMessagesRepo) ListForUser(_ context.Context, userID, channel string, opts messages.ListOptions) (messages.ListResult, error) {
	if s.listForUserFn == nil {
		return messages.ListResult{}, errors.New("not implemented")
	}
	return s.listForUserFn(userID, channel, opts)
}

func (s stubMessagesRepo) MarkRead(_ context.Context, messageID, userID, channel string) error {
	if s.markReadFn == nil {
		return errors.New("not implemented")
	}
	return s.markReadFn(messageID, userID, channel)
}

func (s stubMessagesRepo) MarkAllRead(_ context.Context, userID, channel string) error {
	if s.markAllReadFn == nil {
		return errors.New("not implemented")
	}
	return s.markAllReadFn(userID, channel)
}

func (s stubMessagesRepo) SoftDelete(_ context.Context, messageID, userID, channel string) error {
	if s.softDeleteFn == nil {
		return errors.New("not implemented")
	}
	return s.softDeleteFn(messageID, userID, channel)
}

func (s stubMessagesRepo) RetractAll(_ context.Context, messageID string) error {
	if s.retractAllFn == nil {
		return errors.New("not implemented")
	}
	return s.retractAllFn(messageID)
}

func (s stubMessagesRepo) PurgeStates(_ context.Context, before time.Time) (int64, error) {
	if s.purgeStatesFn == nil {
		return 0, errors.New("not implemented")
	}
	return s.purgeStatesFn(before)
}

type stubUsersRepo struct {
	getFn            func(id string) (*users.User, error)
	getByEmailFn     func(email string) (*users.User, error)
	getByIDsFn       func(ids []string) ([]users.User, error)
	listActiveFn     func() ([]users.User, error)
	createFn         func(params users.CreateParams) (*users.User, error)
	updateProfileFn  func(id string, params users.UpdateProfileParams) (*users.User, error)
	updatePasswordFn func(id, passwordHash string) error
}

func (s stubUsersRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	if s.getFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.getFn(id)
}

func (s stubUsersRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	if s.getByEmailFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.getByEmailFn(email)
}

func (s stubUsersRepo) GetByIDs(_ context.Context, ids []string) ([]users.User, error) {
	if s.getByIDsFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.getByIDsFn(ids)
}

func (s stubUsersRepo) ListActive(_ context.Context) ([]users.User, error) {
	if s.listActiveFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.listActiveFn()
}

func (s stubUsersRepo) Create(_ context.Context, params users.CreateParams) (*users.User, error) {
	if s.createFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.createFn(params)
}

func (s stubUsersRepo) UpdateProfile(_ context.Context, id string, params users.UpdateProfileParams) (*users.User, error) {
	if s.updateProfileFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.updateProfileFn(id, params)
}

func (s stubUsersRepo) UpdatePassword(_ context.Context, id string, passwordHash string) error {
	if s.updatePasswordFn == nil {
		return errors.New("not implemented")
	}
	return s.updatePasswordFn(id, passwordHash)
}

type stubProgramsRepo struct {
	listFn   func(includeInactive bool) ([]programs.ProgramWithCount, error)
	getFn    func(id string) (*programs.Program, error)
	createFn func(params programs.CreateParams) (*programs.Program, error)
	updateFn func(id string, params programs.UpdateParams) (*programs.Program, error)
}

func (s stubProgramsRepo) List(_ context.Context, includeInactive bool) ([]programs.ProgramWithCount, error) {
	if s.listFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.listFn(includeInactive)
}

func (s stubProgramsRepo) GetByID(_ context.Context, id string) (*programs.Program, error) {
	if s.getFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.getFn(id)
}

func (s stubProgramsRepo) Create(_ context.Context, params programs.CreateParams) (*programs.Program, error) {
	if s.createFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.createFn(params)
}

func (s stubProgramsRepo) Update(_ context.Context, id string, params programs.UpdateParams) (*programs.Program, error) {
	if s.updateFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.updateFn(id, params)
}

type stubAnalyticsRepo struct {
	totalsFn           func() (analytics.Totals, error)
	newUsersFn         func(from, to time.Time) (int64, error)
	newEventsFn        func(from, to time.Time) (int64, error)
	newRegistrationsFn func(from, to time.Time) (int64, error)
	eventsByStatusFn   func() ([]analytics.StatusCount, error)
	monthlyFn          func(from, to time.Time) ([]analytics.MonthlyRegistrations, error)
	regsByStatusFn     func() ([]analytics.StatusCount, error)
	programStatsFn     func() ([]analytics.ProgramStats, error)
}

func (s stubAnalyticsRepo) Totals(_ context.Context) (analytics.Totals, error) {
	if s.totalsFn == nil {
		return analytics.Totals{}, errors.New("not implemented")
	}
	return s.totalsFn()
}

func (s stubAnalyticsRepo) NewUsersBetween(_ context.Context, from, to time.Time) (int64, error) {
	if s.newUsersFn == nil {
		return 0, errors.New("not implemented")
	}
	return s.newUsersFn(from, to)
}

func (s stubAnalyticsRepo) NewEventsBetween(_ context.Context, from, to time.Time) (int64, error) {
	if s.newEventsFn == nil {
		return 0, errors.New("not implemented")
	}
	return s.newEventsFn(from, to)
}

func (s stubAnalyticsRepo) NewRegistrationsBetween(_ context.Context, from, to time.Time) (int64, error) {
	if s.newRegistrationsFn == nil {
		return 0, errors.New("not implemented")
	}
	return s.newRegistrationsFn(from, to)
}

func (s stubAnalyticsRepo) EventCountsByStatus(_ context.Context) ([]analytics.StatusCount, error) {
	if s.eventsByStatusFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.eventsByStatusFn()
}

func (s stubAnalyticsRepo) MonthlyRegistrations(_ context.Context, from, to time.Time) ([]analytics.MonthlyRegistrations, error) {
	if s.monthlyFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.monthlyFn(from, to)
}

func (s stubAnalyticsRepo) RegistrationCountsByEventStatus(_ context.Context) ([]analytics.StatusCount, error) {
	if s.regsByStatusFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.regsByStatusFn()
}

func (s stubAnalyticsRepo) ProgramStats(_ context.Context) ([]analytics.ProgramStats, error) {
	if s.programStatsFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.programStatsFn()
}

type sentNotification struct {
	To    string
	Title string
	Body  string
}

type sentGuestConfirmation struct {
	To   string
	Data email.GuestConfirmationData
}

// recordingEmailer satisfies both notify.EmailSender and GuestEmailer so
// one instance can be threaded through a whole fixture.
type recordingEmailer struct {
	err           error
	notifications []sentNotification
	confirmations []sentGuestConfirmation
}

func (e *recordingEmailer) SendNotification(_ context.Context, to, title, bodyHTML string) error {
	if e.err != nil {
		return e.err
	}
	e.notifications = append(e.notifications, sentNotification{To: to, Title: title, Body: bodyHTML})
	return nil
}

func (e *recordingEmailer) SendGuestConfirmation(_ context.Context, to string, data email.GuestConfirmationData) error {
	if e.err != nil {
		return e.err
	}
	e.confirmations = append(e.confirmations, sentGuestConfirmation{To: to, Data: data})
	return nil
}

// capturedEnqueue stands in for the job-queue insert.
type capturedEnqueue struct {
	err    error
	inputs []notify.Input
}

func (c *capturedEnqueue) Enqueue(_ context.Context, input notify.Input) error {
	if c.err != nil {
		return c.err
	}
	c.inputs = append(c.inputs, input)
	return nil
}

func testAuditLogger() *audit.Logger {
	return audit.NewLoggerWithZerolog(zerolog.Nop())
}

func newTestOrchestrator(msgRepo messages.Repository, usersRepo users.Repository, emailer *recordingEmailer) *notify.Orchestrator {
	return notify.NewOrchestrator(
		messages.NewService(msgRepo, nil, zerolog.Nop()),
		usersRepo,
		emailer,
		notify.NewLogBroadcaster(zerolog.Nop()),
		zerolog.Nop(),
	)
}

func claimsFor(subject string, role auth.Role) *auth.Claims {
	return &auth.Claims{
		Role:             string(role),
		Email:            "person@example.com",
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	}
}

func upcomingEvent() *events.Event {
	now := time.Now()
	return &events.Event{
		ID:          testEventID,
		Title:       "Spring Orientation",
		Description: "<p>Welcome session for new members.</p>",
		Location:    "Community Hall",
		OrganizerID: testOrganizerID,
		Date:        "2099-05-04",
		StartTime:   "18:00",
		TimeZone:    "UTC",
		Status:      events.StatusUpcoming,
		Roles:       []events.Role{{Name: "Helper", Capacity: 2}, {Name: "Greeter"}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func activeUser(id, address string) users.User {
	return users.User{
		ID:                 id,
		Name:               "Jordan Reyes",
		Email:              address,
		Role:               string(auth.RoleMember),
		IsActive:           true,
		EmailNotifications: true,
		CreatedAt:          time.Now(),
	}
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	if body == nil {
		return httptest.NewRequest(method, target, nil)
	}
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func asUser(req *http.Request, claims *auth.Claims) *http.Request {
	return req.WithContext(middleware.ContextWithClaims(req.Context(), claims))
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success, "expected success envelope, got %s", rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	env := decodeEnvelope(t, rec)
	require.False(t, env.Success)
	require.Equal(t, message, env.Message)
}
