package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gatherspace/server/internal/api/middleware"
	"github.com/gatherspace/server/internal/api/respond"
	"github.com/gatherspace/server/internal/domain/messages"
)

// NotificationsHandler serves the bell channel. Bell entries share the
// message rows with the inbox but carry their own read/dismiss state.
type NotificationsHandler struct {
	Messages *messages.Service
}

func NewNotificationsHandler(messageService *messages.Service) *NotificationsHandler {
	return &NotificationsHandler{Messages: messageService}
}

func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Messages == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respond.Error(w, r, http.StatusBadRequest, "limit must be a positive number", err)
			return
		}
		limit = parsed
	}

	claims := middleware.Claims(r)
	result, err := h.Messages.Bell(r.Context(), claims.UserID(), limit)
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "", err)
		return
	}

	respond.JSON(w, http.StatusOK, newMessageListResponse(result))
}

func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.updateState(w, r, func(messageID, userID string) error {
		return h.Messages.MarkRead(r.Context(), messageID, userID, messages.ChannelBell)
	})
}

func (h *NotificationsHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Messages == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	claims := middleware.Claims(r)
	if err := h.Messages.MarkAllRead(r.Context(), claims.UserID(), messages.ChannelBell); err != nil {
		writeMessageError(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, nil)
}

func (h *NotificationsHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.updateState(w, r, func(messageID, userID string) error {
		return h.Messages.Dismiss(r.Context(), messageID, userID, messages.ChannelBell)
	})
}

func (h *NotificationsHandler) updateState(w http.ResponseWriter, r *http.Request, op func(messageID, userID string) error) {
	if h == nil || h.Messages == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	id, ok := pathULID(w, r, "id")
	if !ok {
		return
	}

	claims := middleware.Claims(r)
	if err := op(id, claims.UserID()); err != nil {
		writeMessageError(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, nil)
}
