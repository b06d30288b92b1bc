package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gatherspace/server/internal/api/middleware"
	"github.com/gatherspace/server/internal/api/respond"
	"github.com/gatherspace/server/internal/domain/messages"
	"github.com/gatherspace/server/internal/notify"
)

type MessagesHandler struct {
	Messages *messages.Service
	Enqueue  NotifyEnqueuer
}

func NewMessagesHandler(messageService *messages.Service, enqueue NotifyEnqueuer) *MessagesHandler {
	return &MessagesHandler{Messages: messageService, Enqueue: enqueue}
}

type messageEntryResponse struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	EventID   *string   `json:"event_id,omitempty"`
	CreatedBy *string   `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	IsRead    bool      `json:"is_read"`
}

type messageListResponse struct {
	Messages    []messageEntryResponse `json:"messages"`
	UnreadCount int                    `json:"unread_count"`
	Total       int                    `json:"total"`
}

func newMessageListResponse(result messages.ListResult) messageListResponse {
	entries := make([]messageEntryResponse, 0, len(result.Entries))
	for _, entry := range result.Entries {
		entries = append(entries, messageEntryResponse{
			ID:        entry.ID,
			Kind:      entry.Kind,
			Title:     entry.Title,
			Body:      entry.Body,
			EventID:   entry.EventID,
			CreatedBy: entry.CreatedBy,
			CreatedAt: entry.CreatedAt,
			IsRead:    entry.IsRead,
		})
	}
	return messageListResponse{
		Messages:    entries,
		UnreadCount: result.UnreadCount,
		Total:       result.Total,
	}
}

// Inbox lists the caller's system messages, newest first.
func (h *MessagesHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Messages == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	opts, err := messages.ParseListOptions(r.URL.Query())
	if err != nil {
		respond.Error(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	claims := middleware.Claims(r)
	result, err := h.Messages.Inbox(r.Context(), claims.UserID(), opts)
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "", err)
		return
	}

	respond.JSON(w, http.StatusOK, newMessageListResponse(result))
}

type broadcastRequest struct {
	Title      string   `json:"title" validate:"required,max=200"`
	Body       string   `json:"body" validate:"required"`
	Recipients []string `json:"recipients" validate:"omitempty,dive,len=26"`
}

type broadcastResponse struct {
	Queued bool `json:"queued"`
}

// Broadcast queues an admin announcement. Absent recipients address
// every active user; delivery happens on the job queue, hence 202.
func (h *MessagesHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Enqueue == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	var req broadcastRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	claims := middleware.Claims(r)
	err := h.Enqueue(r.Context(), notify.Input{
		Kind:       messages.KindAnnouncement,
		Title:      req.Title,
		Body:       req.Body,
		ActorID:    claims.UserID(),
		Recipients: req.Recipients,
	})
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "", err)
		return
	}

	respond.JSON(w, http.StatusAccepted, broadcastResponse{Queued: true})
}

func (h *MessagesHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.updateState(w, r, func(messageID, userID string) error {
		return h.Messages.MarkRead(r.Context(), messageID, userID, messages.ChannelSystem)
	})
}

// Delete dismisses the caller's inbox entry. The message itself stays
// for the other recipients.
func (h *MessagesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.updateState(w, r, func(messageID, userID string) error {
		return h.Messages.Dismiss(r.Context(), messageID, userID, messages.ChannelSystem)
	})
}

// Retract withdraws a message from every recipient on both channels.
func (h *MessagesHandler) Retract(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Messages == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	id, ok := pathULID(w, r, "id")
	if !ok {
		return
	}

	if err := h.Messages.Retract(r.Context(), id); err != nil {
		writeMessageError(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, nil)
}

func (h *MessagesHandler) updateState(w http.ResponseWriter, r *http.Request, op func(messageID, userID string) error) {
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

func writeMessageError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, messages.ErrNotFound):
		respond.Error(w, r, http.StatusNotFound, "Message not found", err)
	case errors.Is(err, messages.ErrInvalidChannel), errors.Is(err, messages.ErrInvalidKind):
		respond.Error(w, r, http.StatusBadRequest, err.Error(), err)
	default:
		respond.Error(w, r, http.StatusInternalServerError, "", err)
	}
}
