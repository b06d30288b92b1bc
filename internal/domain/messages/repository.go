package messages

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("message not found")

// Delivery channels. Every recipient gets one ledger row per channel:
// "system" feeds the inbox, "bell" feeds the notification dropdown.
const (
	ChannelSystem = "system"
	ChannelBell   = "bell"
)

// Message kinds.
const (
	KindAnnouncement          = "announcement"
	KindEventUpdated          = "event_updated"
	KindEventCancelled        = "event_cancelled"
	KindEventReminder         = "event_reminder"
	KindRegistrationConfirmed = "registration_confirmed"
	KindGuestMigrated         = "guest_migrated"
)

// SystemMessage is the single shared record for one occurrence. Per-user
// read/dismiss flags live in MessageState, never here.
type SystemMessage struct {
	ID        string
	Kind      string
	Title     string
	Body      string
	EventID   *string
	CreatedBy *string
	CreatedAt time.Time
}

// MessageState is one recipient's ledger row for a message on a channel.
// is_deleted means the recipient dismissed it; is_removed means an admin
// retracted it. Removed entries never surface again.
type MessageState struct {
	MessageID string
	UserID    string
	Channel   string
	IsRead    bool
	IsDeleted bool
	IsRemoved bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InboxEntry is a message joined with the caller's read flag.
type InboxEntry struct {
	SystemMessage
	IsRead bool
}

type ListResult struct {
	Entries     []InboxEntry
	UnreadCount int
	Total       int
}

type ListOptions struct {
	Limit      int
	Offset     int
	UnreadOnly bool
}

type CreateParams struct {
	ID        string
	Kind      string
	Title     string
	Body      string
	EventID   *string
	CreatedBy *string
}

type Repository interface {
	// CreateWithStates inserts the message and, for each recipient, one
	// system and one bell ledger row, all in a single transaction.
	CreateWithStates(ctx context.Context, params CreateParams, recipientIDs []string) (*SystemMessage, error)
	GetByID(ctx context.Context, id string) (*SystemMessage, error)
	ListForUser(ctx context.Context, userID, channel string, opts ListOptions) (ListResult, error)
	// MarkRead flips the caller's ledger row; ErrNotFound when the user
	// never received the message or it was retracted.
	MarkRead(ctx context.Context, messageID, userID, channel string) error
	MarkAllRead(ctx context.Context, userID, channel string) error
	// SoftDelete dismisses the caller's row (is_deleted).
	SoftDelete(ctx context.Context, messageID, userID, channel string) error
	// RetractAll flags every recipient's rows as removed (is_removed).
	RetractAll(ctx context.Context, messageID string) error
	// PurgeStates deletes dismissed and retracted ledger rows older than
	// the cutoff, returning the number of rows dropped.
	PurgeStates(ctx context.Context, before time.Time) (int64, error)
}
