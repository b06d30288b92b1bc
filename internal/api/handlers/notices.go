package handlers

import (
	"fmt"
	"html"

	"github.com/gatherspace/server/internal/domain/events"
)

// Notice builders compose the title and HTML body for the fan-outs the
// handlers trigger. Bodies pass through the UGC sanitizer on write, but
// interpolated user content is escaped here regardless.

func eventUpdatedNotice(event *events.Event) (string, string) {
	title := "Event updated: " + event.Title
	body := fmt.Sprintf(
		"<p>The schedule for <strong>%s</strong> changed. It now starts on %s at %s (%s).</p>",
		html.EscapeString(event.Title),
		html.EscapeString(event.Date),
		html.EscapeString(event.StartTime),
		html.EscapeString(event.TimeZone),
	)
	return title, body
}

func eventCancelledNotice(event *events.Event) (string, string) {
	title := "Event cancelled: " + event.Title
	body := fmt.Sprintf(
		"<p><strong>%s</strong> on %s has been cancelled. Your registration was cancelled with it.</p>",
		html.EscapeString(event.Title),
		html.EscapeString(event.Date),
	)
	return title, body
}

func registrationConfirmedNotice(event *events.Event, role string) (string, string) {
	title := "Registration confirmed: " + event.Title
	body := fmt.Sprintf(
		"<p>You are signed up for <strong>%s</strong> on %s at %s as %s.</p>",
		html.EscapeString(event.Title),
		html.EscapeString(event.Date),
		html.EscapeString(event.StartTime),
		html.EscapeString(role),
	)
	return title, body
}

func guestMigratedNotice(count int) (string, string) {
	title := "Guest sign-ups linked to your account"
	body := fmt.Sprintf("<p>%d guest sign-ups matching your email address were linked to your account.</p>", count)
	if count == 1 {
		body = "<p>1 guest sign-up matching your email address was linked to your account.</p>"
	}
	return title, body
}
