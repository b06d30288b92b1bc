package email

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/gatherspace/server/internal/config"
)

func TestValidateEmailAddress_Valid(t *testing.T) {
	tests := []string{
		"user@example.com",
		"test.user@example.com",
		"user+tag@example.co.uk",
		"firstname.lastname@company.org",
		"User Name <user@example.com>", // RFC 5322 format with display name
	}

	for _, email := range tests {
		t.Run(email, func(t *testing.T) {
			err := validateEmailAddress(email)
			if err != nil {
				t.Errorf("Expected valid email %q to pass validation, got error: %v", email, err)
			}
		})
	}
}

func TestValidateEmailAddress_InvalidFormat(t *testing.T) {
	tests := []struct {
		email       string
		description string
	}{
		{"", "empty string"},
		{"notanemail", "no @ symbol"},
		{"@example.com", "missing local part"},
		{"user@", "missing domain"},
		{"user @example.com", "space before @"},
		{"user@exam ple.com", "space in domain"},
		{"user@@example.com", "double @"},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			err := validateEmailAddress(tt.email)
			if err == nil {
				t.Errorf("Expected error for invalid email %q (%s), but got none", tt.email, tt.description)
			}
		})
	}
}

func TestValidateEmailAddress_HeaderInjection(t *testing.T) {
	tests := []struct {
		email       string
		description string
	}{
		{
			"victim@example.com\r\nBcc: attacker@evil.com",
			"CRLF with Bcc injection",
		},
		{
			"test@example.com\nCc: hacker@evil.com",
			"LF with Cc injection",
		},
		{
			"user@example.com\rSubject: spam",
			"CR with Subject injection",
		},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			err := validateEmailAddress(tt.email)
			if err == nil {
				t.Errorf("Expected header injection %q (%s) to be rejected", tt.email, tt.description)
			}
		})
	}
}

func TestNewService_RejectsBadSenderWhenEnabled(t *testing.T) {
	cfg := config.EmailConfig{Enabled: true, APIKey: "key", From: "not an address"}
	if _, err := NewService(cfg, zerolog.Nop()); err == nil {
		t.Error("Expected error for invalid sender address")
	}
}

func TestNewService_DisabledSkipsSenderValidation(t *testing.T) {
	cfg := config.EmailConfig{Enabled: false, From: ""}
	if _, err := NewService(cfg, zerolog.Nop()); err != nil {
		t.Errorf("Expected disabled service to construct, got: %v", err)
	}
}

func TestSendNotification_DisabledIsNoop(t *testing.T) {
	cfg := config.EmailConfig{Enabled: false, From: "no-reply@example.com", FromName: "GatherSpace"}
	svc, err := NewService(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := svc.SendNotification(context.Background(), "user@example.com", "Schedule change", "<p>Doors at 6</p>"); err != nil {
		t.Errorf("Expected disabled send to succeed silently, got: %v", err)
	}
}

func TestSendNotification_RejectsBadRecipient(t *testing.T) {
	cfg := config.EmailConfig{Enabled: false, From: "no-reply@example.com"}
	svc, err := NewService(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := svc.SendNotification(context.Background(), "not-an-address", "Hi", "<p>Hi</p>"); err == nil {
		t.Error("Expected error for invalid recipient")
	}
}

func TestRenderNotificationTemplate(t *testing.T) {
	cfg := config.EmailConfig{Enabled: false, From: "no-reply@example.com", FromName: "GatherSpace"}
	svc, err := NewService(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	html, err := svc.render("notification.html", NotificationData{
		Title:       "Event updated: Community Picnic",
		Body:        "<p>The start time moved to <strong>13:00</strong>.</p>",
		AppName:     "GatherSpace",
		CurrentYear: 2026,
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if !strings.Contains(html, "Event updated: Community Picnic") {
		t.Error("rendered HTML missing title")
	}
	if !strings.Contains(html, "<strong>13:00</strong>") {
		t.Error("rendered HTML escaped the pre-sanitized body")
	}
	if !strings.Contains(html, "2026 GatherSpace") {
		t.Error("rendered HTML missing footer")
	}
}

func TestRenderGuestConfirmationTemplate(t *testing.T) {
	cfg := config.EmailConfig{Enabled: false, From: "no-reply@example.com", FromName: "GatherSpace"}
	svc, err := NewService(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	html, err := svc.render("guest_confirmation.html", GuestConfirmationData{
		Name:        "Dana",
		EventTitle:  "Community Picnic",
		EventDate:   "2026-06-15",
		StartTime:   "12:00",
		Location:    "Riverside Park",
		Role:        "Volunteer",
		AppName:     "GatherSpace",
		CurrentYear: 2026,
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{"Dana", "Community Picnic", "2026-06-15", "12:00", "Riverside Park", "Volunteer"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
}

func TestRenderGuestConfirmationOmitsEmptyLocation(t *testing.T) {
	cfg := config.EmailConfig{Enabled: false, From: "no-reply@example.com"}
	svc, err := NewService(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	html, err := svc.render("guest_confirmation.html", GuestConfirmationData{
		Name:       "Dana",
		EventTitle: "Online Meetup",
		EventDate:  "2026-06-15",
		StartTime:  "19:00",
		Role:       "Attendee",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, "Where:") {
		t.Error("expected location row to be omitted when empty")
	}
}

func TestFromHeader(t *testing.T) {
	svc := &Service{config: config.EmailConfig{From: "no-reply@example.com"}}
	if got := svc.fromHeader(); got != "no-reply@example.com" {
		t.Errorf("fromHeader = %q", got)
	}

	svc.config.FromName = "GatherSpace"
	if got := svc.fromHeader(); got != "GatherSpace <no-reply@example.com>" {
		t.Errorf("fromHeader = %q", got)
	}
}
