// Package email renders and delivers transactional mail through Resend.
// With EMAIL_ENABLED off every send is logged and skipped, which is the
// default outside production.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"

	"github.com/gatherspace/server/internal/config"
	"github.com/gatherspace/server/internal/metrics"
)

//go:embed templates/*.html
var templateFS embed.FS

type Service struct {
	config       config.EmailConfig
	templates    *template.Template
	resendClient *resend.Client
	logger       zerolog.Logger
}

func NewService(cfg config.EmailConfig, logger zerolog.Logger) (*Service, error) {
	if cfg.Enabled {
		if err := validateEmailAddress(cfg.From); err != nil {
			return nil, fmt.Errorf("invalid sender email in config: %w", err)
		}
	}

	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}

	service := &Service{
		config:    cfg,
		templates: templates,
		logger:    config.Component(logger, "email"),
	}
	if cfg.APIKey != "" {
		service.resendClient = resend.NewClient(cfg.APIKey)
	}
	return service, nil
}

// NotificationData feeds the generic notification template. Body is
// sanitized upstream before it reaches the renderer.
type NotificationData struct {
	Title       string
	Body        template.HTML
	AppName     string
	CurrentYear int
}

// SendNotification delivers one in-app notification as email.
func (s *Service) SendNotification(ctx context.Context, to, title, bodyHTML string) error {
	data := NotificationData{
		Title:       title,
		Body:        template.HTML(bodyHTML),
		AppName:     s.config.FromName,
		CurrentYear: time.Now().Year(),
	}
	html, err := s.render("notification.html", data)
	if err != nil {
		return fmt.Errorf("render notification email: %w", err)
	}
	return s.deliver(ctx, "notification", to, title, html)
}

// GuestConfirmationData feeds the guest sign-up confirmation template.
type GuestConfirmationData struct {
	Name        string
	EventTitle  string
	EventDate   string
	StartTime   string
	Location    string
	Role        string
	AppName     string
	CurrentYear int
}

// SendGuestConfirmation confirms a guest sign-up. Guests have no account,
// so this email is their only record of the registration.
func (s *Service) SendGuestConfirmation(ctx context.Context, to string, data GuestConfirmationData) error {
	data.AppName = s.config.FromName
	data.CurrentYear = time.Now().Year()

	html, err := s.render("guest_confirmation.html", data)
	if err != nil {
		return fmt.Errorf("render guest confirmation email: %w", err)
	}
	subject := fmt.Sprintf("You're signed up for %s", data.EventTitle)
	return s.deliver(ctx, "guest_confirmation", to, subject, html)
}

func (s *Service) deliver(ctx context.Context, templateName, to, subject, htmlBody string) error {
	if err := validateEmailAddress(to); err != nil {
		metrics.EmailsSentTotal.WithLabelValues(templateName, "error").Inc()
		return fmt.Errorf("invalid recipient email: %w", err)
	}

	if !s.config.Enabled {
		metrics.EmailsSentTotal.WithLabelValues(templateName, "disabled").Inc()
		s.logger.Info().
			Str("to", to).
			Str("subject", subject).
			Msg("email service disabled, skipping send")
		return nil
	}

	if err := s.sendViaResend(ctx, to, subject, htmlBody); err != nil {
		metrics.EmailsSentTotal.WithLabelValues(templateName, "error").Inc()
		return err
	}
	metrics.EmailsSentTotal.WithLabelValues(templateName, "success").Inc()
	return nil
}

func (s *Service) render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

// fromHeader builds the RFC 5322 sender, "GatherSpace <no-reply@...>".
func (s *Service) fromHeader() string {
	if s.config.FromName == "" {
		return s.config.From
	}
	return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
}

// validateEmailAddress checks format and rejects header injection attempts.
func validateEmailAddress(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	if strings.ContainsAny(addr.Address, "\r\n") {
		return fmt.Errorf("invalid email address: contains newline characters")
	}
	return nil
}
