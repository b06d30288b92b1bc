package analytics

import (
	"context"
	"time"
)

// Totals are the whole-history counters on the overview dashboard.
// Registrations covers confirmed member registrations plus active guest
// sign-ups.
type Totals struct {
	Users         int64
	Events        int64
	Registrations int64
	Messages      int64
}

// StatusCount is one slice of a breakdown keyed by event status.
type StatusCount struct {
	Status string
	Count  int64
}

// MonthlyRegistrations is one calendar-month bucket of the trailing
// registration series. Month uses the YYYY-MM layout.
type MonthlyRegistrations struct {
	Month  string
	Users  int64
	Guests int64
}

// ProgramStats aggregates per-program activity.
type ProgramStats struct {
	ProgramID     string
	Name          string
	Events        int64
	Registrations int64
}

// Repository exposes the aggregate queries behind the analytics
// endpoints. Time windows are half-open [from, to) in UTC; months with no
// rows may be absent from series results, callers fill the gaps.
type Repository interface {
	Totals(ctx context.Context) (Totals, error)
	NewUsersBetween(ctx context.Context, from, to time.Time) (int64, error)
	NewEventsBetween(ctx context.Context, from, to time.Time) (int64, error)
	NewRegistrationsBetween(ctx context.Context, from, to time.Time) (int64, error)
	EventCountsByStatus(ctx context.Context) ([]StatusCount, error)
	MonthlyRegistrations(ctx context.Context, from, to time.Time) ([]MonthlyRegistrations, error)
	RegistrationCountsByEventStatus(ctx context.Context) ([]StatusCount, error)
	ProgramStats(ctx context.Context) ([]ProgramStats, error)
}
