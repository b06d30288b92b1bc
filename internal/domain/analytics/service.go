package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gatherspace/server/internal/cache"
	"github.com/gatherspace/server/internal/config"
	"github.com/gatherspace/server/internal/export"
)

// Report names accepted by the export endpoint.
const (
	ReportOverview      = "overview"
	ReportRegistrations = "registrations"
	ReportPrograms      = "programs"
)

var ErrUnknownReport = errors.New("unknown report")

const (
	trailingMonths = 6
	monthLayout    = "2006-01"
)

var statusOrder = []string{"upcoming", "ongoing", "completed"}

// MonthCounts are the per-entity counts inside one calendar month.
type MonthCounts struct {
	Users         int64
	Events        int64
	Registrations int64
}

// GrowthRates are month-over-month percentage changes, already rounded.
type GrowthRates struct {
	Users         float64
	Events        float64
	Registrations float64
}

// Overview is the assembled dashboard payload.
type Overview struct {
	Totals         Totals
	ThisMonth      MonthCounts
	LastMonth      MonthCounts
	Growth         GrowthRates
	EventsByStatus []StatusCount
	GeneratedAt    time.Time
}

// RegistrationsSummary is the trailing monthly series plus the split of
// active registrations by their event's current status.
type RegistrationsSummary struct {
	Months   []MonthlyRegistrations
	ByStatus []StatusCount
}

type Service struct {
	repo   Repository
	cache  *cache.Store
	logger zerolog.Logger
}

func NewService(repo Repository, store *cache.Store, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  store,
		logger: config.Component(logger, "analytics"),
	}
}

// GrowthRate returns the month-over-month percentage change rounded to two
// decimal places. Growth from zero reports the 100 sentinel so dashboards
// show movement without a division by zero; zero to zero reports 0.
func GrowthRate(current, previous int64) float64 {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	change := float64(current-previous) / float64(previous) * 100
	return math.Round(change*100) / 100
}

// Overview returns the dashboard headline numbers, cached under a stable
// key until the next mutation invalidates it.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	if s.cache == nil {
		return s.computeOverview(ctx, time.Now().UTC())
	}
	value, err := s.cache.GetOrCompute(ctx, overviewCacheKey, func(ctx context.Context) (interface{}, error) {
		return s.computeOverview(ctx, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}
	return value.(*Overview), nil
}

func (s *Service) computeOverview(ctx context.Context, now time.Time) (*Overview, error) {
	thisStart, nextStart := monthWindow(now)
	lastStart, _ := monthWindow(thisStart.AddDate(0, 0, -1))

	var (
		totals    Totals
		thisMonth MonthCounts
		lastMonth MonthCounts
		byStatus  []StatusCount
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		totals, err = s.repo.Totals(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		thisMonth.Users, err = s.repo.NewUsersBetween(gctx, thisStart, nextStart)
		return err
	})
	g.Go(func() error {
		var err error
		lastMonth.Users, err = s.repo.NewUsersBetween(gctx, lastStart, thisStart)
		return err
	})
	g.Go(func() error {
		var err error
		thisMonth.Events, err = s.repo.NewEventsBetween(gctx, thisStart, nextStart)
		return err
	})
	g.Go(func() error {
		var err error
		lastMonth.Events, err = s.repo.NewEventsBetween(gctx, lastStart, thisStart)
		return err
	})
	g.Go(func() error {
		var err error
		thisMonth.Registrations, err = s.repo.NewRegistrationsBetween(gctx, thisStart, nextStart)
		return err
	})
	g.Go(func() error {
		var err error
		lastMonth.Registrations, err = s.repo.NewRegistrationsBetween(gctx, lastStart, thisStart)
		return err
	})
	g.Go(func() error {
		var err error
		byStatus, err = s.repo.EventCountsByStatus(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("overview aggregation: %w", err)
	}

	overview := &Overview{
		Totals:    totals,
		ThisMonth: thisMonth,
		LastMonth: lastMonth,
		Growth: GrowthRates{
			Users:         GrowthRate(thisMonth.Users, lastMonth.Users),
			Events:        GrowthRate(thisMonth.Events, lastMonth.Events),
			Registrations: GrowthRate(thisMonth.Registrations, lastMonth.Registrations),
		},
		EventsByStatus: fillStatuses(byStatus),
		GeneratedAt:    now,
	}
	s.logger.Debug().Time("generated_at", now).Msg("analytics overview computed")
	return overview, nil
}

// Registrations returns the trailing six-month registration series with
// empty months zero-filled.
func (s *Service) Registrations(ctx context.Context) (*RegistrationsSummary, error) {
	if s.cache == nil {
		return s.computeRegistrations(ctx, time.Now().UTC())
	}
	value, err := s.cache.GetOrCompute(ctx, registrationsCacheKey, func(ctx context.Context) (interface{}, error) {
		return s.computeRegistrations(ctx, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}
	return value.(*RegistrationsSummary), nil
}

func (s *Service) computeRegistrations(ctx context.Context, now time.Time) (*RegistrationsSummary, error) {
	thisStart, nextStart := monthWindow(now)
	from := thisStart.AddDate(0, -(trailingMonths - 1), 0)

	var (
		months   []MonthlyRegistrations
		byStatus []StatusCount
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		months, err = s.repo.MonthlyRegistrations(gctx, from, nextStart)
		return err
	})
	g.Go(func() error {
		var err error
		byStatus, err = s.repo.RegistrationCountsByEventStatus(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("registrations aggregation: %w", err)
	}

	return &RegistrationsSummary{
		Months:   fillMonths(now, trailingMonths, months),
		ByStatus: fillStatuses(byStatus),
	}, nil
}

// Programs returns per-program event and registration counts.
func (s *Service) Programs(ctx context.Context) ([]ProgramStats, error) {
	if s.cache == nil {
		return s.repo.ProgramStats(ctx)
	}
	value, err := s.cache.GetOrCompute(ctx, programsCacheKey, func(ctx context.Context) (interface{}, error) {
		return s.repo.ProgramStats(ctx)
	})
	if err != nil {
		return nil, err
	}
	return value.([]ProgramStats), nil
}

// Report assembles the named dataset as a column-ordered table for the
// export serializers.
func (s *Service) Report(ctx context.Context, name string) (export.Report, error) {
	switch name {
	case ReportOverview:
		return s.overviewReport(ctx)
	case ReportRegistrations:
		return s.registrationsReport(ctx)
	case ReportPrograms:
		return s.programsReport(ctx)
	default:
		return export.Report{}, fmt.Errorf("%w: %q", ErrUnknownReport, name)
	}
}

func (s *Service) overviewReport(ctx context.Context) (export.Report, error) {
	overview, err := s.Overview(ctx)
	if err != nil {
		return export.Report{}, err
	}

	rows := [][]any{
		{"Total users", overview.Totals.Users},
		{"Total events", overview.Totals.Events},
		{"Total registrations", overview.Totals.Registrations},
		{"Total messages", overview.Totals.Messages},
		{"New users this month", overview.ThisMonth.Users},
		{"New users last month", overview.LastMonth.Users},
		{"User growth %", overview.Growth.Users},
		{"New events this month", overview.ThisMonth.Events},
		{"New events last month", overview.LastMonth.Events},
		{"Event growth %", overview.Growth.Events},
		{"New registrations this month", overview.ThisMonth.Registrations},
		{"New registrations last month", overview.LastMonth.Registrations},
		{"Registration growth %", overview.Growth.Registrations},
	}
	for _, status := range overview.EventsByStatus {
		rows = append(rows, []any{capitalize(status.Status) + " events", status.Count})
	}

	return export.Report{
		Name:    ReportOverview,
		Columns: []string{"Metric", "Value"},
		Rows:    rows,
	}, nil
}

func (s *Service) registrationsReport(ctx context.Context) (export.Report, error) {
	summary, err := s.Registrations(ctx)
	if err != nil {
		return export.Report{}, err
	}

	rows := make([][]any, 0, len(summary.Months))
	for _, month := range summary.Months {
		rows = append(rows, []any{month.Month, month.Users, month.Guests, month.Users + month.Guests})
	}

	return export.Report{
		Name:    ReportRegistrations,
		Columns: []string{"Month", "User registrations", "Guest registrations", "Total"},
		Rows:    rows,
	}, nil
}

func (s *Service) programsReport(ctx context.Context) (export.Report, error) {
	stats, err := s.Programs(ctx)
	if err != nil {
		return export.Report{}, err
	}

	rows := make([][]any, 0, len(stats))
	for _, program := range stats {
		rows = append(rows, []any{program.Name, program.Events, program.Registrations})
	}

	return export.Report{
		Name:    ReportPrograms,
		Columns: []string{"Program", "Events", "Registrations"},
		Rows:    rows,
	}, nil
}

// monthWindow returns the half-open UTC calendar month containing t.
func monthWindow(t time.Time) (start, end time.Time) {
	t = t.UTC()
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// fillMonths expands a sparse month series into exactly n buckets ending
// at the month containing now.
func fillMonths(now time.Time, n int, rows []MonthlyRegistrations) []MonthlyRegistrations {
	byMonth := make(map[string]MonthlyRegistrations, len(rows))
	for _, row := range rows {
		byMonth[row.Month] = row
	}

	start, _ := monthWindow(now)
	first := start.AddDate(0, -(n - 1), 0)

	out := make([]MonthlyRegistrations, 0, n)
	for i := 0; i < n; i++ {
		key := first.AddDate(0, i, 0).Format(monthLayout)
		row, ok := byMonth[key]
		if !ok {
			row = MonthlyRegistrations{Month: key}
		}
		out = append(out, row)
	}
	return out
}

// fillStatuses returns counts for every status in display order, zero
// where the query produced no row.
func fillStatuses(rows []StatusCount) []StatusCount {
	byStatus := make(map[string]int64, len(rows))
	for _, row := range rows {
		byStatus[row.Status] = row.Count
	}

	out := make([]StatusCount, 0, len(statusOrder))
	for _, status := range statusOrder {
		out = append(out, StatusCount{Status: status, Count: byStatus[status]})
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
