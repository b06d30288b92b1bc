package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gatherspace/server/internal/api/respond"
	"github.com/gatherspace/server/internal/domain/analytics"
	"github.com/gatherspace/server/internal/export"
	"github.com/gatherspace/server/internal/metrics"
)

// AnalyticsHandler serves the admin dashboard aggregates and the export
// pipeline. All reads go through the cache facade inside the service.
type AnalyticsHandler struct {
	Analytics *analytics.Service
}

func NewAnalyticsHandler(analyticsService *analytics.Service) *AnalyticsHandler {
	return &AnalyticsHandler{Analytics: analyticsService}
}

type statusCountResponse struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type monthCountsResponse struct {
	Users         int64 `json:"users"`
	Events        int64 `json:"events"`
	Registrations int64 `json:"registrations"`
}

type overviewResponse struct {
	Totals struct {
		Users         int64 `json:"users"`
		Events        int64 `json:"events"`
		Registrations int64 `json:"registrations"`
		Messages      int64 `json:"messages"`
	} `json:"totals"`
	ThisMonth monthCountsResponse `json:"this_month"`
	LastMonth monthCountsResponse `json:"last_month"`
	Growth    struct {
		Users         float64 `json:"users"`
		Events        float64 `json:"events"`
		Registrations float64 `json:"registrations"`
	} `json:"growth"`
	EventsByStatus []statusCountResponse `json:"events_by_status"`
	GeneratedAt    time.Time             `json:"generated_at"`
}

func (h *AnalyticsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Analytics == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	overview, err := h.Analytics.Overview(r.Context())
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "", err)
		return
	}

	var resp overviewResponse
	resp.Totals.Users = overview.Totals.Users
	resp.Totals.Events = overview.Totals.Events
	resp.Totals.Registrations = overview.Totals.Registrations
	resp.Totals.Messages = overview.Totals.Messages
	resp.ThisMonth = monthCountsResponse(overview.ThisMonth)
	resp.LastMonth = monthCountsResponse(overview.LastMonth)
	resp.Growth.Users = overview.Growth.Users
	resp.Growth.Events = overview.Growth.Events
	resp.Growth.Registrations = overview.Growth.Registrations
	resp.EventsByStatus = statusCounts(overview.EventsByStatus)
	resp.GeneratedAt = overview.GeneratedAt

	respond.JSON(w, http.StatusOK, resp)
}

type monthlyRegistrationsResponse struct {
	Month  string `json:"month"`
	Users  int64  `json:"users"`
	Guests int64  `json:"guests"`
	Total  int64  `json:"total"`
}

type registrationsSummaryResponse struct {
	Months   []monthlyRegistrationsResponse `json:"months"`
	ByStatus []statusCountResponse          `json:"by_status"`
}

func (h *AnalyticsHandler) Registrations(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Analytics == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	summary, err := h.Analytics.Registrations(r.Context())
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "", err)
		return
	}

	resp := registrationsSummaryResponse{
		Months:   make([]monthlyRegistrationsResponse, 0, len(summary.Months)),
		ByStatus: statusCounts(summary.ByStatus),
	}
	for _, month := range summary.Months {
		resp.Months = append(resp.Months, monthlyRegistrationsResponse{
			Month:  month.Month,
			Users:  month.Users,
			Guests: month.Guests,
			Total:  month.Users + month.Guests,
		})
	}
	respond.JSON(w, http.StatusOK, resp)
}

type programStatsResponse struct {
	ProgramID     string `json:"program_id"`
	Name          string `json:"name"`
	Events        int64  `json:"events"`
	Registrations int64  `json:"registrations"`
}

func (h *AnalyticsHandler) Programs(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Analytics == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	stats, err := h.Analytics.Programs(r.Context())
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "", err)
		return
	}

	items := make([]programStatsResponse, 0, len(stats))
	for _, row := range stats {
		items = append(items, programStatsResponse{
			ProgramID:     row.ProgramID,
			Name:          row.Name,
			Events:        row.Events,
			Registrations: row.Registrations,
		})
	}
	respond.JSON(w, http.StatusOK, items)
}

// Export streams the selected report as a download. The payload skips
// the JSON envelope; errors before the first byte still use it.
func (h *AnalyticsHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Analytics == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		respond.Error(w, r, http.StatusBadRequest, "Unknown export format", err)
		return
	}

	name := r.URL.Query().Get("report")
	if name == "" {
		name = analytics.ReportOverview
	}

	start := time.Now()
	report, err := h.Analytics.Report(r.Context(), name)
	if err != nil {
		if errors.Is(err, analytics.ErrUnknownReport) {
			respond.Error(w, r, http.StatusBadRequest, "Unknown report", err)
			return
		}
		respond.Error(w, r, http.StatusInternalServerError, "", err)
		return
	}

	if err := export.WriteAttachment(w, report, format, time.Now()); err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "", err)
		return
	}

	metrics.ExportsGeneratedTotal.WithLabelValues(name, format).Inc()
	metrics.ExportDuration.WithLabelValues(name, format).Observe(time.Since(start).Seconds())
}

func statusCounts(rows []analytics.StatusCount) []statusCountResponse {
	out := make([]statusCountResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, statusCountResponse{Status: row.Status, Count: row.Count})
	}
	return out
}
