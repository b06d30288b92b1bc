package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gatherspace/server/internal/api/middleware"
	"github.com/gatherspace/server/internal/api/respond"
	"github.com/gatherspace/server/internal/auth"
	"github.com/gatherspace/server/internal/domain/programs"
)

type ProgramsHandler struct {
	Programs *programs.Service
}

func NewProgramsHandler(programService *programs.Service) *ProgramsHandler {
	return &ProgramsHandler{Programs: programService}
}

type programResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id"`
	IsActive    bool      `json:"is_active"`
	EventCount  *int      `json:"event_count,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newProgramResponse(program *programs.Program) programResponse {
	return programResponse{
		ID:          program.ID,
		Name:        program.Name,
		Description: program.Description,
		OwnerID:     program.OwnerID,
		IsActive:    program.IsActive,
		CreatedAt:   program.CreatedAt,
		UpdatedAt:   program.UpdatedAt,
	}
}

// List returns active programs with event counts. Admins may include
// deactivated programs with ?include_inactive=true.
func (h *ProgramsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Programs == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	claims := middleware.Claims(r)
	includeInactive := auth.IsAdmin(claims.Role) && r.URL.Query().Get("include_inactive") == "true"

	rows, err := h.Programs.List(r.Context(), includeInactive)
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "", err)
		return
	}

	items := make([]programResponse, 0, len(rows))
	for i := range rows {
		item := newProgramResponse(&rows[i].Program)
		count := rows[i].EventCount
		item.EventCount = &count
		items = append(items, item)
	}
	respond.JSON(w, http.StatusOK, items)
}

type createProgramRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

func (h *ProgramsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Programs == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	var req createProgramRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	claims := middleware.Claims(r)
	program, err := h.Programs.Create(r.Context(), claims.UserID(), req.Name, req.Description)
	if err != nil {
		writeProgramError(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, newProgramResponse(program))
}

func (h *ProgramsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Programs == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	id, ok := pathULID(w, r, "id")
	if !ok {
		return
	}

	program, err := h.Programs.Get(r.Context(), id)
	if err != nil {
		writeProgramError(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, newProgramResponse(program))
}

type updateProgramRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	IsActive    *bool   `json:"is_active"`
}

func (h *ProgramsHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Programs == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	id, ok := pathULID(w, r, "id")
	if !ok {
		return
	}

	var req updateProgramRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	claims := middleware.Claims(r)
	program, err := h.Programs.Update(r.Context(), id, claims.UserID(), claims.Role, programs.UpdateParams{
		Name:        req.Name,
		Description: req.Description,
		IsActive:    req.IsActive,
	})
	if err != nil {
		writeProgramError(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, newProgramResponse(program))
}

func writeProgramError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, programs.ErrNotFound):
		respond.Error(w, r, http.StatusNotFound, "Program not found", err)
	case errors.Is(err, programs.ErrForbidden):
		respond.Error(w, r, http.StatusForbidden, "Not allowed to modify this program", err)
	case errors.Is(err, programs.ErrNameRequired):
		respond.Error(w, r, http.StatusBadRequest, "Program name is required", err)
	default:
		respond.Error(w, r, http.StatusInternalServerError, "", err)
	}
}
