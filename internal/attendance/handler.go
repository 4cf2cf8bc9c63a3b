package attendance

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fichaflow/fichaflow/internal/authz"
	"github.com/fichaflow/fichaflow/internal/platform/httpx"
	"github.com/fichaflow/fichaflow/internal/shared"
)

// Handler manages session and record endpoints. Mutations pass a role gate
// here before the service runs its own object-level check.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	policy   *authz.Policy
	validate *validator.Validate
	now      func() time.Time
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, policy *authz.Policy) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		policy:   policy,
		validate: validator.New(),
		now:      time.Now,
	}
}

// MountRoutes registers attendance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sessions", h.createSession)
	r.Get("/sessions/{id}", h.getSession)
	// Activation changes state, so it rides POST even though the upstream
	// interface historically exposed it on GET.
	r.Post("/sessions/{id}/toggle-activation", h.toggleActivation)
	r.Get("/sessions/{id}/attendance-log", h.attendanceLog)
	r.Put("/records/{id}", h.updateRecord)
	r.Get("/records", h.listScoped)
	r.Get("/my/records", h.myRecords)
	r.Get("/my/absences", h.myAbsences)
	r.Get("/my/sessions/today", h.todaySessions)
}

type sessionView struct {
	ID        int64  `json:"id"`
	FichaID   int64  `json:"ficha_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	IsActive  bool   `json:"is_active"`
}

type recordView struct {
	ID        int64  `json:"id"`
	SessionID int64  `json:"session_id"`
	StudentID int64  `json:"student_id"`
	Status    string `json:"status"`
}

func sessionToView(s Session) sessionView {
	return sessionView{
		ID:        s.ID,
		FichaID:   s.FichaID,
		Date:      s.Date.Format("2006-01-02"),
		StartTime: s.StartTime,
		IsActive:  s.IsActive,
	}
}

func recordToView(rec Record) recordView {
	return recordView{
		ID:        rec.ID,
		SessionID: rec.SessionID,
		StudentID: rec.StudentID,
		Status:    string(rec.Status),
	}
}

func recordsToViews(records []Record) []recordView {
	views := make([]recordView, 0, len(records))
	for _, rec := range records {
		views = append(views, recordToView(rec))
	}
	return views
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if err := h.policy.RequireStaff(actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CreateSessionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	session, err := h.service.CreateSession(r.Context(), req, actor)
	if err != nil {
		h.logger.Warn("create session", slog.Any("error", err), slog.Int64("ficha", req.FichaID), slog.Int64("actor", actor.ID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sessionToView(*session))
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	session, err := h.service.GetSession(r.Context(), id, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionToView(*session))
}

func (h *Handler) toggleActivation(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if err := h.policy.RequireStaff(actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	session, err := h.service.ToggleActivation(r.Context(), id, actor)
	if err != nil {
		h.logger.Warn("toggle activation", slog.Any("error", err), slog.Int64("session", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "success", "is_active": session.IsActive})
}

func (h *Handler) attendanceLog(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	records, err := h.service.ListForSession(r.Context(), id, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, recordsToViews(records))
}

func (h *Handler) updateRecord(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if err := h.policy.RequireStaff(actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req UpdateRecordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	status, err := ParseStatus(req.Status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	record, err := h.service.UpdateRecordStatus(r.Context(), id, status, actor)
	if err != nil {
		h.logger.Warn("update record", slog.Any("error", err), slog.Int64("record", id), slog.Int64("actor", actor.ID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, recordToView(*record))
}

func (h *Handler) listScoped(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	records, err := h.service.ListScoped(r.Context(), actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := shared.NewPagination(page, perPage, len(records))

	start := (pagination.Page - 1) * pagination.PerPage
	if start > len(records) {
		start = len(records)
	}
	end := start + pagination.PerPage
	if end > len(records) {
		end = len(records)
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       recordsToViews(records[start:end]),
		"pagination": pagination,
	})
}

func (h *Handler) myRecords(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	var statusFilter *Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		statusFilter = &status
	}
	records, err := h.service.MyRecords(r.Context(), actor, statusFilter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, recordsToViews(records))
}

func (h *Handler) myAbsences(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	records, err := h.service.MyAbsences(r.Context(), actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, recordsToViews(records))
}

func (h *Handler) todaySessions(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	now := h.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	sessions, err := h.service.TodaySessions(r.Context(), actor, today)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionToView(s))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}
