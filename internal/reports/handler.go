package reports

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/fichaflow/fichaflow/internal/authz"
	"github.com/fichaflow/fichaflow/internal/platform/httpx"
	"github.com/fichaflow/fichaflow/internal/shared"
)

// PDFRenderer turns a report payload into PDF bytes.
type PDFRenderer interface {
	RenderGlobalReport(ctx context.Context, payload ExportPayload) ([]byte, error)
}

// GlobalCSVWriter serialises the global report for download.
type GlobalCSVWriter func(w io.Writer, report GlobalReport) error

// Handler serves report and dashboard endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	cache     *Cache
	policy    *authz.Policy
	renderer  PDFRenderer
	csvWriter GlobalCSVWriter
	now       func() time.Time
}

// NewHandler builds a Handler instance. renderer may be nil when PDF
// export is not configured.
func NewHandler(logger *slog.Logger, service *Service, cache *Cache, policy *authz.Policy, renderer PDFRenderer, csvWriter GlobalCSVWriter) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		cache:     cache,
		policy:    policy,
		renderer:  renderer,
		csvWriter: csvWriter,
		now:       time.Now,
	}
}

// MountRoutes registers report routes. The PDF export is rate limited per
// user because every render walks the full fact set and calls Gotenberg.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/global", h.globalReport)
	r.Get("/reports/top-fichas", h.topFichas)
	r.Get("/reports/top-instructors", h.topInstructors)
	r.Get("/reports/fichas/{id}/matrix", h.fichaMatrix)
	r.Get("/students/{id}/attendance-percentage", h.attendancePercentage)
	r.Get("/dashboard/instructor", h.instructorDashboard)
	r.Get("/dashboard/student", h.studentDashboard)

	limiter := httprate.Limit(5, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		if actor := shared.ActorFromContext(r.Context()); !actor.IsZero() {
			return "user:" + strconv.FormatInt(actor.ID, 10), nil
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return "ip:" + r.RemoteAddr, nil
		}
		return "ip:" + host, nil
	}))
	r.With(limiter).Get("/reports/global/export.pdf", h.exportPDF)
	r.With(limiter).Get("/reports/global/export.csv", h.exportCSV)
}

func (h *Handler) globalReport(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if err := h.policy.RequireAdmin(actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter, err := ParseFilter(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	key, err := h.cache.BuildKey(r.Context(), keyGlobal(filter))
	if err != nil {
		h.logger.Warn("report cache key", slog.Any("error", err))
		key = keyGlobal(filter)
	}
	result, err, _ := singleflightBuild(r.Context(), key, func(ctx context.Context) (interface{}, error) {
		var report GlobalReport
		err := h.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (interface{}, error) {
			return h.service.Global(ctx, actor, filter)
		})
		return report, err
	})
	if err != nil {
		h.logger.Warn("global report", slog.Any("error", err), slog.Int64("actor", actor.ID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) topFichas(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if err := h.policy.RequireAdmin(actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter, err := ParseFilter(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	key, keyErr := h.cache.BuildKey(r.Context(), keyTopFichas(filter))
	if keyErr != nil {
		key = keyTopFichas(filter)
	}
	var entries []RankingEntry
	err = h.cache.FetchJSON(r.Context(), key, &entries, func(ctx context.Context) (interface{}, error) {
		return h.service.TopFichasByAbsences(ctx, actor, filter)
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) topInstructors(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if err := h.policy.RequireAdmin(actor); err != nil {
		httpx.RespondError(w, err)
		return
	}

	key, keyErr := h.cache.BuildKey(r.Context(), keyTopInstructors())
	if keyErr != nil {
		key = keyTopInstructors()
	}
	var entries []RankingEntry
	err := h.cache.FetchJSON(r.Context(), key, &entries, func(ctx context.Context) (interface{}, error) {
		return h.service.TopInstructorsBySessions(ctx, actor)
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

type matrixSessionView struct {
	ID        int64  `json:"id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	IsActive  bool   `json:"is_active"`
}

type matrixView struct {
	FichaID    int64                        `json:"ficha_id"`
	Sessions   []matrixSessionView          `json:"sessions"`
	StudentIDs []int64                      `json:"student_ids"`
	Statuses   map[string]map[string]string `json:"statuses"`
}

func matrixToView(m FichaMatrix) matrixView {
	view := matrixView{
		FichaID:    m.FichaID,
		Sessions:   make([]matrixSessionView, 0, len(m.Sessions)),
		StudentIDs: m.StudentIDs,
		Statuses:   make(map[string]map[string]string),
	}
	for _, s := range m.Sessions {
		view.Sessions = append(view.Sessions, matrixSessionView{
			ID:        s.ID,
			Date:      s.Date.Format("2006-01-02"),
			StartTime: s.StartTime,
			IsActive:  s.IsActive,
		})
	}
	for key, status := range m.Statuses {
		student := strconv.FormatInt(key.StudentID, 10)
		if view.Statuses[student] == nil {
			view.Statuses[student] = make(map[string]string)
		}
		view.Statuses[student][strconv.FormatInt(key.SessionID, 10)] = string(status)
	}
	return view
}

func (h *Handler) fichaMatrix(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	matrix, err := h.service.Matrix(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, matrixToView(matrix))
}

func (h *Handler) attendancePercentage(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	pct, err := h.service.AttendancePercentageFor(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"student_id": id, "attendance_percentage": pct})
}

func (h *Handler) instructorDashboard(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	dash, err := h.service.InstructorDashboard(r.Context(), actor, h.now())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dash)
}

func (h *Handler) studentDashboard(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	dash, err := h.service.StudentDashboard(r.Context(), actor, h.now())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dash)
}

func (h *Handler) exportPDF(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if err := h.policy.RequireAdmin(actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if h.renderer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Export Unavailable", "pdf rendering is not configured")
		return
	}

	ctx := r.Context()
	global, err := h.service.Global(ctx, actor, Filter{})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	topFichas, err := h.service.TopFichasByAbsences(ctx, actor, Filter{})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	topInstructors, err := h.service.TopInstructorsBySessions(ctx, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	pdf, err := h.renderer.RenderGlobalReport(ctx, ExportPayload{
		GeneratedAt:    h.now(),
		Global:         global,
		TopFichas:      topFichas,
		TopInstructors: topInstructors,
	})
	if err != nil {
		h.logger.Error("render report pdf", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Export Failed", "pdf rendering failed")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="attendance-report.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if err := h.policy.RequireAdmin(actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if h.csvWriter == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Export Unavailable", "csv export is not configured")
		return
	}

	global, err := h.service.Global(r.Context(), actor, Filter{})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="attendance-report.csv"`)
	if err := h.csvWriter(w, global); err != nil {
		h.logger.Error("write report csv", slog.Any("error", err))
	}
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}
