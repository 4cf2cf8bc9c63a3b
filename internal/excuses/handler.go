package excuses

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fichaflow/fichaflow/internal/platform/httpx"
	"github.com/fichaflow/fichaflow/internal/shared"
)

// Handler manages excuse endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// MountRoutes registers excuse routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/excuses", h.submit)
	r.Post("/excuses/{id}/review", h.review)
	r.Get("/my/excuses", h.myExcuses)
	r.Get("/excuses/pending", h.pending)
}

type excuseView struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	StudentID int64  `json:"student_id"`
	SessionID int64  `json:"session_id"`
	Reason    string `json:"reason"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func toView(e Excuse) excuseView {
	return excuseView{
		ID:        e.ID,
		Code:      e.Code,
		StudentID: e.StudentID,
		SessionID: e.SessionID,
		Reason:    e.Reason,
		Status:    string(e.Status),
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}

func toViews(excuses []Excuse) []excuseView {
	views := make([]excuseView, 0, len(excuses))
	for _, e := range excuses {
		views = append(views, toView(e))
	}
	return views
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	var req SubmitExcuseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	excuse, err := h.service.Submit(r.Context(), req, actor)
	if err != nil {
		h.logger.Warn("submit excuse", slog.Any("error", err), slog.Int64("session", req.SessionID), slog.Int64("actor", actor.ID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toView(*excuse))
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid excuse id")
		return
	}
	var req ReviewExcuseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	verdict, err := ParseVerdict(req.Verdict)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	excuse, err := h.service.Review(r.Context(), id, verdict, actor)
	if err != nil {
		h.logger.Warn("review excuse", slog.Any("error", err), slog.Int64("excuse", id), slog.Int64("actor", actor.ID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(*excuse))
}

func (h *Handler) myExcuses(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	excuses, err := h.service.MyExcuses(r.Context(), actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toViews(excuses))
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	excuses, err := h.service.PendingForReview(r.Context(), actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toViews(excuses))
}
