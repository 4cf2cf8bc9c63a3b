package fichas

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

// Handler manages ficha endpoints. Writes pass an admin gate here before the
// service runs its own check.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	policy   *authz.Policy
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, policy *authz.Policy) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		policy:   policy,
		validate: validator.New(),
	}
}

// MountRoutes registers ficha routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/fichas", h.listFichas)
	r.Post("/fichas", h.createFicha)
	r.Get("/fichas/{id}", h.getFicha)
	r.Put("/fichas/{id}", h.updateFicha)
	r.Get("/my/fichas", h.listMine)
}

type fichaView struct {
	ID            int64   `json:"id"`
	Code          string  `json:"code"`
	ProgramName   string  `json:"program_name"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	InstructorIDs []int64 `json:"instructor_ids"`
	StudentIDs    []int64 `json:"student_ids"`
	CreatedAt     string  `json:"created_at"`
}

func toView(f Ficha) fichaView {
	return fichaView{
		ID:            f.ID,
		Code:          f.Code,
		ProgramName:   f.ProgramName,
		StartDate:     f.StartDate.Format("2006-01-02"),
		EndDate:       f.EndDate.Format("2006-01-02"),
		InstructorIDs: f.InstructorIDs,
		StudentIDs:    f.StudentIDs,
		CreatedAt:     f.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) listFichas(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	fichas, err := h.service.ListFichas(r.Context(), actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]fichaView, 0, len(fichas))
	for _, f := range fichas {
		views = append(views, toView(f))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) createFicha(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if err := h.policy.RequireAdmin(actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CreateFichaRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	ficha, err := h.service.CreateFicha(r.Context(), req, actor)
	if err != nil {
		h.logger.Warn("create ficha", slog.Any("error", err), slog.Int64("actor", actor.ID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toView(*ficha))
}

func (h *Handler) getFicha(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid ficha id")
		return
	}
	ficha, err := h.service.GetFicha(r.Context(), id, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(*ficha))
}

func (h *Handler) updateFicha(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if err := h.policy.RequireAdmin(actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid ficha id")
		return
	}
	var req UpdateFichaRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	ficha, err := h.service.UpdateFicha(r.Context(), id, req, actor)
	if err != nil {
		h.logger.Warn("update ficha", slog.Any("error", err), slog.Int64("ficha", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(*ficha))
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	fichas, err := h.service.ListMine(r.Context(), actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]fichaView, 0, len(fichas))
	for _, f := range fichas {
		views = append(views, toView(f))
	}
	httpx.JSON(w, http.StatusOK, views)
}
