package fichas

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/fichaflow/fichaflow/internal/authz"
	"github.com/fichaflow/fichaflow/internal/shared"
)

// The admin gate on writes fires before the body is read: non-admins sending
// garbage get a denial, not a validation error, and nothing is persisted.
func TestWriteRoutesGateNonAdminsAtTheBoundary(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, authz.NewPolicy())
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, authz.NewPolicy())
	router := chi.NewRouter()
	handler.MountRoutes(router)

	for _, actor := range []shared.Actor{instructorI, studentA} {
		req := httptest.NewRequest(http.MethodPost, "/fichas", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
		res := httptest.NewRecorder()
		router.ServeHTTP(res, req)
		assert.Equal(t, http.StatusForbidden, res.Code)

		req = httptest.NewRequest(http.MethodPut, "/fichas/1", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
		res = httptest.NewRecorder()
		router.ServeHTTP(res, req)
		assert.Equal(t, http.StatusForbidden, res.Code)
	}
	assert.Empty(t, repo.fichas)
}
