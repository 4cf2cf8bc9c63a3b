package attendance

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fichaflow/fichaflow/internal/authz"
	"github.com/fichaflow/fichaflow/internal/shared"
)

func newTestRouter(t *testing.T) (chi.Router, *mockRepository) {
	t.Helper()
	svc, repo := newTestService()
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, authz.NewPolicy())
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r, repo
}

func doRequest(r chi.Router, method, target, body string, actor shared.Actor) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)
	return res
}

// The role gate fires before the body is read: a student sending garbage gets
// a denial, not a validation error, and the repository is never touched.
func TestMutationRoutesGateStudentsAtTheBoundary(t *testing.T) {
	router, repo := newTestRouter(t)

	res := doRequest(router, http.MethodPost, "/sessions", "{not json", studentA)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Empty(t, repo.sessions)

	res = doRequest(router, http.MethodPost, "/sessions/1/toggle-activation", "", studentA)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = doRequest(router, http.MethodPut, "/records/1", `{"status":"present"}`, studentA)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Empty(t, repo.records)
}

func TestMutationRoutesAdmitStaffPastTheGate(t *testing.T) {
	router, repo := newTestRouter(t)

	// Malformed body past the gate reads as a validation failure.
	res := doRequest(router, http.MethodPost, "/sessions", "{not json", instructorI)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = doRequest(router, http.MethodPost, "/sessions", `{"ficha_id":1,"date":"2024-01-10","start_time":"08:00"}`, instructorI)
	require.Equal(t, http.StatusCreated, res.Code)
	assert.Len(t, repo.sessions, 1)
}
