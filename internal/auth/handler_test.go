package auth_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/fichaflow/fichaflow/internal/auth"
	"github.com/fichaflow/fichaflow/internal/shared"
	"github.com/fichaflow/fichaflow/internal/users"
)

type stubRepo struct {
	user            *users.User
	createdSessions []string
	deletedSessions []string
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	if s.user == nil {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.createdSessions = append(s.createdSessions, id)
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	s.deletedSessions = append(s.deletedSessions, id)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAuthHandler(t *testing.T, repo auth.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	handler := auth.NewHandler(discardLogger(), auth.NewService(repo), sessionManager)
	return handler, sessionManager
}

func instructorAccount(t *testing.T, password string) *users.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &users.User{
		ID:           10,
		Email:        "instructor@test.local",
		Name:         "Test Instructor",
		PasswordHash: string(hashed),
		Role:         shared.RoleInstructor,
		IsActive:     true,
	}
}

func TestLoginSuccessBindsSession(t *testing.T) {
	repo := &stubRepo{user: instructorAccount(t, "correctpass")}
	handler, sessionManager := newAuthHandler(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"instructor@test.local","password":"correctpass"}`))
	req.Header.Set("Content-Type", "application/json")

	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)
	if err := sessionManager.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", res.Code, res.Body.String())
	}
	if sess.User() != "10" || sess.Role() != "instructor" {
		t.Fatalf("session not bound: user=%q role=%q", sess.User(), sess.Role())
	}
	if len(repo.createdSessions) != 1 {
		t.Fatalf("expected one audited session, got %d", len(repo.createdSessions))
	}
	if !strings.Contains(res.Body.String(), `"instructor@test.local"`) {
		t.Fatalf("expected account in body: %s", res.Body.String())
	}
	if strings.Contains(res.Body.String(), "password") {
		t.Fatalf("credentials leaked in body: %s", res.Body.String())
	}
}

func TestLoginWrongPassword(t *testing.T) {
	repo := &stubRepo{user: instructorAccount(t, "correctpass")}
	handler, sessionManager := newAuthHandler(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"instructor@test.local","password":"wrongpass1"}`))
	req.Header.Set("Content-Type", "application/json")

	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	if sess.User() != "" {
		t.Fatalf("session should stay anonymous, got user %q", sess.User())
	}
}

func TestLoginUnknownAccountAndInactive(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, &stubRepo{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"nobody@test.local","password":"whatever12"}`))
	req.Header.Set("Content-Type", "application/json")
	sess, _ := sessionManager.Load(context.Background(), req)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown account, got %d", res.Code)
	}

	inactive := instructorAccount(t, "correctpass")
	inactive.IsActive = false
	handler, sessionManager = newAuthHandler(t, &stubRepo{user: inactive})

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"instructor@test.local","password":"correctpass"}`))
	req.Header.Set("Content-Type", "application/json")
	sess, _ = sessionManager.Load(context.Background(), req)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res = httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for inactive account, got %d", res.Code)
	}
}

func TestLoginRejectsMalformedPayload(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, &stubRepo{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"not-an-email","password":"short"}`))
	req.Header.Set("Content-Type", "application/json")
	sess, _ := sessionManager.Load(context.Background(), req)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestLogoutRemovesSession(t *testing.T) {
	repo := &stubRepo{user: instructorAccount(t, "correctpass")}
	handler, sessionManager := newAuthHandler(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	sess.SetUser("10", "instructor")
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)

	res := httptest.NewRecorder()
	handler.HandleLogoutForTest(res, req)
	if err := sessionManager.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if len(repo.deletedSessions) != 1 {
		t.Fatalf("expected one deleted session, got %d", len(repo.deletedSessions))
	}
}
