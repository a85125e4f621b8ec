package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/harbor-wms/harbor-wms/internal/auth"
	"github.com/harbor-wms/harbor-wms/internal/shared"
)

type stubRepo struct {
	user     *auth.User
	sessions map[string]int64
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	if s.sessions == nil {
		s.sessions = make(map[string]int64)
	}
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func newAuthHandler(t *testing.T, repo auth.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	handler := auth.NewHandler(nil, auth.NewService(repo), sessionManager, csrfManager)
	return handler, sessionManager
}

func doLogin(t *testing.T, handler *auth.Handler, sessionManager *shared.SessionManager, body string) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
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
	return res, sess
}

func TestLoginSuccess(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	repo := &stubRepo{user: &auth.User{ID: 7, Email: "user@test.local", Name: "Test User", PasswordHash: string(hashed), IsActive: true}}
	handler, sessionManager := newAuthHandler(t, repo)

	res, sess := doLogin(t, handler, sessionManager, `{"email":"user@test.local","password":"correctpass"}`)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var payload struct {
		User struct {
			ID int64 `json:"id"`
		} `json:"user"`
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.User.ID != 7 {
		t.Fatalf("expected user id 7, got %d", payload.User.ID)
	}
	if payload.CSRFToken == "" {
		t.Fatalf("expected csrf token in response")
	}
	if sess.UserID() != 7 {
		t.Fatalf("expected session user 7, got %d", sess.UserID())
	}
	if _, ok := repo.sessions[sess.ID]; !ok {
		t.Fatalf("expected session audit row for %s", sess.ID)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	handler, sessionManager := newAuthHandler(t, &stubRepo{user: &auth.User{ID: 1, Email: "user@test.local", PasswordHash: string(hashed), IsActive: true}})

	res, sess := doLogin(t, handler, sessionManager, `{"email":"user@test.local","password":"wrongpass1"}`)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.Code, res.Body.String())
	}
	if sess.UserID() != 0 {
		t.Fatalf("expected no session user, got %d", sess.UserID())
	}
}

func TestLoginInactiveUser(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	handler, sessionManager := newAuthHandler(t, &stubRepo{user: &auth.User{ID: 1, Email: "user@test.local", PasswordHash: string(hashed), IsActive: false}})

	res, _ := doLogin(t, handler, sessionManager, `{"email":"user@test.local","password":"correctpass"}`)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestLoginValidationError(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, &stubRepo{})

	res, _ := doLogin(t, handler, sessionManager, `{"email":"not-an-email","password":"short"}`)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestLogoutDestroysSession(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	repo := &stubRepo{user: &auth.User{ID: 7, Email: "user@test.local", PasswordHash: string(hashed), IsActive: true}}
	handler, sessionManager := newAuthHandler(t, repo)

	_, sess := doLogin(t, handler, sessionManager, `{"email":"user@test.local","password":"correctpass"}`)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionManager.CookieName(), Value: sess.ID})
	loaded, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), loaded)
	req = req.WithContext(ctx)

	res := httptest.NewRecorder()
	handler.HandleLogoutForTest(res, req)
	if err := sessionManager.Commit(ctx, res, req, loaded); err != nil {
		t.Fatalf("commit session: %v", err)
	}

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if _, ok := repo.sessions[sess.ID]; ok {
		t.Fatalf("expected session audit row removed")
	}
}
