package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/harbor-wms/harbor-wms/internal/shared"
)

func newSessionManager(t *testing.T) *shared.SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
}

func TestSessionRoundTripKeepsUserID(t *testing.T) {
	sm := newSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.Zero(t, sess.UserID())

	sess.SetUserID(42)
	sess.Set("site", "main")
	res := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, res, req, sess))
	require.NotEmpty(t, res.Result().Cookies())

	again := httptest.NewRequest(http.MethodGet, "/", nil)
	again.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: sess.ID})
	loaded, err := sm.Load(ctx, again)
	require.NoError(t, err)
	require.Equal(t, int64(42), loaded.UserID())
	require.Equal(t, "main", loaded.Get("site"))
}

func TestSessionFlashesDrainAfterPop(t *testing.T) {
	sm := newSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	sess.AddFlash(shared.FlashMessage{Kind: "info", Message: "request submitted"})
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), req, sess))

	again := httptest.NewRequest(http.MethodGet, "/", nil)
	again.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: sess.ID})
	loaded, err := sm.Load(ctx, again)
	require.NoError(t, err)

	msg := loaded.PopFlash()
	require.NotNil(t, msg)
	require.Equal(t, "request submitted", msg.Message)
	require.Nil(t, loaded.PopFlash())
}

func TestSessionDestroyClearsState(t *testing.T) {
	sm := newSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	sess.SetUserID(7)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), req, sess))

	sm.Destroy(sess)
	res := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, res, req, sess))

	again := httptest.NewRequest(http.MethodGet, "/", nil)
	again.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: sess.ID})
	loaded, err := sm.Load(ctx, again)
	require.NoError(t, err)
	require.Zero(t, loaded.UserID())
}

func TestCSRFTokensAreSessionBound(t *testing.T) {
	sm := newSessionManager(t)
	csrf := shared.NewCSRFManager("topsecret")
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	token, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// The token is stable for the life of the session.
	same, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	require.Equal(t, token, same)

	require.NoError(t, csrf.VerifyToken(ctx, sess, token))
	require.ErrorIs(t, csrf.VerifyToken(ctx, sess, token+"x"), shared.ErrCSRFTokenMismatch)
	require.ErrorIs(t, csrf.VerifyToken(ctx, sess, ""), shared.ErrCSRFTokenMissing)

	other, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	otherToken, err := csrf.EnsureToken(ctx, other)
	require.NoError(t, err)
	require.NotEqual(t, token, otherToken)
}
