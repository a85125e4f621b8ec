package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FlashMessage is a one-time notification queued on the session.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SessionManager issues cookie sessions whose state lives in Redis under
// the harbor:session: keyspace.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	secret     []byte
}

// Session holds per-request session data.
type Session struct {
	ID        string
	values    map[string]string
	userID    string
	flashes   []FlashMessage
	manager   *SessionManager
	isNew     bool
	dirty     bool
	destroyed bool
}

// sessionRecord is the JSON shape stored in Redis.
type sessionRecord struct {
	Values  map[string]string `json:"values"`
	UserID  string            `json:"user_id"`
	Flashes []FlashMessage    `json:"flashes"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		secret:     []byte(secret),
	}
}

// Load resolves the request's session. A missing cookie or an expired
// Redis record yields a fresh session rather than an error.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			sess := sm.newSession()
			sess.ID = cookie.Value
			return sess, nil
		}
		return nil, err
	}

	var stored sessionRecord
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}

	sess := sm.newSession()
	sess.ID = cookie.Value
	sess.values = stored.Values
	sess.userID = stored.UserID
	sess.flashes = stored.Flashes
	sess.isNew = false
	sess.dirty = false
	return sess, nil
}

// Commit persists the session and writes cookie headers as needed.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.destroyed {
		if err := sm.client.Del(ctx, sm.redisKey(sess.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		http.SetCookie(w, sm.cookie("", -1, time.Time{}))
		return nil
	}

	if sess.isNew && sess.ID == "" {
		sess.ID = sm.generateSessionID()
	}

	if sess.dirty || sess.isNew {
		if err := sm.persist(ctx, sess); err != nil {
			return err
		}
		sess.dirty = false
	}

	if sess.ID != "" {
		http.SetCookie(w, sm.cookie(sess.ID, 0, time.Now().Add(sm.ttl)))
	}
	return nil
}

func (sm *SessionManager) persist(ctx context.Context, sess *Session) error {
	record := sessionRecord{Values: sess.values, UserID: sess.userID, Flashes: sess.flashes}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return sm.client.Set(ctx, sm.redisKey(sess.ID), data, sm.ttl).Err()
}

func (sm *SessionManager) cookie(value string, maxAge int, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     sm.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  expires,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	if s.values == nil {
		return ""
	}
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if s.values == nil {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// SetUserID binds the session to an authenticated user.
func (s *Session) SetUserID(id int64) {
	s.userID = strconv.FormatInt(id, 10)
	s.dirty = true
}

// UserID returns the bound user ID, or zero for anonymous sessions.
func (s *Session) UserID() int64 {
	id, _ := strconv.ParseInt(s.userID, 10, 64)
	return id
}

// AddFlash queues a flash message.
func (s *Session) AddFlash(msg FlashMessage) {
	s.flashes = append(s.flashes, msg)
	s.dirty = true
}

// PopFlash dequeues the oldest flash message, if any.
func (s *Session) PopFlash() *FlashMessage {
	if len(s.flashes) == 0 {
		return nil
	}
	msg := s.flashes[0]
	s.flashes = s.flashes[1:]
	s.dirty = true
	return &msg
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:      sm.generateSessionID(),
		values:  make(map[string]string),
		manager: sm,
		isNew:   true,
		dirty:   true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return "harbor:session:" + id
}

func (sm *SessionManager) generateSessionID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	for i := range sm.secret {
		b[i%len(b)] ^= sm.secret[i]
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
