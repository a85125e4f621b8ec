package shared

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

const (
	// CSRFSessionKey is the key used to persist tokens in the session store.
	CSRFSessionKey = "csrf_token"
	// CSRFFormField is the form field name carrying the CSRF token.
	CSRFFormField = "csrf_token"

	csrfNonceBytes = 24
)

// CSRFManager issues and verifies CSRF tokens bound to a session.
type CSRFManager struct {
	secret []byte
}

// NewCSRFManager returns a CSRFManager using the provided secret key.
func NewCSRFManager(secret string) *CSRFManager {
	return &CSRFManager{secret: []byte(secret)}
}

// EnsureToken returns the session's CSRF token, minting one on first use.
func (m *CSRFManager) EnsureToken(ctx context.Context, sess *Session) (string, error) {
	if sess == nil {
		return "", errors.New("session missing")
	}
	if token := sess.Get(CSRFSessionKey); token != "" {
		return token, nil
	}
	token, err := m.mintToken(sess.ID)
	if err != nil {
		return "", err
	}
	sess.Set(CSRFSessionKey, token)
	return token, nil
}

// VerifyToken checks the supplied token against the session copy in
// constant time.
func (m *CSRFManager) VerifyToken(ctx context.Context, sess *Session, token string) error {
	if sess == nil || token == "" {
		return ErrCSRFTokenMissing
	}
	expected := sess.Get(CSRFSessionKey)
	if expected == "" {
		return ErrCSRFTokenMissing
	}
	if !hmac.Equal([]byte(expected), []byte(token)) {
		return ErrCSRFTokenMismatch
	}
	return nil
}

// mintToken builds a token from a random nonce plus a digest keyed to
// the session, so a token lifted from one session is useless in another.
func (m *CSRFManager) mintToken(sessionID string) (string, error) {
	nonce := make([]byte, csrfNonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, m.secret)
	_, _ = mac.Write([]byte(sessionID))
	_, _ = mac.Write(nonce)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nonce)), nil
}
