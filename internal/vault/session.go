package vault

import (
	"context"
	"fmt"

	"github.com/systmms/secret-loader/internal/logging"
	"github.com/systmms/secret-loader/internal/secure"
)

// PasswordEnv is the variable `bw unlock --passwordenv` reads.
const PasswordEnv = "BW_PASSWORD"

// Session is an unlocked vault session. It is valid for one fetch and must be
// closed by the SessionManager that opened it.
type Session struct {
	token *secure.SecureBuffer
}

// Token decrypts the session token for a single CLI call.
func (s *Session) Token() (string, error) {
	if s.Closed() {
		return "", fmt.Errorf("vault session already closed")
	}
	return s.token.String()
}

// Closed reports whether the session token has been destroyed.
func (s *Session) Closed() bool {
	return s.token.Destroyed()
}

// SessionManager runs the logout → login → unlock (→ sync) protocol.
type SessionManager struct {
	client      Client
	passwordEnv string
	sync        bool
	logger      *logging.Logger
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithSync runs `sync` right after unlocking.
func WithSync(enabled bool) SessionOption {
	return func(m *SessionManager) { m.sync = enabled }
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *logging.Logger) SessionOption {
	return func(m *SessionManager) { m.logger = l }
}

// NewSessionManager creates a manager over client.
func NewSessionManager(client Client, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		client:      client,
		passwordEnv: PasswordEnv,
		logger:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open starts from a clean logout, logs in with the API key and unlocks.
// Any failing step aborts; the caller still owes a Close.
func (m *SessionManager) Open(ctx context.Context) (*Session, error) {
	// stale login state makes the next login fail
	if err := m.client.Logout(ctx); err != nil {
		m.logger.Debug("Pre-login logout failed (ignored): %v", err)
	}

	if err := m.client.Login(ctx); err != nil {
		return nil, err
	}

	token, err := m.client.Unlock(ctx, m.passwordEnv)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("Vault unlocked, session %s", logging.Secret(token))

	buf, err := secure.NewSecureString(token)
	if err != nil {
		return nil, fmt.Errorf("failed to protect session token: %w", err)
	}
	session := &Session{token: buf}

	if m.sync {
		if err := m.client.Sync(ctx, token); err != nil {
			return session, err
		}
	}
	return session, nil
}

// Close logs out and destroys the session token. It is safe to call with a
// nil or already closed session, and always logs out in those cases too.
func (m *SessionManager) Close(ctx context.Context, s *Session) error {
	if s != nil {
		s.token.Destroy()
	}
	if err := m.client.Logout(ctx); err != nil {
		return fmt.Errorf("vault logout failed: %w", err)
	}
	return nil
}
