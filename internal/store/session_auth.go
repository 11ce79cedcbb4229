package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/results/internal/model"
)

const authSessionTTL = 24 * time.Hour

// CreateAuthSession starts a session for an administrator and returns its token.
func (s *Store) CreateAuthSession(adminID int64) (string, error) {
	token, err := newSessionToken()
	if err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	issued := time.Now().UTC()
	if _, err := s.db.Exec(
		`INSERT INTO auth_sessions (id, admin_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, adminID, issued, issued.Add(authSessionTTL),
	); err != nil {
		return "", fmt.Errorf("insert auth session for admin %d: %w", adminID, err)
	}
	return token, nil
}

// GetAuthSession returns the live session for token, or nil when the token is
// unknown or past its expiry. Expired rows are removed on sight.
func (s *Store) GetAuthSession(token string) (*model.AuthSession, error) {
	var sess model.AuthSession
	err := s.db.QueryRow(
		`SELECT id, admin_id, created_at, expires_at FROM auth_sessions WHERE id = ?`, token,
	).Scan(&sess.ID, &sess.AdminID, &sess.CreatedAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read auth session: %w", err)
	}
	if !time.Now().UTC().Before(sess.ExpiresAt.UTC()) {
		if err := s.DeleteAuthSession(token); err != nil {
			slog.Warn("failed to delete expired auth session", "admin_id", sess.AdminID, "error", err)
		}
		return nil, nil
	}
	return &sess, nil
}

// DeleteAuthSession ends the session for token. Unknown tokens are ignored.
func (s *Store) DeleteAuthSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM auth_sessions WHERE id = ?`, token)
	return err
}

// DeleteAdminSessions signs an administrator out everywhere.
func (s *Store) DeleteAdminSessions(adminID int64) error {
	_, err := s.db.Exec(`DELETE FROM auth_sessions WHERE admin_id = ?`, adminID)
	return err
}

// CleanupExpiredSessions purges expired sessions and reports how many went.
func (s *Store) CleanupExpiredSessions() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM auth_sessions WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func newSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
