package store

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/pavelanni/results/internal/model"
)

// CreateAdmin inserts a new administrator.
func (s *Store) CreateAdmin(a model.Admin) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO admins (username, password_hash, created_at) VALUES (?, ?, ?)`,
		a.Username, a.PasswordHash, time.Now().UTC(),
	)
	if err != nil {
		slog.Error("failed to create admin", "username", a.Username, "error", err)
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("created admin", "id", id, "username", a.Username)
	return id, nil
}

// GetAdminByUsername returns an administrator by username, or nil if absent.
func (s *Store) GetAdminByUsername(username string) (*model.Admin, error) {
	var a model.Admin
	err := s.db.QueryRow(
		`SELECT id, username, password_hash, created_at FROM admins WHERE username = ?`, username,
	).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAdminByID returns an administrator by ID, or nil if absent.
func (s *Store) GetAdminByID(id int64) (*model.Admin, error) {
	var a model.Admin
	err := s.db.QueryRow(
		`SELECT id, username, password_hash, created_at FROM admins WHERE id = ?`, id,
	).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAdminPassword replaces the stored password hash.
func (s *Store) UpdateAdminPassword(id int64, passwordHash string) error {
	_, err := s.db.Exec(`UPDATE admins SET password_hash = ? WHERE id = ?`, passwordHash, id)
	return err
}

// AdminCount returns the total number of administrators.
func (s *Store) AdminCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM admins`).Scan(&count)
	return count, err
}
