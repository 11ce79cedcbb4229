package results

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/results/internal/model"
	"github.com/pavelanni/results/internal/store"
)

// PasswordChange is the payload of a password change request.
type PasswordChange struct {
	Current     string `json:"current_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// Authenticator verifies administrator credentials.
type Authenticator struct {
	store *store.Store
	svc   *Service
}

// NewAuthenticator creates an Authenticator over s. Validation rules are
// shared with svc.
func NewAuthenticator(s *store.Store, svc *Service) *Authenticator {
	return &Authenticator{store: s, svc: svc}
}

// Login returns the administrator matching username and password.
func (a *Authenticator) Login(username, password string) (*model.Admin, error) {
	admin, err := a.store.GetAdminByUsername(strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("get admin: %w", err)
	}
	if admin == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return admin, nil
}

// ChangePassword replaces the password of admin after verifying the current one.
func (a *Authenticator) ChangePassword(admin *model.Admin, in PasswordChange) error {
	if err := a.svc.validate.Struct(in); err != nil {
		return fromValidator(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(in.Current)); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(in.NewPassword)
	if err != nil {
		return err
	}
	if err := a.store.UpdateAdminPassword(admin.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// HashPassword returns the bcrypt hash stored for password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
