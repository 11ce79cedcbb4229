package model

import (
	"context"
	"time"
)

const (
	// DateLayout is the wire and storage format of exam dates.
	DateLayout = "2006-01-02"
	// TimestampLayout is the wire format of creation timestamps.
	TimestampLayout = "2006-01-02 15:04:05"

	// PlaceholderPhotoURL is shown for students without a photo.
	PlaceholderPhotoURL = "https://via.placeholder.com/150?text=Student"

	// DefaultExamType is used when an add request names no exam type.
	DefaultExamType = "Both"
)

// Admin is the single administrator identity allowed into the dashboard.
type Admin struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	AdminID   int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Subject is one graded entry of a student's result.
type Subject struct {
	Name string  `json:"name"`
	Mark float64 `json:"mark"`
}

// Student is a published examination result.
// TotalMarks and Grade are derived from Subjects and stored alongside them.
type Student struct {
	ID          int64
	IDNumber    string
	ExamNumber  string
	StudentName string
	PhotoURL    string
	ExamType    string
	Subjects    []Subject
	TotalMarks  float64
	Grade       string
	ExamDate    time.Time
	CreatedAt   time.Time
}

// StudentView is the JSON shape of a student returned by the API.
type StudentView struct {
	ID          int64     `json:"id"`
	IDNumber    string    `json:"id_number"`
	ExamNumber  string    `json:"exam_number"`
	StudentName string    `json:"student_name"`
	PhotoURL    string    `json:"photo_url"`
	ExamType    string    `json:"exam_type"`
	Subjects    []Subject `json:"subjects"`
	TotalMarks  float64   `json:"total_marks"`
	Grade       string    `json:"grade"`
	ExamDate    *string   `json:"exam_date"`
	CreatedAt   *string   `json:"created_at"`
	QRURL       string    `json:"qr_url,omitempty"`
	QRCodeData  string    `json:"qr_code_data,omitempty"`
}

// View renders the public representation of s.
func (s Student) View() StudentView {
	v := StudentView{
		ID:          s.ID,
		IDNumber:    s.IDNumber,
		ExamNumber:  s.ExamNumber,
		StudentName: s.StudentName,
		PhotoURL:    s.PhotoURL,
		ExamType:    s.ExamType,
		Subjects:    s.Subjects,
		TotalMarks:  s.TotalMarks,
		Grade:       s.Grade,
	}
	if v.PhotoURL == "" {
		v.PhotoURL = PlaceholderPhotoURL
	}
	if v.Subjects == nil {
		v.Subjects = []Subject{}
	}
	if !s.ExamDate.IsZero() {
		d := s.ExamDate.Format(DateLayout)
		v.ExamDate = &d
	}
	if !s.CreatedAt.IsZero() {
		c := s.CreatedAt.Format(TimestampLayout)
		v.CreatedAt = &c
	}
	return v
}

type adminCtxKey struct{}

// ContextWithAdmin stores the authenticated administrator in the request context.
func ContextWithAdmin(ctx context.Context, a *Admin) context.Context {
	return context.WithValue(ctx, adminCtxKey{}, a)
}

// AdminFromContext retrieves the authenticated administrator from context, or nil.
func AdminFromContext(ctx context.Context) *Admin {
	a, _ := ctx.Value(adminCtxKey{}).(*Admin)
	return a
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	PublicURL     string // Base URL used in lookup links; empty means derive from the request
	UploadDir     string // Directory photos are written to
	MaxUploadSize int64  // Bytes accepted in a multipart add request
	SessionSecret string // Key for signing session cookies
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
}
