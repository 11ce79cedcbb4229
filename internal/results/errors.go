package results

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrValidation marks a request rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateExamNumber is returned when an add reuses an exam number.
	ErrDuplicateExamNumber = errors.New("exam number already exists")
	// ErrNotFound is returned for unknown student ids and exam numbers.
	ErrNotFound = errors.New("student not found")
	// ErrInvalidCredentials is returned by Login for any bad username/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError carries the user-facing reason a request was rejected.
type ValidationError struct {
	Message string
	cause   error
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Unwrap lets callers match any ValidationError with errors.Is(err, ErrValidation)
// as well as with the error that caused it.
func (e *ValidationError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.cause}
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

var fieldMessages = map[string]string{
	"StudentName": "Name and ID are required",
	"IDNumber":    "Name and ID are required",
	"Subjects":    "At least one subject is required",
	"Name":        "Subject name is required",
	"ExamDate":    "Invalid exam date, expected YYYY-MM-DD",
	"NewPassword": "New password must be at least 6 characters long",
	"Current":     "Current password is required",
}

// fromValidator converts the first validator failure into a ValidationError.
func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate input: %w", err)
	}
	fe := verrs[0]
	if msg, ok := fieldMessages[fe.StructField()]; ok {
		return invalid("%s", msg)
	}
	return invalid("%s is invalid", fe.Field())
}
