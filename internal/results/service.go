// Package results implements the student record and public lookup operations.
package results

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/results/internal/grading"
	"github.com/pavelanni/results/internal/model"
	"github.com/pavelanni/results/internal/photo"
	"github.com/pavelanni/results/internal/qr"
	"github.com/pavelanni/results/internal/store"
)

// PhotoPath is the URL prefix stored photos are served under.
const PhotoPath = "/uploads/photos/"

// SubjectInput is a subject as submitted; Mark may be a number or a numeric string.
type SubjectInput struct {
	Name string `json:"name" validate:"required"`
	Mark any    `json:"mark"`
}

// Upload is a photo file attached to an add request.
type Upload struct {
	Filename string
	Content  io.Reader
}

// AddInput is the payload of an add request.
type AddInput struct {
	StudentName string         `json:"student_name" validate:"required"`
	IDNumber    string         `json:"id_number" validate:"required"`
	ExamNumber  string         `json:"exam_number"`
	ExamType    string         `json:"exam_type"`
	Subjects    []SubjectInput `json:"subjects" validate:"required,min=1,dive"`
	PhotoURL    string         `json:"photo_url"`
	ExamDate    string         `json:"exam_date" validate:"omitempty,datetime=2006-01-02"`
	Photo       *Upload        `json:"-" validate:"-"`
}

// UpdateInput is a partial update; nil fields are left untouched.
type UpdateInput struct {
	StudentName *string        `json:"student_name"`
	IDNumber    *string        `json:"id_number"`
	ExamType    *string        `json:"exam_type"`
	Subjects    []SubjectInput `json:"subjects" validate:"omitempty,dive"`
	PhotoURL    *string        `json:"photo_url"`
	ExamDate    *string        `json:"exam_date"`
}

// LookupToken is a lookup URL together with its QR image.
type LookupToken struct {
	URL     string `json:"qr_url"`
	DataURL string `json:"qr_code_data"`
}

// Service owns student records. Callers pass the public base URL used to
// build lookup links and photo references.
type Service struct {
	store    *store.Store
	photos   *photo.Saver
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates a Service backed by s, saving photos with photos.
func NewService(s *store.Store, photos *photo.Saver) *Service {
	return &Service{
		store:    s,
		photos:   photos,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// LookupURL returns the public page URL that pre-fills examNumber.
func LookupURL(base, examNumber string) string {
	return strings.TrimRight(base, "/") + "/?exam=" + url.QueryEscape(examNumber)
}

// List returns every student, newest first.
func (s *Service) List(ctx context.Context) ([]model.StudentView, error) {
	students, err := s.store.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	views := make([]model.StudentView, 0, len(students))
	for _, st := range students {
		views = append(views, st.View())
	}
	return views, nil
}

// Get returns a student by id.
func (s *Service) Get(ctx context.Context, id int64) (*model.Student, error) {
	st, err := s.store.GetStudent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get student %d: %w", id, err)
	}
	if st == nil {
		return nil, ErrNotFound
	}
	return st, nil
}

// Add validates in, stores any attached photo, grades the subjects and
// persists a new student. The returned view carries a lookup token.
func (s *Service) Add(ctx context.Context, in AddInput, base string) (model.StudentView, error) {
	in.StudentName = strings.TrimSpace(in.StudentName)
	in.IDNumber = strings.TrimSpace(in.IDNumber)
	in.ExamNumber = strings.TrimSpace(in.ExamNumber)
	in.ExamType = strings.TrimSpace(in.ExamType)
	in.PhotoURL = strings.TrimSpace(in.PhotoURL)
	in.ExamDate = strings.TrimSpace(in.ExamDate)
	for i := range in.Subjects {
		in.Subjects[i].Name = strings.TrimSpace(in.Subjects[i].Name)
	}

	if err := s.validate.Struct(in); err != nil {
		return model.StudentView{}, fromValidator(err)
	}
	subjects, err := toSubjects(in.Subjects)
	if err != nil {
		return model.StudentView{}, err
	}

	now := s.now()
	examDate := civilDate(now)
	if in.ExamDate != "" {
		examDate, err = parseDate(in.ExamDate)
		if err != nil {
			return model.StudentView{}, err
		}
	}
	if in.ExamType == "" {
		in.ExamType = model.DefaultExamType
	}

	var photoName string
	if in.Photo != nil && in.Photo.Filename != "" && s.photos != nil {
		photoName, err = s.photos.Save(in.IDNumber, in.Photo.Filename, in.Photo.Content, now)
		if err != nil {
			return model.StudentView{}, fmt.Errorf("save photo: %w", err)
		}
	}
	photoURL := in.PhotoURL
	if photoName != "" {
		photoURL = strings.TrimRight(base, "/") + PhotoPath + photoName
	}
	if photoURL == "" {
		photoURL = model.PlaceholderPhotoURL
	}

	g := grading.Grade(subjects)
	created, err := s.store.CreateStudent(ctx, model.Student{
		IDNumber:    in.IDNumber,
		ExamNumber:  in.ExamNumber,
		StudentName: in.StudentName,
		PhotoURL:    photoURL,
		ExamType:    in.ExamType,
		Subjects:    subjects,
		TotalMarks:  g.Total,
		Grade:       g.Letter,
		ExamDate:    examDate,
	}, now.Year())
	if err != nil {
		// photoName was created by this call, never shared with another record.
		if photoName != "" {
			if rmErr := s.photos.Remove(photoName); rmErr != nil {
				slog.Warn("failed to remove orphaned photo", "name", photoName, "error", rmErr)
			}
		}
		if errors.Is(err, store.ErrDuplicateExamNumber) {
			return model.StudentView{}, ErrDuplicateExamNumber
		}
		return model.StudentView{}, fmt.Errorf("create student: %w", err)
	}

	return s.enrich(created.View(), base)
}

// Update overwrites only the fields present in in. A non-empty subjects list
// replaces the stored one and regrades; an empty one leaves the grade alone.
// The exam number cannot be changed.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (model.StudentView, error) {
	if in.StudentName != nil {
		v := strings.TrimSpace(*in.StudentName)
		if v == "" {
			return model.StudentView{}, invalid("Name and ID are required")
		}
		in.StudentName = &v
	}
	if in.IDNumber != nil {
		v := strings.TrimSpace(*in.IDNumber)
		if v == "" {
			return model.StudentView{}, invalid("Name and ID are required")
		}
		in.IDNumber = &v
	}
	for i := range in.Subjects {
		in.Subjects[i].Name = strings.TrimSpace(in.Subjects[i].Name)
	}
	if err := s.validate.Struct(in); err != nil {
		return model.StudentView{}, fromValidator(err)
	}

	var subjects []model.Subject
	if len(in.Subjects) > 0 {
		var err error
		if subjects, err = toSubjects(in.Subjects); err != nil {
			return model.StudentView{}, err
		}
	}
	var examDate time.Time
	if in.ExamDate != nil && strings.TrimSpace(*in.ExamDate) != "" {
		var err error
		if examDate, err = parseDate(strings.TrimSpace(*in.ExamDate)); err != nil {
			return model.StudentView{}, err
		}
	}

	updated, err := s.store.UpdateStudent(ctx, id, func(st *model.Student) error {
		if in.StudentName != nil {
			st.StudentName = *in.StudentName
		}
		if in.IDNumber != nil {
			st.IDNumber = *in.IDNumber
		}
		if in.ExamType != nil {
			st.ExamType = strings.TrimSpace(*in.ExamType)
		}
		if len(subjects) > 0 {
			g := grading.Grade(subjects)
			st.Subjects = subjects
			st.TotalMarks = g.Total
			st.Grade = g.Letter
		}
		if in.PhotoURL != nil && strings.TrimSpace(*in.PhotoURL) != "" {
			st.PhotoURL = strings.TrimSpace(*in.PhotoURL)
		}
		if !examDate.IsZero() {
			st.ExamDate = examDate
		}
		return nil
	})
	if err != nil {
		return model.StudentView{}, fmt.Errorf("update student %d: %w", id, err)
	}
	if updated == nil {
		return model.StudentView{}, ErrNotFound
	}
	return updated.View(), nil
}

// Delete removes a student permanently.
func (s *Service) Delete(ctx context.Context, id int64) error {
	deleted, err := s.store.DeleteStudent(ctx, id)
	if err != nil {
		return fmt.Errorf("delete student %d: %w", id, err)
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

// ExportCSV writes all students to w and returns the number of rows.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	n, err := s.store.WriteStudentsCSV(ctx, w)
	if err != nil {
		return 0, fmt.Errorf("export students: %w", err)
	}
	return n, nil
}

// ExportFilename names the CSV attachment for the given day.
func ExportFilename(now time.Time) string {
	return "students_export_" + now.Format("20060102") + ".csv"
}

// Resolve finds the result for an exact exam number and attaches a lookup token.
func (s *Service) Resolve(ctx context.Context, examNumber, base string) (model.StudentView, error) {
	examNumber = strings.TrimSpace(examNumber)
	if examNumber == "" {
		return model.StudentView{}, invalid("Exam number required")
	}
	st, err := s.store.GetStudentByExamNumber(ctx, examNumber)
	if err != nil {
		return model.StudentView{}, fmt.Errorf("lookup %s: %w", examNumber, err)
	}
	if st == nil {
		return model.StudentView{}, ErrNotFound
	}
	return s.enrich(st.View(), base)
}

// Token returns the lookup token of the student with the given id.
func (s *Service) Token(ctx context.Context, id int64, base string) (LookupToken, error) {
	st, err := s.Get(ctx, id)
	if err != nil {
		return LookupToken{}, err
	}
	return makeToken(LookupURL(base, st.ExamNumber))
}

// TokenPNG returns a downloadable QR image for the student with the given id
// along with the student's exam number.
func (s *Service) TokenPNG(ctx context.Context, id int64, base string) ([]byte, string, error) {
	st, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	png, err := qr.PNG(LookupURL(base, st.ExamNumber), qr.DownloadSize)
	if err != nil {
		return nil, "", err
	}
	return png, st.ExamNumber, nil
}

func (s *Service) enrich(v model.StudentView, base string) (model.StudentView, error) {
	tok, err := makeToken(LookupURL(base, v.ExamNumber))
	if err != nil {
		return v, err
	}
	v.QRURL = tok.URL
	v.QRCodeData = tok.DataURL
	return v, nil
}

func makeToken(lookupURL string) (LookupToken, error) {
	data, err := qr.DataURL(lookupURL)
	if err != nil {
		return LookupToken{}, fmt.Errorf("generate lookup token: %w", err)
	}
	return LookupToken{URL: lookupURL, DataURL: data}, nil
}

func toSubjects(in []SubjectInput) ([]model.Subject, error) {
	subjects := make([]model.Subject, 0, len(in))
	for _, si := range in {
		mark, err := grading.ParseMark(si.Mark)
		if err != nil {
			return nil, &ValidationError{Message: fmt.Sprintf("Invalid mark for subject %q", si.Name), cause: err}
		}
		subjects = append(subjects, model.Subject{Name: si.Name, Mark: mark})
	}
	return subjects, nil
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, invalid("Invalid exam date, expected YYYY-MM-DD")
	}
	return d, nil
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
