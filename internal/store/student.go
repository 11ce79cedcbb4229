package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/pavelanni/results/internal/examno"
	"github.com/pavelanni/results/internal/model"
)

const studentColumns = `id, id_number, exam_number, student_name, photo_url, exam_type,
	subjects_json, total_marks, grade, exam_date, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (model.Student, error) {
	var (
		st           model.Student
		subjectsJSON string
		examDate     string
	)
	err := row.Scan(&st.ID, &st.IDNumber, &st.ExamNumber, &st.StudentName, &st.PhotoURL, &st.ExamType,
		&subjectsJSON, &st.TotalMarks, &st.Grade, &examDate, &st.CreatedAt)
	if err != nil {
		return st, err
	}
	if subjectsJSON != "" {
		if err := json.Unmarshal([]byte(subjectsJSON), &st.Subjects); err != nil {
			return st, fmt.Errorf("decode subjects of student %d: %w", st.ID, err)
		}
	}
	if examDate != "" {
		st.ExamDate, err = time.Parse(model.DateLayout, examDate)
		if err != nil {
			return st, fmt.Errorf("decode exam date of student %d: %w", st.ID, err)
		}
	}
	return st, nil
}

func encodeSubjects(subjects []model.Subject) (string, error) {
	if subjects == nil {
		subjects = []model.Subject{}
	}
	b, err := json.Marshal(subjects)
	if err != nil {
		return "", fmt.Errorf("encode subjects: %w", err)
	}
	return string(b), nil
}

// CreateStudent inserts st. When st.ExamNumber is empty the next number for
// year is derived from the most recently inserted student. Generation, the
// uniqueness check and the insert share one transaction.
func (s *Store) CreateStudent(ctx context.Context, st model.Student, year int) (model.Student, error) {
	subjectsJSON, err := encodeSubjects(st.Subjects)
	if err != nil {
		return st, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if st.ExamNumber == "" {
			var last string
			err := tx.QueryRowContext(ctx, `SELECT exam_number FROM students ORDER BY id DESC LIMIT 1`).Scan(&last)
			if err != nil && err != sql.ErrNoRows {
				return fmt.Errorf("read last exam number: %w", err)
			}
			st.ExamNumber = examno.Next(year, last)
		}

		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM students WHERE exam_number = ?`, st.ExamNumber).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check exam number: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateExamNumber, st.ExamNumber)
		}

		st.CreatedAt = time.Now().UTC()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO students (id_number, exam_number, student_name, photo_url, exam_type,
				subjects_json, total_marks, grade, exam_date, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			st.IDNumber, st.ExamNumber, st.StudentName, st.PhotoURL, st.ExamType,
			subjectsJSON, st.TotalMarks, st.Grade, st.ExamDate.Format(model.DateLayout), st.CreatedAt,
		)
		if isExamNumberConflict(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateExamNumber, st.ExamNumber)
		}
		if err != nil {
			return fmt.Errorf("insert student: %w", err)
		}
		st.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return st, err
	}
	slog.Info("created student", "id", st.ID, "exam_number", st.ExamNumber)
	return st, nil
}

// isExamNumberConflict reports whether err is the UNIQUE constraint on
// students.exam_number.
func isExamNumberConflict(err error) bool {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	return sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE &&
		strings.Contains(sqlErr.Error(), "students.exam_number")
}

// GetStudent returns a student by ID, or nil if absent.
func (s *Store) GetStudent(ctx context.Context, id int64) (*model.Student, error) {
	st, err := scanStudent(s.db.QueryRowContext(ctx,
		`SELECT `+studentColumns+` FROM students WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// GetStudentByExamNumber returns the student with an exactly matching exam number, or nil.
func (s *Store) GetStudentByExamNumber(ctx context.Context, examNumber string) (*model.Student, error) {
	st, err := scanStudent(s.db.QueryRowContext(ctx,
		`SELECT `+studentColumns+` FROM students WHERE exam_number = ?`, examNumber))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListStudents returns all students, newest first.
func (s *Store) ListStudents(ctx context.Context) ([]model.Student, error) {
	return s.queryStudents(ctx, `SELECT `+studentColumns+` FROM students ORDER BY created_at DESC, id DESC`)
}

func (s *Store) queryStudents(ctx context.Context, query string, args ...any) ([]model.Student, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var students []model.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// UpdateStudent loads the student, lets apply modify it and writes it back
// within one transaction. It returns nil if the student does not exist.
// The exam number and creation time are never rewritten.
func (s *Store) UpdateStudent(ctx context.Context, id int64, apply func(st *model.Student) error) (*model.Student, error) {
	var (
		updated model.Student
		found   bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		st, err := scanStudent(tx.QueryRowContext(ctx,
			`SELECT `+studentColumns+` FROM students WHERE id = ?`, id))
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		if err := apply(&st); err != nil {
			return err
		}
		subjectsJSON, err := encodeSubjects(st.Subjects)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE students SET id_number = ?, student_name = ?, photo_url = ?, exam_type = ?,
				subjects_json = ?, total_marks = ?, grade = ?, exam_date = ?
			 WHERE id = ?`,
			st.IDNumber, st.StudentName, st.PhotoURL, st.ExamType,
			subjectsJSON, st.TotalMarks, st.Grade, st.ExamDate.Format(model.DateLayout), id,
		)
		if err != nil {
			return err
		}
		updated = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	slog.Info("updated student", "id", id, "exam_number", updated.ExamNumber)
	return &updated, nil
}

// DeleteStudent removes a student permanently. It reports whether a row was deleted.
func (s *Store) DeleteStudent(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM students WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if deleted {
		slog.Info("deleted student", "id", id)
	}
	return deleted, nil
}

// StudentCount returns the number of stored students.
func (s *Store) StudentCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&count)
	return count, err
}
