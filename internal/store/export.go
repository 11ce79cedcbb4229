package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/pavelanni/results/internal/model"
)

// ExportStudents returns every student in insertion order.
func (s *Store) ExportStudents(ctx context.Context) ([]model.Student, error) {
	return s.queryStudents(ctx, `SELECT `+studentColumns+` FROM students ORDER BY id`)
}

// WriteStudentsCSV writes a header row and one row per student to w.
// It returns the number of student rows written.
func (s *Store) WriteStudentsCSV(ctx context.Context, w io.Writer) (int, error) {
	students, err := s.ExportStudents(ctx)
	if err != nil {
		return 0, fmt.Errorf("list students: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(model.CSVHeader); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	for _, st := range students {
		if err := cw.Write(st.CSVRecord()); err != nil {
			return 0, fmt.Errorf("write student %d: %w", st.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	return len(students), nil
}
