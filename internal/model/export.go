package model

import (
	"strconv"
	"strings"
)

// CSVHeader is the first row of a student export.
var CSVHeader = []string{
	"ID Number",
	"Exam Number",
	"Name",
	"Exam Type",
	"Subjects",
	"Total Marks",
	"Grade",
	"Exam Date",
}

// CSVRecord renders s as one export row matching CSVHeader.
func (s Student) CSVRecord() []string {
	var examDate string
	if !s.ExamDate.IsZero() {
		examDate = s.ExamDate.Format(DateLayout)
	}
	return []string{
		s.IDNumber,
		s.ExamNumber,
		s.StudentName,
		s.ExamType,
		SubjectsSummary(s.Subjects),
		FormatMark(s.TotalMarks),
		s.Grade,
		examDate,
	}
}

// SubjectsSummary joins subjects as "name: mark" pairs in stored order.
func SubjectsSummary(subjects []Subject) string {
	parts := make([]string, 0, len(subjects))
	for _, sub := range subjects {
		parts = append(parts, sub.Name+": "+FormatMark(sub.Mark))
	}
	return strings.Join(parts, ", ")
}

// FormatMark prints a mark without a trailing fraction when it is whole.
func FormatMark(m float64) string {
	return strconv.FormatFloat(m, 'f', -1, 64)
}
