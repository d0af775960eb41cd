// Package exportsvc writes progress reports as CSV, XLSX or PDF documents.
package exportsvc

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/gigglesedu/giggles/core/progress"
)

// Formats
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

var (
	ErrUnknownFormat = errors.New("unknown export format")

	contentTypes = map[string]string{
		FormatCSV:  "text/csv; charset=utf-8",
		FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		FormatPDF:  "application/pdf",
	}

	header = []string{
		"Student", "Email", "Course", "Lesson", "Status", "Score", "Max score", "Completion %", "Attempts",
		"Started", "Completed", "Last accessed",
	}
)

// Report is a titled list of progress rows.
type Report struct {
	Title       string
	GeneratedAt time.Time
	Rows        []progress.ReportRow
}

func ContentType(format string) (string, bool) {
	ct, ok := contentTypes[format]
	return ct, ok
}

// Filename returns the attachment name of the report in the given format.
func Filename(name, format string) string {
	return fmt.Sprintf("%s-%s.%s", name, time.Now().UTC().Format("20060102"), format)
}

// Write writes r to w in the given format.
func Write(w io.Writer, format string, r Report) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, r)
	case FormatXLSX:
		return WriteXLSX(w, r)
	case FormatPDF:
		return WritePDF(w, r)
	default:
		return ErrUnknownFormat
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func record(row progress.ReportRow) []string {
	return []string{
		row.StudentName,
		row.StudentEmail,
		row.CourseName,
		row.LessonName,
		row.Status,
		strconv.Itoa(row.Score),
		strconv.Itoa(row.MaxScore),
		strconv.FormatFloat(progress.CompletionPercentage(row.Score, row.MaxScore), 'f', 1, 64),
		strconv.Itoa(row.Attempts),
		formatTime(row.StartedAt),
		formatTime(row.CompletedAt),
		formatTime(&row.LastAccessed),
	}
}
