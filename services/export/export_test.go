package exportsvc

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/gigglesedu/giggles/core/progress"
)

func testReport() Report {
	started := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	completed := started.Add(30 * time.Minute)
	return Report{
		Title:       "Progress report: Zoé",
		GeneratedAt: completed,
		Rows: []progress.ReportRow{
			{
				StudentName:  "Zoé Kabila",
				StudentEmail: "zoe@test.cd",
				CourseName:   "Maths",
				LessonName:   "Counting",
				Status:       progress.StatusCompleted,
				Score:        80,
				MaxScore:     100,
				Attempts:     2,
				StartedAt:    &started,
				CompletedAt:  &completed,
				LastAccessed: completed,
			},
			{
				StudentName:  "Zoé Kabila",
				StudentEmail: "zoe@test.cd",
				CourseName:   "Maths",
				LessonName:   "Fractions",
				Status:       progress.StatusInProgress,
				Score:        150,
				MaxScore:     100,
				LastAccessed: started,
			},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, testReport()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, header, records[0])
	assert.Equal(t, []string{
		"Zoé Kabila", "zoe@test.cd", "Maths", "Counting", "completed", "80", "100", "80.0", "2",
		"2024-03-10 09:00", "2024-03-10 09:30", "2024-03-10 09:30",
	}, records[1])
	assert.Equal(t, "100.0", records[2][7], "completion is clamped")
	assert.Equal(t, "", records[2][10])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, testReport()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, "Counting", rows[1][3])
	assert.Equal(t, "80", rows[1][5])
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatPDF, testReport()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))

	buf.Reset()
	require.NoError(t, Write(&buf, FormatPDF, Report{Title: "Empty"}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestWrite_unknownFormat(t *testing.T) {
	assert.Equal(t, ErrUnknownFormat, Write(&bytes.Buffer{}, "docx", testReport()))
	_, ok := ContentType("docx")
	assert.False(t, ok)
	ct, ok := ContentType(FormatPDF)
	assert.True(t, ok)
	assert.Equal(t, "application/pdf", ct)
}
