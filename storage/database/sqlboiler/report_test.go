package boiledrepos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigglesedu/giggles/core/progress"
	"github.com/gigglesedu/giggles/storage/database/sqlx"
	"github.com/gigglesedu/giggles/tests"
)

func TestReportRepository_QueryReport(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	catRepo := sqlxrepos.NewCatalogRepository(db)
	progRepo := sqlxrepos.NewProgressRepository(db)
	repo := NewReportRepository(db)

	jane := testutil.CreateUser(t, usrRepo, "Jane Doe", "jane@test.cd", "", nil, true)
	john := testutil.CreateUser(t, usrRepo, "John Smith", "john@test.cd", "", nil, true)
	maths := testutil.CreateCourse(t, catRepo, "Maths", "maths")
	reading := testutil.CreateCourse(t, catRepo, "Reading", "reading")
	counting := testutil.CreateLesson(t, catRepo, maths, "Counting", "counting", 100, 1)
	letters := testutil.CreateLesson(t, catRepo, reading, "Letters", "letters", 50, 1)

	mar10 := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	mar12 := time.Date(2024, 3, 12, 23, 30, 0, 0, time.UTC)

	seed := func(studentID, lessonID, status string, score int, accessed time.Time) string {
		lp, err := progRepo.GetOrCreateLessonProgress(ctx, progress.LessonProgress{
			StudentID:    studentID,
			LessonID:     lessonID,
			Status:       status,
			Score:        score,
			StartedAt:    &accessed,
			LastAccessed: accessed,
		})
		require.NoError(t, err)
		return lp.ID
	}
	janeCounting := seed(jane.ID, counting.ID, progress.StatusCompleted, 90, mar10)
	janeLetters := seed(jane.ID, letters.ID, progress.StatusInProgress, 0, mar12)
	johnCounting := seed(john.ID, counting.ID, progress.StatusInProgress, 10, mar12)

	tests := []struct {
		name    string
		filter  *progress.ReportFilter
		wantIDs []string
	}{
		{name: "all", filter: nil, wantIDs: []string{janeCounting, janeLetters, johnCounting}},
		{name: "student", filter: &progress.ReportFilter{StudentID: john.ID}, wantIDs: []string{johnCounting}},
		{name: "course", filter: &progress.ReportFilter{CourseID: maths.ID}, wantIDs: []string{janeCounting, johnCounting}},
		{name: "status", filter: &progress.ReportFilter{Status: progress.StatusInProgress}, wantIDs: []string{janeLetters, johnCounting}},
		{
			name:    "date range is inclusive",
			filter:  &progress.ReportFilter{From: time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), To: time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)},
			wantIDs: []string{janeLetters, johnCounting},
		},
		{
			name:    "until",
			filter:  &progress.ReportFilter{To: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)},
			wantIDs: []string{janeCounting},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := repo.QueryReport(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(rows))
			for _, row := range rows {
				ids = append(ids, row.ProgressID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}

	rows, err := repo.QueryReport(ctx, &progress.ReportFilter{StudentID: jane.ID, CourseID: maths.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, progress.ReportRow{
		ProgressID:   janeCounting,
		StudentID:    jane.ID,
		StudentName:  "Jane Doe",
		StudentEmail: "jane@test.cd",
		CourseName:   "Maths",
		LessonName:   "Counting",
		Status:       progress.StatusCompleted,
		Score:        90,
		MaxScore:     100,
		StartedAt:    &mar10,
		LastAccessed: mar10,
	}, rows[0])
}
