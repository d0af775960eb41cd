package tests

import (
	"encoding/csv"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigglesedu/giggles/core/progress"
)

// learn completes the adding lesson and passes the counting quiz.
func (s school) learn(t *testing.T) {
	t.Helper()
	rec := s.do(http.MethodPost, "/api/courses/maths/lessons/adding/complete", s.token, []byte(`{"time_spent": 120}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s.submitQuiz(t, 9)
}

func Test_progressApi_auth(t *testing.T) {
	s := setupSchool(t)

	var tests []httpTest
	for _, path := range []string{
		"/api/dashboard",
		"/api/progress",
		"/api/progress/lessons",
		"/api/progress/stats",
		"/api/progress/courses/maths",
		"/api/progress/report.csv",
	} {
		tests = append(tests, httpTest{name: path, path: path, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)})
	}
	tests = append(tests,
		httpTest{name: "unknown course", path: "/api/progress/courses/lol", token: s.token, wantCode: http.StatusNotFound},
		httpTest{name: "unknown format", path: "/api/progress/report.doc", token: s.token, wantCode: http.StatusNotFound},
	)
	s.runTests(t, tests)
}

func Test_progressApi_empty(t *testing.T) {
	s := setupSchool(t)

	t.Run("summary", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/progress", s.token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var summary progress.Summary
		decode(t, rec, &summary)
		assert.Empty(t, summary.Courses)
		assert.Empty(t, summary.RecentAttempts)
		assert.Zero(t, summary.CurrentStreak)
		assert.Contains(t, rec.Body.String(), `"courses":[]`)
	})

	t.Run("lessons", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/progress/lessons", s.token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"progress": []}`, rec.Body.String())
	})
}

func Test_progressApi_reads(t *testing.T) {
	s := setupSchool(t)
	s.learn(t)

	t.Run("dashboard", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/dashboard", s.token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var dash progress.Dashboard
		decode(t, rec, &dash)
		assert.Equal(t, s.jane.ID, dash.User.ID)
		assert.Equal(t, s.jane.ID, dash.Profile.UserID)
		require.Len(t, dash.Courses, 1)
		assert.Equal(t, "maths", dash.Courses[0].CourseSlug)
		assert.Equal(t, 2, dash.Courses[0].TotalLessons)
		require.Len(t, dash.RecentAttempts, 1)
		assert.Equal(t, "Counting quiz", dash.RecentAttempts[0].AssessmentTitle)
	})

	t.Run("summary", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/progress", s.token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var summary progress.Summary
		decode(t, rec, &summary)
		assert.Equal(t, 1, summary.TotalCourses)
		assert.Equal(t, 1, summary.CompletedCourses)
		assert.Equal(t, 2, summary.CompletedLessons)
		assert.Equal(t, 1, summary.AssessmentsTaken)
		assert.Equal(t, 1, summary.AssessmentsPassed)
		assert.Equal(t, 90.0, summary.BestScore)
		assert.Equal(t, 1, summary.CurrentStreak)
	})

	t.Run("stats", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/progress/stats", s.token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var stats progress.Stats
		decode(t, rec, &stats)
		assert.Equal(t, 2, stats.TotalLessons)
		assert.Equal(t, 100.0, stats.CompletionRate)
		assert.Equal(t, 90.0, stats.AverageScore)
	})

	t.Run("lessons", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/progress/lessons", s.token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp struct {
			Progress []progress.LessonProgressDetail `json:"progress"`
		}
		decode(t, rec, &resp)
		require.Len(t, resp.Progress, 2)
		scores := map[string]int{}
		for _, lp := range resp.Progress {
			scores[lp.LessonSlug] = lp.Score
		}
		assert.Equal(t, map[string]int{"adding": 80, "counting": 9}, scores)
	})

	t.Run("course report", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/progress/courses/maths", s.token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var report progress.CourseReport
		decode(t, rec, &report)
		assert.Equal(t, s.maths.ID, report.Course.ID)
		assert.Equal(t, progress.StatusCompleted, report.Progress.Status)
		assert.Equal(t, 89, report.Progress.TotalScore)
		assert.Len(t, report.Lessons, 2)
		assert.Len(t, report.Attempts, 1)
	})

	t.Run("other students see their own progress", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/progress/courses/maths", getToken(t, s.john))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var report progress.CourseReport
		decode(t, rec, &report)
		assert.Equal(t, progress.StatusNotStarted, report.Progress.Status)
		assert.Empty(t, report.Lessons)
		assert.Empty(t, report.Attempts)
	})
}

func Test_progressApi_reports(t *testing.T) {
	s := setupSchool(t)
	s.learn(t)

	tests := []struct {
		format      string
		contentType string
	}{
		{format: "csv", contentType: "text/csv"},
		{format: "xlsx", contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{format: "pdf", contentType: "application/pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			rec := s.do(http.MethodGet, "/api/progress/report."+tt.format, s.token)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), tt.contentType), rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment; filename=")
			assert.Contains(t, rec.Header().Get("Content-Disposition"), "."+tt.format)
			assert.NotZero(t, rec.Body.Len())
		})
	}

	t.Run("csv rows", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/progress/report.csv?status=completed", s.token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		records, err := csv.NewReader(rec.Body).ReadAll()
		require.NoError(t, err)
		assert.Len(t, records, 3) // header + 2 lessons

		// the report is restricted to the current student
		rec = s.do(http.MethodGet, "/api/progress/report.csv?student_id="+s.jane.ID, getToken(t, s.john))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		records, err = csv.NewReader(rec.Body).ReadAll()
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	s.runTests(t, []httpTest{
		{name: "invalid date", path: "/api/progress/report.csv?date_from=lol", token: s.token, wantCode: http.StatusBadRequest},
	})
}
