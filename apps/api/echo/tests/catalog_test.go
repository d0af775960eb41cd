package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/gigglesedu/giggles/apps/api/echo"
	"github.com/gigglesedu/giggles/core/catalog"
	"github.com/gigglesedu/giggles/core/progress"
	"github.com/gigglesedu/giggles/core/user"
	"github.com/gigglesedu/giggles/services/email"
	"github.com/gigglesedu/giggles/tests"
)

type school struct {
	fixture
	jane     user.User
	john     user.User
	token    string // jane's
	maths    catalog.Course
	counting catalog.Lesson
	adding   catalog.Lesson
	quiz     catalog.Assessment // linked to counting
	final    catalog.Assessment // course level
}

func setupSchool(t *testing.T) school {
	s := school{fixture: setup(t)}
	s.jane = testutil.CreateUser(t, s.usrRepo, "Jane Doe", "jane@test.cd", strongPwd, nil, true)
	s.john = testutil.CreateUser(t, s.usrRepo, "John Doe", "john@test.cd", strongPwd, nil, true)
	s.token = getToken(t, s.jane)
	s.maths = testutil.CreateCourse(t, s.catRepo, "Maths", "maths")
	s.counting = testutil.CreateLesson(t, s.catRepo, s.maths, "Counting", "counting", 100, 1)
	s.adding = testutil.CreateLesson(t, s.catRepo, s.maths, "Adding", "adding", 80, 2)
	s.quiz = testutil.CreateAssessment(t, s.catRepo, s.maths, s.counting.ID, "Counting quiz", 10, 70)
	s.final = testutil.CreateAssessment(t, s.catRepo, s.maths, "", "Final", 20, 80)
	return s
}

func (s school) submitQuiz(t *testing.T, score int) QuizResult {
	t.Helper()
	rec := s.do(http.MethodPost, "/api/courses/maths/lessons/counting/assessments/"+s.quiz.ID+"/submit", s.token,
		marchallObj(t, progress.NewAttempt{Score: score}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res QuizResult
	decode(t, rec, &res)
	return res
}

func Test_catalogApi_courses(t *testing.T) {
	s := setupSchool(t)
	testutil.CreateCourse(t, s.catRepo, "Reading", "reading")

	t.Run("query", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/courses?page_size=1&ordering=name", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var page struct {
			Count    int              `json:"count"`
			Page     int              `json:"page"`
			PageSize int              `json:"page_size"`
			Results  []catalog.Course `json:"results"`
		}
		decode(t, rec, &page)
		assert.Equal(t, 2, page.Count)
		assert.Equal(t, 1, page.PageSize)
		require.Len(t, page.Results, 1)
		assert.Equal(t, "maths", page.Results[0].Slug)
	})

	t.Run("search", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/courses?search=READ", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var page struct {
			Count int `json:"count"`
		}
		decode(t, rec, &page)
		assert.Equal(t, 1, page.Count)
	})

	s.runTests(t, []httpTest{
		{name: "invalid page", path: "/api/courses?page=lol", wantCode: http.StatusBadRequest},
		{name: "unknown course", path: "/api/courses/lol", wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "course not found"})},
		{name: "unknown lesson", path: "/api/courses/maths/lessons/lol", wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "lesson not found"})},
		{name: "invalid token", path: "/api/courses/maths", token: "lol", wantCode: http.StatusUnauthorized},
	})

	t.Run("detail anonymous", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/courses/maths", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp CourseResponse
		decode(t, rec, &resp)
		assert.Equal(t, s.maths.ID, resp.ID)
		assert.Len(t, resp.Lessons, 2)
		assert.Len(t, resp.Assessments, 2)
		assert.Nil(t, resp.Progress)
	})

	t.Run("detail with progress", func(t *testing.T) {
		_, err := s.progressSvc.Enroll(ctxBg, progress.Enrollment{CourseID: s.maths.ID, StudentIDs: []string{s.jane.ID}})
		require.NoError(t, err)

		rec := s.do(http.MethodGet, "/api/courses/maths", s.token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp CourseResponse
		decode(t, rec, &resp)
		require.NotNil(t, resp.Progress)
		assert.Equal(t, progress.StatusNotStarted, resp.Progress.Status)
	})
}

func Test_catalogApi_lessons(t *testing.T) {
	s := setupSchool(t)

	t.Run("anonymous", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/courses/maths/lessons/counting", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp LessonResponse
		decode(t, rec, &resp)
		assert.Equal(t, s.counting.ID, resp.Lesson.ID)
		require.Len(t, resp.Assessments, 1)
		assert.Equal(t, s.quiz.ID, resp.Assessments[0].ID)
		assert.Nil(t, resp.Progress)
	})

	t.Run("open", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/courses/maths/lessons/counting", s.token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp LessonResponse
		decode(t, rec, &resp)
		require.NotNil(t, resp.Progress)
		assert.Equal(t, progress.StatusNotStarted, resp.Progress.Status)
		assert.Equal(t, "maths", resp.Progress.CourseSlug)
	})

	t.Run("start", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/api/courses/maths/lessons/counting/start", s.token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var lp progress.LessonProgressDetail
		decode(t, rec, &lp)
		assert.Equal(t, progress.StatusInProgress, lp.Status)
		assert.NotNil(t, lp.StartedAt)
	})

	s.runTests(t, []httpTest{
		{name: "start: auth required", method: http.MethodPost, path: "/api/courses/maths/lessons/counting/start", wantCode: http.StatusUnauthorized},
		{
			name: "complete: negative time", method: http.MethodPost, path: "/api/courses/maths/lessons/adding/complete", token: s.token,
			body: []byte(`{"time_spent": -1}`), wantCode: http.StatusBadRequest,
		},
	})

	t.Run("complete", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/api/courses/maths/lessons/adding/complete", s.token, []byte(`{"time_spent": 300}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp CompleteLessonResponse
		decode(t, rec, &resp)
		assert.Equal(t, progress.StatusCompleted, resp.LessonProgress.Status)
		assert.Equal(t, 80, resp.LessonProgress.Score)
		assert.Equal(t, 100.0, resp.LessonProgress.CompletionPercentage)
		require.NotNil(t, resp.LessonProgress.TimeSpent)
		assert.Equal(t, 300, *resp.LessonProgress.TimeSpent)
		assert.Equal(t, 1, resp.CourseProgress.TotalLessonsCompleted)
		assert.Equal(t, 80, resp.CourseProgress.TotalScore)
		assert.Equal(t, progress.StatusNotStarted, resp.CourseProgress.Status)
	})
}

func Test_catalogApi_assessments(t *testing.T) {
	s := setupSchool(t)
	reading := testutil.CreateCourse(t, s.catRepo, "Reading", "reading")
	poem := testutil.CreateAssessment(t, s.catRepo, reading, "", "Poem", 5, 60)
	submitPath := "/api/courses/maths/lessons/counting/assessments/"

	s.runTests(t, []httpTest{
		{
			name: "submit: auth required", method: http.MethodPost, path: submitPath + s.quiz.ID + "/submit",
			body: []byte(`{"score": 5}`), wantCode: http.StatusUnauthorized,
		},
		{
			name: "submit: score too high", method: http.MethodPost, path: submitPath + s.quiz.ID + "/submit", token: s.token,
			body: []byte(`{"score": 11}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"score": "score cannot exceed the number of questions"}),
		},
		{
			name: "submit: negative score", method: http.MethodPost, path: submitPath + s.quiz.ID + "/submit", token: s.token,
			body: []byte(`{"score": -1}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "submit: assessment of another lesson", method: http.MethodPost, path: submitPath + s.final.ID + "/submit", token: s.token,
			body: []byte(`{"score": 5}`), wantCode: http.StatusNotFound,
		},
		{
			name: "submit: assessment of another course", method: http.MethodPost, path: submitPath + poem.ID + "/submit", token: s.token,
			body: []byte(`{"score": 5}`), wantCode: http.StatusNotFound,
		},
		{name: "report: unknown assessment", path: "/api/courses/maths/assessments/lol", token: s.token, wantCode: http.StatusNotFound},
	})

	t.Run("submit quiz", func(t *testing.T) {
		res := s.submitQuiz(t, 6)
		assert.True(t, res.Success)
		assert.NotEmpty(t, res.AttemptID)
		assert.Equal(t, 6, res.Score)
		assert.Equal(t, 60.0, res.Percentage)
		assert.False(t, res.Passed)

		res = s.submitQuiz(t, 8)
		assert.Equal(t, 80.0, res.Percentage)
		assert.True(t, res.Passed)

		msg, ok := emailsvc.LastSentMessage(s.jane.Email)
		require.True(t, ok, "result email not sent")
		assert.Equal(t, "assessment_result", msg.TemplateName)
	})

	var attemptID string
	t.Run("create attempt", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/api/courses/maths/assessments/"+s.final.ID+"/attempts", s.token,
			[]byte(`{"score": 18, "time_taken": 600, "answers": {"q1": "b"}}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var attempt progress.AttemptDetail
		decode(t, rec, &attempt)
		assert.Equal(t, 90.0, attempt.Percentage)
		assert.True(t, attempt.Passed)
		assert.Equal(t, "maths", attempt.CourseSlug)
		assert.Equal(t, "b", attempt.Answers["q1"])
		attemptID = attempt.ID
	})

	t.Run("get attempt", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/courses/maths/attempts/"+attemptID, s.token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var attempt progress.AttemptDetail
		decode(t, rec, &attempt)
		assert.Equal(t, attemptID, attempt.ID)
		assert.Equal(t, "Final", attempt.AssessmentTitle)

		// attempts are private
		rec = s.do(http.MethodGet, "/api/courses/maths/attempts/"+attemptID, getToken(t, s.john))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = s.do(http.MethodGet, "/api/courses/reading/attempts/"+attemptID, s.token)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("assessment report", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/courses/maths/assessments/"+s.quiz.ID, s.token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var report progress.AssessmentReport
		decode(t, rec, &report)
		assert.Equal(t, s.quiz.ID, report.Assessment.ID)
		require.Len(t, report.Attempts, 2)
		require.NotNil(t, report.BestAttempt)
		assert.Equal(t, 8, report.BestAttempt.Score)

		rec = s.do(http.MethodGet, "/api/courses/maths/assessments/"+s.quiz.ID, getToken(t, s.john))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &report)
		assert.Empty(t, report.Attempts)
		assert.Nil(t, report.BestAttempt)
	})

	t.Run("course progress", func(t *testing.T) {
		cp, err := s.progressSvc.GetCourseProgress(ctxBg, s.jane, s.maths)
		require.NoError(t, err)
		assert.Equal(t, 3, cp.AttemptsCount)
		assert.Equal(t, 90.0, cp.BestAssessmentScore)
		assert.Equal(t, progress.StatusCompleted, cp.Status)
		assert.NotNil(t, cp.CompletedAt)
	})
}
