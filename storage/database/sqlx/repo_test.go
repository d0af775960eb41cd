package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigglesedu/giggles/core"
	"github.com/gigglesedu/giggles/core/catalog"
	"github.com/gigglesedu/giggles/core/progress"
	"github.com/gigglesedu/giggles/core/user"
	"github.com/gigglesedu/giggles/tests"
)

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	repo := NewUserRepository(db)

	now := core.Now()
	jane := testutil.CreateUser(t, repo, "Jane Doe", "jane@test.cd", "tr1angle-Sun", []string{user.RoleAdminOwner}, true, now.Add(-48*time.Hour))
	john := testutil.CreateUser(t, repo, "John Smith", "john@test.cd", "", nil, false, now)

	t.Run("email uniqueness", func(t *testing.T) {
		assert.Equal(t, user.ErrEmailExists, repo.CheckEmailUniqueness(ctx, "jane@test.cd", nil))
		assert.NoError(t, repo.CheckEmailUniqueness(ctx, "jane@test.cd", []user.User{jane}))
		assert.NoError(t, repo.CheckEmailUniqueness(ctx, "new@test.cd", nil))

		_, err := repo.CreateUser(ctx, user.User{Email: "john@test.cd", CreatedAt: now, UpdatedAt: now})
		assert.Equal(t, user.ErrEmailExists, err)
	})

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetUser(ctx, user.GetFilter{ID: jane.ID})
		require.NoError(t, err)
		assert.Equal(t, jane.Email, got.Email)
		assert.Equal(t, []string{user.RoleAdminOwner}, got.Roles)
		assert.NoError(t, got.CheckPassword("tr1angle-Sun"))

		got, err = repo.GetUser(ctx, user.GetFilter{Email: "john@test.cd"})
		require.NoError(t, err)
		assert.Equal(t, john.ID, got.ID)
		assert.False(t, got.IsActive)
		assert.Nil(t, got.Roles)

		_, err = repo.GetUser(ctx, user.GetFilter{ID: "not-a-uuid"})
		assert.Equal(t, user.ErrNotFound, err)
		_, err = repo.GetUser(ctx, user.GetFilter{Email: "nobody@test.cd"})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("query", func(t *testing.T) {
		active := true
		tests := []struct {
			name    string
			filter  *user.QueryFilter
			wantIDs []string
		}{
			{name: "all", filter: nil, wantIDs: []string{jane.ID, john.ID}},
			{name: "search", filter: &user.QueryFilter{Search: "SMITH"}, wantIDs: []string{john.ID}},
			{name: "role prefix", filter: &user.QueryFilter{Roles: []string{user.RoleAdmin}}, wantIDs: []string{jane.ID}},
			{name: "active", filter: &user.QueryFilter{IsActive: &active}, wantIDs: []string{jane.ID}},
			{name: "created from", filter: &user.QueryFilter{CreatedFrom: now.Add(-time.Hour)}, wantIDs: []string{john.ID}},
			{name: "created to", filter: &user.QueryFilter{CreatedTo: now.Add(-time.Hour)}, wantIDs: []string{jane.ID}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				users, err := repo.QueryUsers(ctx, tt.filter, []core.DBOrdering{{Field: "email", Ascending: true}})
				require.NoError(t, err)
				ids := make([]string, 0, len(users))
				for _, u := range users {
					ids = append(ids, u.ID)
				}
				assert.Equal(t, tt.wantIDs, ids)
			})
		}
	})

	t.Run("profile", func(t *testing.T) {
		profile, err := repo.GetOrCreateProfile(ctx, jane.ID)
		require.NoError(t, err)
		assert.Equal(t, jane.ID, profile.UserID)
		assert.Nil(t, profile.Age)

		age := 11
		profile.Age = &age
		profile.GradeLevel = "6th"
		_, err = repo.UpdateProfile(ctx, profile)
		require.NoError(t, err)

		profile, err = repo.GetOrCreateProfile(ctx, jane.ID)
		require.NoError(t, err)
		require.NotNil(t, profile.Age)
		assert.Equal(t, 11, *profile.Age)
		assert.Equal(t, "6th", profile.GradeLevel)
	})

	t.Run("update and delete", func(t *testing.T) {
		john.FullName = "Johnny Smith"
		john.IsActive = true
		_, err := repo.UpdateUser(ctx, john)
		require.NoError(t, err)
		got, err := repo.GetUser(ctx, user.GetFilter{ID: john.ID})
		require.NoError(t, err)
		assert.Equal(t, "Johnny Smith", got.FullName)
		assert.True(t, got.IsActive)

		cnt, err := repo.DeleteUsersByID(ctx, []string{john.ID})
		require.NoError(t, err)
		assert.Equal(t, 1, cnt)
		_, err = repo.GetUser(ctx, user.GetFilter{ID: john.ID})
		assert.Equal(t, user.ErrNotFound, err)
	})
}

func TestCatalogRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	repo := NewCatalogRepository(db)

	maths := testutil.CreateCourse(t, repo, "Maths", "maths")
	reading := testutil.CreateCourse(t, repo, "Reading", "reading")
	counting := testutil.CreateLesson(t, repo, maths, "Counting", "counting", 100, 1)
	testutil.CreateLesson(t, repo, maths, "Fractions", "fractions", 50, 4)
	quiz := testutil.CreateAssessment(t, repo, maths, counting.ID, "Counting quiz", 10, 70)
	final := testutil.CreateAssessment(t, repo, maths, "", "Final", 20, 80)

	t.Run("slugs", func(t *testing.T) {
		exists, err := repo.CourseSlugExists(ctx, "maths", "")
		require.NoError(t, err)
		assert.True(t, exists)
		exists, err = repo.CourseSlugExists(ctx, "maths", maths.ID)
		require.NoError(t, err)
		assert.False(t, exists)

		exists, err = repo.LessonSlugExists(ctx, maths.ID, "counting", "")
		require.NoError(t, err)
		assert.True(t, exists)
		exists, err = repo.LessonSlugExists(ctx, reading.ID, "counting", "")
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = repo.CreateCourse(ctx, catalog.Course{Name: "Maths 2", Slug: "maths", CreatedAt: core.Now()})
		assert.Equal(t, catalog.ErrSlugExists, err)
	})

	t.Run("query courses", func(t *testing.T) {
		tests := []struct {
			name      string
			filter    *catalog.CourseFilter
			page      core.Pagination
			wantIDs   []string
			wantCount int
		}{
			{name: "all", wantIDs: []string{maths.ID, reading.ID}, wantCount: 2},
			{name: "search", filter: &catalog.CourseFilter{Search: "read"}, wantIDs: []string{reading.ID}, wantCount: 1},
			{name: "difficulty", filter: &catalog.CourseFilter{Difficulty: 4}, wantIDs: []string{maths.ID}, wantCount: 1},
			{name: "second page", page: core.Pagination{Page: 2, PageSize: 1}, wantIDs: []string{reading.ID}, wantCount: 2},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				courses, count, err := repo.QueryCourses(ctx, tt.filter, tt.page, []core.DBOrdering{{Field: "name", Ascending: true}})
				require.NoError(t, err)
				ids := make([]string, 0, len(courses))
				for _, c := range courses {
					ids = append(ids, c.ID)
				}
				assert.Equal(t, tt.wantIDs, ids)
				assert.Equal(t, tt.wantCount, count)
			})
		}
	})

	t.Run("lessons", func(t *testing.T) {
		lessons, err := repo.QueryLessons(ctx, maths.ID)
		require.NoError(t, err)
		require.Len(t, lessons, 2)
		assert.Equal(t, "counting", lessons[0].Slug)

		got, err := repo.GetLessonBySlug(ctx, maths.ID, "fractions")
		require.NoError(t, err)
		assert.Equal(t, 50, got.MaxScore)
		_, err = repo.GetLessonBySlug(ctx, reading.ID, "fractions")
		assert.Equal(t, catalog.ErrLessonNotFound, err)
	})

	t.Run("assessments", func(t *testing.T) {
		got, err := repo.GetAssessment(ctx, quiz.ID)
		require.NoError(t, err)
		assert.Equal(t, counting.ID, got.LessonID)

		got, err = repo.GetAssessment(ctx, final.ID)
		require.NoError(t, err)
		assert.False(t, got.HasLesson())

		all, err := repo.QueryAssessments(ctx, catalog.AssessmentFilter{CourseID: maths.ID})
		require.NoError(t, err)
		assert.Len(t, all, 2)
		linked, err := repo.QueryAssessments(ctx, catalog.AssessmentFilter{LessonID: counting.ID})
		require.NoError(t, err)
		require.Len(t, linked, 1)
		assert.Equal(t, quiz.ID, linked[0].ID)
	})

	t.Run("delete lesson unlinks assessments", func(t *testing.T) {
		require.NoError(t, repo.DeleteLesson(ctx, counting.ID))
		got, err := repo.GetAssessment(ctx, quiz.ID)
		require.NoError(t, err)
		assert.False(t, got.HasLesson())
		assert.Equal(t, catalog.ErrLessonNotFound, repo.DeleteLesson(ctx, counting.ID))
	})

	t.Run("delete course", func(t *testing.T) {
		require.NoError(t, repo.DeleteCourse(ctx, reading.ID))
		_, err := repo.GetCourseByID(ctx, reading.ID)
		assert.Equal(t, catalog.ErrCourseNotFound, err)
	})
}

func TestProgressRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	usrRepo := NewUserRepository(db)
	catRepo := NewCatalogRepository(db)
	repo := NewProgressRepository(db)

	student := testutil.CreateUser(t, usrRepo, "Jane Doe", "jane@test.cd", "", nil, true)
	maths := testutil.CreateCourse(t, catRepo, "Maths", "maths")
	counting := testutil.CreateLesson(t, catRepo, maths, "Counting", "counting", 100, 1)
	fractions := testutil.CreateLesson(t, catRepo, maths, "Fractions", "fractions", 100, 2)
	quiz := testutil.CreateAssessment(t, catRepo, maths, counting.ID, "Counting quiz", 10, 70)

	day := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	t.Run("empty aggregates", func(t *testing.T) {
		ls, err := repo.LessonStats(ctx, student.ID, maths.ID)
		require.NoError(t, err)
		assert.Equal(t, progress.LessonStats{}, ls)
		as, err := repo.AttemptStats(ctx, student.ID, maths.ID)
		require.NoError(t, err)
		assert.Equal(t, progress.AttemptStats{}, as)
	})

	t.Run("lesson progress", func(t *testing.T) {
		lp, err := repo.GetOrCreateLessonProgress(ctx, progress.LessonProgress{
			StudentID:    student.ID,
			LessonID:     counting.ID,
			Status:       progress.StatusInProgress,
			StartedAt:    &day,
			LastAccessed: day,
		})
		require.NoError(t, err)
		assert.Equal(t, maths.ID, lp.CourseID)
		assert.Equal(t, progress.StatusInProgress, lp.Status)

		again, err := repo.GetOrCreateLessonProgress(ctx, progress.LessonProgress{
			StudentID:    student.ID,
			LessonID:     counting.ID,
			Status:       progress.StatusNotStarted,
			LastAccessed: day.Add(time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, lp.ID, again.ID, "existing row is kept")
		assert.Equal(t, progress.StatusInProgress, again.Status)

		completed := day.Add(2 * time.Hour)
		lp.Status = progress.StatusCompleted
		lp.Score = 80
		lp.CompletedAt = &completed
		_, err = repo.UpdateLessonProgress(ctx, lp)
		require.NoError(t, err)

		other, err := repo.GetOrCreateLessonProgress(ctx, progress.LessonProgress{
			StudentID:    student.ID,
			LessonID:     fractions.ID,
			Status:       progress.StatusInProgress,
			LastAccessed: day,
		})
		require.NoError(t, err)

		lessons, err := repo.QueryLessonProgress(ctx, progress.LessonProgressFilter{StudentID: student.ID, CourseID: maths.ID})
		require.NoError(t, err)
		require.Len(t, lessons, 2)
		assert.Equal(t, "counting", lessons[0].LessonSlug)
		assert.Equal(t, "maths", lessons[0].CourseSlug)
		assert.Equal(t, 80.0, lessons[0].CompletionPercentage)

		ls, err := repo.LessonStats(ctx, student.ID, maths.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, ls.Completed)
		assert.Equal(t, 80, ls.TotalScore)
		require.NotNil(t, ls.LastCompletedAt)
		assert.True(t, completed.Equal(*ls.LastCompletedAt))

		require.NoError(t, repo.DeleteLessonProgress(ctx, other.ID))
		assert.Equal(t, progress.ErrLessonProgressNotFound, repo.DeleteLessonProgress(ctx, other.ID))
	})

	t.Run("attempts", func(t *testing.T) {
		for i, score := range []int{5, 9} {
			_, err := repo.CreateAttempt(ctx, progress.Attempt{
				UserID:       student.ID,
				AssessmentID: quiz.ID,
				Score:        score,
				Percentage:   float64(score * 10),
				Passed:       score >= 7,
				Answers:      map[string]interface{}{"q1": "b"},
				CompletedAt:  day.Add(time.Duration(i) * 24 * time.Hour),
			})
			require.NoError(t, err)
		}

		attempts, err := repo.QueryAttempts(ctx, progress.AttemptFilter{UserID: student.ID, CourseID: maths.ID})
		require.NoError(t, err)
		require.Len(t, attempts, 2)
		assert.Equal(t, 9, attempts[0].Score, "newest first")
		assert.Equal(t, "Counting quiz", attempts[0].AssessmentTitle)
		assert.Equal(t, "maths", attempts[0].CourseSlug)
		assert.Equal(t, map[string]interface{}{"q1": "b"}, attempts[0].Answers)

		limited, err := repo.QueryAttempts(ctx, progress.AttemptFilter{UserID: student.ID, Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		got, err := repo.GetAttempt(ctx, attempts[1].ID)
		require.NoError(t, err)
		assert.Equal(t, 5, got.Score)

		as, err := repo.AttemptStats(ctx, student.ID, maths.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, as.Count)
		assert.Equal(t, 1, as.Passed)
		assert.Equal(t, 90.0, as.BestPercentage)
		require.NotNil(t, as.FirstAt)
		assert.True(t, day.Equal(*as.FirstAt))

		times, err := repo.ActivityTimes(ctx, student.ID, day.Add(-time.Hour))
		require.NoError(t, err)
		assert.Len(t, times, 3, "two attempts and one lesson completion")
	})

	t.Run("course progress", func(t *testing.T) {
		_, err := repo.GetCourseProgress(ctx, student.ID, maths.ID)
		assert.Equal(t, progress.ErrCourseProgressNotFound, err)

		cp, err := repo.LockCourseProgress(ctx, student.ID, maths.ID)
		require.NoError(t, err)
		assert.Equal(t, progress.StatusNotStarted, cp.Status)
		assert.Equal(t, progress.LevelBeginner, cp.Level)

		cp.Status = progress.StatusCompleted
		cp.TotalScore = 80
		cp.CompletedAt = &day
		_, err = repo.UpdateCourseProgress(ctx, cp)
		require.NoError(t, err)

		again, err := repo.LockCourseProgress(ctx, student.ID, maths.ID)
		require.NoError(t, err)
		assert.Equal(t, cp.ID, again.ID)
		assert.Equal(t, progress.StatusCompleted, again.Status)
		assert.Equal(t, 80, again.TotalScore)

		created, err := repo.CreateCourseProgress(ctx, maths.ID, []string{student.ID})
		require.NoError(t, err)
		assert.Equal(t, 0, created, "existing rows are skipped")

		all, err := repo.QueryCourseProgress(ctx, progress.CourseProgressFilter{StudentID: student.ID})
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "Maths", all[0].CourseName)
		assert.Equal(t, 2, all[0].TotalLessons)
	})
}
