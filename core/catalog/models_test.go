package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigglesedu/giggles/core"
)

func TestNewLesson_Validate(t *testing.T) {
	tests := []struct {
		name           string
		in             NewLesson
		wantErr        bool
		wantMaxScore   int
		wantDifficulty int
	}{
		{name: "defaults", in: NewLesson{CourseID: "c", Name: " Counting "}, wantMaxScore: 100, wantDifficulty: 1},
		{name: "explicit", in: NewLesson{CourseID: "c", Name: "Counting", MaxScore: 20, DifficultyLevel: 5}, wantMaxScore: 20, wantDifficulty: 5},
		{name: "difficulty too high", in: NewLesson{CourseID: "c", Name: "Counting", DifficultyLevel: 6}, wantErr: true},
		{name: "negative max score", in: NewLesson{CourseID: "c", Name: "Counting", MaxScore: -1}, wantErr: true},
		{name: "bad slug", in: NewLesson{CourseID: "c", Name: "Counting", Slug: "no spaces!"}, wantErr: true},
		{name: "no course", in: NewLesson{Name: "Counting"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nl := tt.in
			err := nl.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Counting", nl.Name)
			assert.Equal(t, tt.wantMaxScore, nl.MaxScore)
			assert.Equal(t, tt.wantDifficulty, nl.DifficultyLevel)
		})
	}
}

func TestNewAssessment_Validate(t *testing.T) {
	na := NewAssessment{CourseID: "c", Title: "Quiz", TotalQuestions: 10}
	require.NoError(t, na.Validate())
	assert.Equal(t, DefaultPassingScore, *na.PassingScore)

	zero := 0.0
	na = NewAssessment{CourseID: "c", Title: "Quiz", TotalQuestions: 10, PassingScore: &zero}
	require.NoError(t, na.Validate())
	assert.Equal(t, 0.0, *na.PassingScore)

	tooHigh := 101.0
	na = NewAssessment{CourseID: "c", Title: "Quiz", TotalQuestions: 10, PassingScore: &tooHigh}
	assert.Error(t, na.Validate())

	na = NewAssessment{CourseID: "c", Title: "Quiz"}
	assert.Error(t, na.Validate())
}

func TestUpdateAssessment_Validate(t *testing.T) {
	orig := Assessment{ID: "a", CourseID: "c", LessonID: "l", Title: "Quiz", TotalQuestions: 10, PassingScore: 80}

	ua := UpdateAssessment{Title: "Final Quiz"}
	require.NoError(t, ua.Validate(orig))
	assert.Equal(t, "l", *ua.LessonID)
	assert.Equal(t, "Final Quiz", ua.Title)
	assert.Equal(t, 10, ua.TotalQuestions)
	assert.Equal(t, 80.0, *ua.PassingScore)

	unlink := ""
	ua = UpdateAssessment{LessonID: &unlink}
	require.NoError(t, ua.Validate(orig))
	assert.Equal(t, "", *ua.LessonID)
}

func TestUpdateCourse_Validate(t *testing.T) {
	orig := Course{ID: "c", Name: "Maths", Slug: "maths", Description: "Numbers"}

	uc := UpdateCourse{Name: "Fun Maths"}
	require.NoError(t, uc.Validate(orig))
	assert.Equal(t, "maths", uc.Slug)
	assert.Equal(t, "Numbers", *uc.Description)

	uc = UpdateCourse{Slug: "Fun_Maths"}
	assert.Error(t, uc.Validate(orig))
}

func Test_uniqueSlug(t *testing.T) {
	taken := map[string]bool{"fractions": true, "fractions-2": true}
	exists := func(s string) (bool, error) { return taken[s], nil }

	slug, err := uniqueSlug("", "Fractions", exists)
	require.NoError(t, err)
	assert.Equal(t, "fractions-3", slug)

	slug, err = uniqueSlug("", "Decimals", exists)
	require.NoError(t, err)
	assert.Equal(t, "decimals", slug)

	slug, err = uniqueSlug("", "!!!", exists)
	require.NoError(t, err)
	assert.Equal(t, "untitled", slug)

	_, err = uniqueSlug("fractions", "Fractions", exists)
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "slug", vErr.Fields[0].Field)

	boom := errors.New("boom")
	_, err = uniqueSlug("", "Fractions", func(string) (bool, error) { return false, boom })
	assert.Equal(t, boom, err)
}

func TestCourseFilter_Clean(t *testing.T) {
	cf := CourseFilter{Search: "  maths ", Difficulty: 9}
	cf.Clean()
	assert.Equal(t, "maths", cf.Search)
	assert.Equal(t, 0, cf.Difficulty)
}
