package catalog

import (
	"time"

	"github.com/gigglesedu/giggles/core"
)

const (
	DefaultMaxScore        = 100
	DefaultDifficultyLevel = 1
	DefaultPassingScore    = 70.0
	DefaultPageSize        = 12
)

type Course struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

type Lesson struct {
	ID              string    `json:"id"`
	CourseID        string    `json:"course_id"`
	Name            string    `json:"name"`
	Slug            string    `json:"slug"`
	MaxScore        int       `json:"max_score"`
	DifficultyLevel int       `json:"difficulty_level"`
	CreatedAt       time.Time `json:"created_at"` // UTC
}

type Assessment struct {
	ID             string    `json:"id"`
	CourseID       string    `json:"course_id"`
	LessonID       string    `json:"lesson_id,omitempty"`
	Title          string    `json:"title"`
	TotalQuestions int       `json:"total_questions"`
	PassingScore   float64   `json:"passing_score"` // percentage
	CreatedAt      time.Time `json:"created_at"`    // UTC
}

func (a Assessment) HasLesson() bool { return a.LessonID != "" }

// CourseDetail is a Course with its lessons and assessments.
type CourseDetail struct {
	Course
	Lessons     []Lesson     `json:"lessons"`
	Assessments []Assessment `json:"assessments"`
}

type NewCourse struct {
	Name        string `json:"name" validate:"required,max=200"`
	Slug        string `json:"slug" validate:"omitempty,max=200,slug"`
	Description string `json:"description"`
}

func (nc *NewCourse) Validate() error {
	nc.Name = core.CleanString(nc.Name)
	nc.Slug = core.CleanString(nc.Slug, true /* lower */)
	nc.Description = core.CleanString(nc.Description)
	return core.Validate.Struct(nc)
}

type UpdateCourse struct {
	Name        string  `json:"name" validate:"omitempty,max=200"`
	Slug        string  `json:"slug" validate:"omitempty,max=200,slug"`
	Description *string `json:"description"`
}

// Validate cleans uc, fills the blanks with orig values and validates the result.
func (uc *UpdateCourse) Validate(orig Course) error {
	if uc.Name = core.CleanString(uc.Name); uc.Name == "" {
		uc.Name = orig.Name
	}
	if uc.Slug = core.CleanString(uc.Slug, true /* lower */); uc.Slug == "" {
		uc.Slug = orig.Slug
	}
	if uc.Description == nil {
		uc.Description = &orig.Description
	} else {
		desc := core.CleanString(*uc.Description)
		uc.Description = &desc
	}
	return core.Validate.Struct(uc)
}

type NewLesson struct {
	CourseID        string `json:"course_id" validate:"required"`
	Name            string `json:"name" validate:"required,max=200"`
	Slug            string `json:"slug" validate:"omitempty,max=200,slug"`
	MaxScore        int    `json:"max_score" validate:"omitempty,min=1,max=10000"`
	DifficultyLevel int    `json:"difficulty_level" validate:"omitempty,min=1,max=5"`
}

func (nl *NewLesson) Validate() error {
	nl.CourseID = core.CleanString(nl.CourseID)
	nl.Name = core.CleanString(nl.Name)
	nl.Slug = core.CleanString(nl.Slug, true /* lower */)
	if err := core.Validate.Struct(nl); err != nil {
		return err
	}
	if nl.MaxScore == 0 {
		nl.MaxScore = DefaultMaxScore
	}
	if nl.DifficultyLevel == 0 {
		nl.DifficultyLevel = DefaultDifficultyLevel
	}
	return nil
}

type UpdateLesson struct {
	Name            string `json:"name" validate:"omitempty,max=200"`
	Slug            string `json:"slug" validate:"omitempty,max=200,slug"`
	MaxScore        int    `json:"max_score" validate:"omitempty,min=1,max=10000"`
	DifficultyLevel int    `json:"difficulty_level" validate:"omitempty,min=1,max=5"`
}

func (ul *UpdateLesson) Validate(orig Lesson) error {
	if ul.Name = core.CleanString(ul.Name); ul.Name == "" {
		ul.Name = orig.Name
	}
	if ul.Slug = core.CleanString(ul.Slug, true /* lower */); ul.Slug == "" {
		ul.Slug = orig.Slug
	}
	if ul.MaxScore == 0 {
		ul.MaxScore = orig.MaxScore
	}
	if ul.DifficultyLevel == 0 {
		ul.DifficultyLevel = orig.DifficultyLevel
	}
	return core.Validate.Struct(ul)
}

type NewAssessment struct {
	CourseID       string   `json:"course_id" validate:"required"`
	LessonID       string   `json:"lesson_id"`
	Title          string   `json:"title" validate:"required,max=200"`
	TotalQuestions int      `json:"total_questions" validate:"required,min=1,max=1000"`
	PassingScore   *float64 `json:"passing_score" validate:"omitempty,min=0,max=100"`
}

func (na *NewAssessment) Validate() error {
	na.CourseID = core.CleanString(na.CourseID)
	na.LessonID = core.CleanString(na.LessonID)
	na.Title = core.CleanString(na.Title)
	if err := core.Validate.Struct(na); err != nil {
		return err
	}
	if na.PassingScore == nil {
		ps := DefaultPassingScore
		na.PassingScore = &ps
	}
	return nil
}

type UpdateAssessment struct {
	LessonID       *string  `json:"lesson_id"` // "" unlinks the lesson
	Title          string   `json:"title" validate:"omitempty,max=200"`
	TotalQuestions int      `json:"total_questions" validate:"omitempty,min=1,max=1000"`
	PassingScore   *float64 `json:"passing_score" validate:"omitempty,min=0,max=100"`
}

func (ua *UpdateAssessment) Validate(orig Assessment) error {
	if ua.LessonID == nil {
		ua.LessonID = &orig.LessonID
	} else {
		id := core.CleanString(*ua.LessonID)
		ua.LessonID = &id
	}
	if ua.Title = core.CleanString(ua.Title); ua.Title == "" {
		ua.Title = orig.Title
	}
	if ua.TotalQuestions == 0 {
		ua.TotalQuestions = orig.TotalQuestions
	}
	if ua.PassingScore == nil {
		ua.PassingScore = &orig.PassingScore
	}
	return core.Validate.Struct(ua)
}

// CourseFilter narrows down the course catalog.
type CourseFilter struct {
	// Search does a case-insensitive match on the course name or description.
	Search string `query:"search"`
	// Difficulty keeps courses having at least one lesson of that level.
	Difficulty int `query:"difficulty"`
}

func (cf *CourseFilter) Clean() {
	cf.Search = core.CleanString(cf.Search)
	if cf.Difficulty < 0 || cf.Difficulty > 5 {
		cf.Difficulty = 0
	}
}

type AssessmentFilter struct {
	CourseID string
	LessonID string
}
