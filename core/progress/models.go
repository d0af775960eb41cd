package progress

import (
	"time"

	"github.com/gigglesedu/giggles/core"
	"github.com/gigglesedu/giggles/core/catalog"
	"github.com/gigglesedu/giggles/core/user"
)

// Statuses
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusMastered   = "mastered" // course progress only
)

// Achievement levels
const (
	LevelBeginner     = 1
	LevelIntermediate = 2
	LevelAdvanced     = 3
)

var (
	LessonStatuses = []string{StatusNotStarted, StatusInProgress, StatusCompleted}
	CourseStatuses = []string{StatusNotStarted, StatusInProgress, StatusCompleted, StatusMastered}
)

// Attempt is one assessment submission. Immutable once created.
type Attempt struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	AssessmentID string                 `json:"assessment_id"`
	Score        int                    `json:"score"`
	Percentage   float64                `json:"percentage"`
	Passed       bool                   `json:"passed"`
	TimeTaken    *int                   `json:"time_taken"` // seconds
	Answers      map[string]interface{} `json:"answers"`
	CompletedAt  time.Time              `json:"completed_at"` // UTC
}

// AttemptDetail is an Attempt along with its assessment and course.
type AttemptDetail struct {
	Attempt
	AssessmentTitle string `json:"assessment_title"`
	TotalQuestions  int    `json:"total_questions"`
	CourseID        string `json:"course_id"`
	CourseName      string `json:"course_name"`
	CourseSlug      string `json:"course_slug"`
}

// LessonProgress tracks a student through one lesson.
type LessonProgress struct {
	ID           string     `json:"id"`
	StudentID    string     `json:"student_id"`
	LessonID     string     `json:"lesson_id"`
	CourseID     string     `json:"course_id"` // read only
	Status       string     `json:"status"`
	Score        int        `json:"score"`
	Attempts     int        `json:"attempts"`
	TimeSpent    *int       `json:"time_spent"` // seconds
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	LastAccessed time.Time  `json:"last_accessed"`
}

// LessonProgressDetail is a LessonProgress along with its lesson.
type LessonProgressDetail struct {
	LessonProgress
	LessonName           string  `json:"lesson_name"`
	LessonSlug           string  `json:"lesson_slug"`
	MaxScore             int     `json:"max_score"`
	CourseSlug           string  `json:"course_slug"`
	CompletionPercentage float64 `json:"completion_percentage"`
}

// CourseProgress is the summary of a student's standing in a course.
// Every field but the ids is derived by Summarize.
type CourseProgress struct {
	ID                    string     `json:"id"`
	StudentID             string     `json:"student_id"`
	CourseID              string     `json:"course_id"`
	TotalLessonsCompleted int        `json:"total_lessons_completed"`
	TotalScore            int        `json:"total_score"`
	AverageScore          float64    `json:"average_score"`
	Level                 int        `json:"level"`
	BestAssessmentScore   float64    `json:"best_assessment_score"`
	AttemptsCount         int        `json:"attempts_count"`
	Status                string     `json:"status"`
	StartedAt             *time.Time `json:"started_at"`
	CompletedAt           *time.Time `json:"completed_at"`
	LastLessonDate        *time.Time `json:"last_lesson_date"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// CourseProgressDetail is a CourseProgress along with its course.
type CourseProgressDetail struct {
	CourseProgress
	CourseName   string `json:"course_name"`
	CourseSlug   string `json:"course_slug"`
	TotalLessons int    `json:"total_lessons"`
}

// LessonStats aggregates the completed lessons of a student in a course.
type LessonStats struct {
	Completed       int
	TotalScore      int
	LastCompletedAt *time.Time
}

// AttemptStats aggregates the assessment attempts of a student in a course.
type AttemptStats struct {
	Count          int
	Passed         int
	BestPercentage float64
	FirstAt        *time.Time
}

type NewAttempt struct {
	Score     int                    `json:"score" validate:"min=0"`
	Answers   map[string]interface{} `json:"answers"`
	TimeTaken *int                   `json:"time_taken" validate:"omitempty,min=0"`
}

var errScoreTooHigh = "score cannot exceed the number of questions"

// Validate checks na against the assessment being taken.
func (na *NewAttempt) Validate(assessment catalog.Assessment) error {
	if err := core.Validate.Struct(na); err != nil {
		return err
	}
	if na.Score > assessment.TotalQuestions {
		return core.NewValidationError(nil, core.FieldError{Field: "score", Error: errScoreTooHigh})
	}
	if na.Answers == nil {
		na.Answers = map[string]interface{}{}
	}
	return nil
}

type CompleteLesson struct {
	TimeSpent *int `json:"time_spent" validate:"omitempty,min=0"`
}

func (cl *CompleteLesson) Validate() error { return core.Validate.Struct(cl) }

type Enrollment struct {
	CourseID   string   `json:"course_id" validate:"required"`
	StudentIDs []string `json:"student_ids" validate:"required,min=1,dive,required"`
}

func (e *Enrollment) Validate() error { return core.Validate.Struct(e) }

type (
	AttemptFilter struct {
		UserID       string
		CourseID     string
		AssessmentID string
		Limit        int
	}

	LessonProgressFilter struct {
		StudentID string
		CourseID  string
	}

	CourseProgressFilter struct {
		StudentID string
		CourseID  string
	}

	// ReportFilter selects lesson progress rows for the admin reports.
	ReportFilter struct {
		StudentID string    `query:"student_id"`
		CourseID  string    `query:"course_id"`
		Status    string    `query:"status"`
		From      time.Time `query:"date_from"` // on last access
		To        time.Time `query:"date_to"`
	}
)

func (rf *ReportFilter) Clean() {
	rf.StudentID = core.CleanString(rf.StudentID)
	rf.CourseID = core.CleanString(rf.CourseID)
	rf.Status = core.CleanString(rf.Status, true /* lower */)
}

// ReportRow is one lesson progress line of a progress report.
type ReportRow struct {
	ProgressID   string     `json:"progress_id"`
	StudentID    string     `json:"student_id"`
	StudentName  string     `json:"student_name"`
	StudentEmail string     `json:"student_email"`
	CourseName   string     `json:"course_name"`
	LessonName   string     `json:"lesson_name"`
	Status       string     `json:"status"`
	Score        int        `json:"score"`
	MaxScore     int        `json:"max_score"`
	Attempts     int        `json:"attempts"`
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	LastAccessed time.Time  `json:"last_accessed"`
}

// Stats are the headline numbers of a student.
type Stats struct {
	TotalCourses      int     `json:"total_courses"`
	CompletedCourses  int     `json:"completed_courses"`
	TotalLessons      int     `json:"total_lessons"`
	CompletedLessons  int     `json:"completed_lessons"`
	InProgressLessons int     `json:"in_progress_lessons"`
	CompletionRate    float64 `json:"completion_rate"`
	AssessmentsTaken  int     `json:"assessments_taken"`
	AssessmentsPassed int     `json:"assessments_passed"`
	AverageScore      float64 `json:"average_score"` // mean attempt percentage
	BestScore         float64 `json:"best_score"`
	CurrentStreak     int     `json:"current_streak"` // days
}

type Summary struct {
	Stats
	Courses        []CourseProgressDetail `json:"courses"`
	RecentAttempts []AttemptDetail        `json:"recent_attempts"`
}

type Dashboard struct {
	User           user.User              `json:"user"`
	Profile        user.Profile           `json:"profile"`
	Courses        []CourseProgressDetail `json:"courses"`
	RecentAttempts []AttemptDetail        `json:"recent_attempts"`
}

// CourseReport is the progress of a student in one course.
type CourseReport struct {
	Course   catalog.Course         `json:"course"`
	Progress CourseProgress         `json:"progress"`
	Lessons  []LessonProgressDetail `json:"lessons"`
	Attempts []AttemptDetail        `json:"attempts"`
}

// AssessmentReport is an assessment with the attempts of a student.
type AssessmentReport struct {
	Assessment  catalog.Assessment `json:"assessment"`
	Attempts    []AttemptDetail    `json:"attempts"`
	BestAttempt *AttemptDetail     `json:"best_attempt"`
}
