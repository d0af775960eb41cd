package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/gigglesedu/giggles/core"
	"github.com/gigglesedu/giggles/core/catalog"
)

type assessmentRow struct {
	ID             string      `db:"id"`
	CourseID       string      `db:"course_id"`
	LessonID       null.String `db:"lesson_id"`
	Title          string      `db:"title"`
	TotalQuestions int         `db:"total_questions"`
	PassingScore   float64     `db:"passing_score"`
	CreatedAt      time.Time   `db:"created_at"`
}

const (
	courseColumns     = "id, name, slug, description, created_at"
	lessonColumns     = "id, course_id, name, slug, max_score, difficulty_level, created_at"
	assessmentColumns = "id, course_id, lesson_id, title, total_questions, passing_score, created_at"
)

var courseOrderings = map[string]string{
	"name":       "name",
	"slug":       "slug",
	"created_at": "created_at",
}

type catalogRepository struct {
	repository
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(exec core.DBExecutor) *catalogRepository {
	return &catalogRepository{repository{exec: exec}}
}

// Courses

type courseRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Slug        string    `db:"slug"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

func (row courseRow) course() catalog.Course {
	return catalog.Course{
		ID:          row.ID,
		Name:        row.Name,
		Slug:        row.Slug,
		Description: row.Description,
		CreatedAt:   row.CreatedAt.UTC(),
	}
}

func (repo catalogRepository) CreateCourse(ctx context.Context, course catalog.Course, exec ...core.DBExecutor) (catalog.Course, error) {
	course.ID = newID()
	course.CreatedAt = course.CreatedAt.UTC()
	_, err := execute(ctx, repo.getExec(exec),
		"INSERT INTO courses ("+courseColumns+") VALUES (?, ?, ?, ?, ?)",
		course.ID, course.Name, course.Slug, course.Description, course.CreatedAt,
	)
	if err != nil {
		return catalog.Course{}, trapUniqueErr(err, catalog.ErrSlugExists, "inserting course")
	}
	return course, nil
}

func (repo catalogRepository) UpdateCourse(ctx context.Context, course catalog.Course, exec ...core.DBExecutor) (catalog.Course, error) {
	n, err := execute(ctx, repo.getExec(exec),
		"UPDATE courses SET name = ?, slug = ?, description = ? WHERE id = ?",
		course.Name, course.Slug, course.Description, course.ID,
	)
	if err != nil {
		return catalog.Course{}, trapUniqueErr(err, catalog.ErrSlugExists, "updating course")
	}
	if n == 0 {
		return catalog.Course{}, catalog.ErrCourseNotFound
	}
	return course, nil
}

func (repo catalogRepository) DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error {
	n, err := execute(ctx, repo.getExec(exec), "DELETE FROM courses WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	if n == 0 {
		return catalog.ErrCourseNotFound
	}
	return nil
}

func (repo catalogRepository) getCourse(ctx context.Context, exec []core.DBExecutor, cond string, arg string) (catalog.Course, error) {
	var row courseRow
	if err := get(ctx, repo.getExec(exec), &row, "SELECT "+courseColumns+" FROM courses WHERE "+cond, arg); err != nil {
		return catalog.Course{}, trapNoRowsErr(err, catalog.ErrCourseNotFound, "finding course")
	}
	return row.course(), nil
}

func (repo catalogRepository) GetCourseByID(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Course, error) {
	if !isUUID(id) {
		return catalog.Course{}, catalog.ErrCourseNotFound
	}
	return repo.getCourse(ctx, exec, "id = ?", id)
}

func (repo catalogRepository) GetCourseBySlug(ctx context.Context, slug string, exec ...core.DBExecutor) (catalog.Course, error) {
	return repo.getCourse(ctx, exec, "slug = ?", slug)
}

func (repo catalogRepository) QueryCourses(
	ctx context.Context,
	filter *catalog.CourseFilter,
	page core.Pagination,
	ordering []core.DBOrdering,
	exec ...core.DBExecutor,
) ([]catalog.Course, int, error) {
	exe := repo.getExec(exec)
	var w where

	if filter != nil {
		if filter.Search != "" {
			val := likeValue(filter.Search)
			w.add("(LOWER(name) LIKE ? OR LOWER(description) LIKE ?)", val, val)
		}
		if filter.Difficulty > 0 {
			w.add("id IN (SELECT course_id FROM lessons WHERE difficulty_level = ?)", filter.Difficulty)
		}
	}

	var count int
	if err := get(ctx, exe, &count, "SELECT COUNT(*) FROM courses"+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting courses")
	}

	query := "SELECT " + courseColumns + " FROM courses" + w.String() + orderBy(ordering, courseOrderings)
	args := w.args
	if page.PageSize > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, page.PageSize, page.Offset())
	}

	var rows []courseRow
	if err := selectAll(ctx, exe, &rows, query, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying courses")
	}
	courses := make([]catalog.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.course())
	}
	return courses, count, nil
}

func (repo catalogRepository) CourseSlugExists(ctx context.Context, slug, excludedID string, exec ...core.DBExecutor) (bool, error) {
	var count int
	err := get(ctx, repo.getExec(exec), &count, "SELECT COUNT(*) FROM courses WHERE slug = ? AND id <> ?", slug, excludedID)
	if err != nil {
		return false, errors.Wrap(err, "checking course slug")
	}
	return count > 0, nil
}

// Lessons

type lessonRow struct {
	ID              string    `db:"id"`
	CourseID        string    `db:"course_id"`
	Name            string    `db:"name"`
	Slug            string    `db:"slug"`
	MaxScore        int       `db:"max_score"`
	DifficultyLevel int       `db:"difficulty_level"`
	CreatedAt       time.Time `db:"created_at"`
}

func (row lessonRow) lesson() catalog.Lesson {
	return catalog.Lesson{
		ID:              row.ID,
		CourseID:        row.CourseID,
		Name:            row.Name,
		Slug:            row.Slug,
		MaxScore:        row.MaxScore,
		DifficultyLevel: row.DifficultyLevel,
		CreatedAt:       row.CreatedAt.UTC(),
	}
}

func (repo catalogRepository) CreateLesson(ctx context.Context, lesson catalog.Lesson, exec ...core.DBExecutor) (catalog.Lesson, error) {
	lesson.ID = newID()
	lesson.CreatedAt = lesson.CreatedAt.UTC()
	_, err := execute(ctx, repo.getExec(exec),
		"INSERT INTO lessons ("+lessonColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		lesson.ID, lesson.CourseID, lesson.Name, lesson.Slug, lesson.MaxScore, lesson.DifficultyLevel, lesson.CreatedAt,
	)
	if err != nil {
		return catalog.Lesson{}, trapUniqueErr(err, catalog.ErrSlugExists, "inserting lesson")
	}
	return lesson, nil
}

func (repo catalogRepository) UpdateLesson(ctx context.Context, lesson catalog.Lesson, exec ...core.DBExecutor) (catalog.Lesson, error) {
	n, err := execute(ctx, repo.getExec(exec),
		"UPDATE lessons SET name = ?, slug = ?, max_score = ?, difficulty_level = ? WHERE id = ?",
		lesson.Name, lesson.Slug, lesson.MaxScore, lesson.DifficultyLevel, lesson.ID,
	)
	if err != nil {
		return catalog.Lesson{}, trapUniqueErr(err, catalog.ErrSlugExists, "updating lesson")
	}
	if n == 0 {
		return catalog.Lesson{}, catalog.ErrLessonNotFound
	}
	return lesson, nil
}

func (repo catalogRepository) DeleteLesson(ctx context.Context, id string, exec ...core.DBExecutor) error {
	n, err := execute(ctx, repo.getExec(exec), "DELETE FROM lessons WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	if n == 0 {
		return catalog.ErrLessonNotFound
	}
	return nil
}

func (repo catalogRepository) getLesson(ctx context.Context, exec []core.DBExecutor, cond string, args ...interface{}) (catalog.Lesson, error) {
	var row lessonRow
	if err := get(ctx, repo.getExec(exec), &row, "SELECT "+lessonColumns+" FROM lessons WHERE "+cond, args...); err != nil {
		return catalog.Lesson{}, trapNoRowsErr(err, catalog.ErrLessonNotFound, "finding lesson")
	}
	return row.lesson(), nil
}

func (repo catalogRepository) GetLessonByID(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Lesson, error) {
	if !isUUID(id) {
		return catalog.Lesson{}, catalog.ErrLessonNotFound
	}
	return repo.getLesson(ctx, exec, "id = ?", id)
}

func (repo catalogRepository) GetLessonBySlug(ctx context.Context, courseID, slug string, exec ...core.DBExecutor) (catalog.Lesson, error) {
	return repo.getLesson(ctx, exec, "course_id = ? AND slug = ?", courseID, slug)
}

func (repo catalogRepository) QueryLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]catalog.Lesson, error) {
	var rows []lessonRow
	err := selectAll(ctx, repo.getExec(exec), &rows,
		"SELECT "+lessonColumns+" FROM lessons WHERE course_id = ? ORDER BY created_at ASC, name ASC", courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	lessons := make([]catalog.Lesson, 0, len(rows))
	for _, row := range rows {
		lessons = append(lessons, row.lesson())
	}
	return lessons, nil
}

func (repo catalogRepository) LessonSlugExists(ctx context.Context, courseID, slug, excludedID string, exec ...core.DBExecutor) (bool, error) {
	var count int
	err := get(ctx, repo.getExec(exec), &count,
		"SELECT COUNT(*) FROM lessons WHERE course_id = ? AND slug = ? AND id <> ?", courseID, slug, excludedID)
	if err != nil {
		return false, errors.Wrap(err, "checking lesson slug")
	}
	return count > 0, nil
}

// Assessments

func (row assessmentRow) assessment() catalog.Assessment {
	return catalog.Assessment{
		ID:             row.ID,
		CourseID:       row.CourseID,
		LessonID:       row.LessonID.String,
		Title:          row.Title,
		TotalQuestions: row.TotalQuestions,
		PassingScore:   row.PassingScore,
		CreatedAt:      row.CreatedAt.UTC(),
	}
}

func (repo catalogRepository) CreateAssessment(ctx context.Context, assessment catalog.Assessment, exec ...core.DBExecutor) (catalog.Assessment, error) {
	assessment.ID = newID()
	assessment.CreatedAt = assessment.CreatedAt.UTC()
	_, err := execute(ctx, repo.getExec(exec),
		"INSERT INTO assessments ("+assessmentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		assessment.ID, assessment.CourseID, null.NewString(assessment.LessonID, assessment.HasLesson()),
		assessment.Title, assessment.TotalQuestions, assessment.PassingScore, assessment.CreatedAt,
	)
	if err != nil {
		return catalog.Assessment{}, errors.Wrap(err, "inserting assessment")
	}
	return assessment, nil
}

func (repo catalogRepository) UpdateAssessment(ctx context.Context, assessment catalog.Assessment, exec ...core.DBExecutor) (catalog.Assessment, error) {
	n, err := execute(ctx, repo.getExec(exec),
		"UPDATE assessments SET lesson_id = ?, title = ?, total_questions = ?, passing_score = ? WHERE id = ?",
		null.NewString(assessment.LessonID, assessment.HasLesson()),
		assessment.Title, assessment.TotalQuestions, assessment.PassingScore, assessment.ID,
	)
	if err != nil {
		return catalog.Assessment{}, errors.Wrap(err, "updating assessment")
	}
	if n == 0 {
		return catalog.Assessment{}, catalog.ErrAssessmentNotFound
	}
	return assessment, nil
}

func (repo catalogRepository) DeleteAssessment(ctx context.Context, id string, exec ...core.DBExecutor) error {
	n, err := execute(ctx, repo.getExec(exec), "DELETE FROM assessments WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting assessment")
	}
	if n == 0 {
		return catalog.ErrAssessmentNotFound
	}
	return nil
}

func (repo catalogRepository) GetAssessment(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Assessment, error) {
	if !isUUID(id) {
		return catalog.Assessment{}, catalog.ErrAssessmentNotFound
	}
	var row assessmentRow
	if err := get(ctx, repo.getExec(exec), &row, "SELECT "+assessmentColumns+" FROM assessments WHERE id = ?", id); err != nil {
		return catalog.Assessment{}, trapNoRowsErr(err, catalog.ErrAssessmentNotFound, "finding assessment")
	}
	return row.assessment(), nil
}

func (repo catalogRepository) QueryAssessments(ctx context.Context, filter catalog.AssessmentFilter, exec ...core.DBExecutor) ([]catalog.Assessment, error) {
	var w where
	if filter.CourseID != "" {
		w.add("course_id = ?", filter.CourseID)
	}
	if filter.LessonID != "" {
		w.add("lesson_id = ?", filter.LessonID)
	}

	var rows []assessmentRow
	query := "SELECT " + assessmentColumns + " FROM assessments" + w.String() + " ORDER BY created_at ASC, title ASC"
	if err := selectAll(ctx, repo.getExec(exec), &rows, query, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying assessments")
	}
	assessments := make([]catalog.Assessment, 0, len(rows))
	for _, row := range rows {
		assessments = append(assessments, row.assessment())
	}
	return assessments, nil
}
