package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/gigglesedu/giggles/core"
	"github.com/gigglesedu/giggles/core/progress"
	"github.com/gigglesedu/giggles/storage/database"
)

// answers is stored as JSONB on postgres and TEXT on sqlite.
type answers map[string]interface{}

func (a answers) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *answers) Scan(src interface{}) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*a = answers{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.Errorf("unsupported answers type %T", src)
	}
	m := map[string]interface{}{}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &m); err != nil {
			return errors.Wrap(err, "decoding answers")
		}
	}
	*a = m
	return nil
}

type progressRepository struct {
	repository
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(exec core.DBExecutor) *progressRepository {
	return &progressRepository{repository{exec: exec}}
}

// Lesson progress

type lessonProgressRow struct {
	ID           string    `db:"id"`
	StudentID    string    `db:"student_id"`
	LessonID     string    `db:"lesson_id"`
	CourseID     string    `db:"course_id"`
	Status       string    `db:"status"`
	Score        int       `db:"score"`
	Attempts     int       `db:"attempts"`
	TimeSpent    null.Int  `db:"time_spent"`
	StartedAt    null.Time `db:"started_at"`
	CompletedAt  null.Time `db:"completed_at"`
	LastAccessed time.Time `db:"last_accessed"`
}

type lessonProgressDetailRow struct {
	lessonProgressRow
	LessonName string `db:"lesson_name"`
	LessonSlug string `db:"lesson_slug"`
	MaxScore   int    `db:"max_score"`
	CourseSlug string `db:"course_slug"`
}

const (
	lessonProgressSelect = `SELECT sp.id, sp.student_id, sp.lesson_id, l.course_id, sp.status, sp.score, sp.attempts,
		sp.time_spent, sp.started_at, sp.completed_at, sp.last_accessed
	FROM student_progress sp
	JOIN lessons l ON l.id = sp.lesson_id`

	lessonProgressDetailSelect = `SELECT sp.id, sp.student_id, sp.lesson_id, l.course_id, sp.status, sp.score, sp.attempts,
		sp.time_spent, sp.started_at, sp.completed_at, sp.last_accessed,
		l.name AS lesson_name, l.slug AS lesson_slug, l.max_score, c.slug AS course_slug
	FROM student_progress sp
	JOIN lessons l ON l.id = sp.lesson_id
	JOIN courses c ON c.id = l.course_id`
)

func (row lessonProgressRow) lessonProgress() progress.LessonProgress {
	return progress.LessonProgress{
		ID:           row.ID,
		StudentID:    row.StudentID,
		LessonID:     row.LessonID,
		CourseID:     row.CourseID,
		Status:       row.Status,
		Score:        row.Score,
		Attempts:     row.Attempts,
		TimeSpent:    row.TimeSpent.Ptr(),
		StartedAt:    database.TimePtr(row.StartedAt),
		CompletedAt:  database.TimePtr(row.CompletedAt),
		LastAccessed: row.LastAccessed.UTC(),
	}
}

func forUpdate(exec core.DBExecutor) string {
	if isPostgres(exec) {
		return " FOR UPDATE OF sp"
	}
	// sqlite holds a database lock for the whole write transaction
	return ""
}

// GetOrCreateLessonProgress locks the returned row when run in a transaction.
func (repo progressRepository) GetOrCreateLessonProgress(ctx context.Context, lp progress.LessonProgress, exec ...core.DBExecutor) (progress.LessonProgress, error) {
	exe := repo.getExec(exec)
	_, err := execute(ctx, exe,
		`INSERT INTO student_progress
			(id, student_id, lesson_id, status, score, attempts, time_spent, started_at, completed_at, last_accessed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (student_id, lesson_id) DO NOTHING`,
		newID(), lp.StudentID, lp.LessonID, lp.Status, lp.Score, lp.Attempts, null.IntFromPtr(lp.TimeSpent),
		database.NullTime(lp.StartedAt), database.NullTime(lp.CompletedAt), lp.LastAccessed.UTC(),
	)
	if err != nil {
		return progress.LessonProgress{}, errors.Wrap(err, "inserting lesson progress")
	}

	var row lessonProgressRow
	query := lessonProgressSelect + " WHERE sp.student_id = ? AND sp.lesson_id = ?" + forUpdate(exe)
	if err = get(ctx, exe, &row, query, lp.StudentID, lp.LessonID); err != nil {
		return progress.LessonProgress{}, trapNoRowsErr(err, progress.ErrLessonProgressNotFound, "finding lesson progress")
	}
	return row.lessonProgress(), nil
}

func (repo progressRepository) GetLessonProgressByID(ctx context.Context, id string, exec ...core.DBExecutor) (progress.LessonProgress, error) {
	if !isUUID(id) {
		return progress.LessonProgress{}, progress.ErrLessonProgressNotFound
	}
	var row lessonProgressRow
	if err := get(ctx, repo.getExec(exec), &row, lessonProgressSelect+" WHERE sp.id = ?", id); err != nil {
		return progress.LessonProgress{}, trapNoRowsErr(err, progress.ErrLessonProgressNotFound, "finding lesson progress")
	}
	return row.lessonProgress(), nil
}

func (repo progressRepository) UpdateLessonProgress(ctx context.Context, lp progress.LessonProgress, exec ...core.DBExecutor) (progress.LessonProgress, error) {
	lp.LastAccessed = lp.LastAccessed.UTC()
	n, err := execute(ctx, repo.getExec(exec),
		`UPDATE student_progress SET status = ?, score = ?, attempts = ?, time_spent = ?, started_at = ?, completed_at = ?,
			last_accessed = ?
		WHERE id = ?`,
		lp.Status, lp.Score, lp.Attempts, null.IntFromPtr(lp.TimeSpent), database.NullTime(lp.StartedAt), database.NullTime(lp.CompletedAt),
		lp.LastAccessed, lp.ID,
	)
	if err != nil {
		return progress.LessonProgress{}, errors.Wrap(err, "updating lesson progress")
	}
	if n == 0 {
		return progress.LessonProgress{}, progress.ErrLessonProgressNotFound
	}
	return lp, nil
}

func (repo progressRepository) DeleteLessonProgress(ctx context.Context, id string, exec ...core.DBExecutor) error {
	n, err := execute(ctx, repo.getExec(exec), "DELETE FROM student_progress WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting lesson progress")
	}
	if n == 0 {
		return progress.ErrLessonProgressNotFound
	}
	return nil
}

func (repo progressRepository) QueryLessonProgress(ctx context.Context, filter progress.LessonProgressFilter, exec ...core.DBExecutor) ([]progress.LessonProgressDetail, error) {
	var w where
	if filter.StudentID != "" {
		w.add("sp.student_id = ?", filter.StudentID)
	}
	if filter.CourseID != "" {
		w.add("l.course_id = ?", filter.CourseID)
	}

	var rows []lessonProgressDetailRow
	query := lessonProgressDetailSelect + w.String() + " ORDER BY c.name ASC, l.created_at ASC, l.name ASC"
	if err := selectAll(ctx, repo.getExec(exec), &rows, query, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying lesson progress")
	}

	lessons := make([]progress.LessonProgressDetail, 0, len(rows))
	for _, row := range rows {
		lp := row.lessonProgress()
		lessons = append(lessons, progress.LessonProgressDetail{
			LessonProgress:       lp,
			LessonName:           row.LessonName,
			LessonSlug:           row.LessonSlug,
			MaxScore:             row.MaxScore,
			CourseSlug:           row.CourseSlug,
			CompletionPercentage: progress.CompletionPercentage(lp.Score, row.MaxScore),
		})
	}
	return lessons, nil
}

// Attempts

type attemptRow struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	AssessmentID string    `db:"assessment_id"`
	Score        int       `db:"score"`
	Percentage   float64   `db:"percentage"`
	Passed       bool      `db:"passed"`
	TimeTaken    null.Int  `db:"time_taken"`
	Answers      answers   `db:"answers"`
	CompletedAt  time.Time `db:"completed_at"`
}

type attemptDetailRow struct {
	attemptRow
	AssessmentTitle string `db:"assessment_title"`
	TotalQuestions  int    `db:"total_questions"`
	CourseID        string `db:"course_id"`
	CourseName      string `db:"course_name"`
	CourseSlug      string `db:"course_slug"`
}

const attemptDetailSelect = `SELECT a.id, a.user_id, a.assessment_id, a.score, a.percentage, a.passed, a.time_taken,
		a.answers, a.completed_at,
		s.title AS assessment_title, s.total_questions, c.id AS course_id, c.name AS course_name, c.slug AS course_slug
	FROM assessment_attempts a
	JOIN assessments s ON s.id = a.assessment_id
	JOIN courses c ON c.id = s.course_id`

func (row attemptDetailRow) attemptDetail() progress.AttemptDetail {
	return progress.AttemptDetail{
		Attempt: progress.Attempt{
			ID:           row.ID,
			UserID:       row.UserID,
			AssessmentID: row.AssessmentID,
			Score:        row.Score,
			Percentage:   row.Percentage,
			Passed:       row.Passed,
			TimeTaken:    row.TimeTaken.Ptr(),
			Answers:      row.Answers,
			CompletedAt:  row.CompletedAt.UTC(),
		},
		AssessmentTitle: row.AssessmentTitle,
		TotalQuestions:  row.TotalQuestions,
		CourseID:        row.CourseID,
		CourseName:      row.CourseName,
		CourseSlug:      row.CourseSlug,
	}
}

func (repo progressRepository) CreateAttempt(ctx context.Context, attempt progress.Attempt, exec ...core.DBExecutor) (progress.Attempt, error) {
	attempt.ID = newID()
	attempt.CompletedAt = attempt.CompletedAt.UTC()
	if attempt.Answers == nil {
		attempt.Answers = map[string]interface{}{}
	}
	_, err := execute(ctx, repo.getExec(exec),
		`INSERT INTO assessment_attempts
			(id, user_id, assessment_id, score, percentage, passed, time_taken, answers, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID, attempt.UserID, attempt.AssessmentID, attempt.Score, attempt.Percentage, attempt.Passed,
		null.IntFromPtr(attempt.TimeTaken), answers(attempt.Answers), attempt.CompletedAt,
	)
	if err != nil {
		return progress.Attempt{}, errors.Wrap(err, "inserting attempt")
	}
	return attempt, nil
}

func (repo progressRepository) GetAttempt(ctx context.Context, id string, exec ...core.DBExecutor) (progress.AttemptDetail, error) {
	if !isUUID(id) {
		return progress.AttemptDetail{}, progress.ErrAttemptNotFound
	}
	var row attemptDetailRow
	if err := get(ctx, repo.getExec(exec), &row, attemptDetailSelect+" WHERE a.id = ?", id); err != nil {
		return progress.AttemptDetail{}, trapNoRowsErr(err, progress.ErrAttemptNotFound, "finding attempt")
	}
	return row.attemptDetail(), nil
}

func (repo progressRepository) QueryAttempts(ctx context.Context, filter progress.AttemptFilter, exec ...core.DBExecutor) ([]progress.AttemptDetail, error) {
	var w where
	if filter.UserID != "" {
		w.add("a.user_id = ?", filter.UserID)
	}
	if filter.CourseID != "" {
		w.add("s.course_id = ?", filter.CourseID)
	}
	if filter.AssessmentID != "" {
		w.add("a.assessment_id = ?", filter.AssessmentID)
	}
	query := attemptDetailSelect + w.String() + " ORDER BY a.completed_at DESC"
	args := w.args
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []attemptDetailRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	attempts := make([]progress.AttemptDetail, 0, len(rows))
	for _, row := range rows {
		attempts = append(attempts, row.attemptDetail())
	}
	return attempts, nil
}

func (repo progressRepository) ActivityTimes(ctx context.Context, studentID string, since time.Time, exec ...core.DBExecutor) ([]time.Time, error) {
	exe := repo.getExec(exec)
	since = since.UTC()

	var attempts []time.Time
	err := selectAll(ctx, exe, &attempts,
		"SELECT completed_at FROM assessment_attempts WHERE user_id = ? AND completed_at >= ?", studentID, since)
	if err != nil {
		return nil, errors.Wrap(err, "querying attempt times")
	}
	var lessons []null.Time
	err = selectAll(ctx, exe, &lessons,
		"SELECT completed_at FROM student_progress WHERE student_id = ? AND completed_at >= ?", studentID, since)
	if err != nil {
		return nil, errors.Wrap(err, "querying lesson completion times")
	}

	times := make([]time.Time, 0, len(attempts)+len(lessons))
	for _, t := range attempts {
		times = append(times, t.UTC())
	}
	for _, t := range lessons {
		if t.Valid {
			times = append(times, t.Time.UTC())
		}
	}
	return times, nil
}

// Course progress

type courseProgressRow struct {
	ID                    string    `db:"id"`
	StudentID             string    `db:"student_id"`
	CourseID              string    `db:"course_id"`
	TotalLessonsCompleted int       `db:"total_lessons_completed"`
	TotalScore            int       `db:"total_score"`
	AverageScore          float64   `db:"average_score"`
	Level                 int       `db:"level"`
	BestAssessmentScore   float64   `db:"best_assessment_score"`
	AttemptsCount         int       `db:"attempts_count"`
	Status                string    `db:"status"`
	StartedAt             null.Time `db:"started_at"`
	CompletedAt           null.Time `db:"completed_at"`
	LastLessonDate        null.Time `db:"last_lesson_date"`
	UpdatedAt             time.Time `db:"updated_at"`
}

type courseProgressDetailRow struct {
	courseProgressRow
	CourseName   string `db:"course_name"`
	CourseSlug   string `db:"course_slug"`
	TotalLessons int    `db:"total_lessons"`
}

const courseProgressColumns = `cp.id, cp.student_id, cp.course_id, cp.total_lessons_completed, cp.total_score,
	cp.average_score, cp.level, cp.best_assessment_score, cp.attempts_count, cp.status, cp.started_at, cp.completed_at,
	cp.last_lesson_date, cp.updated_at`

func (row courseProgressRow) courseProgress() progress.CourseProgress {
	return progress.CourseProgress{
		ID:                    row.ID,
		StudentID:             row.StudentID,
		CourseID:              row.CourseID,
		TotalLessonsCompleted: row.TotalLessonsCompleted,
		TotalScore:            row.TotalScore,
		AverageScore:          row.AverageScore,
		Level:                 row.Level,
		BestAssessmentScore:   row.BestAssessmentScore,
		AttemptsCount:         row.AttemptsCount,
		Status:                row.Status,
		StartedAt:             database.TimePtr(row.StartedAt),
		CompletedAt:           database.TimePtr(row.CompletedAt),
		LastLessonDate:        database.TimePtr(row.LastLessonDate),
		UpdatedAt:             row.UpdatedAt.UTC(),
	}
}

const insertCourseProgress = `INSERT INTO course_progress (id, student_id, course_id, status, level, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (student_id, course_id) DO NOTHING`

func (repo progressRepository) LockCourseProgress(ctx context.Context, studentID, courseID string, exec ...core.DBExecutor) (progress.CourseProgress, error) {
	exe := repo.getExec(exec)
	_, err := execute(ctx, exe, insertCourseProgress,
		newID(), studentID, courseID, progress.StatusNotStarted, progress.LevelBeginner, core.Now())
	if err != nil {
		return progress.CourseProgress{}, errors.Wrap(err, "inserting course progress")
	}

	query := "SELECT " + courseProgressColumns + " FROM course_progress cp WHERE cp.student_id = ? AND cp.course_id = ?"
	if isPostgres(exe) {
		query += " FOR UPDATE"
	}
	var row courseProgressRow
	if err = get(ctx, exe, &row, query, studentID, courseID); err != nil {
		return progress.CourseProgress{}, trapNoRowsErr(err, progress.ErrCourseProgressNotFound, "locking course progress")
	}
	return row.courseProgress(), nil
}

func (repo progressRepository) GetCourseProgress(ctx context.Context, studentID, courseID string, exec ...core.DBExecutor) (progress.CourseProgress, error) {
	var row courseProgressRow
	err := get(ctx, repo.getExec(exec), &row,
		"SELECT "+courseProgressColumns+" FROM course_progress cp WHERE cp.student_id = ? AND cp.course_id = ?",
		studentID, courseID)
	if err != nil {
		return progress.CourseProgress{}, trapNoRowsErr(err, progress.ErrCourseProgressNotFound, "finding course progress")
	}
	return row.courseProgress(), nil
}

func (repo progressRepository) UpdateCourseProgress(ctx context.Context, cp progress.CourseProgress, exec ...core.DBExecutor) (progress.CourseProgress, error) {
	cp.UpdatedAt = cp.UpdatedAt.UTC()
	n, err := execute(ctx, repo.getExec(exec),
		`UPDATE course_progress SET total_lessons_completed = ?, total_score = ?, average_score = ?, level = ?,
			best_assessment_score = ?, attempts_count = ?, status = ?, started_at = ?, completed_at = ?,
			last_lesson_date = ?, updated_at = ?
		WHERE id = ?`,
		cp.TotalLessonsCompleted, cp.TotalScore, cp.AverageScore, cp.Level, cp.BestAssessmentScore, cp.AttemptsCount,
		cp.Status, database.NullTime(cp.StartedAt), database.NullTime(cp.CompletedAt), database.NullTime(cp.LastLessonDate), cp.UpdatedAt, cp.ID,
	)
	if err != nil {
		return progress.CourseProgress{}, errors.Wrap(err, "updating course progress")
	}
	if n == 0 {
		return progress.CourseProgress{}, progress.ErrCourseProgressNotFound
	}
	return cp, nil
}

func (repo progressRepository) CreateCourseProgress(ctx context.Context, courseID string, studentIDs []string, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)
	now := core.Now()
	var created int
	for _, studentID := range studentIDs {
		n, err := execute(ctx, exe, insertCourseProgress,
			newID(), studentID, courseID, progress.StatusNotStarted, progress.LevelBeginner, now)
		if err != nil {
			return 0, errors.Wrap(err, "inserting course progress")
		}
		created += n
	}
	return created, nil
}

func (repo progressRepository) QueryCourseProgress(ctx context.Context, filter progress.CourseProgressFilter, exec ...core.DBExecutor) ([]progress.CourseProgressDetail, error) {
	var w where
	if filter.StudentID != "" {
		w.add("cp.student_id = ?", filter.StudentID)
	}
	if filter.CourseID != "" {
		w.add("cp.course_id = ?", filter.CourseID)
	}

	query := "SELECT " + courseProgressColumns + `, c.name AS course_name, c.slug AS course_slug,
		(SELECT COUNT(*) FROM lessons l WHERE l.course_id = c.id) AS total_lessons
	FROM course_progress cp
	JOIN courses c ON c.id = cp.course_id` + w.String() + " ORDER BY cp.updated_at DESC, c.name ASC"

	var rows []courseProgressDetailRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, query, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying course progress")
	}
	courses := make([]progress.CourseProgressDetail, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, progress.CourseProgressDetail{
			CourseProgress: row.courseProgress(),
			CourseName:     row.CourseName,
			CourseSlug:     row.CourseSlug,
			TotalLessons:   row.TotalLessons,
		})
	}
	return courses, nil
}

// firstTime returns the first value of a one column time query, nil when there are no rows.
func firstTime(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) (*time.Time, error) {
	var t null.Time
	if err := get(ctx, exec, &t, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return database.TimePtr(t), nil
}

func (repo progressRepository) LessonStats(ctx context.Context, studentID, courseID string, exec ...core.DBExecutor) (progress.LessonStats, error) {
	exe := repo.getExec(exec)
	const from = ` FROM student_progress sp
	JOIN lessons l ON l.id = sp.lesson_id
	WHERE sp.student_id = ? AND l.course_id = ? AND sp.status = ?`
	args := []interface{}{studentID, courseID, progress.StatusCompleted}

	var ls progress.LessonStats
	row := exe.QueryRowxContext(ctx, exe.Rebind("SELECT COUNT(*), COALESCE(SUM(sp.score), 0)"+from), args...)
	if err := row.Scan(&ls.Completed, &ls.TotalScore); err != nil {
		return progress.LessonStats{}, errors.Wrap(err, "aggregating lesson progress")
	}

	var err error
	// times are selected rather than aggregated, sqlite returns MIN/MAX results untyped
	ls.LastCompletedAt, err = firstTime(ctx, exe,
		"SELECT sp.completed_at"+from+" AND sp.completed_at IS NOT NULL ORDER BY sp.completed_at DESC LIMIT 1", args...)
	if err != nil {
		return progress.LessonStats{}, errors.Wrap(err, "finding last lesson completion")
	}
	return ls, nil
}

func (repo progressRepository) AttemptStats(ctx context.Context, studentID, courseID string, exec ...core.DBExecutor) (progress.AttemptStats, error) {
	exe := repo.getExec(exec)
	const from = ` FROM assessment_attempts a
	JOIN assessments s ON s.id = a.assessment_id
	WHERE a.user_id = ? AND s.course_id = ?`

	var as progress.AttemptStats
	row := exe.QueryRowxContext(ctx, exe.Rebind(
		"SELECT COUNT(*), COALESCE(SUM(CASE WHEN a.passed THEN 1 ELSE 0 END), 0), COALESCE(MAX(a.percentage), 0)"+from),
		studentID, courseID)
	if err := row.Scan(&as.Count, &as.Passed, &as.BestPercentage); err != nil {
		return progress.AttemptStats{}, errors.Wrap(err, "aggregating attempts")
	}

	var err error
	as.FirstAt, err = firstTime(ctx, exe, "SELECT a.completed_at"+from+" ORDER BY a.completed_at ASC LIMIT 1", studentID, courseID)
	if err != nil {
		return progress.AttemptStats{}, errors.Wrap(err, "finding first attempt")
	}
	return as, nil
}
