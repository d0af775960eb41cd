// Package boiledrepos holds the reporting queries, bound with sqlboiler.
package boiledrepos

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/gigglesedu/giggles/core"
	"github.com/gigglesedu/giggles/core/progress"
	"github.com/gigglesedu/giggles/storage/database"
)

type reportRow struct {
	ProgressID   string    `boil:"progress_id"`
	StudentID    string    `boil:"student_id"`
	StudentName  string    `boil:"student_name"`
	StudentEmail string    `boil:"student_email"`
	CourseName   string    `boil:"course_name"`
	LessonName   string    `boil:"lesson_name"`
	Status       string    `boil:"status"`
	Score        int       `boil:"score"`
	MaxScore     int       `boil:"max_score"`
	Attempts     int       `boil:"attempts"`
	StartedAt    null.Time `boil:"started_at"`
	CompletedAt  null.Time `boil:"completed_at"`
	LastAccessed time.Time `boil:"last_accessed"`
}

const reportSelect = `SELECT sp.id AS progress_id, u.id AS student_id, u.full_name AS student_name,
		u.email AS student_email, c.name AS course_name, l.name AS lesson_name, sp.status, sp.score, l.max_score,
		sp.attempts, sp.started_at, sp.completed_at, sp.last_accessed
	FROM student_progress sp
	JOIN users u ON u.id = sp.student_id
	JOIN lessons l ON l.id = sp.lesson_id
	JOIN courses c ON c.id = l.course_id`

type reportRepository struct {
	exec core.DBExecutor
}

var _ progress.ReportRepository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(exec core.DBExecutor) *reportRepository {
	return &reportRepository{exec: exec}
}

func (repo reportRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

// startOfDay truncates t to its UTC day.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (repo reportRepository) QueryReport(ctx context.Context, filter *progress.ReportFilter, exec ...core.DBExecutor) ([]progress.ReportRow, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter != nil {
		if filter.StudentID != "" {
			conds = append(conds, "sp.student_id = ?")
			args = append(args, filter.StudentID)
		}
		if filter.CourseID != "" {
			conds = append(conds, "l.course_id = ?")
			args = append(args, filter.CourseID)
		}
		if filter.Status != "" {
			conds = append(conds, "sp.status = ?")
			args = append(args, filter.Status)
		}
		// dates are inclusive days
		if !filter.From.IsZero() {
			conds = append(conds, "sp.last_accessed >= ?")
			args = append(args, startOfDay(filter.From))
		}
		if !filter.To.IsZero() {
			conds = append(conds, "sp.last_accessed < ?")
			args = append(args, startOfDay(filter.To).AddDate(0, 0, 1))
		}
	}

	query := reportSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY u.full_name ASC, c.name ASC, l.created_at ASC, l.name ASC"

	exe := repo.getExec(exec)
	var rows []*reportRow
	if err := queries.Raw(exe.Rebind(query), args...).Bind(ctx, exe, &rows); err != nil {
		return nil, errors.Wrap(err, "querying report rows")
	}

	report := make([]progress.ReportRow, 0, len(rows))
	for _, row := range rows {
		report = append(report, progress.ReportRow{
			ProgressID:   row.ProgressID,
			StudentID:    row.StudentID,
			StudentName:  row.StudentName,
			StudentEmail: row.StudentEmail,
			CourseName:   row.CourseName,
			LessonName:   row.LessonName,
			Status:       row.Status,
			Score:        row.Score,
			MaxScore:     row.MaxScore,
			Attempts:     row.Attempts,
			StartedAt:    database.TimePtr(row.StartedAt),
			CompletedAt:  database.TimePtr(row.CompletedAt),
			LastAccessed: row.LastAccessed.UTC(),
		})
	}
	return report, nil
}
