package progress

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/gigglesedu/giggles/core"
	"github.com/gigglesedu/giggles/core/catalog"
	"github.com/gigglesedu/giggles/core/user"
)

var (
	// errors
	ErrLessonProgressNotFound = core.NewNotFoundError("lesson progress")
	ErrCourseProgressNotFound = core.NewNotFoundError("course progress")
	ErrAttemptNotFound        = core.NewNotFoundError("attempt")

	recentAttemptsLimit = 5
)

type (
	Repository interface {
		// GetOrCreateLessonProgress inserts lp unless the (student, lesson) row exists, then returns the stored row.
		GetOrCreateLessonProgress(ctx context.Context, lp LessonProgress, exec ...core.DBExecutor) (LessonProgress, error)
		GetLessonProgressByID(ctx context.Context, id string, exec ...core.DBExecutor) (LessonProgress, error)
		UpdateLessonProgress(ctx context.Context, lp LessonProgress, exec ...core.DBExecutor) (LessonProgress, error)
		DeleteLessonProgress(ctx context.Context, id string, exec ...core.DBExecutor) error
		QueryLessonProgress(ctx context.Context, filter LessonProgressFilter, exec ...core.DBExecutor) ([]LessonProgressDetail, error)

		CreateAttempt(ctx context.Context, attempt Attempt, exec ...core.DBExecutor) (Attempt, error)
		GetAttempt(ctx context.Context, id string, exec ...core.DBExecutor) (AttemptDetail, error)
		// QueryAttempts returns matching attempts newest first.
		QueryAttempts(ctx context.Context, filter AttemptFilter, exec ...core.DBExecutor) ([]AttemptDetail, error)
		// ActivityTimes returns the lesson completion and attempt times of a student.
		ActivityTimes(ctx context.Context, studentID string, since time.Time, exec ...core.DBExecutor) ([]time.Time, error)

		// LockCourseProgress creates the (student, course) row if missing and locks it for the
		// rest of the transaction.
		LockCourseProgress(ctx context.Context, studentID, courseID string, exec ...core.DBExecutor) (CourseProgress, error)
		GetCourseProgress(ctx context.Context, studentID, courseID string, exec ...core.DBExecutor) (CourseProgress, error)
		UpdateCourseProgress(ctx context.Context, cp CourseProgress, exec ...core.DBExecutor) (CourseProgress, error)
		// CreateCourseProgress inserts a not started row per student, skipping existing ones. Returns the inserted count.
		CreateCourseProgress(ctx context.Context, courseID string, studentIDs []string, exec ...core.DBExecutor) (int, error)
		QueryCourseProgress(ctx context.Context, filter CourseProgressFilter, exec ...core.DBExecutor) ([]CourseProgressDetail, error)
		LessonStats(ctx context.Context, studentID, courseID string, exec ...core.DBExecutor) (LessonStats, error)
		AttemptStats(ctx context.Context, studentID, courseID string, exec ...core.DBExecutor) (AttemptStats, error)
	}

	ReportRepository interface {
		// QueryReport returns the lesson progress rows matching filter, by student then lesson.
		QueryReport(ctx context.Context, filter *ReportFilter, exec ...core.DBExecutor) ([]ReportRow, error)
	}

	Service interface {
		// OpenLesson records a lesson visit, creating the lesson progress if needed.
		OpenLesson(ctx context.Context, student user.User, lesson catalog.Lesson) (LessonProgressDetail, error)
		StartLesson(ctx context.Context, student user.User, lesson catalog.Lesson) (LessonProgressDetail, error)
		// CompleteLesson awards the lesson max score and recomputes the course progress atomically.
		CompleteLesson(ctx context.Context, student user.User, lesson catalog.Lesson, data CompleteLesson) (LessonProgressDetail, CourseProgress, error)
		// SubmitAttempt records an attempt, completes its lesson if any and recomputes the course progress atomically.
		SubmitAttempt(ctx context.Context, student user.User, course catalog.Course, assessment catalog.Assessment, na NewAttempt) (AttemptDetail, error)
		GetAttempt(ctx context.Context, student user.User, course catalog.Course, id string) (AttemptDetail, error)
		AssessmentReport(ctx context.Context, student user.User, assessment catalog.Assessment) (AssessmentReport, error)
		DeleteLessonProgress(ctx context.Context, id string) error

		RecomputeCourseProgress(ctx context.Context, studentID, courseID string) (CourseProgress, error)
		// ReconcileAll recomputes every course progress. Returns the number of rows recomputed.
		ReconcileAll(ctx context.Context) (int, error)
		// RecomputeCourse recomputes the course progress of every student of a course.
		RecomputeCourse(ctx context.Context, courseID string) (int, error)
		Enroll(ctx context.Context, e Enrollment) (int, error)

		GetCourseProgress(ctx context.Context, student user.User, course catalog.Course) (CourseProgress, error)
		Dashboard(ctx context.Context, student user.User) (Dashboard, error)
		Summary(ctx context.Context, student user.User) (Summary, error)
		Stats(ctx context.Context, student user.User) (Stats, error)
		LessonProgress(ctx context.Context, student user.User) ([]LessonProgressDetail, error)
		CourseReport(ctx context.Context, student user.User, course catalog.Course) (CourseReport, error)
		Report(ctx context.Context, filter *ReportFilter) ([]ReportRow, error)
	}

	service struct {
		db            core.DB
		repo          Repository
		reportRepo    ReportRepository
		usrSvc        user.Service
		catalogSvc    catalog.Service
		mailSvc       core.EmailService
		logger        core.Logger
		notifications bool
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.DB,
	repo Repository,
	reportRepo ReportRepository,
	usrSvc user.Service,
	catalogSvc catalog.Service,
	mailSvc core.EmailService,
	logger core.Logger,
) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(db, "db"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(reportRepo, "reportRepo"),
		vala.IsNotNil(usrSvc, "usrSvc"),
		vala.IsNotNil(catalogSvc, "catalogSvc"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()
	return &service{
		db:            db,
		repo:          repo,
		reportRepo:    reportRepo,
		usrSvc:        usrSvc,
		catalogSvc:    catalogSvc,
		mailSvc:       mailSvc,
		logger:        logger,
		notifications: core.Conf.EmailNotifications,
	}
}

func withLesson(lp LessonProgress, lesson catalog.Lesson) LessonProgressDetail {
	return LessonProgressDetail{
		LessonProgress:       lp,
		LessonName:           lesson.Name,
		LessonSlug:           lesson.Slug,
		MaxScore:             lesson.MaxScore,
		CompletionPercentage: CompletionPercentage(lp.Score, lesson.MaxScore),
	}
}

func (svc *service) OpenLesson(ctx context.Context, student user.User, lesson catalog.Lesson) (LessonProgressDetail, error) {
	now := core.Now()
	lp, err := svc.repo.GetOrCreateLessonProgress(ctx, LessonProgress{
		StudentID:    student.ID,
		LessonID:     lesson.ID,
		Status:       StatusNotStarted,
		StartedAt:    &now,
		LastAccessed: now,
	})
	if err != nil {
		return LessonProgressDetail{}, errors.Wrap(err, "getting lesson progress")
	}
	return withLesson(lp, lesson), nil
}

func (svc *service) StartLesson(ctx context.Context, student user.User, lesson catalog.Lesson) (LessonProgressDetail, error) {
	var lp LessonProgress
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		now := core.Now()
		var err error
		lp, err = svc.repo.GetOrCreateLessonProgress(ctx, LessonProgress{
			StudentID:    student.ID,
			LessonID:     lesson.ID,
			Status:       StatusInProgress,
			StartedAt:    &now,
			LastAccessed: now,
		}, tx)
		if err != nil {
			return errors.Wrap(err, "getting lesson progress")
		}
		if lp.Status == StatusNotStarted {
			lp.Status = StatusInProgress
		}
		if lp.StartedAt == nil {
			lp.StartedAt = &now
		}
		lp.LastAccessed = now
		lp, err = svc.repo.UpdateLessonProgress(ctx, lp, tx)
		return errors.Wrap(err, "updating lesson progress")
	})
	if err != nil {
		return LessonProgressDetail{}, err
	}
	return withLesson(lp, lesson), nil
}

func (svc *service) CompleteLesson(ctx context.Context, student user.User, lesson catalog.Lesson, data CompleteLesson) (LessonProgressDetail, CourseProgress, error) {
	var (
		lp LessonProgress
		cp CourseProgress
	)
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if lp, err = svc.completeLesson(ctx, student.ID, lesson.ID, lesson.MaxScore, data.TimeSpent, false, tx); err != nil {
			return err
		}
		cp, err = svc.recompute(ctx, student.ID, lesson.CourseID, tx)
		return err
	})
	if err != nil {
		return LessonProgressDetail{}, CourseProgress{}, err
	}
	return withLesson(lp, lesson), cp, nil
}

// completeLesson marks a lesson completed with the given score. countAttempt increments the attempts counter.
func (svc *service) completeLesson(
	ctx context.Context,
	studentID, lessonID string,
	score int,
	timeSpent *int,
	countAttempt bool,
	tx core.DBExecutor,
) (LessonProgress, error) {
	now := core.Now()
	lp, err := svc.repo.GetOrCreateLessonProgress(ctx, LessonProgress{
		StudentID:    studentID,
		LessonID:     lessonID,
		Status:       StatusInProgress,
		StartedAt:    &now,
		LastAccessed: now,
	}, tx)
	if err != nil {
		return LessonProgress{}, errors.Wrap(err, "getting lesson progress")
	}

	lp.Status = StatusCompleted
	lp.Score = score
	lp.CompletedAt = &now
	lp.LastAccessed = now
	if lp.StartedAt == nil {
		lp.StartedAt = &now
	}
	if timeSpent != nil {
		total := *timeSpent
		if lp.TimeSpent != nil {
			total += *lp.TimeSpent
		}
		lp.TimeSpent = &total
	}
	if countAttempt {
		lp.Attempts++
	}
	lp, err = svc.repo.UpdateLessonProgress(ctx, lp, tx)
	return lp, errors.Wrap(err, "updating lesson progress")
}

func (svc *service) SubmitAttempt(
	ctx context.Context,
	student user.User,
	course catalog.Course,
	assessment catalog.Assessment,
	na NewAttempt,
) (AttemptDetail, error) {
	percentage, passed := ScoreAttempt(na.Score, assessment)
	attempt := Attempt{
		UserID:       student.ID,
		AssessmentID: assessment.ID,
		Score:        na.Score,
		Percentage:   percentage,
		Passed:       passed,
		TimeTaken:    na.TimeTaken,
		Answers:      na.Answers,
		CompletedAt:  core.Now(),
	}

	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if attempt, err = svc.repo.CreateAttempt(ctx, attempt, tx); err != nil {
			return errors.Wrap(err, "creating attempt")
		}
		if assessment.HasLesson() {
			if _, err = svc.completeLesson(ctx, student.ID, assessment.LessonID, attempt.Score, attempt.TimeTaken, true, tx); err != nil {
				return err
			}
		}
		_, err = svc.recompute(ctx, student.ID, assessment.CourseID, tx)
		return err
	})
	if err != nil {
		return AttemptDetail{}, err
	}

	detail := AttemptDetail{
		Attempt:         attempt,
		AssessmentTitle: assessment.Title,
		TotalQuestions:  assessment.TotalQuestions,
		CourseID:        course.ID,
		CourseName:      course.Name,
		CourseSlug:      course.Slug,
	}
	if svc.notifications {
		svc.sendResultMail(student, detail)
	}
	return detail, nil
}

func (svc *service) sendResultMail(student user.User, attempt AttemptDetail) {
	if student.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: student.FullName, Address: student.Email}},
		Subject:      fmt.Sprintf("Your result for %s", attempt.AssessmentTitle),
		TemplateName: "assessment_result",
		TemplateData: map[string]interface{}{
			"Name":           student.FullName,
			"Assessment":     attempt.AssessmentTitle,
			"Course":         attempt.CourseName,
			"Score":          attempt.Score,
			"TotalQuestions": attempt.TotalQuestions,
			"Percentage":     attempt.Percentage,
			"Passed":         attempt.Passed,
		},
	})
}

func (svc *service) GetAttempt(ctx context.Context, student user.User, course catalog.Course, id string) (AttemptDetail, error) {
	attempt, err := svc.repo.GetAttempt(ctx, id)
	if err != nil {
		return AttemptDetail{}, err
	}
	if attempt.UserID != student.ID || attempt.CourseID != course.ID {
		return AttemptDetail{}, ErrAttemptNotFound
	}
	return attempt, nil
}

func (svc *service) AssessmentReport(ctx context.Context, student user.User, assessment catalog.Assessment) (AssessmentReport, error) {
	attempts, err := svc.repo.QueryAttempts(ctx, AttemptFilter{UserID: student.ID, AssessmentID: assessment.ID})
	if err != nil {
		return AssessmentReport{}, errors.Wrap(err, "querying attempts")
	}
	if attempts == nil {
		attempts = []AttemptDetail{}
	}
	sortAttempts(attempts)
	return AssessmentReport{Assessment: assessment, Attempts: attempts, BestAttempt: BestAttempt(attempts)}, nil
}

func (svc *service) DeleteLessonProgress(ctx context.Context, id string) error {
	return core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		lp, err := svc.repo.GetLessonProgressByID(ctx, id, tx)
		if err != nil {
			return err
		}
		if err = svc.repo.DeleteLessonProgress(ctx, lp.ID, tx); err != nil {
			return errors.Wrap(err, "deleting lesson progress")
		}
		if _, err = svc.repo.GetCourseProgress(ctx, lp.StudentID, lp.CourseID, tx); err != nil {
			if errors.Cause(err) == ErrCourseProgressNotFound {
				return nil
			}
			return errors.Wrap(err, "getting course progress")
		}
		_, err = svc.recompute(ctx, lp.StudentID, lp.CourseID, tx)
		return err
	})
}

func (svc *service) RecomputeCourseProgress(ctx context.Context, studentID, courseID string) (CourseProgress, error) {
	var cp CourseProgress
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		cp, err = svc.recompute(ctx, studentID, courseID, tx)
		return err
	})
	return cp, err
}

// recompute rebuilds the course progress of a student from the lesson progress and attempt rows.
// The row stays locked until tx ends, so concurrent recomputations are serialized.
func (svc *service) recompute(ctx context.Context, studentID, courseID string, tx core.DBExecutor) (CourseProgress, error) {
	cp, err := svc.repo.LockCourseProgress(ctx, studentID, courseID, tx)
	if err != nil {
		return CourseProgress{}, errors.Wrap(err, "locking course progress")
	}
	ls, err := svc.repo.LessonStats(ctx, studentID, courseID, tx)
	if err != nil {
		return CourseProgress{}, errors.Wrap(err, "aggregating lesson progress")
	}
	as, err := svc.repo.AttemptStats(ctx, studentID, courseID, tx)
	if err != nil {
		return CourseProgress{}, errors.Wrap(err, "aggregating attempts")
	}
	cp, err = svc.repo.UpdateCourseProgress(ctx, Summarize(cp, ls, as, core.Now()), tx)
	return cp, errors.Wrap(err, "updating course progress")
}

func (svc *service) ReconcileAll(ctx context.Context) (int, error) {
	return svc.reconcile(ctx, CourseProgressFilter{})
}

func (svc *service) RecomputeCourse(ctx context.Context, courseID string) (int, error) {
	return svc.reconcile(ctx, CourseProgressFilter{CourseID: courseID})
}

// reconcile recomputes the matching course progress rows one transaction each.
// Failed rows are logged and skipped.
func (svc *service) reconcile(ctx context.Context, filter CourseProgressFilter) (int, error) {
	all, err := svc.repo.QueryCourseProgress(ctx, filter)
	if err != nil {
		return 0, errors.Wrap(err, "querying course progress")
	}

	var count int
	for _, cp := range all {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if _, err := svc.RecomputeCourseProgress(ctx, cp.StudentID, cp.CourseID); err != nil {
			svc.logger.Error(fmt.Sprintf("recomputing course progress %s", cp.ID), err)
			continue
		}
		count++
	}
	return count, nil
}

// Enroll expects e to be validated.
func (svc *service) Enroll(ctx context.Context, e Enrollment) (int, error) {
	if _, err := svc.catalogSvc.GetCourse(ctx, e.CourseID); err != nil {
		if errors.Cause(err) == catalog.ErrCourseNotFound {
			return 0, core.NewValidationError(err, core.FieldError{Field: "course_id", Error: err.Error()})
		}
		return 0, errors.Wrap(err, "getting course")
	}
	for _, id := range e.StudentIDs {
		if _, err := svc.usrSvc.GetByID(ctx, id); err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return 0, core.NewValidationError(err, core.FieldError{Field: "student_ids", Error: "unknown student " + id})
			}
			return 0, errors.Wrap(err, "getting student")
		}
	}

	var created int
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		created, err = svc.repo.CreateCourseProgress(ctx, e.CourseID, e.StudentIDs, tx)
		return errors.Wrap(err, "creating course progress")
	})
	return created, err
}

// Reads

func (svc *service) GetCourseProgress(ctx context.Context, student user.User, course catalog.Course) (CourseProgress, error) {
	return svc.repo.GetCourseProgress(ctx, student.ID, course.ID)
}

func (svc *service) courseProgress(ctx context.Context, studentID string) ([]CourseProgressDetail, error) {
	courses, err := svc.repo.QueryCourseProgress(ctx, CourseProgressFilter{StudentID: studentID})
	if err != nil {
		return nil, errors.Wrap(err, "querying course progress")
	}
	if courses == nil {
		courses = []CourseProgressDetail{}
	}
	return courses, nil
}

func (svc *service) attempts(ctx context.Context, filter AttemptFilter) ([]AttemptDetail, error) {
	attempts, err := svc.repo.QueryAttempts(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	if attempts == nil {
		attempts = []AttemptDetail{}
	}
	return attempts, nil
}

func (svc *service) Dashboard(ctx context.Context, student user.User) (Dashboard, error) {
	profile, err := svc.usrSvc.GetProfile(ctx, student)
	if err != nil {
		return Dashboard{}, errors.Wrap(err, "getting profile")
	}
	courses, err := svc.courseProgress(ctx, student.ID)
	if err != nil {
		return Dashboard{}, err
	}
	recent, err := svc.attempts(ctx, AttemptFilter{UserID: student.ID, Limit: recentAttemptsLimit})
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{User: student, Profile: profile, Courses: courses, RecentAttempts: recent}, nil
}

func (svc *service) Summary(ctx context.Context, student user.User) (Summary, error) {
	courses, err := svc.courseProgress(ctx, student.ID)
	if err != nil {
		return Summary{}, err
	}
	lessons, err := svc.LessonProgress(ctx, student)
	if err != nil {
		return Summary{}, err
	}
	attempts, err := svc.attempts(ctx, AttemptFilter{UserID: student.ID})
	if err != nil {
		return Summary{}, err
	}
	today := core.Now()
	activity, err := svc.repo.ActivityTimes(ctx, student.ID, today.AddDate(-1, 0, 0))
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying activity")
	}

	recent := attempts
	if len(recent) > recentAttemptsLimit {
		recent = recent[:recentAttemptsLimit]
	}
	return Summary{
		Stats:          ComputeStats(courses, lessons, attempts, activity, today),
		Courses:        courses,
		RecentAttempts: recent,
	}, nil
}

func (svc *service) Stats(ctx context.Context, student user.User) (Stats, error) {
	summary, err := svc.Summary(ctx, student)
	if err != nil {
		return Stats{}, err
	}
	return summary.Stats, nil
}

func (svc *service) LessonProgress(ctx context.Context, student user.User) ([]LessonProgressDetail, error) {
	lessons, err := svc.repo.QueryLessonProgress(ctx, LessonProgressFilter{StudentID: student.ID})
	if err != nil {
		return nil, errors.Wrap(err, "querying lesson progress")
	}
	if lessons == nil {
		lessons = []LessonProgressDetail{}
	}
	return lessons, nil
}

func (svc *service) CourseReport(ctx context.Context, student user.User, course catalog.Course) (CourseReport, error) {
	cp, err := svc.repo.GetCourseProgress(ctx, student.ID, course.ID)
	if err != nil {
		if errors.Cause(err) != ErrCourseProgressNotFound {
			return CourseReport{}, errors.Wrap(err, "getting course progress")
		}
		cp = Summarize(CourseProgress{StudentID: student.ID, CourseID: course.ID}, LessonStats{}, AttemptStats{}, core.Now())
	}
	lessons, err := svc.repo.QueryLessonProgress(ctx, LessonProgressFilter{StudentID: student.ID, CourseID: course.ID})
	if err != nil {
		return CourseReport{}, errors.Wrap(err, "querying lesson progress")
	}
	if lessons == nil {
		lessons = []LessonProgressDetail{}
	}
	attempts, err := svc.attempts(ctx, AttemptFilter{UserID: student.ID, CourseID: course.ID})
	if err != nil {
		return CourseReport{}, err
	}
	return CourseReport{Course: course, Progress: cp, Lessons: lessons, Attempts: attempts}, nil
}

func (svc *service) Report(ctx context.Context, filter *ReportFilter) ([]ReportRow, error) {
	rows, err := svc.reportRepo.QueryReport(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying report")
	}
	if rows == nil {
		rows = []ReportRow{}
	}
	return rows, nil
}
