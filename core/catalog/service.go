package catalog

import (
	"context"
	"fmt"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/gigglesedu/giggles/core"
)

var (
	// errors
	ErrCourseNotFound     = core.NewNotFoundError("course")
	ErrLessonNotFound     = core.NewNotFoundError("lesson")
	ErrAssessmentNotFound = core.NewNotFoundError("assessment")
	ErrSlugExists         = errors.New("this slug is already in use")
	ErrLessonNotInCourse  = errors.New("lesson does not belong to the course")

	maxSlugAttempts = 100
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, course Course, exec ...core.DBExecutor) (Course, error)
		UpdateCourse(ctx context.Context, course Course, exec ...core.DBExecutor) (Course, error)
		DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error
		GetCourseByID(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		GetCourseBySlug(ctx context.Context, slug string, exec ...core.DBExecutor) (Course, error)
		// QueryCourses returns a page of courses matching filter along with the total count.
		QueryCourses(ctx context.Context, filter *CourseFilter, page core.Pagination, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Course, int, error)
		CourseSlugExists(ctx context.Context, slug, excludedID string, exec ...core.DBExecutor) (bool, error)

		CreateLesson(ctx context.Context, lesson Lesson, exec ...core.DBExecutor) (Lesson, error)
		UpdateLesson(ctx context.Context, lesson Lesson, exec ...core.DBExecutor) (Lesson, error)
		DeleteLesson(ctx context.Context, id string, exec ...core.DBExecutor) error
		GetLessonByID(ctx context.Context, id string, exec ...core.DBExecutor) (Lesson, error)
		GetLessonBySlug(ctx context.Context, courseID, slug string, exec ...core.DBExecutor) (Lesson, error)
		// QueryLessons returns the lessons of a course in creation order.
		QueryLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Lesson, error)
		LessonSlugExists(ctx context.Context, courseID, slug, excludedID string, exec ...core.DBExecutor) (bool, error)

		CreateAssessment(ctx context.Context, assessment Assessment, exec ...core.DBExecutor) (Assessment, error)
		UpdateAssessment(ctx context.Context, assessment Assessment, exec ...core.DBExecutor) (Assessment, error)
		DeleteAssessment(ctx context.Context, id string, exec ...core.DBExecutor) error
		GetAssessment(ctx context.Context, id string, exec ...core.DBExecutor) (Assessment, error)
		QueryAssessments(ctx context.Context, filter AssessmentFilter, exec ...core.DBExecutor) ([]Assessment, error)
	}

	Service interface {
		CreateCourse(ctx context.Context, nc NewCourse) (Course, error)
		UpdateCourse(ctx context.Context, id string, uc UpdateCourse) (Course, error)
		DeleteCourse(ctx context.Context, id string) error
		GetCourse(ctx context.Context, id string) (Course, error)
		GetCourseBySlug(ctx context.Context, slug string) (Course, error)
		GetCourseDetail(ctx context.Context, slug string) (CourseDetail, error)
		QueryCourses(ctx context.Context, filter *CourseFilter, page core.Pagination, ordering []core.DBOrdering) (core.Page, error)

		CreateLesson(ctx context.Context, nl NewLesson) (Lesson, error)
		UpdateLesson(ctx context.Context, id string, ul UpdateLesson) (Lesson, error)
		DeleteLesson(ctx context.Context, id string) error
		GetLesson(ctx context.Context, id string) (Lesson, error)
		// GetCourseLesson finds a lesson by its course and lesson slugs.
		GetCourseLesson(ctx context.Context, courseSlug, lessonSlug string) (Course, Lesson, error)
		QueryLessons(ctx context.Context, courseID string) ([]Lesson, error)

		CreateAssessment(ctx context.Context, na NewAssessment) (Assessment, error)
		UpdateAssessment(ctx context.Context, id string, ua UpdateAssessment) (Assessment, error)
		DeleteAssessment(ctx context.Context, id string) error
		GetAssessment(ctx context.Context, id string) (Assessment, error)
		// GetCourseAssessment finds an assessment of the course with the given slug.
		GetCourseAssessment(ctx context.Context, courseSlug, id string) (Course, Assessment, error)
		QueryAssessments(ctx context.Context, filter AssessmentFilter) ([]Assessment, error)
	}

	service struct {
		db   core.DB
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(db, "db"),
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()
	return &service{db: db, repo: repo}
}

func slugError() error {
	return core.NewValidationError(ErrSlugExists, core.FieldError{Field: "slug", Error: ErrSlugExists.Error()})
}

// uniqueSlug returns slug if set and free, or the first free "<name>", "<name>-2", ... otherwise.
func uniqueSlug(slug, name string, exists func(candidate string) (bool, error)) (string, error) {
	if slug != "" {
		taken, err := exists(slug)
		if err != nil {
			return "", err
		}
		if taken {
			return "", slugError()
		}
		return slug, nil
	}

	base := core.Slugify(name)
	if base == "" {
		base = "untitled"
	}
	for i := 1; i <= maxSlugAttempts; i++ {
		candidate := base
		if i > 1 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", slugError()
}

// Courses

func (svc *service) CreateCourse(ctx context.Context, nc NewCourse) (Course, error) {
	var course Course
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		slug, err := uniqueSlug(nc.Slug, nc.Name, func(s string) (bool, error) {
			return svc.repo.CourseSlugExists(ctx, s, "", tx)
		})
		if err != nil {
			return err
		}
		course, err = svc.repo.CreateCourse(ctx, Course{
			Name:        nc.Name,
			Slug:        slug,
			Description: nc.Description,
			CreatedAt:   core.Now(),
		}, tx)
		return errors.Wrap(err, "creating course")
	})
	return course, err
}

func (svc *service) UpdateCourse(ctx context.Context, id string, uc UpdateCourse) (Course, error) {
	var course Course
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if course, err = svc.repo.GetCourseByID(ctx, id, tx); err != nil {
			return err
		}
		if uc.Slug != course.Slug {
			taken, err := svc.repo.CourseSlugExists(ctx, uc.Slug, course.ID, tx)
			if err != nil {
				return errors.Wrap(err, "checking slug")
			}
			if taken {
				return slugError()
			}
		}
		course.Name = uc.Name
		course.Slug = uc.Slug
		course.Description = *uc.Description
		course, err = svc.repo.UpdateCourse(ctx, course, tx)
		return errors.Wrap(err, "updating course")
	})
	return course, err
}

func (svc *service) DeleteCourse(ctx context.Context, id string) error {
	return svc.repo.DeleteCourse(ctx, id)
}

func (svc *service) GetCourse(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourseByID(ctx, id)
}

func (svc *service) GetCourseBySlug(ctx context.Context, slug string) (Course, error) {
	return svc.repo.GetCourseBySlug(ctx, core.CleanString(slug, true /* lower */))
}

func (svc *service) GetCourseDetail(ctx context.Context, slug string) (CourseDetail, error) {
	course, err := svc.GetCourseBySlug(ctx, slug)
	if err != nil {
		return CourseDetail{}, err
	}
	lessons, err := svc.repo.QueryLessons(ctx, course.ID)
	if err != nil {
		return CourseDetail{}, errors.Wrap(err, "querying lessons")
	}
	assessments, err := svc.repo.QueryAssessments(ctx, AssessmentFilter{CourseID: course.ID})
	if err != nil {
		return CourseDetail{}, errors.Wrap(err, "querying assessments")
	}
	return CourseDetail{Course: course, Lessons: lessons, Assessments: assessments}, nil
}

func (svc *service) QueryCourses(ctx context.Context, filter *CourseFilter, page core.Pagination, ordering []core.DBOrdering) (core.Page, error) {
	if page.Page < 1 {
		page.Page = 1
	}
	if page.PageSize <= 0 || page.PageSize > 100 {
		page.PageSize = DefaultPageSize
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	courses, count, err := svc.repo.QueryCourses(ctx, filter, page, ordering)
	if err != nil {
		return core.Page{}, errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []Course{}
	}
	return core.Page{Count: count, Page: page.Page, PageSize: page.PageSize, Results: courses}, nil
}

// Lessons

func (svc *service) CreateLesson(ctx context.Context, nl NewLesson) (Lesson, error) {
	var lesson Lesson
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		course, err := svc.repo.GetCourseByID(ctx, nl.CourseID, tx)
		if err != nil {
			if errors.Cause(err) == ErrCourseNotFound {
				return core.NewValidationError(err, core.FieldError{Field: "course_id", Error: err.Error()})
			}
			return err
		}
		slug, err := uniqueSlug(nl.Slug, nl.Name, func(s string) (bool, error) {
			return svc.repo.LessonSlugExists(ctx, course.ID, s, "", tx)
		})
		if err != nil {
			return err
		}
		lesson, err = svc.repo.CreateLesson(ctx, Lesson{
			CourseID:        course.ID,
			Name:            nl.Name,
			Slug:            slug,
			MaxScore:        nl.MaxScore,
			DifficultyLevel: nl.DifficultyLevel,
			CreatedAt:       core.Now(),
		}, tx)
		return errors.Wrap(err, "creating lesson")
	})
	return lesson, err
}

func (svc *service) UpdateLesson(ctx context.Context, id string, ul UpdateLesson) (Lesson, error) {
	var lesson Lesson
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if lesson, err = svc.repo.GetLessonByID(ctx, id, tx); err != nil {
			return err
		}
		if ul.Slug != lesson.Slug {
			taken, err := svc.repo.LessonSlugExists(ctx, lesson.CourseID, ul.Slug, lesson.ID, tx)
			if err != nil {
				return errors.Wrap(err, "checking slug")
			}
			if taken {
				return slugError()
			}
		}
		lesson.Name = ul.Name
		lesson.Slug = ul.Slug
		lesson.MaxScore = ul.MaxScore
		lesson.DifficultyLevel = ul.DifficultyLevel
		lesson, err = svc.repo.UpdateLesson(ctx, lesson, tx)
		return errors.Wrap(err, "updating lesson")
	})
	return lesson, err
}

func (svc *service) DeleteLesson(ctx context.Context, id string) error {
	return svc.repo.DeleteLesson(ctx, id)
}

func (svc *service) GetLesson(ctx context.Context, id string) (Lesson, error) {
	return svc.repo.GetLessonByID(ctx, id)
}

func (svc *service) GetCourseLesson(ctx context.Context, courseSlug, lessonSlug string) (Course, Lesson, error) {
	course, err := svc.GetCourseBySlug(ctx, courseSlug)
	if err != nil {
		return Course{}, Lesson{}, err
	}
	lesson, err := svc.repo.GetLessonBySlug(ctx, course.ID, core.CleanString(lessonSlug, true /* lower */))
	if err != nil {
		return Course{}, Lesson{}, err
	}
	return course, lesson, nil
}

func (svc *service) QueryLessons(ctx context.Context, courseID string) ([]Lesson, error) {
	return svc.repo.QueryLessons(ctx, courseID)
}

// Assessments

func (svc *service) checkAssessmentLesson(ctx context.Context, courseID, lessonID string, tx core.DBExecutor) error {
	if lessonID == "" {
		return nil
	}
	lesson, err := svc.repo.GetLessonByID(ctx, lessonID, tx)
	if err != nil {
		if errors.Cause(err) == ErrLessonNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "lesson_id", Error: err.Error()})
		}
		return err
	}
	if lesson.CourseID != courseID {
		return core.NewValidationError(ErrLessonNotInCourse, core.FieldError{Field: "lesson_id", Error: ErrLessonNotInCourse.Error()})
	}
	return nil
}

func (svc *service) CreateAssessment(ctx context.Context, na NewAssessment) (Assessment, error) {
	var assessment Assessment
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if _, err := svc.repo.GetCourseByID(ctx, na.CourseID, tx); err != nil {
			if errors.Cause(err) == ErrCourseNotFound {
				return core.NewValidationError(err, core.FieldError{Field: "course_id", Error: err.Error()})
			}
			return err
		}
		if err := svc.checkAssessmentLesson(ctx, na.CourseID, na.LessonID, tx); err != nil {
			return err
		}
		var err error
		assessment, err = svc.repo.CreateAssessment(ctx, Assessment{
			CourseID:       na.CourseID,
			LessonID:       na.LessonID,
			Title:          na.Title,
			TotalQuestions: na.TotalQuestions,
			PassingScore:   *na.PassingScore,
			CreatedAt:      core.Now(),
		}, tx)
		return errors.Wrap(err, "creating assessment")
	})
	return assessment, err
}

func (svc *service) UpdateAssessment(ctx context.Context, id string, ua UpdateAssessment) (Assessment, error) {
	var assessment Assessment
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if assessment, err = svc.repo.GetAssessment(ctx, id, tx); err != nil {
			return err
		}
		if err = svc.checkAssessmentLesson(ctx, assessment.CourseID, *ua.LessonID, tx); err != nil {
			return err
		}
		assessment.LessonID = *ua.LessonID
		assessment.Title = ua.Title
		assessment.TotalQuestions = ua.TotalQuestions
		assessment.PassingScore = *ua.PassingScore
		assessment, err = svc.repo.UpdateAssessment(ctx, assessment, tx)
		return errors.Wrap(err, "updating assessment")
	})
	return assessment, err
}

func (svc *service) DeleteAssessment(ctx context.Context, id string) error {
	return svc.repo.DeleteAssessment(ctx, id)
}

func (svc *service) GetAssessment(ctx context.Context, id string) (Assessment, error) {
	return svc.repo.GetAssessment(ctx, id)
}

func (svc *service) GetCourseAssessment(ctx context.Context, courseSlug, id string) (Course, Assessment, error) {
	course, err := svc.GetCourseBySlug(ctx, courseSlug)
	if err != nil {
		return Course{}, Assessment{}, err
	}
	assessment, err := svc.repo.GetAssessment(ctx, id)
	if err != nil {
		return Course{}, Assessment{}, err
	}
	if assessment.CourseID != course.ID {
		return Course{}, Assessment{}, ErrAssessmentNotFound
	}
	return course, assessment, nil
}

func (svc *service) QueryAssessments(ctx context.Context, filter AssessmentFilter) ([]Assessment, error) {
	return svc.repo.QueryAssessments(ctx, filter)
}
