package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/gigglesedu/giggles/core/catalog"
	"github.com/gigglesedu/giggles/core/progress"
	"github.com/gigglesedu/giggles/core/user"
)

type catalogApi struct {
	usrSvc      user.Service
	svc         catalog.Service
	progressSvc progress.Service
}

func registerCatalogAPI(
	g *echo.Group,
	jwt, optionalJWT echo.MiddlewareFunc,
	usrSvc user.Service,
	svc catalog.Service,
	progressSvc progress.Service,
) {
	api := catalogApi{usrSvc: usrSvc, svc: svc, progressSvc: progressSvc}
	authed := []echo.MiddlewareFunc{jwt, activeUserMiddleware(usrSvc)}

	cg := g.Group("/courses")

	// public endpoints, progress included when authed
	cg.GET("", api.queryCourses)
	cg.GET("/:slug", api.retrieveCourse, optionalJWT)
	cg.GET("/:slug/lessons/:lesson", api.retrieveLesson, optionalJWT)

	// learning endpoints
	cg.POST("/:slug/lessons/:lesson/start", api.startLesson, authed...)
	cg.POST("/:slug/lessons/:lesson/complete", api.completeLesson, authed...)
	cg.POST("/:slug/lessons/:lesson/assessments/:id/submit", api.submitQuiz, authed...)
	cg.GET("/:slug/assessments/:id", api.retrieveAssessment, authed...)
	cg.POST("/:slug/assessments/:id/attempts", api.createAttempt, authed...)
	cg.GET("/:slug/attempts/:id", api.retrieveAttempt, authed...)
}

// Handlers

func (api *catalogApi) queryCourses(ctx echo.Context) error {
	filter, err := bindCourseFilter(ctx)
	if err != nil {
		return err
	}
	page, err := bindPagination(ctx, catalog.DefaultPageSize)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	result, err := api.svc.QueryCourses(ctx.Request().Context(), filter, page, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, result)
}

func (api *catalogApi) retrieveCourse(ctx echo.Context) error {
	detail, err := api.svc.GetCourseDetail(ctx.Request().Context(), ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	if detail.Lessons == nil {
		detail.Lessons = []catalog.Lesson{}
	}
	if detail.Assessments == nil {
		detail.Assessments = []catalog.Assessment{}
	}
	resp := CourseResponse{CourseDetail: detail}

	usr, ok, err := getOptionalContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if ok {
		cp, err := api.progressSvc.GetCourseProgress(ctx.Request().Context(), usr, detail.Course)
		if err == nil {
			resp.Progress = &cp
		} else if errors.Cause(err) != progress.ErrCourseProgressNotFound {
			return errors.Wrap(err, "getting course progress")
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *catalogApi) retrieveLesson(ctx echo.Context) error {
	course, lesson, err := api.svc.GetCourseLesson(ctx.Request().Context(), ctx.Param("slug"), ctx.Param("lesson"))
	if err != nil {
		return errors.Wrap(err, "getting lesson")
	}
	assessments, err := api.svc.QueryAssessments(ctx.Request().Context(), catalog.AssessmentFilter{LessonID: lesson.ID})
	if err != nil {
		return errors.Wrap(err, "querying assessments")
	}
	if assessments == nil {
		assessments = []catalog.Assessment{}
	}
	resp := LessonResponse{Course: course, Lesson: lesson, Assessments: assessments}

	usr, ok, err := getOptionalContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if ok {
		lp, err := api.progressSvc.OpenLesson(ctx.Request().Context(), usr, lesson)
		if err != nil {
			return errors.Wrap(err, "opening lesson")
		}
		lp.CourseSlug = course.Slug
		resp.Progress = &lp
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *catalogApi) startLesson(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	course, lesson, err := api.svc.GetCourseLesson(ctx.Request().Context(), ctx.Param("slug"), ctx.Param("lesson"))
	if err != nil {
		return errors.Wrap(err, "getting lesson")
	}

	lp, err := api.progressSvc.StartLesson(ctx.Request().Context(), usr, lesson)
	if err != nil {
		return errors.Wrap(err, "starting lesson")
	}
	lp.CourseSlug = course.Slug
	return ctx.JSON(http.StatusOK, lp)
}

func (api *catalogApi) completeLesson(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	course, lesson, err := api.svc.GetCourseLesson(ctx.Request().Context(), ctx.Param("slug"), ctx.Param("lesson"))
	if err != nil {
		return errors.Wrap(err, "getting lesson")
	}

	var data progress.CompleteLesson
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CompleteLesson")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	lp, cp, err := api.progressSvc.CompleteLesson(ctx.Request().Context(), usr, lesson, data)
	if err != nil {
		return errors.Wrap(err, "completing lesson")
	}
	lp.CourseSlug = course.Slug
	return ctx.JSON(http.StatusOK, CompleteLessonResponse{LessonProgress: lp, CourseProgress: cp})
}

func (api *catalogApi) retrieveAssessment(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	_, assessment, err := api.svc.GetCourseAssessment(ctx.Request().Context(), ctx.Param("slug"), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting assessment")
	}

	report, err := api.progressSvc.AssessmentReport(ctx.Request().Context(), usr, assessment)
	if err != nil {
		return errors.Wrap(err, "getting assessment report")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *catalogApi) submit(ctx echo.Context, course catalog.Course, assessment catalog.Assessment) (progress.AttemptDetail, error) {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return progress.AttemptDetail{}, errors.Wrap(err, "getting context user")
	}

	var data progress.NewAttempt
	if err = ctx.Bind(&data); err != nil {
		return progress.AttemptDetail{}, errors.Wrap(err, "binding to NewAttempt")
	}
	if err = data.Validate(assessment); err != nil {
		return progress.AttemptDetail{}, err
	}

	attempt, err := api.progressSvc.SubmitAttempt(ctx.Request().Context(), usr, course, assessment, data)
	return attempt, errors.Wrap(err, "submitting attempt")
}

func (api *catalogApi) createAttempt(ctx echo.Context) error {
	course, assessment, err := api.svc.GetCourseAssessment(ctx.Request().Context(), ctx.Param("slug"), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting assessment")
	}
	attempt, err := api.submit(ctx, course, assessment)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, attempt)
}

// submitQuiz records the score posted by the lesson quiz widget.
func (api *catalogApi) submitQuiz(ctx echo.Context) error {
	_, lesson, err := api.svc.GetCourseLesson(ctx.Request().Context(), ctx.Param("slug"), ctx.Param("lesson"))
	if err != nil {
		return errors.Wrap(err, "getting lesson")
	}
	course, assessment, err := api.svc.GetCourseAssessment(ctx.Request().Context(), ctx.Param("slug"), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting assessment")
	}
	if assessment.LessonID != lesson.ID {
		return errHttpNotFound
	}

	attempt, err := api.submit(ctx, course, assessment)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, QuizResult{
		Success:    true,
		AttemptID:  attempt.ID,
		Score:      attempt.Score,
		Percentage: attempt.Percentage,
		Passed:     attempt.Passed,
	})
}

func (api *catalogApi) retrieveAttempt(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	course, err := api.svc.GetCourseBySlug(ctx.Request().Context(), ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}

	attempt, err := api.progressSvc.GetAttempt(ctx.Request().Context(), usr, course, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting attempt")
	}
	return ctx.JSON(http.StatusOK, attempt)
}

type (
	CourseResponse struct {
		catalog.CourseDetail
		Progress *progress.CourseProgress `json:"progress"`
	}

	LessonResponse struct {
		Course      catalog.Course                 `json:"course"`
		Lesson      catalog.Lesson                 `json:"lesson"`
		Assessments []catalog.Assessment           `json:"assessments"`
		Progress    *progress.LessonProgressDetail `json:"progress"`
	}

	CompleteLessonResponse struct {
		LessonProgress progress.LessonProgressDetail `json:"lesson_progress"`
		CourseProgress progress.CourseProgress       `json:"course_progress"`
	}

	QuizResult struct {
		Success    bool    `json:"success"`
		AttemptID  string  `json:"attempt_id"`
		Score      int     `json:"score"`
		Percentage float64 `json:"percentage"`
		Passed     bool    `json:"passed"`
	}
)
