package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/gigglesedu/giggles/core"
	"github.com/gigglesedu/giggles/core/catalog"
	"github.com/gigglesedu/giggles/core/progress"
	"github.com/gigglesedu/giggles/core/user"
	"github.com/gigglesedu/giggles/services/export"
)

var errCourseIDRequired = core.NewValidationError(nil, core.FieldError{Field: "course_id", Error: "this field is required"})

type adminApi struct {
	usrSvc      user.Service
	catalogSvc  catalog.Service
	progressSvc progress.Service
}

func registerAdminAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	usrSvc user.Service,
	catalogSvc catalog.Service,
	progressSvc progress.Service,
) {
	api := adminApi{usrSvc: usrSvc, catalogSvc: catalogSvc, progressSvc: progressSvc}

	ag := g.Group("/admin", jwt, adminMiddleware())

	ag.GET("/courses", api.queryCourses)
	ag.POST("/courses", api.createCourse)
	ag.GET("/courses/:id", api.retrieveCourse)
	ag.PUT("/courses/:id", api.updateCourse)
	ag.DELETE("/courses/:id", api.destroyCourse)
	ag.POST("/courses/:id/recompute", api.recomputeCourse)

	ag.GET("/lessons", api.queryLessons)
	ag.POST("/lessons", api.createLesson)
	ag.GET("/lessons/:id", api.retrieveLesson)
	ag.PUT("/lessons/:id", api.updateLesson)
	ag.DELETE("/lessons/:id", api.destroyLesson)

	ag.GET("/assessments", api.queryAssessments)
	ag.POST("/assessments", api.createAssessment)
	ag.GET("/assessments/:id", api.retrieveAssessment)
	ag.PUT("/assessments/:id", api.updateAssessment)
	ag.DELETE("/assessments/:id", api.destroyAssessment)

	ag.GET("/progress", api.queryProgress)
	ag.GET("/progress/export.csv", api.exportProgress)
	ag.DELETE("/progress/:id", api.destroyProgress)
	ag.POST("/enrollments", api.enroll)
}

// Courses

func (api *adminApi) queryCourses(ctx echo.Context) error {
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

	result, err := api.catalogSvc.QueryCourses(ctx.Request().Context(), filter, page, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, result)
}

func (api *adminApi) createCourse(ctx echo.Context) error {
	var data catalog.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	course, err := api.catalogSvc.CreateCourse(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, course)
}

func (api *adminApi) retrieveCourse(ctx echo.Context) error {
	course, err := api.catalogSvc.GetCourse(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return ctx.JSON(http.StatusOK, course)
}

func (api *adminApi) updateCourse(ctx echo.Context) error {
	course, err := api.catalogSvc.GetCourse(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}

	var data catalog.UpdateCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err = data.Validate(course); err != nil {
		return err
	}

	course, err = api.catalogSvc.UpdateCourse(ctx.Request().Context(), course.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, course)
}

func (api *adminApi) destroyCourse(ctx echo.Context) error {
	if err := api.catalogSvc.DeleteCourse(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *adminApi) recomputeCourse(ctx echo.Context) error {
	course, err := api.catalogSvc.GetCourse(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	count, err := api.progressSvc.RecomputeCourse(ctx.Request().Context(), course.ID)
	if err != nil {
		return errors.Wrap(err, "recomputing course progress")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: count})
}

// Lessons

func (api *adminApi) queryLessons(ctx echo.Context) error {
	courseID := strings.TrimSpace(ctx.QueryParam("course_id"))
	if courseID == "" {
		return errCourseIDRequired
	}
	lessons, err := api.catalogSvc.QueryLessons(ctx.Request().Context(), courseID)
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	if lessons == nil {
		lessons = []catalog.Lesson{}
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *adminApi) createLesson(ctx echo.Context) error {
	var data catalog.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	lesson, err := api.catalogSvc.CreateLesson(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating lesson")
	}
	return ctx.JSON(http.StatusCreated, lesson)
}

func (api *adminApi) retrieveLesson(ctx echo.Context) error {
	lesson, err := api.catalogSvc.GetLesson(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting lesson")
	}
	return ctx.JSON(http.StatusOK, lesson)
}

func (api *adminApi) updateLesson(ctx echo.Context) error {
	lesson, err := api.catalogSvc.GetLesson(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting lesson")
	}

	var data catalog.UpdateLesson
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLesson")
	}
	if err = data.Validate(lesson); err != nil {
		return err
	}

	lesson, err = api.catalogSvc.UpdateLesson(ctx.Request().Context(), lesson.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating lesson")
	}
	return ctx.JSON(http.StatusOK, lesson)
}

func (api *adminApi) destroyLesson(ctx echo.Context) error {
	if err := api.catalogSvc.DeleteLesson(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Assessments

func (api *adminApi) queryAssessments(ctx echo.Context) error {
	filter := catalog.AssessmentFilter{
		CourseID: strings.TrimSpace(ctx.QueryParam("course_id")),
		LessonID: strings.TrimSpace(ctx.QueryParam("lesson_id")),
	}
	if filter.CourseID == "" && filter.LessonID == "" {
		return errCourseIDRequired
	}
	assessments, err := api.catalogSvc.QueryAssessments(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying assessments")
	}
	if assessments == nil {
		assessments = []catalog.Assessment{}
	}
	return ctx.JSON(http.StatusOK, assessments)
}

func (api *adminApi) createAssessment(ctx echo.Context) error {
	var data catalog.NewAssessment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssessment")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	assessment, err := api.catalogSvc.CreateAssessment(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating assessment")
	}
	return ctx.JSON(http.StatusCreated, assessment)
}

func (api *adminApi) retrieveAssessment(ctx echo.Context) error {
	assessment, err := api.catalogSvc.GetAssessment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting assessment")
	}
	return ctx.JSON(http.StatusOK, assessment)
}

func (api *adminApi) updateAssessment(ctx echo.Context) error {
	assessment, err := api.catalogSvc.GetAssessment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting assessment")
	}

	var data catalog.UpdateAssessment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAssessment")
	}
	if err = data.Validate(assessment); err != nil {
		return err
	}

	assessment, err = api.catalogSvc.UpdateAssessment(ctx.Request().Context(), assessment.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating assessment")
	}
	return ctx.JSON(http.StatusOK, assessment)
}

func (api *adminApi) destroyAssessment(ctx echo.Context) error {
	if err := api.catalogSvc.DeleteAssessment(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting assessment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Progress

func (api *adminApi) queryProgress(ctx echo.Context) error {
	filter, err := bindReportFilter(ctx)
	if err != nil {
		return err
	}
	rows, err := api.progressSvc.Report(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying progress")
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *adminApi) exportProgress(ctx echo.Context) error {
	filter, err := bindReportFilter(ctx)
	if err != nil {
		return err
	}
	rows, err := api.progressSvc.Report(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying progress")
	}
	return sendReport(ctx, exportsvc.FormatCSV, "student-progress", exportsvc.Report{
		Title:       "Student progress",
		GeneratedAt: core.Now(),
		Rows:        rows,
	})
}

func (api *adminApi) destroyProgress(ctx echo.Context) error {
	if err := api.progressSvc.DeleteLessonProgress(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting lesson progress")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *adminApi) enroll(ctx echo.Context) error {
	var data progress.Enrollment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Enrollment")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	count, err := api.progressSvc.Enroll(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "enrolling students")
	}
	return ctx.JSON(http.StatusCreated, CountResponse{Count: count})
}

type CountResponse struct {
	Count int `json:"count"`
}
