package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/gigglesedu/giggles/core"
	"github.com/gigglesedu/giggles/core/catalog"
	"github.com/gigglesedu/giggles/core/progress"
	"github.com/gigglesedu/giggles/core/user"
	"github.com/gigglesedu/giggles/services/export"
)

type progressApi struct {
	usrSvc     user.Service
	catalogSvc catalog.Service
	svc        progress.Service
}

func registerProgressAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	usrSvc user.Service,
	catalogSvc catalog.Service,
	svc progress.Service,
) {
	api := progressApi{usrSvc: usrSvc, catalogSvc: catalogSvc, svc: svc}
	activeUsr := activeUserMiddleware(usrSvc)

	g.GET("/dashboard", api.dashboard, jwt, activeUsr)

	pg := g.Group("/progress", jwt, activeUsr)
	pg.GET("", api.summary)
	pg.GET("/lessons", api.lessons)
	pg.GET("/stats", api.stats)
	pg.GET("/courses/:slug", api.courseReport)
	for _, format := range []string{exportsvc.FormatPDF, exportsvc.FormatCSV, exportsvc.FormatXLSX} {
		pg.GET("/report."+format, api.report(format))
	}
}

// Handlers

func (api *progressApi) dashboard(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	dash, err := api.svc.Dashboard(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "getting dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *progressApi) summary(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	summary, err := api.svc.Summary(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "getting progress summary")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *progressApi) lessons(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	lessons, err := api.svc.LessonProgress(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying lesson progress")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"progress": lessons})
}

func (api *progressApi) stats(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	stats, err := api.svc.Stats(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "getting stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *progressApi) courseReport(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	course, err := api.catalogSvc.GetCourseBySlug(ctx.Request().Context(), ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	report, err := api.svc.CourseReport(ctx.Request().Context(), usr, course)
	if err != nil {
		return errors.Wrap(err, "getting course report")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *progressApi) report(format string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx, api.usrSvc)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		filter, err := bindReportFilter(ctx)
		if err != nil {
			return err
		}
		filter.StudentID = usr.ID

		rows, err := api.svc.Report(ctx.Request().Context(), filter)
		if err != nil {
			return errors.Wrap(err, "querying report")
		}
		return sendReport(ctx, format, "progress-report", exportsvc.Report{
			Title:       fmt.Sprintf("Progress report - %s", usr.FullName),
			GeneratedAt: core.Now(),
			Rows:        rows,
		})
	}
}

// sendReport writes r as an attachment in the given format.
func sendReport(ctx echo.Context, format, name string, r exportsvc.Report) error {
	contentType, ok := exportsvc.ContentType(format)
	if !ok {
		return errHttpNotFound
	}
	var buf bytes.Buffer
	if err := exportsvc.Write(&buf, format, r); err != nil {
		return errors.Wrapf(err, "writing %s report", format)
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", exportsvc.Filename(name, format)))
	return ctx.Blob(http.StatusOK, contentType, buf.Bytes())
}
