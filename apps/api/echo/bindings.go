package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gigglesedu/giggles/core"
	"github.com/gigglesedu/giggles/core/catalog"
	"github.com/gigglesedu/giggles/core/progress"
	"github.com/gigglesedu/giggles/core/user"
)

var (
	orderingParam = "ordering"
	dateLayout    = "2006-01-02"
	errInvalidInt = "a valid integer is required"
	errInvalidDt  = "a valid date or RFC3339 time is required"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

func queryInt(ctx echo.Context, name string) (int, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return 0, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, core.NewValidationError(nil, core.FieldError{Field: name, Error: errInvalidInt})
	}
	return i, nil
}

func queryBool(ctx echo.Context, name string) *bool {
	b, err := strconv.ParseBool(strings.TrimSpace(ctx.QueryParam(name)))
	if err != nil {
		return nil
	}
	return &b
}

// queryTime accepts a RFC3339 time or a plain date, read as UTC midnight.
func queryTime(ctx echo.Context, name string) (time.Time, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, val)
	if err != nil {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: name, Error: errInvalidDt})
	}
	return t, nil
}

func bindPagination(ctx echo.Context, defaultSize int) (core.Pagination, error) {
	page, err := queryInt(ctx, "page")
	if err != nil {
		return core.Pagination{}, err
	}
	size, err := queryInt(ctx, "page_size")
	if err != nil {
		return core.Pagination{}, err
	}
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultSize
	}
	return core.Pagination{Page: page, PageSize: size}, nil
}

func bindUserFilter(ctx echo.Context) (*user.QueryFilter, error) {
	filter := &user.QueryFilter{
		Search:   ctx.QueryParam("search"),
		Roles:    ctx.QueryParams()["role"],
		UserType: ctx.QueryParam("user_type"),
		IsActive: queryBool(ctx, "is_active"),
	}
	var err error
	if filter.CreatedFrom, err = queryTime(ctx, "created_from"); err != nil {
		return nil, err
	}
	if filter.CreatedTo, err = queryTime(ctx, "created_to"); err != nil {
		return nil, err
	}
	filter.Clean()
	return filter, nil
}

func bindCourseFilter(ctx echo.Context) (*catalog.CourseFilter, error) {
	difficulty, err := queryInt(ctx, "difficulty")
	if err != nil {
		return nil, err
	}
	filter := &catalog.CourseFilter{Search: ctx.QueryParam("search"), Difficulty: difficulty}
	filter.Clean()
	return filter, nil
}

func bindReportFilter(ctx echo.Context) (*progress.ReportFilter, error) {
	filter := &progress.ReportFilter{
		StudentID: ctx.QueryParam("student_id"),
		CourseID:  ctx.QueryParam("course_id"),
		Status:    ctx.QueryParam("status"),
	}
	var err error
	if filter.From, err = queryTime(ctx, "date_from"); err != nil {
		return nil, err
	}
	if filter.To, err = queryTime(ctx, "date_to"); err != nil {
		return nil, err
	}
	filter.Clean()
	return filter, nil
}
