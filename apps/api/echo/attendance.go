package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/unilearn/lms/core/attendance"
	"github.com/unilearn/lms/core/course"
	"github.com/unilearn/lms/core/user"
)

type attendanceApi struct {
	auth      *authenticator
	svc       *attendance.Service
	courseSvc *course.Service
	validate  *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := attendanceApi{
		auth:      auth,
		svc:       deps.AttendanceSvc,
		courseSvc: deps.CourseSvc,
		validate:  deps.Validate,
	}

	ag := g.Group("/attendances", jwt)
	ag.GET("", api.query)
	ag.POST("", api.create, staffMiddleware())
	ag.POST("/cleanup", api.cleanup, adminMiddleware())

	// course reports
	cg := ag.Group("/courses/:courseID")
	cg.GET("/weeks/:week", api.hasWeekly)
	cg.GET("/weekly-summary", api.weeklySummary, staffMiddleware())
	cg.GET("/students/:studentID/weekly", api.studentWeekly)
	cg.GET("/stats", api.courseStats, staffMiddleware())

	// detail endpoints
	dg := ag.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, staffMiddleware())
}

func (api *attendanceApi) query(ctx echo.Context) error {
	filter := new(attendance.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []attendance.Attendance{})
	}
	dates := new(DateRange)
	if err := dates.Bind(ctx, filter); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	atts, err := api.svc.Query(ctx.Request().Context(), attendance.ScopeFilter(usr, *filter), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying attendances")
	}
	if atts == nil {
		atts = []attendance.Attendance{}
	}
	return ctx.JSON(http.StatusOK, atts)
}

func (api *attendanceApi) create(ctx echo.Context) error {
	var data attendance.NewAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAttendance")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	crs, err := api.courseSvc.GetCourse(ctx.Request().Context(), data.CourseID)
	if err != nil {
		return errors.Wrap(err, "finding course by ID")
	}
	if !course.CanManage(usr, crs) {
		return errHttpForbidden
	}

	att, err := api.svc.Create(ctx.Request().Context(), data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "creating attendance")
	}
	return ctx.JSON(http.StatusCreated, att)
}

func (api *attendanceApi) retrieve(ctx echo.Context) error {
	att, ok := ctx.Get("object").(attendance.Attendance)
	if !ok {
		return errors.New("attendance object not found in echo.Context")
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *attendanceApi) update(ctx echo.Context) error {
	att, ok := ctx.Get("object").(attendance.Attendance)
	if !ok {
		return errors.New("attendance object not found in echo.Context")
	}

	var data attendance.UpdateAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAttendance")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	att, err = api.svc.Update(ctx.Request().Context(), att.ID, data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "updating attendance")
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *attendanceApi) hasWeekly(ctx echo.Context) error {
	week, err := strconv.Atoi(ctx.Param("week"))
	if err != nil || week < 1 {
		return errHttpNotFound
	}
	courseID, err := uuidParam(ctx, api.validate, "courseID")
	if err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	studentID := usr.ID
	if !usr.IsStudent() {
		if _, err = managedCourse(ctx, api.auth, api.courseSvc, api.validate); err != nil {
			return err
		}
		studentID = ctx.QueryParam("student_id")
		if err = api.validate.Var(studentID, "required,uuid"); err != nil {
			return invalidParam("student_id", "must be a valid student id")
		}
	}

	has, err := api.svc.HasWeeklyAttendance(ctx.Request().Context(), studentID, courseID, week)
	if err != nil {
		return errors.Wrap(err, "checking weekly attendance")
	}
	return ctx.JSON(http.StatusOK, WeeklyAttendanceResponse{
		StudentID:     studentID,
		CourseID:      courseID,
		Week:          week,
		HasAttendance: has,
	})
}

func (api *attendanceApi) weeklySummary(ctx echo.Context) error {
	crs, err := managedCourse(ctx, api.auth, api.courseSvc, api.validate)
	if err != nil {
		return err
	}
	weeks := new(WeekRange)
	if err = weeks.Bind(ctx); err != nil {
		return err
	}

	summaries, err := api.svc.WeeklySummary(ctx.Request().Context(), crs.ID, weeks.Start, weeks.End)
	if err != nil {
		return errors.Wrap(err, "summarizing weekly attendances")
	}
	return ctx.JSON(http.StatusOK, summaries)
}

func (api *attendanceApi) studentWeekly(ctx echo.Context) error {
	studentID, err := uuidParam(ctx, api.validate, "studentID")
	if err != nil {
		return err
	}
	courseID, err := uuidParam(ctx, api.validate, "courseID")
	if err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if usr.IsStudent() && !(usr.IsAdmin() || usr.IsLecturer()) {
		if studentID != usr.ID {
			return errHttpForbidden
		}
	} else if _, err = managedCourse(ctx, api.auth, api.courseSvc, api.validate); err != nil {
		return err
	}
	weeks := new(WeekRange)
	if err = weeks.Bind(ctx); err != nil {
		return err
	}

	status, err := api.svc.StudentWeeklyStatus(ctx.Request().Context(), studentID, courseID, weeks.Start, weeks.End)
	if err != nil {
		return errors.Wrap(err, "getting student weekly status")
	}
	return ctx.JSON(http.StatusOK, status)
}

func (api *attendanceApi) courseStats(ctx echo.Context) error {
	crs, err := managedCourse(ctx, api.auth, api.courseSvc, api.validate)
	if err != nil {
		return err
	}
	var filter attendance.QueryFilter
	dates := new(DateRange)
	if err = dates.Bind(ctx, &filter); err != nil {
		return err
	}

	stats, err := api.svc.CourseStats(ctx.Request().Context(), crs.ID, filter.DateFrom, filter.DateTo)
	if err != nil {
		return errors.Wrap(err, "getting course attendance stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *attendanceApi) cleanup(ctx echo.Context) error {
	res, err := api.svc.CleanupNullDates(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "cleaning up undated attendances")
	}
	return ctx.JSON(http.StatusOK, res)
}

// objectMiddleware loads the `:id` attendance into the context, if the context user may see it.
func (api *attendanceApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id, err := uuidParam(ctx, api.validate, "id")
		if err != nil {
			return err
		}
		usr, err := api.auth.contextUser(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}

		att, err := api.svc.GetByID(ctx.Request().Context(), id)
		if err != nil {
			return errors.Wrap(err, "finding attendance by ID")
		}
		lecturerID, err := api.lecturerOf(ctx, usr, att)
		if err != nil {
			return err
		}
		if !attendance.CanView(usr, att, lecturerID) {
			return errHttpNotFound
		}
		ctx.Set("object", att)
		return next(ctx)
	}
}

func (api *attendanceApi) lecturerOf(ctx echo.Context, usr user.User, att attendance.Attendance) (string, error) {
	if !usr.IsLecturer() || usr.IsAdmin() {
		return "", nil
	}
	crs, err := api.courseSvc.GetCourse(ctx.Request().Context(), att.CourseID)
	if err != nil {
		return "", errors.Wrap(err, "finding course by ID")
	}
	return crs.LecturerID, nil
}

type WeeklyAttendanceResponse struct {
	StudentID     string `json:"student_id"`
	CourseID      string `json:"course_id"`
	Week          int    `json:"week"`
	HasAttendance bool   `json:"has_attendance"`
}
