package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/unilearn/lms/core/course"
	"github.com/unilearn/lms/core/progress"
)

type progressApi struct {
	auth      *authenticator
	svc       *progress.Service
	courseSvc *course.Service
	validate  *validator.Validate
}

func registerProgressAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := progressApi{
		auth:      auth,
		svc:       deps.ProgressSvc,
		courseSvc: deps.CourseSvc,
		validate:  deps.Validate,
	}

	pg := g.Group("/progress", jwt)
	pg.POST("", api.update, studentMiddleware())
	pg.GET("/materials/:materialID/resume", api.resume, studentMiddleware())
	pg.GET("/courses/:courseID", api.byCourse, studentMiddleware())
	pg.GET("/courses/:courseID/stats", api.stats, staffMiddleware())
}

func (api *progressApi) update(ctx echo.Context) error {
	var data progress.NewProgress
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProgress")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	data.IPAddress = ctx.RealIP()
	data.UserAgent = ctx.Request().UserAgent()

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	view, err := api.svc.UpdateProgress(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating progress")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *progressApi) resume(ctx echo.Context) error {
	materialID, err := uuidParam(ctx, api.validate, "materialID")
	if err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	pos, err := api.svc.GetResumePosition(ctx.Request().Context(), usr.ID, materialID)
	if err != nil {
		return errors.Wrap(err, "getting resume position")
	}
	if pos == nil {
		pos = new(progress.ResumePosition)
	}
	return ctx.JSON(http.StatusOK, pos)
}

func (api *progressApi) byCourse(ctx echo.Context) error {
	courseID, err := uuidParam(ctx, api.validate, "courseID")
	if err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	views, err := api.svc.GetProgressByCourse(ctx.Request().Context(), usr.ID, courseID)
	if err != nil {
		return errors.Wrap(err, "getting course progress")
	}
	if views == nil {
		views = []progress.ProgressView{}
	}
	return ctx.JSON(http.StatusOK, views)
}

func (api *progressApi) stats(ctx echo.Context) error {
	crs, err := managedCourse(ctx, api.auth, api.courseSvc, api.validate)
	if err != nil {
		return err
	}

	stats, err := api.svc.GetCourseVideoStats(ctx.Request().Context(), crs.ID)
	if err != nil {
		return errors.Wrap(err, "getting course video stats")
	}
	if stats == nil {
		stats = []progress.MaterialStat{}
	}
	return ctx.JSON(http.StatusOK, stats)
}

// uuidParam returns the named path param; malformed ids cannot match anything.
func uuidParam(ctx echo.Context, validate *validator.Validate, name string) (string, error) {
	id := ctx.Param(name)
	if err := validate.Var(id, "uuid"); err != nil {
		return "", errHttpNotFound
	}
	return id, nil
}

// managedCourse returns the `:courseID` course if the context user may manage it.
func managedCourse(
	ctx echo.Context,
	auth *authenticator,
	svc *course.Service,
	validate *validator.Validate,
) (course.Course, error) {
	courseID, err := uuidParam(ctx, validate, "courseID")
	if err != nil {
		return course.Course{}, err
	}
	usr, err := auth.contextUser(ctx)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "getting context user")
	}

	crs, err := svc.GetCourse(ctx.Request().Context(), courseID)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "finding course by ID")
	}
	if !course.CanManage(usr, crs) {
		return course.Course{}, errHttpForbidden
	}
	return crs, nil
}
