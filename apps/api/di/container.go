package di

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/unilearn/lms/apps/api/echo"
	"github.com/unilearn/lms/core"
	"github.com/unilearn/lms/core/attendance"
	"github.com/unilearn/lms/core/course"
	"github.com/unilearn/lms/core/progress"
	"github.com/unilearn/lms/core/user"
	logsvc "github.com/unilearn/lms/services/logger"
	metricsvc "github.com/unilearn/lms/services/metrics"
	"github.com/unilearn/lms/storage/database"
	sqlxrepos "github.com/unilearn/lms/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(conf.RollbarToken != "" && !conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(conf.RollbarToken != "" && !conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newMetrics() *metricsvc.Prometheus {
	prom := metricsvc.NewPrometheus()
	return &prom
}

func newAttendanceService(
	db *sqlx.DB,
	crsSvc *course.Service,
	usrSvc *user.Service,
	logger core.Logger,
	prom *metricsvc.Prometheus,
) *attendance.Service {
	return attendance.NewService(sqlxrepos.NewAttendanceRepository(db), crsSvc, usrSvc, logger, prom)
}

func newProgressService(
	db *sqlx.DB,
	crsSvc *course.Service,
	usrSvc *user.Service,
	attSvc *attendance.Service,
	conf *core.Config,
	logger core.Logger,
	prom *metricsvc.Prometheus,
) *progress.Service {
	return progress.NewService(sqlxrepos.NewProgressRepository(db), crsSvc, usrSvc, attSvc, conf, logger, prom)
}

func newValidate() *validator.Validate {
	return validator.New()
}

type ServerParams struct {
	dig.In
	Conf          *core.Config
	Logger        core.Logger
	Metrics       *metricsvc.Prometheus
	UserSvc       *user.Service
	CourseSvc     *course.Service
	ProgressSvc   *progress.Service
	AttendanceSvc *attendance.Service
	Validate      *validator.Validate
}

func newServer(p ServerParams) echoapi.Server {
	translator := core.NewTranslator()
	core.InitValidators(p.Validate, translator)
	user.InitValidators(p.Validate, translator)
	attendance.InitValidators(p.Validate, translator)

	return echoapi.NewServer(echoapi.Deps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Metrics:       p.Metrics,
		UserSvc:       p.UserSvc,
		CourseSvc:     p.CourseSvc,
		ProgressSvc:   p.ProgressSvc,
		AttendanceSvc: p.AttendanceSvc,
		Validate:      p.Validate,
		Translator:    translator,
	})
}

// New returns a new dependency injection dig.Container
func New(opts ...dig.Option) *dig.Container {
	c := dig.New(opts...)

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newMetrics))
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewCourseRepository, dig.As(new(course.Repository))))
	must(c.Provide(user.NewService))
	must(c.Provide(course.NewService))
	must(c.Provide(newAttendanceService))
	must(c.Provide(newProgressService))
	must(c.Provide(newValidate))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
