package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/unilearn/lms/core"
	"github.com/unilearn/lms/core/attendance"
	"github.com/unilearn/lms/core/course"
	"github.com/unilearn/lms/core/user"
	logsvc "github.com/unilearn/lms/services/logger"
	"github.com/unilearn/lms/storage/database"
	sqlxrepos "github.com/unilearn/lms/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(conf.RollbarToken != "" && !conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	if err = db.Ping(); err != nil {
		logger.Fatal(fmt.Sprintf("pinging database: %v", err), err)
	}

	// set up services
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db))
	crsSvc := course.NewService(sqlxrepos.NewCourseRepository(db))
	attSvc := attendance.NewService(sqlxrepos.NewAttendanceRepository(db), crsSvc, usrSvc, logger, nil)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		db:       db.DB,
		usrSvc:   usrSvc,
		attSvc:   attSvc,
		validate: validate,
	}
	code := 0
	if err = cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		code = 1
	}
	_ = db.Close()
	logger.Flush()
	os.Exit(code)
}
