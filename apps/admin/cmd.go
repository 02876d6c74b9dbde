package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/unilearn/lms/core/attendance"
	"github.com/unilearn/lms/core/user"
	"github.com/unilearn/lms/storage/database"
)

var (
	migrateFunc = database.Migrate // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sql.DB
	usrSvc   *user.Service
	attSvc   *attendance.Service
	validate *validator.Validate
	out      func(format string, a ...interface{})
}

func (cli *commandLine) printf(format string, a ...interface{}) {
	if cli.out != nil {
		cli.out(format, a...)
		return
	}
	fmt.Printf(format, a...)
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a database migration command (up, up-by-one, up-to, down, down-to, redo, reset, status, version, fix)")
	fmt.Println("  adduser -name NAME -email EMAIL [-role ROLE,...] - create a user (default role: student:)")
	fmt.Println("  cleanattendance - repair attendances recorded without a day")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRoles := addUserCmd.String("role", user.RoleStudent, "Comma separated roles: "+strings.Join(user.AllRoles, ", "))

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserName == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		usr, err := cli.addUser(*addUserName, *addUserEmail, splitRoles(*addUserRoles))
		if err != nil {
			return err
		}
		cli.printf("user %s created: %s\n", usr.Email, usr.ID)
		return nil
	case "cleanattendance":
		res, err := cli.cleanAttendance()
		if err != nil {
			return err
		}
		cli.printf("attendances fixed: %d, deleted: %d\n", res.Fixed, res.Deleted)
		return nil
	default:
		cli.printUsage()
		return errHelp
	}
}

func splitRoles(raw string) []string {
	var roles []string
	for _, role := range strings.Split(raw, ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}
