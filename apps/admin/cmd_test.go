package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unilearn/lms/core"
	"github.com/unilearn/lms/core/attendance"
	"github.com/unilearn/lms/core/course"
	"github.com/unilearn/lms/core/user"
	inmemdb "github.com/unilearn/lms/storage/database/inmem"
	"github.com/unilearn/lms/testutil"
)

var (
	db      *inmemdb.DB
	usrRepo user.Repository
	crsRepo course.Repository
	output  []string
)

func setup(t *testing.T) *commandLine {
	// set up DB & repos
	db = inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	crsRepo = inmemdb.NewCourseRepository(db)
	output = nil

	// set up services
	usrSvc := user.NewService(usrRepo)
	crsSvc := course.NewService(crsRepo)
	attSvc := attendance.NewService(inmemdb.NewAttendanceRepository(db), crsSvc, usrSvc, testutil.NopLogger{}, nil)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// start CLI
	return &commandLine{
		usrSvc:   usrSvc,
		attSvc:   attSvc,
		validate: validate,
		out: func(format string, a ...interface{}) {
			output = append(output, fmt.Sprintf(format, a...))
		},
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func runCliTests(t *testing.T, cli *commandLine, tests []cliTest) {
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			} else if tt.wantErr != nil || tt.wantErrStr != "" {
				t.Errorf("cli.run() error = nil, want an error")
			}
		})
	}
}

func Test_commandLine_run(t *testing.T) {
	cli := setup(t)

	runCliTests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	})
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	migrateFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runCliTests(t, cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "4"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	})
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)

	testutil.CreateUser(t, usrRepo, "Taken", "taken@test.edu", []string{user.RoleStudent})

	runCliTests(t, cli, []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no email", args: []string{"adduser", "-name", "Jane"}, wantErr: errHelp},
		{name: "invalid email", args: []string{"adduser", "-name", "Jane", "-email", "lol"}, wantErrStr: "Key: 'NewUser.email' Error:Field validation for 'email' failed on the 'email' tag"},
		{name: "invalid role", args: []string{"adduser", "-name", "Jane", "-email", "jane@test.edu", "-role", "lol"}, wantErrStr: "Key: 'NewUser.roles' Error:Field validation for 'roles' failed on the 'allroles' tag"},
		{name: "email taken", args: []string{"adduser", "-name", "Jane", "-email", "TAKEN@test.edu"}, wantErrStr: user.ErrEmailExists.Error()},
		{name: "student", args: []string{"adduser", "-name", "Jane", "-email", "jane@test.edu"}},
		{name: "lecturer", args: []string{"adduser", "-name", "  John  ", "-email", "John@Test.edu", "-role", "lecturer:, admin:"}},
	})

	ctx := context.Background()
	jane, err := usrRepo.GetUser(ctx, user.GetFilter{Email: "jane@test.edu"})
	require.NoError(t, err)
	assert.Equal(t, []string{user.RoleStudent}, jane.Roles)
	assert.True(t, jane.IsActive)

	john, err := usrRepo.GetUser(ctx, user.GetFilter{Email: "john@test.edu"})
	require.NoError(t, err)
	assert.Equal(t, "John", john.Name)
	assert.Equal(t, []string{user.RoleLecturer, user.RoleAdmin}, john.Roles)
	assert.Contains(t, output, fmt.Sprintf("user %s created: %s\n", john.Email, john.ID))
}

func Test_commandLine_cleanAttendance(t *testing.T) {
	cli := setup(t)

	lecturer := testutil.CreateUser(t, usrRepo, "Lecturer", "lecturer@test.edu", []string{user.RoleLecturer})
	student := testutil.CreateUser(t, usrRepo, "Student", "student@test.edu", []string{user.RoleStudent})
	crs := testutil.CreateCourse(t, crsRepo, "CS101", lecturer)

	submitted := time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC)
	db.InsertAttendance(attendance.Attendance{
		StudentID:   student.ID,
		CourseID:    crs.ID,
		Status:      attendance.StatusPresent,
		Type:        attendance.TypeManual,
		SubmittedAt: submitted,
	})

	runCliTests(t, cli, []cliTest{
		{name: "first run", args: []string{"cleanattendance"}},
		{name: "second run", args: []string{"cleanattendance"}},
	})
	assert.Equal(t, []string{
		"attendances fixed: 1, deleted: 0\n",
		"attendances fixed: 0, deleted: 0\n",
	}, output)
}
