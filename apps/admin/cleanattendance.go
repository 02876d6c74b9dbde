package main

import (
	"context"

	"github.com/unilearn/lms/core/attendance"
)

func (cli *commandLine) cleanAttendance() (attendance.CleanupResult, error) {
	return cli.attSvc.CleanupNullDates(context.Background())
}
