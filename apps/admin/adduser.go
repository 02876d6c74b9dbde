package main

import (
	"context"

	"github.com/unilearn/lms/core/user"
)

// addUser creates a user.User
func (cli *commandLine) addUser(name, email string, roles []string) (user.User, error) {
	ctx := context.Background()
	nu := user.NewUser{
		Name:  name,
		Email: email,
		Roles: roles,
	}
	if err := nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
		return user.User{}, err
	}
	return cli.usrSvc.Create(ctx, nu)
}
