package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/gigglesedu/giggles/core"
	"github.com/gigglesedu/giggles/core/user"
)

func (cli *commandLine) resetPassword(ctx context.Context, email, pwd string) error {
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return errors.Wrap(err, "getting user")
	}
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = core.Now()
	if _, err = cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "updating user")
	}
	return nil
}
