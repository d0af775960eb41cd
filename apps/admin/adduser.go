package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/gigglesedu/giggles/core"
	"github.com/gigglesedu/giggles/core/user"
)

var errEmailRequired = errors.New("email is required")

// addUser updates or creates an active user.User along with its Profile.
func (cli *commandLine) addUser(ctx context.Context, name, email, pwd string, isAdmin bool) (user.User, error) {
	email = core.CleanString(email, true /* lower */)
	name = core.CleanString(name)
	if email == "" {
		return user.User{}, errEmailRequired
	}

	now := core.Now()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	if err != nil {
		if !core.IsNotFound(err) {
			return user.User{}, errors.Wrap(err, "getting user")
		}
		usr = user.User{
			Email:     email,
			UserType:  user.TypeLearner,
			CreatedAt: now,
		}
	}
	if name != "" {
		usr.FullName = name
	} else if usr.FullName == "" {
		usr.FullName = email
	}
	if isAdmin {
		usr.Roles = user.AllRoles
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return user.User{}, errors.Wrap(err, "setting password")
	}

	err = core.RunInTx(ctx, cli.db, func(tx core.DBExecutor) error {
		if usr, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr, tx); err != nil {
			return errors.Wrap(err, "saving user")
		}
		_, err = cli.usrRepo.GetOrCreateProfile(ctx, usr.ID, tx)
		return errors.Wrap(err, "creating profile")
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}
