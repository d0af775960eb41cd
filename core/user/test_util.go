package user

import (
	"context"

	"github.com/gigglesedu/giggles/core"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service sending its emails synchronously.
func NewServiceMock(db core.DB, repo Repository, mailSvc core.EmailService) Service {
	return &serviceMock{
		service: service{
			db:      db,
			repo:    repo,
			mailSvc: mailSvc,
		},
	}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}
