package user

import (
	"context"
	"net/mail"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/gigglesedu/giggles/core"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("user")
	ErrProfileNotFound    = core.NewNotFoundError("profile")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account deactivated")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.FullName or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)

		// GetOrCreateProfile returns the Profile of the given user, creating an empty one if missing.
		GetOrCreateProfile(ctx context.Context, userID string, exec ...core.DBExecutor) (Profile, error)
		UpdateProfile(ctx context.Context, profile Profile, exec ...core.DBExecutor) (Profile, error)
	}

	Service interface {
		CheckUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		Authenticate(ctx context.Context, email, pwd string) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		Delete(ctx context.Context, ids ...string) error
		GetProfile(ctx context.Context, usr User) (Profile, error)
		UpdateProfile(ctx context.Context, usr User, up UpdateProfile) (Profile, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
	}

	service struct {
		db      core.DB
		repo    Repository
		mailSvc core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, mailSvc core.EmailService) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(db, "db"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(mailSvc, "mailSvc"),
	).CheckAndPanic()
	return &service{db: db, repo: repo, mailSvc: mailSvc}
}

// Validate cleans and validates nu, then checks that the email is not taken.
func (nu *NewUser) Validate(ctx context.Context, svc Service) error {
	nu.Clean()
	if err := core.Validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Email)
}

// Validate cleans and validates uu against origUsr, then checks that the email is not taken.
func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, svc Service) error {
	uu.Clean(origUsr)
	if err := core.Validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Email, origUsr)
}

func (rp *ResetUserPassword) Validate() error { return core.Validate.Struct(rp) }

func (up *UpdateProfile) Validate() error {
	up.Clean()
	return core.Validate.Struct(up)
}

func (svc *service) CheckUniqueness(ctx context.Context, email string, excludedUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, excludedUsers); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
		}
		return errors.Wrap(err, "checking email uniqueness")
	}
	return nil
}

// Create saves a new User along with its Profile.
func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := core.Now()
	usr := User{
		Email:     nu.Email,
		FullName:  nu.FullName,
		UserType:  nu.UserType,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if usr, err = svc.repo.CreateUser(ctx, usr, tx); err != nil {
			return errors.Wrap(err, "creating user")
		}
		_, err = svc.repo.GetOrCreateProfile(ctx, usr.ID, tx)
		return errors.Wrap(err, "creating profile")
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

// Authenticate checks the credentials of an active User and records the login.
func (svc *service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}
	return svc.SetLastLogin(ctx, usr)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

// Update expects uu to be validated against the current User.
func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}

	usr.Email = uu.Email
	usr.FullName = uu.FullName
	usr.UserType = uu.UserType
	usr.Roles = uu.Roles
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	usr.UpdatedAt = core.Now()
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = core.Now()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteUsersByID(ctx, ids)
	return err
}

func (svc *service) GetProfile(ctx context.Context, usr User) (Profile, error) {
	return svc.repo.GetOrCreateProfile(ctx, usr.ID)
}

// UpdateProfile expects up to be validated.
func (svc *service) UpdateProfile(ctx context.Context, usr User, up UpdateProfile) (Profile, error) {
	var profile Profile
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if profile, err = svc.repo.GetOrCreateProfile(ctx, usr.ID, tx); err != nil {
			return errors.Wrap(err, "getting profile")
		}
		profile.Age = up.Age
		profile.GradeLevel = up.GradeLevel
		profile, err = svc.repo.UpdateProfile(ctx, profile, tx)
		return errors.Wrap(err, "updating profile")
	})
	return profile, err
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	go svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	token, err := MakeToken(usr)
	if err != nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]string{
			"Name":  usr.FullName,
			"UID":   EncodeUID(usr),
			"Token": token,
		},
	})
}

// ResetPassword expects data to be validated.
func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	invalidToken := core.NewValidationError(errInvalidToken, core.FieldError{Field: "token", Error: errInvalidToken.Error()})

	id, err := decodeUID(data.UID)
	if err != nil {
		return invalidToken
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return invalidToken
		}
		return errors.Wrap(err, "finding user by ID")
	}

	if err = verifyToken(usr, data.Token); err != nil {
		if err == errTokenExpired {
			return core.NewValidationError(err, core.FieldError{Field: "token", Error: err.Error()})
		}
		return invalidToken
	}

	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = core.Now()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}
