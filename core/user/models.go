package user

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gigglesedu/giggles/core"
)

// Roles
const (
	RoleAdmin      = "admin:"
	RoleAdminOwner = "admin:owner"
)

// User types
const (
	TypeParent  = "parent"
	TypeLearner = "learner"
)

var (
	AdminRoles = []string{RoleAdmin, RoleAdminOwner}
	AllRoles   = AdminRoles

	rolePriorities = map[string]int{
		RoleAdminOwner: 30,
		RoleAdmin:      21,
	}

	Roles = []Role{
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Admin Owner", Value: RoleAdminOwner},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	UserType     string    `json:"user_type"`
	IsActive     bool      `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u *User) IsLearner() bool {
	return u.UserType == TypeLearner
}

// Profile is the student profile attached to every User.
type Profile struct {
	UserID     string    `json:"user_id"`
	Age        *int      `json:"age"`
	GradeLevel string    `json:"grade_level"`
	CreatedAt  time.Time `json:"created_at"` // UTC
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Email           string   `json:"email" validate:"required,email"`
	FullName        string   `json:"full_name" validate:"required,max=255"`
	UserType        string   `json:"user_type" validate:"required,oneof=parent learner"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Clean() {
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.FullName = core.CleanString(nu.FullName)
	nu.UserType = core.CleanString(nu.UserType, true /* lower */)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Email           string   `json:"email" validate:"omitempty,email"`
	FullName        string   `json:"full_name" validate:"omitempty,max=255"`
	UserType        string   `json:"user_type" validate:"omitempty,oneof=parent learner"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

// Clean trims the input and fills the blanks with origUsr values.
func (uu *UpdateUser) Clean(origUsr User) {
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}
	if name := core.CleanString(uu.FullName); name != "" {
		uu.FullName = name
	} else {
		uu.FullName = origUsr.FullName
	}
	if ut := core.CleanString(uu.UserType, true /* lower */); ut != "" {
		uu.UserType = ut
	} else {
		uu.UserType = origUsr.UserType
	}
	if uu.IsActive == nil {
		uu.IsActive = &origUsr.IsActive
	}
	if uu.Roles == nil {
		uu.Roles = origUsr.Roles
	}
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

// UpdateProfile holds the editable Profile fields.
type UpdateProfile struct {
	Age        *int   `json:"age" validate:"omitempty,min=3,max=120"`
	GradeLevel string `json:"grade_level" validate:"max=50"`
}

func (up *UpdateProfile) Clean() {
	up.GradeLevel = core.CleanString(up.GradeLevel)
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	UserType    string    `query:"user_type"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.UserType == "" && qf.IsActive == nil &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.UserType = core.CleanString(qf.UserType, true /* lower */)
}

// GetFilter selects a single User; the first non-empty field wins.
type GetFilter struct {
	ID    string
	Email string
}
