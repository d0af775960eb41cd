package user

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigglesedu/giggles/core"
)

func TestNewUser_passwordPolicy(t *testing.T) {
	newUser := func(pwd string) *NewUser {
		return &NewUser{
			Email:           " Jane.Doe@Test.CD ",
			FullName:        "Jane Doe",
			UserType:        TypeLearner,
			Password:        pwd,
			PasswordConfirm: pwd,
		}
	}

	tests := []struct {
		name    string
		pwd     string
		wantTag string
	}{
		{name: "too short", pwd: "ab1", wantTag: pwdMinLenTag},
		{name: "whitespace", pwd: "abc def1", wantTag: pwdNoSpaceTag},
		{name: "all numeric", pwd: "90817263", wantTag: pwdNotAllNumTag},
		{name: "similar to email", pwd: "jane.doe@test", wantTag: pwdAttrSimTag},
		{name: "similar to name", pwd: "JaneDoe", wantTag: pwdAttrSimTag},
		{name: "common", pwd: "Password1", wantTag: pwdNoCommonTag},
		{name: "valid", pwd: "tr1angle-Sun"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := newUser(tt.pwd)
			nu.Clean()
			err := core.Validate.Struct(nu)
			if tt.wantTag == "" {
				assert.NoError(t, err)
				return
			}
			var vErrs validator.ValidationErrors
			require.ErrorAs(t, err, &vErrs)
			require.Len(t, vErrs, 1)
			assert.Equal(t, "password", vErrs[0].Field())
			assert.Equal(t, tt.wantTag, vErrs[0].Tag())
		})
	}
}

func TestNewUser_Clean(t *testing.T) {
	nu := &NewUser{Email: " Jane@Test.CD", FullName: " Jane ", UserType: "Learner "}
	nu.Clean()
	assert.Equal(t, "jane@test.cd", nu.Email)
	assert.Equal(t, "Jane", nu.FullName)
	assert.Equal(t, TypeLearner, nu.UserType)
}

func TestNewUser_fields(t *testing.T) {
	nu := &NewUser{
		Email:           "not-an-email",
		FullName:        "",
		UserType:        "teacher",
		Password:        "tr1angle-Sun",
		PasswordConfirm: "tr1angle-Moon",
		Roles:           []string{"lol"},
	}
	err := core.Validate.Struct(nu)

	var vErrs validator.ValidationErrors
	require.ErrorAs(t, err, &vErrs)
	got := make(map[string]string, len(vErrs))
	for _, e := range vErrs {
		got[e.Field()] = e.Tag()
	}
	assert.Equal(t, map[string]string{
		"email":            "email",
		"full_name":        "required",
		"user_type":        "oneof",
		"password_confirm": "eqfield",
		"roles":            allRolesTag,
	}, got)
}

func TestUpdateUser_Clean(t *testing.T) {
	orig := User{Email: "a@test.cd", FullName: "A", UserType: TypeParent, IsActive: true, Roles: []string{RoleAdmin}}

	uu := &UpdateUser{FullName: " B "}
	uu.Clean(orig)
	assert.Equal(t, "a@test.cd", uu.Email)
	assert.Equal(t, "B", uu.FullName)
	assert.Equal(t, TypeParent, uu.UserType)
	assert.True(t, *uu.IsActive)
	assert.Equal(t, []string{RoleAdmin}, uu.Roles)
	assert.NoError(t, core.Validate.Struct(uu))
}

func TestUpdateProfile_Validate(t *testing.T) {
	age := func(a int) *int { return &a }

	assert.NoError(t, (&UpdateProfile{Age: age(9), GradeLevel: " 4th "}).Validate())
	assert.NoError(t, (&UpdateProfile{}).Validate())
	assert.Error(t, (&UpdateProfile{Age: age(1)}).Validate())
	assert.Error(t, (&UpdateProfile{Age: age(200)}).Validate())
}

func TestMaxRolePriority(t *testing.T) {
	assert.Equal(t, 0, MaxRolePriority(nil))
	assert.Equal(t, 21, MaxRolePriority([]string{RoleAdmin}))
	assert.Equal(t, 30, MaxRolePriority([]string{RoleAdmin, RoleAdminOwner}))
}
