package tests

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/gigglesedu/giggles/apps/api/echo"
	"github.com/gigglesedu/giggles/core"
	"github.com/gigglesedu/giggles/core/user"
	"github.com/gigglesedu/giggles/services/email"
	"github.com/gigglesedu/giggles/tests"
)

func Test_userApi_signup(t *testing.T) {
	f := setup(t)
	testutil.CreateUser(t, f.usrRepo, "Taken", "taken@test.cd", strongPwd, nil, true)

	signup := func(email, pwd, confirm string, roles ...string) []byte {
		return marchallObj(t, user.NewUser{
			Email:           email,
			FullName:        "Jane Doe",
			UserType:        user.TypeLearner,
			Password:        pwd,
			PasswordConfirm: confirm,
			Roles:           roles,
		})
	}

	f.runTests(t, []httpTest{
		{
			name: "empty body", method: http.MethodPost, path: "/api/users/signup", body: []byte("{}"),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "passwords mismatch", method: http.MethodPost, path: "/api/users/signup",
			body: signup("jane@test.cd", strongPwd, strongPwd+"x"), wantCode: http.StatusBadRequest,
		},
		{
			name: "email taken", method: http.MethodPost, path: "/api/users/signup",
			body: signup(" TAKEN@test.cd", strongPwd, strongPwd), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
	})

	t.Run("success", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/users/signup", "", signup("Jane@Test.cd", strongPwd, strongPwd, user.RoleAdminOwner))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp SignupResponse
		decode(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "jane@test.cd", resp.User.Email)
		assert.Empty(t, resp.User.Roles, "roles are set by admins only")
		assert.False(t, resp.User.LastLogin.IsZero())

		// the token works right away
		rec = f.do(http.MethodGet, "/api/users/me/profile", resp.Token)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
}

func Test_userApi_login(t *testing.T) {
	f := setup(t)
	testutil.CreateUser(t, f.usrRepo, "Jane Doe", "jane@test.cd", strongPwd, nil, true)
	testutil.CreateUser(t, f.usrRepo, "N Dog", "ndog@test.cd", strongPwd, nil, false)

	login := func(email, pwd string) []byte {
		return marchallObj(t, LoginRequest{Email: email, Password: pwd})
	}

	f.runTests(t, []httpTest{
		{name: "no credentials", method: http.MethodPost, path: "/api/users/login", body: []byte("{}"), wantCode: http.StatusBadRequest},
		{
			name: "unknown email", method: http.MethodPost, path: "/api/users/login", body: login("lol@test.cd", strongPwd),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/api/users/login", body: login("jane@test.cd", "lol"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/api/users/login", body: login("ndog@test.cd", strongPwd),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	t.Run("success", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/users/login", "", login(" JANE@test.cd ", strongPwd))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp LoginResponse
		decode(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)

		rec = f.do(http.MethodPost, "/api/users/logout", resp.Token)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func Test_userApi_tokenRefresh(t *testing.T) {
	f := setup(t)
	usr := testutil.CreateUser(t, f.usrRepo, "Jane Doe", "jane@test.cd", strongPwd, nil, true)
	naughty := testutil.CreateUser(t, f.usrRepo, "N Dog", "ndog@test.cd", strongPwd, nil, false)

	expired, err := GenerateToken(GetUserClaims(usr, time.Now().Add(-24*time.Hour).Unix()))
	require.NoError(t, err)

	f.runTests(t, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/api/users/token-refresh", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "deactivated", method: http.MethodPost, path: "/api/users/token-refresh", token: getToken(t, naughty),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "refresh expired", method: http.MethodPost, path: "/api/users/token-refresh", token: expired,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"}),
		},
	})

	t.Run("success", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/users/token-refresh", getToken(t, usr))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp LoginResponse
		decode(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
	})
}

func Test_userApi_profile(t *testing.T) {
	f := setup(t)
	usr := testutil.CreateUser(t, f.usrRepo, "Jane Doe", "jane@test.cd", strongPwd, nil, true)
	token := getToken(t, usr)

	f.runTests(t, []httpTest{
		{name: "auth required", path: "/api/users/me/profile", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "age too low", method: http.MethodPut, path: "/api/users/me/profile", token: token,
			body: []byte(`{"age": 2}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "age too high", method: http.MethodPut, path: "/api/users/me/profile", token: token,
			body: []byte(`{"age": 121}`), wantCode: http.StatusBadRequest,
		},
	})

	t.Run("get empty", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/users/me/profile", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var profile user.Profile
		decode(t, rec, &profile)
		assert.Equal(t, usr.ID, profile.UserID)
		assert.Nil(t, profile.Age)
	})

	t.Run("update", func(t *testing.T) {
		rec := f.do(http.MethodPut, "/api/users/me/profile", token, []byte(`{"age": 9, "grade_level": " Grade 4 "}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var profile user.Profile
		decode(t, rec, &profile)
		require.NotNil(t, profile.Age)
		assert.Equal(t, 9, *profile.Age)
		assert.Equal(t, "Grade 4", profile.GradeLevel)
	})
}

func Test_userApi_passwordReset(t *testing.T) {
	f := setup(t)
	usr := testutil.CreateUser(t, f.usrRepo, "Jane Doe", "jane@test.cd", strongPwd, nil, true)
	success := marchallObj(t, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})

	f.runTests(t, []httpTest{
		{name: "invalid email", method: http.MethodPost, path: "/api/users/password-reset", body: []byte(`{"email": "lol"}`), wantCode: http.StatusBadRequest},
		{
			name: "unknown email", method: http.MethodPost, path: "/api/users/password-reset",
			body: []byte(`{"email": "lol@test.cd"}`), wantCode: http.StatusOK, wantData: success,
		},
		{
			name: "invalid token", method: http.MethodPost, path: "/api/users/password-reset-confirm",
			body: marchallObj(t, user.ResetUserPassword{Token: "lol", UID: usr.ID, Password: "N3w-Secret!", PasswordConfirm: "N3w-Secret!"}),
			wantCode: http.StatusBadRequest,
		},
	})

	t.Run("request", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/users/password-reset", "", []byte(`{"email": "jane@test.cd"}`))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: success}, rec)

		msg, ok := emailsvc.LastSentMessage(usr.Email)
		require.True(t, ok, "password reset email not sent")
		assert.Equal(t, "password_reset", msg.TemplateName)
	})
}

func Test_userApi_admin(t *testing.T) {
	f := setup(t)
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@test.cd", strongPwd, []string{user.RoleAdmin}, true)
	jane := testutil.CreateUser(t, f.usrRepo, "Jane Doe", "jane@test.cd", strongPwd, nil, true)
	john := testutil.CreateUser(t, f.usrRepo, "John Doe", "john@test.cd", strongPwd, nil, false)
	adminToken := getToken(t, admin)
	janeToken := getToken(t, jane)

	query := func(v url.Values) string { return "/api/users?" + v.Encode() }

	f.runTests(t, []httpTest{
		{name: "auth required", path: "/api/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/api/users", token: janeToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "roles", path: "/api/users/roles", token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, user.Roles)},
		{name: "invalid created_from", path: query(url.Values{"created_from": {"lol"}}), token: adminToken, wantCode: http.StatusBadRequest},
		{name: "other user's detail", path: "/api/users/" + john.ID, token: janeToken, wantCode: http.StatusNotFound},
		{
			name: "learner cannot change roles", method: http.MethodPut, path: "/api/users/" + jane.ID, token: janeToken,
			body: []byte(`{"roles": ["admin:"]}`), wantCode: http.StatusForbidden,
		},
		{name: "cannot delete self", method: http.MethodDelete, path: "/api/users/" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
	})

	listEmails := func(t *testing.T, path string) []string {
		rec := f.do(http.MethodGet, path, adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var users []user.User
		decode(t, rec, &users)
		emails := make([]string, 0, len(users))
		for _, u := range users {
			emails = append(emails, u.Email)
		}
		return emails
	}

	t.Run("own detail", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/users/"+jane.ID, janeToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var usr user.User
		decode(t, rec, &usr)
		assert.Equal(t, jane.ID, usr.ID)
		assert.Equal(t, jane.Email, usr.Email)
	})

	t.Run("query", func(t *testing.T) {
		assert.ElementsMatch(t, []string{admin.Email, jane.Email, john.Email}, listEmails(t, "/api/users"))
		assert.ElementsMatch(t, []string{jane.Email, john.Email}, listEmails(t, query(url.Values{"search": {"DOE"}})))
		assert.ElementsMatch(t, []string{john.Email}, listEmails(t, query(url.Values{"is_active": {"false"}})))
		assert.ElementsMatch(t, []string{admin.Email}, listEmails(t, query(url.Values{"role": {user.RoleAdmin}})))
		assert.Equal(t, []string{john.Email, jane.Email, admin.Email}, listEmails(t, query(url.Values{"ordering": {"-email"}})))
	})

	t.Run("register", func(t *testing.T) {
		body := marchallObj(t, user.NewUser{
			Email: "owner@test.cd", FullName: "Owner", UserType: user.TypeParent,
			Password: strongPwd, PasswordConfirm: strongPwd, Roles: []string{user.RoleAdminOwner},
		})
		rec := f.do(http.MethodPost, "/api/users/register", adminToken, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "cannot grant a role above their own")

		body = []byte(strings.Replace(string(body), user.RoleAdminOwner, user.RoleAdmin, 1))
		rec = f.do(http.MethodPost, "/api/users/register", adminToken, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("update", func(t *testing.T) {
		rec := f.do(http.MethodPut, "/api/users/"+john.ID, adminToken, []byte(`{"is_active": true, "full_name": " Johnny "}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var usr user.User
		decode(t, rec, &usr)
		assert.True(t, usr.IsActive)
		assert.Equal(t, "Johnny", usr.FullName)
	})

	t.Run("delete", func(t *testing.T) {
		rec := f.do(http.MethodDelete, "/api/users?id="+john.ID+"&id="+jane.ID, adminToken)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		_, err := f.usrRepo.GetUser(context.Background(), user.GetFilter{ID: jane.ID})
		assert.True(t, core.IsNotFound(err))

		// tokens of deleted users are rejected
		rec = f.do(http.MethodGet, "/api/users/me/profile", janeToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
