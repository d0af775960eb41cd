package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gigglesedu/giggles/core"
)

func TestMakeVerifyToken(t *testing.T) {
	now := time.Now()
	usr := User{
		ID:        "2f1c9c4e-7c8b-4bfb-a2d2-5f8ac1b1a3e0",
		FullName:  "Tess Tee",
		Email:     "t@test.test",
		UserType:  TypeLearner,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: now,
	}
	_ = usr.SetPassword("pwd")

	validToken, err := MakeToken(usr)
	assert.NoError(t, err)

	// generate an expired token
	dayLate := core.Conf.Server.PasswordResetTimeoutDelta + (24 * time.Hour)
	NowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken, err := MakeToken(usr)
	assert.NoError(t, err)
	NowFunc = time.Now // reset

	// any new login invalidates the token
	loggedIn := usr
	loggedIn.LastLogin = now.Add(time.Minute)

	tests := []struct {
		name    string
		usr     User
		token   string
		wantErr error
	}{
		{name: "no token", usr: usr, wantErr: errInvalidToken},
		{name: "invalid parts len", usr: usr, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "invalid base32", usr: usr, token: "hahaha-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid timestamp", usr: usr, token: "NRXWY-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid token", usr: usr, token: "HE4TS-sigsig-sig", wantErr: errInvalidToken},
		{name: "expired token", usr: usr, token: expiredToken, wantErr: errTokenExpired},
		{name: "new login", usr: loggedIn, token: validToken, wantErr: errInvalidToken},
		{name: "valid token", usr: usr, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, verifyToken(tt.usr, tt.token))
		})
	}
}

func TestEncodeDecodeUID(t *testing.T) {
	usr := User{ID: "2f1c9c4e-7c8b-4bfb-a2d2-5f8ac1b1a3e0"}
	id, err := decodeUID(EncodeUID(usr))
	assert.NoError(t, err)
	assert.Equal(t, usr.ID, id)

	_, err = decodeUID("%%%")
	assert.Error(t, err)
}
