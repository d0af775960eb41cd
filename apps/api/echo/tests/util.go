package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/gigglesedu/giggles/apps/api/echo"
	"github.com/gigglesedu/giggles/core"
	"github.com/gigglesedu/giggles/core/catalog"
	"github.com/gigglesedu/giggles/core/progress"
	"github.com/gigglesedu/giggles/core/user"
	"github.com/gigglesedu/giggles/services/email"
	"github.com/gigglesedu/giggles/services/logger"
	"github.com/gigglesedu/giggles/storage/database/sqlboiler"
	"github.com/gigglesedu/giggles/storage/database/sqlx"
	"github.com/gigglesedu/giggles/tests"
)

const strongPwd = "Giggl3s-Rock!"

var (
	ctxBg           = context.Background()
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

type fixture struct {
	app         Server
	usrRepo     user.Repository
	catRepo     catalog.Repository
	progressSvc progress.Service
}

func setup(t *testing.T) fixture {
	core.Conf.TestMode = true
	core.Conf.EmailNotifications = true
	emailsvc.ClearSentMessages()

	// set up DB & repos
	db := testutil.PrepareDB(t)
	f := fixture{
		usrRepo: sqlxrepos.NewUserRepository(db),
		catRepo: sqlxrepos.NewCatalogRepository(db),
	}

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock()
	logger := logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), core.Conf)
	usrSvc := user.NewServiceMock(db, f.usrRepo, mailSvc)
	catalogSvc := catalog.NewService(db, f.catRepo)
	f.progressSvc = progress.NewService(
		db,
		sqlxrepos.NewProgressRepository(db),
		boiledrepos.NewReportRepository(db),
		usrSvc,
		catalogSvc,
		mailSvc,
		logger,
	)

	// set up server
	f.app = NewServer(
		"",  /* addr */
		nil, /* shutdown */
		&Deps{
			Logger:      logger,
			UserSvc:     usrSvc,
			CatalogSvc:  catalogSvc,
			ProgressSvc: f.progressSvc,
		},
	)
	return f
}

// do serves the request and returns the recorded response.
func (f fixture) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	f.app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

// decode unmarshals the body of rec into v.
func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// runTests runs the table tests that only check codes and payloads.
func (f fixture) runTests(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			checkCodeAndData(t, tt, f.do(method, tt.path, tt.token, tt.body))
		})
	}
}
