package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"linkshorty/internal/apperr"
	"linkshorty/internal/auth"
	"linkshorty/internal/domain"
	apphttp "linkshorty/internal/http"
	"linkshorty/internal/repository/sqlite"
	"linkshorty/internal/service"
)

const testSecret = "http-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	users := sqlite.NewUserRepository(db)
	require.NoError(t, users.Init(context.Background()))

	tokens := auth.NewTokenService(testSecret)
	svc := service.NewUserService(users, auth.NewBcryptHasher(bcrypt.MinCost), tokens)

	router := gin.New()
	apphttp.NewHandler(svc, auth.NewGuard(tokens, users), quietLogger(), false).RegisterRoutes(router)
	return router
}

func do(t *testing.T, router http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

type authBody struct {
	Message string          `json:"message"`
	User    domain.Identity `json:"user"`
	Token   string          `json:"token"`
}

type errorBody struct {
	Message string              `json:"message"`
	Errors  []apperr.FieldError `json:"errors"`
	Error   string              `json:"error"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAuthFlow_Walkthrough(t *testing.T) {
	router := newRouter(t)
	creds := map[string]string{"username": "alice", "password": "secret123"}

	rec := do(t, router, http.MethodPost, "/api/auth/register", creds, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	registered := decode[authBody](t, rec)
	assert.Equal(t, domain.Identity{ID: 1, Username: "alice"}, registered.User)
	assert.NotEmpty(t, registered.Token)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = do(t, router, http.MethodPost, "/api/auth/login", creds, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	loggedIn := decode[authBody](t, rec)
	assert.Equal(t, registered.User, loggedIn.User)
	assert.NotEqual(t, registered.Token, loggedIn.Token)

	rec = do(t, router, http.MethodGet, "/api/auth/profile", nil, bearer(loggedIn.Token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"user":{"id":1,"username":"alice"}}`, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/auth/profile", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, auth.MsgMissingToken, decode[errorBody](t, rec).Message)
}

func TestRegister_Errors(t *testing.T) {
	router := newRouter(t)

	t.Run("duplicate username", func(t *testing.T) {
		creds := map[string]string{"username": "bob", "password": "secret123"}
		require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/auth/register", creds, nil).Code)

		rec := do(t, router, http.MethodPost, "/api/auth/register", creds, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, service.MsgDuplicateUser, decode[errorBody](t, rec).Message)
	})

	t.Run("validation lists every field", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/auth/register", map[string]string{"username": "ab", "password": "123"}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode[errorBody](t, rec)
		assert.Equal(t, "Validation error", body.Message)
		assert.Len(t, body.Errors, 2)
	})

	t.Run("empty body reports missing fields", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/auth/register", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Len(t, decode[errorBody](t, rec).Errors, 2)
	})

	t.Run("malformed json", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/auth/register", `{"username": 42}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode[errorBody](t, rec)
		require.Len(t, body.Errors, 1)
		assert.Equal(t, "body", body.Errors[0].Field)
	})
}

func TestLogin_DoesNotRevealWhichPartWasWrong(t *testing.T) {
	router := newRouter(t)
	creds := map[string]string{"username": "alice", "password": "secret123"}
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/auth/register", creds, nil).Code)

	wrongPassword := do(t, router, http.MethodPost, "/api/auth/login", map[string]string{"username": "alice", "password": "nope-nope"}, nil)
	unknownUser := do(t, router, http.MethodPost, "/api/auth/login", map[string]string{"username": "mallory", "password": "secret123"}, nil)

	assert.Equal(t, http.StatusBadRequest, wrongPassword.Code)
	assert.Equal(t, wrongPassword.Code, unknownUser.Code)
	assert.JSONEq(t, wrongPassword.Body.String(), unknownUser.Body.String())
}

func TestProfile_RejectsBadTokens(t *testing.T) {
	router := newRouter(t)

	forged, err := auth.NewTokenService("someone-else").Issue(1)
	require.NoError(t, err)

	past := auth.NewTokenService(testSecret, auth.WithClock(func() time.Time { return time.Now().Add(-48 * time.Hour) }))
	expired, err := past.Issue(1)
	require.NoError(t, err)

	ghost, err := auth.NewTokenService(testSecret).Issue(999)
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  map[string]string
		message string
	}{
		{"forged signature", bearer(forged), auth.MsgInvalidToken},
		{"expired", bearer(expired), auth.MsgInvalidToken},
		{"garbage", bearer("not-a-token"), auth.MsgInvalidToken},
		{"wrong scheme", map[string]string{"Authorization": "Basic Zm9vOmJhcg=="}, auth.MsgMissingToken},
		{"user gone", bearer(ghost), auth.MsgUserGone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, "/api/auth/profile", nil, tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.message, decode[errorBody](t, rec).Message)
		})
	}
}

func TestBannerAndNotFound(t *testing.T) {
	router := newRouter(t)

	rec := do(t, router, http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	banner := decode[map[string]any](t, rec)
	assert.Equal(t, "LinkShorty Backend API", banner["message"])
	assert.Equal(t, apphttp.Version, banner["version"])

	rec = do(t, router, http.MethodGet, "/api/unknown?x=1", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Route not found","path":"/api/unknown?x=1"}`, rec.Body.String())

	rec = do(t, router, http.MethodDelete, "/api/auth/profile", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMiddleware_CORSAndRequestID(t *testing.T) {
	router := newRouter(t)

	rec := do(t, router, http.MethodOptions, "/api/auth/login", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, router, http.MethodGet, "/", nil, map[string]string{"X-Request-ID": "req-123"})
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	rec = do(t, router, http.MethodGet, "/", nil, nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMiddleware_ReplacesUnsafeRequestID(t *testing.T) {
	router := newRouter(t)

	for _, id := range []string{
		"has space",
		"<script>alert(1)</script>",
		"line\tbreak",
		strings.Repeat("a", 129),
	} {
		rec := do(t, router, http.MethodGet, "/", nil, map[string]string{"X-Request-ID": id})
		got := rec.Header().Get("X-Request-ID")
		assert.NotEqual(t, id, got)
		_, err := uuid.Parse(got)
		assert.NoError(t, err, "replacement for %q is %q", id, got)
	}

	kept := "trace-01:abc_DEF." + strings.Repeat("x", 111)
	rec := do(t, router, http.MethodGet, "/", nil, map[string]string{"X-Request-ID": kept})
	assert.Equal(t, kept, rec.Header().Get("X-Request-ID"))
}

type brokenService struct {
	panics bool
}

func (b brokenService) Register(context.Context, string, string) (*service.AuthResult, error) {
	if b.panics {
		panic("unexpected")
	}
	return nil, apperr.Internal("Internal server error during registration", errors.New("disk full"))
}

func (b brokenService) Login(context.Context, string, string) (*service.AuthResult, error) {
	return nil, errors.New("plain error")
}

func (b brokenService) Profile(*domain.Identity) (domain.Identity, error) {
	return domain.Identity{}, nil
}

func brokenRouter(svc service.UserService, debug bool) *gin.Engine {
	router := gin.New()
	guard := auth.NewGuard(auth.NewTokenService(testSecret), nil)
	apphttp.NewHandler(svc, guard, quietLogger(), debug).RegisterRoutes(router)
	return router
}

func TestInternalErrors(t *testing.T) {
	creds := map[string]string{"username": "alice", "password": "secret123"}

	t.Run("detail hidden outside development", func(t *testing.T) {
		rec := do(t, brokenRouter(brokenService{}, false), http.MethodPost, "/api/auth/register", creds, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decode[errorBody](t, rec)
		assert.Equal(t, "Internal server error during registration", body.Message)
		assert.Empty(t, body.Error)
	})

	t.Run("detail shown in development", func(t *testing.T) {
		rec := do(t, brokenRouter(brokenService{}, true), http.MethodPost, "/api/auth/register", creds, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "disk full", decode[errorBody](t, rec).Error)
	})

	t.Run("untagged errors are internal", func(t *testing.T) {
		rec := do(t, brokenRouter(brokenService{}, false), http.MethodPost, "/api/auth/login", creds, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Internal server error", decode[errorBody](t, rec).Message)
	})

	t.Run("panics are recovered", func(t *testing.T) {
		rec := do(t, brokenRouter(brokenService{panics: true}, false), http.MethodPost, "/api/auth/register", creds, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Internal server error", decode[errorBody](t, rec).Message)
	})
}

func TestRecoveredPanicIsAccessLogged(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	router := gin.New()
	guard := auth.NewGuard(auth.NewTokenService(testSecret), nil)
	apphttp.NewHandler(brokenService{panics: true}, guard, logger, false).RegisterRoutes(router)

	creds := map[string]string{"username": "alice", "password": "secret123"}
	rec := do(t, router, http.MethodPost, "/api/auth/register", creds, map[string]string{"X-Request-ID": "req-panic"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var access *logrus.Entry
	for _, entry := range hook.AllEntries() {
		if entry.Message == "http request" {
			access = entry
		}
	}
	require.NotNil(t, access, "no access log line for the recovered request")
	assert.Equal(t, http.StatusInternalServerError, access.Data["status"])
	assert.Equal(t, "req-panic", access.Data["request_id"])
	assert.Equal(t, "/api/auth/register", access.Data["path"])
}
