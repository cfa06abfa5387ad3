package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/middleware"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// =====================
// レスポンス確認用
// =====================

type mwErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type mwOKResponse struct {
	UserID    int64  `json:"user_id"`
	Role      string `json:"role"`
	OwnerKey  string `json:"owner_key"`
	SessionID string `json:"session_id"`
}

// =====================
// helper
// =====================

const testSecret = "test-secret"

func mustMakeJWT(t *testing.T, secret string, sub int64, role string, signingMethod jwt.SigningMethod) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"iat":  1,
		"exp":  9999999999,
	}

	token := jwt.NewWithClaims(signingMethod, claims)

	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	return s
}

func runRequest(t *testing.T, e *echo.Echo, method string, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeMWError(t *testing.T, rec *httptest.ResponseRecorder) mwErrorResponse {
	t.Helper()
	var r mwErrorResponse
	_ = json.NewDecoder(rec.Body).Decode(&r)
	return r
}

func decodeMWOK(t *testing.T, rec *httptest.ResponseRecorder) mwOKResponse {
	t.Helper()
	var r mwOKResponse
	_ = json.NewDecoder(rec.Body).Decode(&r)
	return r
}

// contextに入った値をそのまま返す
func echoContextHandler(c echo.Context) error {
	userID, _ := c.Get(middleware.CtxUserIDKey).(int64)
	role, _ := c.Get(middleware.CtxUserRoleKey).(string)
	owner, _ := c.Get(middleware.CtxOwnerKey).(model.Owner)
	sid, _ := c.Get(middleware.CtxSessionIDKey).(string)

	return c.JSON(http.StatusOK, mwOKResponse{
		UserID:    userID,
		Role:      role,
		OwnerKey:  owner.Key(),
		SessionID: sid,
	})
}

func newOwnerServer() *echo.Echo {
	e := echo.New()
	e.GET("/cart", echoContextHandler, middleware.ResolveOwner(config.Config{JWTSecret: testSecret}))
	return e
}

// =====================
// AuthJWT
// =====================

func TestMiddleware_AuthJWT_Unauthorized(t *testing.T) {
	wrongSig := mustMakeJWT(t, "wrong-secret", 1, "USER", jwt.SigningMethodHS256)
	wrongAlg := mustMakeJWT(t, testSecret, 1, "USER", jwt.SigningMethodHS512)
	noRole := mustMakeJWT(t, testSecret, 1, "", jwt.SigningMethodHS256)
	badSub := mustMakeJWT(t, testSecret, 0, "USER", jwt.SigningMethodHS256)

	cases := map[string]string{
		"no header":     "",
		"bad scheme":    "Token abc.def.ghi",
		"empty token":   "Bearer ",
		"bad signature": "Bearer " + wrongSig,
		"wrong alg":     "Bearer " + wrongAlg,
		"no role":       "Bearer " + noRole,
		"bad sub":       "Bearer " + badSub,
	}
	for name, authz := range cases {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			e.GET("/protected", echoContextHandler, middleware.AuthJWT(config.Config{JWTSecret: testSecret}))

			headers := map[string]string{}
			if authz != "" {
				headers["Authorization"] = authz
			}
			rec := runRequest(t, e, http.MethodGet, "/protected", headers)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			body := decodeMWError(t, rec)
			assert.Equal(t, "unauthorized", body.Error)
			assert.Equal(t, "UNAUTHORIZED", body.Code)
		})
	}
}

// 正常：ctxに値が入る
func TestMiddleware_AuthJWT_Success_SetsContext(t *testing.T) {
	e := echo.New()
	e.GET("/protected", echoContextHandler, middleware.AuthJWT(config.Config{JWTSecret: testSecret}))

	raw := mustMakeJWT(t, testSecret, 123, "USER", jwt.SigningMethodHS256)

	rec := runRequest(t, e, http.MethodGet, "/protected", map[string]string{"Authorization": "Bearer " + raw})
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decodeMWOK(t, rec)
	assert.Equal(t, int64(123), body.UserID)
	assert.Equal(t, "USER", body.Role)
}

// =====================
// AdminRoleGuard
// =====================

func TestMiddleware_AdminRoleGuard(t *testing.T) {
	cfg := config.Config{JWTSecret: testSecret}
	e := echo.New()
	e.GET("/admin", echoContextHandler, middleware.AuthJWT(cfg), middleware.AdminRoleGuard())

	user := mustMakeJWT(t, testSecret, 1, "USER", jwt.SigningMethodHS256)
	rec := runRequest(t, e, http.MethodGet, "/admin", map[string]string{"Authorization": "Bearer " + user})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decodeMWError(t, rec).Code)

	admin := mustMakeJWT(t, testSecret, 2, middleware.RoleAdmin, jwt.SigningMethodHS256)
	rec = runRequest(t, e, http.MethodGet, "/admin", map[string]string{"Authorization": "Bearer " + admin})
	assert.Equal(t, http.StatusOK, rec.Code)
}

// AuthJWT無しでGuardだけ => 401
func TestMiddleware_AdminRoleGuard_MissingContext(t *testing.T) {
	e := echo.New()
	e.GET("/admin", echoContextHandler, middleware.AdminRoleGuard())

	rec := runRequest(t, e, http.MethodGet, "/admin", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// =====================
// ResolveOwner
// =====================

func TestMiddleware_ResolveOwner_Session(t *testing.T) {
	rec := runRequest(t, newOwnerServer(), http.MethodGet, "/cart", map[string]string{middleware.SessionIDHeader: "sess-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeMWOK(t, rec)
	assert.Equal(t, "session:sess-1", body.OwnerKey)
	assert.Equal(t, "sess-1", body.SessionID)
	assert.Zero(t, body.UserID)
}

func TestMiddleware_ResolveOwner_BearerWins(t *testing.T) {
	raw := mustMakeJWT(t, testSecret, 42, "USER", jwt.SigningMethodHS256)

	rec := runRequest(t, newOwnerServer(), http.MethodGet, "/cart", map[string]string{
		"Authorization":            "Bearer " + raw,
		middleware.SessionIDHeader: "sess-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeMWOK(t, rec)
	assert.Equal(t, "account:42", body.OwnerKey)
	assert.Equal(t, int64(42), body.UserID)
	// マージ用にセッションIDも残る
	assert.Equal(t, "sess-1", body.SessionID)
}

func TestMiddleware_ResolveOwner_InvalidBearerDoesNotFallBack(t *testing.T) {
	raw := mustMakeJWT(t, "wrong-secret", 42, "USER", jwt.SigningMethodHS256)

	rec := runRequest(t, newOwnerServer(), http.MethodGet, "/cart", map[string]string{
		"Authorization":            "Bearer " + raw,
		middleware.SessionIDHeader: "sess-1",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_ResolveOwner_NoIdentity(t *testing.T) {
	rec := runRequest(t, newOwnerServer(), http.MethodGet, "/cart", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "session id or bearer token required", decodeMWError(t, rec).Error)
}

func TestMiddleware_ResolveOwner_InvalidSessionID(t *testing.T) {
	rec := runRequest(t, newOwnerServer(), http.MethodGet, "/cart", map[string]string{middleware.SessionIDHeader: "a:b"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeMWError(t, rec).Code)
}

// =====================
// RequestLogger
// =====================

func TestMiddleware_RequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	e := echo.New()
	e.Use(middleware.RequestLogger(log))
	e.GET("/cart", echoContextHandler, middleware.ResolveOwner(config.Config{JWTSecret: testSecret}))
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusInternalServerError, "boom")
	})

	rec := runRequest(t, e, http.MethodGet, "/cart", map[string]string{middleware.SessionIDHeader: "sess-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = runRequest(t, e, http.MethodGet, "/boom", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/cart", fields["path"])
	assert.Equal(t, int64(200), fields["status"])
	assert.Equal(t, "session", fields["owner_kind"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, int64(500), entries[1].ContextMap()["status"])
}
