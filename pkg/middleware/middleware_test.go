package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	utils "github.com/Ramsey-B/sortinghat/pkg/context"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
)

func newEcho() *echo.Echo {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	e := echo.New()
	e.HTTPErrorHandler = Error(logger)
	e.Use(Context())
	e.Use(Logger(logger))
	return e
}

func serve(e *echo.Echo, req *http.Request) (*httptest.ResponseRecorder, ErrorResponse) {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var body ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestContextCarriesRequestAndUser(t *testing.T) {
	e := newEcho()
	var requestID, userID string
	e.GET("/whoami", func(c echo.Context) error {
		requestID = utils.GetRequestID(c.Request().Context())
		userID = utils.GetUserID(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HeaderUserID, "jsmith")
	req.Header.Set(echo.HeaderXRequestID, "req-1")
	rec, _ := serve(e, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "req-1", requestID)
	assert.Equal(t, "jsmith", userID)
	assert.Equal(t, "req-1", rec.Header().Get(echo.HeaderXRequestID))
}

func TestContextGeneratesRequestID(t *testing.T) {
	e := newEcho()
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec, _ := serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestErrorRendersRegistryErrors(t *testing.T) {
	e := newEcho()
	e.GET("/missing", func(c echo.Context) error {
		return errors.NotFound("individual", "abc")
	})
	e.GET("/locked", func(c echo.Context) error {
		return errors.Locked("abc")
	})

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-2")
	rec, body := serve(e, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "individual 'abc' not found in the registry", body.Message)
	assert.Equal(t, "req-2", body.RequestID)
	assert.EqualValues(t, errors.CodeNotFound, body.Meta["code"])

	rec, body = serve(e, httptest.NewRequest(http.MethodGet, "/locked", nil))
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.EqualValues(t, errors.CodeLockedIdentity, body.Meta["code"])
}

func TestErrorKeepsEchoStatus(t *testing.T) {
	e := newEcho()
	rec, body := serve(e, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", body.Message)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	verifier := oidc.NewVerifier("https://issuer.example.com", &oidc.StaticKeySet{}, &oidc.Config{ClientID: "sortinghat"})

	e := newEcho()
	called := false
	g := e.Group("/api", Verify(logger, verifier))
	g.GET("/private", func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})

	rec, body := serve(e, httptest.NewRequest(http.MethodGet, "/api/private", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing bearer", body.Message)

	req := httptest.NewRequest(http.MethodGet, "/api/private", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer not-a-jwt")
	rec, body = serve(e, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid token", body.Message)
	assert.False(t, called)
}

func TestAuthenticationFailsWithoutIssuer(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	_, err := Authentication(context.Background(), logger, "http://127.0.0.1:1", "sortinghat")
	require.Error(t, err)
}

func TestUserClaimsAuthor(t *testing.T) {
	assert.Equal(t, "jsmith", UserClaims{Sub: "1", Email: "j@example.com", PreferredUsername: "jsmith"}.Author())
	assert.Equal(t, "j@example.com", UserClaims{Sub: "1", Email: "j@example.com"}.Author())
	assert.Equal(t, "1", UserClaims{Sub: "1"}.Author())
}
