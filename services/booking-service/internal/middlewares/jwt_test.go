package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	a "github.com/Leis4/parkshare-ru-part1/pkg/auth"
)

const secret = "test-secret"

func router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", JWTAuth(secret), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("sub")+"/"+c.GetString("role"))
	})
	r.GET("/admin", JWTAuth(secret), RequireRole(a.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func call(t *testing.T, path, role string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if role != "" {
		tok, err := a.CreateAccessToken(secret, "u1", role, "u1@example.com", time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	router().ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	w := call(t, "/me", a.RoleDriver)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1/DRIVER", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, call(t, "/me", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, call(t, "/admin", a.RoleDriver).Code)
	assert.Equal(t, http.StatusNoContent, call(t, "/admin", a.RoleAdmin).Code)
}
