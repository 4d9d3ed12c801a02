package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"batchforge/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func keyEchoRouter(defaultKey string) *gin.Engine {
	r := gin.New()
	r.Use(middleware.ProviderKey(defaultKey))
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, middleware.GetAPIKey(c))
	})
	return r
}

func TestProviderKey_BearerToken(t *testing.T) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer sk-caller")
	keyEchoRouter("sk-default").ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sk-caller", w.Body.String())
}

func TestProviderKey_FallsBackToDefault(t *testing.T) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", http.NoBody)
	keyEchoRouter("sk-default").ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sk-default", w.Body.String())
}

func TestProviderKey_NonBearerHeaderIgnored(t *testing.T) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	keyEchoRouter("sk-default").ServeHTTP(w, req)

	assert.Equal(t, "sk-default", w.Body.String())
}

func TestProviderKey_Missing(t *testing.T) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer   ")
	keyEchoRouter("").ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, false, resp["success"])
	errObj := resp["error"].(map[string]interface{})
	assert.Equal(t, "MISSING_API_KEY", errObj["code"])
}

func TestGetAPIKey_Unset(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.Empty(t, middleware.GetAPIKey(c))
}
