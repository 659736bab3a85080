package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eppcloud/epp_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func identityRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/whoami", Auth(), func(c *gin.Context) {
		ctx := c.Request.Context()
		userId, _ := utils.GetUserIdFromContext(ctx)
		role, _ := utils.GetUserRoleFromContext(ctx)
		correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
		c.JSON(http.StatusOK, gin.H{
			"user_id":        userId,
			"role":           role,
			"correlation_id": correlationId,
		})
	})
	return router
}

func TestAuthRejectsMissingOrBadToken(t *testing.T) {
	router := identityRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthInjectsIdentityAndCorrelationId(t *testing.T) {
	router := identityRouter()
	token, err := utils.JwtGenerate(7, "supervisor")
	assert.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Correlation-Id", "corr-123")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":7`)
	assert.Contains(t, w.Body.String(), `"role":"supervisor"`)
	assert.Contains(t, w.Body.String(), `"correlation_id":"corr-123"`)
}

func TestAuthGeneratesCorrelationIdWhenAbsent(t *testing.T) {
	router := identityRouter()
	token, err := utils.JwtGenerate(7, "supervisor")
	assert.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"correlation_id":""`)
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/approve", Auth(), RequireRole("supervisor"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	cases := []struct {
		role string
		want int
	}{
		{"supervisor", http.StatusNoContent},
		{"Supervisor", http.StatusNoContent},
		{"admin", http.StatusNoContent},
		{"worker", http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tc := range cases {
		token, err := utils.JwtGenerate(3, tc.role)
		assert.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/approve", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, "role %q", tc.role)
	}
}
