package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/skilltrack/competency-api/internal/models"
)

func performWithClaims(t *testing.T, handler gin.HandlerFunc, claims *models.JWTClaims) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if claims != nil {
		c.Set(ContextUserKey, claims)
	}
	handler(c)
	if !c.IsAborted() {
		c.Status(http.StatusOK)
	}
	return recorder
}

func TestPermissionAllows(t *testing.T) {
	handler := Permission(models.ModuleCompetencies, models.ActionList)
	recorder := performWithClaims(t, handler, &models.JWTClaims{UserID: "u1", Role: models.RoleLearner})
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestPermissionDenies(t *testing.T) {
	handler := Permission(models.ModuleCompetencies, models.ActionDelete)
	recorder := performWithClaims(t, handler, &models.JWTClaims{UserID: "u1", Role: models.RoleLearner})
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestPermissionAdminBypassesMatrix(t *testing.T) {
	handler := Permission(models.ModuleActivityLog, models.ActionList)
	recorder := performWithClaims(t, handler, &models.JWTClaims{UserID: "u1", Role: models.RoleAdmin})
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestPermissionRequiresClaims(t *testing.T) {
	handler := Permission(models.ModuleCompetencies, models.ActionList)
	recorder := performWithClaims(t, handler, nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestRequireRoles(t *testing.T) {
	handler := RequireRoles(models.RoleAdmin, models.RoleStaff)

	recorder := performWithClaims(t, handler, &models.JWTClaims{UserID: "u1", Role: models.RoleStaff})
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = performWithClaims(t, handler, &models.JWTClaims{UserID: "u1", Role: models.RoleTrainer})
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}
