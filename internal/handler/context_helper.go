package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skilltrack/competency-api/internal/middleware"
	"github.com/skilltrack/competency-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func pageParams(c *gin.Context) (int, int) {
	page := queryInt(c, "page", 1)
	size := queryInt(c, "limit", 20)
	return page, size
}

func queryInt(c *gin.Context, key string, fallback int) int {
	value, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return value
}
