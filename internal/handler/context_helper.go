package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/academy-hq/academy-api/internal/middleware"
	"github.com/academy-hq/academy-api/internal/models"
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

func actorFromContext(c *gin.Context) models.JWTClaims {
	if claims := claimsFromContext(c); claims != nil {
		return *claims
	}
	return models.JWTClaims{}
}

// listParams reads the shared pagination and sorting query params.
func listParams(c *gin.Context) (page, size int, sortBy, sortOrder string) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, size, c.Query("sort"), c.Query("order")
}

func paginationOf(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}

func boolQuery(c *gin.Context, name string) *bool {
	switch strings.ToLower(c.Query(name)) {
	case "true":
		v := true
		return &v
	case "false":
		v := false
		return &v
	default:
		return nil
	}
}
