package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admissions-api/internal/middleware"
	"github.com/noah-isme/admissions-api/internal/models"
)

// actorFrom is the caller identity handed to every service operation.
func actorFrom(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentUser(c)
}

// param returns a trimmed path parameter.
func param(c *gin.Context, name string) string {
	return strings.TrimSpace(c.Param(name))
}
