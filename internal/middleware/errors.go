package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/studiobook/backend/pkg/response"
)

func abortUnauthenticated(c *gin.Context) {
	response.Unauthorized(c, "authentication required")
	c.Abort()
}

func abortMissingTenant(c *gin.Context) {
	response.Forbidden(c, "no organization selected")
	c.Abort()
}

func abortInsufficientRole(c *gin.Context) {
	response.Forbidden(c, "insufficient role")
	c.Abort()
}
