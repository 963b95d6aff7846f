package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/placementcell/placement-api/internal/middleware"
	"github.com/placementcell/placement-api/internal/models"
	"github.com/placementcell/placement-api/internal/service"
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

// actorFromContext builds the service-facing actor from the verified claims
// plus the request attributes recorded on audit events.
func actorFromContext(c *gin.Context) service.Actor {
	actor := service.Actor{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if claims := claimsFromContext(c); claims != nil {
		actor.ID = claims.UserID
		actor.Role = claims.Role
		actor.Department = claims.Department
	}
	return actor
}
