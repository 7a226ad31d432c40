package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/kerane/projectdesk-api/internal/middleware"
	"github.com/kerane/projectdesk-api/internal/models"
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

func actorFromContext(c *gin.Context) models.UserSnapshot {
	claims := claimsFromContext(c)
	if claims == nil {
		return models.UserSnapshot{}
	}
	return models.UserSnapshot{
		ID:    claims.UserID,
		Name:  claims.Name,
		Email: claims.Email,
		Role:  claims.Role,
	}
}
