package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"alcyxob/attachment-offload/internal/domain"
	"alcyxob/attachment-offload/internal/logging"
	"alcyxob/attachment-offload/internal/repository"
	"alcyxob/attachment-offload/internal/service"
	"alcyxob/attachment-offload/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

// Constants for context keys
const (
	ContextUserIDKey   = "userID"
	ContextUserRoleKey = "userRole"
)

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, http.StatusUnauthorized, "Authorization header is missing")
			return
		}

		// Expecting "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			abortWithError(c, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
			return
		}

		claims := &service.Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(jwtSecret), nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				abortWithError(c, http.StatusUnauthorized, "Token has expired")
			} else {
				abortWithError(c, http.StatusUnauthorized, fmt.Sprintf("Invalid token: %v", err))
			}
			return
		}

		if !token.Valid || claims.UserID == "" || claims.Role == "" {
			abortWithError(c, http.StatusUnauthorized, "Invalid token or missing claims")
			return
		}
		if claims.ExpiresAt == nil || claims.ExpiresAt.Time.Before(time.Now()) {
			abortWithError(c, http.StatusUnauthorized, "Token has expired (claim check)")
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUserRoleKey, claims.Role)
		c.Next()
	}
}

// Helper to return JSON error response and abort request
func abortWithError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"error": message})
}

// abortWithServiceError maps storage and service errors to a status code.
func abortWithServiceError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	message := "An unexpected error occurred"

	switch {
	case errors.Is(err, service.ErrValidationFailed):
		code, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrAttachmentNotFound),
		errors.Is(err, service.ErrConfigNotFound),
		errors.Is(err, service.ErrRemoteURLUnavailable),
		errors.Is(err, storage.ErrRemoteNotFound),
		errors.Is(err, repository.ErrNotFound):
		code, message = http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrConfigNameTaken):
		code, message = http.StatusConflict, err.Error()
	case errors.Is(err, storage.ErrNoActiveConfig):
		code, message = http.StatusInternalServerError, "No active remote storage configuration"
	case errors.Is(err, storage.ErrAuthFailure):
		code, message = http.StatusBadGateway, "Remote storage rejected the credentials"
	case errors.Is(err, storage.ErrTransientNetwork):
		code, message = http.StatusBadGateway, "Remote storage is temporarily unreachable"
	}

	if code >= http.StatusInternalServerError || code == http.StatusBadGateway {
		logging.WithContext(c.Request.Context()).Error("request failed",
			zap.String("path", c.FullPath()), zap.String("kind", storage.KindName(err)), zap.Error(err))
	}
	abortWithError(c, code, message)
}

// RoleMiddleware creates middleware to check if user has the required role(s).
// Must run AFTER AuthMiddleware.
func RoleMiddleware(allowedRoles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, err := getUserRoleFromContext(c)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, err.Error())
			return
		}

		for _, allowedRole := range allowedRoles {
			if userRole == allowedRole {
				c.Next()
				return
			}
		}
		abortWithError(c, http.StatusForbidden, fmt.Sprintf("Access denied: Role '%s' does not have permission", userRole))
	}
}

// Helper function to get User ID from context (used by handlers)
func getUserIDFromContext(c *gin.Context) (string, error) {
	idRaw, exists := c.Get(ContextUserIDKey)
	if !exists {
		return "", errors.New("user ID not found in context")
	}
	idStr, ok := idRaw.(string)
	if !ok {
		return "", errors.New("invalid user ID type in context")
	}
	return idStr, nil
}

// Helper function to get User Role from context (used by handlers)
func getUserRoleFromContext(c *gin.Context) (domain.Role, error) {
	roleRaw, exists := c.Get(ContextUserRoleKey)
	if !exists {
		return "", errors.New("user role not found in context")
	}
	role, ok := roleRaw.(domain.Role)
	if !ok {
		return "", errors.New("invalid user role type in context")
	}
	return role, nil
}
