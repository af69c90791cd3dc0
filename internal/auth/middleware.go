package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"studentadmin/internal/apperr"
)

const identityKey = "identity"

// TokenRequired is the first guard in the pipeline: it extracts the bearer
// token, authenticates it and stores the resulting identity in the request
// context for the guards and handlers that follow. Any failure is terminal.
func TokenRequired(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing or malformed bearer token"})
			return
		}
		id, err := svc.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"success": false, "message": apperr.MessageOf(err)})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// AdminRequired is the second guard: it reads the identity produced by
// TokenRequired and rejects non-admin callers. Routing it without
// TokenRequired first is a programming error.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "authentication required"})
			return
		}
		if err := Authorize(id.Role, RoleAdmin); err != nil {
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"success": false, "message": apperr.MessageOf(err)})
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the authenticated identity set by TokenRequired.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

func bearerToken(header string) (string, bool) {
	if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[len("bearer "):])
	return token, token != ""
}
