package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"contacts-api/internal/domain"
	"contacts-api/internal/service"
)

const currentUserKey = "current_user"

// JWTAuthMiddleware resuelve el usuario del access token y lo guarda en el
// contexto. Token inválido, expirado, con scope equivocado o sin usuario
// responden todos el mismo 401.
func JWTAuthMiddleware(authServ *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		user, err := authServ.CurrentUser(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
			c.Abort()
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

// GetCurrentUser obtiene el usuario autenticado desde el contexto.
func GetCurrentUser(c *gin.Context) (domain.User, bool) {
	val, ok := c.Get(currentUserKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := val.(domain.User)
	return user, ok
}
