package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	authdomain "github.com/dodamlabs/dodam/internal/auth/domain"
)

const (
	contextUserKey   = "auth_user"
	contextSessionID = "auth_session_id"

	unauthorizedRedirectTo = "/login?error=UNAUTHORIZED"
)

// AuthRequired guards API routes: a missing or invalid session aborts with
// 401 through the error middleware.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, sessionID, err := s.resolveSessionUser(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserKey, user)
		c.Set(contextSessionID, sessionID)
		c.Next()
	}
}

// RequireAuth guards page routes: unauthenticated browsers are sent back to
// the login page instead of receiving a JSON error.
func (s *Server) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, sessionID, err := s.resolveSessionUser(c)
		if err != nil {
			s.sessions.ClearSession(c)
			c.Redirect(http.StatusFound, unauthorizedRedirectTo)
			c.Abort()
			return
		}

		c.Set(contextUserKey, user)
		c.Set(contextSessionID, sessionID)
		c.Next()
	}
}

func (s *Server) resolveSessionUser(c *gin.Context) (*authdomain.User, string, error) {
	sessionID, ok := s.sessions.ReadSessionID(c)
	if !ok {
		return nil, "", ErrUnauthorized
	}

	user, err := s.authsvc.SessionUser(c.Request.Context(), sessionID)
	if err != nil {
		return nil, "", err
	}
	return user, sessionID, nil
}

// currentUser returns the user placed on the context by one of the guards.
func currentUser(c *gin.Context) (*authdomain.User, bool) {
	value, ok := c.Get(contextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*authdomain.User)
	return user, ok
}

func currentSessionID(c *gin.Context) (string, bool) {
	value, ok := c.Get(contextSessionID)
	if !ok {
		return "", false
	}
	id, ok := value.(string)
	return id, ok
}

// redirectIfLoggedIn sends already-authenticated browsers from the login
// page to the app root.
func (s *Server) redirectIfLoggedIn() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := s.resolveSessionUser(c); err == nil {
			c.Redirect(http.StatusFound, "/")
			c.Abort()
			return
		}
		c.Next()
	}
}
