package server

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	authdomain "github.com/dodamlabs/dodam/internal/auth/domain"
)

type userView struct {
	UserID      string  `json:"user_id"`
	Provider    string  `json:"provider"`
	Email       *string `json:"email"`
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
	IsAdmin     bool    `json:"is_admin"`
}

func newUserView(user *authdomain.User) userView {
	return userView{
		UserID:      user.ID.String(),
		Provider:    user.Provider,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		AvatarURL:   user.AvatarURL,
		IsAdmin:     user.IsAdmin,
	}
}

func (s *Server) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, newUserView(user))
}

// Logout revokes the current session. It is idempotent: a missing, expired
// or already revoked session still clears the cookie and returns 204. The
// cookie is cleared even when revocation fails, so the browser never keeps
// a session the user asked to end.
func (s *Server) Logout(c *gin.Context) {
	sessionID, ok := s.sessions.ReadSessionID(c)
	s.sessions.ClearSession(c)

	if ok {
		if err := s.authsvc.RevokeSession(c.Request.Context(), sessionID); err != nil {
			AbortWithError(c, err)
			return
		}
		s.obsMetrics.RecordSessionEnded(c.Request.Context(), "logout")
	}

	c.Status(http.StatusNoContent)
}

type extendSessionRequest struct {
	Hours int `json:"hours"`
}

// ExtendSession slides the current session's expiry forward and refreshes
// the cookie to match.
func (s *Server) ExtendSession(c *gin.Context) {
	sessionID, ok := currentSessionID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req extendSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}
	if req.Hours < 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	extension := time.Duration(req.Hours) * time.Hour
	session, err := s.authsvc.ExtendSession(c.Request.Context(), sessionID, extension)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.SetSession(c, session.ID, session.ExpiresAt)
	c.JSON(http.StatusOK, gin.H{
		"expires_at": session.ExpiresAt,
	})
}

type authProviderInfo struct {
	Name      string `json:"name"`
	LoginPath string `json:"login_path"`
}

// AuthProviders enumerates the providers the login page can offer.
func (s *Server) AuthProviders(c *gin.Context) {
	providers := make([]authProviderInfo, 0, len(s.registry.Active))
	for provider := range s.registry.Active {
		name := provider.String()
		providers = append(providers, authProviderInfo{
			Name:      name,
			LoginPath: "/login/" + url.PathEscape(name),
		})
	}
	sort.Slice(providers, func(i, j int) bool {
		return strings.ToLower(providers[i].Name) < strings.ToLower(providers[j].Name)
	})

	c.JSON(http.StatusOK, gin.H{
		"providers": providers,
	})
}
