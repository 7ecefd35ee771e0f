package handlers

import (
	"net/http"
	"strings"

	"anonhost/internal/apperr"
	"anonhost/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	sessionUserKey = "user_id"
	identityKey    = "identity"
	identityErrKey = "identity_error"
)

// credentialFrom collects the session user id and any bearer key from the
// request.
func credentialFrom(c *gin.Context) services.Credential {
	var cred services.Credential

	if auth := c.GetHeader("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			cred.BearerToken = strings.TrimSpace(token)
		}
	}
	if cred.BearerToken == "" {
		cred.BearerToken = strings.TrimSpace(c.GetHeader("X-API-Key"))
	}

	if uid, ok := sessions.Default(c).Get(sessionUserKey).(uint); ok {
		cred.SessionUserID = &uid
	}
	return cred
}

// Identify resolves the caller, if any, without rejecting the request.
func (h *Handler) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := h.svc.Identity.Resolve(c.Request.Context(), credentialFrom(c))
		if err != nil {
			c.Set(identityErrKey, err)
		} else {
			c.Set(identityKey, id)
		}
		c.Next()
	}
}

func currentIdentity(c *gin.Context) (services.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return services.Identity{}, false
	}
	id, ok := v.(services.Identity)
	return id, ok
}

// AuthRequired accepts a session or an API key.
func (h *Handler) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := currentIdentity(c); ok {
			c.Next()
			return
		}
		if v, ok := c.Get(identityErrKey); ok {
			if err, ok := v.(error); ok {
				h.respondError(c, err)
				return
			}
		}
		h.respondError(c, apperr.ErrUnauthenticated)
	}
}

// SessionRequired rejects API-key callers.
func (h *Handler) SessionRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := currentIdentity(c)
		if !ok || id.Method != services.MethodSession {
			h.respondError(c, apperr.ErrUnauthenticated)
			return
		}
		c.Next()
	}
}

func (h *Handler) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := currentIdentity(c)
		if !ok || id.Method != services.MethodSession {
			h.respondError(c, apperr.ErrUnauthenticated)
			return
		}
		if !id.Admin {
			h.respondError(c, apperr.ErrForbidden)
			return
		}
		c.Next()
	}
}

// RateLimitMiddleware picks the authenticated or anonymous bucket for the
// client IP. It must run after Identify.
func (h *Handler) RateLimitMiddleware(authenticated, anonymous *services.IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := anonymous
		if _, ok := currentIdentity(c); ok {
			limiter = authenticated
		}
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}
		c.Next()
	}
}
