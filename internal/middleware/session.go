package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/lllypuk/userdesk/internal/session"
)

// SessionKey is the context key for the browser session.
const SessionKey = "session"

// SessionResolver finds or creates the session for a cookie value.
type SessionResolver interface {
	Resolve(id string) (*session.Session, bool)
}

// SessionConfig holds configuration for the session middleware.
type SessionConfig struct {
	Resolver   SessionResolver
	CookieName string
	Secure     bool
	SkipPaths  []string
	// SkipPrefixes skips every path under these prefixes, such as static assets.
	SkipPrefixes []string
}

// Session attaches the browser's session to the request, issuing a cookie
// when the browser has none or its session expired.
func Session(config SessionConfig) echo.MiddlewareFunc {
	skipPaths := make(map[string]struct{}, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipPaths[path] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if _, ok := skipPaths[path]; ok {
				return next(c)
			}
			for _, prefix := range config.SkipPrefixes {
				if strings.HasPrefix(path, prefix) {
					return next(c)
				}
			}

			var id string
			if cookie, err := c.Cookie(config.CookieName); err == nil {
				id = cookie.Value
			}

			s, created := config.Resolver.Resolve(id)
			if created {
				c.SetCookie(&http.Cookie{
					Name:     config.CookieName,
					Value:    s.ID,
					Path:     "/",
					HttpOnly: true,
					Secure:   config.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			c.Set(SessionKey, s)
			return next(c)
		}
	}
}

// GetSession returns the session attached by the Session middleware, or nil.
func GetSession(c echo.Context) *session.Session {
	if s, ok := c.Get(SessionKey).(*session.Session); ok {
		return s
	}
	return nil
}

// GetSessionID returns the current session ID, or "" outside a session.
func GetSessionID(c echo.Context) string {
	if s := GetSession(c); s != nil {
		return s.ID
	}
	return ""
}
