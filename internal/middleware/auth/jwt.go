// Package auth guards the operator routes with HMAC signed bearer tokens.
package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var errNoUser = errors.New("no authenticated user in context")

// AuthUser is the operator a token was issued to.
type AuthUser struct {
	Subject string   `json:"sub"`
	Email   string   `json:"email"`
	Roles   []string `json:"roles"`
}

// HasRole reports whether the user holds any of roles.
func (u *AuthUser) HasRole(roles ...string) bool {
	for _, want := range roles {
		if slices.Contains(u.Roles, want) {
			return true
		}
	}
	return false
}

// operatorClaims accepts either a single "role" or a "roles" list.
type operatorClaims struct {
	Email string   `json:"email"`
	Role  string   `json:"role"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

func (c *operatorClaims) user() *AuthUser {
	roles := slices.Clone(c.Roles)
	if c.Role != "" {
		roles = append([]string{c.Role}, roles...)
	}
	return &AuthUser{Subject: c.Subject, Email: c.Email, Roles: roles}
}

type contextKey struct{}

// JWTConfig holds the configuration for JWT middleware
type JWTConfig struct {
	Secret    string
	Logger    *zap.Logger
	SkipPaths []string
}

func reject(c echo.Context, status int, code, message string) error {
	return c.JSON(status, echo.Map{"error": message, "code": code})
}

// JWTMiddleware validates HMAC signed bearer tokens and stores the
// operator on the request context.
func JWTMiddleware(config JWTConfig) echo.MiddlewareFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	keyFunc := func(*jwt.Token) (interface{}, error) {
		return []byte(config.Secret), nil
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			for _, skip := range config.SkipPaths {
				if strings.HasPrefix(path, skip) {
					return next(c)
				}
			}

			header := req.Header.Get(echo.HeaderAuthorization)
			if header == "" {
				config.Logger.Warn("Missing authorization header",
					zap.String("path", path),
					zap.String("method", req.Method))
				return reject(c, http.StatusUnauthorized, "MISSING_AUTH_HEADER", "Authorization header required")
			}

			raw, found := strings.CutPrefix(header, "Bearer ")
			if !found {
				return reject(c, http.StatusUnauthorized, "INVALID_AUTH_FORMAT",
					"Invalid authorization header format. Expected: Bearer <token>")
			}

			claims := &operatorClaims{}
			if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
				config.Logger.Warn("JWT validation failed",
					zap.Error(err),
					zap.String("path", path))
				return reject(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			}
			if claims.Subject == "" {
				return reject(c, http.StatusUnauthorized, "INVALID_CLAIMS", "Token has no subject")
			}

			user := claims.user()
			c.SetRequest(req.WithContext(context.WithValue(req.Context(), contextKey{}, user)))
			c.Set("user_id", user.Subject)

			config.Logger.Debug("Operator authenticated",
				zap.String("sub", user.Subject),
				zap.Strings("roles", user.Roles))

			return next(c)
		}
	}
}

// RequireRole rejects authenticated callers holding none of roles. It must
// run after JWTMiddleware.
func RequireRole(logger *zap.Logger, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := GetUserFromContext(c)
			if err != nil {
				return reject(c, http.StatusUnauthorized, "AUTH_REQUIRED", "Authentication required")
			}
			if !user.HasRole(roles...) {
				logger.Warn("Role required",
					zap.String("sub", user.Subject),
					zap.Strings("have", user.Roles),
					zap.Strings("want", roles))
				return reject(c, http.StatusForbidden, "FORBIDDEN", "Insufficient role")
			}
			return next(c)
		}
	}
}

// GetUserFromContext returns the operator stored by JWTMiddleware.
func GetUserFromContext(c echo.Context) (*AuthUser, error) {
	user, ok := c.Request().Context().Value(contextKey{}).(*AuthUser)
	if !ok || user == nil {
		return nil, errNoUser
	}
	return user, nil
}
