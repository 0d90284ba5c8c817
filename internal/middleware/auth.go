package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"korner-support-service/internal/apierror"
	"korner-support-service/internal/config"
)

const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// UserIDClaim accepts userId both as a JSON number and as a numeric string.
type UserIDClaim int64

func (u *UserIDClaim) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*u = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("userId: %w", err)
	}
	*u = UserIDClaim(n)
	return nil
}

type Claims struct {
	UserID UserIDClaim `json:"userId"`
	Email  string      `json:"email,omitempty"`
	Role   string      `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Auth struct {
	secret []byte
	parser *jwt.Parser
}

func NewAuth(cfg config.JWTConfig) *Auth {
	return &Auth{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(
			jwt.WithLeeway(cfg.Leeway),
			jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		),
	}
}

// Required rejects requests without a valid access token.
func (a *Auth) Required() gin.HandlerFunc {
	return a.handler(true)
}

// Optional lets guests through; a token that is present must still be valid.
func (a *Auth) Optional() gin.HandlerFunc {
	return a.handler(false)
}

func (a *Auth) handler(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		// preflight не трогаем
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		tokenStr, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			if required {
				abortWithError(c, apierror.New(apierror.AuthTokenRequired, "Authorization token required"))
				return
			}
			c.Next()
			return
		}

		claims, apiErr := a.parse(tokenStr)
		if apiErr != nil {
			abortWithError(c, apiErr)
			return
		}

		c.Set(CtxUserID, int64(claims.UserID))
		if claims.Role != "" {
			c.Set(CtxRole, claims.Role)
		}
		c.Next()
	}
}

func (a *Auth) parse(tokenStr string) (*Claims, *apierror.APIError) {
	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// принимаем только HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return a.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, apierror.New(apierror.TokenExpired, "Token has expired")
	case err != nil:
		return nil, apierror.New(apierror.InvalidAccessToken, "Invalid token")
	case claims.UserID <= 0:
		return nil, apierror.New(apierror.InvalidAccessToken, "Invalid token payload")
	}
	return claims, nil
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	tokenStr := strings.TrimSpace(parts[1])
	return tokenStr, tokenStr != ""
}

// IssueToken signs an HS256 access token. Used by tests and the token CLI.
func IssueToken(secret string, userID int64, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: UserIDClaim(userID),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// UserID returns the authenticated user, if any.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}

// UserIDPtr is UserID shaped for services that accept guests.
func UserIDPtr(c *gin.Context) *int64 {
	if id, ok := UserID(c); ok {
		return &id
	}
	return nil
}

func Role(c *gin.Context) string {
	return c.GetString(CtxRole)
}

func abortWithError(c *gin.Context, err *apierror.APIError) {
	c.AbortWithStatusJSON(err.Status(), gin.H{"error": err})
}
