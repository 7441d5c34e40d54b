package identity

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const sessionCookieName = "session-token"

// AppClaims defines our custom JWT claims structure. The registered
// subject carries the numeric user id.
type AppClaims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// TokenProvider authenticates requests with an HMAC-signed JWT, taken from
// the session cookie or, failing that, a bearer Authorization header.
type TokenProvider struct {
	secret []byte
	logger *slog.Logger
}

func NewTokenProvider(logger *slog.Logger, secret string) *TokenProvider {
	return &TokenProvider{
		secret: []byte(secret),
		logger: logger.With(slog.String("component", "identity_jwt")),
	}
}

var _ Provider = (*TokenProvider)(nil)

func (p *TokenProvider) Resolve(r *http.Request) (User, bool) {
	tokenString := tokenFromRequest(r)
	if tokenString == "" {
		return User{}, false
	}

	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		p.logger.Warn("Invalid JWT token presented", slog.Any("error", err))
		return User{}, false
	}

	claims, ok := token.Claims.(*AppClaims)
	if !ok || claims.Subject == "" {
		p.logger.Warn("Valid token missing 'sub' claim")
		return User{}, false
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		p.logger.Warn("Token 'sub' claim is not a user id", slog.String("sub", claims.Subject))
		return User{}, false
	}

	return User{ID: userID, Username: claims.Username}, true
}

func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// SignToken mints a token the provider will accept. Used by tests and
// local tooling; production tokens come from the account service.
func SignToken(secret string, user User) (string, error) {
	claims := AppClaims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: strconv.FormatInt(user.ID, 10),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
