package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "smcp-broker"

// TokenClaims is the registered-claims shape an SMCP bearer token
// carries; Subject identifies the connecting peer by name.
type TokenClaims struct {
	jwt.RegisteredClaims
}

// bearerAuthRequest is the shape Authenticate expects in authData when
// a caller opts into bearer-token auth instead of bare headers.
type bearerAuthRequest struct {
	Token string `json:"token"`
}

// TokenAuthenticator is an optional broker.Authenticator that gates
// connections on a signed bearer token instead of accepting every
// caller. It generalizes the teacher's JWTManager (which issued/validated
// session-id JWTs for mcp-go's own server.SessionIdManager) to SMCP's
// connect-time gate: one signing key, one issue/validate pair, no
// mcp-go-specific session-id semantics.
type TokenAuthenticator struct {
	signingKey []byte
	duration   time.Duration
	logger     *slog.Logger
}

// NewTokenAuthenticator builds a TokenAuthenticator. duration defaults
// to 24h when zero.
func NewTokenAuthenticator(signingKey string, duration time.Duration, logger *slog.Logger) (*TokenAuthenticator, error) {
	if signingKey == "" {
		return nil, fmt.Errorf("session: no signing key provided")
	}
	if duration <= 0 {
		duration = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenAuthenticator{signingKey: []byte(signingKey), duration: duration, logger: logger}, nil
}

// Issue mints a bearer token identifying subject (an agent or computer
// name), valid for the authenticator's configured duration.
func (a *TokenAuthenticator) Issue(subject string) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.duration)),
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenIssuer},
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.signingKey)
}

// Authenticate implements broker.Authenticator: it accepts a bearer
// token either in the Authorization header or in authData's "token"
// field, and rejects the connection if missing, expired, or badly
// signed.
func (a *TokenAuthenticator) Authenticate(ctx context.Context, headers http.Header, authData json.RawMessage) error {
	tokenValue := bearerFromHeader(headers)
	if tokenValue == "" && len(authData) > 0 {
		var req bearerAuthRequest
		if err := json.Unmarshal(authData, &req); err == nil {
			tokenValue = req.Token
		}
	}
	if tokenValue == "" {
		return fmt.Errorf("session: no bearer token provided")
	}

	token, err := jwt.ParseWithClaims(tokenValue, &TokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil {
		a.logger.Warn("rejecting connection with invalid token", "error", err)
		return fmt.Errorf("session: invalid token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("session: token not valid")
	}
	return nil
}

func bearerFromHeader(headers http.Header) string {
	if headers == nil {
		return ""
	}
	const prefix = "Bearer "
	auth := headers.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}
