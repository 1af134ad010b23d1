package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PlayerHeader carries the acting player in development mode.
const PlayerHeader = "X-Player-ID"

// DefaultIssuer is the iss claim written and expected on player tokens.
const DefaultIssuer = "uno-server"

var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves the acting player of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// HeaderAuthenticator trusts the X-Player-ID header. WebSocket clients that
// cannot set headers may pass player_id as a query parameter instead.
type HeaderAuthenticator struct{}

// Authenticate implements Authenticator.
func (HeaderAuthenticator) Authenticate(r *http.Request) (string, error) {
	playerID := strings.TrimSpace(r.Header.Get(PlayerHeader))
	if playerID == "" {
		playerID = strings.TrimSpace(r.URL.Query().Get("player_id"))
	}
	if playerID == "" {
		return "", fmt.Errorf("%w: %s header is required", ErrUnauthenticated, PlayerHeader)
	}
	return playerID, nil
}

// TokenAuthenticator verifies HS256 bearer tokens whose subject is the
// player ID.
type TokenAuthenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenAuthenticator creates an authenticator for tokens signed with secret.
func NewTokenAuthenticator(secret string) (*TokenAuthenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	return &TokenAuthenticator{secret: []byte(secret), issuer: DefaultIssuer, now: time.Now}, nil
}

// Issue mints a token for playerID valid for ttl.
func (a *TokenAuthenticator) Issue(playerID string, ttl time.Duration) (string, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return "", errors.New("player id is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    a.issuer,
		Subject:   playerID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks a token and returns the player ID it names.
func (a *TokenAuthenticator) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(token), &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, mapJWTError(err))
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return claims.Subject, nil
}

// Authenticate implements Authenticator. The token comes from the
// Authorization header, or the token query parameter for WebSocket upgrades.
func (a *TokenAuthenticator) Authenticate(r *http.Request) (string, error) {
	token := ""
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", fmt.Errorf("%w: expected a bearer token", ErrUnauthenticated)
		}
		token = value
	} else {
		token = r.URL.Query().Get("token")
	}
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: bearer token is required", ErrUnauthenticated)
	}
	return a.Verify(token)
}

func mapJWTError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token is expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "token is not active yet"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "token signature is invalid"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "token issuer is invalid"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "token is malformed"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "token algorithm is not accepted"
	default:
		return "token is invalid"
	}
}
