package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is the iss claim of session cookie tokens.
const Issuer = "portal"

// ErrInvalidToken is returned for a session token that fails verification.
var ErrInvalidToken = errors.New("invalid session token")

type sessionClaims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies the browser session cookie. The token carries
// only the session id; identity lives with the session manager.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens builds an HS256 signer.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is the lifetime of issued tokens.
func (t *Tokens) TTL() time.Duration { return t.ttl }

// NewSession allocates a session id and its signed token.
func (t *Tokens) NewSession() (sid, token string, exp time.Time, err error) {
	sid = uuid.NewString()
	token, exp, err = t.Issue(sid)
	return sid, token, exp, err
}

// Issue signs a token for sid.
func (t *Tokens) Issue(sid string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := sessionClaims{
		SID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse verifies token and returns its session id.
func (t *Tokens) Parse(token string) (string, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, err := uuid.Parse(claims.SID); err != nil {
		return "", fmt.Errorf("%w: bad sid", ErrInvalidToken)
	}
	return claims.SID, nil
}
