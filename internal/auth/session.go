package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for every token that fails verification,
// whatever the cause.
var ErrInvalidToken = errors.New("invalid session token")

// Codec issues and verifies signed session tokens binding a user id.
// Tokens are HS256 JWTs carrying uid, iat and exp.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type sessionClaims struct {
	UID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// NewCodec returns a codec signing with secret; tokens expire after ttl.
func NewCodec(secret []byte, ttl time.Duration) (*Codec, error) {
	if len(secret) < 32 {
		return nil, errors.New("session secret too short")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &Codec{secret: s, ttl: ttl, now: time.Now}, nil
}

// TTL is the lifetime of issued tokens.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue signs a token for uid.
func (c *Codec) Issue(uid int64) (string, error) {
	if uid <= 0 {
		return "", errors.New("invalid user id")
	}
	now := c.now()
	claims := sessionClaims{
		UID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify returns the uid bound by token, or ErrInvalidToken.
func (c *Codec) Verify(token string) (int64, error) {
	if token == "" {
		return 0, ErrInvalidToken
	}
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || claims.UID <= 0 {
		return 0, ErrInvalidToken
	}
	return claims.UID, nil
}
