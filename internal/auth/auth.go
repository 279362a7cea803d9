package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for any token that does not validate: bad
// signature, wrong algorithm, expired, or malformed.
var ErrInvalidToken = errors.New("invalid or expired token")

// Principal is the identity carried by a validated token.
type Principal struct {
	Name      string
	TokenID   string
	ExpiresAt time.Time
}

// Claims are the JWT claims issued at login. User duplicates the subject
// for clients that read it directly.
type Claims struct {
	User string `json:"user"`
	jwt.RegisteredClaims
}

// Issuer signs and validates HS256 bearer tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer. Tokens are valid for ttl after issue.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue returns a signed token for principal and its expiry.
func (i *Issuer) Issue(principal string) (string, time.Time, error) {
	if principal == "" {
		return "", time.Time{}, errors.New("issuing token: empty principal")
	}

	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := Claims{
		User: principal,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   principal,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses token and returns its principal. Every failure is
// reported as ErrInvalidToken wrapping the parser's reason.
func (i *Issuer) Validate(token string) (*Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	name := claims.Subject
	if name == "" {
		name = claims.User
	}
	if name == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	p := &Principal{Name: name, TokenID: claims.ID}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}
