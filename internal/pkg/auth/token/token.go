/*
Package token implements the bearer-token capability handed out at login.

A token designates exactly one user id. IDIssuer keeps the historical scheme in which
the token is the id itself, so anyone holding an id can act as that user for as long
as the record exists. SignedIssuer wraps the id in an HS256 JWT; it still never expires
but cannot be forged from a bare id.
*/
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

// TokenIssuer identifies the issuer of signed tokens.
const TokenIssuer = "chatdir"

// ErrInvalidToken is returned when a token does not designate any subject.
var ErrInvalidToken = errors.New("invalid bearer token")

// Issuer turns user ids into bearer tokens and back.
type Issuer interface {
	// Issue returns the bearer token for userID.
	Issue(userID string) (string, error)

	// Subject returns the user id designated by tokenString.
	Subject(tokenString string) (string, error)
}

// IDIssuer issues the user id itself as the bearer token.
type IDIssuer struct{}

// Issue returns userID unchanged.
func (IDIssuer) Issue(userID string) (string, error) {
	if userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}

// Subject returns tokenString unchanged.
func (IDIssuer) Subject(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}
	return tokenString, nil
}

// SignedIssuer issues HS256 JWTs whose subject is the user id.
type SignedIssuer struct {
	secret []byte
	now    func() time.Time
}

// NewSignedIssuer returns a SignedIssuer using secretKey for HMAC signing.
func NewSignedIssuer(secretKey string) (*SignedIssuer, error) {
	if secretKey == "" {
		return nil, errors.New("token secret must not be empty")
	}
	return &SignedIssuer{secret: []byte(secretKey), now: time.Now}, nil
}

// Issue creates and signs a token for userID.
func (s *SignedIssuer) Issue(userID string) (string, error) {
	if userID == "" {
		return "", ErrInvalidToken
	}

	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:  userID,
			IssuedAt: s.now().Unix(),
			Issuer:   TokenIssuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Subject validates tokenString and returns its subject.
func (s *SignedIssuer) Subject(tokenString string) (string, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}

	if !parsed.Valid || claims.Subject == "" || claims.Issuer != TokenIssuer {
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}
