// Package auth verifies the signed tokens issued by the account service and
// turns them into the Identity attached to a realtime connection.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSubject    = errors.New("token carries no user id")
)

// Identity is the authenticated user behind a connection. It is immutable
// for the lifetime of the connection.
type Identity struct {
	UserID      string `json:"userId"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
}

// Claims mirrors the payload the account service signs at login.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string `json:"userId,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
}

type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		})),
	}
}

// Authenticate verifies signature and expiry of raw and returns the identity
// it carries.
func (a *Authenticator) Authenticate(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, ErrMissingToken
	}

	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return Identity{}, ErrNoSubject
	}

	return Identity{
		UserID:      userID,
		FirstName:   claims.FirstName,
		LastName:    claims.LastName,
		DisplayName: DisplayName(claims.FirstName, claims.LastName),
		Avatar:      claims.Avatar,
	}, nil
}

// DisplayName renders "first last" without stray spaces.
func DisplayName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
