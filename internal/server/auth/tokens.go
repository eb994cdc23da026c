// Package auth contains the stateless crypto pieces of the service: the
// typed JWT codec and bcrypt password hashing.
package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/avoronov/jwt-auth/internal/common"
)

// TokenType discriminates access tokens from refresh tokens inside the
// signed payload. With a single shared secret the discriminator is the only
// thing preventing an access token from being replayed as a refresh token.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the signed token payload: registered sub/iat/exp plus the
// token_type discriminator.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
}

// UserID returns the numeric subject carried by the token.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, common.ErrInvalidToken
	}
	return id, nil
}

// TokenIssuer mints HS256-signed access and refresh tokens for a subject.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenIssuer(secret []byte, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

func (i *TokenIssuer) GenerateAccessToken(userID int64) (string, error) {
	return i.generate(userID, TokenTypeAccess, i.accessTTL)
}

func (i *TokenIssuer) GenerateRefreshToken(userID int64) (string, error) {
	return i.generate(userID, TokenTypeRefresh, i.refreshTTL)
}

func (i *TokenIssuer) generate(userID int64, tokenType TokenType, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenType: tokenType,
	})

	return token.SignedString(i.secret)
}

// TokenValidator checks signature, expiry and the token_type discriminator.
type TokenValidator struct {
	secret []byte
}

func NewTokenValidator(secret []byte) *TokenValidator {
	return &TokenValidator{secret: secret}
}

func (v *TokenValidator) ValidateAccessToken(tokenString string) (*Claims, error) {
	return v.validate(tokenString, TokenTypeAccess)
}

func (v *TokenValidator) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return v.validate(tokenString, TokenTypeRefresh)
}

func (v *TokenValidator) validate(tokenString string, expected TokenType) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.TokenType != expected {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
