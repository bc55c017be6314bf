package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"workspace-auth/internal/config"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims is either AccessClaims or RefreshClaims.
type Claims interface {
	isClaims()
}

type AccessClaims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

type RefreshClaims struct {
	Subject   string
	JTI       string
	ExpiresAt time.Time
}

func (AccessClaims) isClaims()  {}
func (RefreshClaims) isClaims() {}

type tokenClaims struct {
	jwt.RegisteredClaims
	Type  string `json:"type,omitempty"`
	Email string `json:"email,omitempty"`
}

// TokenCodec signs and verifies HS256 tokens with a single server secret.
type TokenCodec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenCodec(cfg config.Config) *TokenCodec {
	return &TokenCodec{
		secret:     []byte(cfg.JWTSecret),
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		now:        time.Now,
	}
}

func (c *TokenCodec) IssueAccess(user User) (string, error) {
	now := c.now().UTC()
	return c.sign(tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		},
		Type:  tokenTypeAccess,
		Email: user.Email,
	})
}

// IssueRefresh returns the signed token and its freshly generated jti.
func (c *TokenCodec) IssueRefresh(userID string) (string, RefreshClaims, error) {
	jti, err := uuid.NewRandom()
	if err != nil {
		return "", RefreshClaims{}, fmt.Errorf("generate jti: %w", err)
	}

	now := c.now().UTC()
	claims := RefreshClaims{
		Subject:   userID,
		JTI:       jti.String(),
		ExpiresAt: now.Add(c.refreshTTL).Truncate(time.Second),
	}

	token, err := c.sign(tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        claims.JTI,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
		Type: tokenTypeRefresh,
	})
	if err != nil {
		return "", RefreshClaims{}, err
	}

	return token, claims, nil
}

func (c *TokenCodec) sign(claims tokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return encoded, nil
}

// Decode verifies signature and expiry together. Every failure matches
// ErrInvalidToken; a correctly signed but expired token also matches
// errTokenExpired and still yields its claims.
func (c *TokenCodec) Decode(raw string) (Claims, error) {
	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	expired := false
	if err != nil {
		if !errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrInvalidToken
		}
		expired = true
	}

	claims, err := parsed.toClaims()
	if err != nil {
		return nil, err
	}
	if expired {
		return claims, errors.Join(ErrInvalidToken, errTokenExpired)
	}

	return claims, nil
}

func (t tokenClaims) toClaims() (Claims, error) {
	if t.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}

	switch t.Type {
	// Tokens minted before the type claim existed are treated as access tokens.
	case tokenTypeAccess, "":
		return AccessClaims{
			Subject:   t.Subject,
			Email:     t.Email,
			ExpiresAt: t.ExpiresAt.Time,
		}, nil
	case tokenTypeRefresh:
		if t.ID == "" {
			return nil, ErrInvalidToken
		}
		return RefreshClaims{
			Subject:   t.Subject,
			JTI:       t.ID,
			ExpiresAt: t.ExpiresAt.Time,
		}, nil
	default:
		return nil, ErrInvalidToken
	}
}
