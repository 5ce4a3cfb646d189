package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 24 * time.Hour

	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the payload of both token kinds. Refresh tokens carry only the
// user id; email and role are left empty.
type Claims struct {
	UserID int64  `json:"id"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role,omitempty"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
}

func (s *TokenService) WithTTL(accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL > 0 {
		s.accessTTL = accessTTL
	}
	if refreshTTL > 0 {
		s.refreshTTL = refreshTTL
	}
	return s
}

func (s *TokenService) IssueAccessToken(user User) (string, error) {
	return s.sign(Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		Type:   TokenTypeAccess,
	}, s.accessTTL)
}

func (s *TokenService) IssueRefreshToken(user User) (string, error) {
	return s.sign(Claims{
		UserID: user.ID,
		Type:   TokenTypeRefresh,
	}, s.refreshTTL)
}

// Verify checks signature, algorithm and expiry and returns the decoded
// claims. It does not look at the revocation registry.
func (s *TokenService) Verify(rawToken string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(rawToken, &claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	return claims, nil
}

func (s *TokenService) sign(claims Claims, ttl time.Duration) (string, error) {
	jti, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}

	now := s.now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        jti.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}

	return encoded, nil
}
