package jwt

import (
	"errors"
	"fmt"
	"time"

	"medicare_service/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthorized = errors.New("unauthorized")

type Claims struct {
	UserID int64       `json:"uid"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

func NewToken(account models.Account, secret string, ttl time.Duration) (string, error) {
	const op = "jwt.NewToken"

	now := time.Now()

	claims := Claims{
		UserID: account.ID,
		Role:   account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%s:%d", account.Role, account.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

// ParseToken reports every failure as ErrUnauthorized, wrapping the cause.
func ParseToken(raw, secret string) (*Claims, error) {
	const op = "jwt.ParseToken"

	if raw == "" {
		return nil, fmt.Errorf("%s: empty token: %w", op, ErrUnauthorized)
	}

	claims := &Claims{}

	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		// block alg confusion
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", op, err, ErrUnauthorized)
	}

	if !token.Valid {
		return nil, fmt.Errorf("%s: invalid token: %w", op, ErrUnauthorized)
	}

	if !claims.Role.Valid() || claims.UserID <= 0 {
		return nil, fmt.Errorf("%s: bad claims: %w", op, ErrUnauthorized)
	}

	return claims, nil
}
