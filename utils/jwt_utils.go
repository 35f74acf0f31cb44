package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"ordenes-service/models"
)

// Claims matches the tokens issued by the auth service.
type Claims struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func ParseToken(tokenString, secret string) (models.Identity, error) {
	if secret == "" {
		return models.Identity{}, errors.New("jwt secret not configured")
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}))
	if err != nil {
		return models.Identity{}, err
	}
	if !token.Valid {
		return models.Identity{}, errors.New("invalid token")
	}
	if claims.ID <= 0 {
		return models.Identity{}, fmt.Errorf("token without user id")
	}

	return models.Identity{
		UserID: claims.ID,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

// GenerateToken signs a short-lived HS256 token; used for calls the service
// makes on its own behalf.
func GenerateToken(identity models.Identity, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		ID:    identity.UserID,
		Email: identity.Email,
		Role:  identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
