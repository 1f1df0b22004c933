package utils

import (
	"errors" // Claim validation errors
	"time"   // Token expiration

	"github.com/golang-jwt/jwt/v5" // JWT library
	"github.com/google/uuid"       // User identifiers
)

// IdentityClaims is the identity the gateway forwards as a signed token
type IdentityClaims struct {
	UserID               string `json:"user_id"` // Authenticated user id
	Role                 string `json:"role"`    // USER or ADMIN
	Email                string `json:"email"`   // Notification address
	jwt.RegisteredClaims        // Standard JWT claims
}

// GenerateIdentityToken signs identity claims, used by the gateway and by tests
func GenerateIdentityToken(userID uuid.UUID, role, email, secret string, ttl time.Duration) (string, error) {
	claims := IdentityClaims{
		UserID: userID.String(),
		Role:   role,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)), // Expiry chosen by the issuer
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims) // Create token with claims
	return token.SignedString([]byte(secret))                  // Sign the token with the secret
}

// ParseIdentityToken parses and validates an identity token string
func ParseIdentityToken(tokenStr, secret string) (*IdentityClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &IdentityClaims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil // Return the secret key for validation
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err // Return error if parsing fails
	}
	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.UserID == "" {
		return nil, errors.New("identity token without user_id")
	}
	return claims, nil
}
