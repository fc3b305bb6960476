package crypto

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/darrnshn/stateline/internal/config"
	"github.com/darrnshn/stateline/internal/core/ports/primary"
)

var _ primary.JWTService = (*JWTServiceImpl)(nil)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSecret     = errors.New("no HMAC secret configured")
)

// DefaultTokenLifetime applies when claims carry no "exp"
const DefaultTokenLifetime = time.Hour

type JWTServiceImpl struct {
	HMACSecretKey string
}

func NewJWTService(jwtConfig *config.JwtConfig) *JWTServiceImpl {
	return &JWTServiceImpl{
		HMACSecretKey: jwtConfig.Secret,
	}
}

func (j *JWTServiceImpl) GenerateTokenHMAC(_ context.Context, method string, claims map[string]interface{}) (string, error) {
	if j.HMACSecretKey == "" {
		return "", ErrNoSecret
	}
	signingMethod, ok := jwt.GetSigningMethod(method).(*jwt.SigningMethodHMAC)
	if !ok {
		return "", fmt.Errorf("unsupported signing method: %s", method)
	}

	mapClaims := jwt.MapClaims{}
	for k, v := range claims {
		mapClaims[k] = v
	}
	if _, exists := mapClaims["exp"]; !exists {
		mapClaims["exp"] = time.Now().Add(DefaultTokenLifetime).Unix()
	}

	tok := jwt.NewWithClaims(signingMethod, mapClaims)
	return tok.SignedString([]byte(j.HMACSecretKey))
}

// VerifyTokenHMAC checks the signature, the algorithm and the expiry
func (j *JWTServiceImpl) VerifyTokenHMAC(_ context.Context, token string, method string) (bool, error) {
	if j.HMACSecretKey == "" {
		return false, ErrNoSecret
	}
	if jwt.GetSigningMethod(method) == nil {
		return false, fmt.Errorf("unsupported signing method: %s", method)
	}

	parsedToken, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(j.HMACSecretKey), nil
	}, jwt.WithValidMethods([]string{method}))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return parsedToken.Valid, nil
}
