package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/shinyyama/tailor-backend/internal/policy"
)

const serviceIssuer = "tailor-api"

var ErrInvalidServiceToken = errors.New("invalid service token")

type ServiceClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ServiceTokens signs and checks HS256 tokens for automation callers such as
// the delivery gateway or settlement jobs.
type ServiceTokens struct {
	secret []byte
	now    func() time.Time
}

// NewServiceTokens returns nil when no secret is configured.
func NewServiceTokens(secret string) *ServiceTokens {
	if secret == "" {
		return nil
	}
	return &ServiceTokens{secret: []byte(secret), now: time.Now}
}

func (s *ServiceTokens) Mint(subject string, role policy.Role, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("subject is required")
	}
	if role != policy.RoleSystem && role != policy.RoleAdmin {
		return "", fmt.Errorf("service tokens are only issued for %s and %s", policy.RoleSystem, policy.RoleAdmin)
	}
	now := s.now()
	claims := ServiceClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    serviceIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *ServiceTokens) Verify(tokenStr string) (policy.Actor, error) {
	var claims ServiceClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return policy.Actor{}, ErrInvalidServiceToken
	}
	if !claims.VerifyIssuer(serviceIssuer, true) || claims.Subject == "" {
		return policy.Actor{}, ErrInvalidServiceToken
	}
	role := policy.Role(claims.Role)
	if role != policy.RoleSystem && role != policy.RoleAdmin {
		return policy.Actor{}, ErrInvalidServiceToken
	}
	return policy.Actor{ID: claims.Subject, Role: role}, nil
}
