package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/lessonflow/internal/config"
)

// Tier is the learner's subscription tier.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Claims carries the learner identity issued by the platform's auth service.
type Claims struct {
	jwt.RegisteredClaims
	LearnerID string `json:"learner_id"`
	Tier      Tier   `json:"tier"`
}

// Learner returns the learner the token was issued for.
func (c *Claims) Learner() Learner {
	return Learner{ID: c.LearnerID, Premium: c.Tier == TierPremium}
}

// Learner identifies who is playing a lesson.
type Learner struct {
	ID      string
	Premium bool
}

// AuthService validates learner tokens. Logins happen elsewhere; IssueToken
// exists for tooling and tests.
type AuthService struct {
	cfg *config.Config
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// IssueToken signs a learner token with the configured secret and expiry.
func (s *AuthService) IssueToken(learnerID string, tier Tier) (string, error) {
	if learnerID == "" {
		return "", errors.New("learner id is required")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   learnerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		LearnerID: learnerID,
		Tier:      tier,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.LearnerID == "" {
		claims.LearnerID = claims.Subject
	}
	if claims.LearnerID == "" {
		return nil, errors.New("token has no learner id")
	}
	if claims.Tier == "" {
		claims.Tier = TierFree
	}
	return claims, nil
}
