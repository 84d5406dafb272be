package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-engine/internal/config"
)

// Attempt token errors.
var (
	ErrTokenInvalid = errors.New("invalid attempt token")
	ErrTokenExpired = errors.New("attempt token expired")
	ErrTokenRevoked = errors.New("attempt token no longer active")
)

// AttemptClaims extends JWT standard claims with the attempt the token grants.
type AttemptClaims struct {
	jwt.RegisteredClaims
	AttemptID     string `json:"attempt_id"`
	QuestionSetID string `json:"question_set_id"`
}

// TokenService issues and validates attempt tokens. The active JTI of each
// attempt is kept in Redis so reissuing or resetting invalidates older tokens;
// without Redis only the signature and expiry are checked.
type TokenService struct {
	secret []byte
	expiry time.Duration
	rdb    *redis.Client
	now    func() time.Time
}

// NewTokenService creates a new TokenService. rdb may be nil.
func NewTokenService(cfg *config.Config, rdb *redis.Client) *TokenService {
	return &TokenService{
		secret: []byte(cfg.AttemptTokenSecret),
		expiry: cfg.AttemptTokenExpiry,
		rdb:    rdb,
		now:    time.Now,
	}
}

// Issue signs a token for attemptID and makes it the attempt's active token.
func (s *TokenService) Issue(ctx context.Context, attemptID, questionSetID string) (string, error) {
	jti := uuid.New().String()
	now := s.now()

	claims := AttemptClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   attemptID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		AttemptID:     attemptID,
		QuestionSetID: questionSetID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	if s.rdb != nil {
		if err := s.rdb.Set(ctx, config.CacheKey.AttemptTokenKey(attemptID), jti, s.expiry).Err(); err != nil {
			return "", fmt.Errorf("store token: %w", err)
		}
	}
	return signed, nil
}

// ValidateToken parses and validates a token, returning its claims.
func (s *TokenService) ValidateToken(tokenStr string) (*AttemptClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AttemptClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*AttemptClaims)
	if !ok || !token.Valid || claims.AttemptID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ValidateActive checks that jti is the attempt's active token.
func (s *TokenService) ValidateActive(ctx context.Context, attemptID, jti string) error {
	if s.rdb == nil {
		return nil
	}
	stored, err := s.rdb.Get(ctx, config.CacheKey.AttemptTokenKey(attemptID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrTokenRevoked
		}
		return fmt.Errorf("check token: %w", err)
	}
	if stored != jti {
		return ErrTokenRevoked
	}
	return nil
}

// Revoke removes the attempt's active token.
func (s *TokenService) Revoke(ctx context.Context, attemptID string) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, config.CacheKey.AttemptTokenKey(attemptID)).Err()
}
