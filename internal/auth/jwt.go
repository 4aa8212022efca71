package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const roleLearner = "learner"

var (
	// ErrInvalidToken is returned for malformed, expired or foreign tokens
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingLearner is returned when a token carries no learner id
	ErrMissingLearner = errors.New("learner id missing from token")
)

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	LearnerID string `json:"learner_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and validates learner tokens
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an HS256 issuer
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateLearnerToken generates a JWT token for a learner and returns its expiry
func (i *Issuer) GenerateLearnerToken(learnerID string) (string, time.Time, error) {
	if learnerID == "" {
		return "", time.Time{}, ErrMissingLearner
	}

	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := &JWTClaims{
		LearnerID: learnerID,
		Role:      roleLearner,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   learnerID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func (i *Issuer) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.Role != roleLearner {
		return nil, ErrInvalidToken
	}
	if claims.LearnerID == "" {
		return nil, ErrMissingLearner
	}
	return claims, nil
}
