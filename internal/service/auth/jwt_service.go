package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Issuer is stamped on every access token and required on validation.
const Issuer = "scribe-api"

var (
	ErrMissingToken     = errors.New("authentication token is missing")
	ErrInvalidToken     = errors.New("invalid authentication token")
	ErrExpiredToken     = errors.New("authentication token has expired")
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")
	ErrWrongTokenType   = errors.New("wrong authentication token type")
)

// JWTService issues and checks the bearer tokens that front the writing
// API. Accounts and sign-in live outside this service; a token only names
// the user who owns the projects it touches.
type JWTService interface {
	GenerateToken(ctx context.Context, userID uuid.UUID) (string, error)
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// Claims is what a valid access token asserts.
type Claims struct {
	UserID    uuid.UUID
	TokenType string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}
