package service

import (
	"testing"
	"time"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_IssueAndValidate(t *testing.T) {
	svc := NewAuthService(&config.Config{JWTSecret: "s3cret", JWTExpiry: time.Hour})

	token, err := svc.IssueToken(TokenTypeCandidate, "nisn-0042")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeCandidate, claims.TokenType)
	assert.Equal(t, "nisn-0042", claims.UserID)
	assert.Equal(t, "nisn-0042", claims.Subject)
}

func TestAuthService_RejectsBadTokens(t *testing.T) {
	svc := NewAuthService(&config.Config{JWTSecret: "s3cret", JWTExpiry: time.Hour})
	other := NewAuthService(&config.Config{JWTSecret: "different", JWTExpiry: time.Hour})

	forged, err := other.IssueToken(TokenTypeProctor, "p1")
	require.NoError(t, err)
	_, err = svc.ValidateToken(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	past := NewAuthService(&config.Config{JWTSecret: "s3cret", JWTExpiry: time.Minute})
	past.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := past.IssueToken(TokenTypeCandidate, "u1")
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.IssueToken("admin", "u1")
	assert.Error(t, err)
	_, err = svc.IssueToken(TokenTypeCandidate, "")
	assert.Error(t, err)
}
