package auth_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthbridge/booking-api/pkg/auth"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := auth.NewJWTService("test-secret")
	callerID := uuid.New()

	token, err := svc.GenerateToken(callerID, "patient", time.Minute)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, callerID, claims.CallerID)
	assert.Equal(t, "patient", claims.Role)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := auth.NewJWTService("secret-a").GenerateToken(uuid.New(), "patient", time.Minute)
	require.NoError(t, err)

	_, err = auth.NewJWTService("secret-b").ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := auth.NewJWTService("test-secret")
	token, err := svc.GenerateToken(uuid.New(), "patient", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}
