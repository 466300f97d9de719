package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/tms-trips/internal/model"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims(userID uuid.UUID, role string) Claims {
	return Claims{
		UserID: userID.String(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestParse_Valid(t *testing.T) {
	userID := uuid.New()
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), validClaims(userID, "dispatcher"))

	principal, err := NewParser(secret).Parse("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, userID, principal.UserID)
	assert.Equal(t, model.RoleDispatcher, principal.Role)
}

func TestParse_Expired(t *testing.T) {
	claims := validClaims(uuid.New(), "ADMIN")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), claims)

	_, err := NewParser(secret).Parse(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other"), validClaims(uuid.New(), "ADMIN"))},
		{"wrong algorithm", sign(t, jwt.SigningMethodHS512, []byte(secret), validClaims(uuid.New(), "ADMIN"))},
		{"bad user id", sign(t, jwt.SigningMethodHS256, []byte(secret), Claims{UserID: "nope", Role: "ADMIN"})},
		{"unknown role", sign(t, jwt.SigningMethodHS256, []byte(secret), validClaims(uuid.New(), "DRIVER"))},
	}

	parser := NewParser(secret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.Parse(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
