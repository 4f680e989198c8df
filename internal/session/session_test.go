package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copperbear/storefront/internal/constants"
)

const testSecret = "test-secret"

func signToken(t *testing.T, userID uuid.UUID, opts ...func(*jwt.RegisteredClaims)) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    constants.IssuerAccounts,
		Audience:  jwt.ClaimStrings{constants.AudienceStore},
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	for _, opt := range opts {
		opt(&claims)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

type edgeCounter struct {
	mu       sync.Mutex
	signIns  []uuid.UUID
	signOuts int
}

func (e *edgeCounter) handler() Handler {
	return Handler{
		OnSignIn: func(c context.Context, userID uuid.UUID, token string) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.signIns = append(e.signIns, userID)
		},
		OnSignOut: func(c context.Context) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.signOuts++
		},
	}
}

func TestSignInFiresHandlerOncePerEdge(t *testing.T) {
	manager := NewManager(testSecret)
	counter := &edgeCounter{}
	manager.Register(counter.handler())
	userId := uuid.New()
	token := signToken(t, userId)

	_, err := manager.SignIn(context.Background(), token)
	require.NoError(t, err)
	_, err = manager.SignIn(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{userId}, counter.signIns, "repeated sign-in of the same user must not re-fire the edge")
	assert.Equal(t, 0, counter.signOuts)

	_, _, authenticated := manager.Current()
	assert.True(t, authenticated)
}

func TestSignInSwitchingUserFiresSignOutFirst(t *testing.T) {
	manager := NewManager(testSecret)
	counter := &edgeCounter{}
	manager.Register(counter.handler())
	first := uuid.New()
	second := uuid.New()

	_, err := manager.SignIn(context.Background(), signToken(t, first))
	require.NoError(t, err)
	_, err = manager.SignIn(context.Background(), signToken(t, second))
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{first, second}, counter.signIns)
	assert.Equal(t, 1, counter.signOuts)

	current, _, _ := manager.Current()
	assert.Equal(t, second, current)
}

func TestSignOutIsNoOpWhenGuest(t *testing.T) {
	manager := NewManager(testSecret)
	counter := &edgeCounter{}
	manager.Register(counter.handler())

	manager.SignOut(context.Background())

	assert.Equal(t, 0, counter.signOuts)
}

func TestSignInRejectsBadTokens(t *testing.T) {
	manager := NewManager(testSecret)
	userId := uuid.New()

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "given garbage token should reject",
			token: "not-a-token",
		},
		{
			name: "given expired token should reject",
			token: signToken(t, userId, func(claims *jwt.RegisteredClaims) {
				claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
			}),
		},
		{
			name: "given wrong audience should reject",
			token: signToken(t, userId, func(claims *jwt.RegisteredClaims) {
				claims.Audience = jwt.ClaimStrings{"someone-else"}
			}),
		},
		{
			name: "given wrong issuer should reject",
			token: signToken(t, userId, func(claims *jwt.RegisteredClaims) {
				claims.Issuer = "not-accounts"
			}),
		},
		{
			name: "given non-uuid subject should reject",
			token: signToken(t, userId, func(claims *jwt.RegisteredClaims) {
				claims.Subject = "alice"
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.SignIn(context.Background(), tt.token)
			assert.Error(t, err)

			_, _, authenticated := manager.Current()
			assert.False(t, authenticated)
		})
	}
}

func TestSignOutClearsSession(t *testing.T) {
	manager := NewManager(testSecret)
	counter := &edgeCounter{}
	manager.Register(counter.handler())
	userId := uuid.New()

	_, err := manager.SignIn(context.Background(), signToken(t, userId))
	require.NoError(t, err)
	manager.SignOut(context.Background())

	assert.Equal(t, 1, counter.signOuts)
	_, token, authenticated := manager.Current()
	assert.False(t, authenticated)
	assert.Empty(t, token)
}
