package keyring

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testClaims(ttl time.Duration) SessionClaims {
	now := time.Now()
	return SessionClaims{
		SubjectID:   "admin-1",
		Username:    "admin",
		Email:       "admin@example.com",
		Role:        AdminRole,
		LoginMethod: "password",
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
		Audience:    "admin-panel",
		Issuer:      "admintrust",
	}
}

func newTestRing(t *testing.T) *Ring {
	t.Helper()
	return NewRing(BackendEnv, "test-secret", zerolog.Nop())
}

func TestSignVerifyRoundTrip(t *testing.T) {
	ring := newTestRing(t)
	claims := testClaims(time.Hour)

	token, err := ring.Sign(claims)
	require.NoError(t, err)

	got, keyID, err := ring.Verify(token)
	require.NoError(t, err)

	active, activeID, err := ring.SigningKey()
	require.NoError(t, err)
	require.Equal(t, activeID, keyID)
	require.NotNil(t, active)

	require.Equal(t, claims.SubjectID, got.SubjectID)
	require.Equal(t, claims.Username, got.Username)
	require.Equal(t, claims.Email, got.Email)
	require.Equal(t, claims.Role, got.Role)
	require.Equal(t, claims.LoginMethod, got.LoginMethod)
	require.Equal(t, claims.Audience, got.Audience)
	require.Equal(t, claims.Issuer, got.Issuer)
}

func TestRotationGracePeriod(t *testing.T) {
	ring := newTestRing(t)

	oldToken, err := ring.Sign(testClaims(time.Hour))
	require.NoError(t, err)
	_, oldKeyID, err := ring.SigningKey()
	require.NoError(t, err)

	rotated, err := ring.Rotate()
	require.NoError(t, err)
	require.NotEqual(t, oldKeyID, rotated.ID)

	// Pre-rotation token still verifies via the retiring key.
	_, keyID, err := ring.Verify(oldToken)
	require.NoError(t, err)
	require.Equal(t, oldKeyID, keyID)

	// New tokens carry the new key id.
	newToken, err := ring.Sign(testClaims(time.Hour))
	require.NoError(t, err)
	_, keyID, err = ring.Verify(newToken)
	require.NoError(t, err)
	require.Equal(t, rotated.ID, keyID)
}

func TestSecondRotationDropsGracePeriod(t *testing.T) {
	ring := newTestRing(t)

	oldToken, err := ring.Sign(testClaims(time.Hour))
	require.NoError(t, err)

	_, err = ring.Rotate()
	require.NoError(t, err)
	_, err = ring.Rotate()
	require.NoError(t, err)

	_, _, err = ring.Verify(oldToken)
	var terr *TokenError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, ReasonInvalid, terr.Reason)
}

func TestVerifyExpiredToken(t *testing.T) {
	ring := newTestRing(t)

	token, err := ring.Sign(testClaims(-time.Second))
	require.NoError(t, err)

	_, _, err = ring.Verify(token)
	var terr *TokenError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, ReasonExpired, terr.Reason)
}

func TestVerifyEmptyToken(t *testing.T) {
	ring := newTestRing(t)
	_, _, err := ring.Verify("")
	var terr *TokenError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, ReasonNoToken, terr.Reason)
}

func TestVerifyGarbageToken(t *testing.T) {
	ring := newTestRing(t)
	_, _, err := ring.Verify("not.a.token")
	var terr *TokenError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, ReasonInvalid, terr.Reason)
}

func TestUnimplementedBackends(t *testing.T) {
	for _, backend := range []Backend{BackendVault, BackendKMS, BackendEdgeKV} {
		t.Run(string(backend), func(t *testing.T) {
			ring := NewRing(backend, "", zerolog.Nop())
			_, _, err := ring.SigningKey()
			var perr *KeyProviderError
			require.ErrorAs(t, err, &perr)
			require.Equal(t, backend, perr.Backend)
		})
	}
}

func TestRotationDue(t *testing.T) {
	current := time.Now()
	ring := NewRing(BackendEnv, "secret", zerolog.Nop(), WithClock(func() time.Time { return current }))

	info, err := ring.RotationDue()
	require.NoError(t, err)
	require.False(t, info.Due)

	current = current.Add(31 * 24 * time.Hour)
	info, err = ring.RotationDue()
	require.NoError(t, err)
	require.True(t, info.Due)
	require.Equal(t, current.Add(24*time.Hour), info.ScheduledFor)
}

func TestStaticSecretFallback(t *testing.T) {
	claims := testClaims(time.Hour)
	token, err := SignWithStaticSecret(claims, "fallback-secret")
	require.NoError(t, err)

	got, err := VerifyWithStaticSecret(token, "fallback-secret")
	require.NoError(t, err)
	require.Equal(t, claims.Username, got.Username)

	_, err = VerifyWithStaticSecret(token, "other-secret")
	require.Error(t, err)
}
