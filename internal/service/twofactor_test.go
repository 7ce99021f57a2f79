package service

import (
	"context"
	"testing"
	"time"

	domainauth "github.com/dealdesk/sessioncore/internal/domain/auth"
	autherrors "github.com/dealdesk/sessioncore/internal/errors"
	mockauth "github.com/dealdesk/sessioncore/internal/mocks/auth"
	"github.com/dealdesk/sessioncore/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginAwaitingSecondFactor(t *testing.T, m *Manager) {
	t.Helper()
	sess, err := m.Login(context.Background(), "user@example.com", "hunter2")
	require.NoError(t, err)
	require.Equal(t, domainauth.StatusAwaitingSecondFactor, sess.Status)
}

func challengeBridge() *mockauth.MockIdentityBridge {
	return &mockauth.MockIdentityBridge{
		LoginFunc: func(context.Context, string, string) (ports.LoginResult, error) {
			return ports.LoginResult{TwoFactorRequired: true, PendingUserID: "user-42"}, nil
		},
	}
}

func TestVerifySecondFactorSuccess(t *testing.T) {
	bridge := challengeBridge()
	bridge.VerifySecondFactorFunc = func(_ context.Context, userID, code string) (ports.LoginResult, error) {
		assert.Equal(t, "user-42", userID)
		assert.Equal(t, "123456", code)
		return mockauth.DefaultLoginResult(), nil
	}
	store := &mockauth.MemoryCredentialStore{}
	m := newTestManager(t, bridge, store)
	loginAwaitingSecondFactor(t, m)

	sess, err := m.VerifySecondFactor(context.Background(), "123456")
	require.NoError(t, err)

	assert.Equal(t, domainauth.StatusAuthenticated, sess.Status)
	assert.Equal(t, "mock-access", sess.AccessToken)

	state := m.TwoFactorState()
	assert.True(t, state.Enabled)
	assert.Empty(t, state.PendingUserID)
	assert.False(t, state.LastUsedAt.IsZero())

	_, present := store.Current()
	assert.True(t, present)
}

func TestVerifySecondFactorInvalidCodeStaysPending(t *testing.T) {
	bridge := challengeBridge()
	bridge.VerifySecondFactorFunc = func(context.Context, string, string) (ports.LoginResult, error) {
		return ports.LoginResult{}, autherrors.InvalidCode("verification code rejected")
	}
	m := newTestManager(t, bridge, &mockauth.MemoryCredentialStore{})
	loginAwaitingSecondFactor(t, m)

	sess, err := m.VerifySecondFactor(context.Background(), "000000")
	require.Error(t, err)
	assert.True(t, autherrors.IsInvalidCode(err))

	// The challenge survives a bad code; the user may try again.
	assert.Equal(t, domainauth.StatusAwaitingSecondFactor, sess.Status)
	assert.Equal(t, "user-42", m.TwoFactorState().PendingUserID)
}

func TestVerifySecondFactorRejectsCredentiallessResponse(t *testing.T) {
	bridge := challengeBridge()
	bridge.VerifySecondFactorFunc = func(context.Context, string, string) (ports.LoginResult, error) {
		// A backend echoing the challenge shape back must not produce an
		// authenticated session holding no tokens.
		return ports.LoginResult{TwoFactorRequired: true, PendingUserID: "user-42"}, nil
	}
	m := newTestManager(t, bridge, &mockauth.MemoryCredentialStore{})
	loginAwaitingSecondFactor(t, m)

	sess, err := m.VerifySecondFactor(context.Background(), "123456")
	require.Error(t, err)
	assert.True(t, autherrors.IsInternal(err))

	assert.Equal(t, domainauth.StatusAwaitingSecondFactor, sess.Status)
	assert.Empty(t, sess.AccessToken)
	assert.Nil(t, sess.User)
	assert.Equal(t, "user-42", m.TwoFactorState().PendingUserID)
}

func TestVerifySecondFactorRejectsEmptyTokens(t *testing.T) {
	bridge := challengeBridge()
	bridge.VerifySecondFactorFunc = func(context.Context, string, string) (ports.LoginResult, error) {
		return ports.LoginResult{}, nil
	}
	m := newTestManager(t, bridge, &mockauth.MemoryCredentialStore{})
	loginAwaitingSecondFactor(t, m)

	sess, err := m.VerifySecondFactor(context.Background(), "123456")
	require.Error(t, err)
	assert.Equal(t, domainauth.StatusAwaitingSecondFactor, sess.Status)
	assert.False(t, sess.HasCredentials())
}

func TestVerifySecondFactorWithoutChallenge(t *testing.T) {
	m := newTestManager(t, &mockauth.MockIdentityBridge{}, &mockauth.MemoryCredentialStore{})

	_, err := m.VerifySecondFactor(context.Background(), "123456")
	require.Error(t, err)
	assert.True(t, autherrors.IsInternal(err))
}

func TestVerifySecondFactorRateLimited(t *testing.T) {
	bridge := challengeBridge()
	bridge.VerifySecondFactorFunc = func(context.Context, string, string) (ports.LoginResult, error) {
		return ports.LoginResult{}, autherrors.InvalidCode("verification code rejected")
	}
	m := newTestManager(t, bridge, &mockauth.MemoryCredentialStore{})
	loginAwaitingSecondFactor(t, m)

	for i := 0; i < 3; i++ {
		_, err := m.VerifySecondFactor(context.Background(), "000000")
		require.Error(t, err)
		require.True(t, autherrors.IsInvalidCode(err))
	}

	// The budget is spent: even a correct code is blocked locally.
	bridge.VerifySecondFactorFunc = func(context.Context, string, string) (ports.LoginResult, error) {
		return mockauth.DefaultLoginResult(), nil
	}
	sess, err := m.VerifySecondFactor(context.Background(), "123456")
	require.Error(t, err)
	assert.True(t, autherrors.IsRateLimited(err))
	assert.Equal(t, domainauth.StatusAwaitingSecondFactor, sess.Status)
	assert.EqualValues(t, 3, bridge.VerifyCalls.Load())
}

func TestAttemptWindowAgesOutFailures(t *testing.T) {
	w := newAttemptWindow(TwoFactorPolicy{MaxFailures: 3, Window: 5 * time.Minute})
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, w.check("user-42", base))
		w.recordFailure("user-42", base.Add(time.Duration(i)*time.Second))
	}

	err := w.check("user-42", base.Add(time.Minute))
	require.Error(t, err)
	assert.True(t, autherrors.IsRateLimited(err))

	// Another user is unaffected.
	require.NoError(t, w.check("user-7", base.Add(time.Minute)))

	// Once the window passes, attempts flow again.
	require.NoError(t, w.check("user-42", base.Add(6*time.Minute)))
}

func TestAttemptWindowResetOnSuccess(t *testing.T) {
	w := newAttemptWindow(TwoFactorPolicy{MaxFailures: 3, Window: 5 * time.Minute})
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	w.recordFailure("user-42", now)
	w.recordFailure("user-42", now)
	w.reset("user-42")
	w.recordFailure("user-42", now)

	require.NoError(t, w.check("user-42", now))
}

func TestBeginTwoFactorSetupRequiresAuth(t *testing.T) {
	m := newTestManager(t, &mockauth.MockIdentityBridge{}, &mockauth.MemoryCredentialStore{})

	err := m.BeginTwoFactorSetup(context.Background())
	require.Error(t, err)
	assert.True(t, autherrors.IsUnauthorized(err))
}

func TestConfirmTwoFactorSetupEnables(t *testing.T) {
	bridge := &mockauth.MockIdentityBridge{
		ConfirmSetupFunc: func(_ context.Context, accessToken, code string) (bool, error) {
			assert.Equal(t, "mock-access", accessToken)
			assert.Equal(t, "123456", code)
			return true, nil
		},
	}
	m := newTestManager(t, bridge, &mockauth.MemoryCredentialStore{})
	loginAuthenticated(t, m)

	enabled, err := m.ConfirmTwoFactorSetup(context.Background(), "123456")
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.True(t, m.TwoFactorState().Enabled)
}

func TestSyncTwoFactorStatus(t *testing.T) {
	lastUsed := time.Date(2026, 8, 27, 9, 30, 0, 0, time.UTC)
	bridge := &mockauth.MockIdentityBridge{
		StatusFunc: func(context.Context, string) (ports.TwoFactorStatusResult, error) {
			return ports.TwoFactorStatusResult{Enabled: true, LastUsedAt: lastUsed}, nil
		},
	}
	m := newTestManager(t, bridge, &mockauth.MemoryCredentialStore{})
	loginAuthenticated(t, m)

	status, err := m.SyncTwoFactorStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Enabled)

	state := m.TwoFactorState()
	assert.True(t, state.Enabled)
	assert.Equal(t, lastUsed, state.LastUsedAt)
}
