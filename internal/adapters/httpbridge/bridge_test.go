package httpbridge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	autherrors "github.com/dealdesk/sessioncore/internal/errors"
	"github.com/dealdesk/sessioncore/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBridge(t *testing.T, handler http.Handler) *Bridge {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	bridge, err := NewBridge(Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return bridge
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestNewBridge_RequiresBaseURL(t *testing.T) {
	_, err := NewBridge(Config{})
	assert.Error(t, err)
}

func TestLogin_Success(t *testing.T) {
	bridge := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.com", body["email"])

		writeJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"accessToken":  "at-1",
				"refreshToken": "rt-1",
				"expiresIn":    3600,
				"user": map[string]any{
					"id":        "u1",
					"firstName": "Ada",
					"lastName":  "Lovelace",
					"email":     "a@b.com",
					"role":      "member",
				},
			},
		})
	}))

	result, err := bridge.Login(context.Background(), "a@b.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "at-1", result.AccessToken)
	assert.Equal(t, "rt-1", result.RefreshToken)
	assert.Equal(t, 3600, result.ExpiresIn)
	assert.Equal(t, "u1", result.User.ID)
	assert.False(t, result.TwoFactorRequired)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	bridge := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"message": "invalid email or password",
		})
	}))

	_, err := bridge.Login(context.Background(), "a@b.com", "wrong")
	assert.True(t, autherrors.IsInvalidCredentials(err), "got %v", err)
}

func TestLogin_SecondFactorRequired(t *testing.T) {
	bridge := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"twoFactorRequired": true,
				"userId":            "u1",
			},
		})
	}))

	result, err := bridge.Login(context.Background(), "a@b.com", "pw")
	require.NoError(t, err)
	assert.True(t, result.TwoFactorRequired)
	assert.Equal(t, "u1", result.PendingUserID)
	assert.Empty(t, result.AccessToken)
}

func TestLogin_RateLimited(t *testing.T) {
	bridge := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusTooManyRequests, map[string]any{"success": false})
	}))

	_, err := bridge.Login(context.Background(), "a@b.com", "pw")
	assert.True(t, autherrors.IsRateLimited(err), "got %v", err)
}

func TestLogin_Timeout(t *testing.T) {
	bridge := newTestBridge(t, http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can observe the
		// client disconnect and cancel the request context; otherwise this
		// handler never returns and Server.Close deadlocks in cleanup.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := bridge.Login(ctx, "a@b.com", "pw")
	assert.True(t, autherrors.IsNetworkTimeout(err), "got %v", err)
}

func TestLoginFederated(t *testing.T) {
	bridge := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/auth/login/firebase", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["idToken"] != "good-token" {
			writeJSON(t, w, http.StatusUnauthorized, map[string]any{"success": false, "message": "token rejected"})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"accessToken":  "at-1",
				"refreshToken": "rt-1",
				"expiresIn":    3600,
				"user":         map[string]any{"id": "u1", "email": "a@b.com", "role": "member"},
			},
		})
	}))

	result, err := bridge.LoginFederated(context.Background(), "good-token")
	require.NoError(t, err)
	assert.Equal(t, "at-1", result.AccessToken)

	_, err = bridge.LoginFederated(context.Background(), "bad-token")
	assert.True(t, autherrors.IsFederatedExchange(err), "got %v", err)
}

func TestRefresh_SuccessAndRotation(t *testing.T) {
	rotate := false
	bridge := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/refresh", r.URL.Path)
		data := map[string]any{"accessToken": "at-2", "expiresIn": 3600}
		if rotate {
			data["refreshToken"] = "rt-2"
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "data": data})
	}))

	result, err := bridge.Refresh(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, "at-2", result.AccessToken)
	assert.Empty(t, result.RefreshToken, "no rotation unless backend sends one")

	rotate = true
	result, err = bridge.Refresh(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, "rt-2", result.RefreshToken)
}

func TestRefresh_Invalid(t *testing.T) {
	bridge := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]any{"success": false, "message": "refresh token revoked"})
	}))

	_, err := bridge.Refresh(context.Background(), "rt-dead")
	assert.True(t, autherrors.IsRefreshInvalid(err), "got %v", err)
}

func TestRequestPasswordReset_UniformSuccess(t *testing.T) {
	bridge := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/forgot-password", r.URL.Path)
		// Backend answers success whether or not the account exists.
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true})
	}))

	assert.NoError(t, bridge.RequestPasswordReset(context.Background(), "known@example.com"))
	assert.NoError(t, bridge.RequestPasswordReset(context.Background(), "unknown@example.com"))
}

func TestLogout_SendsBearer(t *testing.T) {
	var gotAuth string
	bridge := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true})
	}))

	require.NoError(t, bridge.Logout(context.Background(), "at-1"))
	assert.Equal(t, "Bearer at-1", gotAuth)
}

func TestLogout_NoTokenIsNoop(t *testing.T) {
	called := false
	bridge := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true})
	}))

	require.NoError(t, bridge.Logout(context.Background(), ""))
	assert.False(t, called)
}

func TestVerifySecondFactor(t *testing.T) {
	bridge := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/2fa/verify-login", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["otpCode"] != "123456" {
			writeJSON(t, w, http.StatusUnauthorized, map[string]any{"success": false, "message": "bad code"})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"accessToken":  "at-1",
				"refreshToken": "rt-1",
				"expiresIn":    3600,
				"user":         map[string]any{"id": "u1", "email": "a@b.com", "role": "member"},
			},
		})
	}))

	_, err := bridge.VerifySecondFactor(context.Background(), "u1", "000000")
	assert.True(t, autherrors.IsInvalidCode(err), "got %v", err)

	result, err := bridge.VerifySecondFactor(context.Background(), "u1", "123456")
	require.NoError(t, err)
	assert.Equal(t, "at-1", result.AccessToken)
}

func TestTwoFactorStatus(t *testing.T) {
	lastUsed := time.Now().Add(-time.Hour).UnixMilli()
	bridge := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			writeJSON(t, w, http.StatusUnauthorized, map[string]any{"success": false, "message": "unauthorized"})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"enabled": true, "lastUsedAt": lastUsed},
		})
	}))

	status, err := bridge.TwoFactorStatus(context.Background(), "at-1")
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	assert.Equal(t, time.UnixMilli(lastUsed), status.LastUsedAt)

	_, err = bridge.TwoFactorStatus(context.Background(), "at-stale")
	assert.True(t, autherrors.IsUnauthorized(err), "got %v", err)
}

func TestConfirmTwoFactorSetup(t *testing.T) {
	bridge := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/2fa/verify-setup", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["otpCode"] != "654321" {
			writeJSON(t, w, http.StatusBadRequest, map[string]any{"success": false, "message": "code expired"})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"enabled": true}})
	}))

	enabled, err := bridge.ConfirmTwoFactorSetup(context.Background(), "at-1", "654321")
	require.NoError(t, err)
	assert.True(t, enabled)

	_, err = bridge.ConfirmTwoFactorSetup(context.Background(), "at-1", "000000")
	assert.True(t, autherrors.IsInvalidCode(err), "got %v", err)
}

func TestRegister(t *testing.T) {
	bridge := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/register", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["email"] == "taken@example.com" {
			writeJSON(t, w, http.StatusConflict, map[string]any{"success": false, "message": "email already registered"})
			return
		}
		assert.NotNil(t, body["cardDetails"])
		writeJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"accessToken":  "at-1",
				"refreshToken": "rt-1",
				"expiresIn":    3600,
				"user":         map[string]any{"id": "u2", "email": "new@example.com", "role": "member"},
			},
		})
	}))

	in := registerInput("new@example.com")
	result, err := bridge.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "u2", result.User.ID)

	_, err = bridge.Register(context.Background(), registerInput("taken@example.com"))
	require.True(t, autherrors.IsRegistration(err), "got %v", err)

	var authErr *autherrors.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "email already registered", authErr.Reason)
}

func registerInput(email string) ports.RegisterInput {
	return ports.RegisterInput{
		FirstName: "New",
		LastName:  "User",
		Email:     email,
		Password:  "pw",
		Card: &ports.CardDetails{
			HolderName: "New User",
			Number:     "4242424242424242",
			ExpMonth:   12,
			ExpYear:    2030,
			CVC:        "123",
		},
	}
}
