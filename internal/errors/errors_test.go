package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestAuthError_ErrorFormatting(t *testing.T) {
	plain := InvalidCredentials("invalid credentials")
	if plain.Error() != "invalid credentials" {
		t.Fatalf("got %q", plain.Error())
	}

	cause := stderrors.New("boom")
	wrapped := Wrap(cause, ErrCodeInternal, "save failed")
	if wrapped.Error() != "save failed: boom" {
		t.Fatalf("got %q", wrapped.Error())
	}
	if !stderrors.Is(wrapped, cause) {
		t.Fatalf("wrapped error should unwrap to cause")
	}
}

func TestWrap_NilReturnsNil(t *testing.T) {
	if Wrap(nil, ErrCodeInternal, "x") != nil {
		t.Fatalf("Wrap(nil) must be nil")
	}
	if Wrapf(nil, ErrCodeInternal, "x %d", 1) != nil {
		t.Fatalf("Wrapf(nil) must be nil")
	}
}

func TestCodePredicates(t *testing.T) {
	cases := []struct {
		err  error
		pred func(error) bool
	}{
		{InvalidCredentials("no"), IsInvalidCredentials},
		{SecondFactorRequired("u1"), IsSecondFactorRequired},
		{InvalidCode("no"), IsInvalidCode},
		{RateLimited("slow down"), IsRateLimited},
		{RefreshInvalid("dead token"), IsRefreshInvalid},
		{NetworkTimeout(stderrors.New("deadline")), IsNetworkTimeout},
		{StoreCorrupt(stderrors.New("bad json")), IsStoreCorrupt},
		{FederatedExchange("rejected", nil), IsFederatedExchange},
		{Registration("email taken"), IsRegistration},
		{Internal("oops"), IsInternal},
	}
	for i, tc := range cases {
		if !tc.pred(tc.err) {
			t.Fatalf("case %d: predicate rejected its own error %v", i, tc.err)
		}
		if tc.pred(stderrors.New("other")) {
			t.Fatalf("case %d: predicate matched an unrelated error", i)
		}
	}
}

func TestCodePredicates_MatchWrappedErrors(t *testing.T) {
	inner := RefreshInvalid("dead token")
	outer := fmt.Errorf("refresh: %w", inner)
	if !IsRefreshInvalid(outer) {
		t.Fatalf("predicate should see through fmt.Errorf wrapping")
	}
}

func TestPendingUserID(t *testing.T) {
	if got := PendingUserID(SecondFactorRequired("u42")); got != "u42" {
		t.Fatalf("got %q", got)
	}
	if got := PendingUserID(InvalidCode("x")); got != "" {
		t.Fatalf("non-challenge errors must yield empty id, got %q", got)
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(RateLimited("x")) != ErrCodeRateLimited {
		t.Fatalf("wrong code")
	}
	if CodeOf(stderrors.New("misc")) != ErrCodeInternal {
		t.Fatalf("unclassified errors default to internal")
	}
}

func TestRegistrationReason(t *testing.T) {
	err := Registration("email already registered")
	var authErr *AuthError
	if !stderrors.As(err, &authErr) {
		t.Fatalf("expected AuthError")
	}
	if authErr.Reason != "email already registered" {
		t.Fatalf("got %q", authErr.Reason)
	}
}
