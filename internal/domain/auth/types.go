package auth

// Package auth contains domain-level types for sessions and credentials.
// It is pure and free of transport/adapter concerns.

import "time"

// Role represents the application role granted to a user by the identity backend.
// Keep string form for easy persistence.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleGuest  Role = "guest"
)

// Status represents the lifecycle state of a session.
type Status string

const (
	// StatusUnauthenticated is the initial state and the state after a
	// completed logout. Before hydration finishes it means "unknown", not
	// "logged out"; callers must consult Manager.IsHydrated.
	StatusUnauthenticated Status = "unauthenticated"
	// StatusAuthenticating is set while a login call is in flight.
	StatusAuthenticating Status = "authenticating"
	// StatusAwaitingSecondFactor is set when the backend requires a one-time
	// code to complete a login.
	StatusAwaitingSecondFactor Status = "awaiting_second_factor"
	// StatusAuthenticated means the session holds a live access token.
	StatusAuthenticated Status = "authenticated"
	// StatusRefreshing is set while a token refresh is in flight.
	StatusRefreshing Status = "refreshing"
	// StatusExpired means the refresh token was rejected and the session
	// cannot recover without a new login.
	StatusExpired Status = "expired"
	// StatusLoggedOut is the transient terminal state of a logout before the
	// session loops back to StatusUnauthenticated.
	StatusLoggedOut Status = "logged_out"
)

// User is the authenticated principal as reported by the identity backend.
type User struct {
	ID          string   `json:"id"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	Email       string   `json:"email"`
	Role        Role     `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

// Session is the in-memory authentication state owned by the session manager.
// All fields are mutated only through manager operations.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *User
	Status       Status
	LastError    error
}

// IsAuthenticated reports whether the session currently holds credentials,
// including while a refresh is in flight.
func (s Session) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated || s.Status == StatusRefreshing
}

// HasCredentials reports whether the token/expiry/user triple is fully present.
// The manager maintains the invariant that the three are present or absent
// together.
func (s Session) HasCredentials() bool {
	return s.AccessToken != "" && !s.ExpiresAt.IsZero() && s.User != nil
}

// TimeToExpiry returns the remaining lifetime of the access token at now.
// Negative when already expired, zero when no token is held.
func (s Session) TimeToExpiry(now time.Time) time.Duration {
	if s.ExpiresAt.IsZero() {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}

// CredentialRecord is the persisted projection of an authenticated session.
// It never carries status or transient errors, and a stored record is either
// fully present or fully absent.
type CredentialRecord struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"` // epoch milliseconds
	User         User   `json:"user"`
}

// Expiry returns the record's access token expiry as a time.Time.
func (r CredentialRecord) Expiry() time.Time {
	return time.UnixMilli(r.ExpiresAt)
}

// Valid reports whether the record carries the full credential triple.
// Partial records are treated as corrupt by callers.
func (r CredentialRecord) Valid() bool {
	return r.AccessToken != "" && r.RefreshToken != "" && r.ExpiresAt > 0 && r.User.ID != ""
}

// RecordFromSession projects an authenticated session into its persisted form.
func RecordFromSession(s Session) CredentialRecord {
	rec := CredentialRecord{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.ExpiresAt.UnixMilli(),
	}
	if s.User != nil {
		rec.User = *s.User
	}
	return rec
}

// SessionFromRecord rebuilds an authenticated session from a stored record.
func SessionFromRecord(r CredentialRecord) Session {
	user := r.User
	return Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.Expiry(),
		User:         &user,
		Status:       StatusAuthenticated,
	}
}

// TwoFactorState tracks the user's second-factor enrollment and any pending
// login challenge.
type TwoFactorState struct {
	Enabled       bool
	PendingUserID string // set only while Status == StatusAwaitingSecondFactor
	LastUsedAt    time.Time
}
