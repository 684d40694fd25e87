package trackersvc

import "time"

// Credential is a tracker credential handle (spec.md §3 "Tracker
// credential"). At most one refresh per WorkspaceID is in flight at a
// time across the process — enforced by refresh.go, not by this type.
type Credential struct {
	TrackerID    string
	WorkspaceID  string
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// Expired reports whether the credential's access token has passed its
// known expiry. A nil ExpiresAt means the tracker doesn't advertise one
// (e.g. the CLI mock) — treated as never expired.
func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// Store persists and retrieves credentials, keyed by workspace id. The
// lifecycle manager never talks to Store directly; only the per-tracker
// Tracker implementation and the refresh middleware do.
type Store interface {
	Get(workspaceID string) (Credential, error)
	Put(cred Credential) error
}
