package trackersvc

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sylas-dev/sylas/internal/common/logger"
)

// RefreshFunc exchanges a credential's refresh token for a new access
// token. Implemented per tracker (only Linear needs one per spec §4.1).
type RefreshFunc func(ctx context.Context, cred Credential) (Credential, error)

// OnTokenRefreshed is invoked after a successful refresh so the new tokens
// can be written back to durable storage. Per spec.md §3, a failure here
// is logged but never cancels the refresh itself.
type OnTokenRefreshed func(cred Credential) error

// RefreshCoordinator singleflights concurrent token refreshes for the same
// workspace id (spec.md §4.1, §9: "process-wide refresh singleflight").
// All concurrent 401s for one workspace coalesce onto the one in-flight
// refresh; the slot is cleared on completion (success or failure) so the
// next 401 can start a fresh attempt.
type RefreshCoordinator struct {
	group    singleflight.Group
	store    Store
	refresh  RefreshFunc
	onDone   OnTokenRefreshed
	log      *logger.Logger
}

// NewRefreshCoordinator builds a coordinator backed by store, using fn to
// perform the actual token exchange and onDone to persist the result.
func NewRefreshCoordinator(store Store, fn RefreshFunc, onDone OnTokenRefreshed, log *logger.Logger) *RefreshCoordinator {
	return &RefreshCoordinator{store: store, refresh: fn, onDone: onDone, log: log}
}

// Refresh coalesces concurrent refreshes for workspaceID onto a single
// in-flight call and returns the refreshed credential to every caller.
func (r *RefreshCoordinator) Refresh(ctx context.Context, workspaceID string) (Credential, error) {
	v, err, _ := r.group.Do(workspaceID, func() (interface{}, error) {
		cred, err := r.store.Get(workspaceID)
		if err != nil {
			return Credential{}, fmt.Errorf("loading credential for workspace %s: %w", workspaceID, err)
		}
		refreshed, err := r.refresh(ctx, cred)
		if err != nil {
			return Credential{}, fmt.Errorf("refreshing token for workspace %s: %w", workspaceID, err)
		}
		if err := r.store.Put(refreshed); err != nil {
			r.log.Warn("credential store write failed after refresh; next restart may use stale token",
				zap.String("workspace_id", workspaceID), zap.Error(err))
		}
		if r.onDone != nil {
			if err := r.onDone(refreshed); err != nil {
				r.log.Warn("onTokenRefresh callback failed; refresh itself succeeded",
					zap.String("workspace_id", workspaceID), zap.Error(err))
			}
		}
		return refreshed, nil
	})
	if err != nil {
		return Credential{}, err
	}
	return v.(Credential), nil
}

// AuthorizedRoundTripper wraps an http.RoundTripper with the 401-triggers-
// singleflight-refresh-then-retry-once protocol of spec.md §4.1. A second
// 401 after the retry is surfaced rather than looping.
type AuthorizedRoundTripper struct {
	Base        http.RoundTripper
	Coordinator *RefreshCoordinator
	WorkspaceID string
	// TokenHeader sets the Authorization header on req from cred.
	TokenHeader func(req *http.Request, cred Credential)
	Current     func() (Credential, error) // current token, read fresh on every request
}

// RoundTrip implements http.RoundTripper.
func (rt *AuthorizedRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	base := rt.Base
	if base == nil {
		base = http.DefaultTransport
	}

	cred, err := rt.Current()
	if err != nil {
		return nil, fmt.Errorf("loading current credential: %w", err)
	}
	rt.TokenHeader(req, cred)

	reqClone := cloneRequest(req)
	resp, err := base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	resp.Body.Close()

	refreshed, err := rt.Coordinator.Refresh(req.Context(), rt.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("refreshing after 401: %w", err)
	}

	retryReq := cloneRequest(reqClone)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewinding request body for retry: %w", err)
		}
		retryReq.Body = body
	}
	rt.TokenHeader(retryReq, refreshed)
	retryResp, err := base.RoundTrip(retryReq)
	if err != nil {
		return nil, err
	}
	if retryResp.StatusCode == http.StatusUnauthorized {
		return retryResp, fmt.Errorf("second 401 after refresh for workspace %s", rt.WorkspaceID)
	}
	return retryResp, nil
}

func cloneRequest(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())
	return clone
}
