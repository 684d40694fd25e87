// Package relay implements the Activity Relay (spec.md §4.7): it
// subscribes to the runner-event subjects the session manager publishes
// and projects them into tracker activities, with per-subroutine
// suppression and the attachment-upload post-tool hook.
package relay

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sylas-dev/sylas/internal/common/logger"
	"github.com/sylas-dev/sylas/internal/events"
	"github.com/sylas-dev/sylas/internal/events/bus"
	"github.com/sylas-dev/sylas/internal/runner"
	"github.com/sylas-dev/sylas/internal/trackersvc"
)

// TrackerLookup resolves the Tracker instance that owns a session, given
// its external session id. internal/session.Manager.TrackerForSession
// satisfies this.
type TrackerLookup func(externalSessionID string) (trackersvc.Tracker, error)

// Config wires a Relay's collaborators.
type Config struct {
	Bus        bus.EventBus
	TrackerFor TrackerLookup
	Log        *logger.Logger
}

// Relay projects one process's worth of runner events into tracker
// activities. One Relay instance serves every session; per-session state
// is the pending-thought buffer keyed by external session id.
type Relay struct {
	cfg Config

	mu      sync.Mutex
	pending map[string]string // external session id -> buffered assistant text awaiting classification
	sub     bus.Subscription
}

// New builds a Relay. Call Start to begin consuming the bus.
func New(cfg Config) *Relay {
	return &Relay{cfg: cfg, pending: make(map[string]string)}
}

// Start subscribes to every session's runner-event subject.
func (r *Relay) Start() error {
	sub, err := r.cfg.Bus.Subscribe(events.BuildRunnerEventWildcard(), r.handle)
	if err != nil {
		return fmt.Errorf("subscribing activity relay to runner events: %w", err)
	}
	r.sub = sub
	return nil
}

// Stop unsubscribes the relay from the bus. Idempotent.
func (r *Relay) Stop() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Unsubscribe()
}

func (r *Relay) handle(ctx context.Context, ev *bus.Event) error {
	d := ev.Data
	sid, _ := d["external_session_id"].(string)
	kind, _ := d["kind"].(string)
	text, _ := d["text"].(string)
	toolName, _ := d["tool_name"].(string)
	isError, _ := d["is_error"].(bool)
	suppress, _ := d["suppress_thought"].(bool)
	singleTurn, _ := d["single_turn"].(bool)

	tracker, err := r.cfg.TrackerFor(sid)
	if err != nil {
		r.cfg.Log.WithError(err).Warn("activity relay: no tracker for session", zap.String("external_session_id", sid))
		return nil
	}

	switch runner.EventKind(kind) {
	case runner.EventAssistant:
		if singleTurn {
			return nil // spec.md §4.7: for single_turn subroutines, complete is the ONLY activity.
		}
		r.setPending(sid, text)
		return nil

	case runner.EventToolUse:
		if singleTurn {
			return nil
		}
		if pending, ok := r.takePending(sid); ok {
			r.post(ctx, tracker, sid, trackersvc.ActivityThought, pending, suppress)
		}
		r.post(ctx, tracker, sid, trackersvc.ActivityAction, describeToolUse(toolName), suppress)
		return nil

	case runner.EventComplete, runner.EventError:
		r.clearPending(sid)
		if isError || runner.EventKind(kind) == runner.EventError {
			r.post(ctx, tracker, sid, trackersvc.ActivityResponse, "Session ended with an error: "+text, false)
			return nil
		}
		r.post(ctx, tracker, sid, trackersvc.ActivityResponse, text, false)
		return nil

	default:
		return nil
	}
}

func describeToolUse(toolName string) string {
	if toolName == "" {
		return "Used a tool."
	}
	return fmt.Sprintf("Used %s.", toolName)
}

// post creates a tracker activity, silently dropping thought/action
// activities when suppress is set (spec.md §4.7's suppress_thought_posting
// rule). A CreateAgentActivity failure is logged, never returned — a
// relay failure must not disturb session lifecycle handling.
func (r *Relay) post(ctx context.Context, tracker trackersvc.Tracker, sid string, kind trackersvc.ActivityKind, body string, suppress bool) {
	if suppress && (kind == trackersvc.ActivityThought || kind == trackersvc.ActivityAction) {
		return
	}
	if err := tracker.CreateAgentActivity(ctx, sid, trackersvc.Activity{Kind: kind, Body: body}); err != nil {
		r.cfg.Log.WithError(err).Warn("activity relay: failed posting activity",
			zap.String("external_session_id", sid), zap.String("kind", string(kind)))
		return
	}
	if r.cfg.Bus != nil {
		subject := events.ActivityPosted
		_ = r.cfg.Bus.Publish(ctx, subject, bus.NewEvent(subject, "activity.relay", map[string]interface{}{
			"external_session_id": sid,
			"kind":                string(kind),
			"body":                body,
		}))
	}
}

func (r *Relay) setPending(sid, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[sid] = text
}

func (r *Relay) takePending(sid string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	text, ok := r.pending[sid]
	delete(r.pending, sid)
	return text, ok
}

func (r *Relay) clearPending(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, sid)
}
