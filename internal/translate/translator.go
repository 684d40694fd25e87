package translate

import "context"

// Context carries the out-of-band information a translator needs beyond
// the raw payload itself: which tracker sent it, which organization it
// belongs to, and (for trackers that need it, e.g. Slack) a bot token to
// resolve display names.
type Context struct {
	TrackerID string
	OrgID     string
	BotToken  string
}

// Translator converts one tracker's verified webhook bodies into the
// closed Message set. One implementation per tracker, selected by
// Context.TrackerID — mirrors the one-interface-one-file-per-variant
// shape used throughout this codebase's tracker and runner packages.
type Translator interface {
	// CanTranslate reports whether this translator recognizes the given
	// type/action combination well enough to attempt a translation. A
	// false here is not itself a Failure — callers may try other
	// translators or fail with a generic reason.
	CanTranslate(rawType, rawAction string) bool

	// Translate converts body into a Message, or returns a *Failure
	// naming why the payload was rejected. Translate is never called
	// with a (type, action) CanTranslate rejected.
	Translate(ctx context.Context, tctx Context, body []byte) (*Message, error)
}

// agentSessionMarker is the substring Linear and Slack both use to tag a
// comment as the one that opened an agent session, so the translator can
// tell a direct session-open from an @mention elsewhere in a thread.
const agentSessionMarker = "<!-- agent-session -->"

// registry resolves a Translator by tracker id.
type registry struct {
	byTracker map[string]Translator
}

// NewRegistry builds a registry from the given tracker-id → Translator
// pairs.
func NewRegistry(translators map[string]Translator) *registry {
	return &registry{byTracker: translators}
}

// Translate looks up the translator for tctx.TrackerID and delegates.
// An unknown tracker id is itself a Failure, matching §4.2's strictness:
// never silently pass through.
func (r *registry) Translate(ctx context.Context, tctx Context, rawType, rawAction string, body []byte) (*Message, error) {
	t, ok := r.byTracker[tctx.TrackerID]
	if !ok {
		return nil, NewFailure("no translator registered for tracker " + tctx.TrackerID)
	}
	if !t.CanTranslate(rawType, rawAction) {
		return nil, NewFailure("unrecognized type/action combination: " + rawType + "/" + rawAction)
	}
	return t.Translate(ctx, tctx, body)
}
