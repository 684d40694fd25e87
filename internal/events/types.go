// Package events defines the internal event subjects Sylas's components
// publish and subscribe to on the event bus (distinct from tracker
// activities and from the closed ingress message set in internal/translate).
package events

// Subjects for session lifecycle events.
const (
	SessionCreated  = "session.created"
	SessionResumed  = "session.resumed"
	SessionAdvanced = "session.advanced" // procedure engine moved to the next subroutine
	SessionEnded    = "session.ended"
)

// Subjects for runner-level events, fanned out by the runner supervisor.
const (
	RunnerStarted  = "runner.started"
	RunnerEvent    = "runner.event" // wraps runner.Event, subject suffixed by session id
	RunnerComplete = "runner.complete"
	RunnerError    = "runner.error"
)

// Subjects for activity-relay output, consumed by the debug stream and the
// audit log.
const (
	ActivityPosted = "activity.posted"
)

// BuildRunnerEventSubject scopes a runner-event subject to one session, so
// subscribers (activity relay, debug stream) can subscribe per-session
// without filtering every event bus message.
func BuildRunnerEventSubject(externalSessionID string) string {
	return RunnerEvent + "." + externalSessionID
}

// BuildRunnerEventWildcard returns the wildcard subject matching runner
// events for any session.
func BuildRunnerEventWildcard() string {
	return RunnerEvent + ".*"
}
