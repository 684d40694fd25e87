package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sylas-dev/sylas/internal/common/config"
	"github.com/sylas-dev/sylas/internal/common/logger"
	"github.com/sylas-dev/sylas/internal/events"
	"github.com/sylas-dev/sylas/internal/events/bus"
	"github.com/sylas-dev/sylas/internal/procedure"
	"github.com/sylas-dev/sylas/internal/runner"
	"github.com/sylas-dev/sylas/internal/trackersvc"
	"github.com/sylas-dev/sylas/internal/translate"
)

// CreateWorkspaceFunc provisions the git worktree a session runs in. Its
// implementation (worktree creation, global_setup_script invocation) is
// explicitly out of scope for this package (spec.md §1's "createWorkspace
// callback").
type CreateWorkspaceFunc func(ctx context.Context, repo config.Repository, issue *trackersvc.Issue) (workspacePath string, err error)

// Config wires a Manager's collaborators.
type Config struct {
	Engine          *procedure.Engine
	Factory         *runner.Factory
	Trackers        map[string]trackersvc.Tracker // keyed by Tracker.ID()
	Runners         config.RunnersConfig
	CreateWorkspace CreateWorkspaceFunc
	Bus             bus.EventBus
	Persister       Persister
	Log             *logger.Logger

	// BuildRunner constructs the Supervisor a subroutine spawn uses. It
	// defaults to Factory.Build, ignoring runtime/containerImage, so
	// deployments that never configure a repository's `runtime: docker`
	// (SPEC_FULL.md's containerized-runner supplement) need not set this.
	// cmd/sylas overrides it to route runtime=="docker" repositories
	// through internal/runner/dockerrt instead, keeping that package's
	// Docker SDK dependency out of this one (the same import-cycle-
	// avoidance shape used for PostToolHooks below).
	BuildRunner func(runnerType runner.Type, externalSessionID, runtime, containerImage string) (runner.Supervisor, error)

	// PostToolHooks, if set, supplies the post-tool-use hooks to attach to
	// every runner this session spawns (internal/relay's attachment-
	// upload guidance, spec.md §4.7). Kept as an injected func rather than
	// a direct dependency on internal/relay to avoid an import cycle
	// (relay subscribes to this package's bus events).
	PostToolHooks func(*Session) []runner.PostToolHook

	// ClassifierRunnerType selects which runner type backs the procedure
	// engine's classifier calls (spec.md §4.5). Defaults to Claude.
	ClassifierRunnerType runner.Type
	// DefaultRunnerType is used when no label/tag/default-model selects
	// one (modelselect.go). Defaults to Claude.
	DefaultRunnerType runner.Type

	// ShutdownTimeout bounds how long Shutdown waits for a single
	// runner's cooperative Stop before moving on (spec.md §4.6).
	ShutdownTimeout time.Duration
}

// Manager is the Session Lifecycle Manager (spec.md §4.6): the top-level
// owner of the session table, exclusively responsible for creating,
// resuming, and stopping sessions and gluing the procedure engine,
// runner supervisor, and tracker service together.
type Manager struct {
	cfg Config

	mu             sync.RWMutex
	sessions       map[string]*Session // keyed by ExternalSessionID
	issueRepoCache map[string]string   // issue work-item id -> repository id

	shuttingDown atomic.Bool
}

// NewManager builds a Manager. If cfg.Persister is non-nil, callers
// should call Replay before accepting webhook intake (spec.md §3's
// "replayed before webhook intake starts").
func NewManager(cfg Config) *Manager {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.ClassifierRunnerType == "" {
		cfg.ClassifierRunnerType = runner.TypeClaude
	}
	if cfg.DefaultRunnerType == "" {
		cfg.DefaultRunnerType = runner.TypeClaude
	}
	if cfg.BuildRunner == nil {
		cfg.BuildRunner = func(runnerType runner.Type, externalSessionID, _, _ string) (runner.Supervisor, error) {
			return cfg.Factory.Build(runnerType, externalSessionID)
		}
	}
	return &Manager{
		cfg:            cfg,
		sessions:       make(map[string]*Session),
		issueRepoCache: make(map[string]string),
	}
}

// Replay loads the last snapshot (if any) and repopulates the session
// table and issue→repository cache, restoring everything except live
// runner handles (spec.md §3, §8's round-trip law).
func (m *Manager) Replay() error {
	if m.cfg.Persister == nil {
		return nil
	}
	snap, err := m.cfg.Persister.Load()
	if err != nil {
		return fmt.Errorf("loading persistence snapshot: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, dto := range snap.Sessions {
		m.sessions[dto.ExternalSessionID] = FromDTO(dto)
	}
	for issueID, repoID := range snap.IssueRepoCache {
		m.issueRepoCache[issueID] = repoID
	}
	return nil
}

// Snapshot builds a persistable Snapshot of the current session table.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{
		Version:        SnapshotVersion,
		SavedAt:        time.Now(),
		IssueRepoCache: make(map[string]string, len(m.issueRepoCache)),
	}
	for issueID, repoID := range m.issueRepoCache {
		snap.IssueRepoCache[issueID] = repoID
	}
	for _, s := range m.sessions {
		s.mu.Lock()
		snap.Sessions = append(snap.Sessions, s.ToDTO())
		s.mu.Unlock()
	}
	return snap
}

// Save persists the current state immediately. A write failure is
// logged but never propagated to callers driving the hot path
// (spec.md §7's persistence error policy).
func (m *Manager) Save() {
	if m.cfg.Persister == nil {
		return
	}
	if err := m.cfg.Persister.Save(m.Snapshot()); err != nil {
		m.cfg.Log.WithError(err).Warn("persistence snapshot write failed; will retry on next state change")
	}
}

// CacheRepository records the issue→repository routing decision ingress
// made, so later events for the same issue skip re-resolution (spec.md
// §4.3).
func (m *Manager) CacheRepository(issueWorkItemID, repositoryID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issueRepoCache[issueWorkItemID] = repositoryID
}

// CachedRepository returns the routing decision cached for issueWorkItemID,
// if any.
func (m *Manager) CachedRepository(issueWorkItemID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.issueRepoCache[issueWorkItemID]
	return id, ok
}

// IsShuttingDown reports whether Shutdown has been called.
func (m *Manager) IsShuttingDown() bool {
	return m.shuttingDown.Load()
}

// IsIdle reports whether no session currently has a running runner —
// the condition the /status endpoint's "busy" half depends on beyond the
// active-webhook-count gauge (spec.md §4.3).
func (m *Manager) IsIdle() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		s.mu.Lock()
		running := s.runtime != nil && !s.runtimeDone
		s.mu.Unlock()
		if running {
			return false
		}
	}
	return true
}

// sessionFor returns the existing session for externalSessionID, or nil.
func (m *Manager) sessionFor(externalSessionID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[externalSessionID]
}

// createSession installs a new Session in the table under
// externalSessionID, returning the existing one instead if it's already
// present — the "handling the same session_start twice creates the
// session at most once" idempotence law (spec.md §8).
func (m *Manager) createSession(externalSessionID string, build func() *Session) (s *Session, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[externalSessionID]; ok {
		return existing, false
	}
	s = build()
	m.sessions[externalSessionID] = s
	return s, true
}

// Handle dispatches one translated message to the handler for its Kind.
// repo is the routing decision ingress already made for this webhook
// (spec.md §4.3's per-repository offer). Every code path through Handle
// runs with session.mu held for the duration of the handler, giving the
// per-external-session-id serialization spec.md §5 requires; webhooks
// for different sessions proceed fully in parallel since each session
// has its own mutex.
func (m *Manager) Handle(ctx context.Context, repo config.Repository, msg *translate.Message) error {
	if m.shuttingDown.Load() {
		return ErrShuttingDown
	}
	switch msg.Kind {
	case translate.KindSessionStart:
		return m.handleSessionStart(ctx, repo, msg)
	case translate.KindUserPrompt:
		return m.handleUserPrompt(ctx, repo, msg)
	case translate.KindStopSignal:
		return m.handleStopSignal(ctx, msg)
	case translate.KindUnassign:
		return m.handleUnassign(ctx, msg)
	case translate.KindContentUpdate:
		return m.handleContentUpdate(ctx, msg)
	default:
		return fmt.Errorf("session: unhandled message kind %q", msg.Kind)
	}
}

// ErrShuttingDown is returned by Handle once Shutdown has started; per
// spec.md §4.6 the HTTP layer turns this into an immediate 503 or a
// 200-ack-drop, at the caller's discretion.
var ErrShuttingDown = fmt.Errorf("session manager is shutting down")

// tracker resolves the Tracker instance for a repository's configured
// tracker id.
func (m *Manager) tracker(repo config.Repository) (trackersvc.Tracker, error) {
	id := repo.TrackerID
	if id == "" {
		id = "linear"
	}
	t, ok := m.cfg.Trackers[id]
	if !ok {
		return nil, fmt.Errorf("no tracker service registered for id %q (repository %s)", id, repo.ID)
	}
	return t, nil
}

// TrackerForSession resolves the Tracker instance that owns
// externalSessionID's issue, for callers outside this package
// (internal/relay) that need to post activities without duplicating the
// session table.
func (m *Manager) TrackerForSession(externalSessionID string) (trackersvc.Tracker, error) {
	s := m.sessionFor(externalSessionID)
	if s == nil {
		return nil, fmt.Errorf("session: no session for external id %q", externalSessionID)
	}
	s.mu.Lock()
	trackerID := s.Issue.TrackerID
	s.mu.Unlock()
	t, ok := m.cfg.Trackers[trackerID]
	if !ok {
		return nil, fmt.Errorf("no tracker service registered for id %q", trackerID)
	}
	return t, nil
}

// publishEvent publishes a session-lifecycle event on the bus; publish
// failures are logged, never propagated — the bus is an observability
// fan-out, not a correctness dependency.
func (m *Manager) publishEvent(ctx context.Context, subject string, s *Session, extra map[string]interface{}) {
	if m.cfg.Bus == nil {
		return
	}
	data := map[string]interface{}{"external_session_id": s.ExternalSessionID, "status": string(s.Status)}
	for k, v := range extra {
		data[k] = v
	}
	if err := m.cfg.Bus.Publish(ctx, subject, bus.NewEvent(subject, "session.manager", data)); err != nil {
		m.cfg.Log.WithError(err).Warn("failed publishing session event", zap.String("subject", subject))
	}
}

// publishRunnerEvent forwards one runner Event onto the bus, scoped to
// this session, so internal/relay and the audit log can consume it
// without the manager depending on either.
func (m *Manager) publishRunnerEvent(ctx context.Context, s *Session, ev runner.Event) {
	if m.cfg.Bus == nil {
		return
	}
	subject := events.BuildRunnerEventSubject(s.ExternalSessionID)
	data := map[string]interface{}{
		"external_session_id": s.ExternalSessionID,
		"kind":                string(ev.Kind),
		"runner_session_id":   ev.RunnerSessionID,
		"role":                ev.Role,
		"text":                ev.Text,
		"tool_name":           ev.ToolName,
		"is_error":            ev.IsError,
		"subroutine":          currentSubroutineName(s),
		"suppress_thought":    currentSubroutineSuppresses(m.cfg.Engine, s),
		"single_turn":         currentSubroutineSingleTurn(m.cfg.Engine, s),
	}
	if err := m.cfg.Bus.Publish(ctx, subject, bus.NewEvent(subject, "session.manager", data)); err != nil {
		m.cfg.Log.WithError(err).Warn("failed publishing runner event")
	}
}

func currentSubroutineName(s *Session) string {
	if s.Procedure == nil {
		return ""
	}
	return fmt.Sprintf("%s#%d", s.Procedure.ProcedureName, s.Procedure.CurrentIndex)
}

func currentSubroutineSuppresses(e *procedure.Engine, s *Session) bool {
	if e == nil || s.Procedure == nil {
		return false
	}
	sub := e.GetCurrentSubroutine(s.Procedure)
	return sub != nil && sub.SuppressThoughtPosting
}

func currentSubroutineSingleTurn(e *procedure.Engine, s *Session) bool {
	if e == nil || s.Procedure == nil {
		return false
	}
	sub := e.GetCurrentSubroutine(s.Procedure)
	return sub != nil && sub.SingleTurn
}
