package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sylas-dev/sylas/internal/common/config"
	"github.com/sylas-dev/sylas/internal/events"
	"github.com/sylas-dev/sylas/internal/procedure"
	"github.com/sylas-dev/sylas/internal/runner"
	"github.com/sylas-dev/sylas/internal/translate"
)

// handleSessionStart allocates a session, classifies its initial
// procedure, resolves a runner, provisions a workspace, and spawns the
// first subroutine (spec.md §4.6).
func (m *Manager) handleSessionStart(ctx context.Context, repo config.Repository, msg *translate.Message) error {
	p := msg.SessionStart
	if p == nil {
		return fmt.Errorf("session_start message missing payload")
	}

	s, created := m.createSession(msg.SessionKey, func() *Session {
		return &Session{
			ExternalSessionID:   msg.SessionKey,
			RunnerSessionIDs:    procedure.RunnerSessionIDs{},
			Issue:               IssueContext{TrackerID: msg.Issue.TrackerID, OrgID: msg.OrgID, WorkItemID: msg.Issue.WorkItemID, Identifier: msg.Issue.Identifier},
			RepositoryID:        repo.ID,
			RepoAllowedTools:    repo.AllowedTools,
			RepoDisallowedTools: repo.DisallowedTools,
			RepoRuntime:         repo.Runtime,
			RepoContainerImage:  repo.ContainerImage,
			Labels:              p.Labels,
			Status:              StatusPending,
			CreatedAt:           time.Now(),
			UpdatedAt:           time.Now(),
		}
	})
	if !created {
		// spec.md §8: handling the same session_start twice is a no-op.
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tracker, err := m.tracker(repo)
	if err != nil {
		return err
	}
	issue, err := tracker.FetchIssue(ctx, msg.Issue.WorkItemID)
	if err != nil {
		return fmt.Errorf("fetching issue for session start: %w", err)
	}

	workspacePath, err := m.cfg.CreateWorkspace(ctx, repo, issue)
	if err != nil {
		return fmt.Errorf("creating workspace: %w", err)
	}
	s.WorkspacePath = workspacePath

	procName, _ := m.cfg.Engine.Classify(ctx, p.InitialPrompt, p.Labels, repo.LabelPrompts)
	s.Procedure = m.cfg.Engine.Init(procName)

	sel := resolveRunnerAndModel(p.InitialPrompt, p.Labels, m.cfg.Runners, m.cfg.DefaultRunnerType)
	s.RunnerType = sel.RunnerType
	s.Model = sel.Model

	m.cfg.Log.Info("session started",
		zap.String("external_session_id", s.ExternalSessionID),
		zap.String("issue", s.Issue.Identifier),
		zap.String("procedure", procName),
		zap.String("runner_type", string(s.RunnerType)))

	m.publishEvent(ctx, events.SessionCreated, s, map[string]interface{}{"procedure": procName})

	if err := m.spawnCurrentSubroutine(ctx, s, p.InitialPrompt, ""); err != nil {
		return fmt.Errorf("spawning initial subroutine: %w", err)
	}
	s.Status = StatusActive
	s.UpdatedAt = time.Now()
	m.Save()
	return nil
}

// handleStopSignal stops any live runner and ends the session
// (spec.md §4.6).
func (m *Manager) handleStopSignal(ctx context.Context, msg *translate.Message) error {
	return m.endSession(ctx, msg.SessionKey, "tracker stop signal")
}

// handleUnassign ends the session the same way a stop signal does; a
// second unassign on an already-ended session is a no-op (spec.md §8's
// idempotence law).
func (m *Manager) handleUnassign(ctx context.Context, msg *translate.Message) error {
	return m.endSession(ctx, msg.SessionKey, "unassigned from issue")
}

func (m *Manager) endSession(ctx context.Context, externalSessionID, reason string) error {
	s := m.sessionFor(externalSessionID)
	if s == nil {
		return nil // spec.md §8: unknown/already-gone session id is a no-op.
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status == StatusEnded {
		return nil // terminal; invariant 6.
	}
	if s.runtime != nil {
		stopCtx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
		s.runtime.Stop(stopCtx)
		cancel()
		s.runtime = nil
	}
	s.Status = StatusEnded
	s.UpdatedAt = time.Now()
	m.cfg.Log.Info("session ended", zap.String("external_session_id", s.ExternalSessionID), zap.String("reason", reason))
	m.publishEvent(ctx, events.SessionEnded, s, map[string]interface{}{"reason": reason})
	m.Save()
	return nil
}

// handleContentUpdate takes no session action; per spec.md §4.6 the
// updated issue is refetched lazily on the next event that needs it.
func (m *Manager) handleContentUpdate(ctx context.Context, msg *translate.Message) error {
	return nil
}

// spawnCurrentSubroutine spawns a runner for the subroutine at the
// session's current procedure index, with promptText as the initial
// prompt and resumeSessionID honored only when it matches the session's
// runner type.
func (m *Manager) spawnCurrentSubroutine(ctx context.Context, s *Session, promptText, resumeSessionID string) error {
	sub := m.cfg.Engine.GetCurrentSubroutine(s.Procedure)
	if sub == nil {
		s.Status = StatusCompleting
		return nil
	}
	return m.spawnSubroutine(ctx, s, *sub, promptText, resumeSessionID)
}

func (m *Manager) spawnSubroutine(ctx context.Context, s *Session, sub procedure.Subroutine, promptText, resumeSessionID string) error {
	sup, err := m.cfg.BuildRunner(s.RunnerType, s.ExternalSessionID, s.RepoRuntime, s.RepoContainerImage)
	if err != nil {
		return fmt.Errorf("building %s runner: %w", s.RunnerType, err)
	}

	var hooks []runner.PostToolHook
	if m.cfg.PostToolHooks != nil {
		hooks = m.cfg.PostToolHooks(s)
	}

	opts := runner.StartOptions{
		Prompt:           fmt.Sprintf("[%s] %s", sub.PromptRef, promptText),
		WorkingDir:       s.WorkspacePath,
		Model:            s.Model,
		ResumeSessionID:  resumeSessionID,
		DisallowAllTools: sub.DisallowAllTools,
		AllowedTools:     mergeTools(sub.AllowedTools, s.RepoAllowedTools),
		DisallowedTools:  mergeTools(sub.DisallowedTools, s.RepoDisallowedTools),
		MCPServers:       runner.MergeMCPConfig(s.WorkspacePath, nil, nil),
		PostToolHooks:    hooks,
	}

	var ch <-chan runner.Event
	if runner.SupportsStreaming(s.RunnerType) {
		ch, err = sup.StartStreaming(ctx, opts)
	} else {
		ch, err = sup.Start(ctx, opts)
	}
	if err != nil {
		return fmt.Errorf("starting %s runner for subroutine %s: %w", s.RunnerType, sub.Name, err)
	}

	s.runtime = sup
	s.runtimeDone = false

	go m.runSubroutineEventLoop(ctx, s, sub, ch)
	return nil
}

// mergeTools concatenates a subroutine-level list with a repository-level
// fallback, subroutine entries first.
func mergeTools(subroutineLevel, repoLevel []string) []string {
	if len(subroutineLevel) == 0 {
		return repoLevel
	}
	return append(append([]string{}, subroutineLevel...), repoLevel...)
}
