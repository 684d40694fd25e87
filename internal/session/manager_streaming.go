package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sylas-dev/sylas/internal/common/config"
	"github.com/sylas-dev/sylas/internal/events"
	"github.com/sylas-dev/sylas/internal/translate"
)

// handleUserPrompt implements spec.md §4.6's new-prompt decision:
//
//   - unknown session id: treated as an implicit session_start (a
//     mention on an issue with no session yet creates one).
//   - awaiting approval: the already-advanced-to subroutine is spawned
//     directly, skipping reclassification (spec.md §8 scenario 4).
//   - live streaming-capable runner: the prompt is injected into the
//     SAME process via AddStreamMessage and procedure state is reset
//     from scratch (spec.md §4.6, §8 scenario 3).
//   - otherwise: any live runner is stopped and a fresh subroutine is
//     spawned against a freshly classified procedure, honoring a resume
//     session id when the runner type is unchanged.
func (m *Manager) handleUserPrompt(ctx context.Context, repo config.Repository, msg *translate.Message) error {
	p := msg.UserPrompt
	if p == nil {
		return fmt.Errorf("user_prompt message missing payload")
	}

	s := m.sessionFor(msg.SessionKey)
	if s == nil {
		return m.handleSessionStart(ctx, repo, &translate.Message{
			ID: msg.ID, Source: msg.Source, Kind: translate.KindSessionStart,
			ReceivedAt: msg.ReceivedAt, OrgID: msg.OrgID, SessionKey: msg.SessionKey, Issue: msg.Issue,
			SessionStart: &translate.SessionStartPayload{InitialPrompt: p.Text},
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status == StatusEnded {
		return nil // spec.md §8: prompt after end is a no-op, not a resurrection.
	}

	if s.Status == StatusAwaitingApproval {
		s.Status = StatusActive
		m.publishEvent(ctx, events.SessionAdvanced, s, map[string]interface{}{"reason": "approved"})
		return m.spawnCurrentSubroutine(ctx, s, p.Text, "")
	}

	if s.IsLiveStreaming() {
		if err := s.runtime.AddStreamMessage(ctx, p.Text); err != nil {
			return fmt.Errorf("injecting prompt into live %s session: %w", s.RunnerType, err)
		}
		procName, _ := m.cfg.Engine.Classify(ctx, p.Text, s.Labels, repo.LabelPrompts)
		s.Procedure = m.cfg.Engine.Init(procName)
		s.UpdatedAt = time.Now()
		m.cfg.Log.Info("reclassified and injected prompt into live runner",
			zap.String("external_session_id", s.ExternalSessionID), zap.String("procedure", procName))
		m.Save()
		return nil
	}

	if s.runtime != nil {
		stopCtx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
		s.runtime.Stop(stopCtx)
		cancel()
		s.runtime = nil
	}

	procName, _ := m.cfg.Engine.Classify(ctx, p.Text, s.Labels, repo.LabelPrompts)
	s.Procedure = m.cfg.Engine.Init(procName)

	resumeID := ""
	if id, ok := s.ResumeSessionID(s.RunnerType); ok {
		resumeID = id
	}
	if model, ok := modelOverrideForResume(s.Labels, m.cfg.Runners, s.RunnerType); ok {
		s.Model = model
	} else {
		for _, label := range s.Labels {
			if rt, found := runnerForModel(label); found {
				m.cfg.Log.Warn("discarding model override whose runner type differs from the resumed runner",
					zap.String("external_session_id", s.ExternalSessionID),
					zap.String("label", label), zap.String("label_runner_type", string(rt)),
					zap.String("runner_type", string(s.RunnerType)))
				break
			}
		}
	}

	m.cfg.Log.Info("resuming session on new prompt",
		zap.String("external_session_id", s.ExternalSessionID),
		zap.String("procedure", procName))
	m.publishEvent(ctx, events.SessionResumed, s, map[string]interface{}{"procedure": procName})

	s.Status = StatusActive
	s.UpdatedAt = time.Now()
	err := m.spawnCurrentSubroutine(ctx, s, p.Text, resumeID)
	m.Save()
	return err
}
