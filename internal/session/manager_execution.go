package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sylas-dev/sylas/internal/events"
	"github.com/sylas-dev/sylas/internal/procedure"
	"github.com/sylas-dev/sylas/internal/runner"
)

// runSubroutineEventLoop drains one runner invocation's event channel,
// forwarding every event onto the bus and recording the runner-assigned
// session id as soon as it's known. On EventComplete/EventError it
// applies the subroutine's completion policy (validation loop, approval
// gate, or plain advance) and spawns whatever comes next.
//
// This runs on its own goroutine for the lifetime of one runner process;
// ctx is the request ctx the spawning handler ran under, which by then
// has already returned — runner processes outlive the webhook request
// that started them (spec.md §4.4).
func (m *Manager) runSubroutineEventLoop(ctx context.Context, s *Session, sub procedure.Subroutine, ch <-chan runner.Event) {
	bgCtx := context.Background()
	var finalText string
	var sawError bool

	for ev := range ch {
		s.mu.Lock()
		if ev.RunnerSessionID != "" {
			s.SetRunnerSessionID(s.RunnerType, ev.RunnerSessionID)
		}
		m.publishRunnerEvent(bgCtx, s, ev)
		s.mu.Unlock()

		switch ev.Kind {
		case runner.EventComplete:
			finalText = ev.Text
			sawError = ev.IsError
		case runner.EventError:
			finalText = ev.Text
			sawError = true
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runtimeDone = true
	s.runtime = nil

	if s.Status == StatusEnded {
		return // stopped out from under us (stop_signal/unassign raced completion).
	}
	if sawError {
		m.cfg.Log.Warn("subroutine runner reported an error",
			zap.String("external_session_id", s.ExternalSessionID),
			zap.String("subroutine", sub.Name),
			zap.String("detail", finalText))
		s.Status = StatusEnded
		m.publishEvent(bgCtx, events.SessionEnded, s, map[string]interface{}{"reason": "runner error: " + finalText})
		m.Save()
		return
	}

	if sub.Name == procedure.ValidationFixerName {
		// The fixer just ran; it doesn't decide pass/fail itself, so
		// re-run the still-current verifications subroutine (its index
		// was never advanced) to check whether the fix actually worked,
		// rather than advancing past validation unconditionally.
		if err := m.spawnCurrentSubroutine(bgCtx, s, "", ""); err != nil {
			m.cfg.Log.WithError(err).Error("failed respawning validation after fixer")
			s.Status = StatusEnded
			m.Save()
		}
		return
	}

	if sub.UsesValidationLoop {
		result := procedure.ParseValidationResult(finalText)
		needsFixer, capExceeded := m.cfg.Engine.HandleValidationResult(s.Procedure, result)
		if capExceeded {
			s.Status = StatusEnded
			m.cfg.Log.Warn("validation loop exceeded its iteration cap",
				zap.String("external_session_id", s.ExternalSessionID))
			m.publishEvent(bgCtx, events.SessionEnded, s, map[string]interface{}{"reason": "validation cap exceeded"})
			m.Save()
			return
		}
		if needsFixer {
			fixer := procedure.FixerSubroutine()
			if err := m.spawnSubroutine(bgCtx, s, fixer, result.Reason, ""); err != nil {
				m.cfg.Log.WithError(err).Error("failed spawning validation fixer")
				s.Status = StatusEnded
				m.Save()
			}
			return
		}
	}

	m.cfg.Engine.Advance(s.Procedure, s.RunnerSessionIDs, finalText)
	m.publishEvent(bgCtx, events.SessionAdvanced, s, map[string]interface{}{"completed_subroutine": sub.Name})

	if m.cfg.Engine.IsComplete(s.Procedure) {
		s.Status = StatusEnded
		m.cfg.Log.Info("procedure complete", zap.String("external_session_id", s.ExternalSessionID))
		m.publishEvent(bgCtx, events.SessionEnded, s, map[string]interface{}{"reason": "procedure complete"})
		m.Save()
		return
	}

	next := m.cfg.Engine.GetCurrentSubroutine(s.Procedure)
	if next != nil && next.RequiresApproval {
		s.Status = StatusAwaitingApproval
		m.cfg.Log.Info("subroutine awaiting approval",
			zap.String("external_session_id", s.ExternalSessionID), zap.String("subroutine", next.Name))
		m.Save()
		return
	}

	if err := m.spawnCurrentSubroutine(bgCtx, s, "", ""); err != nil {
		m.cfg.Log.WithError(err).Error("failed spawning next subroutine")
		s.Status = StatusEnded
	}
	s.UpdatedAt = time.Now()
	m.Save()
}
