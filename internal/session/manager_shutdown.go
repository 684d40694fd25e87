package session

import (
	"context"

	"go.uber.org/zap"
)

// Shutdown implements spec.md §4.6's five-step graceful-shutdown
// sequence: stop accepting new work, cooperatively stop every live
// runner (bounded by ShutdownTimeout each), and flush a final snapshot.
// Safe to call more than once; subsequent calls are no-ops.
func (m *Manager) Shutdown(ctx context.Context) {
	if !m.shuttingDown.CompareAndSwap(false, true) {
		return
	}

	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.mu.Lock()
		if s.runtime != nil {
			stopCtx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
			if err := s.runtime.Stop(stopCtx); err != nil {
				m.cfg.Log.WithError(err).Warn("runner did not stop cleanly during shutdown",
					zap.String("external_session_id", s.ExternalSessionID))
			}
			cancel()
			s.runtime = nil
			s.runtimeDone = true
		}
		s.mu.Unlock()
	}

	m.Save()
	m.cfg.Log.Info("session manager shut down", zap.Int("session_count", len(sessions)))
}
