package bus

import "github.com/sylas-dev/sylas/internal/common/logger"

// New returns a NATS-backed bus when url is non-empty, falling back to the
// in-process MemoryEventBus otherwise — the same dual-backend shape the
// teacher uses so a single-process deployment needs no external broker.
func New(url, clientID string, log *logger.Logger) (EventBus, error) {
	if url == "" {
		return NewMemoryEventBus(log), nil
	}
	return NewNATSEventBus(url, clientID, log)
}
