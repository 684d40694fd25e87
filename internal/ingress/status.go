package ingress

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleStatus implements the GET /status row of spec.md §4.3: idle iff
// the active-webhook gauge is zero AND no session reports a running
// runner.
func (s *Server) handleStatus(c *gin.Context) {
	status := "busy"
	if s.activeWebhooks.Load() == 0 && s.cfg.Manager.IsIdle() {
		status = "idle"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
