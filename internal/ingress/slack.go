package ingress

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sylas-dev/sylas/internal/session"
	"github.com/sylas-dev/sylas/internal/translate"
)

// slackEnvelopeProbe peeks the two fields this handler needs before
// deciding whether it's a handshake or an event callback.
type slackEnvelopeProbe struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	TeamID    string `json:"team_id"`
	Event     struct {
		Type string `json:"type"`
	} `json:"event"`
}

// handleSlackWebhook implements spec.md §6's /slack-webhook row: bearer
// auth, an inline url_verification handshake, and otherwise the same
// translate → route → dispatch path as /webhook.
func (s *Server) handleSlackWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "reading body"})
		return
	}
	if err := verifyBearer(c.Request, s.cfg.Cfg.Server.APIKey); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "verification failed"})
		return
	}

	var probe slackEnvelopeProbe
	_ = json.Unmarshal(body, &probe)
	if probe.Type == "url_verification" {
		c.JSON(http.StatusOK, gin.H{"challenge": probe.Challenge})
		return
	}

	s.activeWebhooks.Add(1)
	defer s.activeWebhooks.Add(-1)

	ctx := c.Request.Context()
	tctx := translate.Context{TrackerID: "slack-mirror", OrgID: probe.TeamID}
	msg, err := s.cfg.Translator.Translate(ctx, tctx, probe.Type, probe.Event.Type, body)
	if err != nil {
		s.cfg.Log.Info("slack webhook ignored: translation failure", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"success": true, "ignored": true})
		return
	}

	repo, ok := s.resolveRepository("slack-mirror", probe.TeamID, msg)
	if !ok {
		s.cfg.Log.Info("slack webhook ignored: no repository matches team", zap.String("team_id", probe.TeamID))
		c.JSON(http.StatusOK, gin.H{"success": true, "ignored": true})
		return
	}
	s.cfg.Manager.CacheRepository(msg.Issue.WorkItemID, repo.ID)

	if err := s.cfg.Manager.Handle(ctx, repo, msg); err != nil {
		if err == session.ErrShuttingDown {
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "shutting down"})
			return
		}
		s.cfg.Log.WithError(err).Error("slack webhook handling failed", zap.String("session_key", msg.SessionKey))
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
