package ingress

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sylas-dev/sylas/internal/common/appctx"
	"github.com/sylas-dev/sylas/internal/common/config"
	"github.com/sylas-dev/sylas/internal/session"
	"github.com/sylas-dev/sylas/internal/translate"
)

// webhookProbe peeks a tracker webhook's type/action/organization fields
// without committing to any one translator's envelope shape. Linear
// carries all three at the top level; the cli-mock envelope (internal/
// translate/climock.go) has no "type" field at all, which is exactly how
// this probe tells the two apart.
type webhookProbe struct {
	Type           string `json:"type"`
	Action         string `json:"action"`
	OrganizationID string `json:"organizationId"`
	OrgID          string `json:"org_id"`
}

// handleWebhook implements spec.md §4.3's numbered steps for the tracker
// webhook endpoint (everything but Slack, which has its own endpoint and
// its own url_verification handshake).
func (s *Server) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "reading body"})
		return
	}

	if err := s.verifyWebhook(c.Request, body); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "verification failed"})
		return
	}

	s.activeWebhooks.Add(1)
	defer s.activeWebhooks.Add(-1)

	ctx := appctx.WithCorrelationID(c.Request.Context(), uuid.NewString())
	log := s.cfg.Log.WithContext(ctx)

	var probe webhookProbe
	_ = json.Unmarshal(body, &probe)

	rawType, rawAction, trackerID, orgID := classifyProbe(probe)

	tctx := translate.Context{TrackerID: trackerID, OrgID: orgID}
	msg, err := s.cfg.Translator.Translate(ctx, tctx, rawType, rawAction, body)
	if err != nil {
		log.Info("webhook ignored: translation failure",
			zap.String("tracker_id", trackerID), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"success": true, "ignored": true})
		return
	}
	ctx = appctx.WithSessionID(ctx, msg.SessionKey)
	log = s.cfg.Log.WithContext(ctx)

	if deliveryID := c.GetHeader("X-Sylas-Delivery-Id"); deliveryID != "" {
		if s.dedup.seenBefore(msg.SessionKey + ":" + deliveryID) {
			log.Info("webhook ignored: duplicate delivery", zap.String("delivery_id", deliveryID))
			c.JSON(http.StatusOK, gin.H{"success": true, "ignored": true, "duplicate": true})
			return
		}
	}

	repo, ok := s.resolveRepository(trackerID, orgID, msg)
	if !ok {
		log.Info("webhook ignored: no repository matches tracker workspace",
			zap.String("tracker_id", trackerID), zap.String("org_id", orgID))
		c.JSON(http.StatusOK, gin.H{"success": true, "ignored": true})
		return
	}
	s.cfg.Manager.CacheRepository(msg.Issue.WorkItemID, repo.ID)

	if err := s.cfg.Manager.Handle(ctx, repo, msg); err != nil {
		if err == session.ErrShuttingDown {
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "shutting down"})
			return
		}
		log.WithError(err).Error("webhook handling failed")
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// classifyProbe maps a peeked envelope to the (rawType, rawAction,
// trackerID, orgID) registry.Translate needs. A populated top-level
// "type" field means Linear; its absence with a populated "action" field
// means the cli-mock envelope, which never echoes a type of its own.
func classifyProbe(p webhookProbe) (rawType, rawAction, trackerID, orgID string) {
	if p.Type != "" {
		return p.Type, p.Action, "linear", p.OrganizationID
	}
	return "mock", p.Action, "cli-mock", p.OrgID
}

// resolveRepository implements the routing rule in spec.md §4.3: prefer
// the issue→repository cache, otherwise offer the webhook to the first
// active repository whose tracker id and tracker-workspace match.
func (s *Server) resolveRepository(trackerID, orgID string, msg *translate.Message) (config.Repository, bool) {
	if msg.Issue.WorkItemID != "" {
		if repoID, ok := s.cfg.Manager.CachedRepository(msg.Issue.WorkItemID); ok {
			for _, r := range s.cfg.Cfg.Repositories {
				if r.ID == repoID {
					return r, true
				}
			}
		}
	}
	for _, r := range s.cfg.Cfg.Repositories {
		if !r.Active {
			continue
		}
		if r.TrackerID != trackerID {
			continue
		}
		if r.TrackerWorkspace != "" && r.TrackerWorkspace != orgID {
			continue
		}
		return r, true
	}
	return config.Repository{}, false
}
