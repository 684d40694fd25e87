// Package ingress implements Sylas's inbound HTTP surface (spec.md §4.3,
// §6): webhook verification, translation dispatch, repository routing,
// and the status/debug-stream endpoints. It is the only package that
// depends on both internal/translate and internal/session, gluing the
// two together the way the teacher's cmd/kandev main wires its gateway
// packages to its services.
package ingress

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/sylas-dev/sylas/internal/common/config"
	"github.com/sylas-dev/sylas/internal/common/logger"
	"github.com/sylas-dev/sylas/internal/events/bus"
	"github.com/sylas-dev/sylas/internal/session"
	"github.com/sylas-dev/sylas/internal/translate"
)

// Translator is the subset of translate.NewRegistry's return value this
// package depends on. translate.registry is unexported, so Config holds
// it through this locally-defined interface instead of naming the
// concrete type.
type Translator interface {
	Translate(ctx context.Context, tctx translate.Context, rawType, rawAction string, body []byte) (*translate.Message, error)
}

// Config wires a Server's collaborators.
type Config struct {
	Cfg        *config.Config
	Translator Translator
	Manager    *session.Manager
	Bus        bus.EventBus
	Log        *logger.Logger
}

// Server hosts the gin router implementing spec.md §6's inbound HTTP
// table plus the SPEC_FULL.md-supplemented /debug/stream endpoint.
type Server struct {
	cfg Config

	activeWebhooks atomic.Int64
	stream         *debugStream
	dedup          *deliveryDedup

	router *gin.Engine
}

// NewServer builds a Server and registers its routes. Call Handler to
// get the http.Handler for an *http.Server.
func NewServer(cfg Config) *Server {
	if cfg.Log == nil {
		cfg.Log = logger.Default()
	}
	if cfg.Cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{cfg: cfg, stream: newDebugStream(cfg.Log), dedup: newDeliveryDedup(deliveryDedupCapacity)}
	if cfg.Bus != nil {
		if err := s.stream.subscribe(cfg.Bus); err != nil {
			cfg.Log.WithError(err).Warn("debug stream: failed subscribing to event bus")
		}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.POST("/webhook", s.handleWebhook)
	router.POST("/slack-webhook", s.handleSlackWebhook)
	router.GET("/status", s.handleStatus)
	router.GET("/debug/stream", s.stream.handleConnection)
	s.router = router
	return s
}

// Handler returns the http.Handler to mount on an *http.Server.
func (s *Server) Handler() http.Handler { return s.router }

// Close releases ingress-owned resources (the debug stream's websocket
// hub). It does not touch the HTTP server itself; that is cmd/sylas's
// responsibility via http.Server.Shutdown.
func (s *Server) Close() {
	s.stream.close()
}
