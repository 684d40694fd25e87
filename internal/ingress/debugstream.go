package ingress

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sylas-dev/sylas/internal/common/logger"
	"github.com/sylas-dev/sylas/internal/events"
	"github.com/sylas-dev/sylas/internal/events/bus"
)

// debugStream is the SPEC_FULL.md-supplemented /debug/stream websocket
// (§4 "Supplemented features"): a one-way fan-out of every
// activity.posted event, grounded on the teacher's
// internal/gateway/websocket Hub/Client pair but trimmed to broadcast
// only, since Sylas has no client-originated message protocol.
type debugStream struct {
	log *logger.Logger

	mu      sync.Mutex
	clients map[string]chan []byte

	sub bus.Subscription
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func newDebugStream(log *logger.Logger) *debugStream {
	return &debugStream{log: log, clients: make(map[string]chan []byte)}
}

// subscribe wires the stream to the event bus's activity feed.
func (d *debugStream) subscribe(b bus.EventBus) error {
	sub, err := b.Subscribe(events.ActivityPosted, d.onActivity)
	if err != nil {
		return err
	}
	d.sub = sub
	return nil
}

func (d *debugStream) onActivity(ctx context.Context, ev *bus.Event) error {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil
	}
	d.broadcast(payload)
	return nil
}

func (d *debugStream) broadcast(payload []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, ch := range d.clients {
		select {
		case ch <- payload:
		default:
			d.log.Warn("debug stream: client send buffer full, dropping message", zap.String("client_id", id))
		}
	}
}

// handleConnection upgrades one HTTP request to a websocket and streams
// activity broadcasts to it until the client disconnects.
func (d *debugStream) handleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		d.log.WithError(err).Warn("debug stream: upgrade failed")
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	send := make(chan []byte, 64)
	d.register(id, send)
	defer d.unregister(id)

	go d.discardReads(conn)

	for payload := range send {
		if err := conn.WriteMessage(gorillaws.TextMessage, payload); err != nil {
			return
		}
	}
}

// discardReads drains and ignores any client-sent frames; this endpoint
// is observability-only and has no inbound protocol, but the read loop
// is still required to notice the client closing the connection.
func (d *debugStream) discardReads(conn *gorillaws.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (d *debugStream) register(id string, ch chan []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[id] = ch
}

func (d *debugStream) unregister(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.clients[id]; ok {
		close(ch)
		delete(d.clients, id)
	}
}

// close unsubscribes from the bus and drops every connected client.
func (d *debugStream) close() {
	if d.sub != nil {
		_ = d.sub.Unsubscribe()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, ch := range d.clients {
		close(ch)
		delete(d.clients, id)
	}
}
