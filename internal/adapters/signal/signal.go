// Package signal is the WebSocket relay: it shuttles handshake blobs
// between one producer and the viewers of the same session, and feeds
// input events into the router. It holds no protocol intelligence of its
// own; all negotiation lives in the endpoints.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avdeyev/gamecast/internal/app/input"
	"github.com/avdeyev/gamecast/internal/app/orch"
	"github.com/avdeyev/gamecast/internal/core"
	"github.com/avdeyev/gamecast/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller terminates signaling sockets for both roles. It implements
// core.Notifier so the app layer can push lifecycle events without
// knowing the wire format.
type Controller struct {
	Orch   *orch.Orchestrator
	Inputs *input.Router
	joins  *JoinRateLimiter
}

func NewController(o *orch.Orchestrator, inputs *input.Router) *Controller {
	ctl := &Controller{
		Orch:   o,
		Inputs: inputs,
		joins:  NewJoinRateLimiter(10, time.Minute),
	}
	o.Notifier = ctl
	return ctl
}

// wsConn is the transport endpoint handed to the registry. The adapter
// owns it and closes it when either pump exits.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{conn: ws, send: make(chan core.Frame, 32)}
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleProducer upgrades a producer-side connection.
func (ctl *Controller) HandleProducer(ctx context.Context, c *gin.Context) {
	ctl.handle(ctx, c, ctl.dispatchProducer)
}

// HandleViewer upgrades a viewer-side connection.
func (ctl *Controller) HandleViewer(ctx context.Context, c *gin.Context) {
	ctl.handle(ctx, c, ctl.dispatchViewer)
}

type dispatchFunc func(id domain.ConnID, conn *wsConn, data []byte)

func (ctl *Controller) handle(ctx context.Context, c *gin.Context, dispatch dispatchFunc) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	id := domain.NewConnID()
	conn := newWSConn(ws)
	log.Info().Str("module", "signal").Str("conn", string(id)).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, id, conn, dispatch)
		ctl.joins.Forget(id)
		ctl.Orch.OnDisconnect(id)
	}()
}

// ViewerJoined implements core.Notifier.
func (ctl *Controller) ViewerJoined(producer *core.Peer, sid domain.SessionID, viewer domain.ConnID) {
	ctl.sendJSON(producer.Conn, ViewerJoined{Type: KindViewerJoined, Session: sid, Viewer: viewer})
}

// SessionEnded implements core.Notifier.
func (ctl *Controller) SessionEnded(sid domain.SessionID, peers []*core.Peer) {
	msg := SessionEnded{Type: KindSessionEnded, Session: sid}
	for _, p := range peers {
		ctl.sendJSON(p.Conn, msg)
	}
}
