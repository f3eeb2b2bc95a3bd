package eventhub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"svnscm/internal/repository"
)

// writeDeadline bounds a single WebSocket write.
const writeDeadline = 5 * time.Second

// readDeadline is extended on every pong; three missed pings drop the client.
const readDeadline = 90 * time.Second

const pingInterval = 30 * time.Second

// maxReadMessageSize limits client action messages.
const maxReadMessageSize = 32 * 1024

// refreshTimeout bounds a client-requested status refresh.
const refreshTimeout = 2 * time.Minute

var wsUpgrader = websocket.Upgrader{
	// The server binds to loopback only.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 32 * 1024,
}

// Source answers client actions.
type Source interface {
	Models() []repository.Model
	Refresh(ctx context.Context, root string) error
}

// Options configures a Hub.
type Options struct {
	// Addr is the listen address. Use "127.0.0.1:0" for an OS-assigned port.
	Addr   string
	Source Source
}

// Hub serves one UI client at a time. A new connection replaces the current
// one so a reloading UI reconnects cleanly.
//
// Lock ordering (never acquire in reverse):
//
//	writeMu -> mu
//
// Any write failure drops the client; it has to reconnect.
type Hub struct {
	opts Options

	mu   sync.RWMutex
	conn *websocket.Conn

	// writeMu serializes writes; gorilla/websocket allows one writer.
	writeMu sync.Mutex

	listener net.Listener
	server   *http.Server
	url      string

	closeOnce sync.Once
}

// NewHub returns an unstarted Hub.
func NewHub(opts Options) *Hub {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	return &Hub{opts: opts}
}

// Start listens on the configured address. ctx becomes the base context of
// every request. Start must be called once.
func (h *Hub) Start(ctx context.Context) error {
	if h.server != nil {
		return fmt.Errorf("eventhub: already started")
	}

	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("eventhub: listen: %w", err)
	}
	h.listener = ln
	h.url = fmt.Sprintf("ws://%s/ws", ln.Addr().String())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)

	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if serveErr := h.server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("[DEBUG-WS] server error", "error", serveErr)
		}
	}()

	slog.Info("[DEBUG-WS] server started", "url", h.url)
	return nil
}

// Stop closes the client and shuts the server down. It is idempotent.
func (h *Hub) Stop() error {
	var stopErr error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		conn := h.conn
		h.conn = nil
		h.mu.Unlock()

		if conn != nil {
			h.closeConn(conn, "hub stopped")
		}

		if h.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.server.Shutdown(shutdownCtx); err != nil {
				stopErr = fmt.Errorf("eventhub: shutdown: %w", err)
			}
		}
		slog.Info("[DEBUG-WS] server stopped")
	})
	return stopErr
}

// URL returns the client URL, or "" before Start.
func (h *Hub) URL() string {
	return h.url
}

// HasActiveConnection reports whether a client is connected.
func (h *Hub) HasActiveConnection() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn != nil
}

// Publish sends a frame to the connected client. Without a client the
// frame is dropped.
func (h *Hub) Publish(typ, repositoryRoot string, payload any) {
	h.mu.RLock()
	conn := h.conn
	h.mu.RUnlock()
	if conn == nil {
		return
	}
	h.send(conn, NewFrame(typ, repositoryRoot, payload))
}

func (h *Hub) send(conn *websocket.Conn, f Frame) {
	data, err := EncodeFrame(f)
	if err != nil {
		slog.Warn("[DEBUG-WS] failed to encode frame", "type", f.Type, "error", err)
		return
	}

	h.writeMu.Lock()
	if !h.setWriteDeadlineOrClose(conn, writeDeadline) {
		h.writeMu.Unlock()
		return
	}
	err = conn.WriteMessage(websocket.TextMessage, data)
	h.clearWriteDeadline(conn)
	h.writeMu.Unlock()

	if err != nil {
		slog.Warn("[DEBUG-WS] write failed, closing connection", "type", f.Type, "error", err)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "write error")
	}
}

func (h *Hub) sendError(conn *websocket.Conn, repositoryRoot, message string) {
	h.send(conn, NewFrame(TypeError, repositoryRoot, errorPayload{Message: message}))
}

// clearIfCurrent forgets conn if it is still the active client.
func (h *Hub) clearIfCurrent(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn != conn {
		return false
	}
	h.conn = nil
	return true
}

// closeConn tolerates connections already closed elsewhere.
func (h *Hub) closeConn(conn *websocket.Conn, reason string) {
	if err := conn.Close(); err != nil {
		slog.Debug("[DEBUG-WS] connection close", "reason", reason, "error", err)
	}
}

func (h *Hub) setWriteDeadlineOrClose(conn *websocket.Conn, d time.Duration) bool {
	if err := conn.SetWriteDeadline(time.Now().Add(d)); err != nil {
		slog.Warn("[DEBUG-WS] SetWriteDeadline failed, closing connection", "error", err)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "SetWriteDeadline failure")
		return false
	}
	return true
}

func (h *Hub) clearWriteDeadline(conn *websocket.Conn) {
	if err := conn.SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("[DEBUG-WS] clearWriteDeadline failed", "error", err)
	}
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[DEBUG-WS] upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(maxReadMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		slog.Warn("[DEBUG-WS] SetReadDeadline failed on new connection", "error", err)
		h.closeConn(conn, "initial SetReadDeadline failure")
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	h.mu.Lock()
	old := h.conn
	h.conn = conn
	h.mu.Unlock()
	if old != nil {
		h.closeConn(old, "replaced by new connection")
	}
	slog.Info("[DEBUG-WS] client connected", "remoteAddr", conn.RemoteAddr())

	pingDone := make(chan struct{})
	go h.pingLoop(conn, pingDone)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] eventhub handleWS recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
		close(pingDone)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "read pump exit")
		slog.Info("[DEBUG-WS] client disconnected")
	}()

	for {
		msgType, data, readErr := conn.ReadMessage()
		if readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("[DEBUG-WS] read error", "error", readErr)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		msg, err := decodeClientMsg(data)
		if err != nil {
			slog.Debug("[DEBUG-WS] invalid client message", "error", err)
			h.sendError(conn, "", err.Error())
			continue
		}
		h.handleAction(r.Context(), conn, msg)
	}
}

func (h *Hub) handleAction(ctx context.Context, conn *websocket.Conn, msg clientMsg) {
	h.mu.RLock()
	current := h.conn == conn
	h.mu.RUnlock()
	if !current {
		slog.Debug("[DEBUG-WS] action from stale connection, skipping", "action", msg.Action)
		return
	}

	switch msg.Action {
	case actionSnapshot:
		var models []repository.Model
		if h.opts.Source != nil {
			models = h.opts.Source.Models()
		}
		if models == nil {
			models = []repository.Model{}
		}
		h.send(conn, NewFrame(TypeSnapshot, "", models))
	case actionRefresh:
		if msg.Repository == "" || h.opts.Source == nil {
			h.sendError(conn, msg.Repository, "refresh: unknown repository")
			return
		}
		// Refresh runs off the read pump so pongs keep being processed.
		go func() {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("[DEBUG-PANIC] eventhub refresh recovered",
						"panic", rec,
						"stack", string(debug.Stack()),
					)
				}
			}()
			refreshCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
			defer cancel()
			if err := h.opts.Source.Refresh(refreshCtx, msg.Repository); err != nil {
				slog.Warn("[DEBUG-WS] refresh failed", "repository", msg.Repository, "error", err)
				h.sendError(conn, msg.Repository, err.Error())
			}
		}()
	default:
		slog.Debug("[DEBUG-WS] unknown action", "action", msg.Action)
		h.sendError(conn, msg.Repository, fmt.Sprintf("unknown action %q", msg.Action))
	}
}

func (h *Hub) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] eventhub pingLoop recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			h.clearIfCurrent(conn)
			h.closeConn(conn, "pingLoop panic recovery")
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			h.writeMu.Lock()
			if !h.setWriteDeadlineOrClose(conn, writeDeadline) {
				h.writeMu.Unlock()
				return
			}
			err := conn.WriteMessage(websocket.PingMessage, nil)
			h.clearWriteDeadline(conn)
			h.writeMu.Unlock()

			if err != nil {
				slog.Debug("[DEBUG-WS] ping failed, connection likely dead", "error", err)
				h.clearIfCurrent(conn)
				h.closeConn(conn, "ping failure")
				return
			}
		}
	}
}
