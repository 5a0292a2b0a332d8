package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jrockway/ring-clock/control/screen"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var droppedFrames = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ringclock_websocket_frames_dropped_total",
	Help: "Frames not sent to a websocket client because it was falling behind.",
})

const (
	writeTimeout = 200 * time.Millisecond
	clientQueue  = 4
)

// Hub streams every committed frame to websocket clients as JSON.  Publish never blocks; a client
// that can't keep up misses frames.
type Hub struct {
	Logger *zap.SugaredLogger

	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*websocket.Conn]chan []byte
}

// NewHub returns an empty Hub.
func NewHub(logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{
		Logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]chan []byte),
	}
}

type wireFrame struct {
	T int64 `json:"t"`
	screen.Frame
}

// Publish queues f for every client.  Pass it to screen.Observe.
func (h *Hub) Publish(f screen.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}
	b, err := json.Marshal(wireFrame{T: time.Now().UnixNano(), Frame: f})
	if err != nil {
		h.Logger.Warnw("marshal frame", "error", err)
		return
	}
	for _, ch := range h.clients {
		select {
		case ch <- b:
		default:
			droppedFrames.Inc()
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.Logger.Debugw("websocket upgrade", "error", err)
		return
	}
	ch := make(chan []byte, clientQueue)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	h.Logger.Debugw("websocket client connected", "remote", req.RemoteAddr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Clients don't send anything; reading notices when they go away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
		h.Logger.Debugw("websocket client disconnected", "remote", req.RemoteAddr)
	}()
	for {
		select {
		case <-done:
			return
		case b := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				h.Logger.Debugw("write frame", "error", err)
				return
			}
		}
	}
}
