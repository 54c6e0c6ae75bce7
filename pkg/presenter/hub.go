package presenter

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/metrics"
	"github.com/mpapenbr/openf1-insights/pkg/utils/broadcast"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type HubOption func(*Hub)

func WithCheckOrigin(fn func(r *http.Request) bool) HubOption {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = fn
	}
}

func WithHubLogger(l *log.Logger) HubOption {
	return func(h *Hub) {
		h.l = l
	}
}

// Hub sends documents to websocket clients. Clients may restrict the stream
// to one session with the query parameter "session".
type Hub struct {
	source   chan *Document
	bcst     broadcast.BroadcastServer[*Document]
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[uuid.UUID]int
	closed   chan struct{}
	once     sync.Once
	l        *log.Logger
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		source: make(chan *Document),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16384,
		},
		clients: map[uuid.UUID]int{},
		closed:  make(chan struct{}),
		l:       log.Default().Named("presenter.ws"),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.bcst = broadcast.NewBroadcastServer("ws", h.source,
		broadcast.WithBufferSize[*Document](4),
		broadcast.WithLogger[*Document](h.l))
	return h
}

// Publish hands doc to the connected clients. It returns ctx.Err() if the hub
// does not accept the document before ctx is done.
func (h *Hub) Publish(ctx context.Context, doc *Document) error {
	select {
	case h.source <- doc:
		return nil
	case <-h.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Close() {
	h.once.Do(func() {
		close(h.closed)
		h.bcst.Close()
	})
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filter := 0
	if s := r.URL.Query().Get("session"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, "invalid session", http.StatusBadRequest)
			return
		}
		filter = v
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.Warn("websocket upgrade failed", log.ErrorField(err))
		return
	}
	defer conn.Close()

	ch := h.bcst.Subscribe()
	defer h.bcst.CancelSubscription(ch)

	id := uuid.New()
	h.register(id, filter)
	defer h.unregister(id)

	h.l.Debug("client connected",
		log.String("id", id.String()),
		log.Int("session", filter))
	h.serveClient(conn, ch, filter)
	h.l.Debug("client disconnected", log.String("id", id.String()))
}

func (h *Hub) register(id uuid.UUID, filter int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[id] = filter
	metrics.WebsocketClients.Inc()
}

func (h *Hub) unregister(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
	metrics.WebsocketClients.Dec()
}

//nolint:whitespace // editor/linter issue
func (h *Hub) serveClient(
	conn *websocket.Conn, ch <-chan *Document, filter int,
) {
	done := make(chan struct{})
	// the reader handles pongs and detects closed connections
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case doc, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(writeWait))
				return
			}
			if filter != 0 && doc.SessionKey != filter {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(doc); err != nil {
				h.l.Debug("write failed", log.ErrorField(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
