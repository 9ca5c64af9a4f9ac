package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"intervention-engine/internal/metrics"
	"intervention-engine/internal/models"
)

const (
	channelPrefix    = "student_updates:"
	writeTimeout     = 10 * time.Second
	subscribeTimeout = 3 * time.Second
	maxInboundSize   = 4096
)

// Conn is one open notification channel. *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type studentEntry struct {
	// deliverMu keeps frames for one student in send order.
	deliverMu  sync.Mutex
	conns      []Conn
	cancel     context.CancelFunc
	// subscribed is closed once Redis confirms the subscription. Nil without Redis.
	subscribed chan struct{}
}

// Hub is the registry of open channels keyed by student id.
//
// Without Redis, SendToStudent writes straight to local channels. With Redis,
// it publishes to student_updates:<id> and every instance holding a channel
// for that student relays the frame from its subscription.
type Hub struct {
	mu       sync.Mutex
	students map[uuid.UUID]*studentEntry

	publish  *redis.Client
	pubsub   *redis.Client
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewHub(publish, pubsub *redis.Client, checkOrigin func(r *http.Request) bool, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	if publish == nil || pubsub == nil {
		publish, pubsub = nil, nil
	}
	return &Hub{
		students: make(map[uuid.UUID]*studentEntry),
		publish:  publish,
		pubsub:   pubsub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		metrics: m,
		logger:  logger,
	}
}

// HandleWebSocket upgrades GET /ws/{student_id}. Inbound frames are read and
// dropped until the client goes away.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	studentID, err := uuid.Parse(chi.URLParam(r, "student_id"))
	if err != nil {
		http.Error(w, "Invalid student ID", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxInboundSize)

	c := &wsConn{conn: conn}
	h.Connect(studentID, c)

	go func() {
		defer h.Disconnect(studentID, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Connect registers conn for studentID. Several channels per student are allowed.
// With Redis, it returns once the student's subscription is confirmed, so an
// event published afterwards reaches conn.
func (h *Hub) Connect(studentID uuid.UUID, conn Conn) {
	h.mu.Lock()
	e, ok := h.students[studentID]
	var subCtx context.Context
	if !ok {
		e = &studentEntry{}
		h.students[studentID] = e

		// First channel for this student on this instance
		if h.pubsub != nil {
			var cancel context.CancelFunc
			subCtx, cancel = context.WithCancel(context.Background())
			e.cancel = cancel
			e.subscribed = make(chan struct{})
		}
	}
	e.conns = append(e.conns, conn)
	total := len(e.conns)
	h.mu.Unlock()

	h.metrics.ChannelOpened()
	h.logger.Info("channel connected",
		zap.String("student_id", studentID.String()),
		zap.Int("total", total),
	)

	if subCtx != nil {
		go h.subscribeToPubSub(subCtx, studentID, e)
	}
	if e.subscribed != nil {
		select {
		case <-e.subscribed:
		case <-time.After(subscribeTimeout):
			h.logger.Warn("redis subscription not confirmed", zap.String("student_id", studentID.String()))
		}
	}
}

// Disconnect removes and closes conn. The student's entry goes away with its
// last channel. Unknown channels are ignored.
func (h *Hub) Disconnect(studentID uuid.UUID, conn Conn) {
	h.mu.Lock()
	removed := h.removeLocked(studentID, conn)
	h.mu.Unlock()

	if !removed {
		return
	}
	conn.Close()
	h.metrics.ChannelClosed()
	h.logger.Info("channel disconnected", zap.String("student_id", studentID.String()))
}

func (h *Hub) removeLocked(studentID uuid.UUID, conn Conn) bool {
	e, ok := h.students[studentID]
	if !ok {
		return false
	}

	removed := false
	for i, c := range e.conns {
		if c == conn {
			e.conns = append(e.conns[:i:i], e.conns[i+1:]...)
			removed = true
			break
		}
	}

	if len(e.conns) == 0 {
		delete(h.students, studentID)
		if e.cancel != nil {
			e.cancel()
		}
	}
	return removed
}

// SendToStudent delivers event to every channel registered for studentID.
// Nobody watching is not an error.
func (h *Hub) SendToStudent(ctx context.Context, studentID uuid.UUID, event models.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode event", zap.Error(err))
		return
	}

	if h.publish != nil {
		err := h.publish.Publish(ctx, channelPrefix+studentID.String(), data).Err()
		if err == nil {
			return
		}
		h.logger.Warn("redis publish failed, delivering locally",
			zap.String("student_id", studentID.String()),
			zap.Error(err),
		)
	}

	h.deliver(studentID, data)
}

// deliver writes data to the student's current entry. An entry replaced while
// waiting for deliverMu is skipped in favour of its successor.
func (h *Hub) deliver(studentID uuid.UUID, data []byte) {
	for {
		h.mu.Lock()
		e, ok := h.students[studentID]
		h.mu.Unlock()
		if !ok {
			return
		}
		if h.deliverTo(studentID, e, data) {
			return
		}
	}
}

// deliverTo writes data to e's channels and reports false, writing nothing,
// when e is no longer the registered entry for studentID.
func (h *Hub) deliverTo(studentID uuid.UUID, e *studentEntry, data []byte) bool {
	e.deliverMu.Lock()
	defer e.deliverMu.Unlock()

	h.mu.Lock()
	if h.students[studentID] != e {
		h.mu.Unlock()
		return false
	}
	conns := append([]Conn(nil), e.conns...)
	h.mu.Unlock()

	var failed []Conn
	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warn("channel delivery failed",
				zap.String("student_id", studentID.String()),
				zap.Error(err),
			)
			failed = append(failed, c)
			h.metrics.Delivery(false)
			continue
		}
		h.metrics.Delivery(true)
	}

	for _, c := range failed {
		h.Disconnect(studentID, c)
	}
	return true
}

// subscribeToPubSub relays student_updates:<id> into e until ctx is cancelled.
// Frames arriving for a replaced entry are dropped; its successor holds its
// own subscription.
func (h *Hub) subscribeToPubSub(ctx context.Context, studentID uuid.UUID, e *studentEntry) {
	pubsub := h.pubsub.Subscribe(ctx, channelPrefix+studentID.String())
	defer pubsub.Close()

	_, err := pubsub.Receive(ctx)
	close(e.subscribed)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// Channel() below reconnects and resubscribes
		h.logger.Warn("redis subscribe failed",
			zap.String("student_id", studentID.String()),
			zap.Error(err),
		)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.deliverTo(studentID, e, []byte(msg.Payload))
		}
	}
}

// ChannelCount returns the number of open channels for studentID.
func (h *Hub) ChannelCount(studentID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.students[studentID]; ok {
		return len(e.conns)
	}
	return 0
}

// StudentCount returns how many students have at least one open channel.
func (h *Hub) StudentCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.students)
}

// Close drops every channel. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	students := h.students
	h.students = make(map[uuid.UUID]*studentEntry)
	h.mu.Unlock()

	for _, e := range students {
		if e.cancel != nil {
			e.cancel()
		}
		for _, c := range e.conns {
			c.Close()
			h.metrics.ChannelClosed()
		}
	}
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) WriteMessage(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
