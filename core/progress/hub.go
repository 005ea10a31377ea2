package progress

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"multitrack/core/workflow"
	"multitrack/logger"
)

// MessageType tags frames sent to subscribers.
type MessageType string

const (
	MsgTypeProgress MessageType = "progress"
	MsgTypeDone     MessageType = "done"
	MsgTypeFailed   MessageType = "failed"
	MsgTypePing     MessageType = "ping"
	MsgTypePong     MessageType = "pong"
)

// Message is one frame of the progress stream.
type Message struct {
	Type      MessageType      `json:"type"`
	Owner     string           `json:"owner,omitempty"`
	Stage     string           `json:"stage,omitempty"`
	Message   string           `json:"message,omitempty"`
	Error     string           `json:"error,omitempty"`
	Result    *workflow.Result `json:"result,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

type broadcast struct {
	owner string
	data  []byte
}

// Hub fans workflow progress out to each owner's subscribers and tracks the
// single in-flight submission allowed per owner.
type Hub struct {
	owners map[string]map[*Client]bool
	mu     sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcast
	done       chan struct{}
	stopOnce   sync.Once

	flightMu sync.Mutex
	inFlight map[string]bool
}

// NewHub creates a hub. Call Run to start it.
func NewHub() *Hub {
	return &Hub{
		owners:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcast, 256),
		done:       make(chan struct{}),
		inFlight:   make(map[string]bool),
	}
}

// Run is the hub loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.mu.Lock()
			h.remove(c)
			h.mu.Unlock()
		case b := <-h.broadcast:
			h.deliver(b)
		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop ends Run and closes every subscriber.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.owners[c.Owner] == nil {
		h.owners[c.Owner] = make(map[*Client]bool)
	}
	h.owners[c.Owner][c] = true
	logger.Info("[ProgressHub] 订阅者已注册", logger.String("owner", c.Owner))
}

// remove must be called with mu held.
func (h *Hub) remove(c *Client) {
	clients, ok := h.owners[c.Owner]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	close(c.Send)
	if len(clients) == 0 {
		delete(h.owners, c.Owner)
	}
	logger.Info("[ProgressHub] 订阅者已注销", logger.String("owner", c.Owner))
}

func (h *Hub) deliver(b broadcast) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.owners[b.owner] {
		select {
		case c.Send <- b.data:
		default:
			// 客户端发送缓冲区满，断开连接
			h.remove(c)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.owners {
		for c := range clients {
			close(c.Send)
		}
	}
	h.owners = make(map[string]map[*Client]bool)
}

// Register adds a subscriber.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister removes a subscriber.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish sends msg to the owner's subscribers.
func (h *Hub) Publish(owner string, msg *Message) {
	msg.Owner = owner
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("[ProgressHub] 消息编码失败", logger.ErrorField(err))
		return
	}
	select {
	case h.broadcast <- broadcast{owner: owner, data: data}:
	case <-h.done:
	}
}

// Reporter returns a workflow progress callback that publishes to owner.
func (h *Hub) Reporter(owner string) workflow.ProgressFunc {
	return func(p workflow.Progress) {
		h.Publish(owner, &Message{Type: MsgTypeProgress, Stage: p.Stage.String(), Message: p.Message})
	}
}

// Finish publishes the outcome of a workflow run.
func (h *Hub) Finish(owner string, res *workflow.Result, err error) {
	if err != nil {
		msg := &Message{Type: MsgTypeFailed, Error: err.Error()}
		var wfErr *workflow.Error
		if errors.As(err, &wfErr) {
			msg.Stage = wfErr.Stage.String()
		}
		h.Publish(owner, msg)
		return
	}
	h.Publish(owner, &Message{Type: MsgTypeDone, Stage: workflow.StageDone.String(), Result: res})
}

// SubscriberCount returns the number of subscribers for owner.
func (h *Hub) SubscriberCount(owner string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.owners[owner])
}

// Begin marks a submission for owner as in flight. It returns false when
// one already is.
func (h *Hub) Begin(owner string) bool {
	h.flightMu.Lock()
	defer h.flightMu.Unlock()
	if h.inFlight[owner] {
		return false
	}
	h.inFlight[owner] = true
	return true
}

// End clears the in-flight mark for owner.
func (h *Hub) End(owner string) {
	h.flightMu.Lock()
	defer h.flightMu.Unlock()
	delete(h.inFlight, owner)
}

// InFlight reports whether owner has a submission running.
func (h *Hub) InFlight(owner string) bool {
	h.flightMu.Lock()
	defer h.flightMu.Unlock()
	return h.inFlight[owner]
}
