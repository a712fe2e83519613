package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"chatlink/internal/logging"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// eventHandler consumes the body of one event frame.
type eventHandler func(json.RawMessage)

// frame is the wire format: every message is one JSON frame. Invocations
// are correlated to results by ID; events carry no ID.
type frame struct {
	Type   string            `json:"type"` // invoke | result | event | ping | pong
	ID     string            `json:"id,omitempty"`
	Method string            `json:"method,omitempty"`
	Event  string            `json:"event,omitempty"`
	Args   []json.RawMessage `json:"args,omitempty"`
	Body   json.RawMessage   `json:"body,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// WebsocketTransport implements Transport over a single websocket. One
// writer at a time (writeMu); one reader goroutine per connection.
type WebsocketTransport struct {
	url    string
	tokens TokenSource
	log    logging.Logger
	dialer *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	live    bool
	pending map[string]chan frame

	writeMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[string][]eventHandler

	states chan State
}

func NewWebsocketTransport(url string, tokens TokenSource, log logging.Logger) *WebsocketTransport {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &WebsocketTransport{
		url:      url,
		tokens:   tokens,
		log:      log,
		dialer:   &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		pending:  make(map[string]chan frame),
		handlers: make(map[string][]eventHandler),
		states:   make(chan State, 16),
	}
}

func (t *WebsocketTransport) publish(s State) {
	select {
	case t.states <- s:
	default:
		// drop the oldest so the latest state always fits
		select {
		case <-t.states:
		default:
		}
		select {
		case t.states <- s:
		default:
		}
	}
}

func (t *WebsocketTransport) States() <-chan State { return t.states }

func (t *WebsocketTransport) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// On registers handler for event. Registrations are kept across
// reconnects: a new connection dispatches to the same handler set.
func (t *WebsocketTransport) On(event string, handler func(json.RawMessage)) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.handlers[event] = append(t.handlers[event], handler)
}

func (t *WebsocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.live {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	t.publish(Connecting)

	token, err := t.tokens.AccessToken(ctx)
	if err != nil {
		t.publish(Disconnected)
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := t.dialer.DialContext(ctx, t.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.publish(Disconnected)
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.live = true
	t.mu.Unlock()

	go t.readLoop(conn)

	t.publish(Connected)
	t.log.Info(ctx, "hub connected", "url", t.url)
	return nil
}

func (t *WebsocketTransport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	wasLive := t.live
	t.live = false
	t.mu.Unlock()

	if conn != nil {
		t.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()
		_ = conn.Close()
	}

	t.failPending()
	if wasLive {
		t.publish(Disconnected)
	}
	return nil
}

func (t *WebsocketTransport) Invoke(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	t.mu.Lock()
	if !t.live || t.conn == nil {
		t.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn := t.conn

	id := uuid.NewString()
	ch := make(chan frame, 1)
	t.pending[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	f := frame{Type: "invoke", ID: id, Method: method}
	for _, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return nil, err
		}
		f.Args = append(f.Args, raw)
	}

	if err := t.write(conn, f); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res, ok := <-ch:
		if !ok {
			return nil, ErrConnectionClosed
		}
		if res.Error != "" {
			return nil, &InvokeError{Method: method, Reason: res.Error}
		}
		return res.Body, nil
	}
}

func (t *WebsocketTransport) write(conn *websocket.Conn, f frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteJSON(f)
}

func (t *WebsocketTransport) readLoop(conn *websocket.Conn) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.dropped(conn)
			return
		}

		switch f.Type {
		case "result":
			t.deliverResult(f)
		case "event":
			t.dispatch(f.Event, f.Body)
		case "ping":
			_ = t.write(conn, frame{Type: "pong", ID: f.ID})
		}
	}
}

// deliverResult hands a result frame to its waiting invoker. The pending
// entry is claimed (removed) under mu before the send: failPending closes
// only channels still in the map, so a claimed channel can never be closed
// underneath this send, and the buffer of 1 makes the send non-blocking
// for its sole result.
func (t *WebsocketTransport) deliverResult(f frame) {
	t.mu.Lock()
	ch, ok := t.pending[f.ID]
	if ok {
		delete(t.pending, f.ID)
	}
	t.mu.Unlock()
	if ok {
		ch <- f
	}
}

func (t *WebsocketTransport) dispatch(event string, body json.RawMessage) {
	t.handlersMu.RLock()
	handlers := append([]eventHandler(nil), t.handlers[event]...)
	t.handlersMu.RUnlock()

	for _, h := range handlers {
		h(body)
	}
}

// dropped handles a spontaneous close observed by the read loop. A
// Disconnect already in progress has cleared t.conn; only a live drop
// publishes the state change.
func (t *WebsocketTransport) dropped(conn *websocket.Conn) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.live = false
	t.mu.Unlock()

	_ = conn.Close()
	t.failPending()
	t.publish(Disconnected)
	t.log.Warn(context.Background(), "hub connection dropped")
}

// failPending closes every still-unclaimed pending channel. readLoop
// removes an entry from the map before sending on it, so for any one
// channel the close and the send are mutually exclusive.
func (t *WebsocketTransport) failPending() {
	t.mu.Lock()
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	t.mu.Unlock()
}
