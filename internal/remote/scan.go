package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"netshield/internal/dataset"
	m "netshield/internal/models"
)

// Frame types on the scan feed.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameMessage     = "message"
)

// Frame is the envelope exchanged with the scan feed. Clients send
// subscribe/unsubscribe frames; the server pushes message frames.
type Frame struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ScanEvent is one live scan result.
type ScanEvent struct {
	ID        string `json:"id,omitempty"`
	IPAddress string `json:"ipAddress"`
	Port      int    `json:"port"`
	Protocol  string `json:"protocol"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Record converts the event. Events carry no stable identity, so a missing
// id becomes a random uuid.
func (e ScanEvent) Record() m.Record {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	rec := m.Record{
		ID:       id,
		Source:   e.IPAddress,
		Protocol: e.Protocol,
		Info:     fmt.Sprintf("%s → %d/%s → %s", e.IPAddress, e.Port, e.Protocol, e.Status),
		Status:   mapStatus(e.Status, ""),
		Details: m.Node(m.F("scan", m.Node(
			m.F("ip_address", m.String(e.IPAddress)),
			m.F("port", m.Int(int64(e.Port))),
			m.F("protocol", m.String(e.Protocol)),
			m.F("status", m.String(e.Status)),
		))),
	}
	if ts, err := m.ParseTimestamp(e.Timestamp); err == nil {
		rec.Timestamp = ts
	}
	return rec
}

// ScanClient dials the live scan feed. Each Subscribe opens its own
// connection, owned by the returned Subscription.
type ScanClient struct {
	url    string
	dialer *websocket.Dialer

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

var ErrClientClosed = errors.New("scan client closed")

func NewScanClient(url string) *ScanClient {
	return &ScanClient{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		subs:   make(map[*Subscription]struct{}),
	}
}

// Subscription is a live topic subscription. Unsubscribe must be called on
// every exit path; it is safe to call more than once.
type Subscription struct {
	client  *ScanClient
	topic   string
	conn    *websocket.Conn
	once    sync.Once
	closing atomic.Bool
	done    chan struct{}
	err     error
}

// Subscribe connects and delivers every event on topic to fn, from a single
// goroutine, until ctx is done or Unsubscribe is called.
func (c *ScanClient) Subscribe(ctx context.Context, topic string, fn func(ScanEvent)) (*Subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	if err := conn.WriteJSON(Frame{Type: FrameSubscribe, Topic: topic}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	s := &Subscription{client: c, topic: topic, conn: conn, done: make(chan struct{})}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return nil, ErrClientClosed
	}
	c.subs[s] = struct{}{}
	c.mu.Unlock()

	go s.readLoop(fn)
	go func() {
		select {
		case <-ctx.Done():
			s.Unsubscribe()
		case <-s.done:
		}
	}()
	return s, nil
}

func (s *Subscription) readLoop(fn func(ScanEvent)) {
	defer close(s.done)
	for {
		var f Frame
		if err := s.conn.ReadJSON(&f); err != nil {
			if !s.closing.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.err = err
			}
			return
		}
		if f.Type != FrameMessage || f.Topic != s.topic {
			continue
		}
		var ev ScanEvent
		if err := json.Unmarshal(f.Payload, &ev); err != nil {
			log.Printf("Scan feed: bad payload on %s: %v", s.topic, err)
			continue
		}
		fn(ev)
	}
}

// Done is closed once the subscription has stopped delivering events.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err reports why delivery stopped, or nil after a clean shutdown. Only
// meaningful once Done is closed.
func (s *Subscription) Err() error {
	<-s.done
	return s.err
}

// Unsubscribe tells the server, closes the connection and waits for the
// delivery goroutine to exit.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.closing.Store(true)
		s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = s.conn.WriteJSON(Frame{Type: FrameUnsubscribe, Topic: s.topic})
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()

		s.client.mu.Lock()
		delete(s.client.subs, s)
		s.client.mu.Unlock()
	})
	<-s.done
}

// FeedLive appends every event on topic to live.
func (c *ScanClient) FeedLive(ctx context.Context, topic string, live *dataset.Live) (*Subscription, error) {
	return c.Subscribe(ctx, topic, func(ev ScanEvent) {
		live.Append(ev.Record())
	})
}

// Close ends every subscription.
func (c *ScanClient) Close() {
	c.mu.Lock()
	c.closed = true
	subs := make([]*Subscription, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}
