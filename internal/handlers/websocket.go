package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"netshield/internal/capture"
	"netshield/internal/engine"
	"netshield/internal/models"
	"netshield/internal/notify"
	"netshield/internal/session"
)

const (
	writeWait         = 5 * time.Second
	DefaultSendBuffer = 256 // snapshots are dropped when the buffer is full
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSClient wraps a WebSocket connection and the session it owns.
type WSClient struct {
	conn   *websocket.Conn
	eng    *engine.Engine
	sess   *session.Session
	sub    *notify.Subscription[session.Change]
	sendCh chan models.WSMessage
	done   chan struct{}
	pumpWG sync.WaitGroup
}

// NewWSClient opens a session for the connection and starts its writer.
func NewWSClient(conn *websocket.Conn, eng *engine.Engine, sendBuffer int) (*WSClient, error) {
	sess, err := eng.NewSession()
	if err != nil {
		return nil, err
	}
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	c := &WSClient{
		conn:   conn,
		eng:    eng,
		sess:   sess,
		sub:    sess.Subscribe(64),
		sendCh: make(chan models.WSMessage, sendBuffer),
		done:   make(chan struct{}),
	}
	go c.writeLoop()
	c.pumpWG.Add(1)
	go c.pump()
	return c, nil
}

// SendMessage queues a message for async delivery. Non-blocking: snapshots
// are dropped when the buffer is full, since the next one supersedes them.
func (c *WSClient) SendMessage(msg models.WSMessage) {
	select {
	case c.sendCh <- msg:
		return
	default:
	}
	if msg.Type == models.MsgSnapshot {
		return
	}
	// Control messages make room by discarding the oldest queued message.
	select {
	case <-c.sendCh:
	default:
	}
	select {
	case c.sendCh <- msg:
	default:
	}
}

// pump turns session changes into snapshot and notice messages.
func (c *WSClient) pump() {
	defer c.pumpWG.Done()
	for ch := range c.sub.C() {
		if ch.Kind == session.ChangeNotice {
			c.sendNotice(ch.Message)
			continue
		}
		// Coalesce a burst of changes into one snapshot.
		for drained := false; !drained; {
			select {
			case next, ok := <-c.sub.C():
				if !ok {
					drained = true
				} else if next.Kind == session.ChangeNotice {
					c.sendNotice(next.Message)
				}
			default:
				drained = true
			}
		}
		c.sendSnapshot()
	}
}

// writeLoop drains the send channel and writes to the WebSocket.
func (c *WSClient) writeLoop() {
	defer c.conn.Close()
	for {
		select {
		case msg, ok := <-c.sendCh:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

			n := len(c.sendCh)
			for i := 0; i < n; i++ {
				msg, ok = <-c.sendCh
				if !ok {
					return
				}
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteJSON(msg); err != nil {
					return
				}
			}
		case <-c.done:
			return
		}
	}
}

// ReadLoop reads messages from the client and dispatches commands. The
// session is torn down when the connection ends.
func (c *WSClient) ReadLoop() {
	defer func() {
		c.sub.Unsubscribe()
		c.pumpWG.Wait()
		c.eng.CloseSession(c.sess.ID)
		close(c.done)
		close(c.sendCh)
	}()

	c.sendSession()
	c.sendSnapshot()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg models.WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message format")
			continue
		}
		c.handleCommand(msg)
	}
}

func (c *WSClient) handleCommand(msg models.WSMessage) {
	switch msg.Type {
	case models.CmdStartCapture:
		c.report(c.sess.Start())

	case models.CmdStopCapture:
		c.report(c.sess.Stop())

	case models.CmdReload:
		c.sess.Reload()

	case models.CmdSetFilter:
		var req models.FilterRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError("invalid set_filter payload")
			return
		}
		c.sess.SetFilter(req.Text)

	case models.CmdSelect:
		var req models.SelectRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError("invalid select payload")
			return
		}
		if req.ID != "" {
			c.report(c.sess.Select(req.ID))
		} else {
			c.report(c.sess.SelectIndex(req.Index))
		}

	case models.CmdFollow:
		c.report(c.sess.Follow())

	case models.CmdClearFollow:
		c.sess.ClearFollow()

	case models.CmdToggle:
		var req models.ToggleRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.Path == "" {
			c.sendError("invalid toggle payload")
			return
		}
		c.sess.Toggle(req.Path)

	case models.CmdSnapshot:
		c.sendSnapshot()

	default:
		c.sendError("unknown command: " + msg.Type)
	}
}

// report sends err back to the client. User-facing notices are not errors.
func (c *WSClient) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, capture.ErrExhausted),
		errors.Is(err, capture.ErrAlreadyCapturing),
		errors.Is(err, capture.ErrNotCapturing),
		errors.Is(err, session.ErrNoSelection):
		c.sendNotice(err.Error())
	default:
		c.sendError(err.Error())
	}
}

func (c *WSClient) sendSession() {
	_, total := c.sess.Progress()
	payload, _ := json.Marshal(models.SessionInfo{
		ID:       c.sess.ID.String(),
		Interval: c.sess.Interval().String(),
		Records:  total,
	})
	c.SendMessage(models.WSMessage{Type: models.MsgSession, Payload: payload})
}

func (c *WSClient) sendSnapshot() {
	payload, err := json.Marshal(c.sess.Snapshot())
	if err != nil {
		c.sendError("encode snapshot: " + err.Error())
		return
	}
	c.SendMessage(models.WSMessage{Type: models.MsgSnapshot, Payload: payload})
}

func (c *WSClient) sendNotice(message string) {
	payload, _ := json.Marshal(models.NoticePayload{Message: message})
	c.SendMessage(models.WSMessage{Type: models.MsgNotice, Payload: payload})
}

func (c *WSClient) sendError(message string) {
	payload, _ := json.Marshal(models.ErrorPayload{Message: message})
	c.SendMessage(models.WSMessage{Type: models.MsgError, Payload: payload})
}

// HandleWebSocket is the HTTP handler for WebSocket upgrades.
func HandleWebSocket(eng *engine.Engine, sendBuffer int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade error: %v", err)
			return
		}
		client, err := NewWSClient(conn, eng, sendBuffer)
		if err != nil {
			log.Printf("WebSocket session error: %v", err)
			conn.Close()
			return
		}
		client.ReadLoop()
	}
}
