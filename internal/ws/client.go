package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	// 读上限放宽到 8MB，留出 5MB 附件 base64 化后的余量。
	maxFrameBytes = 8 << 20
)

// Client 一条已认证的 websocket 连接。身份在升级时由 token 确定，
// 之后所有入站事件都以该身份执行。
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	connID   string
	userID   uint
	username string
}

// enqueue 投递出站帧；慢消费者的缓冲打满时直接丢帧，不阻塞 hub。
func (c *Client) enqueue(b []byte) {
	select {
	case c.send <- b:
	default:
	}
}

func (c *Client) sendEvent(event string, v interface{}) {
	b, err := marshalEnvelope(event, v)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal unicast")
		return
	}
	c.enqueue(b)
}

// notifyError 错误只回给发起连接。
func (c *Client) notifyError(msg string) {
	c.sendEvent(evtError, msg)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			continue
		}
		c.hub.handleEvent(c, env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
