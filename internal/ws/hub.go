package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/chat"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/metrics"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/presence"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/room"

	"github.com/rs/zerolog/log"
)

// MessageStore 是 hub 依赖的消息存储契约，测试时可注入内存实现。
type MessageStore interface {
	Append(nm chat.NewMessage) (*chat.Message, error)
	ListByRoom(roomID string, limit int) ([]chat.Message, error)
	Edit(id, authorID uint, newBody string) (*chat.Message, error)
	Delete(id, authorID uint) (*chat.Message, error)
	ToggleReaction(id, reactorID uint, reactorName, emoji string) (*chat.Message, error)
}

// Hub 会话中枢：维护连接集合与 roomId -> 连接集 的订阅表，
// 把入站事件路由到存储与在线表，再把状态变化扇出给订阅方。
type Hub struct {
	mu    sync.RWMutex
	conns map[*Client]struct{}
	rooms map[string]map[*Client]struct{}

	store    MessageStore
	registry *presence.Registry

	lastOnline int
	done       chan struct{}
}

func NewHub(store MessageStore, registry *presence.Registry) *Hub {
	return &Hub{
		conns:    make(map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		store:    store,
		registry: registry,
		done:     make(chan struct{}),
	}
}

// Run 驱动 30 秒一次的在线表清扫，Shutdown 前一直阻塞。
func (h *Hub) Run() {
	ticker := time.NewTicker(presence.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.sweep(time.Now())
		}
	}
}

func (h *Hub) Shutdown() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
	h.registry.Clear()
}

// sweep 移除闲置连接对应的在线记录；在线集合变化时才广播。
func (h *Hub) sweep(now time.Time) {
	removed := h.registry.Sweep(now, presence.DefaultTimeout)
	count := h.registry.Count()
	if len(removed) > 0 || count != h.lastOnline {
		if len(removed) > 0 {
			log.Debug().Ints("removed", toInts(removed)).Msg("presence sweep")
		}
		h.broadcastOnline()
	}
	h.lastOnline = count
}

func toInts(ids []uint) []int {
	out := make([]int, len(ids))
	for i, v := range ids {
		out[i] = int(v)
	}
	return out
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	metrics.WsConnections.Inc()
}

// unregister 摘除连接的全部房间订阅，并在它仍持有在线记录时移除并广播。
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.conns[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c)
	for rid, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, rid)
		}
	}
	h.mu.Unlock()
	close(c.send)
	metrics.WsConnections.Dec()

	if _, removed := h.registry.RemoveConn(c.connID); removed {
		h.broadcastOnline()
	}
}

func (h *Hub) joinRoom(c *Client, roomID string) {
	h.mu.Lock()
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[roomID] = members
	}
	members[c] = struct{}{}
	h.mu.Unlock()
}

// Online 房间当前的订阅连接数，供 REST 层展示。
func (h *Hub) Online(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// broadcastRoom 向房间的全部订阅连接扇出一个事件，except 非空时跳过该连接。
func (h *Hub) broadcastRoom(roomID, event string, v interface{}, except *Client) {
	b, err := marshalEnvelope(event, v)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal broadcast")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomID] {
		if c == except {
			continue
		}
		c.enqueue(b)
	}
}

func (h *Hub) broadcastAll(event string, v interface{}) {
	b, err := marshalEnvelope(event, v)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal broadcast")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		c.enqueue(b)
	}
}

// broadcastOnline 在线用户列表是唯一一个面向全部连接的广播。
func (h *Hub) broadcastOnline() {
	snap := h.registry.Snapshot()
	metrics.OnlineUsers.Set(float64(len(snap)))
	h.broadcastAll(evtOnlineUsers, snap)
}

func marshalEnvelope(event string, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// handleEvent 入站事件统一入口。任何可归属身份的事件都会刷新活动时间；
// 处理失败只单播给发起连接，绝不波及房间内其他成员。
func (h *Hub) handleEvent(c *Client, env Envelope) {
	h.registry.Touch(c.userID)

	switch env.Event {
	case evtJoinRoom:
		var p joinRoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomID == "" {
			return
		}
		h.joinRoom(c, p.RoomID)
		h.registry.SetCurrentRoom(c.userID, p.RoomID)
		h.broadcastOnline()

	case evtUserOnline:
		var p userOnlinePayload
		_ = json.Unmarshal(env.Data, &p)
		h.registry.MarkOnline(c.userID, c.username, p.AvatarURL, c.connID)
		h.broadcastOnline()

	case evtFetchHistory:
		h.handleFetchHistory(c, env.Data)

	case evtChatMessage:
		h.handleChatMessage(c, env.Data)

	case evtEditMessage:
		var p editPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		msg, err := h.store.Edit(p.MessageID, c.userID, p.NewText)
		if err != nil {
			c.notifyError(noticeFor("edit", err))
			return
		}
		h.broadcastRoom(roomFor(msg), evtMessageUpdated, msg, nil)

	case evtDeleteMessage:
		var p deletePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		msg, err := h.store.Delete(p.MessageID, c.userID)
		if err != nil {
			c.notifyError(noticeFor("delete", err))
			return
		}
		h.broadcastRoom(roomFor(msg), evtMessageUpdated, msg, nil)

	case evtReactMessage:
		var p reactPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		msg, err := h.store.ToggleReaction(p.MessageID, c.userID, c.username, p.Emoji)
		if err != nil {
			c.notifyError(noticeFor("react to", err))
			return
		}
		h.broadcastRoom(roomFor(msg), evtMessageUpdated, msg, nil)

	case evtTyping, evtStopTyping:
		var p typingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		notice := typingNotice{UserID: c.userID}
		if env.Event == evtTyping {
			notice.Username = c.username
		}
		h.broadcastRoom(typingRoom(c, p), env.Event, notice, c)

	default:
		log.Debug().Str("event", env.Event).Uint("user_id", c.userID).Msg("unknown ws event")
	}
}

func (h *Hub) handleFetchHistory(c *Client, data json.RawMessage) {
	var p fetchHistoryPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	roomID := room.PublicRoomID
	if p.TargetUserID != nil {
		rid, err := room.Resolve(c.userID, *p.TargetUserID)
		if err != nil {
			c.notifyError("Failed to fetch chat history.")
			return
		}
		roomID = rid
	} else if p.RoomID != "" {
		roomID = p.RoomID
	}
	msgs, err := h.store.ListByRoom(roomID, chat.HistoryLimit)
	if err != nil {
		c.notifyError("Failed to fetch chat history.")
		return
	}
	// 历史只回给发起连接，不做广播。
	c.sendEvent(evtChatHistory, msgs)
}

func (h *Hub) handleChatMessage(c *Client, data json.RawMessage) {
	var p sendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	nm := chat.NewMessage{
		AuthorID:    c.userID,
		AuthorName:  c.username,
		Kind:        p.Kind,
		RecipientID: p.RecipientID,
		Body:        p.Text,
	}
	if p.FileData != "" {
		nm.Attachment = &chat.Attachment{Payload: p.FileData, FileName: p.FileName, FileType: p.FileType}
	}
	msg, err := h.store.Append(nm)
	if err != nil {
		c.notifyError(noticeFor("send", err))
		return
	}
	// 发消息视为活动；此前没有在线记录的用户补一条最小记录。
	if !h.registry.Touch(c.userID) {
		h.registry.MarkOnline(c.userID, c.username, "", c.connID)
		h.registry.SetCurrentRoom(c.userID, msg.RoomID)
	}
	metrics.ChatMessagesTotal.Inc()
	// 广播严格发生在落库成功之后。
	h.broadcastRoom(msg.RoomID, evtMessage, msg, nil)
	h.broadcastOnline()
}

// roomFor 重算一条消息的归属房间：私聊按发起者与接收者推导，公共取存储值。
func roomFor(msg *chat.Message) string {
	if msg.Kind == chat.KindPrivate && msg.RecipientID != nil {
		if rid, err := room.Resolve(msg.UserID, *msg.RecipientID); err == nil {
			return rid
		}
	}
	return msg.RoomID
}

func typingRoom(c *Client, p typingPayload) string {
	if p.Kind == chat.KindPrivate && p.RecipientID != nil {
		if rid, err := room.Resolve(c.userID, *p.RecipientID); err == nil {
			return rid
		}
	}
	if p.RoomID != "" {
		return p.RoomID
	}
	return room.PublicRoomID
}

// noticeFor 把存储层错误折算成给发起方的一句话提示。
func noticeFor(verb string, err error) string {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		return "Message not found."
	case errors.Is(err, chat.ErrForbidden):
		return "You are not authorized to " + verb + " this message."
	case errors.Is(err, chat.ErrInvalidState):
		return "Cannot " + verb + " a deleted message."
	case errors.Is(err, chat.ErrValidation):
		return "Invalid message payload."
	default:
		return "Failed to " + verb + " message."
	}
}
