// Package chatstate 是聊天界面消费的纯视图模型：当前模式、消息列表、
// 正在输入指示和待编辑状态。不持有任何传输层资源，时钟注入以便测试。
package chatstate

import (
	"errors"
	"time"

	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/chat"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/room"
)

// TypingExpiry 对端停止键入后，本地指示器自动回落的时长。
// 服务端只转发离散的 typing/stop_typing 信号，超时完全是客户端状态。
const TypingExpiry = 2 * time.Second

type Mode int

const (
	ModePublic Mode = iota
	ModePrivate
)

var (
	ErrNoSuchMessage = errors.New("message not in view")
	ErrNotEditable   = errors.New("message not editable")
)

type typingEntry struct {
	username string
	seen     time.Time
}

// State 单个客户端的聊天视图状态。
type State struct {
	now    func() time.Time
	selfID uint

	mode   Mode
	peerID uint

	messages []chat.Message
	typing   map[uint]typingEntry

	pendingEditID uint
}

func New(selfID uint, now func() time.Time) *State {
	if now == nil {
		now = time.Now
	}
	return &State{now: now, selfID: selfID, typing: make(map[uint]typingEntry)}
}

func (s *State) Mode() Mode { return s.mode }

// SwitchToPublic 切回公共大厅；消息列表与键入指示清空，等待重新拉取历史。
func (s *State) SwitchToPublic() {
	s.mode = ModePublic
	s.peerID = 0
	s.reset()
}

// SwitchToPrivate 切到与 peer 的私聊。
func (s *State) SwitchToPrivate(peerID uint) {
	s.mode = ModePrivate
	s.peerID = peerID
	s.reset()
}

func (s *State) reset() {
	s.messages = nil
	s.typing = make(map[uint]typingEntry)
	s.pendingEditID = 0
}

// RoomID 当前模式对应的房间。
func (s *State) RoomID() (string, error) {
	if s.mode == ModePrivate {
		return room.Resolve(s.selfID, s.peerID)
	}
	return room.PublicRoomID, nil
}

// SetHistory 以服务端返回的有序历史重置消息列表。
func (s *State) SetHistory(msgs []chat.Message) {
	s.messages = append(s.messages[:0], msgs...)
}

// ApplyNew 追加一条广播到达的新消息。
func (s *State) ApplyNew(m chat.Message) {
	s.messages = append(s.messages, m)
}

// ApplyUpdate 按 ID 原位替换（编辑、删除、表情都走同一条更新事件）。
// 视图里没有这条消息时静默忽略。
func (s *State) ApplyUpdate(m chat.Message) {
	for i := range s.messages {
		if s.messages[i].ID == m.ID {
			s.messages[i] = m
			if m.Deleted && s.pendingEditID == m.ID {
				s.pendingEditID = 0
			}
			return
		}
	}
}

func (s *State) Messages() []chat.Message { return s.messages }

// MarkTyping 记录对端键入；每次信号都重置 2 秒的回落窗口。
func (s *State) MarkTyping(userID uint, username string) {
	if userID == s.selfID {
		return
	}
	s.typing[userID] = typingEntry{username: username, seen: s.now()}
}

// ClearTyping 显式 stop_typing 信号。
func (s *State) ClearTyping(userID uint) {
	delete(s.typing, userID)
}

// TypingUsers 当前仍在键入的用户名；读取时顺带淘汰过期项。
func (s *State) TypingUsers() []string {
	now := s.now()
	out := make([]string, 0, len(s.typing))
	for id, e := range s.typing {
		if now.Sub(e.seen) >= TypingExpiry {
			delete(s.typing, id)
			continue
		}
		out = append(out, e.username)
	}
	return out
}

// BeginEdit 进入编辑态，返回当前正文作为草稿。只有自己的、未删除的
// 消息可编辑。
func (s *State) BeginEdit(id uint) (string, error) {
	for i := range s.messages {
		if s.messages[i].ID != id {
			continue
		}
		if s.messages[i].UserID != s.selfID || s.messages[i].Deleted {
			return "", ErrNotEditable
		}
		s.pendingEditID = id
		return s.messages[i].Body, nil
	}
	return "", ErrNoSuchMessage
}

// PendingEdit 当前处于编辑态的消息 ID。
func (s *State) PendingEdit() (uint, bool) {
	return s.pendingEditID, s.pendingEditID != 0
}

func (s *State) CancelEdit() {
	s.pendingEditID = 0
}

// CommitEdit 结束编辑态，返回要发给服务端的消息 ID。实际改动由服务端
// 确认后以 message_updated 回流。
func (s *State) CommitEdit() (uint, error) {
	if s.pendingEditID == 0 {
		return 0, ErrNotEditable
	}
	id := s.pendingEditID
	s.pendingEditID = 0
	return id, nil
}
