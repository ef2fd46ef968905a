package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/chat"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/presence"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/room"
)

// fakeStore is an in-memory MessageStore mirroring the real store's semantics.
type fakeStore struct {
	mu         sync.Mutex
	nextID     uint
	msgs       map[uint]*chat.Message
	failAppend bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{msgs: make(map[uint]*chat.Message)}
}

func (s *fakeStore) Append(nm chat.NewMessage) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend {
		return nil, chat.ErrStorageUnavailable
	}
	if nm.Body == "" && nm.Attachment == nil {
		return nil, chat.ErrValidation
	}
	roomID := room.PublicRoomID
	kind := chat.KindPublic
	if nm.Kind == chat.KindPrivate && nm.RecipientID != nil {
		rid, err := room.Resolve(nm.AuthorID, *nm.RecipientID)
		if err != nil {
			return nil, chat.ErrValidation
		}
		roomID = rid
		kind = chat.KindPrivate
	}
	s.nextID++
	m := &chat.Message{
		ID: s.nextID, UserID: nm.AuthorID, Username: nm.AuthorName,
		Body: nm.Body, RoomID: roomID, Kind: kind, RecipientID: nm.RecipientID,
		CreatedAt: time.Now(), Reactions: []chat.Reaction{},
	}
	s.msgs[m.ID] = m
	cp := *m
	return &cp, nil
}

func (s *fakeStore) ListByRoom(roomID string, limit int) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []chat.Message{}
	for id := uint(1); id <= s.nextID; id++ {
		if m, ok := s.msgs[id]; ok && m.RoomID == roomID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *fakeStore) Edit(id, authorID uint, newBody string) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, chat.ErrNotFound
	}
	if m.UserID != authorID {
		return nil, chat.ErrForbidden
	}
	if m.Deleted {
		return nil, chat.ErrInvalidState
	}
	now := time.Now()
	m.Body = newBody
	m.EditedAt = &now
	cp := *m
	return &cp, nil
}

func (s *fakeStore) Delete(id, authorID uint) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, chat.ErrNotFound
	}
	if m.UserID != authorID {
		return nil, chat.ErrForbidden
	}
	if m.Deleted {
		return nil, chat.ErrInvalidState
	}
	m.Deleted = true
	m.Body = chat.Tombstone
	m.Reactions = []chat.Reaction{}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) ToggleReaction(id, reactorID uint, reactorName, emoji string) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, chat.ErrNotFound
	}
	if m.Deleted {
		return nil, chat.ErrInvalidState
	}
	for i := range m.Reactions {
		if m.Reactions[i].Emoji != emoji {
			continue
		}
		for j, uid := range m.Reactions[i].UserIDs {
			if uid == reactorID {
				m.Reactions[i].UserIDs = append(m.Reactions[i].UserIDs[:j], m.Reactions[i].UserIDs[j+1:]...)
				m.Reactions[i].Usernames = append(m.Reactions[i].Usernames[:j], m.Reactions[i].Usernames[j+1:]...)
				if len(m.Reactions[i].UserIDs) == 0 {
					m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
				}
				cp := *m
				return &cp, nil
			}
		}
		m.Reactions[i].UserIDs = append(m.Reactions[i].UserIDs, reactorID)
		m.Reactions[i].Usernames = append(m.Reactions[i].Usernames, reactorName)
		cp := *m
		return &cp, nil
	}
	m.Reactions = append(m.Reactions, chat.Reaction{Emoji: emoji, UserIDs: []uint{reactorID}, Usernames: []string{reactorName}})
	cp := *m
	return &cp, nil
}

func newTestHub(store MessageStore) *Hub {
	return NewHub(store, presence.NewRegistry())
}

func addClient(h *Hub, userID uint, username string) *Client {
	c := &Client{
		hub:      h,
		send:     make(chan []byte, 64),
		connID:   fmt.Sprintf("conn-%d", userID),
		userID:   userID,
		username: username,
	}
	h.register(c)
	return c
}

func inbound(t *testing.T, event string, v interface{}) Envelope {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return Envelope{Event: event, Data: data}
}

// recv drains one frame from the client; handleEvent is synchronous so frames
// are already buffered by the time we read.
func recv(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case b := <-c.send:
		var env Envelope
		if err := json.Unmarshal(b, &env); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		return env
	default:
		t.Fatal("expected a frame, send buffer empty")
		return Envelope{}
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func assertQuiet(t *testing.T, c *Client, who string) {
	t.Helper()
	select {
	case b := <-c.send:
		t.Fatalf("%s unexpectedly received: %s", who, b)
	default:
	}
}

func TestChatMessage_BroadcastToRoomSubscribers(t *testing.T) {
	h := newTestHub(newFakeStore())
	sender := addClient(h, 1, "alice")
	member := addClient(h, 2, "bob")
	outsider := addClient(h, 3, "carol")

	h.handleEvent(sender, inbound(t, evtJoinRoom, joinRoomPayload{RoomID: room.PublicRoomID}))
	h.handleEvent(member, inbound(t, evtJoinRoom, joinRoomPayload{RoomID: room.PublicRoomID}))
	drain(sender)
	drain(member)
	drain(outsider)

	h.handleEvent(sender, inbound(t, evtChatMessage, sendPayload{Text: "hi"}))

	for _, c := range []*Client{sender, member} {
		env := recv(t, c)
		if env.Event != evtMessage {
			t.Fatalf("event = %q, want message", env.Event)
		}
		var msg chat.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			t.Fatalf("unmarshal message: %v", err)
		}
		if msg.Body != "hi" || msg.RoomID != room.PublicRoomID || msg.Deleted {
			t.Errorf("message = %+v", msg)
		}
	}

	// The outsider only sees the online-users broadcast, never the message.
	env := recv(t, outsider)
	if env.Event != evtOnlineUsers {
		t.Errorf("outsider got %q, want online_users only", env.Event)
	}
	assertQuiet(t, outsider, "outsider")
}

func TestChatMessage_PrivateRoomRoundTrip(t *testing.T) {
	store := newFakeStore()
	h := newTestHub(store)
	u1 := addClient(h, 1, "alice")
	u2 := addClient(h, 2, "bob")

	h.handleEvent(u1, inbound(t, evtJoinRoom, joinRoomPayload{RoomID: "1-2"}))
	h.handleEvent(u2, inbound(t, evtJoinRoom, joinRoomPayload{RoomID: "1-2"}))
	drain(u1)
	drain(u2)

	two := uint(2)
	one := uint(1)
	h.handleEvent(u1, inbound(t, evtChatMessage, sendPayload{Text: "psst", Kind: chat.KindPrivate, RecipientID: &two}))
	h.handleEvent(u2, inbound(t, evtChatMessage, sendPayload{Text: "yes?", Kind: chat.KindPrivate, RecipientID: &one}))

	msgs, _ := store.ListByRoom("1-2", chat.HistoryLimit)
	if len(msgs) != 2 {
		t.Fatalf("room 1-2 history = %d messages, want 2 (both directions share one room)", len(msgs))
	}
}

func TestChatMessage_AppendFailureIsUnicastOnly(t *testing.T) {
	store := newFakeStore()
	store.failAppend = true
	h := newTestHub(store)
	sender := addClient(h, 1, "alice")
	member := addClient(h, 2, "bob")
	h.handleEvent(sender, inbound(t, evtJoinRoom, joinRoomPayload{RoomID: room.PublicRoomID}))
	h.handleEvent(member, inbound(t, evtJoinRoom, joinRoomPayload{RoomID: room.PublicRoomID}))
	drain(sender)
	drain(member)

	h.handleEvent(sender, inbound(t, evtChatMessage, sendPayload{Text: "hi"}))

	env := recv(t, sender)
	if env.Event != evtError {
		t.Fatalf("sender got %q, want error", env.Event)
	}
	assertQuiet(t, member, "room member")
}

func TestEditMessage(t *testing.T) {
	store := newFakeStore()
	h := newTestHub(store)
	author := addClient(h, 1, "alice")
	member := addClient(h, 2, "bob")
	h.handleEvent(author, inbound(t, evtJoinRoom, joinRoomPayload{RoomID: room.PublicRoomID}))
	h.handleEvent(member, inbound(t, evtJoinRoom, joinRoomPayload{RoomID: room.PublicRoomID}))
	h.handleEvent(author, inbound(t, evtChatMessage, sendPayload{Text: "draft"}))
	drain(author)
	drain(member)

	h.handleEvent(author, inbound(t, evtEditMessage, editPayload{MessageID: 1, NewText: "final"}))

	env := recv(t, member)
	if env.Event != evtMessageUpdated {
		t.Fatalf("member got %q, want message_updated", env.Event)
	}
	var msg chat.Message
	_ = json.Unmarshal(env.Data, &msg)
	if msg.Body != "final" || msg.EditedAt == nil {
		t.Errorf("updated message = %+v", msg)
	}

	// Non-author edit: unicast error to the actor, silence for the room.
	drain(author)
	drain(member)
	h.handleEvent(member, inbound(t, evtEditMessage, editPayload{MessageID: 1, NewText: "hijack"}))
	env = recv(t, member)
	if env.Event != evtError {
		t.Fatalf("non-author got %q, want error", env.Event)
	}
	assertQuiet(t, author, "author")
}

func TestReactMessage_ToggleBroadcasts(t *testing.T) {
	store := newFakeStore()
	h := newTestHub(store)
	author := addClient(h, 1, "alice")
	reactor := addClient(h, 2, "bob")
	h.handleEvent(author, inbound(t, evtJoinRoom, joinRoomPayload{RoomID: room.PublicRoomID}))
	h.handleEvent(reactor, inbound(t, evtJoinRoom, joinRoomPayload{RoomID: room.PublicRoomID}))
	h.handleEvent(author, inbound(t, evtChatMessage, sendPayload{Text: "react"}))
	drain(author)
	drain(reactor)

	h.handleEvent(reactor, inbound(t, evtReactMessage, reactPayload{MessageID: 1, Emoji: "👍"}))
	env := recv(t, author)
	var msg chat.Message
	_ = json.Unmarshal(env.Data, &msg)
	if env.Event != evtMessageUpdated || len(msg.Reactions) != 1 {
		t.Fatalf("toggle-on: event %q reactions %+v", env.Event, msg.Reactions)
	}

	drain(author)
	drain(reactor)
	h.handleEvent(reactor, inbound(t, evtReactMessage, reactPayload{MessageID: 1, Emoji: "👍"}))
	env = recv(t, author)
	_ = json.Unmarshal(env.Data, &msg)
	if len(msg.Reactions) != 0 {
		t.Errorf("toggle-off: reactions = %+v, want empty", msg.Reactions)
	}
}

func TestTyping_ExcludesSender(t *testing.T) {
	h := newTestHub(newFakeStore())
	typer := addClient(h, 1, "alice")
	watcher := addClient(h, 2, "bob")
	h.handleEvent(typer, inbound(t, evtJoinRoom, joinRoomPayload{RoomID: room.PublicRoomID}))
	h.handleEvent(watcher, inbound(t, evtJoinRoom, joinRoomPayload{RoomID: room.PublicRoomID}))
	drain(typer)
	drain(watcher)

	h.handleEvent(typer, inbound(t, evtTyping, typingPayload{RoomID: room.PublicRoomID}))

	env := recv(t, watcher)
	if env.Event != evtTyping {
		t.Fatalf("watcher got %q, want typing", env.Event)
	}
	var n typingNotice
	_ = json.Unmarshal(env.Data, &n)
	if n.UserID != 1 || n.Username != "alice" {
		t.Errorf("typing notice = %+v", n)
	}
	assertQuiet(t, typer, "typer")

	h.handleEvent(typer, inbound(t, evtStopTyping, typingPayload{RoomID: room.PublicRoomID}))
	env = recv(t, watcher)
	if env.Event != evtStopTyping {
		t.Errorf("watcher got %q, want stop_typing", env.Event)
	}
	assertQuiet(t, typer, "typer")
}

func TestFetchHistory_Unicast(t *testing.T) {
	store := newFakeStore()
	h := newTestHub(store)
	asker := addClient(h, 1, "alice")
	other := addClient(h, 2, "bob")
	h.handleEvent(asker, inbound(t, evtChatMessage, sendPayload{Text: "first"}))
	drain(asker)
	drain(other)

	h.handleEvent(asker, inbound(t, evtFetchHistory, fetchHistoryPayload{}))

	env := recv(t, asker)
	if env.Event != evtChatHistory {
		t.Fatalf("asker got %q, want chat_history", env.Event)
	}
	var msgs []chat.Message
	if err := json.Unmarshal(env.Data, &msgs); err != nil || len(msgs) != 1 {
		t.Errorf("history = %v (err %v), want the single public message", msgs, err)
	}
	assertQuiet(t, other, "other connection")
}

func TestFetchHistory_ResolvesTargetIdentity(t *testing.T) {
	store := newFakeStore()
	h := newTestHub(store)
	u2 := addClient(h, 2, "bob")
	one := uint(1)
	recipient := uint(2)
	if _, err := store.Append(chat.NewMessage{AuthorID: 1, AuthorName: "alice", Kind: chat.KindPrivate, RecipientID: &recipient, Body: "dm"}); err != nil {
		t.Fatalf("seed append: %v", err)
	}

	h.handleEvent(u2, inbound(t, evtFetchHistory, fetchHistoryPayload{TargetUserID: &one}))
	env := recv(t, u2)
	var msgs []chat.Message
	_ = json.Unmarshal(env.Data, &msgs)
	if len(msgs) != 1 || msgs[0].RoomID != "1-2" {
		t.Errorf("history = %+v, want the 1-2 message", msgs)
	}
}

func TestUserOnlineAndDisconnect(t *testing.T) {
	h := newTestHub(newFakeStore())
	a := addClient(h, 1, "alice")
	b := addClient(h, 2, "bob")

	h.handleEvent(a, inbound(t, evtUserOnline, userOnlinePayload{AvatarURL: "http://cdn/a.png"}))

	for _, c := range []*Client{a, b} {
		env := recv(t, c)
		if env.Event != evtOnlineUsers {
			t.Fatalf("got %q, want online_users", env.Event)
		}
		var users []presence.UserInfo
		_ = json.Unmarshal(env.Data, &users)
		if len(users) != 1 || users[0].UserID != 1 {
			t.Errorf("online users = %+v", users)
		}
	}

	h.unregister(a)
	env := recv(t, b)
	if env.Event != evtOnlineUsers {
		t.Fatalf("after disconnect got %q, want online_users", env.Event)
	}
	var users []presence.UserInfo
	_ = json.Unmarshal(env.Data, &users)
	if len(users) != 0 {
		t.Errorf("online users after disconnect = %+v, want empty", users)
	}
	if h.Online(room.PublicRoomID) != 0 {
		t.Errorf("Online() = %d after all left", h.Online(room.PublicRoomID))
	}
}

func TestSweep_EvictsIdleAndBroadcasts(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	reg := presence.NewRegistryWithClock(func() time.Time { return clock })
	h := NewHub(newFakeStore(), reg)
	c := addClient(h, 1, "alice")
	h.handleEvent(c, inbound(t, evtUserOnline, userOnlinePayload{}))
	drain(c)

	h.sweep(clock.Add(301 * time.Second))

	env := recv(t, c)
	if env.Event != evtOnlineUsers {
		t.Fatalf("got %q, want online_users", env.Event)
	}
	var users []presence.UserInfo
	_ = json.Unmarshal(env.Data, &users)
	if len(users) != 0 {
		t.Errorf("online users after sweep = %+v, want empty", users)
	}
}

func TestResubscribeWithoutDisconnect(t *testing.T) {
	h := newTestHub(newFakeStore())
	c := addClient(h, 1, "alice")
	h.handleEvent(c, inbound(t, evtJoinRoom, joinRoomPayload{RoomID: room.PublicRoomID}))
	h.handleEvent(c, inbound(t, evtJoinRoom, joinRoomPayload{RoomID: "1-2"}))

	if h.Online(room.PublicRoomID) != 1 || h.Online("1-2") != 1 {
		t.Errorf("multiple subscriptions not kept: lobby=%d dm=%d",
			h.Online(room.PublicRoomID), h.Online("1-2"))
	}
}
