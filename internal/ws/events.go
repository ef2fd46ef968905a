package ws

import "encoding/json"

// Envelope 统一的帧格式：事件名 + JSON 负载。
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// 客户端到服务端的事件名。
const (
	evtJoinRoom      = "join_room"
	evtFetchHistory  = "fetch_chat_history"
	evtUserOnline    = "user_online"
	evtChatMessage   = "chat_message"
	evtEditMessage   = "edit_message"
	evtDeleteMessage = "delete_message"
	evtReactMessage  = "react_message"
	evtTyping        = "typing"
	evtStopTyping    = "stop_typing"
)

// 服务端到客户端的事件名。
const (
	evtChatHistory    = "chat_history"
	evtMessage        = "message"
	evtMessageUpdated = "message_updated"
	evtOnlineUsers    = "online_users"
	evtError          = "error"
)

type joinRoomPayload struct {
	RoomID string `json:"room_id"`
}

type userOnlinePayload struct {
	AvatarURL string `json:"avatar_url"`
}

type fetchHistoryPayload struct {
	RoomID       string `json:"room_id"`
	TargetUserID *uint  `json:"target_user_id"`
}

type sendPayload struct {
	Text        string `json:"text"`
	Kind        string `json:"message_type"`
	RecipientID *uint  `json:"recipient_id"`
	FileData    string `json:"file_data"`
	FileName    string `json:"file_name"`
	FileType    string `json:"file_type"`
}

type editPayload struct {
	MessageID uint   `json:"message_id"`
	NewText   string `json:"new_text"`
}

type deletePayload struct {
	MessageID uint `json:"message_id"`
}

type reactPayload struct {
	MessageID uint   `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type typingPayload struct {
	RoomID      string `json:"room_id"`
	Kind        string `json:"message_type"`
	RecipientID *uint  `json:"recipient_id"`
}

type typingNotice struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username,omitempty"`
}
