package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/models"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/room"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	KindPublic  = "public"
	KindPrivate = "private"

	// Tombstone 删除后替换正文的固定文案。
	Tombstone = "This message has been deleted."

	// HistoryLimit 单次历史查询的上限。
	HistoryLimit = 200

	// MaxAttachmentBytes 附件（base64 文本）大小上限。
	MaxAttachmentBytes = 5 << 20
)

// Store 封装聊天消息的持久化操作。
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

type Attachment struct {
	Payload  string `json:"file_data"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
}

// NewMessage 待写入的消息，ID 与 CreatedAt 由存储层分配。
type NewMessage struct {
	AuthorID    uint
	AuthorName  string
	Kind        string
	RecipientID *uint
	Body        string
	Attachment  *Attachment
}

// Reaction 对外输出的聚合表情项，userIds 与 usernames 一一对应。
type Reaction struct {
	Emoji     string   `json:"emoji"`
	UserIDs   []uint   `json:"userIds"`
	Usernames []string `json:"usernames"`
}

// Message 对外输出的消息数据。
type Message struct {
	ID          uint       `json:"message_id"`
	UserID      uint       `json:"user_id"`
	Username    string     `json:"username"`
	Body        string     `json:"message_text"`
	RoomID      string     `json:"room_id"`
	Kind        string     `json:"message_type"`
	RecipientID *uint      `json:"recipient_id"`
	CreatedAt   time.Time  `json:"created_at"`
	EditedAt    *time.Time `json:"edited_at"`
	Deleted     bool       `json:"is_deleted"`
	Reactions   []Reaction `json:"reactions"`
	FilePayload string     `json:"file_data,omitempty"`
	FileName    string     `json:"file_name,omitempty"`
	FileType    string     `json:"file_type,omitempty"`
}

// Append 校验并落库一条新消息：分配 ID 与创建时间，房间 ID 由消息类型推导。
func (s *Store) Append(nm NewMessage) (*Message, error) {
	if nm.AuthorID == 0 || nm.AuthorName == "" {
		return nil, fmt.Errorf("%w: missing author", ErrValidation)
	}
	if nm.Body == "" && nm.Attachment == nil {
		return nil, fmt.Errorf("%w: empty body without attachment", ErrValidation)
	}
	if nm.Attachment != nil && len(nm.Attachment.Payload) > MaxAttachmentBytes {
		return nil, fmt.Errorf("%w: attachment exceeds %d bytes", ErrValidation, MaxAttachmentBytes)
	}

	kind := nm.Kind
	roomID := room.PublicRoomID
	var recipient *uint
	if kind == KindPrivate {
		if nm.RecipientID == nil {
			return nil, fmt.Errorf("%w: private message without recipient", ErrValidation)
		}
		rid, err := room.Resolve(nm.AuthorID, *nm.RecipientID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		roomID = rid
		recipient = nm.RecipientID
	} else {
		kind = KindPublic
	}

	row := models.ChatMessage{
		UserID:      nm.AuthorID,
		Username:    nm.AuthorName,
		Body:        nm.Body,
		RoomID:      roomID,
		Kind:        kind,
		RecipientID: recipient,
	}
	if nm.Attachment != nil {
		row.FilePayload = nm.Attachment.Payload
		row.FileName = nm.Attachment.FileName
		row.FileType = nm.Attachment.FileType
	}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	msg := toDTO(row, nil)
	return &msg, nil
}

// ListByRoom 按创建时间升序返回指定房间的消息。
func (s *Store) ListByRoom(roomID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}
	var rows []models.ChatMessage
	err := s.db.Preload("Reactions", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Where("room_id = ?", roomID).
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	out := make([]Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, toDTO(r, r.Reactions))
	}
	return out, nil
}

// Edit 作者修改自己的消息正文并记录编辑时间。
func (s *Store) Edit(id, authorID uint, newBody string) (*Message, error) {
	if newBody == "" {
		return nil, fmt.Errorf("%w: empty body", ErrValidation)
	}
	var out *Message
	err := s.db.Transaction(func(tx *gorm.DB) error {
		row, err := lockMessage(tx, id)
		if err != nil {
			return err
		}
		if row.UserID != authorID {
			return ErrForbidden
		}
		if row.Deleted {
			return ErrInvalidState
		}
		now := time.Now()
		updates := map[string]interface{}{"body": newBody, "edited_at": &now}
		if err := tx.Model(&models.ChatMessage{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		out, err = loadDTO(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete 作者删除自己的消息：正文替换为墓碑、附件与表情清空，单向不可逆。
func (s *Store) Delete(id, authorID uint) (*Message, error) {
	var out *Message
	err := s.db.Transaction(func(tx *gorm.DB) error {
		row, err := lockMessage(tx, id)
		if err != nil {
			return err
		}
		if row.UserID != authorID {
			return ErrForbidden
		}
		if row.Deleted {
			return ErrInvalidState
		}
		updates := map[string]interface{}{
			"body":         Tombstone,
			"deleted":      true,
			"file_payload": "",
			"file_name":    "",
			"file_type":    "",
		}
		if err := tx.Model(&models.ChatMessage{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if err := tx.Where("message_id = ?", id).Delete(&models.MessageReaction{}).Error; err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		out, err = loadDTO(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ToggleReaction 同一 (消息, 表情, 用户) 的二次提交视为撤销；同一用户可对
// 同一消息持有多个不同表情。整个读改写在持有消息行锁的事务内完成。
func (s *Store) ToggleReaction(id, reactorID uint, reactorName, emoji string) (*Message, error) {
	if emoji == "" || reactorID == 0 {
		return nil, fmt.Errorf("%w: missing reactor or emoji", ErrValidation)
	}
	var out *Message
	err := s.db.Transaction(func(tx *gorm.DB) error {
		row, err := lockMessage(tx, id)
		if err != nil {
			return err
		}
		if row.Deleted {
			return ErrInvalidState
		}
		var existing models.MessageReaction
		err = tx.Where("message_id = ? AND emoji = ? AND reactor_id = ?", id, emoji, reactorID).
			First(&existing).Error
		switch {
		case err == nil:
			if err := tx.Delete(&existing).Error; err != nil {
				return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			r := models.MessageReaction{MessageID: id, Emoji: emoji, ReactorID: reactorID, ReactorName: reactorName}
			if err := tx.Create(&r).Error; err != nil {
				return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
			}
		default:
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		out, err = loadDTO(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// lockMessage 以 FOR UPDATE 读出消息行，同一消息上的并发改动彼此串行。
func lockMessage(tx *gorm.DB, id uint) (*models.ChatMessage, error) {
	var row models.ChatMessage
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &row, nil
}

func loadDTO(tx *gorm.DB, id uint) (*Message, error) {
	var row models.ChatMessage
	err := tx.Preload("Reactions", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		First(&row, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	msg := toDTO(row, row.Reactions)
	return &msg, nil
}

// toDTO 将反应行按表情聚合成对外结构，保持首次出现的顺序。
func toDTO(row models.ChatMessage, reactions []models.MessageReaction) Message {
	agg := make([]Reaction, 0)
	index := make(map[string]int)
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			index[r.Emoji] = len(agg)
			agg = append(agg, Reaction{Emoji: r.Emoji})
			i = len(agg) - 1
		}
		agg[i].UserIDs = append(agg[i].UserIDs, r.ReactorID)
		agg[i].Usernames = append(agg[i].Usernames, r.ReactorName)
	}
	return Message{
		ID:          row.ID,
		UserID:      row.UserID,
		Username:    row.Username,
		Body:        row.Body,
		RoomID:      row.RoomID,
		Kind:        row.Kind,
		RecipientID: row.RecipientID,
		CreatedAt:   row.CreatedAt,
		EditedAt:    row.EditedAt,
		Deleted:     row.Deleted,
		Reactions:   agg,
		FilePayload: row.FilePayload,
		FileName:    row.FileName,
		FileType:    row.FileType,
	}
}
