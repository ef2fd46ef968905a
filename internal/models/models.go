package models

import "time"

type User struct {
	ID                   uint    `gorm:"primaryKey"`
	Username             string  `gorm:"uniqueIndex;size:20;not null"`
	FirstName            string  `gorm:"size:20;not null"`
	LastName             string  `gorm:"size:20;not null"`
	Email                string  `gorm:"uniqueIndex;size:40;not null"`
	PasswordHash         string  `gorm:"not null"`
	AvatarURL            string  `gorm:"size:2048"`
	IsVerified           bool    `gorm:"not null;default:false"`
	VerificationToken    *string `gorm:"uniqueIndex;size:255"`
	TokenExpiresAt       *time.Time
	ResetPasswordToken   *string `gorm:"uniqueIndex;size:255"`
	ResetPasswordExpires *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type Question struct {
	ID          uint   `gorm:"primaryKey"`
	QuestionID  string `gorm:"uniqueIndex;size:100;not null"`
	UserID      uint   `gorm:"index;not null"`
	Title       string `gorm:"size:100;not null"`
	Description string `gorm:"type:text;not null"`
	Tag         string `gorm:"size:20"`
	CreatedAt   time.Time
}

type Answer struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      uint   `gorm:"index;not null"`
	QuestionID  string `gorm:"index;size:100;not null"`
	Body        string `gorm:"type:text;not null"`
	RatingCount int    `gorm:"not null;default:0"`
	CreatedAt   time.Time
}

// AnswerRating 每个用户对同一回答只保留一票，重复投票时覆盖。
type AnswerRating struct {
	ID        uint `gorm:"primaryKey"`
	AnswerID  uint `gorm:"uniqueIndex:idx_rating_answer_user;not null"`
	UserID    uint `gorm:"uniqueIndex:idx_rating_answer_user;not null"`
	VoteType  int  `gorm:"not null"`
	CreatedAt time.Time
}

// ChatMessage 聊天消息行，room_id + created_at 复合索引支撑按房间的区间扫描。
type ChatMessage struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      uint   `gorm:"index;not null"`
	Username    string `gorm:"size:255;not null"`
	Body        string `gorm:"type:text;not null"`
	RoomID      string `gorm:"index:idx_chat_room_created,priority:1;size:255;not null"`
	Kind        string `gorm:"size:10;not null;default:public"`
	RecipientID *uint
	CreatedAt   time.Time `gorm:"index:idx_chat_room_created,priority:2"`
	EditedAt    *time.Time
	Deleted     bool   `gorm:"not null;default:false"`
	FilePayload string `gorm:"type:text"`
	FileName    string `gorm:"size:255"`
	FileType    string `gorm:"size:50"`

	Reactions []MessageReaction `gorm:"foreignKey:MessageID"`
}

// MessageReaction 结构化的表情行，(message, emoji, reactor) 三元组唯一。
type MessageReaction struct {
	ID          uint   `gorm:"primaryKey"`
	MessageID   uint   `gorm:"uniqueIndex:idx_react_msg_emoji_user,priority:1;not null"`
	Emoji       string `gorm:"uniqueIndex:idx_react_msg_emoji_user,priority:2;size:32;not null"`
	ReactorID   uint   `gorm:"uniqueIndex:idx_react_msg_emoji_user,priority:3;not null"`
	ReactorName string `gorm:"size:255;not null"`
	CreatedAt   time.Time
}

type RefreshToken struct {
	ID        uint       `gorm:"primaryKey"`
	UserID    uint       `gorm:"index;not null"`
	Token     string     `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time  `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}
