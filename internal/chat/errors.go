package chat

import "errors"

// 消息存储层错误，ws 层据此决定回给发起连接的提示。
var (
	ErrNotFound           = errors.New("message not found")
	ErrForbidden          = errors.New("not the message author")
	ErrInvalidState       = errors.New("message already deleted")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrValidation         = errors.New("invalid message")
)
