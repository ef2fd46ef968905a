package room

import (
	"errors"
	"strconv"
)

// PublicRoomID 公共大厅的固定房间标识。
const PublicRoomID = "public_lobby"

var ErrMissingIdentity = errors.New("missing identity")

// Resolve 由一对用户 ID 推导私聊房间 ID，与参数顺序无关：
// Resolve(a, b) == Resolve(b, a)，小 ID 在前。
func Resolve(a, b uint) (string, error) {
	if a == 0 || b == 0 {
		return "", ErrMissingIdentity
	}
	if a > b {
		a, b = b, a
	}
	return strconv.FormatUint(uint64(a), 10) + "-" + strconv.FormatUint(uint64(b), 10), nil
}
