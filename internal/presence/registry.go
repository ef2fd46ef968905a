package presence

import (
	"sync"
	"time"

	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/room"
)

const (
	// DefaultTimeout 超过该时长无任何活动的用户会在下一次清扫时被移除。
	DefaultTimeout = 5 * time.Minute

	// SweepInterval hub 定时清扫的周期。
	SweepInterval = 30 * time.Second
)

// Entry 单个在线用户的连接元数据。
type Entry struct {
	UserID        uint
	Username      string
	AvatarURL     string
	ConnID        string
	LastActivity  time.Time
	CurrentRoomID string
}

// UserInfo 广播在线列表时的投影。
type UserInfo struct {
	UserID    uint   `json:"userId"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// Registry 进程内的在线用户表。实例随进程创建、注入到 hub，
// 同一用户最多保留一条记录，新连接覆盖旧元数据。
type Registry struct {
	mu      sync.Mutex
	entries map[uint]*Entry
	now     func() time.Time
}

func NewRegistry() *Registry {
	return NewRegistryWithClock(time.Now)
}

// NewRegistryWithClock 注入时钟，便于在测试里推进时间。
func NewRegistryWithClock(now func() time.Time) *Registry {
	return &Registry{entries: make(map[uint]*Entry), now: now}
}

// MarkOnline 登记或覆盖一条在线记录，默认落在公共大厅。
func (r *Registry) MarkOnline(userID uint, username, avatarURL, connID string) {
	if userID == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID := room.PublicRoomID
	if old, ok := r.entries[userID]; ok && old.CurrentRoomID != "" {
		roomID = old.CurrentRoomID
	}
	r.entries[userID] = &Entry{
		UserID:        userID,
		Username:      username,
		AvatarURL:     avatarURL,
		ConnID:        connID,
		LastActivity:  r.now(),
		CurrentRoomID: roomID,
	}
}

// Touch 刷新活动时间，返回该用户是否在表中。未知用户不是错误。
func (r *Registry) Touch(userID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[userID]
	if !ok {
		return false
	}
	e.LastActivity = r.now()
	return true
}

// SetCurrentRoom 更新房间追踪，仅用于展示，不参与消息路由。
func (r *Registry) SetCurrentRoom(userID uint, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[userID]; ok {
		e.CurrentRoomID = roomID
	}
}

// Remove 显式移除（登出等场景）。
func (r *Registry) Remove(userID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, userID)
}

// RemoveConn 按连接句柄移除。同一用户的新连接覆盖旧元数据后，
// 旧连接断开不应误删新记录，故必须匹配 ConnID。
func (r *Registry) RemoveConn(connID string) (uint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		if e.ConnID == connID {
			delete(r.entries, id)
			return id, true
		}
	}
	return 0, false
}

// Sweep 移除所有闲置超过 timeout 的记录，返回被移除的用户 ID。
func (r *Registry) Sweep(now time.Time, timeout time.Duration) []uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []uint
	for id, e := range r.entries {
		if now.Sub(e.LastActivity) > timeout {
			delete(r.entries, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Snapshot 当前在线用户的投影，顺序不保证。
func (r *Registry) Snapshot() []UserInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]UserInfo, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, UserInfo{UserID: e.UserID, Username: e.Username, AvatarURL: e.AvatarURL})
	}
	return out
}

// Count 在线人数。
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear 清空全部记录，进程关闭时调用。
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[uint]*Entry)
}
