package repo

import (
	"sync"

	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/models"
)

// MemoryConnectionRegistry はConnectionRegistryのインメモリ実装です
type MemoryConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[string]*models.Connection
}

func NewMemoryConnectionRegistry() *MemoryConnectionRegistry {
	return &MemoryConnectionRegistry{conns: make(map[string]*models.Connection)}
}

func (r *MemoryConnectionRegistry) Register(connID string, sender models.Sender) *models.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &models.Connection{
		ID:          connID,
		DisplayName: models.DefaultDisplayName,
		Sender:      sender,
	}
	r.conns[connID] = c
	return c
}

func (r *MemoryConnectionRegistry) Lookup(connID string) (*models.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}

// SetRoomRole はroom/roleを設定します
// 参加済みの接続への2回目の呼び出しはプロトコル違反として拒否します
// （役割を変えたい場合は接続し直す）
func (r *MemoryConnectionRegistry) SetRoomRole(connID, roomID string, role models.Role, displayName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return ErrConnectionNotFound
	}
	if c.RoomID != "" {
		return ErrAlreadyJoined
	}
	c.RoomID = roomID
	c.Role = role
	if displayName != "" {
		c.DisplayName = displayName
	}
	return nil
}

func (r *MemoryConnectionRegistry) ClearRoomRole(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[connID]; ok {
		c.RoomID = ""
		c.Role = ""
	}
}

func (r *MemoryConnectionRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
}
