package repo

import (
	"sync"

	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/models"
)

// roomState は1ルーム分の状態
type roomState struct {
	publisher string              // 配信者の接続ID（空なら不在）
	viewers   map[string]struct{} // 視聴者の接続ID集合
}

// MemoryRoomStore はRoomStoreのインメモリ実装です
// 変更操作はコーディネーター側で直列化されますが、Snapshotは
// 任意のHTTPリクエストから読まれるためロックで守ります
type MemoryRoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*roomState
}

func NewMemoryRoomStore() *MemoryRoomStore {
	return &MemoryRoomStore{rooms: make(map[string]*roomState)}
}

func (s *MemoryRoomStore) Ensure(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		s.rooms[roomID] = &roomState{viewers: make(map[string]struct{})}
	}
}

func (s *MemoryRoomStore) TrySetPublisher(roomID, connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok || r.publisher != "" {
		return false
	}
	r.publisher = connID
	return true
}

func (s *MemoryRoomStore) Publisher(roomID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok || r.publisher == "" {
		return "", false
	}
	return r.publisher, true
}

func (s *MemoryRoomStore) ClearPublisherIfMatches(roomID, connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok || r.publisher != connID {
		return false
	}
	r.publisher = ""
	return true
}

func (s *MemoryRoomStore) AddViewer(roomID, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		r.viewers[connID] = struct{}{}
	}
}

func (s *MemoryRoomStore) RemoveViewer(roomID, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		delete(r.viewers, connID)
	}
}

func (s *MemoryRoomStore) Members(roomID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	members := make([]string, 0, len(r.viewers)+1)
	if r.publisher != "" {
		members = append(members, r.publisher)
	}
	for id := range r.viewers {
		members = append(members, id)
	}
	return members
}

func (s *MemoryRoomStore) IsEmpty(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return true
	}
	return r.publisher == "" && len(r.viewers) == 0
}

func (s *MemoryRoomStore) Delete(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

// Snapshot は並行する変更があっても、ある時点のビューを返します
// 一覧表示用の参考情報であり、厳密な一貫性は要求されません
func (s *MemoryRoomStore) Snapshot() []models.RoomInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]models.RoomInfo, 0, len(s.rooms))
	for id, r := range s.rooms {
		list = append(list, models.RoomInfo{
			RoomID:       id,
			HasPublisher: r.publisher != "",
			ViewerCount:  len(r.viewers),
		})
	}
	return list
}
