// Package service はルーム参加・離脱のビジネスロジックを担当します
// ルームの状態遷移はすべてここを通り、1つのミューテックスで直列化されます
package service

import (
	"errors"
	"log"
	"sync"

	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/models"
	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/relay"
	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/repo"
)

// waitingMessage は配信者不在のルームに入った視聴者へのお知らせ
const waitingMessage = "Waiting for publisher to go live"

// SessionService はルームの状態機械を管理します
//
// 接続の状態は Connected（未参加）→ Joined（room/role固定）→ Gone（切断）
// の一方向で、Join/Stop/Disconnectの各操作はmuの下で最初から最後まで
// 実行されます。ルーム不変条件（配信者は最大1人、空ルームは即削除）は
// この直列化に依存しています
type SessionService struct {
	store    repo.RoomStore
	registry repo.ConnectionRegistry
	relay    *relay.Relay

	mu sync.Mutex
}

// NewSessionService は新しいSessionServiceを作成します
func NewSessionService(store repo.RoomStore, registry repo.ConnectionRegistry, rl *relay.Relay) *SessionService {
	return &SessionService{store: store, registry: registry, relay: rl}
}

// Join は接続をルームに参加させ、役割に応じた通知を送ります
//
// publisher: 配信者枠が空いていれば獲得し、ルーム全体へpublisher-readyを
// 流します。枠が埋まっていればErrRoomHasPublisherを返します（接続は
// 未参加のまま使い続けられる）
//
// viewer: 無条件に視聴者集合へ追加します。配信者がいればその配信者へ
// viewer-joinedを、参加した視聴者へはpublisher-readyを送ります。
// 配信者不在なら待機中のお知らせのみ送ります
func (s *SessionService) Join(connID, roomID string, role models.Role, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.registry.Lookup(connID)
	if !ok {
		return ErrConnectionNotFound
	}
	if !role.Valid() {
		return ErrInvalidRole
	}
	// 参加済みの接続からの再joinはプロトコル違反として拒否する
	// （状態を上書きしない。役割を変えたい場合は接続し直す）
	if conn.Joined() {
		return ErrAlreadyJoined
	}

	s.store.Ensure(roomID)

	if role == models.RolePublisher {
		if !s.store.TrySetPublisher(roomID, connID) {
			// 既に配信者がいる。Ensureで作ったルームが空のまま残る
			// ことはない（拒否されたということは配信者がいる）
			log.Printf("publisher join rejected: roomId=%s connId=%s", roomID, connID)
			return ErrRoomHasPublisher
		}
		if err := s.registry.SetRoomRole(connID, roomID, role, username); err != nil {
			// 直前にJoined()を確認しているので通常は到達しない
			s.store.ClearPublisherIfMatches(roomID, connID)
			s.deleteRoomIfEmpty(roomID)
			return mapRegistryErr(err)
		}
		s.relay.ToConn(connID, models.NewMessage(models.TypeJoined, models.JoinedPayload{
			RoomID: roomID, Role: role, MySocketID: connID,
		}))
		// 先に入っていた視聴者（と配信者自身）に配信開始を知らせる
		s.relay.ToRoom(roomID, "", models.NewMessage(models.TypePublisherReady, models.PublisherReadyPayload{
			PublisherSocketID: connID,
		}))
		log.Printf("publisher joined: roomId=%s connId=%s", roomID, connID)
		return nil
	}

	// viewer
	s.store.AddViewer(roomID, connID)
	if err := s.registry.SetRoomRole(connID, roomID, role, username); err != nil {
		s.store.RemoveViewer(roomID, connID)
		s.deleteRoomIfEmpty(roomID)
		return mapRegistryErr(err)
	}
	s.relay.ToConn(connID, models.NewMessage(models.TypeJoined, models.JoinedPayload{
		RoomID: roomID, Role: role, MySocketID: connID,
	}))
	if pub, ok := s.store.Publisher(roomID); ok {
		s.relay.ToConn(pub, models.NewMessage(models.TypeViewerJoined, models.ViewerJoinedPayload{
			ViewerSocketID: connID,
			Username:       conn.DisplayName,
		}))
		// 後から入った視聴者にも配信中であることを知らせる
		// （これが無いと待機通知が出ないまま放置される）
		s.relay.ToConn(connID, models.NewMessage(models.TypePublisherReady, models.PublisherReadyPayload{
			PublisherSocketID: pub,
		}))
	} else {
		s.relay.ToConn(connID, models.NewMessage(models.TypeInfo, models.InfoPayload{
			Message: waitingMessage,
		}))
	}
	log.Printf("viewer joined: roomId=%s connId=%s", roomID, connID)
	return nil
}

// Stop は配信者が自発的に配信を終了するときの処理です
// ストア上の配信者がまだこの接続である場合のみ効果があります
// 終了後、接続は未参加状態に戻り、すぐに再joinできます
func (s *SessionService) Stop(connID, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pub, ok := s.store.Publisher(roomID)
	if !ok || pub != connID {
		// 古いstop。無視する
		return
	}

	// 配信者自身も含めてルーム全体へ通知してから枠を空ける
	s.relay.ToRoom(roomID, "", models.NewMessage(models.TypePublisherLeft, models.PublisherLeftPayload{
		Reason: models.ReasonStopped,
	}))
	s.store.ClearPublisherIfMatches(roomID, connID)
	s.registry.ClearRoomRole(connID)
	s.deleteRoomIfEmpty(roomID)
	log.Printf("publisher stopped stream: roomId=%s connId=%s", roomID, connID)
}

// Disconnect は接続の切断時クリーンアップです。以後この接続IDへの
// イベントは受け付けられません
func (s *SessionService) Disconnect(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.registry.Lookup(connID)
	if !ok {
		return
	}
	if roomID := conn.RoomID; roomID != "" {
		if conn.Role == models.RolePublisher {
			// 一致する場合のみ解除。古い切断が新しい配信者を
			// 消さないためのガード
			if s.store.ClearPublisherIfMatches(roomID, connID) {
				s.relay.ToRoom(roomID, connID, models.NewMessage(models.TypePublisherLeft, models.PublisherLeftPayload{
					Reason: models.ReasonDisconnected,
				}))
			}
		} else {
			s.store.RemoveViewer(roomID, connID)
			if pub, ok := s.store.Publisher(roomID); ok {
				s.relay.ToConn(pub, models.NewMessage(models.TypeViewerLeft, models.ViewerLeftPayload{
					ViewerSocketID: connID,
				}))
			}
		}
		s.deleteRoomIfEmpty(roomID)
	}
	s.registry.Remove(connID)
	s.relay.Forget(connID)
	log.Printf("connection removed: connId=%s", connID)
}

// deleteRoomIfEmpty は空になったルームをその場で削除します
// タイマーや別パスでの掃除は行いません（ルームを空にし得る操作の
// 直後に必ずここを通します）
func (s *SessionService) deleteRoomIfEmpty(roomID string) {
	if s.store.IsEmpty(roomID) {
		s.store.Delete(roomID)
		log.Printf("deleted empty room: roomId=%s", roomID)
	}
}

// mapRegistryErr はrepo層のエラーをservice層のエラーへ変換します
func mapRegistryErr(err error) error {
	switch {
	case errors.Is(err, repo.ErrAlreadyJoined):
		return ErrAlreadyJoined
	case errors.Is(err, repo.ErrConnectionNotFound):
		return ErrConnectionNotFound
	default:
		return err
	}
}
