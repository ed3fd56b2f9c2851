// Package repo はルームと接続のインメモリな状態を保持します
// 状態はプロセスの生存期間のみ有効で、再起動時には空から作り直されます
package repo

import (
	"errors"

	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/models"
)

var (
	// ErrAlreadyJoined は参加済み接続への再設定を表します
	ErrAlreadyJoined = errors.New("connection already joined a room")
	// ErrConnectionNotFound は未登録の接続IDを表します
	ErrConnectionNotFound = errors.New("connection not found")
)

// RoomStore はルームの状態（配信者・視聴者集合）を管理します
// ルームは「配信者がいる、または視聴者が1人以上いる」間だけ存在します
type RoomStore interface {
	// Ensure はルームを取得し、無ければ空のルームを作成します
	Ensure(roomID string)
	// TrySetPublisher は配信者枠が空いている場合のみ設定します
	TrySetPublisher(roomID, connID string) bool
	// Publisher は現在の配信者の接続IDを返します
	Publisher(roomID string) (string, bool)
	// ClearPublisherIfMatches は配信者がconnIDと一致する場合のみ解除します
	// 古い切断イベントが新しい配信者を消さないためのガードです
	ClearPublisherIfMatches(roomID, connID string) bool
	// AddViewer は視聴者集合に追加します（冪等）
	AddViewer(roomID, connID string)
	// RemoveViewer は視聴者集合から取り除きます
	RemoveViewer(roomID, connID string)
	// Members はブロードキャスト用に配信者＋視聴者の接続IDを返します
	Members(roomID string) []string
	// IsEmpty は配信者も視聴者もいないかを返します（ルームが無い場合もtrue）
	IsEmpty(roomID string) bool
	// Delete はルームを削除します
	// 呼び出しは「空にした可能性のある操作の直後」に限られます
	Delete(roomID string)
	// Snapshot はルーム一覧エンドポイント向けの読み取り専用ビューを返します
	Snapshot() []models.RoomInfo
}

// ConnectionRegistry は接続中の参加者を管理します
type ConnectionRegistry interface {
	// Register は接続を登録します（room/roleは空、表示名はプレースホルダー）
	Register(connID string, sender models.Sender) *models.Connection
	// Lookup は接続を返します
	Lookup(connID string) (*models.Connection, bool)
	// SetRoomRole はjoin成功時に一度だけroom/roleを設定します
	// 参加済みの接続にはErrAlreadyJoinedを返します
	SetRoomRole(connID, roomID string, role models.Role, displayName string) error
	// ClearRoomRole は自発的な配信停止後にroom/roleを外し、再joinを許します
	ClearRoomRole(connID string)
	// Remove は切断した接続を破棄します
	Remove(connID string)
}
