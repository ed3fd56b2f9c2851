// Package models はアプリケーションで使用するデータ構造を定義します
package models

// Role は接続がルーム内で担う役割を表します
type Role string

const (
	RolePublisher Role = "publisher" // 配信者（ルームに最大1人）
	RoleViewer    Role = "viewer"    // 視聴者（人数制限なし）
)

// Valid は役割が既知の値かを返します
func (r Role) Valid() bool {
	return r == RolePublisher || r == RoleViewer
}

// DefaultDisplayName は表示名が未指定の場合のプレースホルダー
const DefaultDisplayName = "Anonymous"

// Sender は1つの接続へメッセージを届ける送信口です
// 配送はfire-and-forget: 送信できなかった場合はfalseを返すだけで、
// 呼び出し側のイベント処理を止めてはいけません
type Sender interface {
	Send(msg Message) bool
}

// Connection は1つのWebSocket接続の最小限の情報を表します
// RoomID / Role はjoin成功時に一度だけ設定されます
type Connection struct {
	ID          string // サーバーが割り当てた接続ID（ULID、再利用しない）
	RoomID      string // 参加中のルームID（未参加は空）
	Role        Role   // 参加中の役割（未参加は空）
	DisplayName string // 表示名

	Sender Sender // この接続への送信口
}

// Joined は接続がルームに参加済みかを返します
func (c *Connection) Joined() bool {
	return c.RoomID != ""
}

// RoomInfo はルーム一覧エンドポイントで公開する最小限の情報です
type RoomInfo struct {
	RoomID       string `json:"roomId"`       // ルームID
	HasPublisher bool   `json:"hasPublisher"` // 配信者がいるか
	ViewerCount  int    `json:"viewerCount"`  // 視聴者数
}
