package models

import "encoding/json"

// WebSocketで送受信するメッセージタイプ
const (
	// client -> server
	TypeJoinRoom     = "join-room"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeChatMessage  = "chat-message"
	TypeStopStream   = "stop-stream"

	// server -> client
	TypeJoined         = "joined"
	TypeError          = "error"
	TypePublisherReady = "publisher-ready"
	TypeInfo           = "info"
	TypeViewerJoined   = "viewer-joined"
	TypeViewerLeft     = "viewer-left"
	TypePublisherLeft  = "publisher-left"
)

// エラーコード
const (
	CodeRoomHasPublisher = "ROOM_HAS_PUBLISHER" // 既に配信者がいるルームへのpublisher参加
	CodeAlreadyJoined    = "ALREADY_JOINED"     // 参加済み接続からの再join
	CodeRateLimited      = "RATE_LIMITED"       // チャットのレート制限超過
	CodeBadRequest       = "BAD_REQUEST"        // ペイロード不正
)

// publisher-left の理由
const (
	ReasonStopped      = "stopped"      // 配信者が自発的に停止
	ReasonDisconnected = "disconnected" // 配信者の接続が切断
)

// Message はWebSocketで送受信するメッセージの外枠です
// Payloadを生のJSONのまま保持することで、offer/answer/ice-candidateの
// 中継時に中身のバイト列を変えずに転送できます
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage はペイロードをJSONにしてメッセージを組み立てます
// マーシャルに失敗するペイロードはこのパッケージ内の型のみなので
// 失敗は起きない前提です
func NewMessage(msgType string, payload any) Message {
	b, err := json.Marshal(payload)
	if err != nil {
		return Message{Type: msgType}
	}
	return Message{Type: msgType, Payload: b}
}

// JoinRoomPayload は join-room の受信ペイロード
type JoinRoomPayload struct {
	RoomID   string `json:"roomId"`
	Role     Role   `json:"role"`
	Username string `json:"username"`
}

// SignalInPayload は offer / answer / ice-candidate の受信ペイロード
// sdp / candidate はこの層では解釈せず、そのまま転送します
type SignalInPayload struct {
	ToSocketID string          `json:"toSocketId"`
	SDP        json.RawMessage `json:"sdp,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
}

// SignalOutPayload は中継後の送信ペイロード（宛先から見た形）
type SignalOutPayload struct {
	FromSocketID string          `json:"fromSocketId"`
	SDP          json.RawMessage `json:"sdp,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
}

// ChatInPayload は chat-message の受信ペイロード
type ChatInPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// ChatOutPayload はルームへ配信するチャット（tsはサーバー採番）
type ChatOutPayload struct {
	Username string `json:"username"`
	Message  string `json:"message"`
	Ts       int64  `json:"ts"`
}

// StopStreamPayload は stop-stream の受信ペイロード
type StopStreamPayload struct {
	RoomID string `json:"roomId"`
}

// JoinedPayload は join 成功の応答
type JoinedPayload struct {
	RoomID     string `json:"roomId"`
	Role       Role   `json:"role"`
	MySocketID string `json:"mySocketId"`
}

// ErrorPayload はエラー通知
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PublisherReadyPayload は配信開始の通知
type PublisherReadyPayload struct {
	PublisherSocketID string `json:"publisherSocketId"`
}

// InfoPayload は補助的なお知らせ（例: 配信待ち）
type InfoPayload struct {
	Message string `json:"message"`
}

// ViewerJoinedPayload は配信者への視聴者参加通知
type ViewerJoinedPayload struct {
	ViewerSocketID string `json:"viewerSocketId"`
	Username       string `json:"username"`
}

// ViewerLeftPayload は配信者への視聴者離脱通知
type ViewerLeftPayload struct {
	ViewerSocketID string `json:"viewerSocketId"`
}

// PublisherLeftPayload は配信終了の通知
type PublisherLeftPayload struct {
	Reason string `json:"reason"`
}
