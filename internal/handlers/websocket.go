package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/idgen"
	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/models"
	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/relay"
	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/repo"
	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/service"
	"github.com/gorilla/websocket"
)

const (
	// 1メッセージの書き込みに許す時間
	writeWait = 10 * time.Second

	// pongを待つ時間。これを超えたら接続は死んだとみなす
	pongWait = 60 * time.Second

	// pingの送信間隔。pongWaitより短くすること
	pingPeriod = (pongWait * 9) / 10

	// 受信メッセージの上限。WebRTCのSDPが収まる程度
	maxMessageSize = 64 * 1024

	// 送信バッファ。溢れた分は捨てる（遅いクライアントが
	// イベント処理を止めないようにするため）
	sendBufferSize = 256
)

// WebSocketHandler はWebSocket接続を処理するハンドラー
type WebSocketHandler struct {
	svc      *service.SessionService
	relay    *relay.Relay
	registry repo.ConnectionRegistry
	upgrader websocket.Upgrader
}

// NewWebSocketHandler は新しいWebSocketHandlerを作成します
func NewWebSocketHandler(svc *service.SessionService, rl *relay.Relay, registry repo.ConnectionRegistry) *WebSocketHandler {
	return &WebSocketHandler{
		svc:      svc,
		relay:    rl,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxMessageSize,
			WriteBufferSize: maxMessageSize,
			CheckOrigin: func(r *http.Request) bool {
				// CORSミドルウェア側でオリジンを絞っているため、
				// ここでは全接続を許可する
				return true
			},
		},
	}
}

// wsClient は1本のWebSocket接続と送信バッファの組です
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan models.Message
	done chan struct{}
}

// Send はmodels.Senderの実装です。バッファが一杯なら捨ててfalseを返します
func (c *wsClient) Send(msg models.Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// HandleWebSocket はWebSocket接続を処理します
// 接続後の流れ:
// 1. HTTPからWebSocketへのアップグレード
// 2. 接続IDの採番とレジストリ登録
// 3. 書き込みゴルーチンの起動と受信ループ
// 4. 切断時の自動クリーンアップ（ルーム離脱・通知・空ルーム削除）
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &wsClient{
		id:   idgen.NewConnectionID(),
		conn: conn,
		send: make(chan models.Message, sendBufferSize),
		done: make(chan struct{}),
	}
	h.registry.Register(client.id, client)
	log.Printf("WebSocket connected: connId=%s remote=%s", client.id, conn.RemoteAddr())

	go client.writePump()

	defer func() {
		// 切断時にルームから離脱させ、必要な通知を送る
		h.svc.Disconnect(client.id)
		close(client.done)
		conn.Close()
		log.Printf("WebSocket disconnected: connId=%s", client.id)
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// 受信ループ
	for {
		var msg models.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: connId=%s %v", client.id, err)
			}
			break
		}
		h.dispatch(client, msg)
	}
}

// dispatch は受信メッセージをタイプ別に処理します
func (h *WebSocketHandler) dispatch(c *wsClient, msg models.Message) {
	switch msg.Type {
	case models.TypeJoinRoom:
		h.handleJoin(c, msg.Payload)
	case models.TypeOffer, models.TypeAnswer, models.TypeICECandidate:
		h.handleSignal(c, msg.Type, msg.Payload)
	case models.TypeChatMessage:
		h.handleChat(c, msg.Payload)
	case models.TypeStopStream:
		h.handleStop(c, msg.Payload)
	default:
		log.Printf("unknown message type: %s (connId=%s)", msg.Type, c.id)
	}
}

// handleJoin は join-room を処理します
func (h *WebSocketHandler) handleJoin(c *wsClient, payload json.RawMessage) {
	var in models.JoinRoomPayload
	if err := json.Unmarshal(payload, &in); err != nil {
		h.sendError(c, models.CodeBadRequest, "invalid join-room payload")
		return
	}
	in.RoomID = normalizeID(in.RoomID)
	if err := validateRoomId(in.RoomID); err != nil {
		h.sendError(c, models.CodeBadRequest, err.Error())
		return
	}
	if err := validateRole(in.Role); err != nil {
		h.sendError(c, models.CodeBadRequest, err.Error())
		return
	}

	if err := h.svc.Join(c.id, in.RoomID, in.Role, normalizeID(in.Username)); err != nil {
		h.writeServiceError(c, err)
	}
}

// handleSignal は offer / answer / ice-candidate を宛先へ中継します
func (h *WebSocketHandler) handleSignal(c *wsClient, kind string, payload json.RawMessage) {
	var in models.SignalInPayload
	if err := json.Unmarshal(payload, &in); err != nil {
		h.sendError(c, models.CodeBadRequest, "invalid signaling payload")
		return
	}
	if normalizeID(in.ToSocketID) == "" {
		h.sendError(c, models.CodeBadRequest, "toSocketId required")
		return
	}
	h.relay.Forward(kind, c.id, in)
}

// handleChat は chat-message をルームへ配信します
func (h *WebSocketHandler) handleChat(c *wsClient, payload json.RawMessage) {
	var in models.ChatInPayload
	if err := json.Unmarshal(payload, &in); err != nil {
		h.sendError(c, models.CodeBadRequest, "invalid chat payload")
		return
	}
	if err := validateRoomId(in.RoomID); err != nil {
		h.sendError(c, models.CodeBadRequest, err.Error())
		return
	}
	if err := h.relay.Chat(c.id, normalizeID(in.RoomID), in.Username, in.Message); err != nil {
		if errors.Is(err, relay.ErrRateLimited) {
			h.sendError(c, models.CodeRateLimited, "Sending chat messages too fast")
			return
		}
		log.Printf("chat relay error: connId=%s %v", c.id, err)
	}
}

// handleStop は stop-stream を処理します
func (h *WebSocketHandler) handleStop(c *wsClient, payload json.RawMessage) {
	var in models.StopStreamPayload
	if err := json.Unmarshal(payload, &in); err != nil {
		h.sendError(c, models.CodeBadRequest, "invalid stop-stream payload")
		return
	}
	if err := validateRoomId(in.RoomID); err != nil {
		h.sendError(c, models.CodeBadRequest, err.Error())
		return
	}
	h.svc.Stop(c.id, normalizeID(in.RoomID))
}

// sendError は対象の接続にのみエラーを通知します
// どのエラーも接続自体は使い続けられます
func (h *WebSocketHandler) sendError(c *wsClient, code, message string) {
	c.Send(models.NewMessage(models.TypeError, models.ErrorPayload{Code: code, Message: message}))
}

// writeServiceError はservice層のエラーをエラーメッセージへ変換します
func (h *WebSocketHandler) writeServiceError(c *wsClient, err error) {
	switch {
	case errors.Is(err, service.ErrRoomHasPublisher):
		h.sendError(c, models.CodeRoomHasPublisher, "Room already has a streamer")
	case errors.Is(err, service.ErrAlreadyJoined):
		h.sendError(c, models.CodeAlreadyJoined, "Already joined a room; reconnect to change role")
	case errors.Is(err, service.ErrInvalidRole):
		h.sendError(c, models.CodeBadRequest, "role must be publisher or viewer")
	default:
		log.Printf("join error: connId=%s %v", c.id, err)
		h.sendError(c, models.CodeBadRequest, "join failed")
	}
}

// writePump は送信バッファをWebSocketへ書き出します
// 接続ごとに1本だけ起動し、書き込みを単一ゴルーチンに限定します
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
