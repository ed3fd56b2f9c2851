// Package relay はハンドシェイクとチャットのメッセージ中継を担当します
// この層は自前の状態を持たず、宛先解決のみを行います
// （例外はチャットのレート制限とタイムスタンプ採番）
package relay

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/models"
	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/repo"
	"golang.org/x/time/rate"
)

// ErrRateLimited はチャットのレート制限超過を表します
var ErrRateLimited = errors.New("chat rate limit exceeded")

// Relay はメッセージの転送・ブロードキャストを行います
type Relay struct {
	store    repo.RoomStore
	registry repo.ConnectionRegistry

	// チャットのレート制限（接続ごとのトークンバケット）
	chatRate  rate.Limit
	chatBurst int
	limMu     sync.Mutex
	limiters  map[string]*rate.Limiter

	// チャットタイムスタンプの単調性を保証するための前回値
	tsMu   sync.Mutex
	lastTs int64
}

// New は新しいRelayを作成します
// chatRatePerSecが0以下の場合、チャットのレート制限は無効になります
func New(store repo.RoomStore, registry repo.ConnectionRegistry, chatRatePerSec float64, chatBurst int) *Relay {
	return &Relay{
		store:     store,
		registry:  registry,
		chatRate:  rate.Limit(chatRatePerSec),
		chatBurst: chatBurst,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// ToConn は1つの接続へメッセージを届けます
// 宛先が既に切断されている場合は黙って捨てます
// （上位のシグナリングプロトコル側が再試行する前提）
func (r *Relay) ToConn(connID string, msg models.Message) {
	c, ok := r.registry.Lookup(connID)
	if !ok {
		log.Printf("relay: dropping %s for unknown connection %s", msg.Type, connID)
		return
	}
	if !c.Sender.Send(msg) {
		log.Printf("relay: send buffer full, dropping %s for %s", msg.Type, connID)
	}
}

// ToRoom はルームの現メンバー全員（配信者＋視聴者）へ届けます
// excludeIDが空でなければその接続を除外します
// 1人への配送失敗が他のメンバーへの配送を妨げることはありません
func (r *Relay) ToRoom(roomID, excludeID string, msg models.Message) {
	for _, id := range r.store.Members(roomID) {
		if id == excludeID {
			continue
		}
		r.ToConn(id, msg)
	}
}

// Forward はoffer/answer/ice-candidateを宛先へ中継します
// sdp / candidate は受信したバイト列のまま転送し、送信元のIDを付けます
func (r *Relay) Forward(kind, fromID string, in models.SignalInPayload) {
	r.ToConn(in.ToSocketID, models.NewMessage(kind, models.SignalOutPayload{
		FromSocketID: fromID,
		SDP:          in.SDP,
		Candidate:    in.Candidate,
	}))
}

// Chat はチャットメッセージにサーバー採番のタイムスタンプを付けて
// ルーム全員へ配信します。レート制限を超えた場合は配信せずに
// ErrRateLimitedを返します
func (r *Relay) Chat(fromID, roomID, username, message string) error {
	if !r.allowChat(fromID) {
		return ErrRateLimited
	}
	r.ToRoom(roomID, "", models.NewMessage(models.TypeChatMessage, models.ChatOutPayload{
		Username: username,
		Message:  message,
		Ts:       r.nextTimestamp(),
	}))
	return nil
}

// Forget は切断した接続のレート制限状態を破棄します
func (r *Relay) Forget(connID string) {
	r.limMu.Lock()
	defer r.limMu.Unlock()
	delete(r.limiters, connID)
}

// allowChat は接続ごとのトークンバケットで送信可否を判定します
func (r *Relay) allowChat(connID string) bool {
	if r.chatRate <= 0 {
		return true
	}
	r.limMu.Lock()
	lim, ok := r.limiters[connID]
	if !ok {
		lim = rate.NewLimiter(r.chatRate, r.chatBurst)
		r.limiters[connID] = lim
	}
	r.limMu.Unlock()
	return lim.Allow()
}

// nextTimestamp はミリ秒のUNIX時刻を返します
// 同一ミリ秒内で複数メッセージを処理した場合でも、処理順に対して
// 厳密に増加するように前回値+1へ繰り上げます
func (r *Relay) nextTimestamp() int64 {
	r.tsMu.Lock()
	defer r.tsMu.Unlock()
	ts := time.Now().UnixMilli()
	if ts <= r.lastTs {
		ts = r.lastTs + 1
	}
	r.lastTs = ts
	return ts
}
