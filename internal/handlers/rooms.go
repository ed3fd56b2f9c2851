package handlers

import (
	"net/http"

	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/repo"
)

// RoomsHandler は公開ルーム一覧を返す読み取り専用ハンドラーです
type RoomsHandler struct {
	store repo.RoomStore
}

func NewRoomsHandler(store repo.RoomStore) *RoomsHandler {
	return &RoomsHandler{store: store}
}

// List はGET /roomsを処理します
// あくまでその時点のビューであり、クライアントが読む頃には
// 変わっている可能性があります（表示用途のみ）
func (h *RoomsHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Snapshot())
}
