package http

import (
	"net/http"

	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/handlers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter はHTTPルーティングを組み立てます
// staticDirが空でなければ、視聴ページなどの静的ファイルを / 配下で配信します
func NewRouter(rooms *handlers.RoomsHandler, ws *handlers.WebSocketHandler, allowedOrigins []string, staticDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	// 公開ルーム一覧（読み取り専用）
	r.Get("/rooms", rooms.List)

	// シグナリング用WebSocket
	r.Get("/ws", ws.HandleWebSocket)

	if staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(staticDir)))
	}

	return r
}
