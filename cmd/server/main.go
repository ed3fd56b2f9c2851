package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/config"
	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/handlers"
	httpx "github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/http"
	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/relay"
	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/repo"
	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/service"
)

func main() {
	cfg := config.Load()

	// 状態はすべてインメモリ。再起動時は空から作り直す
	store := repo.NewMemoryRoomStore()
	registry := repo.NewMemoryConnectionRegistry()

	rl := relay.New(store, registry, cfg.ChatRatePerSec, cfg.ChatBurst)
	svc := service.NewSessionService(store, registry, rl)

	roomsHandler := handlers.NewRoomsHandler(store)
	wsHandler := handlers.NewWebSocketHandler(svc, rl, registry)
	router := httpx.NewRouter(roomsHandler, wsHandler, cfg.AllowedOrigin, cfg.StaticDir)

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown用のシグナルチャネル
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// サーバーを別goroutineで起動
	go func() {
		log.Printf("signaling server listening on %s", cfg.APIAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// シャットダウンシグナルを待つ
	<-sigChan
	log.Println("shutdown signal received, shutting down gracefully...")

	// 30秒のタイムアウトでGraceful Shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	log.Println("server stopped")
}
