// Package config はアプリケーションの設定を管理します
// .envと環境変数から設定を読み込み、デフォルト値を提供します
package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultAPIAddr        = ":8080"    // APIサーバーのデフォルトリッスンアドレス
	defaultStaticDir      = "./public" // 静的ファイル（視聴ページ）の配置先
	defaultChatRatePerSec = 1.0        // チャットの1接続あたり秒間許容数
	defaultChatBurst      = 5          // チャットのバースト許容数
)

// defaultAllowedOrigins はCORSで許可するデフォルトのオリジン一覧
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:3004",
}

// Config はアプリケーションの設定を保持します
type Config struct {
	APIAddr        string   // APIサーバーのリッスンアドレス
	StaticDir      string   // 静的ファイルのディレクトリ（空なら配信しない）
	AllowedOrigin  []string // CORSで許可するオリジン一覧
	ChatRatePerSec float64  // チャットレート制限（メッセージ/秒、0以下で無効）
	ChatBurst      int      // チャットレート制限のバースト
}

// Load は.envと環境変数から設定を読み込みます
// 環境変数が設定されていない場合はデフォルト値を使用します
func Load() Config {
	// .env があれば読み込む（無くてもエラーにしない）
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	return Config{
		APIAddr:        envOr("API_ADDR", defaultAPIAddr),
		StaticDir:      envOr("STATIC_DIR", defaultStaticDir),
		AllowedOrigin:  envCSV("CORS_ALLOWED_ORIGINS", defaultAllowedOrigins),
		ChatRatePerSec: envFloat("CHAT_RATE_PER_SEC", defaultChatRatePerSec),
		ChatBurst:      envInt("CHAT_BURST", defaultChatBurst),
	}
}

// envOr は環境変数から文字列を取得します
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt は環境変数から整数を取得します
// 無効な値の場合はデフォルト値を返します
func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("invalid %s=%s, fallback to default (%d)", key, v, def)
			return def
		}
		return i
	}
	return def
}

// envFloat は環境変数から浮動小数点数を取得します
func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			log.Printf("invalid %s=%s, fallback to default (%g)", key, v, def)
			return def
		}
		return f
	}
	return def
}

// envCSV は環境変数からカンマ区切りの文字列リストを取得します
func envCSV(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
