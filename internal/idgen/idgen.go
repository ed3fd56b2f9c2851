// Package idgen は接続IDの生成を担当します
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewConnectionID は接続ごとに一意なIDを生成します
// ULIDの単調エントロピーを使うため、同一プロセス内で重複・再利用しません
func NewConnectionID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}
