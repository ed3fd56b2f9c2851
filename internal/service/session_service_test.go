package service

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/models"
	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/relay"
	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/repo"
)

// recordSender は届いたメッセージを記録するテスト用Sender
type recordSender struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (s *recordSender) Send(m models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
	return true
}

func (s *recordSender) all() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.msgs...)
}

func (s *recordSender) types() []string {
	var out []string
	for _, m := range s.all() {
		out = append(out, m.Type)
	}
	return out
}

// countType は指定タイプのメッセージ数を返します
func (s *recordSender) countType(msgType string) int {
	n := 0
	for _, m := range s.all() {
		if m.Type == msgType {
			n++
		}
	}
	return n
}

// lastOf は指定タイプの最後のメッセージのペイロードをデコードします
func lastOf(t *testing.T, s *recordSender, msgType string, dst any) {
	t.Helper()
	var found *models.Message
	for _, m := range s.all() {
		if m.Type == msgType {
			m := m
			found = &m
		}
	}
	if found == nil {
		t.Fatalf("no %s message, got %v", msgType, s.types())
	}
	if err := json.Unmarshal(found.Payload, dst); err != nil {
		t.Fatalf("unmarshal %s payload: %v", msgType, err)
	}
}

type harness struct {
	store    *repo.MemoryRoomStore
	registry *repo.MemoryConnectionRegistry
	svc      *SessionService
}

func newHarness() *harness {
	store := repo.NewMemoryRoomStore()
	registry := repo.NewMemoryConnectionRegistry()
	rl := relay.New(store, registry, 0, 0)
	return &harness{
		store:    store,
		registry: registry,
		svc:      NewSessionService(store, registry, rl),
	}
}

func (h *harness) connect(id string) *recordSender {
	s := &recordSender{}
	h.registry.Register(id, s)
	return s
}

func (h *harness) roomCount() int { return len(h.store.Snapshot()) }

func TestPublisherJoinThenConflict(t *testing.T) {
	h := newHarness()
	p := h.connect("P")
	h.connect("Q")

	if err := h.svc.Join("P", "r1", models.RolePublisher, "p-name"); err != nil {
		t.Fatalf("P join: %v", err)
	}
	if pub, _ := h.store.Publisher("r1"); pub != "P" {
		t.Fatalf("publisher = %q, want P", pub)
	}

	var joined models.JoinedPayload
	lastOf(t, p, models.TypeJoined, &joined)
	if joined.RoomID != "r1" || joined.Role != models.RolePublisher || joined.MySocketID != "P" {
		t.Fatalf("joined = %+v", joined)
	}
	// 配信者自身にもpublisher-readyが届く
	var ready models.PublisherReadyPayload
	lastOf(t, p, models.TypePublisherReady, &ready)
	if ready.PublisherSocketID != "P" {
		t.Fatalf("publisher-ready = %+v", ready)
	}

	// 2人目の配信者は拒否され、ルームの状態は変わらない
	err := h.svc.Join("Q", "r1", models.RolePublisher, "q-name")
	if !errors.Is(err, ErrRoomHasPublisher) {
		t.Fatalf("Q join = %v, want ErrRoomHasPublisher", err)
	}
	if pub, _ := h.store.Publisher("r1"); pub != "P" {
		t.Fatalf("publisher after conflict = %q, want P", pub)
	}
	// 拒否は致命的ではない。Qは別ルームに参加できる
	if err := h.svc.Join("Q", "r2", models.RolePublisher, "q-name"); err != nil {
		t.Fatalf("Q join r2: %v", err)
	}
}

func TestViewerJoinAfterPublisher(t *testing.T) {
	h := newHarness()
	p := h.connect("P")
	v := h.connect("V")

	if err := h.svc.Join("P", "r1", models.RolePublisher, "streamer"); err != nil {
		t.Fatalf("P join: %v", err)
	}
	if err := h.svc.Join("V", "r1", models.RoleViewer, "watcher"); err != nil {
		t.Fatalf("V join: %v", err)
	}

	// 配信者がいるので待機通知は出ない
	if n := v.countType(models.TypeInfo); n != 0 {
		t.Fatalf("viewer got %d info messages, want 0: %v", n, v.types())
	}
	// 配信者には視聴者参加の通知が届く
	var vj models.ViewerJoinedPayload
	lastOf(t, p, models.TypeViewerJoined, &vj)
	if vj.ViewerSocketID != "V" || vj.Username != "watcher" {
		t.Fatalf("viewer-joined = %+v", vj)
	}
	// 後から入った視聴者にも配信中であることが届く
	var ready models.PublisherReadyPayload
	lastOf(t, v, models.TypePublisherReady, &ready)
	if ready.PublisherSocketID != "P" {
		t.Fatalf("publisher-ready to late viewer = %+v", ready)
	}
}

func TestViewersWaitingWithoutPublisher(t *testing.T) {
	h := newHarness()
	v1 := h.connect("V1")
	v2 := h.connect("V2")

	if err := h.svc.Join("V1", "r2", models.RoleViewer, ""); err != nil {
		t.Fatalf("V1 join: %v", err)
	}
	if err := h.svc.Join("V2", "r2", models.RoleViewer, ""); err != nil {
		t.Fatalf("V2 join: %v", err)
	}

	for name, s := range map[string]*recordSender{"V1": v1, "V2": v2} {
		var info models.InfoPayload
		lastOf(t, s, models.TypeInfo, &info)
		if info.Message == "" {
			t.Fatalf("%s: empty waiting notice", name)
		}
	}

	snap := h.store.Snapshot()
	if len(snap) != 1 || snap[0].HasPublisher || snap[0].ViewerCount != 2 {
		t.Fatalf("snapshot = %+v, want r2 with 2 viewers and no publisher", snap)
	}
}

func TestLateViewersLearnPublisherViaBroadcast(t *testing.T) {
	h := newHarness()
	v := h.connect("V")
	h.connect("P")

	// 視聴者が先、配信者が後。参加時のブロードキャストで知らされる
	if err := h.svc.Join("V", "r1", models.RoleViewer, ""); err != nil {
		t.Fatalf("V join: %v", err)
	}
	if err := h.svc.Join("P", "r1", models.RolePublisher, ""); err != nil {
		t.Fatalf("P join: %v", err)
	}

	var ready models.PublisherReadyPayload
	lastOf(t, v, models.TypePublisherReady, &ready)
	if ready.PublisherSocketID != "P" {
		t.Fatalf("publisher-ready = %+v", ready)
	}
}

func TestPublisherDisconnectKeepsRoomWhileViewerRemains(t *testing.T) {
	h := newHarness()
	h.connect("P")
	v := h.connect("V")

	if err := h.svc.Join("P", "r1", models.RolePublisher, ""); err != nil {
		t.Fatalf("P join: %v", err)
	}
	if err := h.svc.Join("V", "r1", models.RoleViewer, ""); err != nil {
		t.Fatalf("V join: %v", err)
	}

	h.svc.Disconnect("P")

	var left models.PublisherLeftPayload
	lastOf(t, v, models.TypePublisherLeft, &left)
	if left.Reason != models.ReasonDisconnected {
		t.Fatalf("reason = %q, want disconnected", left.Reason)
	}
	if _, ok := h.store.Publisher("r1"); ok {
		t.Fatal("publisher slot should be empty")
	}
	// 視聴者が残っている間はルームも残る
	if h.roomCount() != 1 {
		t.Fatalf("room count = %d, want 1", h.roomCount())
	}

	// 最後の視聴者が抜けた瞬間にルームは消える
	h.svc.Disconnect("V")
	if h.roomCount() != 0 {
		t.Fatalf("room count = %d, want 0", h.roomCount())
	}
}

func TestViewerDisconnectNotifiesPublisher(t *testing.T) {
	h := newHarness()
	p := h.connect("P")
	h.connect("V")

	if err := h.svc.Join("P", "r1", models.RolePublisher, ""); err != nil {
		t.Fatalf("P join: %v", err)
	}
	if err := h.svc.Join("V", "r1", models.RoleViewer, ""); err != nil {
		t.Fatalf("V join: %v", err)
	}

	h.svc.Disconnect("V")

	var vl models.ViewerLeftPayload
	lastOf(t, p, models.TypeViewerLeft, &vl)
	if vl.ViewerSocketID != "V" {
		t.Fatalf("viewer-left = %+v", vl)
	}
	// 配信者がいる間はルームは残る
	if h.roomCount() != 1 {
		t.Fatalf("room count = %d, want 1", h.roomCount())
	}
}

func TestStopBroadcastsAndAllowsRejoin(t *testing.T) {
	h := newHarness()
	p := h.connect("P")
	v := h.connect("V")

	if err := h.svc.Join("P", "r1", models.RolePublisher, ""); err != nil {
		t.Fatalf("P join: %v", err)
	}
	if err := h.svc.Join("V", "r1", models.RoleViewer, ""); err != nil {
		t.Fatalf("V join: %v", err)
	}

	h.svc.Stop("P", "r1")

	// 自発的な停止は配信者自身を含むルーム全体に届く
	for name, s := range map[string]*recordSender{"P": p, "V": v} {
		var left models.PublisherLeftPayload
		lastOf(t, s, models.TypePublisherLeft, &left)
		if left.Reason != models.ReasonStopped {
			t.Fatalf("%s: reason = %q, want stopped", name, left.Reason)
		}
	}
	if _, ok := h.store.Publisher("r1"); ok {
		t.Fatal("publisher slot should be empty after stop")
	}

	// 停止後は未参加に戻っているので、すぐ再joinできる
	if err := h.svc.Join("P", "r1", models.RolePublisher, ""); err != nil {
		t.Fatalf("rejoin after stop: %v", err)
	}
	if pub, _ := h.store.Publisher("r1"); pub != "P" {
		t.Fatalf("publisher = %q, want P", pub)
	}
}

func TestStaleStopIsIgnored(t *testing.T) {
	h := newHarness()
	h.connect("P1")
	h.connect("P2")

	if err := h.svc.Join("P1", "r1", models.RolePublisher, ""); err != nil {
		t.Fatalf("P1 join: %v", err)
	}
	h.svc.Stop("P1", "r1")
	// ルームは消えているので作り直し
	if err := h.svc.Join("P2", "r1", models.RolePublisher, ""); err != nil {
		t.Fatalf("P2 join: %v", err)
	}

	// P1からの古いstopは新しい配信者に影響しない
	h.svc.Stop("P1", "r1")
	if pub, _ := h.store.Publisher("r1"); pub != "P2" {
		t.Fatalf("publisher = %q, want P2", pub)
	}
}

func TestStaleDisconnectDoesNotClearNewerPublisher(t *testing.T) {
	h := newHarness()
	h.connect("P1")
	h.connect("P2")
	v := h.connect("V")

	if err := h.svc.Join("P1", "r1", models.RolePublisher, ""); err != nil {
		t.Fatalf("P1 join: %v", err)
	}
	if err := h.svc.Join("V", "r1", models.RoleViewer, ""); err != nil {
		t.Fatalf("V join: %v", err)
	}
	h.svc.Stop("P1", "r1")
	if err := h.svc.Join("P2", "r1", models.RolePublisher, ""); err != nil {
		t.Fatalf("P2 join: %v", err)
	}

	before := v.countType(models.TypePublisherLeft)
	h.svc.Disconnect("P1")

	// 新しい配信者はそのまま、余計なpublisher-leftも流れない
	if pub, _ := h.store.Publisher("r1"); pub != "P2" {
		t.Fatalf("publisher = %q, want P2", pub)
	}
	if after := v.countType(models.TypePublisherLeft); after != before {
		t.Fatalf("stale disconnect produced publisher-left: %d -> %d", before, after)
	}
}

func TestSecondJoinRejected(t *testing.T) {
	h := newHarness()
	h.connect("P")

	if err := h.svc.Join("P", "r1", models.RolePublisher, ""); err != nil {
		t.Fatalf("first join: %v", err)
	}
	err := h.svc.Join("P", "r2", models.RoleViewer, "")
	if !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("second join = %v, want ErrAlreadyJoined", err)
	}
	// 状態は上書きされていない
	c, _ := h.registry.Lookup("P")
	if c.RoomID != "r1" || c.Role != models.RolePublisher {
		t.Fatalf("connection state changed: room=%s role=%s", c.RoomID, c.Role)
	}
}

func TestDisconnectWithoutJoinHasNoRoomEffects(t *testing.T) {
	h := newHarness()
	h.connect("C")

	h.svc.Disconnect("C")

	if h.roomCount() != 0 {
		t.Fatalf("room count = %d, want 0", h.roomCount())
	}
	if _, ok := h.registry.Lookup("C"); ok {
		t.Fatal("connection should be removed")
	}
}

func TestJoinWithInvalidRole(t *testing.T) {
	h := newHarness()
	h.connect("C")

	err := h.svc.Join("C", "r1", models.Role("producer"), "")
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("err = %v, want ErrInvalidRole", err)
	}
	if h.roomCount() != 0 {
		t.Fatal("invalid join must not create rooms")
	}
}
