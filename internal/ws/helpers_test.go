package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"storegateway/internal/auth"
	"storegateway/internal/models"
	"storegateway/internal/service"
)

type fakeVerifier map[string]auth.Identity

func (f fakeVerifier) Verify(_ context.Context, token string) (auth.Identity, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return auth.Identity{}, auth.ErrInvalidToken
}

// fakeStore 在内存中实现全部外部存储接口。
type fakeStore struct {
	mu       sync.Mutex
	rooms    map[uint]*models.Room
	orders   map[uint]*models.Order
	products map[uint]*models.Product
	messages []models.Message
	touched  map[uint]int
	nextID   uint

	failCreate error
	failTouch  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:    make(map[uint]*models.Room),
		orders:   make(map[uint]*models.Order),
		products: make(map[uint]*models.Product),
		touched:  make(map[uint]int),
	}
}

func (f *fakeStore) addRoom(id uint, typ string, members ...uint) {
	room := &models.Room{ID: id, Type: typ}
	for i, m := range members {
		room.Members = append(room.Members, models.RoomMember{RoomID: id, UserID: m, Position: i})
	}
	f.rooms[id] = room
}

func (f *fakeStore) GetRoom(_ context.Context, id uint) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[id]
	if !ok {
		return nil, service.ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) TouchRoom(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTouch != nil {
		return f.failTouch
	}
	f.touched[id]++
	return nil
}

func (f *fakeStore) CreateMessage(_ context.Context, msg *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return f.failCreate
	}
	f.nextID++
	msg.ID = f.nextID
	msg.CreatedAt = time.Now()
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *fakeStore) UpdateOrderStatus(_ context.Context, id uint, status string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, service.ErrOrderNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	cp := *o
	return &cp, nil
}

func (f *fakeStore) UpdateProductStock(_ context.Context, id uint, stock int) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, service.ErrProductNotFound
	}
	p.Stock = stock
	cp := *p
	return &cp, nil
}

func (f *fakeStore) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type statusWrite struct {
	userID uint
	online bool
}

// recordingSink 记录在线状态写入。
type recordingSink struct {
	mu     sync.Mutex
	writes []statusWrite
	fail   error
}

func (r *recordingSink) SetUserOnline(_ context.Context, userID uint, online bool, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, statusWrite{userID, online})
	return r.fail
}

func (r *recordingSink) last(userID uint) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.writes) - 1; i >= 0; i-- {
		if r.writes[i].userID == userID {
			return r.writes[i].online, true
		}
	}
	return false, false
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.writes)
}

var (
	alice = auth.Identity{UserID: 1, Username: "alice", Role: models.RoleUser}
	bob   = auth.Identity{UserID: 2, Username: "bob", Role: models.RoleUser}
	carol = auth.Identity{UserID: 3, Username: "carol", Role: models.RoleUser}
	admin = auth.Identity{UserID: 9, Username: "root", Role: models.RoleAdmin}
)

type testEnv struct {
	hub   *Hub
	store *fakeStore
	sink  *recordingSink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newFakeStore()
	store.addRoom(1, models.RoomSupport, alice.UserID, bob.UserID, admin.UserID)
	store.addRoom(2, models.RoomDirect, alice.UserID, bob.UserID)
	store.orders[100] = &models.Order{ID: 100, UserID: alice.UserID, Status: models.OrderPending}
	store.products[7] = &models.Product{ID: 7, Name: "Mug", Stock: 50}
	sink := &recordingSink{}
	verifier := fakeVerifier{"tok-alice": alice, "tok-bob": bob, "tok-carol": carol, "tok-admin": admin}
	hub := NewHub(verifier, NewPresence(sink), Stores{
		Rooms: store, Messages: store, Orders: store, Products: store,
	}, Options{LowStockThreshold: 10, MaxMessageLength: 100, SendBuffer: 64})
	return &testEnv{hub: hub, store: store, sink: sink}
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// drain 取出会话队列中已有的全部帧；投递是同步的，调用返回后帧已入队。
func drain(t *testing.T, s *Session) []frame {
	t.Helper()
	var out []frame
	for {
		select {
		case b := <-s.Outbound():
			var f frame
			if err := json.Unmarshal(b, &f); err != nil {
				t.Fatalf("decode frame %s: %v", b, err)
			}
			out = append(out, f)
		default:
			return out
		}
	}
}

func events(frames []frame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Event)
	}
	return out
}

func countEvent(frames []frame, event string) int {
	n := 0
	for _, f := range frames {
		if f.Event == event {
			n++
		}
	}
	return n
}

func firstEvent(t *testing.T, frames []frame, event string, v any) {
	t.Helper()
	for _, f := range frames {
		if f.Event == event {
			if err := json.Unmarshal(f.Data, v); err != nil {
				t.Fatalf("decode %s: %v", event, err)
			}
			return
		}
	}
	t.Fatalf("no %s frame in %v", event, events(frames))
}

func send(t *testing.T, h *Hub, s *Session, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, _ := json.Marshal(Envelope{Event: event, Data: raw})
	h.Handle(context.Background(), s, b)
}

var errBoom = errors.New("boom")
