package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"storegateway/internal/auth"
	"storegateway/internal/metrics"
	"storegateway/internal/models"

	"github.com/rs/zerolog/log"
)

// TokenVerifier 把 bearer token 解析为用户身份。
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Identity, error)
}

type RoomStore interface {
	GetRoom(ctx context.Context, id uint) (*models.Room, error)
	TouchRoom(ctx context.Context, id uint) error
}

type MessageStore interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
}

type OrderStore interface {
	UpdateOrderStatus(ctx context.Context, id uint, status string) (*models.Order, error)
}

type ProductStore interface {
	UpdateProductStock(ctx context.Context, id uint, stock int) (*models.Product, error)
}

// Stores 聚合网关依赖的外部存储。
type Stores struct {
	Rooms    RoomStore
	Messages MessageStore
	Orders   OrderStore
	Products ProductStore
}

// Options 中 LowStockThreshold 为 0 表示关闭低库存告警。
type Options struct {
	LowStockThreshold int
	MaxMessageLength  int
	SendBuffer        int
	EventTimeout      time.Duration
}

// Hub 是连接生命周期控制器：认证、登记在线状态、加入默认房间、分发事件、断开清理。
// Presence 与 Router 是仅有的共享可变状态，各自加锁。
type Hub struct {
	verifier TokenVerifier
	presence *Presence
	router   *Router
	stores   Stores
	opts     Options
	routes   map[string]route

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewHub(verifier TokenVerifier, presence *Presence, stores Stores, opts Options) *Hub {
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 4000
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = 10 * time.Second
	}
	if presence == nil {
		presence = NewPresence()
	}
	h := &Hub{
		verifier: verifier,
		presence: presence,
		router:   NewRouter(),
		stores:   stores,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
	h.routes = h.buildRoutes()
	return h
}

func (h *Hub) Presence() *Presence { return h.presence }

func (h *Hub) Router() *Router { return h.router }

// Authenticate 只做令牌校验，不创建任何状态；失败时连接应直接被拒绝。
func (h *Hub) Authenticate(ctx context.Context, token string) (auth.Identity, error) {
	id, err := h.verifier.Verify(ctx, token)
	if err != nil {
		metrics.WsRejectedTotal.Inc()
		return auth.Identity{}, errors.Join(ErrAuthentication, err)
	}
	return id, nil
}

// Attach 为已认证身份创建会话：登记在线、加入个人房间与（管理员）admin 房间，
// 用户首次上线时向其他连接广播 user-online。
func (h *Hub) Attach(id auth.Identity) *Session {
	s := newSession(id, h.opts.SendBuffer)

	h.mu.Lock()
	h.sessions[s.ConnectionID] = s
	h.mu.Unlock()
	metrics.WsConnections.Inc()

	h.router.Join(s.ConnectionID, PersonalRoom(s.UserID))
	if s.IsAdmin() {
		h.router.Join(s.ConnectionID, AdminRoom)
	}
	h.presence.Register(s, func() {
		h.deliver(Outbound{All: true, Except: s.ConnectionID, Event: EventUserOnline,
			Data: UserPresencePayload{UserID: s.UserID, Username: s.Username}})
	})

	log.Info().Str("conn_id", s.ConnectionID).Uint("user_id", s.UserID).Str("role", s.Role).Msg("session attached")
	return s
}

// Connect = Authenticate + Attach。
func (h *Hub) Connect(ctx context.Context, token string) (*Session, error) {
	id, err := h.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	return h.Attach(id), nil
}

// Disconnect 幂等，传输层异常关闭时同样走完整清理流程。
func (h *Hub) Disconnect(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s.ConnectionID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.ConnectionID)
	h.mu.Unlock()
	metrics.WsConnections.Dec()

	h.presence.Unregister(s, func() {
		h.deliver(Outbound{All: true, Except: s.ConnectionID, Event: EventUserOffline,
			Data: UserPresencePayload{UserID: s.UserID, Username: s.Username}})
	})
	h.router.DropConnection(s.ConnectionID)
	s.Close()

	log.Info().Str("conn_id", s.ConnectionID).Uint("user_id", s.UserID).
		Dur("duration", time.Since(s.ConnectedAt)).Msg("session closed")
}

// Shutdown 关闭全部会话，传输层随后各自执行 Disconnect。
func (h *Hub) Shutdown() {
	h.mu.RLock()
	all := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		all = append(all, s)
	}
	h.mu.RUnlock()
	for _, s := range all {
		s.Close()
	}
}

// Session 按连接 ID 查找会话。
func (h *Hub) Session(connID string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[connID]
	return s, ok
}

// ConnectionCount 返回当前连接数。
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// deliver 按顺序执行投递，纯内存操作，不会失败。
func (h *Hub) deliver(outs ...Outbound) {
	for _, o := range outs {
		b, err := encodeFrame(o.Event, o.Data)
		if err != nil {
			log.Error().Err(err).Str("event", o.Event).Msg("encode outbound")
			continue
		}
		for _, s := range h.targets(o) {
			s.enqueue(b)
		}
	}
}

func (h *Hub) targets(o Outbound) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if o.All {
		out := make([]*Session, 0, len(h.sessions))
		for id, s := range h.sessions {
			if id != o.Except {
				out = append(out, s)
			}
		}
		return out
	}
	ids := h.router.MembersOf(o.Room)
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		if id == o.Except {
			continue
		}
		if s, ok := h.sessions[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// sendError 只回给发起操作的连接。
func (h *Hub) sendError(s *Session, err error) {
	b, encErr := encodeFrame(EventError, ErrorPayload{Message: clientMessage(err)})
	if encErr != nil {
		return
	}
	s.enqueue(b)
}
