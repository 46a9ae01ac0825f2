package ws

import (
	"context"
	"sort"
	"sync"
	"time"

	"storegateway/internal/metrics"

	"github.com/rs/zerolog/log"
)

// StatusSink 接收用户在线状态变化，例如用户表或 Redis 在线镜像。
type StatusSink interface {
	SetUserOnline(ctx context.Context, userID uint, online bool, at time.Time) error
}

const userStripes = 64

// Presence 记录当前进程内每个用户的活跃会话集合，集合非空即在线。
//
// 同一用户的上线、下线以及随后的持久化和广播在该用户的条带锁内串行执行，
// 因此并发的连接与断开不会让持久化标记或 user-online/user-offline 事件乱序。
type Presence struct {
	mu     sync.RWMutex
	byUser map[uint]map[string]*Session

	stripes      [userStripes]sync.Mutex
	sinks        []StatusSink
	writeTimeout time.Duration
}

func NewPresence(sinks ...StatusSink) *Presence {
	return &Presence{
		byUser:       make(map[uint]map[string]*Session),
		sinks:        sinks,
		writeTimeout: 5 * time.Second,
	}
}

func (p *Presence) lockUser(userID uint) *sync.Mutex {
	l := &p.stripes[userID%userStripes]
	l.Lock()
	return l
}

// Register 登记会话。若用户由离线变为在线，持久化在线状态并在锁内调用 onOnline。
func (p *Presence) Register(s *Session, onOnline func()) bool {
	l := p.lockUser(s.UserID)
	defer l.Unlock()

	p.mu.Lock()
	set := p.byUser[s.UserID]
	first := len(set) == 0
	if set == nil {
		set = make(map[string]*Session)
		p.byUser[s.UserID] = set
	}
	set[s.ConnectionID] = s
	users := len(p.byUser)
	p.mu.Unlock()
	metrics.OnlineUsers.Set(float64(users))

	if first {
		p.persist(s.UserID, true)
		if onOnline != nil {
			onOnline()
		}
	}
	return first
}

// Unregister 移除会话。若这是该用户最后一个会话，持久化离线状态并在锁内调用 onOffline。
func (p *Presence) Unregister(s *Session, onOffline func()) bool {
	l := p.lockUser(s.UserID)
	defer l.Unlock()

	p.mu.Lock()
	set, ok := p.byUser[s.UserID]
	if !ok {
		p.mu.Unlock()
		return false
	}
	if _, ok := set[s.ConnectionID]; !ok {
		p.mu.Unlock()
		return false
	}
	delete(set, s.ConnectionID)
	last := len(set) == 0
	if last {
		delete(p.byUser, s.UserID)
	}
	users := len(p.byUser)
	p.mu.Unlock()
	metrics.OnlineUsers.Set(float64(users))

	if last {
		p.persist(s.UserID, false)
		if onOffline != nil {
			onOffline()
		}
	}
	return last
}

// SetStatus 由客户端的 update-status 触发，只写 sink，不改变会话集合。
func (p *Presence) SetStatus(userID uint, online bool) {
	l := p.lockUser(userID)
	defer l.Unlock()
	p.persist(userID, online)
}

// persist 尽力写入所有 sink，失败只记录日志。
func (p *Presence) persist(userID uint, online bool) {
	if len(p.sinks) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()
	now := time.Now()
	for _, sink := range p.sinks {
		if err := sink.SetUserOnline(ctx, userID, online, now); err != nil {
			log.Warn().Err(err).Uint("user_id", userID).Bool("online", online).Msg("persist presence")
		}
	}
}

func (p *Presence) IsOnline(userID uint) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser[userID]) > 0
}

// Count 返回在线用户数（按用户去重）。
func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser)
}

// List 返回全部活跃会话，按连接时间排序。
func (p *Presence) List() []*Session {
	p.mu.RLock()
	out := make([]*Session, 0, len(p.byUser))
	for _, set := range p.byUser {
		for _, s := range set {
			out = append(out, s)
		}
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ConnectionID < out[j].ConnectionID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// OnlineUserIDs 返回在线用户 ID，供在线镜像续期。
func (p *Presence) OnlineUserIDs() []uint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]uint, 0, len(p.byUser))
	for id := range p.byUser {
		out = append(out, id)
	}
	return out
}

// SessionsOf 返回某个用户的全部会话。
func (p *Presence) SessionsOf(userID uint) []*Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	set := p.byUser[userID]
	out := make([]*Session, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	return out
}
