package ws

import (
	"sync"
	"time"

	"storegateway/internal/auth"
	"storegateway/internal/metrics"
	"storegateway/internal/models"

	"github.com/google/uuid"
)

// Session 是网关对一条已认证连接的记录，身份字段在会话期间不可变。
type Session struct {
	ConnectionID string
	UserID       uint
	Username     string
	Role         string
	ConnectedAt  time.Time

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(id auth.Identity, buffer int) *Session {
	if buffer <= 0 {
		buffer = 256
	}
	return &Session{
		ConnectionID: uuid.NewString(),
		UserID:       id.UserID,
		Username:     id.Username,
		Role:         id.Role,
		ConnectedAt:  time.Now(),
		send:         make(chan []byte, buffer),
		done:         make(chan struct{}),
	}
}

func (s *Session) IsAdmin() bool { return s.Role == models.RoleAdmin }

// Outbound 返回待写出的帧，由传输层的写协程消费。
func (s *Session) Outbound() <-chan []byte { return s.send }

// Done 在会话关闭后被关闭。
func (s *Session) Done() <-chan struct{} { return s.done }

// Close 幂等。send 通道从不关闭，避免并发广播向已关闭通道写入。
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// enqueue 非阻塞投递；队列已满说明客户端过慢，直接关闭会话，由传输层走正常断开流程。
func (s *Session) enqueue(b []byte) bool {
	if s.closed() {
		return false
	}
	select {
	case s.send <- b:
		return true
	default:
		metrics.SlowConsumersTotal.Inc()
		s.Close()
		return false
	}
}
