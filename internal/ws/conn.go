package ws

import (
	"context"
	"net/http"
	"time"

	"storegateway/internal/auth"
	"storegateway/internal/config"
	"storegateway/internal/mw"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	maxFrameSize = 1 << 16
)

// client 把一个 Session 绑定到 gorilla websocket 连接上。
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	session *Session
	limiter *rate.Limiter
	idle    time.Duration
}

// Serve 在升级前完成令牌校验，缺失或无效时直接返回 401，不建立任何会话。
func Serve(h *Hub, cfg config.Config) gin.HandlerFunc {
	idle := time.Duration(cfg.WSIdleTimeoutSeconds) * time.Second
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return mw.OriginAllowed(cfg.Env, r.Header.Get("Origin"), r.Host)
		},
	}
	return func(c *gin.Context) {
		token := auth.BearerToken(c.Request)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		id, err := h.Authenticate(c.Request.Context(), token)
		if err != nil {
			log.Debug().Err(err).Str("remote", c.ClientIP()).Msg("ws auth rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Debug().Err(err).Msg("ws upgrade")
			return
		}
		cl := &client{
			hub:     h,
			conn:    conn,
			session: h.Attach(id),
			limiter: rate.NewLimiter(rate.Limit(cfg.WSEventsPerSecond), cfg.WSEventBurst),
			idle:    idle,
		}

		go cl.writePump()
		cl.readPump(context.WithoutCancel(c.Request.Context()))
	}
}

// readPump 串行处理同一连接的事件，保证单连接内的事件顺序。
func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Disconnect(c.session)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.idle))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.idle))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("conn_id", c.session.ConnectionID).Msg("ws read")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.idle))
		if !c.limiter.Allow() {
			c.hub.sendError(c.session, eventErr(ErrRateLimited, "too many events", nil))
			continue
		}
		c.hub.Handle(ctx, c.session, data)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message := <-c.session.Outbound():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.session.Close()
				return
			}
		case <-c.session.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.session.Close()
				return
			}
		}
	}
}
