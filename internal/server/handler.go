package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storegateway/internal/auth"
	"storegateway/internal/service"
	"storegateway/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// MessageHistory 是历史消息查询依赖。
type MessageHistory interface {
	ListByRoom(ctx context.Context, roomID uint, limit int, beforeID uint) ([]service.MessageDTO, error)
}

// RoomMembership 用于校验调用者是否属于持久化房间。
type RoomMembership interface {
	IsMember(ctx context.Context, roomID, userID uint) (bool, error)
}

// Handler 聚合网关附带的只读 HTTP 接口。
type Handler struct {
	hub     *ws.Hub
	history MessageHistory
	rooms   RoomMembership
}

func NewHandler(hub *ws.Hub, history MessageHistory, rooms RoomMembership) *Handler {
	return &Handler{hub: hub, history: history, rooms: rooms}
}

type presenceDTO struct {
	UserID      uint      `json:"userId"`
	Username    string    `json:"username"`
	Connections int       `json:"connections"`
	Since       time.Time `json:"since"`
}

// ListPresence 返回当前在线用户，每个用户一项，Since 为最早的连接时间。
func (h *Handler) ListPresence(c *gin.Context) {
	sessions := h.hub.Presence().List()
	byUser := make(map[uint]*presenceDTO, len(sessions))
	out := make([]*presenceDTO, 0, len(sessions))
	for _, s := range sessions {
		if d, ok := byUser[s.UserID]; ok {
			d.Connections++
			continue
		}
		d := &presenceDTO{UserID: s.UserID, Username: s.Username, Connections: 1, Since: s.ConnectedAt}
		byUser[s.UserID] = d
		out = append(out, d)
	}
	c.JSON(http.StatusOK, gin.H{"online": h.hub.Presence().Count(), "users": out})
}

// ListMessages 返回房间历史消息，离线通知的接收者靠它补齐内容。
func (h *Handler) ListMessages(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("id"))
	if err != nil || roomID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	id, _ := auth.GetIdentity(c)
	if !id.IsAdmin() {
		ok, err := h.rooms.IsMember(c.Request.Context(), uint(roomID), id.UserID)
		if err != nil {
			log.Error().Err(err).Int("room_id", roomID).Msg("check room member")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
			return
		}
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
			return
		}
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var beforeID uint
	if bid := c.Query("before_id"); bid != "" {
		if v, err := strconv.Atoi(bid); err == nil && v > 0 {
			beforeID = uint(v)
		}
	}
	msgs, err := h.history.ListByRoom(c.Request.Context(), uint(roomID), limit, beforeID)
	if err != nil {
		log.Error().Err(err).Int("room_id", roomID).Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
