package ws

import (
	"context"
	"encoding/json"
	"errors"

	"storegateway/internal/metrics"

	"github.com/rs/zerolog/log"
)

type handlerFunc func(ctx context.Context, s *Session, data json.RawMessage) ([]Outbound, error)

// route 是分发表中的一项；adminOnly 的项在调用前统一经过 authorize。
type route struct {
	fn        handlerFunc
	adminOnly bool
}

func (h *Hub) buildRoutes() map[string]route {
	return map[string]route{
		EventJoinChatRoom:      {fn: h.handleJoin},
		EventLeaveChatRoom:     {fn: h.handleLeave},
		EventChatMessage:       {fn: h.handleChatMessage},
		EventTypingStart:       {fn: h.handleTyping(true)},
		EventTypingStop:        {fn: h.handleTyping(false)},
		EventUpdateStatus:      {fn: h.handleUpdateStatus},
		EventOrderStatusUpdate: {fn: h.handleOrderStatus, adminOnly: true},
		EventStockUpdate:       {fn: h.handleStockUpdate, adminOnly: true},
	}
}

func authorize(s *Session) error {
	if !s.IsAdmin() {
		return ErrAuthorization
	}
	return nil
}

// Handle 处理一帧客户端事件。调用方需保证同一连接的帧按接收顺序串行调用。
// 管理员事件被非管理员调用时静默丢弃：不回复、不报错，只记日志。
func (h *Hub) Handle(ctx context.Context, s *Session, frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
		metrics.WsEventsTotal.WithLabelValues("invalid", "rejected").Inc()
		h.sendError(s, eventErr(ErrInvalidPayload, "invalid frame", nil))
		return
	}
	h.Dispatch(ctx, s, env.Event, env.Data)
}

// Dispatch 按事件名查表执行，并把结果投递出去。
func (h *Hub) Dispatch(ctx context.Context, s *Session, event string, data json.RawMessage) {
	rt, ok := h.routes[event]
	if !ok {
		metrics.WsEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		h.sendError(s, eventErr(ErrInvalidPayload, "unknown event", nil))
		return
	}
	logger := log.With().Str("conn_id", s.ConnectionID).Uint("user_id", s.UserID).Str("event", event).Logger()
	if rt.adminOnly {
		if err := authorize(s); err != nil {
			metrics.WsEventsTotal.WithLabelValues(event, "forbidden").Inc()
			logger.Warn().Str("role", s.Role).Msg("admin event dropped")
			return
		}
	}

	ctx, cancel := context.WithTimeout(ctx, h.opts.EventTimeout)
	defer cancel()
	outs, err := rt.fn(ctx, s, data)
	if err != nil {
		metrics.WsEventsTotal.WithLabelValues(event, "error").Inc()
		if errors.Is(err, ErrPersistence) {
			logger.Error().Err(err).Msg("handle event")
		} else {
			logger.Debug().Err(err).Msg("handle event")
		}
		h.sendError(s, err)
		return
	}
	metrics.WsEventsTotal.WithLabelValues(event, "ok").Inc()
	h.deliver(outs...)
}

func (h *Hub) handleJoin(_ context.Context, s *Session, data json.RawMessage) ([]Outbound, error) {
	roomID, err := decodeRoomID(data)
	if err != nil {
		return nil, err
	}
	if h.router.Join(s.ConnectionID, ChatRoom(roomID)) {
		log.Debug().Str("conn_id", s.ConnectionID).Uint("room_id", roomID).Msg("joined chat room")
	}
	return nil, nil
}

func (h *Hub) handleLeave(_ context.Context, s *Session, data json.RawMessage) ([]Outbound, error) {
	roomID, err := decodeRoomID(data)
	if err != nil {
		return nil, err
	}
	h.router.Leave(s.ConnectionID, ChatRoom(roomID))
	return nil, nil
}

func (h *Hub) handleChatMessage(ctx context.Context, s *Session, data json.RawMessage) ([]Outbound, error) {
	var req ChatMessageRequest
	if err := decodeJSON(data, &req); err != nil {
		return nil, err
	}
	_, outs, err := h.relay(ctx, s, req)
	return outs, err
}

// handleTyping 生成纯内存的输入状态扇出，发送者不在房间内时什么也不做。
func (h *Hub) handleTyping(start bool) handlerFunc {
	return func(_ context.Context, s *Session, data json.RawMessage) ([]Outbound, error) {
		roomID, err := decodeRoomID(data)
		if err != nil {
			return nil, err
		}
		room := ChatRoom(roomID)
		if !h.router.IsMember(s.ConnectionID, room) {
			return nil, nil
		}
		if start {
			return []Outbound{{Room: room, Except: s.ConnectionID, Event: EventUserTyping,
				Data: TypingPayload{UserID: s.UserID, Username: s.Username, RoomID: roomID}}}, nil
		}
		return []Outbound{{Room: room, Except: s.ConnectionID, Event: EventUserStoppedTyping,
			Data: TypingPayload{UserID: s.UserID, RoomID: roomID}}}, nil
	}
}

// handleUpdateStatus 写入客户端自报的在线标记并通知其他连接，会话集合保持不变。
func (h *Hub) handleUpdateStatus(_ context.Context, s *Session, data json.RawMessage) ([]Outbound, error) {
	var req UpdateStatusRequest
	if err := decodeJSON(data, &req); err != nil {
		return nil, err
	}
	if req.IsOnline == nil {
		return nil, eventErr(ErrInvalidPayload, "isOnline is required", nil)
	}
	h.presence.SetStatus(s.UserID, *req.IsOnline)
	event := EventUserOffline
	if *req.IsOnline {
		event = EventUserOnline
	}
	return []Outbound{{All: true, Except: s.ConnectionID, Event: event,
		Data: UserPresencePayload{UserID: s.UserID, Username: s.Username}}}, nil
}
