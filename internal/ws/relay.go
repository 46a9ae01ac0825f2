package ws

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"storegateway/internal/metrics"
	"storegateway/internal/models"
	"storegateway/internal/service"

	"github.com/rs/zerolog/log"
)

var messageTypes = map[string]bool{
	models.MessageText:  true,
	models.MessageImage: true,
	models.MessageFile:  true,
}

// SendMessage 持久化并广播一条聊天消息。持久化失败时只给发送者回 error，不产生任何广播。
func (h *Hub) SendMessage(ctx context.Context, s *Session, roomID uint, content, msgType string) (*models.Message, error) {
	msg, outs, err := h.relay(ctx, s, ChatMessageRequest{RoomID: roomID, Content: content, Type: msgType})
	if err != nil {
		h.sendError(s, err)
		return nil, err
	}
	h.deliver(outs...)
	return msg, nil
}

// relay 依次：确定接收者、写消息、刷新房间时间、生成房间广播与离线通知。
func (h *Hub) relay(ctx context.Context, s *Session, req ChatMessageRequest) (*models.Message, []Outbound, error) {
	if _, ok := h.Session(s.ConnectionID); !ok {
		return nil, nil, eventErr(ErrAuthentication, "not authenticated", nil)
	}
	if req.RoomID == 0 {
		return nil, nil, eventErr(ErrInvalidPayload, "roomId is required", nil)
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, nil, eventErr(ErrInvalidPayload, "content is required", nil)
	}
	if utf8.RuneCountInString(content) > h.opts.MaxMessageLength {
		return nil, nil, eventErr(ErrInvalidPayload, "content too long", nil)
	}
	msgType := strings.ToUpper(strings.TrimSpace(req.Type))
	if msgType == "" {
		msgType = models.MessageText
	}
	if !messageTypes[msgType] {
		return nil, nil, eventErr(ErrInvalidPayload, "unsupported message type", nil)
	}

	room, err := h.stores.Rooms.GetRoom(ctx, req.RoomID)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			return nil, nil, eventErr(ErrNotFound, "room not found", nil)
		}
		return nil, nil, eventErr(ErrPersistence, "failed to load room", err)
	}

	msg := &models.Message{
		RoomID:     room.ID,
		SenderID:   s.UserID,
		ReceiverID: directReceiver(room, s.UserID),
		Content:    content,
		Type:       msgType,
	}
	if err := h.stores.Messages.CreateMessage(ctx, msg); err != nil {
		return nil, nil, eventErr(ErrPersistence, "failed to send message", err)
	}
	metrics.WsMessagesTotal.Inc()

	if err := h.stores.Rooms.TouchRoom(ctx, room.ID); err != nil {
		log.Warn().Err(err).Uint("room_id", room.ID).Msg("touch room")
	}

	sender := UserRef{ID: s.UserID, Username: s.Username}
	outs := []Outbound{{
		Room:  ChatRoom(room.ID),
		Event: EventNewMessage,
		Data: NewMessagePayload{
			RoomID: room.ID,
			Message: MessagePayload{
				ID:         msg.ID,
				RoomID:     msg.RoomID,
				SenderID:   msg.SenderID,
				ReceiverID: msg.ReceiverID,
				Content:    msg.Content,
				Type:       msg.Type,
				CreatedAt:  msg.CreatedAt,
				Sender:     sender,
			},
		},
	}}
	outs = append(outs, h.offlineNotifications(room, msg, sender)...)
	return msg, outs, nil
}

// directReceiver 只对 DIRECT 房间返回另一位成员。
func directReceiver(room *models.Room, senderID uint) *uint {
	if room.Type != models.RoomDirect {
		return nil
	}
	for _, id := range room.MemberIDs() {
		if id != senderID {
			other := id
			return &other
		}
	}
	return nil
}

// NotifyOffline 读取房间的完整持久化成员，给没有任何连接订阅该聊天房间的成员
// 推送 new-message-notification 到其个人房间。完全离线的成员没有连接，通知自然丢弃。
func (h *Hub) NotifyOffline(ctx context.Context, roomID uint, msg *models.Message, sender UserRef) error {
	room, err := h.stores.Rooms.GetRoom(ctx, roomID)
	if err != nil {
		log.Warn().Err(err).Uint("room_id", roomID).Msg("load room for offline notification")
		return err
	}
	h.deliver(h.offlineNotifications(room, msg, sender)...)
	return nil
}

func (h *Hub) offlineNotifications(room *models.Room, msg *models.Message, sender UserRef) []Outbound {
	chat := ChatRoom(room.ID)
	var outs []Outbound
	for _, memberID := range room.MemberIDs() {
		if memberID == msg.SenderID || h.subscribed(memberID, chat) {
			continue
		}
		metrics.OfflineNotificationsTotal.Inc()
		outs = append(outs, Outbound{
			Room:  PersonalRoom(memberID),
			Event: EventNewMessageNotification,
			Data: NotificationPayload{
				RoomID:  room.ID,
				Message: NotificationMessage{ID: msg.ID, Content: msg.Content, Sender: sender},
			},
		})
	}
	return outs
}

// subscribed 判断用户是否有任一连接订阅了该房间；离线用户一定返回 false。
func (h *Hub) subscribed(userID uint, room string) bool {
	if !h.presence.IsOnline(userID) {
		return false
	}
	for _, s := range h.presence.SessionsOf(userID) {
		if h.router.IsMember(s.ConnectionID, room) {
			return true
		}
	}
	return false
}
