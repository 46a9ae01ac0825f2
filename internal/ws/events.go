package ws

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// 客户端 → 网关
const (
	EventJoinChatRoom      = "join-chat-room"
	EventLeaveChatRoom     = "leave-chat-room"
	EventChatMessage       = "chat-message"
	EventTypingStart       = "typing-start"
	EventTypingStop        = "typing-stop"
	EventOrderStatusUpdate = "order-status-update"
	EventStockUpdate       = "stock-update"
	EventUpdateStatus      = "update-status"
)

// 网关 → 客户端
const (
	EventUserOnline             = "user-online"
	EventUserOffline            = "user-offline"
	EventNewMessage             = "new-message"
	EventUserTyping             = "user-typing"
	EventUserStoppedTyping      = "user-stopped-typing"
	EventOrderUpdated           = "order-updated"
	EventOrderStatusChanged     = "order-status-changed"
	EventStockUpdated           = "stock-updated"
	EventLowStockAlert          = "low-stock-alert"
	EventNewMessageNotification = "new-message-notification"
	EventError                  = "error"
)

// Envelope 是双向通用的帧格式：{"event": "...", "data": {...}}。
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	return json.Marshal(outboundFrame{Event: event, Data: data})
}

// Outbound 描述一次投递：Room 非空时投递给逻辑房间成员，All 为真时投递给全部连接，Except 为排除的连接。
type Outbound struct {
	Room   string
	All    bool
	Except string
	Event  string
	Data   any
}

type UserRef struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}

type UserPresencePayload struct {
	UserID   uint   `json:"userId"`
	Username string `json:"username"`
}

type MessagePayload struct {
	ID         uint      `json:"id"`
	RoomID     uint      `json:"roomId"`
	SenderID   uint      `json:"senderId"`
	ReceiverID *uint     `json:"receiverId"`
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	CreatedAt  time.Time `json:"createdAt"`
	Sender     UserRef   `json:"sender"`
}

type NewMessagePayload struct {
	Message MessagePayload `json:"message"`
	RoomID  uint           `json:"roomId"`
}

type NotificationMessage struct {
	ID      uint    `json:"id"`
	Content string  `json:"content"`
	Sender  UserRef `json:"sender"`
}

type NotificationPayload struct {
	RoomID  uint                `json:"roomId"`
	Message NotificationMessage `json:"message"`
}

type TypingPayload struct {
	UserID   uint   `json:"userId"`
	Username string `json:"username,omitempty"`
	RoomID   uint   `json:"roomId"`
}

type OrderUpdatedPayload struct {
	OrderID   uint      `json:"orderId"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type OrderStatusChangedPayload struct {
	OrderID   uint      `json:"orderId"`
	Status    string    `json:"status"`
	UpdatedBy string    `json:"updatedBy"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type StockUpdatedPayload struct {
	ProductID uint      `json:"productId"`
	NewStock  int       `json:"newStock"`
	UpdatedBy string    `json:"updatedBy"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type LowStockAlertPayload struct {
	ProductID    uint      `json:"productId"`
	ProductName  string    `json:"productName"`
	CurrentStock int       `json:"currentStock"`
	Timestamp    time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// 入站请求

type ChatMessageRequest struct {
	RoomID  uint   `json:"roomId"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

type OrderStatusRequest struct {
	OrderID uint   `json:"orderId"`
	Status  string `json:"status"`
}

type StockUpdateRequest struct {
	ProductID uint `json:"productId"`
	NewStock  *int `json:"newStock"`
}

type UpdateStatusRequest struct {
	IsOnline *bool `json:"isOnline"`
}

// decodeRoomID 接受 5、"5" 或 {"roomId": 5} 三种写法。
func decodeRoomID(data json.RawMessage) (uint, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return 0, eventErr(ErrInvalidPayload, "roomId is required", nil)
	}
	var id uint
	switch data[0] {
	case '{':
		var req struct {
			RoomID uint `json:"roomId"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return 0, eventErr(ErrInvalidPayload, "invalid roomId", nil)
		}
		id = req.RoomID
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, eventErr(ErrInvalidPayload, "invalid roomId", nil)
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, eventErr(ErrInvalidPayload, "invalid roomId", nil)
		}
		id = uint(v)
	default:
		if err := json.Unmarshal(data, &id); err != nil {
			return 0, eventErr(ErrInvalidPayload, "invalid roomId", nil)
		}
	}
	if id == 0 {
		return 0, eventErr(ErrInvalidPayload, "roomId is required", nil)
	}
	return id, nil
}

func decodeJSON(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return eventErr(ErrInvalidPayload, "missing data", nil)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eventErr(ErrInvalidPayload, "invalid payload", nil)
	}
	return nil
}
