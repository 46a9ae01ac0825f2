package models

import "time"

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

const (
	RoomDirect  = "DIRECT"
	RoomSupport = "SUPPORT"
)

const (
	MessageText  = "TEXT"
	MessageImage = "IMAGE"
	MessageFile  = "FILE"
)

// 订单状态，order-status-update 只接受以下取值。
const (
	OrderPending    = "PENDING"
	OrderProcessing = "PROCESSING"
	OrderShipped    = "SHIPPED"
	OrderDelivered  = "DELIVERED"
	OrderCancelled  = "CANCELLED"
)

type User struct {
	ID        uint   `gorm:"primaryKey"`
	Username  string `gorm:"uniqueIndex;size:64;not null"`
	Role      string `gorm:"size:16;not null;default:USER"`
	IsOnline  bool   `gorm:"not null;default:false"`
	LastSeen  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Room struct {
	ID        uint         `gorm:"primaryKey"`
	Type      string       `gorm:"size:16;not null"`
	Members   []RoomMember `gorm:"foreignKey:RoomID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoomMember 保存持久化房间的成员，Position 决定成员顺序。
type RoomMember struct {
	RoomID   uint `gorm:"primaryKey"`
	UserID   uint `gorm:"primaryKey"`
	Position int  `gorm:"not null;default:0"`
	User     User `gorm:"foreignKey:UserID"`
}

// MemberIDs 按持久化顺序返回成员 ID。
func (r *Room) MemberIDs() []uint {
	out := make([]uint, 0, len(r.Members))
	for _, m := range r.Members {
		out = append(out, m.UserID)
	}
	return out
}

type Message struct {
	ID         uint   `gorm:"primaryKey"`
	RoomID     uint   `gorm:"index:idx_msg_room_id;not null"`
	SenderID   uint   `gorm:"index;not null"`
	ReceiverID *uint  `gorm:"index"`
	Content    string `gorm:"type:text;not null"`
	Type       string `gorm:"size:16;not null;default:TEXT"`
	CreatedAt  time.Time
}

type Order struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index;not null"`
	Status    string `gorm:"size:16;not null;default:PENDING"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Product struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:128;not null"`
	Stock     int    `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
