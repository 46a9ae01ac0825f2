package service

import (
	"context"
	"time"

	"storegateway/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// MessageService 封装消息的写入与历史查询。
type MessageService struct {
	db    *gorm.DB
	users *UserService
}

func NewMessageService(db *gorm.DB, users *UserService) *MessageService {
	return &MessageService{db: db, users: users}
}

// CreateMessage 持久化消息，成功后 msg.ID 与 msg.CreatedAt 被回填。
func (s *MessageService) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return errors.Wrapf(err, "create message in room %d", msg.RoomID)
	}
	return nil
}

// MessageDTO 是对外输出的消息数据。
type MessageDTO struct {
	ID         uint      `json:"id"`
	RoomID     uint      `json:"roomId"`
	SenderID   uint      `json:"senderId"`
	ReceiverID *uint     `json:"receiverId"`
	Username   string    `json:"username"`
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ListByRoom 分页查询指定房间的消息，按 id 升序返回。
func (s *MessageService) ListByRoom(ctx context.Context, roomID uint, limit int, beforeID uint) ([]MessageDTO, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := s.db.WithContext(ctx).Where("room_id = ?", roomID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}

	var msgs []models.Message
	if err := q.Order("id desc").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, errors.Wrapf(err, "list messages in room %d", roomID)
	}

	// 反转为升序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	seen := make(map[uint]struct{}, len(msgs))
	ids := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; ok {
			continue
		}
		seen[m.SenderID] = struct{}{}
		ids = append(ids, m.SenderID)
	}
	usernames, err := s.users.Usernames(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageDTO{
			ID:         m.ID,
			RoomID:     m.RoomID,
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			Username:   usernames[m.SenderID],
			Content:    m.Content,
			Type:       m.Type,
			CreatedAt:  m.CreatedAt,
		})
	}
	return out, nil
}
