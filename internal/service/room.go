package service

import (
	"context"
	"time"

	"storegateway/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// RoomService 读取持久化房间及其成员，并刷新最后活跃时间。
type RoomService struct {
	db *gorm.DB
}

func NewRoomService(db *gorm.DB) *RoomService {
	return &RoomService{db: db}
}

// GetRoom 读取房间和按顺序排列的全部成员。
func (s *RoomService) GetRoom(ctx context.Context, id uint) (*models.Room, error) {
	var room models.Room
	err := s.db.WithContext(ctx).
		Preload("Members", func(tx *gorm.DB) *gorm.DB { return tx.Order("position asc, user_id asc") }).
		First(&room, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, errors.Wrapf(err, "get room %d", id)
	}
	return &room, nil
}

// TouchRoom 更新房间的 updated_at，用于会话列表排序。
func (s *RoomService) TouchRoom(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&models.Room{}).Where("id = ?", id).Update("updated_at", time.Now())
	if res.Error != nil {
		return errors.Wrapf(res.Error, "touch room %d", id)
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// IsMember 检查用户是否属于持久化房间，供 REST 历史接口鉴权。
func (s *RoomService) IsMember(ctx context.Context, roomID, userID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).Count(&count).Error
	if err != nil {
		return false, errors.Wrapf(err, "check member room=%d user=%d", roomID, userID)
	}
	return count > 0, nil
}
