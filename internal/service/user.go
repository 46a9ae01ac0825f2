package service

import (
	"context"
	"time"

	"storegateway/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// UserService 封装网关需要的用户读取与在线状态写入。
type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// GetUser 按 ID 读取用户，不存在时返回 ErrUserNotFound。
func (s *UserService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrapf(err, "get user %d", id)
	}
	return &user, nil
}

// SetUserOnline 持久化在线标记与最后活跃时间。
func (s *UserService) SetUserOnline(ctx context.Context, id uint, online bool, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{"is_online": online, "last_seen": at})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "set user %d online=%t", id, online)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Usernames 批量获取用户名。
func (s *UserService) Usernames(ctx context.Context, ids []uint) (map[uint]string, error) {
	out := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Select("id", "username").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, errors.Wrap(err, "list usernames")
	}
	for _, u := range users {
		out[u.ID] = u.Username
	}
	return out, nil
}
