package service

import (
	"context"

	"storegateway/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// OrderService 只负责后台修改订单状态，订单的其余 CRUD 在 REST 服务中。
type OrderService struct {
	db *gorm.DB
}

func NewOrderService(db *gorm.DB) *OrderService {
	return &OrderService{db: db}
}

// UpdateOrderStatus 写入新状态并返回更新后的订单。
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id uint, status string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, id).Error; err != nil {
			return err
		}
		order.Status = status
		return tx.Save(&order).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "update order %d status", id)
	}
	return &order, nil
}

// ProductService 只负责库存变更。
type ProductService struct {
	db *gorm.DB
}

func NewProductService(db *gorm.DB) *ProductService {
	return &ProductService{db: db}
}

// UpdateProductStock 写入新库存并返回更新后的商品。
func (s *ProductService) UpdateProductStock(ctx context.Context, id uint, stock int) (*models.Product, error) {
	var product models.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&product, id).Error; err != nil {
			return err
		}
		product.Stock = stock
		return tx.Save(&product).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, errors.Wrapf(err, "update product %d stock", id)
	}
	return &product, nil
}
