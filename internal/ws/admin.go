package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"storegateway/internal/models"
	"storegateway/internal/service"

	"github.com/rs/zerolog/log"
)

var orderStatuses = map[string]bool{
	models.OrderPending:    true,
	models.OrderProcessing: true,
	models.OrderShipped:    true,
	models.OrderDelivered:  true,
	models.OrderCancelled:  true,
}

func (h *Hub) handleOrderStatus(ctx context.Context, s *Session, data json.RawMessage) ([]Outbound, error) {
	var req OrderStatusRequest
	if err := decodeJSON(data, &req); err != nil {
		return nil, err
	}
	status := strings.ToUpper(strings.TrimSpace(req.Status))
	if req.OrderID == 0 {
		return nil, eventErr(ErrInvalidPayload, "orderId is required", nil)
	}
	if !orderStatuses[status] {
		return nil, eventErr(ErrInvalidPayload, "invalid order status", nil)
	}

	order, err := h.stores.Orders.UpdateOrderStatus(ctx, req.OrderID, status)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			return nil, eventErr(ErrNotFound, "order not found", nil)
		}
		return nil, eventErr(ErrPersistence, "failed to update order", err)
	}
	log.Info().Uint("order_id", order.ID).Str("status", order.Status).Str("by", s.Username).Msg("order status updated")

	updatedAt := order.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	return []Outbound{
		{Room: PersonalRoom(order.UserID), Event: EventOrderUpdated,
			Data: OrderUpdatedPayload{OrderID: order.ID, Status: order.Status, UpdatedAt: updatedAt}},
		{Room: AdminRoom, Event: EventOrderStatusChanged,
			Data: OrderStatusChangedPayload{OrderID: order.ID, Status: order.Status, UpdatedBy: s.Username, UpdatedAt: updatedAt}},
	}, nil
}

// handleStockUpdate 向全部连接广播库存变化，库存不高于阈值时额外向 admin 房间告警；阈值为 0 时不告警。
func (h *Hub) handleStockUpdate(ctx context.Context, s *Session, data json.RawMessage) ([]Outbound, error) {
	var req StockUpdateRequest
	if err := decodeJSON(data, &req); err != nil {
		return nil, err
	}
	if req.ProductID == 0 {
		return nil, eventErr(ErrInvalidPayload, "productId is required", nil)
	}
	if req.NewStock == nil || *req.NewStock < 0 {
		return nil, eventErr(ErrInvalidPayload, "newStock must be a non-negative integer", nil)
	}

	product, err := h.stores.Products.UpdateProductStock(ctx, req.ProductID, *req.NewStock)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			return nil, eventErr(ErrNotFound, "product not found", nil)
		}
		return nil, eventErr(ErrPersistence, "failed to update stock", err)
	}

	now := time.Now()
	outs := []Outbound{{All: true, Event: EventStockUpdated,
		Data: StockUpdatedPayload{ProductID: product.ID, NewStock: product.Stock, UpdatedBy: s.Username, UpdatedAt: now}}}
	if h.opts.LowStockThreshold > 0 && product.Stock <= h.opts.LowStockThreshold {
		log.Warn().Uint("product_id", product.ID).Int("stock", product.Stock).Msg("low stock")
		outs = append(outs, Outbound{Room: AdminRoom, Event: EventLowStockAlert,
			Data: LowStockAlertPayload{ProductID: product.ID, ProductName: product.Name, CurrentStock: product.Stock, Timestamp: now}})
	}
	return outs, nil
}
