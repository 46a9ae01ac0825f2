package service

import "errors"

// 存储层通用错误，网关据此区分 NotFound 与 Persistence 两类错误。
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrRoomNotFound    = errors.New("room not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
)
