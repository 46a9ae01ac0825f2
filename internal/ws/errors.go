package ws

import "errors"

// 错误分类。除 ErrAuthentication 外，其余错误只以 error 事件回给发起操作的连接。
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrAuthorization  = errors.New("not authorized")
	ErrNotFound       = errors.New("not found")
	ErrPersistence    = errors.New("persistence failed")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrRateLimited    = errors.New("too many events")
)

// ClientError 携带回给客户端的文案，Kind 用于 errors.Is 判断分类。
type ClientError struct {
	Kind  error
	Msg   string
	Cause error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *ClientError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func eventErr(kind error, msg string, cause error) error {
	return &ClientError{Kind: kind, Msg: msg, Cause: cause}
}

// clientMessage 返回可以安全回给客户端的文案，不暴露存储层细节。
func clientMessage(err error) string {
	var ee *ClientError
	if errors.As(err, &ee) {
		return ee.Msg
	}
	return "internal error"
}
