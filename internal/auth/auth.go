package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storegateway/internal/models"
	"storegateway/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken 覆盖缺失、格式错误、签名或过期校验失败以及用户已不存在的所有情况。
var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID uint   `json:"uid"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity 是令牌解析后的用户身份，在整个会话期间不可变。
type Identity struct {
	UserID   uint
	Username string
	Role     string
}

// IsAdmin 判断身份是否具备后台权限。
func (i Identity) IsAdmin() bool { return i.Role == models.RoleAdmin }

// GenerateAccessToken 签发 HS256 访问令牌。令牌签发属于登录服务，这里仅供测试与本地调试使用。
func GenerateAccessToken(userID uint, role, secret string, ttlMinutes int) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlMinutes) * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseAccessToken(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// UserLookup 是校验令牌时用到的用户存储。
type UserLookup interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
}

// Verifier 校验连接时携带的 bearer token，并确认用户仍然存在。
type Verifier struct {
	secret string
	users  UserLookup
}

func NewVerifier(secret string, users UserLookup) *Verifier {
	return &Verifier{secret: secret, users: users}
}

// Verify 失败时统一返回包裹 ErrInvalidToken 的错误，调用方不做重试。
func (v *Verifier) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	claims, err := ParseAccessToken(token, v.secret)
	if err != nil {
		return Identity{}, errors.Join(ErrInvalidToken, err)
	}
	user, err := v.users.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, err
	}
	// 角色以存储为准，令牌里的 role 可能已经过时。
	role := user.Role
	if role == "" {
		role = models.RoleUser
	}
	return Identity{UserID: user.ID, Username: user.Username, Role: role}, nil
}

// BearerToken 从 token 查询参数或 Authorization 头中取出令牌。
func BearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

// AuthMiddleware 保护 REST 只读接口，复用与 WebSocket 相同的校验逻辑。
func AuthMiddleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		id, err := v.Verify(c.Request.Context(), authz[len("Bearer "):])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("identity", id)
		c.Next()
	}
}

func GetIdentity(c *gin.Context) (Identity, bool) {
	if v, ok := c.Get("identity"); ok {
		if id, ok2 := v.(Identity); ok2 {
			return id, true
		}
	}
	return Identity{}, false
}
