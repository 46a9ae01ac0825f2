package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"storegateway/internal/models"
	"storegateway/internal/service"

	"github.com/gin-gonic/gin"
)

type fakeUsers map[uint]*models.User

func (f fakeUsers) GetUser(_ context.Context, id uint) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, service.ErrUserNotFound
}

func TestGenerateAccessToken(t *testing.T) {
	tests := []struct {
		name       string
		userID     uint
		secret     string
		ttlMinutes int
	}{
		{"valid token", 1, "test-secret", 15},
		{"zero user id", 0, "test-secret", 15},
		{"empty secret", 1, "", 15},
		{"zero ttl", 1, "test-secret", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateAccessToken(tt.userID, models.RoleUser, tt.secret, tt.ttlMinutes)
			if err != nil {
				t.Fatalf("GenerateAccessToken() error = %v", err)
			}
			if token == "" {
				t.Error("GenerateAccessToken() returned empty token")
			}
		})
	}
}

func TestParseAccessToken(t *testing.T) {
	secret := "test-secret-key"
	userID := uint(42)

	token, err := GenerateAccessToken(userID, models.RoleAdmin, secret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	tests := []struct {
		name    string
		token   string
		secret  string
		wantUID uint
		wantErr bool
	}{
		{"valid token", token, secret, userID, false},
		{"wrong secret", token, "wrong-secret", 0, true},
		{"invalid token", "invalid.token.here", secret, 0, true},
		{"empty token", "", secret, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ParseAccessToken(tt.token, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseAccessToken() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && claims.UserID != tt.wantUID {
				t.Errorf("ParseAccessToken() UserID = %v, want %v", claims.UserID, tt.wantUID)
			}
			if !tt.wantErr && claims.Role != models.RoleAdmin {
				t.Errorf("ParseAccessToken() Role = %v, want ADMIN", claims.Role)
			}
		})
	}
}

func TestParseAccessToken_Expired(t *testing.T) {
	secret := "test-secret"
	token, err := GenerateAccessToken(1, models.RoleUser, secret, -1)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := ParseAccessToken(token, secret)
	if err == nil {
		t.Error("ParseAccessToken() should return error for expired token")
	}
	if claims != nil {
		t.Error("ParseAccessToken() should return nil claims for expired token")
	}
}

func TestVerifier_Verify(t *testing.T) {
	secret := "verify-secret"
	users := fakeUsers{
		1: {ID: 1, Username: "alice", Role: models.RoleUser},
		2: {ID: 2, Username: "root", Role: models.RoleAdmin},
		3: {ID: 3, Username: "legacy"},
	}
	v := NewVerifier(secret, users)

	mint := func(uid uint, role string, ttl int) string {
		tok, err := GenerateAccessToken(uid, role, secret, ttl)
		if err != nil {
			t.Fatalf("GenerateAccessToken() error = %v", err)
		}
		return tok
	}

	tests := []struct {
		name     string
		token    string
		wantErr  bool
		wantName string
		wantRole string
	}{
		{"user", mint(1, models.RoleUser, 5), false, "alice", models.RoleUser},
		{"store role wins over claim", mint(2, models.RoleUser, 5), false, "root", models.RoleAdmin},
		{"missing role defaults to user", mint(3, "", 5), false, "legacy", models.RoleUser},
		{"empty", "", true, "", ""},
		{"whitespace", "   ", true, "", ""},
		{"malformed", "abc", true, "", ""},
		{"expired", mint(1, models.RoleUser, -1), true, "", ""},
		{"deleted user", mint(99, models.RoleUser, 5), true, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := v.Verify(context.Background(), tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidToken) {
					t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
				}
				return
			}
			if id.Username != tt.wantName || id.Role != tt.wantRole {
				t.Errorf("Verify() = %+v, want %s/%s", id, tt.wantName, tt.wantRole)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		header string
		want   string
	}{
		{"query", "/ws?token=abc", "", "abc"},
		{"header", "/ws", "Bearer xyz", "xyz"},
		{"lowercase header", "/ws", "bearer xyz", "xyz"},
		{"query wins", "/ws?token=abc", "Bearer xyz", "abc"},
		{"none", "/ws", "", ""},
		{"basic auth ignored", "/ws", "Basic Zm9vOmJhcg==", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := BearerToken(req); got != tt.want {
				t.Errorf("BearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := "mw-secret"
	v := NewVerifier(secret, fakeUsers{7: {ID: 7, Username: "bob", Role: models.RoleUser}})
	r := gin.New()
	r.GET("/me", AuthMiddleware(v), func(c *gin.Context) {
		id, _ := GetIdentity(c)
		c.JSON(http.StatusOK, gin.H{"username": id.Username})
	})

	tok, _ := GenerateAccessToken(7, models.RoleUser, secret, 5)
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"ok", "Bearer " + tok, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
