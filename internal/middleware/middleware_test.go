package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type tokenFunc func(string) (*utils.Claims, error)

func (f tokenFunc) ValidateAccessToken(token string) (*utils.Claims, error) { return f(token) }

func TestAuthMiddleware(t *testing.T) {
	userID := uuid.New()
	validator := tokenFunc(func(token string) (*utils.Claims, error) {
		if token != "good" {
			return nil, errors.New("bad token")
		}
		return &utils.Claims{UserID: userID, Email: "elf@example.com"}, nil
	})

	r := gin.New()
	r.GET("/me", AuthMiddleware(validator), func(c *gin.Context) {
		id, ok := UserID(c)
		require.True(t, ok)
		c.String(http.StatusOK, id.String())
	})
	r.GET("/admin", AuthMiddleware(validator), AdminMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"no header", "/me", "", http.StatusUnauthorized},
		{"not bearer", "/me", "Basic good", http.StatusUnauthorized},
		{"bad token", "/me", "Bearer nope", http.StatusUnauthorized},
		{"good token", "/me", "Bearer good", http.StatusOK},
		{"lower-case scheme", "/me", "bearer good", http.StatusOK},
		{"not admin", "/admin", "Bearer good", http.StatusForbidden},
		{"query token", "/me?access_token=good", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK && strings.HasPrefix(tt.path, "/me") {
				assert.Equal(t, userID.String(), w.Body.String())
			}
		})
	}
}

func TestIPRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 60, 2, 1)
	defer rl.Stop()

	r := gin.New()
	r.GET("/", rl.IPRateLimiterMiddleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRateLimiterKeepsBody(t *testing.T) {
	rl := NewRateLimiter(100, 0.001, 100, 1)
	defer rl.Stop()

	r := gin.New()
	r.POST("/signin", rl.AuthRateLimiterMiddleware(), func(c *gin.Context) {
		var body struct {
			Email string `json:"email"`
		}
		require.NoError(t, c.ShouldBindJSON(&body))
		c.String(http.StatusOK, body.Email)
	})

	post := func(email string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/signin", strings.NewReader(`{"email":"`+email+`"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w
	}

	w := post("elf@example.com")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "elf@example.com", w.Body.String())

	assert.Equal(t, http.StatusTooManyRequests, post("ELF@example.com").Code)
	assert.Equal(t, http.StatusOK, post("santa@example.com").Code)
}

func TestSecureHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecureHeadersMiddleware(DefaultSecureHeadersConfig(true)))
	r.POST("/api/auth/signin", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/signin", nil))

	assert.Equal(t, "max-age=31536000; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "base-uri 'none'; default-src 'none'; frame-ancestors 'none'", w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://santaspot.example"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://santaspot.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://santaspot.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOAuthState(t *testing.T) {
	s := NewOAuthState("secret", false)

	r := gin.New()
	var issued string
	r.GET("/login", func(c *gin.Context) {
		var err error
		issued, err = s.Issue(c)
		require.NoError(t, err)
		c.Status(http.StatusOK)
	})
	r.GET("/callback", func(c *gin.Context) {
		if s.Verify(c, c.Query("state")) {
			c.Status(http.StatusOK)
			return
		}
		c.Status(http.StatusBadRequest)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login", nil))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)

	callback := func(state string, withCookie bool) int {
		req := httptest.NewRequest(http.MethodGet, "/callback?state="+state, nil)
		if withCookie {
			req.AddCookie(cookies[0])
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, callback(issued, true))
	assert.Equal(t, http.StatusBadRequest, callback("forged", true))
	assert.Equal(t, http.StatusBadRequest, callback(issued, false))
}

func TestRequestLoggerAndRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop(), nil), Recovery(zap.NewNop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })
	r.GET("/slow", func(c *gin.Context) {
		time.Sleep(time.Millisecond)
		c.Status(http.StatusAccepted)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
}
