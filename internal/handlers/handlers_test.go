package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/config"
	"github.com/santaspot/backend/internal/database"
	"github.com/santaspot/backend/internal/database/dbtest"
	"github.com/santaspot/backend/internal/middleware"
	"github.com/santaspot/backend/internal/realtime"
	"github.com/santaspot/backend/internal/security"
	"github.com/santaspot/backend/internal/services/auth"
	"github.com/santaspot/backend/internal/services/referral"
	"github.com/santaspot/backend/internal/services/settlement"
	"github.com/santaspot/backend/internal/services/tracking"
	"github.com/santaspot/backend/internal/services/withdrawal"
	"github.com/santaspot/backend/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	store  *dbtest.MemStore
	tokens *utils.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zap.NewNop()
	store := dbtest.NewMemStore()
	tokens := utils.NewTokenManager("test-secret", 15*time.Minute, time.Hour)
	rewards := config.RewardsConfig{
		ReferralBonus:     decimal.NewFromInt(50),
		SignupBonus:       decimal.NewFromInt(100),
		ClickReward:       decimal.NewFromInt(2),
		ClickDedupeWindow: 24 * time.Hour,
	}

	authSvc := auth.NewService(store, tokens, nil, "Santa's Pot", log)
	settle := settlement.NewService(store, &realtime.Recorder{}, rewards, log, nil)
	referrals := referral.NewService(store, settle, "https://santaspot.example", log)
	trackingSvc := tracking.NewService(store, &realtime.Recorder{}, rewards, log, nil)
	withdrawals := withdrawal.NewService(store, log)

	authH := NewAuthHandler(authSvc, middleware.NewOAuthState("test-secret", false), log)
	profileH := NewProfileHandler(referrals, "https://go.santaspot.example", log)
	trackingH := NewTrackingHandler(trackingSvc, log)
	withdrawalH := NewWithdrawalHandler(withdrawals, log)

	r := gin.New()
	r.POST("/api/auth/signup", authH.SignUp)
	r.POST("/api/auth/signin", authH.SignIn)
	r.POST("/api/auth/refresh", authH.Refresh)
	r.GET("/api/auth/google/login", authH.GoogleLogin)
	r.POST("/api/clicks", trackingH.TrackClick)
	r.GET("/api/stats/live", trackingH.LiveStats)
	r.GET("/r/:code", profileH.RedirectShortLink)

	api := r.Group("/api", middleware.AuthMiddleware(authSvc))
	api.GET("/profile", profileH.GetProfile)
	api.POST("/profile/complete", profileH.CompleteProfile)
	api.GET("/referrals", profileH.ListReferrals)
	api.GET("/referrals/link", profileH.ReferralLink)
	api.GET("/referrals/qr", profileH.ReferralQR)
	api.POST("/links", profileH.CreateShortLink)
	api.POST("/shares", trackingH.RecordShare)
	api.GET("/stats/dashboard", trackingH.Dashboard)
	api.POST("/withdrawals", withdrawalH.RequestWithdrawal)
	api.GET("/withdrawals", withdrawalH.ListWithdrawals)

	admin := api.Group("/admin", middleware.AdminMiddleware())
	admin.GET("/withdrawals", withdrawalH.ListPending)
	admin.POST("/withdrawals/:id/complete", withdrawalH.Complete)
	admin.POST("/withdrawals/:id/reject", withdrawalH.Reject)

	return &testServer{router: r, store: store, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:4321"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

type signUpResponse struct {
	Account struct {
		ID uuid.UUID `json:"id"`
	} `json:"account"`
	Profile struct {
		ReferralCode string `json:"referral_code"`
	} `json:"profile"`
	Tokens utils.TokenPair `json:"tokens"`
}

func (s *testServer) signUp(t *testing.T, email string) signUpResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{"email": email, "password": "snowball42"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res signUpResponse
	decode(t, w, &res)
	return res
}

func TestAuthEndpoints(t *testing.T) {
	s := newTestServer(t)
	user := s.signUp(t, "elf@example.com")
	assert.NotEmpty(t, user.Tokens.AccessToken)

	tests := []struct {
		name   string
		path   string
		body   gin.H
		status int
	}{
		{"duplicate sign-up", "/api/auth/signup", gin.H{"email": "elf@example.com", "password": "snowball42"}, http.StatusConflict},
		{"weak password", "/api/auth/signup", gin.H{"email": "new@example.com", "password": "short"}, http.StatusBadRequest},
		{"missing fields", "/api/auth/signup", gin.H{"email": "new@example.com"}, http.StatusBadRequest},
		{"sign in", "/api/auth/signin", gin.H{"email": "elf@example.com", "password": "snowball42"}, http.StatusOK},
		{"wrong password", "/api/auth/signin", gin.H{"email": "elf@example.com", "password": "snowball43"}, http.StatusUnauthorized},
		{"refresh", "/api/auth/refresh", gin.H{"refresh_token": user.Tokens.RefreshToken}, http.StatusOK},
		{"refresh with access token", "/api/auth/refresh", gin.H{"refresh_token": user.Tokens.AccessToken}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestSignInLockout(t *testing.T) {
	log := zap.NewNop()
	store := dbtest.NewMemStore()
	tokens := utils.NewTokenManager("test-secret", 15*time.Minute, time.Hour)
	authSvc := auth.NewService(store, tokens, nil, "Santa's Pot", log)
	_, err := authSvc.SignUp(context.Background(), "elf@example.com", "snowball42")
	require.NoError(t, err)

	guard := security.NewSignInGuard(security.SignInGuardConfig{
		MaxAttemptsPerEmail: 2,
		MaxAttemptsPerIP:    10,
		WindowDuration:      time.Minute,
		LockoutDuration:     time.Minute,
	})
	h := NewAuthHandler(authSvc, middleware.NewOAuthState("test-secret", false), log).WithSignInGuard(guard)
	r := gin.New()
	r.POST("/api/auth/signin", h.SignIn)
	s := &testServer{router: r, store: store, tokens: tokens}

	wrong := gin.H{"email": "elf@example.com", "password": "wrong-password"}
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/auth/signin", "", wrong).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/auth/signin", "", wrong).Code)

	w := s.do(t, http.MethodPost, "/api/auth/signin", "", gin.H{"email": "elf@example.com", "password": "snowball42"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestGoogleLoginDisabled(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/auth/google/login", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/profile", "/api/referrals", "/api/stats/dashboard", "/api/withdrawals"} {
		w := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestCompleteProfileWithReferralCode(t *testing.T) {
	s := newTestServer(t)
	referrer := s.signUp(t, "santa@example.com")
	user := s.signUp(t, "jolly.elf@example.com")

	w := s.do(t, http.MethodGet, "/api/profile", user.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view struct {
		SuggestedUsername string `json:"suggested_username"`
		ReferralLink      string `json:"referral_link"`
	}
	decode(t, w, &view)
	assert.Equal(t, "jolly-elf", view.SuggestedUsername)
	assert.Equal(t, "https://santaspot.example/signup?referral="+user.Profile.ReferralCode, view.ReferralLink)

	w = s.do(t, http.MethodPost, "/api/profile/complete", user.Tokens.AccessToken, gin.H{
		"username":      "Jolly Elf",
		"referral_code": referrer.Profile.ReferralCode,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var completed struct {
		Profile struct {
			Username string          `json:"username"`
			Earnings decimal.Decimal `json:"earnings"`
		} `json:"profile"`
		Referral struct {
			BonusApplied bool `json:"bonus_applied"`
		} `json:"referral"`
	}
	decode(t, w, &completed)
	assert.Equal(t, "jolly-elf", completed.Profile.Username)
	assert.True(t, completed.Profile.Earnings.Equal(decimal.NewFromInt(100)))
	assert.True(t, completed.Referral.BonusApplied)

	referrerProfile, err := s.store.GetProfile(context.Background(), referrer.Account.ID)
	require.NoError(t, err)
	assert.True(t, referrerProfile.Earnings.Equal(decimal.NewFromInt(50)))

	w = s.do(t, http.MethodPost, "/api/profile/complete", user.Tokens.AccessToken, gin.H{"username": "another"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/referrals", referrer.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Referrals []json.RawMessage `json:"referrals"`
	}
	decode(t, w, &list)
	assert.Len(t, list.Referrals, 1)
}

func TestCompleteProfileRejectsShortUsername(t *testing.T) {
	s := newTestServer(t)
	user := s.signUp(t, "elf@example.com")

	w := s.do(t, http.MethodPost, "/api/profile/complete", user.Tokens.AccessToken, gin.H{"username": "ab"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"username must be at least 3 characters"}`, w.Body.String())
}

func TestReferralQR(t *testing.T) {
	s := newTestServer(t)
	user := s.signUp(t, "elf@example.com")

	w := s.do(t, http.MethodGet, "/api/referrals/qr", user.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
}

func TestShortLinkRedirect(t *testing.T) {
	s := newTestServer(t)
	user := s.signUp(t, "elf@example.com")

	w := s.do(t, http.MethodPost, "/api/links", user.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var link struct {
		ShortCode string `json:"short_code"`
		ShortURL  string `json:"short_url"`
		LongURL   string `json:"long_url"`
	}
	decode(t, w, &link)
	assert.Equal(t, "https://go.santaspot.example/r/"+link.ShortCode, link.ShortURL)

	w = s.do(t, http.MethodGet, "/r/"+link.ShortCode, "", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, link.LongURL, w.Header().Get("Location"))

	w = s.do(t, http.MethodGet, "/r/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTrackClickEndpoint(t *testing.T) {
	s := newTestServer(t)
	owner := s.signUp(t, "elf@example.com")

	w := s.do(t, http.MethodPost, "/api/clicks", "", gin.H{"referral_code": owner.Profile.ReferralCode})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/clicks", "", gin.H{"referral_code": owner.Profile.ReferralCode})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = s.do(t, http.MethodPost, "/api/clicks", "", gin.H{"referral_code": "NOPE"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/stats/dashboard", owner.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dash struct {
		Clicks int64 `json:"clicks"`
	}
	decode(t, w, &dash)
	assert.Equal(t, int64(1), dash.Clicks)

	w = s.do(t, http.MethodGet, "/api/stats/live", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var live struct {
		TotalUsers  int64 `json:"total_users"`
		TotalClicks int64 `json:"total_clicks"`
	}
	decode(t, w, &live)
	assert.Equal(t, int64(1), live.TotalUsers)
	assert.Equal(t, int64(1), live.TotalClicks)
}

func TestShareEndpoint(t *testing.T) {
	s := newTestServer(t)
	user := s.signUp(t, "elf@example.com")

	w := s.do(t, http.MethodPost, "/api/shares", user.Tokens.AccessToken, gin.H{"platform": "Twitter"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/api/shares", user.Tokens.AccessToken, gin.H{"platform": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWithdrawalEndpoints(t *testing.T) {
	s := newTestServer(t)
	user := s.signUp(t, "elf@example.com")
	w := s.do(t, http.MethodPost, "/api/profile/complete", user.Tokens.AccessToken, gin.H{"username": "elf"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/withdrawals", user.Tokens.AccessToken, gin.H{
		"amount": "60", "payment_method": "paypal", "payment_details": gin.H{"email": "elf@example.com"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		ID     uuid.UUID `json:"id"`
		Status string    `json:"status"`
	}
	decode(t, w, &created)
	assert.Equal(t, "pending", created.Status)

	w = s.do(t, http.MethodPost, "/api/withdrawals", user.Tokens.AccessToken, gin.H{"amount": "50", "payment_method": "paypal"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/withdrawals", user.Tokens.AccessToken, gin.H{"amount": "0", "payment_method": "paypal"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/admin/withdrawals", user.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin, err := s.tokens.GenerateTokenPair(uuid.New(), "admin@example.com", true)
	require.NoError(t, err)

	w = s.do(t, http.MethodGet, "/api/admin/withdrawals", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending struct {
		Withdrawals []json.RawMessage `json:"withdrawals"`
	}
	decode(t, w, &pending)
	assert.Len(t, pending.Withdrawals, 1)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/admin/withdrawals/%s/reject", created.ID), admin.AccessToken, gin.H{"reason": "details missing"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/admin/withdrawals/%s/complete", created.ID), admin.AccessToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/admin/withdrawals/not-a-uuid/complete", admin.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	profile, err := s.store.GetProfile(context.Background(), user.Account.ID)
	require.NoError(t, err)
	assert.True(t, profile.Earnings.Equal(decimal.NewFromInt(100)))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("claim: %w", settlement.ErrAlreadySettled), http.StatusConflict},
		{fmt.Errorf("lookup: %w", database.ErrNotFound), http.StatusNotFound},
		{tracking.ErrDuplicateClick, http.StatusTooManyRequests},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusFor(tt.err), tt.err.Error())
	}
	assert.Equal(t, settlement.ErrAlreadySettled.Error(), errorMessage(fmt.Errorf("claim: %w", settlement.ErrAlreadySettled)))
}

func TestInternalErrorsAreNotEchoed(t *testing.T) {
	s := newTestServer(t)
	s.store.FailOn("CountProfiles", errors.New("connection reset by peer"))

	w := s.do(t, http.MethodGet, "/api/stats/live", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}
