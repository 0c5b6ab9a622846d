package routes_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	red "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/labsys-access/internal/core/domain"
	"github.com/arklim/labsys-access/internal/core/port"
	"github.com/arklim/labsys-access/internal/infra/config"
	rediscache "github.com/arklim/labsys-access/internal/repository/redis"
	"github.com/arklim/labsys-access/internal/transport/http/middleware"
	httproutes "github.com/arklim/labsys-access/internal/transport/http/routes"
	"github.com/arklim/labsys-access/internal/usecase"
)

type tokenAuth struct {
	tokens  map[string]domain.Identity
	origins *[]domain.Origin
}

func (a tokenAuth) Authenticate(_ context.Context, raw string) (domain.Identity, error) {
	if raw == "" {
		return domain.Identity{}, usecase.ErrUnauthenticated
	}
	identity, ok := a.tokens[raw]
	if !ok {
		return domain.Identity{}, usecase.ErrInvalidToken
	}
	return identity, nil
}

func (a tokenAuth) Login(_ context.Context, in usecase.LoginInput) (usecase.LoginResult, error) {
	if a.origins != nil {
		*a.origins = append(*a.origins, in.Origin)
	}
	return usecase.LoginResult{}, usecase.ErrInvalidCredentials
}

func (a tokenAuth) Logout(context.Context, domain.Identity, domain.Origin) {}

func (a tokenAuth) ChangePassword(context.Context, domain.Identity, string, string, domain.Origin) error {
	return nil
}

type emptyUsers struct{}

func (emptyUsers) Create(context.Context, usecase.CreateUserInput, domain.Origin) (domain.User, error) {
	return domain.User{}, nil
}
func (emptyUsers) Get(context.Context, string) (domain.User, error) {
	return domain.User{}, usecase.ErrUserNotFound
}
func (emptyUsers) List(context.Context, port.UserFilter) ([]domain.User, error) { return nil, nil }
func (emptyUsers) Update(context.Context, string, usecase.UpdateUserInput, domain.Origin) (domain.User, error) {
	return domain.User{}, nil
}
func (emptyUsers) Deactivate(context.Context, string, domain.Origin) (domain.User, error) {
	return domain.User{}, nil
}
func (emptyUsers) ResetPassword(context.Context, string, string, domain.Origin) error { return nil }

type emptyAudit struct{}

func (emptyAudit) List(context.Context, domain.AuditFilter) ([]domain.AuditEntry, error) {
	return nil, nil
}

func newRouter(t *testing.T, limiter *middleware.RateLimiter) *gin.Engine {
	t.Helper()
	return newRouterWith(t, limiter, nil, nil)
}

func newRouterWith(t *testing.T, limiter *middleware.RateLimiter, trustedProxies []string, origins *[]domain.Origin) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	cfg := &config.AppConfig{
		App:       config.AppSettings{Env: "test", TrustedProxies: trustedProxies},
		RateLimit: config.RateLimitSettings{LoginMaxAttempts: 2, WindowDuration: time.Minute},
	}
	auth := tokenAuth{origins: origins, tokens: map[string]domain.Identity{
		"admin-token": {ID: "admin-1", Role: domain.RoleAdministrator},
		"tech-token":  {ID: "tech-1", Role: domain.RoleTechnician},
	}}

	return httproutes.Register(httproutes.Dependencies{
		Config:      cfg,
		Logger:      zaptest.NewLogger(t),
		RateLimiter: limiter,
		Metrics:     metrics,
		Services:    httproutes.ServiceSet{Auth: auth, Users: emptyUsers{}, Audit: emptyAudit{}},
	})
}

func serve(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	return serveFrom(r, method, path, token, "")
}

func serveFrom(r *gin.Engine, method, path, token, forwardedFor string) *httptest.ResponseRecorder {
	body := bytes.NewBufferString(`{"email":"tech@lab.example","password":"nope"}`)
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:5555"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()
	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}}

	r := httproutes.Register(httproutes.Dependencies{
		Config: cfg,
		Logger: logger,
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestAdminRoutesRequireAdministrator(t *testing.T) {
	r := newRouter(t, nil)

	cases := []struct {
		path   string
		token  string
		status int
	}{
		{"/api/v1/users", "", http.StatusUnauthorized},
		{"/api/v1/users", "bogus", http.StatusUnauthorized},
		{"/api/v1/users", "tech-token", http.StatusForbidden},
		{"/api/v1/users", "admin-token", http.StatusOK},
		{"/api/v1/audit", "tech-token", http.StatusForbidden},
		{"/api/v1/audit", "admin-token", http.StatusOK},
		{"/api/v1/auth/me", "tech-token", http.StatusOK},
	}
	for _, tc := range cases {
		if w := serve(r, http.MethodGet, tc.path, tc.token); w.Code != tc.status {
			t.Fatalf("GET %s with %q: expected %d, got %d", tc.path, tc.token, tc.status, w.Code)
		}
	}
}

func newLimiter(t *testing.T) *middleware.RateLimiter {
	t.Helper()
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := red.NewClient(&red.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	store := rediscache.NewRateLimitRepository(client, rediscache.SlidingWindowConfig{KeyPrefix: "lab:rl", TTL: time.Minute})
	return middleware.NewRateLimiter(store, zaptest.NewLogger(t))
}

func TestLoginIsRateLimitedPerIP(t *testing.T) {
	r := newRouter(t, newLimiter(t))

	for i := 0; i < 2; i++ {
		if w := serve(r, http.MethodPost, "/api/v1/auth/login", ""); w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, w.Code)
		}
	}

	w := serve(r, http.MethodPost, "/api/v1/auth/login", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestForwardedForIgnoredWithoutTrustedProxy(t *testing.T) {
	var origins []domain.Origin
	r := newRouterWith(t, newLimiter(t), nil, &origins)

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		codes = append(codes, serveFrom(r, http.MethodPost, "/api/v1/auth/login", "", fmt.Sprintf("10.0.0.%d", i)).Code)
	}

	want := []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("spoofed X-Forwarded-For changed the limiter key: got %v, want %v", codes, want)
		}
	}
	for _, origin := range origins {
		if origin.IP != "203.0.113.7" {
			t.Fatalf("expected socket peer address in origin, got %q", origin.IP)
		}
	}
}

func TestForwardedForHonouredFromTrustedProxy(t *testing.T) {
	var origins []domain.Origin
	r := newRouterWith(t, newLimiter(t), []string{"203.0.113.0/24"}, &origins)

	for i := 0; i < 4; i++ {
		if w := serveFrom(r, http.MethodPost, "/api/v1/auth/login", "", fmt.Sprintf("198.51.100.%d", i)); w.Code != http.StatusUnauthorized {
			t.Fatalf("client %d behind trusted proxy: expected 401, got %d", i, w.Code)
		}
	}
	if len(origins) != 4 || origins[3].IP != "198.51.100.3" {
		t.Fatalf("expected forwarded client address in origin, got %+v", origins)
	}
}
