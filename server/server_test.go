package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/beaver-signin/cache"
	"github.com/gobeaver/beaver-signin/config"
	"github.com/gobeaver/beaver-signin/database"
	"github.com/gobeaver/beaver-signin/krypto"
	"github.com/gobeaver/beaver-signin/logging"
	"github.com/gobeaver/beaver-signin/notify"
	"github.com/gobeaver/beaver-signin/oauth"
	"github.com/gobeaver/beaver-signin/session"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Environment:      "development",
		ListenAddr:       "127.0.0.1:0",
		BaseURL:          "http://localhost:8080",
		AppSecret:        strings.Repeat("s", 32),
		HTTPTimeout:      5 * time.Second,
		SessionTTL:       time.Hour,
		StateTTL:         10 * time.Minute,
		ShutdownTimeout:  5 * time.Second,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
		Providers: ProvidersConfig{
			GoogleClientID:     "google-id",
			GoogleClientSecret: "google-secret",
			MicrosoftTenant:    "common",
			Offline:            true,
		},
		Database: database.Config{
			Driver:       "sqlite",
			Database:     filepath.Join(t.TempDir(), "signin.db"),
			MaxOpenConns: 1,
			AutoMigrate:  true,
		},
		Cache:  cache.Config{Driver: "memory"},
		Notify: notify.DefaultConfig(),
	}
}

func build(t *testing.T, cfg Config) *Server {
	t.Helper()
	srv, err := Build(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"relative base url", func(c *Config) { c.BaseURL = "localhost:8080" }, true},
		{"base url with path", func(c *Config) { c.BaseURL = "http://localhost/app" }, true},
		{"trailing slash allowed", func(c *Config) { c.BaseURL = "http://localhost:8080/" }, false},
		{"plain http in production", func(c *Config) { c.Environment = "production" }, true},
		{"https in production", func(c *Config) {
			c.Environment = "production"
			c.BaseURL = "https://invoices.example.com"
		}, false},
		{"zero state ttl", func(c *Config) { c.StateTTL = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigLoadsFromEnvironment(t *testing.T) {
	t.Setenv("SIGNIN_BASE_URL", "https://invoices.example.com")
	t.Setenv("SIGNIN_APP_SECRET", strings.Repeat("a", 32))
	t.Setenv("SIGNIN_GOOGLE_CLIENT_ID", "gid")
	t.Setenv("SIGNIN_DB_DRIVER", "postgres")
	t.Setenv("SIGNIN_CACHE_DRIVER", "redis")
	t.Setenv("SIGNIN_STATE_TTL", "5m")

	var cfg Config
	require.NoError(t, config.Load(&cfg, config.WithFiles()))

	assert.Equal(t, "https://invoices.example.com", cfg.BaseURL)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 5*time.Minute, cfg.StateTTL)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "gid", cfg.Providers.GoogleClientID)
	assert.Equal(t, "common", cfg.Providers.MicrosoftTenant)
	assert.True(t, cfg.Providers.Offline)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "Invoice Easy", cfg.Notify.AppName)
	assert.False(t, cfg.Production())
}

func TestConfigRequiresBaseURLAndSecret(t *testing.T) {
	t.Setenv("SIGNIN_BASE_URL", "")
	t.Setenv("SIGNIN_APP_SECRET", "")

	var cfg Config
	err := config.Load(&cfg, config.WithFiles())

	var missing *config.MissingError
	require.ErrorAs(t, err, &missing)
	assert.ElementsMatch(t, []string{"SIGNIN_BASE_URL", "SIGNIN_APP_SECRET"}, missing.Names)
}

func TestHealth(t *testing.T) {
	srv := build(t, testConfig(t))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, map[string]string{"database": "ok", "cache": "ok"}, body.Checks)
	assert.Equal(t, map[string]bool{oauth.Google: true, oauth.Microsoft: false, oauth.Apple: false}, body.Providers)

	require.NoError(t, database.Close(srv.deps.DB))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthWithoutCache(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Driver = "none"
	srv := build(t, cfg)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cache":"disabled"`)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := build(t, testConfig(t))
	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/auth/google", nil))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
	assert.Contains(t, rec.Body.String(), `signin_initiations_total{provider="google",result="redirected"} 1`)
}

func TestSignInRoutes(t *testing.T) {
	srv := build(t, testConfig(t))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/google?signup=true", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	u, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "google-id", u.Query().Get("client_id"))
	assert.Equal(t, "http://localhost:8080/api/auth/google/callback", u.Query().Get("redirect_uri"))
	assert.Equal(t, "offline", u.Query().Get("access_type"))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/apple", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Apple OAuth not configured. Please set SIGNIN_APPLE_CLIENT_ID, SIGNIN_APPLE_TEAM_ID, SIGNIN_APPLE_KEY_ID and SIGNIN_APPLE_PRIVATE_KEY environment variables."}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/microsoft", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please set SIGNIN_MICROSOFT_CLIENT_ID and SIGNIN_MICROSOFT_CLIENT_SECRET environment variables.")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?error=access_denied", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://localhost:8080/login?error=You%20denied%20access%20to%20your%20Google%20account", rec.Header().Get("Location"))
}

func TestSessionEndpoints(t *testing.T) {
	srv := build(t, testConfig(t))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, _, err := srv.deps.Sessions.Issue("acct-1", "jane@example.com", oauth.Google)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: token})
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "acct-1", body.AccountID)
	assert.Equal(t, "jane@example.com", body.Email)
	assert.Equal(t, oauth.Google, body.Provider)
	assert.WithinDuration(t, time.Now().Add(time.Hour), body.ExpiresAt, time.Minute)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: token + "x"})
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, session.CookieName, cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestBuildErrors(t *testing.T) {
	t.Run("weak app secret", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.AppSecret = "short"
		_, err := Build(context.Background(), cfg, logging.Discard())
		assert.ErrorIs(t, err, krypto.ErrWeakSecret)
	})

	t.Run("unusable apple key", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Providers.AppleClientID = "com.example.web"
		cfg.Providers.AppleTeamID = "TEAM123456"
		cfg.Providers.AppleKeyID = "KEY1234567"
		cfg.Providers.ApplePrivateKey = "not a pem"
		_, err := Build(context.Background(), cfg, logging.Discard())
		assert.ErrorIs(t, err, oauth.ErrInvalidConfig)
	})

	t.Run("unknown cache driver", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Cache.Driver = "memcached"
		_, err := Build(context.Background(), cfg, logging.Discard())
		assert.ErrorIs(t, err, cache.ErrInvalidDriver)
	})
}

type countingWaiter struct{ waited atomic.Int32 }

func (w *countingWaiter) Wait() { w.waited.Add(1) }

func TestServeShutsDownGracefully(t *testing.T) {
	srv := build(t, testConfig(t))
	waiter := &countingWaiter{}
	srv.deps.Background = waiter
	var closed atomic.Int32
	srv.deps.Closers = append(srv.deps.Closers, func() error {
		closed.Add(1)
		return nil
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Equal(t, int32(1), waiter.waited.Load())
	assert.Equal(t, int32(1), closed.Load())
	assert.NoError(t, srv.Close(), "closers run once")
}

func TestNewRequiresComponents(t *testing.T) {
	_, err := New(testConfig(t), Deps{})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}
