package integration

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/static-hub/static-hub/internal/cache"
	"github.com/static-hub/static-hub/internal/capture"
	"github.com/static-hub/static-hub/internal/config"
	"github.com/static-hub/static-hub/internal/edgerules"
	"github.com/static-hub/static-hub/internal/invalidation"
	"github.com/static-hub/static-hub/internal/minify"
	"github.com/static-hub/static-hub/internal/policy"
	"github.com/static-hub/static-hub/internal/proxy"
	"github.com/static-hub/static-hub/internal/scheduler"
	"github.com/static-hub/static-hub/internal/server"
	"github.com/static-hub/static-hub/internal/server/routes"
	"github.com/static-hub/static-hub/internal/settings"
)

const adminToken = "integration-token"

// stack 按 serve 命令的顺序装配完整的缓存链路，事件接口走同步处理。
type stack struct {
	app         *fiber.App
	cfg         *config.Config
	origin      *originStub
	settings    *settings.Holder
	invalidator *invalidation.Invalidator
	sweeper     *scheduler.Sweeper
}

func newStack(t *testing.T, mutate func(*config.Config)) *stack {
	t.Helper()

	origin := newOriginStub(t)
	cfg := &config.Config{
		Global: config.GlobalConfig{
			ListenPort:      8080,
			StoragePath:     t.TempDir(),
			Origin:          origin.URL,
			UpstreamTimeout: config.Duration(5 * time.Second),
			AdminToken:      adminToken,
			EdgeCachePrefix: "/static-hub",
		},
		Cache: config.CacheConfig{
			Enabled:         true,
			MobileCache:     true,
			MinifyHTML:      true,
			LifespanHours:   10,
			BrowserCache:    true,
			BrowserCacheTTL: config.Duration(24 * time.Hour),
			ImageDelivery:   string(settings.ImageDeliveryRewrite),
			NextGenFormat:   "webp",
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	if err := cache.EnsureSentinel(cfg.CacheRoot()); err != nil {
		t.Fatalf("sentinel error: %v", err)
	}
	store, err := cache.NewStore(cfg.CacheRoot())
	if err != nil {
		t.Fatalf("store error: %v", err)
	}

	holder := settings.NewHolder(cfg.Settings())
	exclusions := policy.NewFileExclusionSet(cfg.ExclusionPath(), logger)
	dispatcher := invalidation.NewDispatcher()
	invalidator := invalidation.New(store, logger)
	invalidator.Register(dispatcher)

	site, err := server.NewSite(cfg)
	if err != nil {
		t.Fatalf("site error: %v", err)
	}
	handler := proxy.NewHandler(proxy.Options{
		Client:   server.NewOriginClient(cfg),
		Logger:   logger,
		Store:    store,
		Policy:   policy.New(exclusions, policy.RegisteredHooks()...),
		Markers:  cfg.Markers(),
		Pipeline: capture.New(store, minify.New(), logger),
		Settings: holder,
	})
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Site:       site,
		Proxy:      handler,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}

	generator := edgerules.NewGenerator(nil, cfg.Global.EdgeCachePrefix, cfg.Global.Origin, logger)
	routes.RegisterAdminRoutes(app, routes.AdminOptions{
		Token:       cfg.Global.AdminToken,
		Logger:      logger,
		Invalidator: invalidator,
		Site:        site,
		EdgeInput:   func() edgerules.Input { return generator.Input(holder.Load()) },
		Summary:     cfg.Summary,
	})

	return &stack{
		app:         app,
		cfg:         cfg,
		origin:      origin,
		settings:    holder,
		invalidator: invalidator,
		sweeper:     scheduler.NewSweeper(cfg.CacheRoot(), holder, time.Hour, logger),
	}
}

// do 以 example.com 为 Host 发起请求并读出响应体。
func (s *stack) do(t *testing.T, method, target string, mutate func(*http.Request)) (*http.Response, string) {
	t.Helper()
	return s.doBody(t, method, target, "", mutate)
}

func (s *stack) doBody(t *testing.T, method, target, payload string, mutate func(*http.Request)) (*http.Response, string) {
	t.Helper()
	var body io.Reader
	if payload != "" || method == http.MethodPost {
		body = strings.NewReader(payload)
	}
	req := httptest.NewRequest(method, "http://example.com"+target, body)
	req.Host = "example.com"
	if mutate != nil {
		mutate(req)
	}
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, string(data)
}

func (s *stack) get(t *testing.T, target string, mutate func(*http.Request)) (*http.Response, string) {
	t.Helper()
	return s.do(t, http.MethodGet, target, mutate)
}

// artifact 返回缓存文件路径。
func (s *stack) artifact(parts ...string) string {
	return filepath.Join(append([]string{s.cfg.CacheRoot(), "example.com"}, parts...)...)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func withAdminToken(r *http.Request) {
	r.Header.Set(routes.TokenHeader, adminToken)
}

func mobileAgent(r *http.Request) {
	r.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148")
}
