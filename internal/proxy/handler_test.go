package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/static-hub/static-hub/internal/cache"
	"github.com/static-hub/static-hub/internal/capture"
	"github.com/static-hub/static-hub/internal/config"
	"github.com/static-hub/static-hub/internal/policy"
	"github.com/static-hub/static-hub/internal/server"
	"github.com/static-hub/static-hub/internal/settings"
)

var pageBody = "<!DOCTYPE html><html><head><title>Blog</title></head><body>" +
	strings.Repeat("<p>hello world</p>", 20) + "</body></html>"

type pageFixture struct {
	app     *fiber.App
	root    string
	hits    *atomic.Int32
	holder  *settings.Holder
	handler *Handler
}

func newPageFixture(t *testing.T, originHandler http.HandlerFunc) *pageFixture {
	t.Helper()

	var hits atomic.Int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		originHandler(w, r)
	}))
	t.Cleanup(origin.Close)

	cfg := &config.Config{Global: config.GlobalConfig{ListenPort: 8080, Origin: origin.URL}}
	site, err := server.NewSite(cfg)
	if err != nil {
		t.Fatalf("NewSite failed: %v", err)
	}

	root := t.TempDir()
	store, err := cache.NewStore(root)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	holder := settings.NewHolder(settings.Settings{CachingEnabled: true, MobileCacheEnabled: true})
	handler := NewHandler(Options{
		Client:   server.NewOriginClient(cfg),
		Logger:   logger,
		Store:    store,
		Policy:   policy.New(policy.EmptyExclusions{}),
		Markers:  policy.DefaultMarkers(),
		Pipeline: capture.New(store, nil, logger),
		Settings: holder,
	})

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Site:       site,
		Proxy:      handler,
		ListenPort: 8080,
	})
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	return &pageFixture{app: app, root: root, hits: &hits, holder: holder, handler: handler}
}

func servePage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, pageBody)
}

func (f *pageFixture) get(t *testing.T, target string, mutate func(*http.Request)) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Host = "example.com"
	if mutate != nil {
		mutate(req)
	}
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestMissThenHit(t *testing.T) {
	f := newPageFixture(t, servePage)

	resp, body := f.get(t, "http://example.com/blog/", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get(HeaderCacheStatus) != StatusMiss {
		t.Fatalf("expected MISS, got %s", resp.Header.Get(HeaderCacheStatus))
	}
	if body != pageBody {
		t.Fatalf("miss must return the origin body unchanged")
	}

	artifact := filepath.Join(f.root, "example.com", "blog", "index.html")
	data, err := os.ReadFile(artifact)
	if err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	if !strings.Contains(string(data), "(desktop) -->") {
		t.Fatalf("artifact missing signature: %s", data)
	}

	resp, body = f.get(t, "http://example.com/blog/", nil)
	if resp.Header.Get(HeaderCacheStatus) != StatusHit {
		t.Fatalf("expected HIT, got %s", resp.Header.Get(HeaderCacheStatus))
	}
	if body != string(data) {
		t.Fatalf("hit must serve the persisted artifact")
	}
	if f.hits.Load() != 1 {
		t.Fatalf("origin should be called once, got %d", f.hits.Load())
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("unexpected content type %q", ct)
	}

	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatalf("hit should carry an ETag")
	}
	resp, _ = f.get(t, "http://example.com/blog/", func(r *http.Request) {
		r.Header.Set("If-None-Match", etag)
	})
	if resp.StatusCode != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", resp.StatusCode)
	}
}

func TestMobileVariantStoredSeparately(t *testing.T) {
	f := newPageFixture(t, servePage)
	ua := "Mozilla/5.0 (Linux; Android 14) Mobile Safari/537.36"
	resp, _ := f.get(t, "http://example.com/blog/", func(r *http.Request) {
		r.Header.Set("User-Agent", ua)
	})
	if resp.Header.Get(HeaderCacheStatus) != StatusMiss {
		t.Fatalf("expected MISS, got %s", resp.Header.Get(HeaderCacheStatus))
	}
	if _, err := os.Stat(filepath.Join(f.root, "example.com", "mobile", "blog", "index.html")); err != nil {
		t.Fatalf("mobile artifact not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.root, "example.com", "blog", "index.html")); !os.IsNotExist(err) {
		t.Fatalf("desktop artifact should not exist yet")
	}
}

func TestLoggedInBypassesCache(t *testing.T) {
	f := newPageFixture(t, servePage)
	resp, body := f.get(t, "http://example.com/blog/", func(r *http.Request) {
		r.Header.Set("Cookie", "wordpress_logged_in_abc=1")
	})
	if resp.Header.Get(HeaderCacheStatus) != StatusBypass {
		t.Fatalf("expected BYPASS, got %s", resp.Header.Get(HeaderCacheStatus))
	}
	if resp.Header.Get(HeaderReason) != string(policy.ReasonLoggedIn) {
		t.Fatalf("unexpected reason %q", resp.Header.Get(HeaderReason))
	}
	if body != pageBody {
		t.Fatalf("bypass must still deliver the page")
	}
	if _, err := os.Stat(filepath.Join(f.root, "example.com")); !os.IsNotExist(err) {
		t.Fatalf("nothing should be cached for logged-in users")
	}
}

func TestSetMarkersChangesClassification(t *testing.T) {
	f := newPageFixture(t, servePage)

	resp, _ := f.get(t, "http://example.com/blog/?ref=home", nil)
	if resp.Header.Get(HeaderReason) != string(policy.ReasonQueryString) {
		t.Fatalf("未忽略的查询参数应绕过缓存，实际 reason=%q", resp.Header.Get(HeaderReason))
	}

	markers := policy.DefaultMarkers()
	markers.IgnoredQueryArgs = append(markers.IgnoredQueryArgs, "ref")
	f.handler.SetMarkers(markers)

	resp, _ = f.get(t, "http://example.com/blog/?ref=home", nil)
	if resp.Header.Get(HeaderCacheStatus) != StatusMiss {
		t.Fatalf("替换标记后 ref 应被忽略，实际 %s reason=%q",
			resp.Header.Get(HeaderCacheStatus), resp.Header.Get(HeaderReason))
	}
	resp, _ = f.get(t, "http://example.com/blog/?ref=other", nil)
	if resp.Header.Get(HeaderCacheStatus) != StatusHit {
		t.Fatalf("忽略的参数应命中同一缓存项，实际 %s", resp.Header.Get(HeaderCacheStatus))
	}
}

func TestOriginErrorNotCached(t *testing.T) {
	f := newPageFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, pageBody)
	})
	resp, _ := f.get(t, "http://example.com/missing/", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected origin status passthrough, got %d", resp.StatusCode)
	}
	if resp.Header.Get(HeaderReason) != string(policy.ReasonError) {
		t.Fatalf("unexpected reason %q", resp.Header.Get(HeaderReason))
	}
}

func TestNonPageResponseNotCached(t *testing.T) {
	f := newPageFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true}`)
	})
	resp, body := f.get(t, "http://example.com/data.json", nil)
	if resp.Header.Get(HeaderCacheStatus) != StatusMiss {
		t.Fatalf("expected MISS, got %s", resp.Header.Get(HeaderCacheStatus))
	}
	if body != `{"ok":true}` {
		t.Fatalf("unexpected body %s", body)
	}
	if _, err := os.Stat(filepath.Join(f.root, "example.com", "data.json")); !os.IsNotExist(err) {
		t.Fatalf("non-page content must not be cached")
	}
}

func TestCachingDisabledBypasses(t *testing.T) {
	f := newPageFixture(t, servePage)
	f.holder.Store(settings.Settings{CachingEnabled: false})
	resp, _ := f.get(t, "http://example.com/blog/", nil)
	if resp.Header.Get(HeaderReason) != string(policy.ReasonDisabled) {
		t.Fatalf("unexpected reason %q", resp.Header.Get(HeaderReason))
	}
}

func TestOriginReceivesForwardedHeaders(t *testing.T) {
	var seen http.Header
	var seenHost, seenURI string
	f := newPageFixture(t, func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		seenHost = r.Host
		seenURI = r.URL.RequestURI()
		servePage(w, r)
	})
	f.get(t, "http://example.com/blog/?utm_source=news", func(r *http.Request) {
		r.Header.Set("Accept-Encoding", "gzip")
	})
	if seenHost != "example.com" {
		t.Fatalf("origin should see the public host, got %s", seenHost)
	}
	if seenURI != "/blog/?utm_source=news" {
		t.Fatalf("query string must be forwarded, got %s", seenURI)
	}
	if seen.Get("X-Forwarded-Host") != "example.com" {
		t.Fatalf("missing X-Forwarded-Host: %v", seen)
	}
	if seen.Get("X-Forwarded-Port") != "8080" {
		t.Fatalf("missing X-Forwarded-Port: %v", seen)
	}
}

func TestETagHelpers(t *testing.T) {
	etag := ETag([]byte("abc"))
	if !strings.HasPrefix(etag, `"`) || len(etag) != 18 {
		t.Fatalf("unexpected etag %s", etag)
	}
	if !etagMatches(`W/`+etag+`, "other"`, etag) {
		t.Fatalf("weak comparison should match")
	}
	if etagMatches(`"other"`, etag) {
		t.Fatalf("different etag should not match")
	}
	if got := contentTypeFor("/tmp/x/index.html"); got != defaultContentType {
		t.Fatalf("unexpected content type %s", got)
	}
}
