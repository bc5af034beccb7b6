package integration

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/static-hub/static-hub/internal/cache"
	"github.com/static-hub/static-hub/internal/proxy"
)

func postEvent(t *testing.T, s *stack, payload string) map[string]any {
	t.Helper()
	resp, body := s.doBody(t, http.MethodPost, "/-/events", payload, func(r *http.Request) {
		withAdminToken(r)
		r.Header.Set("Content-Type", "application/json")
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from events endpoint, got %d (%s)", resp.StatusCode, body)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode events response: %v", err)
	}
	return out
}

// cachedFiles 返回缓存根目录下除哨兵外的全部普通文件。
func cachedFiles(t *testing.T, root string) []string {
	t.Helper()
	sentinel := filepath.Join(root, cache.SentinelName)
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && path != sentinel {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk cache root: %v", err)
	}
	return files
}

func TestContentEventFlushesCache(t *testing.T) {
	s := newStack(t, nil)
	s.get(t, "/blog/", nil)
	s.get(t, "/blog/", mobileAgent)
	s.origin.SetBody("origin v2")

	_, body := s.get(t, "/blog/", nil)
	if !strings.Contains(body, "origin v1") {
		t.Fatalf("stale copy expected before the event")
	}

	out := postEvent(t, s, `{"type":"content_published","subject":"42"}`)
	if out["flushed"] != true {
		t.Fatalf("content events must flush, got %v", out)
	}

	entries, err := os.ReadDir(s.cfg.CacheRoot())
	if err != nil {
		t.Fatalf("read cache root: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != cache.SentinelName {
		t.Fatalf("only the sentinel should remain, got %v", entries)
	}

	resp, body := s.get(t, "/blog/", nil)
	if resp.Header.Get(proxy.HeaderCacheStatus) != proxy.StatusMiss || !strings.Contains(body, "origin v2") {
		t.Fatalf("fresh content expected after flush")
	}
	files := cachedFiles(t, s.cfg.CacheRoot())
	if len(files) != 1 || files[0] != s.artifact("blog", "index.html") {
		t.Fatalf("exactly the desktop /blog/ artifact should be repopulated, got %v", files)
	}
}

func TestCommentTransitionsOnlyFlushOnApproval(t *testing.T) {
	s := newStack(t, nil)
	s.get(t, "/blog/", nil)

	out := postEvent(t, s, `{"type":"comment_status_changed","old_status":"pending","new_status":"spam"}`)
	if out["flushed"] != false {
		t.Fatalf("pending -> spam must not flush, got %v", out)
	}
	if !exists(s.artifact("blog", "index.html")) {
		t.Fatalf("cache should be intact")
	}

	out = postEvent(t, s, `{"type":"comment_status_changed","old_status":"pending","new_status":"approved"}`)
	if out["flushed"] != true {
		t.Fatalf("pending -> approved must flush, got %v", out)
	}
	if exists(s.artifact("blog", "index.html")) {
		t.Fatalf("cache should be flushed")
	}
}

func TestPurgeSingleURLKeepsOtherPages(t *testing.T) {
	s := newStack(t, nil)
	s.get(t, "/blog/", nil)
	s.get(t, "/blog/", mobileAgent)
	s.get(t, "/about/", nil)

	resp, body := s.do(t, http.MethodPost, "/-/purge?url=/blog/", withAdminToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", resp.StatusCode, body)
	}
	if exists(s.artifact("blog", "index.html")) || exists(s.artifact(cache.MobileDir, "blog", "index.html")) {
		t.Fatalf("both device copies of /blog/ should be removed")
	}
	if !exists(s.artifact("about", "index.html")) {
		t.Fatalf("/about/ should stay cached")
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	s := newStack(t, nil)
	resp, _ := s.do(t, http.MethodPost, "/-/purge", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
}
