package integration

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

// originStub 模拟动态源站：普通路径返回完整页面，/style.css 返回静态资源，
// /missing/ 返回 404，/cart/ 会下发 Set-Cookie。记录每次请求，便于断言回源次数与转发头。
type originStub struct {
	server   *http.Server
	listener net.Listener
	URL      string

	mu       sync.Mutex
	requests []RecordedRequest
	body     string
}

// RecordedRequest 捕获每次回源请求的方法/路径/Host/Headers。
type RecordedRequest struct {
	Method  string
	Path    string
	Host    string
	Headers http.Header
}

func newOriginStub(t *testing.T) *originStub {
	t.Helper()

	stub := &originStub{body: "origin v1"}
	mux := http.NewServeMux()
	mux.HandleFunc("/style.css", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = io.WriteString(w, "body{color:red}")
	})
	mux.HandleFunc("/missing/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, stub.page("not found"))
	})
	mux.HandleFunc("/cart/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Set-Cookie", "cart_session=1; Path=/")
		_, _ = io.WriteString(w, stub.page(r.URL.Path))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, stub.page(r.URL.Path))
	})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.recordRequest(r)
		mux.ServeHTTP(w, r)
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("unable to start origin stub listener: %v", err)
	}
	stub.server = &http.Server{Handler: handler}
	stub.listener = listener
	stub.URL = "http://" + listener.Addr().String()

	go func() {
		_ = stub.server.Serve(listener)
	}()
	t.Cleanup(stub.Close)
	return stub
}

func (s *originStub) Close() {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if s.server != nil {
		_ = s.server.Shutdown(ctx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// SetBody 模拟源站内容更新。
func (s *originStub) SetBody(body string) {
	s.mu.Lock()
	s.body = body
	s.mu.Unlock()
}

func (s *originStub) page(path string) string {
	s.mu.Lock()
	body := s.body
	s.mu.Unlock()
	return "<!DOCTYPE html><html><head><title>" + path + "</title></head><body>" +
		"<p>" + body + "</p>" + strings.Repeat("<p>filler paragraph</p>", 20) + "</body></html>"
}

func (s *originStub) recordRequest(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, RecordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Host:    r.Host,
		Headers: r.Header.Clone(),
	})
}

func (s *originStub) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]RecordedRequest, len(s.requests))
	copy(result, s.requests)
	return result
}

// Hits 返回指定路径被回源的次数。
func (s *originStub) Hits(path string) int {
	count := 0
	for _, req := range s.Requests() {
		if req.Path == path {
			count++
		}
	}
	return count
}
