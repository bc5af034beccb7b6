package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"

	"github.com/static-hub/static-hub/internal/cache"
	"github.com/static-hub/static-hub/internal/capture"
	"github.com/static-hub/static-hub/internal/logging"
	"github.com/static-hub/static-hub/internal/policy"
	"github.com/static-hub/static-hub/internal/server"
	"github.com/static-hub/static-hub/internal/settings"
)

// 诊断响应头。
const (
	HeaderCacheStatus = "X-Static-Hub-Cache"
	HeaderReason      = "X-Static-Hub-Reason"

	StatusHit    = "HIT"
	StatusMiss   = "MISS"
	StatusBypass = "BYPASS"
)

const defaultContentType = "text/html; charset=utf-8"

// maxOriginBody 限制单个回源响应在内存中缓冲的大小。
const maxOriginBody = 32 << 20

// Handler 负责 orchestrate “策略判定 → 命中直出 → 回源 → 捕获写缓存” 的全流程，
// 对外暴露 Fiber handler，内部复用共享 http.Client 与磁盘缓存。
type Handler struct {
	client   *http.Client
	logger   *logrus.Logger
	store    cache.Store
	policy   *policy.Policy
	markers  *policy.MarkersHolder
	pipeline *capture.Pipeline
	settings *settings.Holder
}

// Options 汇总 Handler 依赖。
type Options struct {
	Client  *http.Client
	Logger  *logrus.Logger
	Store   cache.Store
	Policy  *policy.Policy
	Markers policy.Markers
	// MarkersHolder 非空时优先于 Markers，供配置热更新替换标记规则。
	MarkersHolder *policy.MarkersHolder
	Pipeline      *capture.Pipeline
	Settings      *settings.Holder
}

// NewHandler constructs a page handler with shared HTTP client/logger/store.
func NewHandler(opts Options) *Handler {
	p := opts.Policy
	if p == nil {
		p = policy.New(nil)
	}
	markers := opts.MarkersHolder
	if markers == nil {
		markers = policy.NewMarkersHolder(opts.Markers)
	}
	return &Handler{
		client:   opts.Client,
		logger:   opts.Logger,
		store:    opts.Store,
		policy:   p,
		markers:  markers,
		pipeline: opts.Pipeline,
		settings: opts.Settings,
	}
}

// SetMarkers 替换请求分类使用的标记规则，对之后到达的请求生效。
func (h *Handler) SetMarkers(m policy.Markers) {
	h.markers.Store(m)
}

// requestState 是单个请求在各阶段之间传递的上下文。
type requestState struct {
	route     *server.SiteRoute
	requestID string
	started   time.Time
	settings  settings.Settings
	policyCtx policy.RequestContext
	mobile    bool
	key       cache.Key
	reason    policy.Reason
}

// Handle 执行策略判定、缓存查找、回源与写缓存，任何阶段出错都会输出结构化日志。
func (h *Handler) Handle(c fiber.Ctx, route *server.SiteRoute) error {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	requestURI := c.OriginalURL()
	header := server.HTTPHeader(c)
	st := &requestState{
		route:     route,
		requestID: server.RequestID(c),
		started:   time.Now(),
		settings:  h.settings.Load(),
		policyCtx: h.markers.Load().Classify(c.Method(), route.Host, requestURI, header),
	}
	st.mobile = cache.IsMobile(st.policyCtx.UserAgent)
	st.key = cache.NewKey(route.Host, requestURI, st.mobile, st.settings.MobileCacheEnabled)
	st.reason = h.decide(st)

	if st.reason == policy.ReasonNone {
		result, err := h.store.Get(ctx, st.key)
		switch {
		case err == nil:
			defer result.Reader.Close()
			return h.serveCache(c, st, result)
		case errors.Is(err, cache.ErrNotFound):
			// miss, continue
		case errors.Is(err, cache.ErrInvalidKey):
			st.reason = policy.ReasonInvalidKey
		default:
			h.logger.WithError(err).
				WithFields(logging.RequestFields(route.Host, requestURI, st.key.DeviceClass(), StatusMiss, "")).
				Warn("cache_get_failed")
		}
	}

	return h.fetchOrigin(ctx, c, st, header)
}

// decide 合并全局开关与策略判定，返回拒绝原因。
func (h *Handler) decide(st *requestState) policy.Reason {
	if !st.settings.CachingEnabled {
		return policy.ReasonDisabled
	}
	return h.policy.Decide(st.policyCtx)
}

func (h *Handler) serveCache(c fiber.Ctx, st *requestState, result *cache.ReadResult) error {
	body, err := io.ReadAll(result.Reader)
	if err != nil {
		h.logResult(st, StatusHit, fiber.StatusBadGateway, err)
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("read cache failed: %v", err))
	}

	etag := ETag(body)
	c.Set(fiber.HeaderContentType, contentTypeFor(result.Entry.FilePath))
	c.Set(fiber.HeaderETag, etag)
	c.Set(fiber.HeaderLastModified, result.Entry.ModTime.UTC().Format(http.TimeFormat))
	c.Set(HeaderCacheStatus, StatusHit)
	if st.settings.MobileCacheEnabled {
		c.Set(fiber.HeaderVary, fiber.HeaderUserAgent)
	}

	if match := c.Get(fiber.HeaderIfNoneMatch); match != "" && etagMatches(match, etag) {
		c.Status(fiber.StatusNotModified)
		h.logResult(st, StatusHit, fiber.StatusNotModified, nil)
		return nil
	}

	c.Status(fiber.StatusOK)
	if c.Method() == http.MethodHead {
		c.Response().Header.SetContentLength(len(body))
		h.logResult(st, StatusHit, fiber.StatusOK, nil)
		return nil
	}

	h.logResult(st, StatusHit, fiber.StatusOK, nil)
	return c.Send(body)
}

func (h *Handler) fetchOrigin(ctx context.Context, c fiber.Ctx, st *requestState, header http.Header) error {
	req, err := h.buildOriginRequest(ctx, c, st.route, header)
	if err != nil {
		h.logResult(st, StatusBypass, fiber.StatusBadGateway, err)
		return h.writeError(c, fiber.StatusBadGateway, "origin_request_invalid")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.logResult(st, StatusBypass, fiber.StatusBadGateway, err)
		return h.writeError(c, fiber.StatusBadGateway, "origin_failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOriginBody+1))
	if err != nil {
		h.logResult(st, StatusBypass, fiber.StatusBadGateway, err)
		return h.writeError(c, fiber.StatusBadGateway, "origin_read_failed")
	}
	truncated := len(body) > maxOriginBody
	if truncated {
		body = body[:maxOriginBody]
	}

	status := StatusBypass
	if st.reason == policy.ReasonNone {
		h.markers.Load().ApplyResponse(&st.policyCtx, resp.StatusCode, resp.Header)
		st.reason = h.policy.Decide(st.policyCtx)
		if st.reason == policy.ReasonNone && truncated {
			st.reason = policy.ReasonTooLarge
		}
	}
	if st.reason == policy.ReasonNone {
		status = StatusMiss
		if c.Method() == http.MethodGet {
			body = h.pipeline.Process(ctx, capture.Request{
				Host:     st.route.Host,
				URI:      st.key.URI,
				Mobile:   st.mobile,
				Settings: st.settings,
			}, body)
		}
	}

	copyResponseHeaders(c, resp.Header)
	c.Set(HeaderCacheStatus, status)
	if st.reason != policy.ReasonNone {
		c.Set(HeaderReason, string(st.reason))
	}
	c.Status(resp.StatusCode)
	h.logResult(st, status, resp.StatusCode, nil)

	if c.Method() == http.MethodHead {
		return nil
	}
	return c.Send(body)
}

func (h *Handler) buildOriginRequest(ctx context.Context, c fiber.Ctx, route *server.SiteRoute, header http.Header) (*http.Request, error) {
	uri := c.OriginalURL()
	if !strings.HasPrefix(uri, "/") {
		uri = "/" + uri
	}
	target := strings.TrimRight(route.Origin.String(), "/") + uri

	var body io.Reader = http.NoBody
	if raw := c.Body(); len(raw) > 0 {
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, c.Method(), target, body)
	if err != nil {
		return nil, err
	}

	server.CopyHeaders(req.Header, header)
	// 捕获阶段需要未压缩的 HTML。
	req.Header.Del("Accept-Encoding")
	req.Header.Del(fiber.HeaderHost)
	req.Host = route.Host
	req.Header.Set("X-Forwarded-Host", server.HostHeader(c))
	if ip := c.IP(); ip != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	req.Header.Set("X-Forwarded-Proto", c.Scheme())
	req.Header.Set("X-Forwarded-Port", fmt.Sprintf("%d", route.ListenPort))
	return req, nil
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(st *requestState, cacheStatus string, status int, err error) {
	fields := logging.RequestFields(st.route.Host, st.key.URI, st.key.DeviceClass(), cacheStatus, string(st.reason))
	fields["action"] = "page"
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(st.started).Milliseconds()
	if st.requestID != "" {
		fields["request_id"] = st.requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("page_failed")
		return
	}
	if cacheStatus == StatusHit {
		fields["action"] = "cache_hit"
	}
	h.logger.WithFields(fields).Info("page_complete")
}

// ETag 以 xxh3 摘要生成强校验 ETag。
func ETag(body []byte) string {
	return fmt.Sprintf(`"%016x"`, xxh3.Hash(body))
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func contentTypeFor(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == "" || ext == ".html" || ext == ".htm" {
		return defaultContentType
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return defaultContentType
}

// 由 fiber 根据实际 body 重新计算的头部不透传。
var skippedResponseHeaders = map[string]struct{}{
	"Content-Length":   {},
	"Content-Encoding": {},
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) {
			continue
		}
		if _, skip := skippedResponseHeaders[http.CanonicalHeaderKey(key)]; skip {
			continue
		}
		for i, value := range values {
			if i == 0 {
				c.Set(key, value)
				continue
			}
			c.Response().Header.Add(key, value)
		}
	}
}
