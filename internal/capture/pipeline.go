// Package capture is the buffered capture-and-write stage: it receives a fully
// rendered response body, decides whether it looks like a page, runs the
// optional minify transform and persists the result plus a diagnostic
// signature through the cache store. Callers always get the original buffer
// back, whatever happened to the write.
package capture

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/static-hub/static-hub/internal/cache"
	"github.com/static-hub/static-hub/internal/minify"
	"github.com/static-hub/static-hub/internal/settings"
)

// MinPageBytes 小于该长度的响应不视为页面。
const MinPageBytes = 255

var closingRootMarker = []byte("</html>")

var (
	// ErrNotPage 表示内容过短或缺少 </html>，不写缓存。
	ErrNotPage = errors.New("response is not a cacheable page")
	// ErrCachingDisabled 表示当前设置关闭了页面缓存。
	ErrCachingDisabled = errors.New("caching disabled")
)

// Request 描述一次待写入的缓存请求。
type Request struct {
	Host     string
	URI      string
	Mobile   bool
	Settings settings.Settings
}

// Key 返回该请求对应的缓存 Key（已考虑移动缓存开关）。
func (r Request) Key() cache.Key {
	return cache.NewKey(r.Host, r.URI, r.Mobile, r.Settings.MobileCacheEnabled)
}

// Pipeline 串联页面判定、压缩与持久化。
type Pipeline struct {
	store       cache.Store
	transformer minify.Transformer
	logger      *logrus.Logger
	now         func() time.Time
}

// New 创建 Pipeline；transformer 为 nil 时使用默认 HTML 压缩器。
func New(store cache.Store, transformer minify.Transformer, logger *logrus.Logger) *Pipeline {
	if transformer == nil {
		transformer = minify.New()
	}
	return &Pipeline{
		store:       store,
		transformer: transformer,
		logger:      logger,
		now:         time.Now,
	}
}

// Process 尝试写入缓存并原样返回 buffer。所有写入错误在此吞掉，只记录日志。
func (p *Pipeline) Process(ctx context.Context, req Request, buffer []byte) []byte {
	entry, err := p.Write(ctx, req, buffer)
	if p.logger == nil {
		return buffer
	}
	fields := logrus.Fields{
		"action": "cache_write",
		"host":   req.Host,
		"uri":    req.URI,
		"device": req.Key().DeviceClass(),
	}
	switch {
	case err == nil:
		fields["path"] = entry.FilePath
		fields["size"] = entry.SizeBytes
		p.logger.WithFields(fields).Debug("cache_written")
	case errors.Is(err, ErrNotPage), errors.Is(err, ErrCachingDisabled):
		p.logger.WithFields(fields).Debug(err.Error())
	default:
		p.logger.WithError(err).WithFields(fields).Warn("cache_write_failed")
	}
	return buffer
}

// Write 与 Process 相同，但返回写入结果或错误，便于调用方诊断。
func (p *Pipeline) Write(ctx context.Context, req Request, buffer []byte) (*cache.Entry, error) {
	if !req.Settings.CachingEnabled {
		return nil, ErrCachingDisabled
	}
	if !IsPage(buffer) {
		return nil, ErrNotPage
	}
	if p.store == nil {
		return nil, errors.New("cache store unavailable")
	}

	payload := buffer
	if req.Settings.MinifyHTML {
		payload = p.transformer.Transform(buffer, minify.Options{
			InlineCSS: req.Settings.MinifyInlineCSS,
			InlineJS:  req.Settings.MinifyInlineJS,
		})
	}

	key := req.Key()
	now := p.now()
	signed := cache.AppendSignature(payload, now, key.DeviceClass())
	return p.store.Put(ctx, key, bytes.NewReader(signed), cache.PutOptions{ModTime: now})
}

// IsPage 判断 buffer 是否为完整页面：长度不小于 MinPageBytes 且包含 </html>。
func IsPage(buffer []byte) bool {
	if len(buffer) < MinPageBytes {
		return false
	}
	return bytes.Contains(bytes.ToLower(buffer), closingRootMarker)
}
