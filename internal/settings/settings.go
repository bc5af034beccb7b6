// Package settings holds the immutable configuration snapshot consumed by the
// cache engine. The engine never mutates a Settings value; a single owner (the
// config watcher in main) builds a new snapshot and swaps it into a Holder.
package settings

import (
	"sync/atomic"
	"time"
)

// ImageDelivery 描述次世代图片的交付方式。
type ImageDelivery string

const (
	// ImageDeliveryRewrite 通过服务器重写规则按 Accept 协商返回同名次世代图片。
	ImageDeliveryRewrite ImageDelivery = "rewrite"
	// ImageDeliveryPicture 由页面输出 <picture> 标签，服务器无需参与。
	ImageDeliveryPicture ImageDelivery = "picture"
)

// Settings 是缓存引擎所需配置的只读快照，每次操作读取一次。
type Settings struct {
	CachingEnabled     bool
	MobileCacheEnabled bool
	MinifyHTML         bool
	MinifyInlineCSS    bool
	MinifyInlineJS     bool
	// LifespanHours <= 0 表示关闭过期清理。
	LifespanHours       int
	BrowserCacheEnabled bool
	BrowserCacheTTL     time.Duration
	ImageDelivery       ImageDelivery
	// NextGenFormat 为协商扩展名，例如 webp、avif。
	NextGenFormat string
}

// Lifespan 以 time.Duration 返回页面缓存寿命，关闭时返回 0。
func (s Settings) Lifespan() time.Duration {
	if s.LifespanHours <= 0 {
		return 0
	}
	return time.Duration(s.LifespanHours) * time.Hour
}

// BrowserCacheSeconds 返回浏览器缓存 TTL（秒），功能关闭时返回 0。
func (s Settings) BrowserCacheSeconds() int64 {
	if !s.BrowserCacheEnabled {
		return 0
	}
	return int64(s.BrowserCacheTTL / time.Second)
}

// Holder 持有当前生效的 Settings 快照，读取无锁。
type Holder struct {
	current atomic.Pointer[Settings]
}

// NewHolder 使用初始快照创建 Holder。
func NewHolder(initial Settings) *Holder {
	h := &Holder{}
	h.Store(initial)
	return h
}

// Load 返回当前快照的副本。
func (h *Holder) Load() Settings {
	if h == nil {
		return Settings{}
	}
	if s := h.current.Load(); s != nil {
		return *s
	}
	return Settings{}
}

// Store 替换当前快照，仅供配置的唯一持有者调用。
func (h *Holder) Store(s Settings) {
	snapshot := s
	h.current.Store(&snapshot)
}
