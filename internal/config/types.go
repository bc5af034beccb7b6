package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/static-hub/static-hub/internal/policy"
	"github.com/static-hub/static-hub/internal/settings"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 存储目录下的固定子路径。
const (
	PagesDir      = "pages"
	PrivateDir    = "private"
	ConfigDir     = "config"
	ExclusionFile = "exclusions.yaml"
)

// GlobalConfig 描述进程级参数：监听、日志、存储、源站与规则文件位置。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	Origin          string   `mapstructure:"Origin"`
	HostOverride    string   `mapstructure:"HostOverride"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	AdminToken      string   `mapstructure:"AdminToken"`
	ApacheRulesPath string   `mapstructure:"ApacheRulesPath"`
	NginxRulesPath  string   `mapstructure:"NginxRulesPath"`
	EdgeCachePrefix string   `mapstructure:"EdgeCachePrefix"`
}

// CacheConfig 对应 [Cache] 段，映射为 settings.Settings。
type CacheConfig struct {
	Enabled         bool     `mapstructure:"Enabled"`
	MobileCache     bool     `mapstructure:"MobileCache"`
	MinifyHTML      bool     `mapstructure:"MinifyHTML"`
	MinifyInlineCSS bool     `mapstructure:"MinifyInlineCSS"`
	MinifyInlineJS  bool     `mapstructure:"MinifyInlineJS"`
	LifespanHours   int      `mapstructure:"LifespanHours"`
	BrowserCache    bool     `mapstructure:"BrowserCache"`
	BrowserCacheTTL Duration `mapstructure:"BrowserCacheTTL"`
	ImageDelivery   string   `mapstructure:"ImageDelivery"`
	NextGenFormat   string   `mapstructure:"NextGenFormat"`
}

// PolicyConfig 对应 [Policy] 段，空列表表示沿用内置默认值。
type PolicyConfig struct {
	SessionCookies   []string `mapstructure:"SessionCookies"`
	PasswordCookies  []string `mapstructure:"PasswordCookies"`
	AdminPaths       []string `mapstructure:"AdminPaths"`
	AsyncPaths       []string `mapstructure:"AsyncPaths"`
	RESTPrefixes     []string `mapstructure:"RESTPrefixes"`
	FeedSuffixes     []string `mapstructure:"FeedSuffixes"`
	IgnoredQueryArgs []string `mapstructure:"IgnoredQueryArgs"`
	BypassHeader     string   `mapstructure:"BypassHeader"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Cache  CacheConfig  `mapstructure:"Cache"`
	Policy PolicyConfig `mapstructure:"Policy"`
}

// CacheRoot 返回页面缓存根目录。
func (c *Config) CacheRoot() string {
	return filepath.Join(c.Global.StoragePath, PagesDir)
}

// PrivateRoot 返回私有子树目录，边缘规则会锁定它。
func (c *Config) PrivateRoot() string {
	return filepath.Join(c.Global.StoragePath, PrivateDir)
}

// ExclusionPath 返回编译后的排除规则文件路径，与缓存根目录并列以免被全量清理删除。
func (c *Config) ExclusionPath() string {
	return filepath.Join(c.Global.StoragePath, ConfigDir, ExclusionFile)
}

// Settings 构建缓存引擎使用的只读快照。
func (c *Config) Settings() settings.Settings {
	cc := c.Cache
	return settings.Settings{
		CachingEnabled:      cc.Enabled,
		MobileCacheEnabled:  cc.MobileCache,
		MinifyHTML:          cc.MinifyHTML,
		MinifyInlineCSS:     cc.MinifyInlineCSS,
		MinifyInlineJS:      cc.MinifyInlineJS,
		LifespanHours:       cc.LifespanHours,
		BrowserCacheEnabled: cc.BrowserCache,
		BrowserCacheTTL:     cc.BrowserCacheTTL.DurationValue(),
		ImageDelivery:       settings.ImageDelivery(cc.ImageDelivery),
		NextGenFormat:       cc.NextGenFormat,
	}
}

// Markers 在内置分类规则上叠加 [Policy] 段的覆盖项。
func (c *Config) Markers() policy.Markers {
	m := policy.DefaultMarkers()
	p := c.Policy
	override := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = append([]string(nil), src...)
		}
	}
	override(&m.SessionCookies, p.SessionCookies)
	override(&m.PasswordCookies, p.PasswordCookies)
	override(&m.AdminPaths, p.AdminPaths)
	override(&m.AsyncPaths, p.AsyncPaths)
	override(&m.RESTPrefixes, p.RESTPrefixes)
	override(&m.FeedSuffixes, p.FeedSuffixes)
	override(&m.IgnoredQueryArgs, p.IgnoredQueryArgs)
	if header := strings.TrimSpace(p.BypassHeader); header != "" {
		m.BypassHeader = header
	}
	return m
}

// Summary 输出启动日志与状态接口使用的配置摘要，不包含 AdminToken。
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"listen_port":    c.Global.ListenPort,
		"origin":         c.Global.Origin,
		"storage_path":   c.Global.StoragePath,
		"cache_enabled":  c.Cache.Enabled,
		"mobile_cache":   c.Cache.MobileCache,
		"minify_html":    c.Cache.MinifyHTML,
		"lifespan_hours": c.Cache.LifespanHours,
		"browser_cache":  c.Cache.BrowserCache,
		"image_delivery": c.Cache.ImageDelivery,
		"admin_enabled":  c.Global.AdminToken != "",
	}
}
