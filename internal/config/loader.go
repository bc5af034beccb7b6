package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/static-hub/static-hub/internal/settings"
)

// EnvConfigPath 指定配置文件路径的环境变量。
const EnvConfigPath = "STATIC_HUB_CONFIG"

// ResolvePath 依次使用显式路径、环境变量与默认的 config.toml。
func ResolvePath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	if env := strings.TrimSpace(os.Getenv(EnvConfigPath)); env != "" {
		return env
	}
	return "config.toml"
}

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	v := newViper(ResolvePath(path))
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}
	return decode(v)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyCacheDefaults(&cfg.Cache)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析存储目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 8080)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("EdgeCachePrefix", "/static-hub")

	v.SetDefault("Cache.Enabled", true)
	v.SetDefault("Cache.MobileCache", false)
	v.SetDefault("Cache.MinifyHTML", false)
	v.SetDefault("Cache.MinifyInlineCSS", false)
	v.SetDefault("Cache.MinifyInlineJS", false)
	v.SetDefault("Cache.LifespanHours", 10)
	v.SetDefault("Cache.BrowserCache", false)
	v.SetDefault("Cache.BrowserCacheTTL", "8760h")
	v.SetDefault("Cache.ImageDelivery", string(settings.ImageDeliveryPicture))
	v.SetDefault("Cache.NextGenFormat", "webp")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 8080
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	g.Origin = strings.TrimRight(strings.TrimSpace(g.Origin), "/")
	g.HostOverride = strings.ToLower(strings.TrimSpace(g.HostOverride))
	if strings.TrimSpace(g.EdgeCachePrefix) == "" {
		g.EdgeCachePrefix = "/static-hub"
	}
}

func applyCacheDefaults(c *CacheConfig) {
	c.ImageDelivery = strings.ToLower(strings.TrimSpace(c.ImageDelivery))
	if c.ImageDelivery == "" {
		c.ImageDelivery = string(settings.ImageDeliveryPicture)
	}
	c.NextGenFormat = strings.ToLower(strings.Trim(strings.TrimSpace(c.NextGenFormat), "."))
	if c.NextGenFormat == "" {
		c.NextGenFormat = "webp"
	}
	if c.BrowserCacheTTL.DurationValue() < 0 {
		c.BrowserCacheTTL = Duration(0)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
