package edgerules

import (
	"fmt"
	"strings"

	"github.com/static-hub/static-hub/internal/settings"
)

const (
	// BeginMarker / EndMarker 包裹所有生成的配置块。
	BeginMarker = "# BEGIN static-hub"
	EndMarker   = "# END static-hub"

	// DefaultCachePrefix 是存储目录在站点上暴露的 URL 前缀。
	DefaultCachePrefix = "/static-hub"
	// PrivateDir 是存储目录下的私有子树名称。
	PrivateDir = "private"
)

// 浏览器缓存覆盖的静态资源扩展名。
var assetExtensions = []string{
	"css", "js", "gif", "jpe?g", "png", "svg", "ico", "webp", "avif", "woff2?", "ttf", "eot",
}

// 允许从私有子树转发到源站的资源扩展名。
var privateAllowList = []string{"css", "js", "gif", "jpe?g", "png", "svg", "webp", "avif", "woff2?"}

// 可协商为次世代格式的原始图片扩展名。
var negotiableImages = []string{"jpe?g", "png", "gif"}

// Input 是渲染的全部输入，Render 只依赖它。
type Input struct {
	Settings settings.Settings
	// CachePrefix 为存储目录的 URL 前缀，例如 /static-hub。
	CachePrefix string
	// Origin 为私有资源转发的源站地址，为空时不生成转发规则。
	Origin string
}

func (in Input) privatePrefix() string {
	prefix := strings.TrimRight(strings.TrimSpace(in.CachePrefix), "/")
	if prefix == "" {
		prefix = DefaultCachePrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix + "/" + PrivateDir + "/"
}

func (in Input) origin() string {
	return strings.TrimRight(strings.TrimSpace(in.Origin), "/")
}

func (in Input) ttlSeconds() int64 {
	ttl := in.Settings.BrowserCacheSeconds()
	if ttl < 0 {
		return 0
	}
	return ttl
}

func (in Input) nextGenEnabled() bool {
	return in.Settings.ImageDelivery == settings.ImageDeliveryRewrite && in.nextGenFormat() != ""
}

func (in Input) nextGenFormat() string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(in.Settings.NextGenFormat), "."))
}

// Render 以指定方言渲染完整的标记块。
func Render(dialect string, in Input) (string, error) {
	d, ok := Resolve(dialect)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDialect, dialect)
	}
	return wrap(d.Render(in)), nil
}

func wrap(body string) string {
	var b strings.Builder
	b.WriteString(BeginMarker)
	b.WriteString("\n")
	if body = strings.TrimSpace(body); body != "" {
		b.WriteString(body)
		b.WriteString("\n")
	}
	b.WriteString(EndMarker)
	b.WriteString("\n")
	return b.String()
}

func extPattern(exts []string) string {
	return `\.(` + strings.Join(exts, "|") + `)$`
}

// FormatTTL 选用能整除的最大时间单位输出 nginx 风格的时长字面量，
// 依次尝试 y、M、w、d、h、m、s。
func FormatTTL(seconds int64) string {
	if seconds <= 0 {
		return "0s"
	}
	units := []struct {
		suffix string
		size   int64
	}{
		{"y", 365 * 24 * 3600},
		{"M", 30 * 24 * 3600},
		{"w", 7 * 24 * 3600},
		{"d", 24 * 3600},
		{"h", 3600},
		{"m", 60},
	}
	for _, unit := range units {
		if seconds%unit.size == 0 {
			return fmt.Sprintf("%d%s", seconds/unit.size, unit.suffix)
		}
	}
	return fmt.Sprintf("%ds", seconds)
}
