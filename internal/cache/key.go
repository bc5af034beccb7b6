package cache

import (
	"errors"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

const (
	// DefaultDocument 是以 "/" 结尾的 URI 所使用的文件名。
	DefaultDocument = "index.html"
	// MobileDir 是移动端变体所在的子目录。
	MobileDir = "mobile"
)

// ErrInvalidKey 表示请求无法映射为安全的缓存路径，调用方应视为“不缓存”。
var ErrInvalidKey = errors.New("invalid cache key")

// Key 唯一定位一个缓存条目。Mobile 为最终生效的设备分类（已考虑移动缓存开关）。
type Key struct {
	Host   string
	URI    string
	Mobile bool
}

// NewKey 根据设备识别结果与移动缓存开关构造 Key。
func NewKey(host, uri string, isMobile, mobileEnabled bool) Key {
	return Key{Host: host, URI: uri, Mobile: isMobile && mobileEnabled}
}

// DeviceClass 返回用于日志与签名的设备分类名称。
func (k Key) DeviceClass() string {
	if k.Mobile {
		return "mobile"
	}
	return "desktop"
}

// Resolver 把缓存 Key 映射为 cacheRoot 下的绝对路径，纯函数、无副作用。
type Resolver struct {
	root string
}

// NewResolver 以 cacheRoot 构造 Resolver，root 会被转换为绝对路径。
func NewResolver(root string) (Resolver, error) {
	if strings.TrimSpace(root) == "" {
		return Resolver{}, errors.New("cache root required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return Resolver{}, err
	}
	return Resolver{root: abs}, nil
}

// Root 返回缓存根目录。
func (r Resolver) Root() string {
	return r.root
}

// Resolve 计算 cacheRoot/host[/mobile]/uri[index.html]。含 ".." 路径段的 URI、
// 空 host 或非法 host 都返回 ErrInvalidKey。
func (r Resolver) Resolve(host, requestURI string, isMobile, mobileEnabled bool) (string, error) {
	if r.root == "" {
		return "", ErrInvalidKey
	}
	if !validHost(host) {
		return "", ErrInvalidKey
	}
	uriPath := stripQuery(requestURI)
	if uriPath == "" || hasTraversal(uriPath) {
		return "", ErrInvalidKey
	}
	if !strings.HasPrefix(uriPath, "/") {
		uriPath = "/" + uriPath
	}

	parts := []string{r.root, host}
	if isMobile && mobileEnabled {
		parts = append(parts, MobileDir)
	}
	parts = append(parts, filepath.FromSlash(uriPath))
	if strings.HasSuffix(uriPath, "/") {
		parts = append(parts, DefaultDocument)
	}

	full := filepath.Join(parts...)
	hostRoot := filepath.Join(r.root, host)
	if full == hostRoot || !strings.HasPrefix(full, hostRoot+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return full, nil
}

// Path 是 Resolve 的 Key 版本。
func (r Resolver) Path(key Key) (string, error) {
	return r.Resolve(key.Host, key.URI, key.Mobile, true)
}

// ResolveHost 优先使用部署级 override，其次使用请求 Host 头（去掉端口）。
// 两者均为空或结果不是合法目录名时返回 ErrInvalidKey。
func ResolveHost(override, hostHeader string) (string, error) {
	host := normalizeHost(override)
	if host == "" {
		host = normalizeHost(hostHeader)
	}
	if !validHost(host) {
		return "", ErrInvalidKey
	}
	return host, nil
}

func normalizeHost(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	} else if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		raw = strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
	}
	return strings.TrimSuffix(raw, ".")
}

func validHost(host string) bool {
	if host == "" || host == "." || host == ".." {
		return false
	}
	if strings.ContainsAny(host, `/\`) || strings.Contains(host, "..") {
		return false
	}
	return true
}

func stripQuery(uri string) string {
	if idx := strings.IndexAny(uri, "?#"); idx >= 0 {
		return uri[:idx]
	}
	return uri
}

// hasTraversal 同时检查原始与百分号解码后的路径，防止 %2e%2e 绕过。
// 只有整段等于 ".." 才算上级目录，"/release-1..2/" 这类名称合法。
func hasTraversal(uriPath string) bool {
	decoded, err := url.PathUnescape(uriPath)
	if err != nil {
		return true
	}
	for _, p := range []string{uriPath, decoded} {
		if strings.Contains(p, `\`) || strings.ContainsRune(p, 0) {
			return true
		}
		for _, segment := range strings.Split(p, "/") {
			if segment == ".." {
				return true
			}
		}
	}
	return false
}
