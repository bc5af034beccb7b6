package edgerules

import (
	"fmt"
	"strings"
)

// DialectNginx 是基于 location 块的反向代理方言键。
const DialectNginx = "nginx"

const nginxSuffixVar = "$static_hub_suffix"

func init() {
	MustRegister(Dialect{
		Key:         DialectNginx,
		Description: "nginx (server-level include, location blocks)",
		Render:      renderNginx,
	})
}

func renderNginx(in Input) string {
	ttl := in.ttlSeconds()
	blocks := []string{nginxPrivate(in)}

	if in.nextGenEnabled() {
		blocks = append(blocks, nginxNextGen(in.nextGenFormat(), ttl))
	}
	if ttl > 0 {
		exts := assetExtensions
		if in.nextGenEnabled() {
			// 图片已由协商块处理。
			exts = withoutImages(assetExtensions)
		}
		blocks = append(blocks, nginxBrowserCache(exts, ttl))
	}
	return strings.Join(blocks, "\n\n")
}

// nginxPrivate 无条件生成：私有子树禁止直接访问，仅白名单资源转发给源站鉴权。
func nginxPrivate(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "location ^~ %s {\n", in.privatePrefix())
	if origin := in.origin(); origin != "" {
		fmt.Fprintf(&b, "    location ~* %s {\n", extPattern(privateAllowList))
		fmt.Fprintf(&b, "        allow all;\n")
		fmt.Fprintf(&b, "        proxy_set_header Host $host;\n")
		fmt.Fprintf(&b, "        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;\n")
		fmt.Fprintf(&b, "        proxy_pass %s;\n", origin)
		fmt.Fprintf(&b, "    }\n")
	}
	fmt.Fprintf(&b, "    deny all;\n")
	fmt.Fprintf(&b, "}")
	return b.String()
}

func nginxNextGen(format string, ttl int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "set %s \"\";\n", nginxSuffixVar)
	fmt.Fprintf(&b, "if ($http_accept ~* \"image/%s\") {\n", format)
	fmt.Fprintf(&b, "    set %s \".%s\";\n", nginxSuffixVar, format)
	fmt.Fprintf(&b, "}\n")
	fmt.Fprintf(&b, "location ~* %s {\n", extPattern(negotiableImages))
	fmt.Fprintf(&b, "    add_header Vary Accept;\n")
	if ttl > 0 {
		fmt.Fprintf(&b, "    expires %s;\n", FormatTTL(ttl))
	}
	fmt.Fprintf(&b, "    try_files $uri%s $uri =404;\n", nginxSuffixVar)
	fmt.Fprintf(&b, "}")
	return b.String()
}

func nginxBrowserCache(exts []string, ttl int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "location ~* %s {\n", extPattern(exts))
	fmt.Fprintf(&b, "    expires %s;\n", FormatTTL(ttl))
	fmt.Fprintf(&b, "    add_header Cache-Control \"public\";\n")
	fmt.Fprintf(&b, "}")
	return b.String()
}

func withoutImages(exts []string) []string {
	skip := make(map[string]struct{}, len(negotiableImages))
	for _, ext := range negotiableImages {
		skip[ext] = struct{}{}
	}
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		if _, ok := skip[ext]; !ok {
			out = append(out, ext)
		}
	}
	return out
}
