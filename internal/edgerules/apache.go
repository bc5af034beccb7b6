package edgerules

import (
	"fmt"
	"strings"
)

// DialectApache 是基于模块指令（.htaccess）的方言键。
const DialectApache = "apache"

func init() {
	MustRegister(Dialect{
		Key:         DialectApache,
		Description: "Apache httpd (.htaccess, mod_expires/mod_headers/mod_rewrite)",
		Merge:       true,
		Render:      renderApache,
	})
}

func renderApache(in Input) string {
	var blocks []string
	if ttl := in.ttlSeconds(); ttl > 0 {
		blocks = append(blocks, apacheBrowserCache(ttl))
	}
	if in.nextGenEnabled() {
		blocks = append(blocks, apacheNextGen(in.nextGenFormat()))
	}
	blocks = append(blocks, apachePrivate(in))
	return strings.Join(blocks, "\n\n")
}

func apacheBrowserCache(ttl int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<IfModule mod_expires.c>\n")
	fmt.Fprintf(&b, "    ExpiresActive On\n")
	for _, mime := range []string{
		"text/css", "application/javascript", "text/javascript",
		"image/gif", "image/jpeg", "image/png", "image/svg+xml", "image/x-icon",
		"image/webp", "image/avif", "font/woff", "font/woff2",
	} {
		fmt.Fprintf(&b, "    ExpiresByType %s \"access plus %d seconds\"\n", mime, ttl)
	}
	fmt.Fprintf(&b, "</IfModule>\n")
	fmt.Fprintf(&b, "<IfModule mod_headers.c>\n")
	fmt.Fprintf(&b, "    <FilesMatch \"%s\">\n", extPattern(assetExtensions))
	fmt.Fprintf(&b, "        Header set Cache-Control \"public, max-age=%d\"\n", ttl)
	fmt.Fprintf(&b, "    </FilesMatch>\n")
	fmt.Fprintf(&b, "</IfModule>")
	return b.String()
}

func apacheNextGen(format string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<IfModule mod_rewrite.c>\n")
	fmt.Fprintf(&b, "    RewriteEngine On\n")
	fmt.Fprintf(&b, "    RewriteCond %%{HTTP_ACCEPT} image/%s\n", format)
	fmt.Fprintf(&b, "    RewriteCond %%{REQUEST_FILENAME} %s\n", extPattern(negotiableImages))
	fmt.Fprintf(&b, "    RewriteCond %%{REQUEST_FILENAME}.%s -f\n", format)
	fmt.Fprintf(&b, "    RewriteRule ^(.+)$ $1.%s [T=image/%s,E=static_hub_nextgen:1,L]\n", format, format)
	fmt.Fprintf(&b, "</IfModule>\n")
	fmt.Fprintf(&b, "<IfModule mod_headers.c>\n")
	fmt.Fprintf(&b, "    Header append Vary Accept env=REDIRECT_static_hub_nextgen\n")
	fmt.Fprintf(&b, "    Header append Vary Accept env=static_hub_nextgen\n")
	fmt.Fprintf(&b, "</IfModule>\n")
	fmt.Fprintf(&b, "AddType image/%s .%s", format, format)
	return b.String()
}

func apachePrivate(in Input) string {
	prefix := strings.TrimPrefix(in.privatePrefix(), "/")
	var b strings.Builder
	fmt.Fprintf(&b, "<IfModule mod_rewrite.c>\n")
	fmt.Fprintf(&b, "    RewriteEngine On\n")
	if origin := in.origin(); origin != "" {
		fmt.Fprintf(&b, "    RewriteRule ^/?%s(.*%s) %s/%s$1 [P,L]\n",
			prefix, extPattern(privateAllowList), origin, prefix)
	}
	fmt.Fprintf(&b, "    RewriteRule ^/?%s - [F,L]\n", prefix)
	fmt.Fprintf(&b, "</IfModule>")
	return b.String()
}
