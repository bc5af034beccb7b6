package policy

import (
	"net/http"
	"net/url"
	"strings"
)

// Markers 描述如何从 HTTP 请求/响应推导 RequestContext 中的各个标记。
// 默认值对应常见 CMS 的 cookie 与路径约定，可在配置 [Policy] 段覆盖。
type Markers struct {
	SessionCookies   []string
	PasswordCookies  []string
	AdminPaths       []string
	AsyncPaths       []string
	CronPaths        []string
	RESTPrefixes     []string
	FeedSuffixes     []string
	EmbedSuffixes    []string
	SearchParams     []string
	PreviewParams    []string
	IgnoredQueryArgs []string
	BypassHeader     string
}

// PageKindHeader 允许源站声明页面类型，例如 "search" 或 "feed, preview"。
const PageKindHeader = "X-Page-Kind"

// DefaultMarkers 返回内置的分类规则。
func DefaultMarkers() Markers {
	return Markers{
		SessionCookies:   []string{"wordpress_logged_in_", "wp-settings-", "comment_author_"},
		PasswordCookies:  []string{"wp-postpass_"},
		AdminPaths:       []string{"/wp-admin/", "/wp-login.php"},
		AsyncPaths:       []string{"/wp-admin/admin-ajax.php"},
		CronPaths:        []string{"/wp-cron.php"},
		RESTPrefixes:     []string{"/wp-json/"},
		FeedSuffixes:     []string{"/feed/", "/feed", "/rss/", "/atom/"},
		EmbedSuffixes:    []string{"/embed/", "/embed"},
		SearchParams:     []string{"s"},
		PreviewParams:    []string{"preview", "preview_id"},
		IgnoredQueryArgs: []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "fbclid", "gclid"},
		BypassHeader:     "X-Static-Hub-Bypass",
	}
}

// Classify 根据请求方法、Host、URI 与请求头构造 RequestContext。
func (m Markers) Classify(method, host, requestURI string, header http.Header) RequestContext {
	ctx := RequestContext{
		Method:    strings.ToUpper(strings.TrimSpace(method)),
		Host:      host,
		URI:       requestURI,
		UserAgent: header.Get("User-Agent"),
		Cookies:   parseCookies(header.Values("Cookie")),
	}

	path, rawQuery, _ := strings.Cut(requestURI, "?")
	lowerPath := strings.ToLower(path)

	for name := range ctx.Cookies {
		name = strings.ToLower(name)
		if hasAnyPrefix(name, m.SessionCookies) {
			ctx.LoggedIn = true
		}
		if hasAnyPrefix(name, m.PasswordCookies) {
			ctx.PasswordProtected = true
		}
	}

	ctx.Ajax = hasAnyPrefix(lowerPath, m.AsyncPaths)
	ctx.Cron = hasAnyPrefix(lowerPath, m.CronPaths)
	ctx.REST = hasAnyPrefix(lowerPath, m.RESTPrefixes)
	ctx.Admin = !ctx.Ajax && hasAnyPrefix(lowerPath, m.AdminPaths)
	ctx.Feed = hasAnySuffix(lowerPath, m.FeedSuffixes)
	ctx.Embed = hasAnySuffix(lowerPath, m.EmbedSuffixes)

	if rawQuery != "" {
		query, err := url.ParseQuery(rawQuery)
		if err != nil {
			ctx.QueryString = true
		}
		for name := range query {
			switch {
			case contains(m.SearchParams, name):
				ctx.Search = true
			case contains(m.PreviewParams, name):
				ctx.Preview = true
			case name == "rest_route":
				ctx.REST = true
			case !contains(m.IgnoredQueryArgs, name):
				ctx.QueryString = true
			}
		}
	}

	if m.BypassHeader != "" && truthy(header.Get(m.BypassHeader)) {
		ctx.DoNotCache = true
	}
	return ctx
}

// ApplyResponse 根据源站响应补充 Error/DoNotCache 等只有响应后才知道的标记。
func (m Markers) ApplyResponse(ctx *RequestContext, status int, header http.Header) {
	if ctx == nil {
		return
	}
	if status != http.StatusOK {
		ctx.Error = true
	}
	for _, directive := range strings.Split(strings.ToLower(header.Get("Cache-Control")), ",") {
		switch strings.TrimSpace(directive) {
		case "no-store", "private", "no-cache":
			ctx.DoNotCache = true
		}
	}
	if m.BypassHeader != "" && truthy(header.Get(m.BypassHeader)) {
		ctx.DoNotCache = true
	}
	if len(header.Values("Set-Cookie")) > 0 {
		ctx.DoNotCache = true
	}
	for _, raw := range header.Values(PageKindHeader) {
		for _, kind := range strings.Split(raw, ",") {
			switch strings.ToLower(strings.TrimSpace(kind)) {
			case "search":
				ctx.Search = true
			case "error", "404":
				ctx.Error = true
			case "feed":
				ctx.Feed = true
			case "preview":
				ctx.Preview = true
			case "embed":
				ctx.Embed = true
			case "password", "password-protected":
				ctx.PasswordProtected = true
			case "admin":
				ctx.Admin = true
			}
		}
	}
}

func parseCookies(lines []string) map[string]string {
	cookies := make(map[string]string)
	for _, line := range lines {
		for _, part := range strings.Split(line, ";") {
			name, value, _ := strings.Cut(strings.TrimSpace(part), "=")
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			cookies[name] = strings.TrimSpace(value)
		}
	}
	return cookies
}

func hasAnyPrefix(value string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(value, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func hasAnySuffix(value string, suffixes []string) bool {
	for _, s := range suffixes {
		if s != "" && strings.HasSuffix(value, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
