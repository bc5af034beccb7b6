// Package minify implements the best-effort HTML transform stage applied to a
// page before it is persisted: strip comments, collapse whitespace, then
// optionally minify inline <style> and <script> blocks. Nothing in here returns
// an error; any block that cannot be minified is kept verbatim.
package minify

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	tdminify "github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"
)

// Options 控制内联样式/脚本是否压缩。
type Options struct {
	InlineCSS bool
	InlineJS  bool
}

// Transformer 是 HTML 压缩阶段的最小接口，便于替换为外部实现。
type Transformer interface {
	Transform(page []byte, opts Options) []byte
}

// HTML 是默认的 Transformer 实现，可安全并发使用。
type HTML struct {
	m *tdminify.M
}

// New 创建带 CSS/JS 压缩器的 HTML 变换器。
func New() *HTML {
	m := tdminify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("application/javascript", js.Minify)
	return &HTML{m: m}
}

var (
	// 条件注释（<!--[if IE]>）需要保留。
	commentPattern    = regexp.MustCompile(`(?s)<!--(.*?)-->`)
	whitespacePattern = regexp.MustCompile(`\s{2,}|[\t\r\n]+`)
	// 只匹配独立的 type 属性，data-type 等前缀属性不算。
	typeAttrPattern = regexp.MustCompile(`(?i)\stype\s*=\s*["']?([^"'\s>]+)`)

	protectedPatterns = []struct {
		tag     string
		pattern *regexp.Regexp
	}{
		{"script", regexp.MustCompile(`(?is)(<script\b[^>]*>)(.*?)(</script\s*>)`)},
		{"style", regexp.MustCompile(`(?is)(<style\b[^>]*>)(.*?)(</style\s*>)`)},
		{"pre", regexp.MustCompile(`(?is)<pre\b[^>]*>.*?</pre\s*>`)},
		{"textarea", regexp.MustCompile(`(?is)<textarea\b[^>]*>.*?</textarea\s*>`)},
	}
)

var javascriptTypes = map[string]struct{}{
	"text/javascript":        {},
	"application/javascript": {},
	"application/ecmascript": {},
	"text/ecmascript":        {},
	"module":                 {},
}

type block struct {
	tag  string
	open string
	body string
	end  string
	raw  string
}

// Transform 按顺序执行：去注释 → 折叠空白 → 内联 CSS → 内联 JS。
// script/style/pre/textarea 的内容在前两步中受保护，不会被改写。
func (h *HTML) Transform(page []byte, opts Options) (out []byte) {
	defer func() {
		if r := recover(); r != nil {
			out = page
		}
	}()

	var blocks []block
	src := string(page)
	for _, p := range protectedPatterns {
		tag := p.tag
		src = p.pattern.ReplaceAllStringFunc(src, func(match string) string {
			b := block{tag: tag, raw: match}
			if sub := p.pattern.FindStringSubmatch(match); len(sub) == 4 {
				b.open, b.body, b.end = sub[1], sub[2], sub[3]
			}
			blocks = append(blocks, b)
			return placeholder(len(blocks) - 1)
		})
	}

	src = commentPattern.ReplaceAllStringFunc(src, func(c string) string {
		if strings.HasPrefix(c, "<!--[if") || strings.HasPrefix(c, "<!--<![endif]") || strings.HasPrefix(c, "<!--noindex") {
			return c
		}
		return ""
	})
	src = whitespacePattern.ReplaceAllString(src, " ")

	// 逆序还原：后提取的块（如 pre）可能包含先提取块的占位符。
	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		replacement := b.raw
		switch {
		case b.tag == "style" && opts.InlineCSS:
			replacement = b.open + h.minifyBlock("text/css", b.body) + b.end
		case b.tag == "script" && opts.InlineJS && isJavaScript(b.open) && strings.TrimSpace(b.body) != "":
			replacement = b.open + h.minifyBlock("application/javascript", b.body) + b.end
		}
		src = strings.Replace(src, placeholder(i), replacement, 1)
	}
	return []byte(strings.TrimSpace(src))
}

// minifyBlock 压缩失败时返回原始内容。
func (h *HTML) minifyBlock(mediaType, body string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = body
		}
	}()
	out, err := h.m.Bytes(mediaType, []byte(body))
	if err != nil {
		return body
	}
	return string(bytes.TrimSpace(out))
}

func isJavaScript(openTag string) bool {
	match := typeAttrPattern.FindStringSubmatch(openTag)
	if match == nil {
		return true
	}
	_, ok := javascriptTypes[strings.ToLower(match[1])]
	return ok
}

func placeholder(i int) string {
	return fmt.Sprintf("\x00SHBLOCK%d\x00", i)
}
