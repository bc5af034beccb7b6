package policy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"
	"gopkg.in/yaml.v3"
)

// ExclusionSet 是外部编译器生成的只读谓词，Evaluate 返回 true 表示该请求被排除。
type ExclusionSet interface {
	Evaluate(ctx RequestContext) bool
}

// EmptyExclusions 不排除任何请求，用于编译产物缺失的场景。
type EmptyExclusions struct{}

// Evaluate 实现 ExclusionSet。
func (EmptyExclusions) Evaluate(RequestContext) bool { return false }

// ExclusionRules 是编译产物（YAML）的结构，每一项均为正则表达式。
type ExclusionRules struct {
	URIs       []string `yaml:"uris"`
	Cookies    []string `yaml:"cookies"`
	UserAgents []string `yaml:"user_agents"`
}

type compiledExclusions struct {
	uris       []*regexp.Regexp
	cookies    []*regexp.Regexp
	userAgents []*regexp.Regexp
}

// Compile 将规则编译为可求值的排除集。
func (r ExclusionRules) Compile() (ExclusionSet, error) {
	uris, err := compileAll("uris", r.URIs)
	if err != nil {
		return nil, err
	}
	cookies, err := compileAll("cookies", r.Cookies)
	if err != nil {
		return nil, err
	}
	agents, err := compileAll("user_agents", r.UserAgents)
	if err != nil {
		return nil, err
	}
	return &compiledExclusions{uris: uris, cookies: cookies, userAgents: agents}, nil
}

func compileAll(field string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", field, i, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func (c *compiledExclusions) Evaluate(ctx RequestContext) bool {
	for _, re := range c.uris {
		if re.MatchString(ctx.URI) {
			return true
		}
	}
	if len(c.cookies) > 0 {
		for name := range ctx.Cookies {
			for _, re := range c.cookies {
				if re.MatchString(name) {
					return true
				}
			}
		}
	}
	if ctx.UserAgent != "" {
		for _, re := range c.userAgents {
			if re.MatchString(ctx.UserAgent) {
				return true
			}
		}
	}
	return false
}

// FileExclusionSet 从磁盘读取编译产物，文件变化（ModTime/Size）时自动重新加载。
// 文件缺失、不可读或内容非法时退化为空排除集。
type FileExclusionSet struct {
	path   string
	logger *logrus.Logger

	mu          sync.Mutex
	modTime     time.Time
	size        int64
	loaded      bool
	fingerprint uint64
	current     ExclusionSet
	lastErr     string
}

// NewFileExclusionSet 创建基于文件的排除集，logger 可为空。
func NewFileExclusionSet(path string, logger *logrus.Logger) *FileExclusionSet {
	return &FileExclusionSet{path: path, logger: logger, current: EmptyExclusions{}}
}

// Evaluate 实现 ExclusionSet。
func (f *FileExclusionSet) Evaluate(ctx RequestContext) bool {
	return f.snapshot().Evaluate(ctx)
}

// Fingerprint 返回当前生效产物内容的 xxh3 摘要，空集返回空字符串。
func (f *FileExclusionSet) Fingerprint() string {
	f.snapshot()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fingerprint == 0 {
		return ""
	}
	return fmt.Sprintf("%016x", f.fingerprint)
}

func (f *FileExclusionSet) snapshot() ExclusionSet {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if err != nil {
		if f.loaded || !errors.Is(err, fs.ErrNotExist) {
			f.warn(err, "exclusions_unavailable")
		}
		if errors.Is(err, fs.ErrNotExist) {
			f.lastErr = ""
		}
		f.reset()
		return f.current
	}
	if f.loaded && info.ModTime().Equal(f.modTime) && info.Size() == f.size {
		return f.current
	}

	f.modTime = info.ModTime()
	f.size = info.Size()
	f.loaded = true

	raw, err := os.ReadFile(f.path)
	if err != nil {
		f.warn(err, "exclusions_unreadable")
		f.current, f.fingerprint = EmptyExclusions{}, 0
		return f.current
	}
	sum := xxh3.Hash(raw)
	if sum == f.fingerprint && f.current != nil {
		return f.current
	}

	var rules ExclusionRules
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		f.warn(err, "exclusions_invalid")
		f.current, f.fingerprint = EmptyExclusions{}, 0
		return f.current
	}
	compiled, err := rules.Compile()
	if err != nil {
		f.warn(err, "exclusions_invalid")
		f.current, f.fingerprint = EmptyExclusions{}, 0
		return f.current
	}
	f.current, f.fingerprint = compiled, sum
	f.lastErr = ""
	return f.current
}

func (f *FileExclusionSet) reset() {
	f.loaded = false
	f.modTime = time.Time{}
	f.size = 0
	f.fingerprint = 0
	f.current = EmptyExclusions{}
}

// warn 只在错误变化时输出一次，避免每个请求重复刷日志。
func (f *FileExclusionSet) warn(err error, code string) {
	if err.Error() == f.lastErr {
		return
	}
	f.lastErr = err.Error()
	if f.logger == nil {
		return
	}
	f.logger.WithError(err).WithFields(logrus.Fields{
		"action": "exclusions_load",
		"path":   f.path,
	}).Warn(code)
}
