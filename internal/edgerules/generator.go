package edgerules

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/static-hub/static-hub/internal/settings"
)

// WriteError 描述某个方言的规则文件写入失败。
type WriteError struct {
	Dialect string
	Path    string
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s edge rules to %s: %v", e.Dialect, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Target 绑定方言与目标文件。
type Target struct {
	Dialect string
	Path    string
}

// Generator 把渲染结果持久化到各方言的目标文件。
type Generator struct {
	targets     []Target
	cachePrefix string
	origin      string
	logger      *logrus.Logger
}

// NewGenerator 创建 Generator，Path 为空的目标会被忽略。
func NewGenerator(targets []Target, cachePrefix, origin string, logger *logrus.Logger) *Generator {
	active := make([]Target, 0, len(targets))
	for _, t := range targets {
		if strings.TrimSpace(t.Path) != "" {
			active = append(active, t)
		}
	}
	return &Generator{targets: active, cachePrefix: cachePrefix, origin: origin, logger: logger}
}

// Targets 返回生效的目标列表。
func (g *Generator) Targets() []Target {
	return append([]Target(nil), g.targets...)
}

// Input 基于设置快照构造渲染输入。
func (g *Generator) Input(s settings.Settings) Input {
	return Input{Settings: s, CachePrefix: g.cachePrefix, Origin: g.origin}
}

// Write 渲染并写入所有目标，每个失败的目标产生一个 *WriteError，彼此互不影响。
func (g *Generator) Write(s settings.Settings) error {
	in := g.Input(s)
	var errs []error
	for _, target := range g.targets {
		started := time.Now()
		err := g.writeTarget(target, in)
		if g.logger != nil {
			entry := g.logger.WithFields(logrus.Fields{
				"action":     "edge_rules",
				"dialect":    target.Dialect,
				"path":       target.Path,
				"elapsed_ms": time.Since(started).Milliseconds(),
			})
			if err != nil {
				entry.WithError(err).Warn("edge_rules_write_failed")
			} else {
				entry.Info("edge_rules_written")
			}
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *Generator) writeTarget(target Target, in Input) error {
	fail := func(err error) error {
		return &WriteError{Dialect: target.Dialect, Path: target.Path, Err: err}
	}

	d, ok := Resolve(target.Dialect)
	if !ok {
		return fail(fmt.Errorf("%w: %q", ErrUnknownDialect, target.Dialect))
	}
	block := wrap(d.Render(in))

	content := block
	if d.Merge {
		existing, err := os.ReadFile(target.Path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fail(err)
		}
		content = MergeBlock(string(existing), block)
	}
	if err := writeFileAtomic(target.Path, []byte(content)); err != nil {
		return fail(err)
	}
	return nil
}

// MergeBlock 用 block 替换 existing 中已有的标记块；没有标记块时把 block 放在文件最前面，
// 其余内容原样保留。
func MergeBlock(existing, block string) string {
	block = strings.TrimRight(block, "\n") + "\n"
	begin := strings.Index(existing, BeginMarker)
	if begin >= 0 {
		rest := existing[begin:]
		if end := strings.Index(rest, EndMarker); end >= 0 {
			tail := rest[end+len(EndMarker):]
			tail = strings.TrimPrefix(strings.TrimPrefix(tail, "\r"), "\n")
			return existing[:begin] + block + tail
		}
	}
	if strings.TrimSpace(existing) == "" {
		return block
	}
	return block + "\n" + existing
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, ".edge-rules-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
