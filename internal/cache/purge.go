package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// SentinelName 是缓存根目录下的空白访问拒绝文件，用于阻止目录列表。
const SentinelName = "index.html"

// PurgeResult 汇总一次全量清理。
type PurgeResult struct {
	FilesRemoved int
	DirsRemoved  int
	Failures     []error
}

// ClearAll 先删除所有文件、再自底向上删除已空的目录，保留 root 本身，
// 最后补齐根目录哨兵文件。单个条目的失败记录在 Failures 中并继续。
func ClearAll(root string) PurgeResult {
	var result PurgeResult
	if root == "" {
		return result
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		result.Failures = append(result.Failures, err)
		return result
	}

	var dirs []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if !errors.Is(walkErr, fs.ErrNotExist) {
				result.Failures = append(result.Failures, walkErr)
			}
			return nil
		}
		if path == root {
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, path)
			return nil
		}
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				result.Failures = append(result.Failures, err)
			}
			return nil
		}
		result.FilesRemoved++
		return nil
	})

	// 子目录路径更长，逆序删除保证先子后父。
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		if err := os.Remove(dir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				result.Failures = append(result.Failures, err)
			}
			continue
		}
		result.DirsRemoved++
	}

	if err := EnsureSentinel(root); err != nil {
		result.Failures = append(result.Failures, err)
	}
	return result
}

// EnsureSentinel 在根目录创建空的哨兵文件（已存在则不动）。
func EnsureSentinel(root string) error {
	path := filepath.Join(root, SentinelName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return err
	}
	return f.Close()
}
