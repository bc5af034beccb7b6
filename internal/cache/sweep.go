package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// SweepResult 汇总一次过期清理的结果；Failures 中的错误不会中断扫描。
type SweepResult struct {
	Scanned  int
	Removed  int
	Failures []error
}

// Sweep 深度优先（父目录先于子项）遍历 root，删除 ModTime 早于 now-lifespan 的普通文件。
// lifespan <= 0 或 root 不存在时直接返回。目录不会在此处删除，根目录哨兵文件会被跳过。
func Sweep(root string, lifespan time.Duration, now time.Time) SweepResult {
	var result SweepResult
	if lifespan <= 0 || root == "" {
		return result
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return result
	}

	sentinel := filepath.Join(root, SentinelName)
	cutoff := now.Add(-lifespan)

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if !errors.Is(walkErr, fs.ErrNotExist) {
				result.Failures = append(result.Failures, walkErr)
			}
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() || path == sentinel {
			return nil
		}

		result.Scanned++
		info, err := d.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				result.Failures = append(result.Failures, err)
			}
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				result.Failures = append(result.Failures, err)
			}
			return nil
		}
		result.Removed++
		return nil
	})

	return result
}
