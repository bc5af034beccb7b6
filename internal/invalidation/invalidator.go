package invalidation

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/static-hub/static-hub/internal/cache"
)

// Invalidator 执行整站缓存清空。设计上只有全量刷新，
// 需要更细粒度的调用方可以用 InvalidateURL 直接删除单个条目。
type Invalidator struct {
	store  cache.Store
	logger *logrus.Logger
}

// New 创建 Invalidator。
func New(store cache.Store, logger *logrus.Logger) *Invalidator {
	return &Invalidator{store: store, logger: logger}
}

// Root 返回被管理的缓存根目录。
func (i *Invalidator) Root() string {
	return i.store.Resolver().Root()
}

// ClearAll 清空缓存根目录并补齐哨兵文件。
func (i *Invalidator) ClearAll() cache.PurgeResult {
	started := time.Now()
	result := cache.ClearAll(i.Root())
	if i.logger != nil {
		for _, err := range result.Failures {
			i.logger.WithError(err).WithField("action", "purge").Warn("purge_entry_failed")
		}
		i.logger.WithFields(logrus.Fields{
			"action":        "purge",
			"files_removed": result.FilesRemoved,
			"dirs_removed":  result.DirsRemoved,
			"failures":      len(result.Failures),
			"elapsed_ms":    time.Since(started).Milliseconds(),
		}).Info("cache_cleared")
	}
	return result
}

// OnContentChange 根据事件决定是否清空缓存，返回是否触发了清空。
// 评论事件只在进入或离开“已批准”状态时触发。
func (i *Invalidator) OnContentChange(event Event) bool {
	if err := event.Validate(); err != nil {
		return false
	}
	if event.Kind == CommentStatusChanged && !event.ApprovalTransition() {
		if i.logger != nil {
			i.logger.WithFields(logrus.Fields{
				"action":     "event",
				"type":       event.Kind,
				"old_status": event.OldStatus,
				"new_status": event.NewStatus,
			}).Debug("comment_transition_ignored")
		}
		return false
	}
	if i.logger != nil {
		i.logger.WithFields(logrus.Fields{
			"action":  "event",
			"type":    event.Kind,
			"subject": event.Subject,
		}).Info("content_changed")
	}
	i.ClearAll()
	return true
}

// Handle 适配 Dispatcher 的 Handler 签名。
func (i *Invalidator) Handle(_ context.Context, event Event) {
	i.OnContentChange(event)
}

// Register 把 Invalidator 挂到所有受支持的事件类型上。
func (i *Invalidator) Register(d *Dispatcher) {
	d.On(i.Handle, Kinds()...)
}

// InvalidateURL 删除单个 URL 的桌面与移动端缓存条目。
func (i *Invalidator) InvalidateURL(ctx context.Context, host, uri string) error {
	var errs []error
	for _, mobile := range []bool{false, true} {
		if err := i.store.Remove(ctx, cache.Key{Host: host, URI: uri, Mobile: mobile}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
