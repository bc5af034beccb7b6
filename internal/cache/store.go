package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 负责管理磁盘页面缓存的读写。磁盘布局遵循：
//
//	<CacheRoot>/<host>[/mobile]/<uri>[index.html]
//
// 每个条目仅由正文文件组成，写入时间由文件 ModTime 提供。
type Store interface {
	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, key Key) (*ReadResult, error)

	// Put 写入页面正文。实现需通过临时文件 + rename 保证同一路径上的并发写入
	// 不会交错出半截内容，失败时清理临时文件。
	Put(ctx context.Context, key Key, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除单个条目，条目不存在时不报错。
	Remove(ctx context.Context, key Key) error

	// Resolver 暴露 Store 使用的路径解析器。
	Resolver() Resolver
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
}

// Entry 表示一个缓存条目，包含绝对文件路径及文件信息。
type Entry struct {
	Key       Key       `json:"key"`
	FilePath  string    `json:"file_path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// ReadResult 组合 Entry 与正文 Reader，便于代理层直接返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")
