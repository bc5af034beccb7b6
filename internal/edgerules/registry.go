package edgerules

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownDialect 表示请求的方言未注册。
var ErrUnknownDialect = errors.New("unknown edge rule dialect")

// RenderFunc 把 Input 渲染为标记块内部的配置文本。
type RenderFunc func(in Input) string

// Dialect 描述一种服务器配置方言。
type Dialect struct {
	Key         string
	Description string
	// Merge 为 true 时写入会保留标记块之外的已有内容，否则整文件覆盖。
	Merge  bool
	Render RenderFunc
}

var globalRegistry = newRegistry()

type registry struct {
	mu       sync.RWMutex
	dialects map[string]Dialect
}

func newRegistry() *registry {
	return &registry{dialects: make(map[string]Dialect)}
}

// Register 将方言加入全局注册表，重复键会返回错误。
func Register(d Dialect) error {
	return globalRegistry.register(d)
}

// MustRegister 在注册失败时 panic，适合 init() 中调用。
func MustRegister(d Dialect) {
	if err := Register(d); err != nil {
		panic(err)
	}
}

// Resolve 返回指定键的方言。
func Resolve(key string) (Dialect, bool) {
	return globalRegistry.resolve(key)
}

// List 返回按键排序的方言列表。
func List() []Dialect {
	return globalRegistry.list()
}

// Keys 返回所有已注册方言的键值。
func Keys() []string {
	items := List()
	result := make([]string, len(items))
	for i, d := range items {
		result[i] = d.Key
	}
	return result
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *registry) register(d Dialect) error {
	key := normalizeKey(d.Key)
	if key == "" {
		return fmt.Errorf("dialect key is required")
	}
	if d.Render == nil {
		return fmt.Errorf("dialect %s: render func is required", key)
	}
	d.Key = key

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.dialects[key]; exists {
		return fmt.Errorf("dialect %s already registered", key)
	}
	r.dialects[key] = d
	return nil
}

func (r *registry) resolve(key string) (Dialect, bool) {
	normalized := normalizeKey(key)
	if normalized == "" {
		return Dialect{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.dialects[normalized]
	return d, ok
}

func (r *registry) list() []Dialect {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.dialects))
	for key := range r.dialects {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]Dialect, 0, len(keys))
	for _, key := range keys {
		result = append(result, r.dialects[key])
	}
	return result
}
