package policy

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// AllowFunc 是外部协作者的否决钩子，返回 false 即拒绝缓存。
type AllowFunc func(ctx RequestContext) bool

var hookRegistry sync.Map

// ErrDuplicateHook indicates a hook name is already registered.
var ErrDuplicateHook = errors.New("hook already registered")

// RegisterHook stores an allow hook under the given name. Policy.Decide reads
// the registry on every call, so hooks registered after startup apply to the
// next decision.
func RegisterHook(name string, fn AllowFunc) error {
	key := normalizeKey(name)
	if key == "" {
		return errors.New("hook name required")
	}
	if fn == nil {
		return errors.New("hook func required")
	}
	if _, loaded := hookRegistry.LoadOrStore(key, fn); loaded {
		return ErrDuplicateHook
	}
	return nil
}

// MustRegisterHook panics on registration failure.
func MustRegisterHook(name string, fn AllowFunc) {
	if err := RegisterHook(name, fn); err != nil {
		panic(err)
	}
}

// UnregisterHook removes a hook; unknown names are ignored.
func UnregisterHook(name string) {
	hookRegistry.Delete(normalizeKey(name))
}

// HookNames returns registered hook names in sorted order.
func HookNames() []string {
	var names []string
	hookRegistry.Range(func(key, _ any) bool {
		if name, ok := key.(string); ok {
			names = append(names, name)
		}
		return true
	})
	sort.Strings(names)
	return names
}

// RegisteredHooks returns hooks ordered by name so evaluation order is stable.
func RegisteredHooks() []AllowFunc {
	names := HookNames()
	out := make([]AllowFunc, 0, len(names))
	for _, name := range names {
		if value, ok := hookRegistry.Load(name); ok {
			if fn, ok := value.(AllowFunc); ok {
				out = append(out, fn)
			}
		}
	}
	return out
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
