package policy

import "sync/atomic"

// MarkersHolder 持有当前生效的 Markers，配置热更新时整体替换。
type MarkersHolder struct {
	current atomic.Pointer[Markers]
}

// NewMarkersHolder 使用初始 Markers 创建 Holder。
func NewMarkersHolder(initial Markers) *MarkersHolder {
	h := &MarkersHolder{}
	h.Store(initial)
	return h
}

// Load 返回当前 Markers；未初始化时返回 DefaultMarkers。
func (h *MarkersHolder) Load() Markers {
	if h != nil {
		if m := h.current.Load(); m != nil {
			return *m
		}
	}
	return DefaultMarkers()
}

// Store 替换当前 Markers。
func (h *MarkersHolder) Store(m Markers) {
	snapshot := m
	h.current.Store(&snapshot)
}
