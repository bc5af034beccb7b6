// Package invalidation turns content-change notifications into cache flushes.
// Events are routed through a typed dispatch table (Dispatcher) or its
// channel-backed wrapper (Bus); the Invalidator owns the actual full flush and
// the single-URL removal used by callers that need finer granularity.
package invalidation

import (
	"fmt"
	"strings"
)

// Kind 是内容变更事件的类型。
type Kind string

const (
	ContentPublished     Kind = "content_published"
	ContentTrashed       Kind = "content_trashed"
	ContentDeleted       Kind = "content_deleted"
	CommentStatusChanged Kind = "comment_status_changed"
	ThemeSwitched        Kind = "theme_switched"
	ExtensionActivated   Kind = "extension_activated"
	ExtensionDeactivated Kind = "extension_deactivated"
	ManualPurge          Kind = "manual_purge"
)

// CommentApproved 是评论“已批准”状态的取值。
const CommentApproved = "approved"

var knownKinds = map[Kind]struct{}{
	ContentPublished:     {},
	ContentTrashed:       {},
	ContentDeleted:       {},
	CommentStatusChanged: {},
	ThemeSwitched:        {},
	ExtensionActivated:   {},
	ExtensionDeactivated: {},
	ManualPurge:          {},
}

// Event 是一次内容变更通知。评论事件需携带 OldStatus/NewStatus。
type Event struct {
	Kind      Kind   `json:"type"`
	Subject   string `json:"subject,omitempty"`
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status,omitempty"`
}

// Validate 检查事件类型是否受支持。
func (e Event) Validate() error {
	if _, ok := knownKinds[e.Kind]; !ok {
		return fmt.Errorf("unknown event type %q", e.Kind)
	}
	return nil
}

// ApprovalTransition 报告评论事件是否跨越了“已批准”边界（进入或离开）。
func (e Event) ApprovalTransition() bool {
	oldApproved := strings.EqualFold(strings.TrimSpace(e.OldStatus), CommentApproved)
	newApproved := strings.EqualFold(strings.TrimSpace(e.NewStatus), CommentApproved)
	return oldApproved != newApproved
}

// Kinds 返回所有受支持的事件类型。
func Kinds() []Kind {
	return []Kind{
		ContentPublished, ContentTrashed, ContentDeleted, CommentStatusChanged,
		ThemeSwitched, ExtensionActivated, ExtensionDeactivated, ManualPurge,
	}
}
