package policy

// Reason 描述拒绝缓存的原因，ReasonNone 表示可缓存。
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonLoggedIn          Reason = "logged_in"
	ReasonAdmin             Reason = "admin"
	ReasonSearch            Reason = "search"
	ReasonError             Reason = "error"
	ReasonFeed              Reason = "feed"
	ReasonPreview           Reason = "preview"
	ReasonEmbed             Reason = "embed"
	ReasonAjax              Reason = "ajax"
	ReasonCron              Reason = "cron"
	ReasonREST              Reason = "rest"
	ReasonPasswordProtected Reason = "password_protected"
	ReasonMethod            Reason = "method"
	ReasonQueryString       Reason = "query_string"
	ReasonDoNotCache        Reason = "do_not_cache"
	ReasonExcluded          Reason = "excluded"
	ReasonHookVeto          Reason = "hook_veto"

	// 以下原因由请求处理层设置，Decide 不会返回。
	ReasonDisabled   Reason = "disabled"
	ReasonInvalidKey Reason = "invalid_key"
	ReasonTooLarge   Reason = "too_large"
)

// RequestContext 是一次请求（以及可选的源站响应）的分类结果。
type RequestContext struct {
	Method    string
	Host      string
	URI       string
	UserAgent string
	Cookies   map[string]string

	LoggedIn          bool
	Admin             bool
	Search            bool
	Error             bool
	Feed              bool
	Preview           bool
	Embed             bool
	Ajax              bool
	Cron              bool
	REST              bool
	PasswordProtected bool
	// QueryString 表示请求带有不可忽略的查询参数。
	QueryString bool
	// DoNotCache 是显式的“不缓存”覆盖标记。
	DoNotCache bool
}

// shortCircuit 按固定顺序检查零成本条件，返回第一个命中的原因。
func (c RequestContext) shortCircuit() Reason {
	switch {
	case c.LoggedIn:
		return ReasonLoggedIn
	case c.Admin:
		return ReasonAdmin
	case c.Search:
		return ReasonSearch
	case c.Error:
		return ReasonError
	case c.Feed:
		return ReasonFeed
	case c.Preview:
		return ReasonPreview
	case c.Embed:
		return ReasonEmbed
	case c.Ajax:
		return ReasonAjax
	case c.Cron:
		return ReasonCron
	case c.REST:
		return ReasonREST
	case c.PasswordProtected:
		return ReasonPasswordProtected
	case !safeMethod(c.Method):
		return ReasonMethod
	case c.QueryString:
		return ReasonQueryString
	case c.DoNotCache:
		return ReasonDoNotCache
	}
	return ReasonNone
}

func safeMethod(method string) bool {
	return method == "GET" || method == "HEAD"
}
