package policy

// Policy 组合短路检查、排除集与扩展钩子。零值不可用，请使用 New。
type Policy struct {
	exclusions ExclusionSet
	hooks      []AllowFunc
}

// New 创建 Policy；exclusions 为 nil 时视为空排除集。
func New(exclusions ExclusionSet, hooks ...AllowFunc) *Policy {
	if exclusions == nil {
		exclusions = EmptyExclusions{}
	}
	return &Policy{exclusions: exclusions, hooks: hooks}
}

// IsCacheable 返回响应是否可以写入缓存。
func (p *Policy) IsCacheable(ctx RequestContext) bool {
	return p.Decide(ctx) == ReasonNone
}

// Decide 返回第一个拒绝原因。排除集只会在所有短路检查通过后才被求值，
// 钩子只会在排除集未命中时调用：先是 New 传入的钩子，再是调用时
// 注册表中的钩子，因此 Policy 创建之后注册的钩子同样生效。
func (p *Policy) Decide(ctx RequestContext) Reason {
	if reason := ctx.shortCircuit(); reason != ReasonNone {
		return reason
	}
	if p.exclusions.Evaluate(ctx) {
		return ReasonExcluded
	}
	for _, hooks := range [][]AllowFunc{p.hooks, RegisteredHooks()} {
		for _, allow := range hooks {
			if allow != nil && !allow(ctx) {
				return ReasonHookVeto
			}
		}
	}
	return ReasonNone
}
