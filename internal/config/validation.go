package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/static-hub/static-hub/internal/settings"
)

var nextGenFormatPattern = regexp.MustCompile(`^[a-z0-9]+$`)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if err := validateOrigin(g.Origin); err != nil {
		return fmt.Errorf("Global.Origin: %w", err)
	}
	if g.HostOverride != "" {
		if err := validateHost(g.HostOverride); err != nil {
			return fmt.Errorf("Global.HostOverride: %w", err)
		}
	}
	if !strings.HasPrefix(g.EdgeCachePrefix, "/") {
		return newFieldError("Global.EdgeCachePrefix", "必须以 / 开头")
	}
	if g.ApacheRulesPath != "" && g.ApacheRulesPath == g.NginxRulesPath {
		return newFieldError("Global.NginxRulesPath", "不能与 ApacheRulesPath 相同")
	}

	cc := c.Cache
	if cc.LifespanHours < 0 {
		return newFieldError(sectionField("Cache", "LifespanHours"), "不能为负数")
	}
	switch settings.ImageDelivery(cc.ImageDelivery) {
	case settings.ImageDeliveryRewrite, settings.ImageDeliveryPicture:
	default:
		return newFieldError(sectionField("Cache", "ImageDelivery"), "仅支持 rewrite/picture")
	}
	if !nextGenFormatPattern.MatchString(cc.NextGenFormat) {
		return newFieldError(sectionField("Cache", "NextGenFormat"), "只能包含小写字母或数字，例如 webp、avif")
	}

	if header := strings.TrimSpace(c.Policy.BypassHeader); strings.ContainsAny(header, " :") {
		return newFieldError(sectionField("Policy", "BypassHeader"), "不是合法的 Header 名称")
	}
	return nil
}

func validateHost(host string) error {
	if strings.Contains(host, "/") {
		return errors.New("不允许包含路径")
	}
	if strings.Contains(host, " ") {
		return errors.New("不允许包含空格")
	}
	if strings.HasPrefix(host, "http") && strings.Contains(host, ":") {
		return errors.New("不应包含协议头")
	}
	return nil
}

func validateOrigin(raw string) error {
	if raw == "" {
		return errors.New("缺少源站地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，源站: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("源站缺少 Host: %s", raw)
	}
	return nil
}
