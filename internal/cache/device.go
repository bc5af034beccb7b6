package cache

import "regexp"

// mobilePattern 与 wp_is_mobile 使用的 UA 特征保持逐字节一致，
// 依赖该分类的外部工具（CDN 规则、插件）因此得到相同结果。
const mobilePattern = `Mobile|Android|Silk/|Kindle|BlackBerry|Opera Mini|Opera Mobi`

var mobileRegexp = regexp.MustCompile(mobilePattern)

// IsMobile 判断 User-Agent 是否属于移动设备。
func IsMobile(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	return mobileRegexp.MatchString(userAgent)
}

// MobilePattern 返回设备识别所用的正则，供边缘规则等外部组件复用。
func MobilePattern() string {
	return mobilePattern
}
