package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供 host/uri/设备分类/缓存状态字段，供页面请求日志复用。
func RequestFields(host, uri, device, cacheStatus, reason string) logrus.Fields {
	fields := logrus.Fields{
		"host":         host,
		"uri":          uri,
		"device":       device,
		"cache_status": cacheStatus,
	}
	if reason != "" {
		fields["reason"] = reason
	}
	return fields
}
