package metrics

import "sync/atomic"

// Namespace 所有指标的统一前缀
const Namespace = "game"

const defaultServiceName = "unknown"

var serviceName atomic.Pointer[string]

// SetServiceName 所有指标 service 标签的取值，空串恢复默认
func SetServiceName(name string) {
	if name == "" {
		name = defaultServiceName
	}
	serviceName.Store(&name)
}

// GetServiceName 当前 service 标签
func GetServiceName() string {
	if p := serviceName.Load(); p != nil {
		return *p
	}
	return defaultServiceName
}

func normalizeServiceName(name string) string {
	if name == "" {
		return GetServiceName()
	}
	return name
}
