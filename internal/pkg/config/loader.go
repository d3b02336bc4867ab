package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
)

const redacted = "***REDACTED***"

var sensitiveKeywords = []string{"password", "secret", "token", "credential", "private", "database_url", "dsn"}

// ParseEnv 从环境变量填充带 env 标签的配置结构体
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("解析环境变量失败: %w", err)
	}
	return nil
}

// GetEnvOrDefault 环境变量为空时返回默认值
func GetEnvOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

// SanitizeConfigForLog 敏感项替换为占位符后再打印
func SanitizeConfigForLog(values map[string]any) map[string]any {
	sanitized := make(map[string]any, len(values))
	for k, v := range values {
		if isSensitiveKey(k) {
			v = redacted
		}
		sanitized[k] = v
	}
	return sanitized
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	return slices.ContainsFunc(sensitiveKeywords, func(kw string) bool {
		return strings.Contains(lower, kw)
	})
}
