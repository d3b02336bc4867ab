package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// ValidationError 单个字段的校验失败
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
}

// 请求 DTO 字段的中文名
var fieldNames = map[string]string{
	"SessionToken": "会话令牌",
	"CharacterID":  "角色ID",
	"Chapter":      "章节",
	"Stage":        "关卡",
	"BattleLog":    "战斗日志",
	"Stats":        "战斗统计",
	"MobKills":     "击杀记录",
	"MobIndex":     "怪物序号",
	"DamageDealt":  "伤害",
	"TimestampMs":  "击杀时间",

	"TotalDamageDealt":    "总伤害",
	"TotalDamageReceived": "承受伤害",
	"MobsKilled":          "击杀数",
	"DurationMs":          "战斗时长",
}

// 提示模板: %[1]s 字段名, %[2]s 规则参数
var tagMessages = map[string]string{
	"required": "%[1]s不能为空",
	"gte":      "%[1]s必须大于或等于%[2]s",
	"lte":      "%[1]s必须小于或等于%[2]s",
	"gt":       "%[1]s必须大于%[2]s",
	"lt":       "%[1]s必须小于%[2]s",
	"oneof":    "%[1]s的值必须是以下之一: %[2]s",
	"dive":     "%[1]s包含无效的值",
}

// 长度类规则在字符串与数值/切片上的提示不同
var sizeMessages = map[string][2]string{
	"min": {"%[1]s长度不能少于%[2]s个字符", "%[1]s不能小于%[2]s"},
	"max": {"%[1]s长度不能超过%[2]s个字符", "%[1]s不能大于%[2]s"},
	"len": {"%[1]s长度必须为%[2]s", "%[1]s数量必须为%[2]s"},
}

// TranslateValidationErrors 翻译全部字段错误
func TranslateValidationErrors(err error) []ValidationError {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{Field: "request", Message: err.Error(), Tag: "unknown"}}
	}

	result := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		result = append(result, ValidationError{
			Field:   fe.Field(),
			Message: translateFieldError(fe),
			Tag:     fe.Tag(),
			Value:   truncateValue(fe.Value()),
		})
	}
	return result
}

// TranslateValidationError 第一条中文提示
func TranslateValidationError(err error) string {
	if translated := TranslateValidationErrors(err); len(translated) > 0 {
		return translated[0].Message
	}
	return ""
}

func translateFieldError(fe validator.FieldError) string {
	field := getFieldName(fe.Field())

	if pair, ok := sizeMessages[fe.Tag()]; ok {
		tmpl := pair[1]
		if fe.Kind() == reflect.String {
			tmpl = pair[0]
		}
		return fmt.Sprintf(tmpl, field, fe.Param())
	}
	if tmpl, ok := tagMessages[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field, fe.Param())
	}
	return fmt.Sprintf("%s验证失败: %s", field, fe.Tag())
}

func truncateValue(value any) string {
	if value == nil {
		return ""
	}
	s := fmt.Sprintf("%v", value)
	if len(s) > 50 {
		return s[:50] + "..."
	}
	return s
}

// getFieldName 未登记的字段按驼峰拆词，如 MaxDepth -> "Max Depth"
func getFieldName(field string) string {
	if name, ok := fieldNames[field]; ok {
		return name
	}
	var b strings.Builder
	for i, r := range field {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
