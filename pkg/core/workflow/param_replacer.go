package workflow

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\$\{([^${}]+)\}`)

// ReplacePlaceholder 替换字符串中的 ${key} 占位符
// 整个字符串就是一个占位符时返回原始类型的值；嵌入在文本中时按字符串拼接
// 返回替换后的值和未找到的占位符名称
func ReplacePlaceholder(value string, params map[string]interface{}) (interface{}, []string) {
	matches := placeholderPattern.FindAllStringSubmatchIndex(value, -1)
	if len(matches) == 0 {
		return value, nil
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(value) {
		name := value[matches[0][2]:matches[0][3]]
		if actual, ok := params[name]; ok {
			return actual, nil
		}
		return value, []string{name}
	}

	var missing []string
	replaced := placeholderPattern.ReplaceAllStringFunc(value, func(m string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(m, "${"), "}")
		actual, ok := params[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		if actual == nil {
			return ""
		}
		if s, ok := actual.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", actual)
	})
	return replaced, missing
}

// ResolveConfig 返回替换占位符后的配置副本，原配置不被修改
// 嵌套的 map 和 []interface{} 会递归处理，未找到的占位符原样保留并在错误中列出
func ResolveConfig(config map[string]interface{}, params map[string]interface{}) (map[string]interface{}, error) {
	if config == nil {
		return nil, nil
	}
	var unreplaced []string
	resolved := resolveValue(config, params, &unreplaced).(map[string]interface{})
	if len(unreplaced) > 0 {
		return resolved, fmt.Errorf("以下占位符未找到对应的参数值: %v", unreplaced)
	}
	return resolved, nil
}

func resolveValue(v interface{}, params map[string]interface{}, unreplaced *[]string) interface{} {
	switch x := v.(type) {
	case string:
		out, missing := ReplacePlaceholder(x, params)
		*unreplaced = append(*unreplaced, missing...)
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, item := range x {
			out[k] = resolveValue(item, params, unreplaced)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, item := range x {
			out[i] = resolveValue(item, params, unreplaced)
		}
		return out
	default:
		return v
	}
}
