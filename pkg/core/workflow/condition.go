package workflow

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// ConditionOperator 条件运算符
type ConditionOperator string

const (
	OpEquals    ConditionOperator = "eq"
	OpNotEquals ConditionOperator = "ne"
	OpGreater   ConditionOperator = "gt"
	OpGreaterEq ConditionOperator = "gte"
	OpLess      ConditionOperator = "lt"
	OpLessEq    ConditionOperator = "lte"
	OpExists    ConditionOperator = "exists"
	OpNotExists ConditionOperator = "not_exists"
	OpTruthy    ConditionOperator = "truthy"
)

// Condition 任务执行条件（对外导出）
// Field 为点分路径，作用域包含 input.* 和 tasks.<taskID>.status / tasks.<taskID>.output.*
type Condition struct {
	Field    string            `json:"field" yaml:"field" validate:"required"`
	Operator ConditionOperator `json:"operator" yaml:"operator" validate:"required,oneof=eq ne gt gte lt lte exists not_exists truthy"`
	Value    interface{}       `json:"value,omitempty" yaml:"value"`
}

// Evaluate 在给定作用域上求值
func (c *Condition) Evaluate(scope map[string]interface{}) (bool, error) {
	actual, found := lookupPath(scope, c.Field)
	switch c.Operator {
	case OpExists:
		return found, nil
	case OpNotExists:
		return !found, nil
	case OpTruthy:
		return found && truthy(actual), nil
	case OpEquals:
		return found && looseEqual(actual, c.Value), nil
	case OpNotEquals:
		return !found || !looseEqual(actual, c.Value), nil
	case OpGreater, OpGreaterEq, OpLess, OpLessEq:
		if !found {
			return false, nil
		}
		a, okA := toFloat(actual)
		b, okB := toFloat(c.Value)
		if !okA || !okB {
			return false, fmt.Errorf("条件 %s %s 需要数值比较，实际值: %v, 期望值: %v", c.Field, c.Operator, actual, c.Value)
		}
		switch c.Operator {
		case OpGreater:
			return a > b, nil
		case OpGreaterEq:
			return a >= b, nil
		case OpLess:
			return a < b, nil
		default:
			return a <= b, nil
		}
	}
	return false, fmt.Errorf("不支持的条件运算符: %s", c.Operator)
}

func lookupPath(scope map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	var current interface{} = scope
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != "" && x != "false" && x != "0"
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() > 0
	}
	return true
}

func looseEqual(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}
