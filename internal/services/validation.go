package services

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/huangang/erpsettings/pkg/logger"
)

var validate = validator.New()

// ValidateRules checks payload[key] against every rule list and returns
// the failures keyed by field. labels supplies display names for messages.
//
// Supported tokens: required, nullable, string, integer, boolean, numeric,
// array, json, email, url, timezone, hexcolor, min:N, max:N, in:a,b,c.
func ValidateRules(payload map[string]any, rules map[string][]string, labels map[string]string) map[string][]string {
	errs := make(map[string][]string)

	keys := make([]string, 0, len(rules))
	for k := range rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		label := labels[key]
		if label == "" {
			label = strings.ReplaceAll(key, "_", " ")
		}
		if msgs := checkField(label, payload[key], rules[key]); len(msgs) > 0 {
			errs[key] = msgs
		}
	}
	return errs
}

func checkField(label string, value any, rules []string) []string {
	numeric := false
	for _, r := range rules {
		if r == "integer" || r == "numeric" {
			numeric = true
		}
	}

	for _, r := range rules {
		if r == "required" && isEmpty(value) {
			return []string{fmt.Sprintf("The %s field is required.", label)}
		}
		if r == "nullable" && isEmpty(value) {
			return nil
		}
	}

	var msgs []string
	for _, rule := range rules {
		name, arg, _ := strings.Cut(rule, ":")
		if name == "required" || name == "nullable" {
			continue
		}
		if msg := checkRule(label, value, name, arg, numeric); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}

func checkRule(label string, value any, name, arg string, numeric bool) string {
	switch name {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("The %s must be a string.", label)
		}
	case "integer":
		if _, ok := toInt(value); !ok {
			return fmt.Sprintf("The %s must be an integer.", label)
		}
	case "numeric":
		if _, ok := toFloat(value); !ok {
			return fmt.Sprintf("The %s must be a number.", label)
		}
	case "boolean":
		if _, ok := value.(bool); ok {
			return ""
		}
		if _, ok := toBool(value); !ok || value == nil {
			return fmt.Sprintf("The %s field must be true or false.", label)
		}
	case "array":
		if !isList(value) {
			return fmt.Sprintf("The %s must be an array.", label)
		}
	case "json":
		switch v := value.(type) {
		case map[string]any, []any:
		case string:
			if validate.Var(v, "json") != nil {
				return fmt.Sprintf("The %s must be a valid JSON string.", label)
			}
		default:
			return fmt.Sprintf("The %s must be a valid JSON string.", label)
		}
	case "email":
		if validate.Var(toString(value), "email") != nil {
			return fmt.Sprintf("The %s must be a valid email address.", label)
		}
	case "url":
		if validate.Var(toString(value), "url") != nil {
			return fmt.Sprintf("The %s must be a valid URL.", label)
		}
	case "timezone":
		if validate.Var(toString(value), "timezone") != nil {
			return fmt.Sprintf("The %s must be a valid timezone.", label)
		}
	case "hexcolor":
		if validate.Var(toString(value), "hexcolor") != nil {
			return fmt.Sprintf("The %s must be a valid hex color.", label)
		}
	case "min", "max":
		return checkSize(label, value, name, arg, numeric)
	case "in":
		allowed := strings.Split(arg, ",")
		s := toString(value)
		for _, a := range allowed {
			if s == strings.TrimSpace(a) {
				return ""
			}
		}
		return fmt.Sprintf("The selected %s is invalid.", label)
	default:
		logger.Warn().Str("rule", name).Msg("[Validation] unknown rule ignored")
	}
	return ""
}

// checkSize applies min/max to the number, the string length or the
// element count, depending on the value and the field's other rules.
func checkSize(label string, value any, name, arg string, numeric bool) string {
	limit, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		logger.Warn().Str("rule", name+":"+arg).Msg("[Validation] malformed size rule ignored")
		return ""
	}
	tag := name + "=" + arg

	if numeric {
		f, ok := toFloat(value)
		if !ok {
			return ""
		}
		if validate.Var(f, tag) != nil {
			if name == "min" {
				return fmt.Sprintf("The %s must be at least %s.", label, arg)
			}
			return fmt.Sprintf("The %s may not be greater than %s.", label, arg)
		}
		return ""
	}

	if isList(value) {
		n := listLen(value)
		if (name == "min" && float64(n) < limit) || (name == "max" && float64(n) > limit) {
			if name == "min" {
				return fmt.Sprintf("The %s must have at least %s items.", label, arg)
			}
			return fmt.Sprintf("The %s may not have more than %s items.", label, arg)
		}
		return ""
	}

	n := utf8.RuneCountInString(toString(value))
	if (name == "min" && float64(n) < limit) || (name == "max" && float64(n) > limit) {
		if name == "min" {
			return fmt.Sprintf("The %s must be at least %s characters.", label, arg)
		}
		return fmt.Sprintf("The %s may not be greater than %s characters.", label, arg)
	}
	return ""
}

func listLen(value any) int {
	return reflect.ValueOf(value).Len()
}
