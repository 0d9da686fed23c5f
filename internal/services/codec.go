package services

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/huangang/erpsettings/internal/models"
)

// jsonAPI matches encoding/json output (sorted map keys) so stored JSON
// values are stable across writes.
var jsonAPI = sonic.ConfigStd

// NormalizeType maps accepted aliases onto the canonical value types.
func NormalizeType(typ string) string {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", models.TypeString:
		return models.TypeString
	case models.TypeBoolean, "bool":
		return models.TypeBoolean
	case models.TypeInteger, "int":
		return models.TypeInteger
	case models.TypeJSON:
		return models.TypeJSON
	case models.TypeArray:
		return models.TypeArray
	default:
		return models.TypeString
	}
}

// Encode renders value as the string stored for the given type.
func Encode(value any, typ string) (string, error) {
	switch NormalizeType(typ) {
	case models.TypeBoolean:
		b, ok := toBool(value)
		if !ok {
			return "", fmt.Errorf("cannot store %v as boolean", value)
		}
		return strconv.FormatBool(b), nil
	case models.TypeInteger:
		if isBlank(value) {
			return "", nil
		}
		n, ok := toInt(value)
		if !ok {
			return "", fmt.Errorf("cannot store %v as integer", value)
		}
		return strconv.FormatInt(n, 10), nil
	case models.TypeJSON, models.TypeArray:
		if NormalizeType(typ) == models.TypeArray && value != nil && !isList(value) {
			return "", fmt.Errorf("cannot store %T as array", value)
		}
		out, err := jsonAPI.MarshalToString(value)
		if err != nil {
			return "", fmt.Errorf("encode json: %w", err)
		}
		return out, nil
	default:
		return toString(value), nil
	}
}

// Decode parses a stored string back into its typed value: bool, int,
// decoded JSON, or the raw string.
func Decode(raw, typ string) (any, error) {
	switch NormalizeType(typ) {
	case models.TypeBoolean:
		b, _ := toBool(raw)
		return b, nil
	case models.TypeInteger:
		if strings.TrimSpace(raw) == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("decode integer %q: %w", raw, err)
		}
		return n, nil
	case models.TypeJSON, models.TypeArray:
		if strings.TrimSpace(raw) == "" {
			if NormalizeType(typ) == models.TypeArray {
				return []any{}, nil
			}
			return nil, nil
		}
		var v any
		if err := jsonAPI.UnmarshalFromString(raw, &v); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		return v, nil
	default:
		return raw, nil
	}
}

// InferType picks a value type from a Go value for first writes.
func InferType(value any) string {
	switch v := value.(type) {
	case bool:
		return models.TypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return models.TypeInteger
	case float64:
		if _, ok := floatToInt(v); ok {
			return models.TypeInteger
		}
		return models.TypeString
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return models.TypeInteger
		}
		return models.TypeString
	case nil, string:
		return models.TypeString
	}
	if isList(value) {
		return models.TypeArray
	}
	if reflect.ValueOf(value).Kind() == reflect.Map {
		return models.TypeJSON
	}
	return models.TypeString
}

func isList(value any) bool {
	k := reflect.ValueOf(value).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func toBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "on", "yes":
			return true, true
		case "0", "false", "off", "no", "":
			return false, true
		}
	case nil:
		return false, true
	}
	if n, ok := toInt(value); ok && (n == 0 || n == 1) {
		return n == 1, true
	}
	return false, false
}

func toInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	}
	return 0, false
}

// floatToInt accepts whole numbers that fit in an int64. 2^63 itself is
// out of range even though it converts back to MaxInt64 as a float.
func floatToInt(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// isBlank reports a cleared form input: nil or whitespace only.
func isBlank(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	}
	return false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	if n, ok := toInt(value); ok {
		return float64(n), true
	}
	return 0, false
}

// toString renders scalars the way a form would submit them.
func toString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case json.Number:
		return v.String()
	case []byte:
		return string(v)
	}
	if n, ok := toInt(value); ok {
		return strconv.FormatInt(n, 10)
	}
	if isList(value) || reflect.ValueOf(value).Kind() == reflect.Map {
		if out, err := jsonAPI.MarshalToString(value); err == nil {
			return out
		}
	}
	return fmt.Sprint(value)
}
