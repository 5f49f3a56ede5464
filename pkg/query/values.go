package query

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Record values are one of: nil, bool, string, a number, time.Time, []any,
// Record or Records. Numbers of any Go numeric type compare by value.

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// asList returns the value as a list when it is one.
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case Records:
		out := make([]any, len(l))
		for i, r := range l {
			out[i] = r
		}
		return out, true
	default:
		return nil, false
	}
}

// ValuesEqual compares two record values.
func ValuesEqual(a, b any) bool {
	return canonicalValue(a) == canonicalValue(b)
}

// compareValues orders two scalar values of the same kind. The boolean is
// false when the values cannot be ordered.
func compareValues(a, b any) (int, bool) {
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		if !ok {
			return 0, false
		}
		return cmp.Compare(fa, fb), true
	}

	switch va := a.(type) {
	case string:
		vb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(va, vb), true
	case time.Time:
		vb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return va.Compare(vb), true
	default:
		return 0, false
	}
}

// canonicalValue returns a deterministic encoding of a value, used for
// equality, deduplication and hashing.
func canonicalValue(v any) string {
	var sb strings.Builder
	writeCanonical(&sb, v)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, v any) {
	if f, ok := asFloat(v); ok {
		sb.WriteString("n:")
		sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		return
	}

	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		sb.WriteString("b:")
		sb.WriteString(strconv.FormatBool(val))
	case string:
		sb.WriteString(strconv.Quote(val))
	case time.Time:
		sb.WriteString("t:")
		sb.WriteString(val.UTC().Format(time.RFC3339Nano))
	case Record:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteByte(':')
			writeCanonical(sb, val[k])
		}
		sb.WriteByte('}')
	case map[string]any:
		writeCanonical(sb, Record(val))
	default:
		if list, ok := asList(v); ok {
			sb.WriteByte('[')
			for i, item := range list {
				if i > 0 {
					sb.WriteByte(',')
				}
				writeCanonical(sb, item)
			}
			sb.WriteByte(']')
			return
		}
		fmt.Fprintf(sb, "%T:%v", v, v)
	}
}
