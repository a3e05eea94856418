package capdata

import (
	"encoding/json"
	"math/big"
	"strconv"
	"strings"
)

// Field walks nested records by key. It returns nil when any step is missing.
func Field(v any, keys ...string) any {
	for _, k := range keys {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[k]
	}
	return v
}

// Index returns the i-th element of a decoded array, or nil.
func Index(v any, i int) any {
	arr, ok := v.([]any)
	if !ok || i < 0 || i >= len(arr) {
		return nil
	}
	return arr[i]
}

// String renders ids that may be published as strings, numbers or bigints.
func String(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case *big.Int:
		return val.String(), true
	default:
		return "", false
	}
}

// Int64 reads an integer published as a number, bigint or numeric string.
func Int64(v any) (int64, bool) {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, true
		}
		f, err := val.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), true
	case *big.Int:
		if !val.IsInt64() {
			return 0, false
		}
		return val.Int64(), true
	case string:
		i, err := strconv.ParseInt(val, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// BigInt reads an arbitrary-precision integer published as a bigint,
// number or digit string.
func BigInt(v any) (*big.Int, bool) {
	switch val := v.(type) {
	case *big.Int:
		return val, true
	case json.Number:
		return new(big.Int).SetString(val.String(), 10)
	case string:
		return new(big.Int).SetString(val, 10)
	default:
		return nil, false
	}
}

// BrandName extracts the short name from an alleged interface such as
// "Alleged: BLD brand".
func BrandName(s Slot) string {
	fields := strings.Fields(s.Iface)
	if len(fields) >= 2 {
		return fields[1]
	}
	return s.Iface
}
