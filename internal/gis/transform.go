package gis

import (
	"strings"
	"time"

	"github.com/sells-group/parcel-resolver/internal/model"
)

// TransformKind names a pure value transform applied to a mapped attribute.
type TransformKind string

const (
	// TransformNone passes the value through.
	TransformNone TransformKind = ""
	// TransformBool coerces Y/N, 1/0, true/false style flags to a bool.
	TransformBool TransformKind = "bool"
	// TransformPositive keeps numbers greater than zero and drops the rest.
	TransformPositive TransformKind = "positive"
	// TransformEpochDate turns ArcGIS epoch-millisecond dates into YYYY-MM-DD.
	TransformEpochDate TransformKind = "epoch_date"
)

// Valid reports whether k is a known transform.
func (k TransformKind) Valid() bool {
	switch k {
	case TransformNone, TransformBool, TransformPositive, TransformEpochDate:
		return true
	}
	return false
}

// Apply transforms v. The second return is false when the value should be
// treated as absent.
func (k TransformKind) Apply(v any) (any, bool) {
	switch k {
	case TransformBool:
		return toBool(v)
	case TransformPositive:
		n, ok := model.ToFloat(v)
		if !ok || n <= 0 {
			return nil, false
		}
		return n, true
	case TransformEpochDate:
		ms, ok := model.ToFloat(v)
		if !ok || ms <= 0 {
			return nil, false
		}
		return time.UnixMilli(int64(ms)).UTC().Format("2006-01-02"), true
	default:
		return v, true
	}
}

func toBool(v any) (any, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToUpper(strings.TrimSpace(x)) {
		case "Y", "YES", "T", "TRUE", "1", "H", "X":
			return true, true
		case "N", "NO", "F", "FALSE", "0":
			return false, true
		}
		return nil, false
	}
	if n, ok := model.ToFloat(v); ok {
		return n != 0, true
	}
	return nil, false
}

// isEmpty reports whether a raw attribute carries no information.
func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	}
	return false
}
