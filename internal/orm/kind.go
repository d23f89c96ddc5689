package orm

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Kind identifies the storage shape of a persistable scalar field.
type Kind int

const (
	KindText Kind = iota + 1
	KindInt
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindDecimal
	KindBool
	KindTimestamp
)

var kindNames = map[Kind]string{
	KindText:      "text",
	KindInt:       "int",
	KindInt8:      "int8",
	KindInt16:     "int16",
	KindInt32:     "int32",
	KindInt64:     "int64",
	KindUint:      "uint",
	KindUint8:     "uint8",
	KindUint16:    "uint16",
	KindUint32:    "uint32",
	KindUint64:    "uint64",
	KindDecimal:   "decimal",
	KindBool:      "bool",
	KindTimestamp: "timestamp",
}

// String returns the lowercase kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// KindSet is the set of scalar kinds a model is allowed to clone, compare and persist.
type KindSet map[Kind]struct{}

// NewKindSet builds a KindSet from the provided kinds.
func NewKindSet(kinds ...Kind) KindSet {
	set := make(KindSet, len(kinds))
	for _, kind := range kinds {
		set[kind] = struct{}{}
	}
	return set
}

// Contains reports whether kind is a member of the set.
func (s KindSet) Contains(kind Kind) bool {
	_, ok := s[kind]
	return ok
}

// ScalarKinds is the full allowed scalar set. It is passed explicitly to NewModel,
// which hands it to every tracker it builds.
var ScalarKinds = NewKindSet(
	KindText,
	KindInt, KindInt8, KindInt16, KindInt32, KindInt64,
	KindUint, KindUint8, KindUint16, KindUint32, KindUint64,
	KindDecimal,
	KindBool,
	KindTimestamp,
)

// Scalar constrains the Go types a Column may bind to.
type Scalar interface {
	string |
		int | int8 | int16 | int32 | int64 |
		uint | uint8 | uint16 | uint32 | uint64 |
		float32 | float64 |
		bool |
		time.Time
}

func kindOf[V Scalar]() Kind {
	var zero V
	switch any(zero).(type) {
	case string:
		return KindText
	case int:
		return KindInt
	case int8:
		return KindInt8
	case int16:
		return KindInt16
	case int32:
		return KindInt32
	case int64:
		return KindInt64
	case uint:
		return KindUint
	case uint8:
		return KindUint8
	case uint16:
		return KindUint16
	case uint32:
		return KindUint32
	case uint64:
		return KindUint64
	case float32, float64:
		return KindDecimal
	case bool:
		return KindBool
	default:
		return KindTimestamp
	}
}

// convertScalar coerces a driver value into V.
func convertScalar[V Scalar](raw any) (V, error) {
	var zero V
	var (
		out any
		err error
	)
	switch any(zero).(type) {
	case string:
		out, err = cast.ToStringE(raw)
	case int:
		out, err = cast.ToIntE(raw)
	case int8:
		out, err = cast.ToInt8E(raw)
	case int16:
		out, err = cast.ToInt16E(raw)
	case int32:
		out, err = cast.ToInt32E(raw)
	case int64:
		out, err = cast.ToInt64E(raw)
	case uint:
		out, err = cast.ToUintE(raw)
	case uint8:
		out, err = cast.ToUint8E(raw)
	case uint16:
		out, err = cast.ToUint16E(raw)
	case uint32:
		out, err = cast.ToUint32E(raw)
	case uint64:
		out, err = cast.ToUint64E(raw)
	case float32:
		out, err = cast.ToFloat32E(raw)
	case float64:
		out, err = cast.ToFloat64E(raw)
	case bool:
		out, err = cast.ToBoolE(raw)
	case time.Time:
		out, err = cast.ToTimeE(raw)
	}
	if err != nil {
		return zero, err
	}
	value, ok := out.(V)
	if !ok {
		return zero, fmt.Errorf("unexpected %T converting to %T", out, zero)
	}
	return value, nil
}

func equalScalar[V Scalar](left, right V) bool {
	if leftTime, ok := any(left).(time.Time); ok {
		return leftTime.Equal(any(right).(time.Time))
	}
	return left == right
}

const keySeparator = "\x1f"

// encodeKey renders key values into a map key. Numbers of different widths with
// equal values encode identically so foreign keys match across declared kinds.
func encodeKey(values ...any) string {
	parts := make([]string, len(values))
	for index, value := range values {
		switch typed := value.(type) {
		case string:
			parts[index] = strconv.Quote(typed)
		case time.Time:
			parts[index] = typed.UTC().Format(time.RFC3339Nano)
		default:
			parts[index] = fmt.Sprint(typed)
		}
	}
	return strings.Join(parts, keySeparator)
}
