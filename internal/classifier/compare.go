package classifier

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/sense/internal/event"
)

// toFloat64 coerces a numeric value to float64.
func toFloat64(v any) (float64, bool) {
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
	case time.Duration:
		return float64(n), true
	}
	return 0, false
}

// toString accepts strings and the string-backed types of the event model.
func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case event.Status:
		return string(s), true
	case event.EventType:
		return string(s), true
	case event.BlockKind:
		return string(s), true
	case fmt.Stringer:
		return s.String(), true
	}
	return "", false
}

// equal compares values of the same kind only: numbers by value, string-backed types by
// content, durations and times with their own kind. Mixed kinds are never equal.
func equal(left, right any) bool {
	ld, lok := left.(time.Duration)
	rd, rok := right.(time.Duration)
	if lok || rok {
		return lok && rok && ld == rd
	}
	if lt, ok := left.(time.Time); ok {
		rt, ok := right.(time.Time)
		return ok && lt.Equal(rt)
	}
	if _, ok := right.(time.Time); ok {
		return false
	}
	if lb, ok := left.(bool); ok {
		rb, ok := right.(bool)
		return ok && lb == rb
	}
	if lf, ok := toFloat64(left); ok {
		rf, ok := toFloat64(right)
		return ok && math.Abs(lf-rf) < 1e-9
	}
	if ls, ok := toString(left); ok {
		rs, ok := toString(right)
		return ok && ls == rs
	}
	return reflect.DeepEqual(left, right)
}

// order returns -1, 0 or 1. Operands must both be numbers, times or strings.
func order(left, right any) (int, error) {
	if lf, ok := toFloat64(left); ok {
		rf, ok := toFloat64(right)
		if !ok {
			return 0, fmt.Errorf("cannot order %T against %T", left, right)
		}
		switch {
		case lf < rf:
			return -1, nil
		case lf > rf:
			return 1, nil
		}
		return 0, nil
	}
	if lt, ok := left.(time.Time); ok {
		rt, ok := right.(time.Time)
		if !ok {
			return 0, fmt.Errorf("cannot order %T against %T", left, right)
		}
		return lt.Compare(rt), nil
	}
	if ls, ok := toString(left); ok {
		rs, ok := toString(right)
		if !ok {
			return 0, fmt.Errorf("cannot order %T against %T", left, right)
		}
		return strings.Compare(ls, rs), nil
	}
	return 0, fmt.Errorf("values of type %T are not ordered", left)
}
