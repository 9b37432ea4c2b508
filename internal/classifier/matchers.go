package classifier

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// Leaf value tests. Each returns a node over the subject itself; combine with Builder.Field
// or NewTransform to apply it to an event field.

func Equal(want any) *Node {
	return NewTest(fmt.Sprintf("equal(%v)", want), func(_ *Context, v any) (bool, error) {
		return equal(v, want), nil
	})
}

func NotEqual(want any) *Node {
	return NewTest(fmt.Sprintf("notEqual(%v)", want), func(_ *Context, v any) (bool, error) {
		return !equal(v, want), nil
	})
}

func In(values ...any) *Node {
	return NewTest(fmt.Sprintf("in%v", values), func(_ *Context, v any) (bool, error) {
		return contains(values, v), nil
	})
}

func NotIn(values ...any) *Node {
	return NewTest(fmt.Sprintf("notIn%v", values), func(_ *Context, v any) (bool, error) {
		return !contains(values, v), nil
	})
}

func contains(values []any, v any) bool {
	for _, candidate := range values {
		if equal(v, candidate) {
			return true
		}
	}
	return false
}

func stringTest(name string, fn func(string) bool) *Node {
	return NewTest(name, func(_ *Context, v any) (bool, error) {
		s, ok := toString(v)
		if !ok {
			return false, fmt.Errorf("%s: expected a string, got %T", name, v)
		}
		return fn(s), nil
	})
}

func StartsWith(prefix string) *Node {
	return stringTest(fmt.Sprintf("startsWith(%q)", prefix), func(s string) bool {
		return strings.HasPrefix(s, prefix)
	})
}

func EndsWith(suffix string) *Node {
	return stringTest(fmt.Sprintf("endsWith(%q)", suffix), func(s string) bool {
		return strings.HasSuffix(s, suffix)
	})
}

func Contains(part string) *Node {
	return stringTest(fmt.Sprintf("contains(%q)", part), func(s string) bool {
		return strings.Contains(s, part)
	})
}

// MatchRegex requires the whole value to match re.
func MatchRegex(re *regexp.Regexp) *Node {
	anchored := regexp.MustCompile(`^(?:` + re.String() + `)$`)
	return stringTest(fmt.Sprintf("matchRegex(%s)", re), anchored.MatchString)
}

// EqualFold compares under Unicode case folding.
func EqualFold(want string) *Node {
	folded := cases.Fold().String(want)
	return stringTest(fmt.Sprintf("equalIgnoreCase(%q)", want), func(s string) bool {
		return cases.Fold().String(s) == folded
	})
}

func orderTest(name string, want any, accept func(int) bool) *Node {
	return NewTest(fmt.Sprintf("%s(%v)", name, want), func(_ *Context, v any) (bool, error) {
		o, err := order(v, want)
		if err != nil {
			return false, err
		}
		return accept(o), nil
	})
}

func LessThan(v any) *Node {
	return orderTest("lessThan", v, func(o int) bool { return o < 0 })
}

func LessOrEqual(v any) *Node {
	return orderTest("lessOrEqualTo", v, func(o int) bool { return o <= 0 })
}

func GreaterThan(v any) *Node {
	return orderTest("greaterThan", v, func(o int) bool { return o > 0 })
}

func GreaterOrEqual(v any) *Node {
	return orderTest("greaterOrEqualTo", v, func(o int) bool { return o >= 0 })
}

// Func wraps an arbitrary predicate; the Context gives access to the per-pass store.
func Func(name string, fn TestFunc) *Node {
	return NewTest(name, fn)
}
