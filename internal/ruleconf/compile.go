package ruleconf

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/gyaneshwarpardhi/sense/internal/classifier"
)

type fieldSpec struct {
	lens    classifier.Lens
	operand func(any) (any, error)
}

var fields = map[string]fieldSpec{
	"id":            {classifier.ID, asText},
	"name":          {classifier.Name, asText},
	"type":          {classifier.Type, asText},
	"status":        {classifier.Status, asText},
	"parent_id":     {classifier.ParentID, asText},
	"start_time":    {classifier.StartTime, asTime},
	"end_time":      {classifier.EndTime, asTime},
	"duration":      {classifier.Duration, asDuration},
	"messages":      {classifier.Messages.Compose(classifier.Joined("\n")), asText},
	"message_count": {classifier.Messages.Compose(classifier.Size), asNumber},
	"references":    {classifier.References.Compose(classifier.Joined(",")), asText},
}

// asText keeps scalars written without quotes, such as name: 123, comparable with text fields.
func asText(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case int, int64, uint64, float64, bool:
		return fmt.Sprint(t), nil
	}
	return nil, fmt.Errorf("expected text, got %T", v)
}

func asNumber(v any) (any, error) {
	switch v.(type) {
	case int, int64, uint64, float64:
		return v, nil
	}
	return nil, fmt.Errorf("expected a number, got %T", v)
}

func asTime(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return nil, fmt.Errorf("expected an RFC 3339 timestamp: %w", err)
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("expected an RFC 3339 timestamp, got %T", v)
}

func asDuration(v any) (any, error) {
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return nil, err
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("expected a duration such as 1.5s, got %T", v)
}

// Compiler turns definitions into rules. It holds the CEL environment shared by every
// expression and is safe for concurrent use.
type Compiler struct {
	env *cel.Env
}

func NewCompiler() (*Compiler, error) {
	env, err := newExprEnv()
	if err != nil {
		return nil, fmt.Errorf("create expression environment: %w", err)
	}
	return &Compiler{env: env}, nil
}

// CompileAll compiles every definition, reporting all failures at once. Rule names must be
// unique within defs.
func (c *Compiler) CompileAll(defs []Definition) ([]*classifier.Rule, error) {
	var errs []error
	rules := make([]*classifier.Rule, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	for i, def := range defs {
		if seen[def.Name] {
			errs = append(errs, fmt.Errorf("rules[%d]: duplicate rule name %q", i, def.Name))
			continue
		}
		seen[def.Name] = true
		r, err := c.Compile(def)
		if err != nil {
			errs = append(errs, fmt.Errorf("rules[%d]: %w", i, err))
			continue
		}
		rules = append(rules, r)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return rules, nil
}

// Apply compiles defs and installs them as the startup rules of reg. reg is left untouched
// when any definition fails.
func (c *Compiler) Apply(reg *classifier.Registry, defs []Definition) error {
	rules, err := c.CompileAll(defs)
	if err != nil {
		return err
	}
	reg.ReplaceStartup(rules)
	return nil
}

// Compile builds a single rule.
func (c *Compiler) Compile(def Definition) (*classifier.Rule, error) {
	if strings.TrimSpace(def.Name) == "" {
		return nil, errors.New("rule name is required")
	}
	var supplier classifier.TypeSupplier
	switch {
	case def.Type != "" && def.TypeExpr != "":
		return nil, fmt.Errorf("rule %s: type and type_expr are mutually exclusive", def.Name)
	case def.Type != "":
		supplier = classifier.Const(def.Type)
	case def.TypeExpr != "":
		s, err := c.typeSupplier(def.TypeExpr)
		if err != nil {
			return nil, fmt.Errorf("rule %s: type_expr: %w", def.Name, err)
		}
		supplier = s
	default:
		return nil, fmt.Errorf("rule %s: type or type_expr is required", def.Name)
	}

	match, err := c.node(def.Match, "match")
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", def.Name, err)
	}
	return classifier.NewRule(def.Name, supplier, match)
}

// node compiles a node evaluated against an event.
func (c *Compiler) node(def NodeDef, path string) (*classifier.Node, error) {
	keys := def.eventKeys()
	if def.Field != "" {
		if len(keys) > 1 {
			return nil, fmt.Errorf("%s: field cannot be combined with %s", path, strings.Join(keys[1:], ", "))
		}
		spec, ok := fields[def.Field]
		if !ok {
			return nil, fmt.Errorf("%s: unknown field %q", path, def.Field)
		}
		value, err := c.value(def, spec, path+"."+def.Field)
		if err != nil {
			return nil, err
		}
		return classifier.NewTransform(spec.lens, value), nil
	}

	if ops := def.set(); len(ops) > 0 {
		return nil, fmt.Errorf("%s: %s requires a field", path, strings.Join(ops, ", "))
	}
	keys = append(keys, def.combinators()...)
	if len(keys) != 1 {
		if len(keys) == 0 {
			return nil, fmt.Errorf("%s: empty node", path)
		}
		return nil, fmt.Errorf("%s: exactly one key expected, got %s", path, strings.Join(keys, ", "))
	}

	switch {
	case def.AllOf != nil:
		return c.composite(classifier.NewAllOf, def.AllOf, path+".all_of", c.node)
	case def.AnyOf != nil:
		return c.composite(classifier.NewAnyOf, def.AnyOf, path+".any_of", c.node)
	case def.NoneOf != nil:
		return c.composite(classifier.NewNoneOf, def.NoneOf, path+".none_of", c.node)
	case def.Parent != nil:
		sub, err := c.node(*def.Parent, path+".parent")
		if err != nil {
			return nil, err
		}
		return classifier.NewRelated(classifier.RelationParent, sub), nil
	case def.Root != nil:
		sub, err := c.node(*def.Root, path+".root")
		if err != nil {
			return nil, err
		}
		return classifier.NewRelated(classifier.RelationRoot, sub), nil
	case def.HasParent != nil:
		if *def.HasParent {
			return classifier.NewHasRelated("hasParentEvent", classifier.RelationParent, true), nil
		}
		return classifier.NewHasRelated("doesNotHaveParentEvent", classifier.RelationParent, false), nil
	case def.IsRoot != nil:
		// a root event is one without a root ancestor
		if *def.IsRoot {
			return classifier.NewHasRelated("isRoot", classifier.RelationRoot, false), nil
		}
		return classifier.NewHasRelated("isNotRoot", classifier.RelationRoot, true), nil
	case def.Expr != "":
		n, err := c.exprNode(def.Expr)
		if err != nil {
			return nil, fmt.Errorf("%s.expr: %w", path, err)
		}
		return n, nil
	}
	return nil, fmt.Errorf("%s: empty node", path)
}

// value compiles the operator or combinator of a node applied to a field value.
func (c *Compiler) value(def NodeDef, spec fieldSpec, path string) (*classifier.Node, error) {
	keys := append(def.set(), def.combinators()...)
	if len(keys) != 1 {
		if len(keys) == 0 {
			return nil, fmt.Errorf("%s: an operator is required", path)
		}
		return nil, fmt.Errorf("%s: exactly one operator expected, got %s", path, strings.Join(keys, ", "))
	}
	nested := func(d NodeDef, p string) (*classifier.Node, error) {
		if ek := d.eventKeys(); len(ek) > 0 {
			return nil, fmt.Errorf("%s: %s is not allowed inside a field", p, strings.Join(ek, ", "))
		}
		return c.value(d, spec, p)
	}
	switch {
	case def.AllOf != nil:
		return c.composite(classifier.NewAllOf, def.AllOf, path+".all_of", nested)
	case def.AnyOf != nil:
		return c.composite(classifier.NewAnyOf, def.AnyOf, path+".any_of", nested)
	case def.NoneOf != nil:
		return c.composite(classifier.NewNoneOf, def.NoneOf, path+".none_of", nested)
	}
	n, err := operator(def.Operators, spec)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", path, keys[0], err)
	}
	return n, nil
}

func (c *Compiler) composite(
	build func(...*classifier.Node) (*classifier.Node, error),
	defs []NodeDef,
	path string,
	compile func(NodeDef, string) (*classifier.Node, error),
) (*classifier.Node, error) {
	children := make([]*classifier.Node, 0, len(defs))
	for i, d := range defs {
		n, err := compile(d, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}
	n, err := build(children...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

func operator(o Operators, spec fieldSpec) (*classifier.Node, error) {
	one := func(v any, mk func(any) *classifier.Node) (*classifier.Node, error) {
		operand, err := spec.operand(v)
		if err != nil {
			return nil, err
		}
		return mk(operand), nil
	}
	many := func(vs []any, mk func(...any) *classifier.Node) (*classifier.Node, error) {
		operands := make([]any, len(vs))
		for i, v := range vs {
			operand, err := spec.operand(v)
			if err != nil {
				return nil, err
			}
			operands[i] = operand
		}
		return mk(operands...), nil
	}
	switch {
	case o.Equal != nil:
		return one(o.Equal, classifier.Equal)
	case o.NotEqual != nil:
		return one(o.NotEqual, classifier.NotEqual)
	case o.In != nil:
		return many(o.In, classifier.In)
	case o.NotIn != nil:
		return many(o.NotIn, classifier.NotIn)
	case o.StartsWith != nil:
		return classifier.StartsWith(*o.StartsWith), nil
	case o.EndsWith != nil:
		return classifier.EndsWith(*o.EndsWith), nil
	case o.Contains != nil:
		return classifier.Contains(*o.Contains), nil
	case o.Regex != nil:
		re, err := regexp.Compile(*o.Regex)
		if err != nil {
			return nil, err
		}
		return classifier.MatchRegex(re), nil
	case o.EqualFold != nil:
		return classifier.EqualFold(*o.EqualFold), nil
	case o.Lt != nil:
		return one(o.Lt, classifier.LessThan)
	case o.Lte != nil:
		return one(o.Lte, classifier.LessOrEqual)
	case o.Gt != nil:
		return one(o.Gt, classifier.GreaterThan)
	case o.Gte != nil:
		return one(o.Gte, classifier.GreaterOrEqual)
	}
	return nil, errors.New("no operator")
}
