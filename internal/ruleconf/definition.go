// Package ruleconf compiles declarative rule definitions (YAML configuration or JSON API
// payloads) into classifier rules.
package ruleconf

// Definition is one rule as written in configuration.
//
//	- name: failed-tests
//	  type: FailedTest
//	  match:
//	    all_of:
//	      - { field: name, starts_with: Test }
//	      - { field: status, equal: FAILED }
//	      - parent:
//	          field: type
//	          equal: Suite
type Definition struct {
	Name     string  `yaml:"name" json:"name"`
	Type     string  `yaml:"type,omitempty" json:"type,omitempty"`
	TypeExpr string  `yaml:"type_expr,omitempty" json:"type_expr,omitempty"`
	Match    NodeDef `yaml:"match" json:"match"`
}

// NodeDef is one node of a rule. Exactly one key is set, except that field is combined
// with one operator or value combinator applied to the field value.
type NodeDef struct {
	AllOf  []NodeDef `yaml:"all_of,omitempty" json:"all_of,omitempty"`
	AnyOf  []NodeDef `yaml:"any_of,omitempty" json:"any_of,omitempty"`
	NoneOf []NodeDef `yaml:"none_of,omitempty" json:"none_of,omitempty"`

	Parent    *NodeDef `yaml:"parent,omitempty" json:"parent,omitempty"`
	Root      *NodeDef `yaml:"root,omitempty" json:"root,omitempty"`
	HasParent *bool    `yaml:"has_parent,omitempty" json:"has_parent,omitempty"`
	IsRoot    *bool    `yaml:"is_root,omitempty" json:"is_root,omitempty"`

	// Expr is a CEL boolean expression over the `event` variable.
	Expr string `yaml:"expr,omitempty" json:"expr,omitempty"`

	Field     string `yaml:"field,omitempty" json:"field,omitempty"`
	Operators `yaml:",inline"`
}

// Operators are the leaf tests applied to a field value.
type Operators struct {
	Equal      any     `yaml:"equal,omitempty" json:"equal,omitempty"`
	NotEqual   any     `yaml:"not_equal,omitempty" json:"not_equal,omitempty"`
	In         []any   `yaml:"in,omitempty" json:"in,omitempty"`
	NotIn      []any   `yaml:"not_in,omitempty" json:"not_in,omitempty"`
	StartsWith *string `yaml:"starts_with,omitempty" json:"starts_with,omitempty"`
	EndsWith   *string `yaml:"ends_with,omitempty" json:"ends_with,omitempty"`
	Contains   *string `yaml:"contains,omitempty" json:"contains,omitempty"`
	Regex      *string `yaml:"regex,omitempty" json:"regex,omitempty"`
	EqualFold  *string `yaml:"equal_fold,omitempty" json:"equal_fold,omitempty"`
	Lt         any     `yaml:"lt,omitempty" json:"lt,omitempty"`
	Lte        any     `yaml:"lte,omitempty" json:"lte,omitempty"`
	Gt         any     `yaml:"gt,omitempty" json:"gt,omitempty"`
	Gte        any     `yaml:"gte,omitempty" json:"gte,omitempty"`
}

// set lists the operator keys present.
func (o Operators) set() []string {
	var keys []string
	add := func(ok bool, key string) {
		if ok {
			keys = append(keys, key)
		}
	}
	add(o.Equal != nil, "equal")
	add(o.NotEqual != nil, "not_equal")
	add(o.In != nil, "in")
	add(o.NotIn != nil, "not_in")
	add(o.StartsWith != nil, "starts_with")
	add(o.EndsWith != nil, "ends_with")
	add(o.Contains != nil, "contains")
	add(o.Regex != nil, "regex")
	add(o.EqualFold != nil, "equal_fold")
	add(o.Lt != nil, "lt")
	add(o.Lte != nil, "lte")
	add(o.Gt != nil, "gt")
	add(o.Gte != nil, "gte")
	return keys
}

// eventKeys lists the event-level keys present, field included.
func (n NodeDef) eventKeys() []string {
	var keys []string
	add := func(ok bool, key string) {
		if ok {
			keys = append(keys, key)
		}
	}
	add(n.Field != "", "field")
	add(n.Parent != nil, "parent")
	add(n.Root != nil, "root")
	add(n.HasParent != nil, "has_parent")
	add(n.IsRoot != nil, "is_root")
	add(n.Expr != "", "expr")
	return keys
}

// combinators lists the combinator keys present.
func (n NodeDef) combinators() []string {
	var keys []string
	if n.AllOf != nil {
		keys = append(keys, "all_of")
	}
	if n.AnyOf != nil {
		keys = append(keys, "any_of")
	}
	if n.NoneOf != nil {
		keys = append(keys, "none_of")
	}
	return keys
}
