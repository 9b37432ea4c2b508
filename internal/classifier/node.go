package classifier

import (
	"errors"
	"fmt"
)

// ErrEmptyComposite is returned when an AllOf/AnyOf/NoneOf node is built without children.
var ErrEmptyComposite = errors.New("composite node requires at least one child")

// Kind discriminates predicate nodes.
type Kind uint8

const (
	KindField      Kind = iota + 1 // lens + leaf test
	KindAllOf                      // every child matches
	KindAnyOf                      // at least one child matches
	KindNoneOf                     // no child matches
	KindRelated                    // sub-node against the parent/root event
	KindHasRelated                 // parent/root existence
	KindTransform                  // sub-node against a lens-extracted value
)

func (k Kind) String() string {
	switch k {
	case KindField:
		return "field"
	case KindAllOf:
		return "allOf"
	case KindAnyOf:
		return "anyOf"
	case KindNoneOf:
		return "noneOf"
	case KindRelated:
		return "related"
	case KindHasRelated:
		return "hasRelated"
	case KindTransform:
		return "transform"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Relation selects which ancestor a related node resolves.
type Relation uint8

const (
	RelationParent Relation = iota + 1
	RelationRoot
)

func (r Relation) String() string {
	switch r {
	case RelationParent:
		return "parent"
	case RelationRoot:
		return "root"
	}
	return fmt.Sprintf("relation(%d)", uint8(r))
}

// TestFunc is a leaf predicate over an extracted value.
type TestFunc func(c *Context, v any) (bool, error)

// Node is one node of an immutable predicate tree. Only the fields of its Kind are set.
type Node struct {
	kind      Kind
	name      string
	lens      Lens
	test      TestFunc
	children  []*Node
	sub       *Node
	relation  Relation
	mustExist bool
}

func (n *Node) Kind() Kind { return n.kind }

// String describes the node for logs, e.g. `name.startsWith("T")` or `allOf[3]`.
func (n *Node) String() string {
	switch n.kind {
	case KindField:
		if n.lens.IsIdentity() {
			return n.name
		}
		return n.lens.String() + "." + n.name
	case KindAllOf, KindAnyOf, KindNoneOf:
		return fmt.Sprintf("%s[%d]", n.kind, len(n.children))
	case KindRelated:
		return n.relation.String() + "Event"
	case KindHasRelated:
		return n.name
	case KindTransform:
		return n.lens.String()
	}
	return n.kind.String()
}

// NewField builds a leaf node: extract with lens, then apply test.
func NewField(lens Lens, name string, test TestFunc) *Node {
	return &Node{kind: KindField, lens: lens, name: name, test: test}
}

// NewTest builds a leaf over the subject itself.
func NewTest(name string, test TestFunc) *Node {
	return NewField(Lens{}, name, test)
}

func newComposite(kind Kind, children []*Node) (*Node, error) {
	if len(children) == 0 {
		return nil, fmt.Errorf("%s: %w", kind, ErrEmptyComposite)
	}
	for i, c := range children {
		if c == nil {
			return nil, fmt.Errorf("%s: child %d is nil", kind, i)
		}
	}
	cp := make([]*Node, len(children))
	copy(cp, children)
	return &Node{kind: kind, children: cp}, nil
}

func NewAllOf(children ...*Node) (*Node, error)  { return newComposite(KindAllOf, children) }
func NewAnyOf(children ...*Node) (*Node, error)  { return newComposite(KindAnyOf, children) }
func NewNoneOf(children ...*Node) (*Node, error) { return newComposite(KindNoneOf, children) }

// NewRelated matches sub against the related event; false when there is none.
func NewRelated(rel Relation, sub *Node) *Node {
	return &Node{kind: KindRelated, relation: rel, sub: sub}
}

// NewHasRelated is true iff the related event exists and mustExist, or is absent and !mustExist.
func NewHasRelated(name string, rel Relation, mustExist bool) *Node {
	return &Node{kind: KindHasRelated, name: name, relation: rel, mustExist: mustExist}
}

// NewTransform evaluates sub against the value extracted by lens.
// A leaf sub-node is folded into a single field node.
func NewTransform(lens Lens, sub *Node) *Node {
	if sub.kind == KindField {
		return NewField(lens.Compose(sub.lens), sub.name, sub.test)
	}
	return &Node{kind: KindTransform, lens: lens, sub: sub}
}
