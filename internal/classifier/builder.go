package classifier

import "errors"

// Builder collects the children of a composite node. The first construction error is kept
// and returned by the enclosing AllOf/AnyOf/NoneOf call.
//
//	match, err := classifier.AllOf(func(b *classifier.Builder) {
//		b.FieldAllOf(classifier.Name, func(v *classifier.Builder) {
//			v.Match(classifier.StartsWith("Test"))
//			v.Match(classifier.Contains("Execution"))
//		})
//		b.Parent(func(p *classifier.Builder) {
//			p.Field(classifier.Type, classifier.Equal("Suite"))
//		})
//	})
type Builder struct {
	nodes []*Node
	err   error
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder) add(n *Node, err error) {
	if err != nil {
		b.fail(err)
		return
	}
	b.nodes = append(b.nodes, n)
}

// Match adds a ready-made node.
func (b *Builder) Match(n *Node) {
	if n == nil {
		b.fail(errors.New("nil matcher"))
		return
	}
	b.add(n, nil)
}

// Field applies node to the value extracted by lens.
func (b *Builder) Field(lens Lens, n *Node) {
	if n == nil {
		b.fail(errors.New("nil matcher for field " + lens.String()))
		return
	}
	b.add(NewTransform(lens, n), nil)
}

// FieldAllOf requires every value test added in fn to accept the field value.
func (b *Builder) FieldAllOf(lens Lens, fn func(*Builder)) {
	b.field(lens, AllOf, fn)
}

func (b *Builder) FieldAnyOf(lens Lens, fn func(*Builder)) {
	b.field(lens, AnyOf, fn)
}

func (b *Builder) FieldNoneOf(lens Lens, fn func(*Builder)) {
	b.field(lens, NoneOf, fn)
}

func (b *Builder) field(lens Lens, combine func(func(*Builder)) (*Node, error), fn func(*Builder)) {
	n, err := combine(fn)
	if err != nil {
		b.fail(err)
		return
	}
	b.add(NewTransform(lens, n), nil)
}

func (b *Builder) AllOf(fn func(*Builder))  { b.add(AllOf(fn)) }
func (b *Builder) AnyOf(fn func(*Builder))  { b.add(AnyOf(fn)) }
func (b *Builder) NoneOf(fn func(*Builder)) { b.add(NoneOf(fn)) }

// Parent requires the parent event to exist and match every node added in fn.
func (b *Builder) Parent(fn func(*Builder)) { b.related(RelationParent, fn) }

// Root requires the root event to exist and match every node added in fn.
func (b *Builder) Root(fn func(*Builder)) { b.related(RelationRoot, fn) }

// Related adds an arbitrary node evaluated against the parent or root event.
func (b *Builder) Related(rel Relation, n *Node) {
	if n == nil {
		b.fail(errors.New("nil matcher for " + rel.String()))
		return
	}
	b.add(NewRelated(rel, n), nil)
}

func (b *Builder) related(rel Relation, fn func(*Builder)) {
	n, err := AllOf(fn)
	if err != nil {
		b.fail(err)
		return
	}
	b.add(NewRelated(rel, n), nil)
}

func (b *Builder) HasParent() {
	b.add(NewHasRelated("hasParentEvent", RelationParent, true), nil)
}

func (b *Builder) DoesNotHaveParent() {
	b.add(NewHasRelated("doesNotHaveParentEvent", RelationParent, false), nil)
}

func (b *Builder) IsRoot() {
	b.add(NewHasRelated("isRoot", RelationRoot, false), nil)
}

func build(kind Kind, fn func(*Builder)) (*Node, error) {
	b := &Builder{}
	fn(b)
	if b.err != nil {
		return nil, b.err
	}
	return newComposite(kind, b.nodes)
}

// AllOf builds a node accepting the subject only if every node added in fn accepts it.
func AllOf(fn func(*Builder)) (*Node, error) { return build(KindAllOf, fn) }

// AnyOf builds a node accepting the subject if any node added in fn accepts it.
func AnyOf(fn func(*Builder)) (*Node, error) { return build(KindAnyOf, fn) }

// NoneOf builds a node accepting the subject if no node added in fn accepts it.
func NoneOf(fn func(*Builder)) (*Node, error) { return build(KindNoneOf, fn) }
