// Package condition implements the Condition Leaf/Tree boolean algebra
// (spec C3/C4): attribute-existence and comparison predicates composed with
// AND/OR into an explicitly grouped tree. A Tree is pure data; building one
// never touches a backend. Grounded on the fogfish-dynamo constraint builder
// (other_examples/709bfe27_fogfish-dynamo__service-ddb-constraint.go.go),
// whose join/Apply recursion this tree's Walk/compiler split mirrors,
// generalized from a flat AND-only list to an explicit AND/OR tree with
// grouping.
package condition

import (
	"fmt"

	"github.com/bkio/crosscloudkit/pkg/primitive"
)

// LeafKind enumerates the atomic predicates a Leaf can express.
type LeafKind int

const (
	AttributeExists LeafKind = iota
	AttributeNotExists
	Equals
	NotEquals
	GreaterThan
	GreaterOrEqual
	LessThan
	LessOrEqual
	ArrayElementExists
	ArrayElementNotExists
)

func (k LeafKind) String() string {
	switch k {
	case AttributeExists:
		return "attribute_exists"
	case AttributeNotExists:
		return "attribute_not_exists"
	case Equals:
		return "="
	case NotEquals:
		return "<>"
	case GreaterThan:
		return ">"
	case GreaterOrEqual:
		return ">="
	case LessThan:
		return "<"
	case LessOrEqual:
		return "<="
	case ArrayElementExists:
		return "array_contains"
	case ArrayElementNotExists:
		return "array_not_contains"
	default:
		return "unknown"
	}
}

// isComparison reports whether a leaf kind compares a value against a
// missing attribute must fail (spec Open Question 3): only AttributeExists
// and AttributeNotExists witness absence, every comparison kind below fails
// against a missing attribute rather than treating it as a false match.
func (k LeafKind) isComparison() bool {
	switch k {
	case Equals, NotEquals, GreaterThan, GreaterOrEqual, LessThan, LessOrEqual:
		return true
	default:
		return false
	}
}

// Leaf is a single predicate over one attribute. Value is nil for
// AttributeExists/AttributeNotExists; every other kind requires one.
type Leaf struct {
	Kind      LeafKind
	Attribute string
	Value     *primitive.Primitive
}

// Validate reports a structural error (empty attribute name, or a value
// required but missing / present but not permitted).
func (l Leaf) Validate() error {
	if l.Attribute == "" {
		return fmt.Errorf("condition: leaf attribute name must not be empty")
	}
	needsValue := l.Kind != AttributeExists && l.Kind != AttributeNotExists
	if needsValue && l.Value == nil {
		return fmt.Errorf("condition: leaf kind %s requires a value", l.Kind)
	}
	if !needsValue && l.Value != nil {
		return fmt.Errorf("condition: leaf kind %s must not carry a value", l.Kind)
	}
	return nil
}

// boolOp joins two subtrees.
type boolOp int

const (
	opAnd boolOp = iota
	opOr
)

type treeKind int

const (
	treeEmpty treeKind = iota
	treeLeaf
	treeNode
)

// Tree is an immutable Condition Tree: either empty (always satisfied), a
// single Leaf, or an AND/OR node over two subtrees. Construct with Empty,
// NewLeaf, And, Or, and AggregateAnd; the zero value is equivalent to Empty.
type Tree struct {
	kind treeKind
	leaf Leaf
	op   boolOp
	left *Tree
	right *Tree
}

// Empty returns the always-true condition: a write carrying it is
// unconditional.
func Empty() Tree { return Tree{kind: treeEmpty} }

func (t Tree) IsEmpty() bool { return t.kind == treeEmpty }

// NewLeaf wraps a single Leaf as a Tree. Panics if the leaf is structurally
// invalid; callers building leaves through the factory functions below
// cannot construct an invalid one.
func NewLeaf(l Leaf) Tree {
	if err := l.Validate(); err != nil {
		panic(err)
	}
	return Tree{kind: treeLeaf, leaf: l}
}

// And composes two trees with logical AND, short-circuiting on Empty
// operands so Empty behaves as the AND identity.
func And(a, b Tree) Tree {
	if a.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return a
	}
	return Tree{kind: treeNode, op: opAnd, left: &a, right: &b}
}

// Or composes two trees with logical OR. Unlike And, an Empty operand is
// not an identity for OR (Empty is "always true", so Or(Empty, x) is always
// true) — Or(Empty, x) therefore returns Empty and x is not kept.
func Or(a, b Tree) Tree {
	if a.IsEmpty() || b.IsEmpty() {
		return Empty()
	}
	return Tree{kind: treeNode, op: opOr, left: &a, right: &b}
}

// AggregateAnd ANDs together any number of trees, ignoring Empty entries.
// AggregateAnd() with no arguments returns Empty.
func AggregateAnd(trees ...Tree) Tree {
	result := Empty()
	for _, t := range trees {
		result = And(result, t)
	}
	return result
}

// Visitor is implemented by condition compilers (internal/compiler) and the
// in-memory evaluator (Evaluate) to walk a Tree without exposing its
// internal shape.
type Visitor interface {
	VisitLeaf(l Leaf) error
	VisitAnd(left, right Tree) error
	VisitOr(left, right Tree) error
}

// Walk dispatches t to the matching Visitor method. Empty trees are a no-op
// (nothing to visit).
func Walk(t Tree, v Visitor) error {
	switch t.kind {
	case treeEmpty:
		return nil
	case treeLeaf:
		return v.VisitLeaf(t.leaf)
	case treeNode:
		switch t.op {
		case opAnd:
			return v.VisitAnd(*t.left, *t.right)
		default:
			return v.VisitOr(*t.left, *t.right)
		}
	default:
		return fmt.Errorf("condition: unknown tree kind %d", t.kind)
	}
}

// --- leaf factory functions (spec: condition construction lives on the
// Database Service, which forwards to these pure constructors) ---

func value(p primitive.Primitive) *primitive.Primitive { return &p }

func AttributeExistsLeaf(attribute string) Tree {
	return NewLeaf(Leaf{Kind: AttributeExists, Attribute: attribute})
}

func AttributeNotExistsLeaf(attribute string) Tree {
	return NewLeaf(Leaf{Kind: AttributeNotExists, Attribute: attribute})
}

func EqualsLeaf(attribute string, v primitive.Primitive) Tree {
	return NewLeaf(Leaf{Kind: Equals, Attribute: attribute, Value: value(v)})
}

func NotEqualsLeaf(attribute string, v primitive.Primitive) Tree {
	return NewLeaf(Leaf{Kind: NotEquals, Attribute: attribute, Value: value(v)})
}

func GreaterThanLeaf(attribute string, v primitive.Primitive) Tree {
	return NewLeaf(Leaf{Kind: GreaterThan, Attribute: attribute, Value: value(v)})
}

func GreaterOrEqualLeaf(attribute string, v primitive.Primitive) Tree {
	return NewLeaf(Leaf{Kind: GreaterOrEqual, Attribute: attribute, Value: value(v)})
}

func LessThanLeaf(attribute string, v primitive.Primitive) Tree {
	return NewLeaf(Leaf{Kind: LessThan, Attribute: attribute, Value: value(v)})
}

func LessOrEqualLeaf(attribute string, v primitive.Primitive) Tree {
	return NewLeaf(Leaf{Kind: LessOrEqual, Attribute: attribute, Value: value(v)})
}

func ArrayElementExistsLeaf(attribute string, v primitive.Primitive) Tree {
	return NewLeaf(Leaf{Kind: ArrayElementExists, Attribute: attribute, Value: value(v)})
}

func ArrayElementNotExistsLeaf(attribute string, v primitive.Primitive) Tree {
	return NewLeaf(Leaf{Kind: ArrayElementNotExists, Attribute: attribute, Value: value(v)})
}
