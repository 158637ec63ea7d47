package condition

import (
	"fmt"

	"github.com/bkio/crosscloudkit/pkg/primitive"
)

// Evaluate runs t against item, an already-decoded (codec-normalized) Item
// map, and reports whether the condition is satisfied. It is the reference
// in-memory evaluator used by providers/memdoc's CAS loop and by the
// conformance suite as an oracle independent of any provider's native
// expression compiler (spec C10's cross-check between compiled and
// evaluated semantics).
//
// Evaluate only resolves top-level attribute names: it does not walk dotted
// paths into nested maps. A Leaf.Attribute containing "." is rejected,
// in contrast to providers/dynamo's native compiler which does support
// dotted/indexed paths (spec §4.2: "otherwise the compiler rejects paths
// containing '.' with a clear error").
func Evaluate(t Tree, item map[string]any) (bool, error) {
	e := &evaluator{item: item}
	if t.IsEmpty() {
		return true, nil
	}
	ok, err := e.eval(t)
	return ok, err
}

type evaluator struct {
	item map[string]any
}

func (e *evaluator) eval(t Tree) (bool, error) {
	switch t.kind {
	case treeEmpty:
		return true, nil
	case treeLeaf:
		return e.evalLeaf(t.leaf)
	case treeNode:
		left, err := e.eval(*t.left)
		if err != nil {
			return false, err
		}
		if t.op == opAnd {
			if !left {
				return false, nil
			}
			return e.eval(*t.right)
		}
		if left {
			return true, nil
		}
		return e.eval(*t.right)
	default:
		return false, fmt.Errorf("condition: unknown tree kind %d", t.kind)
	}
}

func rejectDotted(attribute string) error {
	for _, r := range attribute {
		if r == '.' {
			return fmt.Errorf("condition: attribute path %q: dotted/nested paths are not supported by this evaluator", attribute)
		}
	}
	return nil
}

func (e *evaluator) evalLeaf(l Leaf) (bool, error) {
	if err := rejectDotted(l.Attribute); err != nil {
		return false, err
	}
	raw, present := e.item[l.Attribute]

	switch l.Kind {
	case AttributeExists:
		return present, nil
	case AttributeNotExists:
		return !present, nil
	case ArrayElementExists, ArrayElementNotExists:
		contains := false
		if present {
			list, ok := raw.([]any)
			if !ok {
				return false, fmt.Errorf("condition: attribute %q is not an array", l.Attribute)
			}
			target, err := toPrimitive(*l.Value)
			if err != nil {
				return false, err
			}
			for _, elem := range list {
				ep, err := anyToPrimitive(elem)
				if err != nil {
					continue
				}
				if ep.Equal(target) {
					contains = true
					break
				}
			}
		}
		if l.Kind == ArrayElementExists {
			return contains, nil
		}
		return !contains, nil
	default:
		// Comparison kinds fail against a missing attribute (Open
		// Question 3): only AttributeExists/AttributeNotExists
		// witness absence.
		if !present {
			return false, nil
		}
		actual, err := anyToPrimitive(raw)
		if err != nil {
			return false, err
		}
		expected, err := toPrimitive(*l.Value)
		if err != nil {
			return false, err
		}
		return compareLeaf(l.Kind, actual, expected)
	}
}

func compareLeaf(kind LeafKind, actual, expected primitive.Primitive) (bool, error) {
	switch kind {
	case Equals:
		return actual.Equal(expected), nil
	case NotEquals:
		return !actual.Equal(expected), nil
	case GreaterThan:
		if actual.Kind() != expected.Kind() {
			return false, nil
		}
		return expected.Less(actual), nil
	case GreaterOrEqual:
		if actual.Kind() != expected.Kind() {
			return false, nil
		}
		return expected.Less(actual) || actual.Equal(expected), nil
	case LessThan:
		if actual.Kind() != expected.Kind() {
			return false, nil
		}
		return actual.Less(expected), nil
	case LessOrEqual:
		if actual.Kind() != expected.Kind() {
			return false, nil
		}
		return actual.Less(expected) || actual.Equal(expected), nil
	default:
		return false, fmt.Errorf("condition: leaf kind %s is not a comparison", kind)
	}
}

func toPrimitive(p primitive.Primitive) (primitive.Primitive, error) { return p, nil }

// anyToPrimitive converts a codec-normalized Go value back into a
// Primitive for comparison purposes. Numbers are expected to already be
// int64 or float64 per internal/codec's round-float-to-int normalization.
func anyToPrimitive(v any) (primitive.Primitive, error) {
	switch val := v.(type) {
	case string:
		return primitive.NewString(val), nil
	case int64:
		return primitive.NewInteger(val), nil
	case int:
		return primitive.NewInteger(int64(val)), nil
	case float64:
		return primitive.NewDouble(val), nil
	case bool:
		return primitive.NewBoolean(val), nil
	case []byte:
		return primitive.NewBytes(val), nil
	default:
		return primitive.Primitive{}, fmt.Errorf("condition: value of type %T is not a comparable primitive", v)
	}
}
