// Package primitive defines the tagged-union scalar value carried by every
// attribute the condition compilers and codec reason about (spec C1/C2:
// Primitive and DbKey). It is intentionally small and comparable by value so
// it can flow through conditions, keys, and array membership checks without
// any backend-specific representation leaking in.
package primitive

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
)

// Kind identifies which field of a Primitive holds the value.
type Kind int

const (
	KindString Kind = iota
	KindInteger
	KindDouble
	KindBoolean
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindDouble:
		return "double"
	case KindBoolean:
		return "boolean"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// doubleEpsilon bounds the tolerance used when comparing two KindDouble
// values for equality, matching how the in-memory evaluator and both
// provider compilers treat floating point drift from round-tripping through
// JSON and wire encodings.
const doubleEpsilon = 1e-9

// Primitive is a closed tagged union over the five attribute value kinds the
// data model supports. The zero value is not meaningful; construct one with
// the New* functions.
type Primitive struct {
	kind  Kind
	str   string
	i64   int64
	f64   float64
	b     bool
	bytes []byte
}

func NewString(v string) Primitive { return Primitive{kind: KindString, str: v} }
func NewInteger(v int64) Primitive { return Primitive{kind: KindInteger, i64: v} }
func NewDouble(v float64) Primitive { return Primitive{kind: KindDouble, f64: v} }
func NewBoolean(v bool) Primitive { return Primitive{kind: KindBoolean, b: v} }

// NewBytes copies v so later mutation of the caller's slice cannot change
// the Primitive after construction.
func NewBytes(v []byte) Primitive {
	cp := make([]byte, len(v))
	copy(cp, v)
	return Primitive{kind: KindBytes, bytes: cp}
}

func (p Primitive) Kind() Kind { return p.kind }

func (p Primitive) AsString() (string, bool) {
	if p.kind != KindString {
		return "", false
	}
	return p.str, true
}

func (p Primitive) AsInteger() (int64, bool) {
	if p.kind != KindInteger {
		return 0, false
	}
	return p.i64, true
}

func (p Primitive) AsDouble() (float64, bool) {
	if p.kind != KindDouble {
		return 0, false
	}
	return p.f64, true
}

// AsNumeric returns p's value as a float64 if p is an Integer or a Double,
// for callers (e.g. Increment) that operate on "any numeric attribute"
// without caring which of the two kinds stored it.
func (p Primitive) AsNumeric() (float64, bool) {
	switch p.kind {
	case KindInteger:
		return float64(p.i64), true
	case KindDouble:
		return p.f64, true
	default:
		return 0, false
	}
}

func (p Primitive) AsBoolean() (bool, bool) {
	if p.kind != KindBoolean {
		return false, false
	}
	return p.b, true
}

// AsBytes returns a defensive copy; callers may freely mutate the result.
func (p Primitive) AsBytes() ([]byte, bool) {
	if p.kind != KindBytes {
		return nil, false
	}
	cp := make([]byte, len(p.bytes))
	copy(cp, p.bytes)
	return cp, true
}

// Equal compares kind first, then value. Doubles compare within
// doubleEpsilon; Bytes compare by content. Values of different kinds are
// never equal, even when numerically equivalent (Integer(2) != Double(2.0)).
func (p Primitive) Equal(other Primitive) bool {
	if p.kind != other.kind {
		return false
	}
	switch p.kind {
	case KindString:
		return p.str == other.str
	case KindInteger:
		return p.i64 == other.i64
	case KindDouble:
		return math.Abs(p.f64-other.f64) <= doubleEpsilon
	case KindBoolean:
		return p.b == other.b
	case KindBytes:
		return bytes.Equal(p.bytes, other.bytes)
	default:
		return false
	}
}

// Less defines a total order within a single Kind, used to sort condition
// leaves and scan keys deterministically. Comparing across kinds orders by
// Kind value, which gives a stable but otherwise arbitrary cross-kind order.
func (p Primitive) Less(other Primitive) bool {
	if p.kind != other.kind {
		return p.kind < other.kind
	}
	switch p.kind {
	case KindString:
		return p.str < other.str
	case KindInteger:
		return p.i64 < other.i64
	case KindDouble:
		return p.f64 < other.f64
	case KindBoolean:
		return !p.b && other.b
	case KindBytes:
		return bytes.Compare(p.bytes, other.bytes) < 0
	default:
		return false
	}
}

func (p Primitive) String() string {
	switch p.kind {
	case KindString:
		return p.str
	case KindInteger:
		return fmt.Sprintf("%d", p.i64)
	case KindDouble:
		return fmt.Sprintf("%v", p.f64)
	case KindBoolean:
		return fmt.Sprintf("%t", p.b)
	case KindBytes:
		return base64.StdEncoding.EncodeToString(p.bytes)
	default:
		return ""
	}
}

// Canonical renders a stable, kind-prefixed text form used by providers
// that need a single-typed key representation (providers/dynamo encodes its
// fixed partition key attribute this way) and by the codec's deterministic
// sort helpers.
func (p Primitive) Canonical() string {
	return fmt.Sprintf("%s:%s", p.kind, p.String())
}
