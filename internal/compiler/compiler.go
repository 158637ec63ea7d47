// Package compiler defines the per-provider condition/update expression
// compiler contract (spec C7): turning a provider-agnostic Condition Tree
// or update-operation list into the provider's own wire-level expression
// language, parameterized so no value is ever string-interpolated.
// Grounded on the teacher's internal/expr.Builder, generalized from a flat
// field/operator/value triple list to a recursive walk over
// pkg/condition.Tree (AND/OR with explicit grouping) and kept
// provider-agnostic: Compiled carries Primitive values, not a specific
// SDK's AttributeValue type, so a future non-DynamoDB dialect (or
// providers/memdoc, which instead uses pkg/condition.Evaluate directly and
// has no Compiler of its own) never has to depend on this package's
// dialect implementations.
package compiler

import (
	"github.com/bkio/crosscloudkit/pkg/condition"
	"github.com/bkio/crosscloudkit/pkg/database"
	"github.com/bkio/crosscloudkit/pkg/primitive"
)

// Compiled is a parameterized expression: a string referencing only name
// and value placeholders, plus the placeholder tables a provider merges
// into its request.
type Compiled struct {
	Expression string
	Names      map[string]string
	Values     map[string]primitive.Primitive
}

// ConditionCompiler compiles a Condition Tree into the provider's native
// conditional-expression dialect.
type ConditionCompiler interface {
	CompileCondition(t condition.Tree) (Compiled, error)
}

// UpdateCompiler compiles a list of UpdateOp into the provider's native
// update-expression dialect.
type UpdateCompiler interface {
	CompileUpdate(ops []database.UpdateOp) (Compiled, error)
}

// Dialect bundles both compiler roles, since one provider's expression
// language (placeholder numbering, reserved-word table) is shared between
// its condition and update compilation.
type Dialect interface {
	ConditionCompiler
	UpdateCompiler
}
