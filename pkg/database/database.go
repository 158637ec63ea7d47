// Package database defines the Database Service contract (spec C6): the
// full operation set every provider (providers/dynamo, providers/memdoc)
// implements, plus the condition factory methods spec §4.2 places on the
// service rather than on Primitive itself. Grounded on the teacher's
// pkg/core.DB/Query interfaces, generalized from a struct-tag model/query
// builder to a single flat operation set over schema-less Items, since the
// spec's data model has no secondary indices or query planning to build a
// chainable query DSL around (see DESIGN.md for the dropped pkg/query
// pieces).
package database

import (
	"context"

	"github.com/bkio/crosscloudkit/pkg/condition"
	"github.com/bkio/crosscloudkit/pkg/dbresult"
	"github.com/bkio/crosscloudkit/pkg/primitive"
)

// Item is the schema-less, unordered JSON-compatible document every
// operation reads and writes (spec §3). Values are string, int64, float64,
// bool, []byte, []any, map[string]any, or nil.
type Item = map[string]any

// UpdateOp describes one field-level mutation Update applies, analogous to
// a DynamoDB UpdateExpression clause but expressed over the provider-
// agnostic Item model.
type UpdateOp struct {
	Attribute string
	// Set, when non-nil, replaces the attribute's value outright.
	Set *primitive.Primitive
	// Remove, when true, deletes the attribute. Mutually exclusive with Set.
	Remove bool
}

// ScanOptions bounds a table scan (spec C6 ScanTable/ScanTableFiltered).
type ScanOptions struct {
	// Filter is applied after the scan reads each item; it never prunes
	// what the backend reads, only what is returned (matches DynamoDB's
	// FilterExpression semantics).
	Filter condition.Tree
	Limit  int
}

// Page is one page of a ScanPaginated walk: the items found plus an opaque
// continuation token. NextPageToken is empty when there are no more pages.
type Page struct {
	Items         []Item
	NextPageToken string
}

// Service is the full Database Service contract (spec C6). Every method
// takes the table name explicitly; a Service instance represents one
// backend connection, not one table, since tables are created/addressed
// dynamically (spec §4.7 table lifecycle, §1 "no declared schema").
type Service interface {
	// Put writes item at key. overwriteIfExists governs what happens when
	// an item already occupies key: false refuses the write with a 409
	// (spec §4.3/§6, scenario S4); true replaces it. cond is an
	// independent condition check (412 on failure, spec §4.4) applied in
	// addition to the overwrite guard, not a substitute for it.
	Put(ctx context.Context, table string, key primitive.DbKey, item Item, overwriteIfExists bool, cond condition.Tree, ret dbresult.ReturnBehavior) dbresult.Result
	Get(ctx context.Context, table string, key primitive.DbKey) dbresult.Result
	GetMany(ctx context.Context, table string, keys []primitive.DbKey) dbresult.Result
	// Exists reports whether the item at key is present and satisfies
	// cond (spec §4.3/§4.4): missing item -> success=false, 404; item
	// present but cond unsatisfied -> success=false, 412; both hold ->
	// success=true, 200.
	Exists(ctx context.Context, table string, key primitive.DbKey, cond condition.Tree) dbresult.Result
	Update(ctx context.Context, table string, key primitive.DbKey, ops []UpdateOp, cond condition.Tree, ret dbresult.ReturnBehavior) dbresult.Result
	Delete(ctx context.Context, table string, key primitive.DbKey, cond condition.Tree, ret dbresult.ReturnBehavior) dbresult.Result
	// Increment adds delta (a double, spec §4.3) to attribute, storing
	// the result as an integer if it is exact, else as a double.
	Increment(ctx context.Context, table string, key primitive.DbKey, attribute string, delta float64, cond condition.Tree) dbresult.Result
	AddToArray(ctx context.Context, table string, key primitive.DbKey, attribute string, values []primitive.Primitive, cond condition.Tree) dbresult.Result
	RemoveFromArray(ctx context.Context, table string, key primitive.DbKey, attribute string, values []primitive.Primitive, cond condition.Tree) dbresult.Result

	ScanTable(ctx context.Context, table string) dbresult.Result
	ScanTableFiltered(ctx context.Context, table string, opts ScanOptions) dbresult.Result
	ScanPaginated(ctx context.Context, table string, opts ScanOptions, pageToken string, pageSize int) dbresult.Result

	DropTable(ctx context.Context, table string) dbresult.Result
	ListTables(ctx context.Context) dbresult.Result
	ListKeyNames(ctx context.Context, table string) dbresult.Result
}

// --- condition factory, forwarded to pkg/condition's pure constructors ---
// spec §4.2 places these on the Database Service: construction never
// touches the backend, only the resulting Tree does when attached to a
// write or scan call.

func AttributeExists(attribute string) condition.Tree    { return condition.AttributeExistsLeaf(attribute) }
func AttributeNotExists(attribute string) condition.Tree  { return condition.AttributeNotExistsLeaf(attribute) }
func Equals(attribute string, v primitive.Primitive) condition.Tree {
	return condition.EqualsLeaf(attribute, v)
}
func NotEquals(attribute string, v primitive.Primitive) condition.Tree {
	return condition.NotEqualsLeaf(attribute, v)
}
func Greater(attribute string, v primitive.Primitive) condition.Tree {
	return condition.GreaterThanLeaf(attribute, v)
}
func GreaterOrEqual(attribute string, v primitive.Primitive) condition.Tree {
	return condition.GreaterOrEqualLeaf(attribute, v)
}
func Less(attribute string, v primitive.Primitive) condition.Tree {
	return condition.LessThanLeaf(attribute, v)
}
func LessOrEqual(attribute string, v primitive.Primitive) condition.Tree {
	return condition.LessOrEqualLeaf(attribute, v)
}
func ArrayElementExists(attribute string, v primitive.Primitive) condition.Tree {
	return condition.ArrayElementExistsLeaf(attribute, v)
}
func ArrayElementNotExists(attribute string, v primitive.Primitive) condition.Tree {
	return condition.ArrayElementNotExistsLeaf(attribute, v)
}
func And(a, b condition.Tree) condition.Tree             { return condition.And(a, b) }
func Or(a, b condition.Tree) condition.Tree               { return condition.Or(a, b) }
func AggregateAnd(trees ...condition.Tree) condition.Tree { return condition.AggregateAnd(trees...) }
func NoCondition() condition.Tree                         { return condition.Empty() }
