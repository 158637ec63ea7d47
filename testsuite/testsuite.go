// Package testsuite is the Test Conformance Suite (spec C10, §8): a
// backend-agnostic set of invariant checks and concrete scenarios every
// database.Service implementation must satisfy, runnable against
// providers/memdoc and providers/dynamo alike. Grounded on the teacher's
// contract-tests/runners/go harness (a driver-parametrized runner that
// loads scenarios and asserts against require, not a testify/suite —
// the corpus never reaches for testify/suite, so this generalizes the
// teacher's plain testing.T + require.* idiom rather than introducing an
// unobserved pattern) and its driver abstraction (NewTheorydbDriver),
// generalized here from "one hardcoded driver" to "any database.Service
// factory the caller supplies".
package testsuite

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bkio/crosscloudkit/pkg/condition"
	"github.com/bkio/crosscloudkit/pkg/database"
	"github.com/bkio/crosscloudkit/pkg/dbresult"
	"github.com/bkio/crosscloudkit/pkg/primitive"
)

// NewService builds a fresh database.Service plus the table name(s) the
// suite should exercise against it. Each call must return an
// independent, empty backing store (or a uniquely-named table within a
// shared backend) so scenarios never see another scenario's data.
type NewService func(t *testing.T) (svc database.Service, table string)

// Run executes every universal invariant (spec §8) and concrete scenario
// S1-S8 as subtests of t, against a service built by newService for each
// one.
func Run(t *testing.T, newService NewService) {
	t.Helper()

	t.Run("invariant/put_get_roundtrip", func(t *testing.T) { testPutGetRoundtrip(t, newService) })
	t.Run("invariant/conditional_atomicity", func(t *testing.T) { testConditionalAtomicity(t, newService) })
	t.Run("invariant/condition_tree_semantics", func(t *testing.T) { testConditionTreeSemantics(t, newService) })
	t.Run("invariant/empty_condition_is_identity", func(t *testing.T) { testEmptyConditionIsIdentity(t, newService) })
	t.Run("invariant/array_ops_preserve_other_attributes", func(t *testing.T) { testArrayOpsPreserveOtherAttributes(t, newService) })
	t.Run("invariant/drop_idempotence", func(t *testing.T) { testDropIdempotence(t, newService) })
	t.Run("invariant/pagination_completeness", func(t *testing.T) { testPaginationCompleteness(t, newService) })
	t.Run("invariant/heterogeneous_keys", func(t *testing.T) { testHeterogeneousKeys(t, newService) })

	t.Run("scenario/S1_put_get", func(t *testing.T) { testS1(t, newService) })
	t.Run("scenario/S2_update_with_condition", func(t *testing.T) { testS2(t, newService) })
	t.Run("scenario/S3_condition_fails_second_time", func(t *testing.T) { testS3(t, newService) })
	t.Run("scenario/S4_put_overwrite_guard", func(t *testing.T) { testS4(t, newService) })
	t.Run("scenario/S5_increment_on_missing_item", func(t *testing.T) { testS5(t, newService) })
	t.Run("scenario/S6_array_add_then_remove", func(t *testing.T) { testS6(t, newService) })
	t.Run("scenario/S7_complex_condition", func(t *testing.T) { testS7(t, newService) })
	t.Run("scenario/S8_pagination", func(t *testing.T) { testS8(t, newService) })
}

func mustOk(t *testing.T, res dbresult.Result) dbresult.Result {
	t.Helper()
	require.True(t, res.Success, "expected success, got status %d: %s", res.StatusCode, res.ErrorMessage)
	return res
}

func key(attr, value string) primitive.DbKey {
	k, err := primitive.NewKey(attr, primitive.NewString(value))
	if err != nil {
		panic(err)
	}
	return k
}

// --- universal invariants (spec §8) ---

func testPutGetRoundtrip(t *testing.T, newService NewService) {
	svc, table := newService(t)
	ctx := context.Background()
	k := key("Id", "k1")
	item := database.Item{"Name": "v", "Value": int64(42)}

	mustOk(t, svc.Put(ctx, table, k, item, true, condition.Empty(), dbresult.DoNotReturnValues))
	got := mustOk(t, svc.Get(ctx, table, k))
	gotItem, ok := got.Item()
	require.True(t, ok)
	require.Equal(t, "v", gotItem["Name"])
	require.Equal(t, int64(42), gotItem["Value"])
}

func testConditionalAtomicity(t *testing.T, newService NewService) {
	svc, table := newService(t)
	ctx := context.Background()
	k := key("Id", "k1")

	mustOk(t, svc.Put(ctx, table, k, database.Item{"Value": int64(42)}, true, condition.Empty(), dbresult.DoNotReturnValues))

	res := svc.Update(ctx, table, k,
		[]database.UpdateOp{{Attribute: "Value", Set: ptr(primitive.NewInteger(999))}},
		database.Equals("Value", primitive.NewInteger(7)),
		dbresult.DoNotReturnValues)
	require.False(t, res.Success)
	require.Equal(t, 412, res.StatusCode)

	got := mustOk(t, svc.Get(ctx, table, k))
	gotItem, _ := got.Item()
	require.Equal(t, int64(42), gotItem["Value"])
}

func testConditionTreeSemantics(t *testing.T, newService NewService) {
	svc, table := newService(t)
	ctx := context.Background()
	k := key("Id", "k1")
	item := database.Item{"Status": "active", "Score": int64(85), "Tags": []any{"x"}}
	mustOk(t, svc.Put(ctx, table, k, item, true, condition.Empty(), dbresult.DoNotReturnValues))

	tree := database.Equals("Status", primitive.NewString("active"))
	res := mustOk(t, svc.Exists(ctx, table, k, condition.Empty()))
	exists, _ := res.Bool()
	require.True(t, exists)

	missing := svc.Exists(ctx, table, key("Id", "nope"), condition.Empty())
	require.False(t, missing.Success)
	require.Equal(t, 404, missing.StatusCode)

	failedCond := svc.Exists(ctx, table, k, database.Equals("Status", primitive.NewString("idle")))
	require.False(t, failedCond.Success)
	require.Equal(t, 412, failedCond.StatusCode)

	putRes := svc.Put(ctx, table, k, item, true, tree, dbresult.DoNotReturnValues)
	require.True(t, putRes.Success, "condition should evaluate true against the stored item")
}

func testEmptyConditionIsIdentity(t *testing.T, newService NewService) {
	svc, table := newService(t)
	ctx := context.Background()
	k := key("Id", "k1")

	withNil := svc.Put(ctx, table, k, database.Item{"A": int64(1)}, true, condition.Tree{}, dbresult.DoNotReturnValues)
	require.True(t, withNil.Success)

	withEmpty := svc.Put(ctx, table, k, database.Item{"A": int64(2)}, true, database.NoCondition(), dbresult.DoNotReturnValues)
	require.True(t, withEmpty.Success)
}

func testArrayOpsPreserveOtherAttributes(t *testing.T, newService NewService) {
	svc, table := newService(t)
	ctx := context.Background()
	k := key("Id", "k1")
	mustOk(t, svc.Put(ctx, table, k, database.Item{"Tags": []any{"x"}, "Other": "untouched"}, true, condition.Empty(), dbresult.DoNotReturnValues))

	mustOk(t, svc.AddToArray(ctx, table, k, "Tags", []primitive.Primitive{primitive.NewString("a")}, condition.Empty()))

	got := mustOk(t, svc.Get(ctx, table, k))
	gotItem, _ := got.Item()
	require.Equal(t, "untouched", gotItem["Other"])
}

func testDropIdempotence(t *testing.T, newService NewService) {
	svc, table := newService(t)
	ctx := context.Background()
	mustOk(t, svc.DropTable(ctx, table))
	mustOk(t, svc.DropTable(ctx, table))
}

func testPaginationCompleteness(t *testing.T, newService NewService) {
	svc, table := newService(t)
	ctx := context.Background()
	const n = 17
	for i := 0; i < n; i++ {
		k := key("Id", fmt.Sprintf("item-%02d", i))
		mustOk(t, svc.Put(ctx, table, k, database.Item{"N": int64(i)}, true, condition.Empty(), dbresult.DoNotReturnValues))
	}

	seen := map[string]bool{}
	token := ""
	for {
		res := mustOk(t, svc.ScanPaginated(ctx, table, database.ScanOptions{}, token, 5))
		page, ok := res.Data.(database.Page)
		require.True(t, ok)
		for _, item := range page.Items {
			id, _ := item["Id"].(string)
			require.False(t, seen[id], "item %q seen twice across pages", id)
			seen[id] = true
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	require.Len(t, seen, n)

	full := mustOk(t, svc.ScanTable(ctx, table))
	fullItems, ok := full.Items()
	require.True(t, ok)
	require.Len(t, fullItems, n)
}

func testHeterogeneousKeys(t *testing.T, newService NewService) {
	svc, table := newService(t)
	ctx := context.Background()

	k1 := key("Id", "by-id")
	k2, err := primitive.NewKey("Email", primitive.NewString("by-email@example.com"))
	require.NoError(t, err)

	mustOk(t, svc.Put(ctx, table, k1, database.Item{"A": int64(1)}, true, condition.Empty(), dbresult.DoNotReturnValues))
	mustOk(t, svc.Put(ctx, table, k2, database.Item{"B": int64(2)}, true, condition.Empty(), dbresult.DoNotReturnValues))

	res := mustOk(t, svc.ListKeyNames(ctx, table))
	names, ok := res.Data.([]string)
	require.True(t, ok)
	require.ElementsMatch(t, []string{"Id", "Email"}, names)
}

// --- concrete scenarios (spec §8) ---

func testS1(t *testing.T, newService NewService) {
	svc, table := newService(t)
	ctx := context.Background()
	k := key("Id", "k1")
	mustOk(t, svc.Put(ctx, table, k, database.Item{"Name": "v", "Value": int64(42)}, true, condition.Empty(), dbresult.DoNotReturnValues))
	res := mustOk(t, svc.Get(ctx, table, k))
	item, _ := res.Item()
	require.Equal(t, "v", item["Name"])
	require.Equal(t, int64(42), item["Value"])
}

func testS2(t *testing.T, newService NewService) {
	svc, table := newService(t)
	ctx := context.Background()
	k := key("Id", "k1")
	mustOk(t, svc.Put(ctx, table, k, database.Item{"Value": int64(42)}, true, condition.Empty(), dbresult.DoNotReturnValues))

	mustOk(t, svc.Update(ctx, table, k,
		[]database.UpdateOp{{Attribute: "Value", Set: ptr(primitive.NewInteger(84))}},
		database.Equals("Value", primitive.NewInteger(42)),
		dbresult.DoNotReturnValues))

	res := mustOk(t, svc.Get(ctx, table, k))
	item, _ := res.Item()
	require.Equal(t, int64(84), item["Value"])
}

func testS3(t *testing.T, newService NewService) {
	svc, table := newService(t)
	ctx := context.Background()
	k := key("Id", "k1")
	mustOk(t, svc.Put(ctx, table, k, database.Item{"Value": int64(42)}, true, condition.Empty(), dbresult.DoNotReturnValues))

	cond := database.Equals("Value", primitive.NewInteger(42))
	ops := []database.UpdateOp{{Attribute: "Value", Set: ptr(primitive.NewInteger(99))}}

	first := svc.Update(ctx, table, k, ops, cond, dbresult.DoNotReturnValues)
	require.True(t, first.Success)

	second := svc.Update(ctx, table, k, ops, cond, dbresult.DoNotReturnValues)
	require.False(t, second.Success)
	require.Equal(t, 412, second.StatusCode)

	res := mustOk(t, svc.Get(ctx, table, k))
	item, _ := res.Item()
	require.Equal(t, int64(99), item["Value"])
}

func testS4(t *testing.T, newService NewService) {
	svc, table := newService(t)
	ctx := context.Background()
	k := key("Id", "k1")
	mustOk(t, svc.Put(ctx, table, k, database.Item{"Value": int64(1)}, true, condition.Empty(), dbresult.DoNotReturnValues))

	blocked := svc.Put(ctx, table, k, database.Item{"Value": int64(2)}, false, condition.Empty(), dbresult.DoNotReturnValues)
	require.False(t, blocked.Success)
	require.Equal(t, 409, blocked.StatusCode)

	overwrite := svc.Put(ctx, table, k, database.Item{"Value": int64(3)}, true, condition.Empty(), dbresult.ReturnOldValues)
	require.True(t, overwrite.Success)
	old, ok := overwrite.Item()
	require.True(t, ok)
	require.Equal(t, int64(1), old["Value"])
}

func testS5(t *testing.T, newService NewService) {
	svc, table := newService(t)
	ctx := context.Background()
	k := key("Id", "k2")

	mustOk(t, svc.Increment(ctx, table, k, "Counter", 10, condition.Empty()))

	res := mustOk(t, svc.Get(ctx, table, k))
	item, _ := res.Item()
	require.Equal(t, int64(10), item["Counter"])

	// a fractional delta against the same counter must both succeed (an
	// Integer-stored attribute is numeric) and leave a Double result when
	// the sum is no longer exact.
	mustOk(t, svc.Increment(ctx, table, k, "Counter", 0.5, condition.Empty()))
	res = mustOk(t, svc.Get(ctx, table, k))
	item, _ = res.Item()
	require.Equal(t, 10.5, item["Counter"])

	// incrementing back to an exact integer collapses to Integer again.
	mustOk(t, svc.Increment(ctx, table, k, "Counter", 0.5, condition.Empty()))
	res = mustOk(t, svc.Get(ctx, table, k))
	item, _ = res.Item()
	require.Equal(t, int64(11), item["Counter"])
}

func testS6(t *testing.T, newService NewService) {
	svc, table := newService(t)
	ctx := context.Background()
	k := key("Id", "k3")
	mustOk(t, svc.Put(ctx, table, k, database.Item{"Tags": []any{"x"}}, true, condition.Empty(), dbresult.DoNotReturnValues))

	// appending "x" again must duplicate it, not dedup (spec §4.3:
	// "duplicates are allowed (set-like dedup is NOT implied)"), and the
	// whole result must preserve append order.
	mustOk(t, svc.AddToArray(ctx, table, k, "Tags",
		[]primitive.Primitive{primitive.NewString("x"), primitive.NewString("a"), primitive.NewString("b")}, condition.Empty()))
	res := mustOk(t, svc.Get(ctx, table, k))
	item, _ := res.Item()
	require.Equal(t, []any{"x", "x", "a", "b"}, item["Tags"])

	mustOk(t, svc.RemoveFromArray(ctx, table, k, "Tags",
		[]primitive.Primitive{primitive.NewString("x"), primitive.NewString("b")}, condition.Empty()))
	res = mustOk(t, svc.Get(ctx, table, k))
	item, _ = res.Item()
	require.Equal(t, []any{"a"}, item["Tags"])
}

func testS7(t *testing.T, newService NewService) {
	svc, table := newService(t)
	ctx := context.Background()

	tree := database.Or(
		database.And(database.Equals("Status", primitive.NewString("active")), database.Greater("Score", primitive.NewInteger(80))),
		database.ArrayElementExists("Tags", primitive.NewString("urgent")),
	)

	k1 := key("Id", "c1")
	mustOk(t, svc.Put(ctx, table, k1, database.Item{"Status": "active", "Score": int64(85), "Tags": []any{"x"}}, true, condition.Empty(), dbresult.DoNotReturnValues))
	res1 := mustOk(t, svc.Exists(ctx, table, k1, condition.Empty()))
	_ = res1
	ok1 := svc.Put(ctx, table, k1, database.Item{"Status": "active", "Score": int64(85), "Tags": []any{"x"}}, true, tree, dbresult.DoNotReturnValues)
	require.True(t, ok1.Success)

	k2 := key("Id", "c2")
	mustOk(t, svc.Put(ctx, table, k2, database.Item{"Status": "idle", "Score": int64(50), "Tags": []any{"urgent"}}, true, condition.Empty(), dbresult.DoNotReturnValues))
	ok2 := svc.Put(ctx, table, k2, database.Item{"Status": "idle", "Score": int64(50), "Tags": []any{"urgent"}}, true, tree, dbresult.DoNotReturnValues)
	require.True(t, ok2.Success)

	k3 := key("Id", "c3")
	mustOk(t, svc.Put(ctx, table, k3, database.Item{"Status": "idle", "Score": int64(50), "Tags": []any{"x"}}, true, condition.Empty(), dbresult.DoNotReturnValues))
	ok3 := svc.Put(ctx, table, k3, database.Item{"Status": "idle", "Score": int64(50), "Tags": []any{"x"}}, true, tree, dbresult.DoNotReturnValues)
	require.False(t, ok3.Success)
	require.Equal(t, 412, ok3.StatusCode)
}

func testS8(t *testing.T, newService NewService) {
	svc, table := newService(t)
	ctx := context.Background()
	const total = 25
	for i := 0; i < total; i++ {
		k := key("Id", fmt.Sprintf("p-%02d", i))
		mustOk(t, svc.Put(ctx, table, k, database.Item{"N": int64(i)}, true, condition.Empty(), dbresult.DoNotReturnValues))
	}

	var pageSizes []int
	token := ""
	seen := map[string]bool{}
	for {
		res := mustOk(t, svc.ScanPaginated(ctx, table, database.ScanOptions{}, token, 10))
		page, ok := res.Data.(database.Page)
		require.True(t, ok)
		pageSizes = append(pageSizes, len(page.Items))
		for _, item := range page.Items {
			id, _ := item["Id"].(string)
			seen[id] = true
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	require.Equal(t, []int{10, 10, 5}, pageSizes)
	require.Len(t, seen, total)
}

func ptr(p primitive.Primitive) *primitive.Primitive { return &p }
