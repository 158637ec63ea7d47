package crosscloudkit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	crosscloudkit "github.com/bkio/crosscloudkit"
)

// End-to-end smoke test against the facade surface a consumer actually
// imports, grounded on the teacher's own root-facade smoke test
// (internal/theorydb's tabletheory_facade_test.go exercised its facade the
// same way: build a provider through the public constructor, round-trip
// one item through the public Service contract).
func TestFacade_PutGetThroughMemoryProvider(t *testing.T) {
	svc := crosscloudkit.NewMemoryProvider()
	ctx := context.Background()

	key, err := crosscloudkit.NewKey("Id", crosscloudkit.NewString("order-1"))
	require.NoError(t, err)

	putRes := svc.Put(ctx, "orders", key, crosscloudkit.Item{"Total": int64(42)}, true,
		crosscloudkit.NoCondition(), crosscloudkit.DoNotReturnValues)
	require.True(t, putRes.Success)

	getRes := svc.Get(ctx, "orders", key)
	require.True(t, getRes.Success)
	item, ok := getRes.Item()
	require.True(t, ok)
	require.Equal(t, int64(42), item["Total"])
}

func TestFacade_EngineRoutesThroughFallback(t *testing.T) {
	fallback := crosscloudkit.NewMemoryProvider()
	engine := crosscloudkit.NewEngine(fallback, nil)
	ctx := context.Background()

	key, err := crosscloudkit.NewKey("Id", crosscloudkit.NewString("k1"))
	require.NoError(t, err)

	res := engine.Put(ctx, "anything", key, crosscloudkit.Item{"V": int64(1)}, true,
		crosscloudkit.NoCondition(), crosscloudkit.DoNotReturnValues)
	require.True(t, res.Success)

	direct := fallback.Get(ctx, "anything", key)
	require.True(t, direct.Success)
}

func TestFacade_ConditionFactoriesBuildConditions(t *testing.T) {
	cond := crosscloudkit.And(
		crosscloudkit.AttributeExists("Id"),
		crosscloudkit.Equals("Status", crosscloudkit.NewString("active")),
	)
	require.False(t, cond.IsEmpty())
}
