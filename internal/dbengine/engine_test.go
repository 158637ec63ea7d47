package dbengine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bkio/crosscloudkit/internal/dbengine"
	"github.com/bkio/crosscloudkit/pkg/condition"
	"github.com/bkio/crosscloudkit/pkg/database"
	"github.com/bkio/crosscloudkit/pkg/dbresult"
	"github.com/bkio/crosscloudkit/pkg/primitive"
	"github.com/bkio/crosscloudkit/pkg/session"
	"github.com/bkio/crosscloudkit/providers/memdoc"
)

func TestEngine_RoutesByTable(t *testing.T) {
	fast := memdoc.New()
	slow := memdoc.New()

	routing, err := session.ParseRoutingConfig([]byte(`
tables:
  hot:
    provider: fast
  cold:
    provider: slow
`))
	require.NoError(t, err)

	eng := dbengine.New(nil, routing)
	eng.Register("fast", fast)
	eng.Register("slow", slow)

	ctx := context.Background()
	k, err := primitive.NewKey("Id", primitive.NewString("k1"))
	require.NoError(t, err)

	res := eng.Put(ctx, "hot", k, database.Item{"N": int64(1)}, true, condition.Empty(), dbresult.DoNotReturnValues)
	require.True(t, res.Success)

	direct := fast.Get(ctx, "hot", k)
	require.True(t, direct.Success)
	item, ok := direct.Item()
	require.True(t, ok)
	require.Equal(t, int64(1), item["N"])

	missingOnOther := slow.Get(ctx, "hot", k)
	require.False(t, missingOnOther.Success)
}

func TestEngine_UnroutedTableUsesFallback(t *testing.T) {
	fallback := memdoc.New()
	eng := dbengine.New(fallback, nil)

	ctx := context.Background()
	k, err := primitive.NewKey("Id", primitive.NewString("k1"))
	require.NoError(t, err)

	res := eng.Put(ctx, "anything", k, database.Item{"N": int64(2)}, true, condition.Empty(), dbresult.DoNotReturnValues)
	require.True(t, res.Success)

	direct := fallback.Get(ctx, "anything", k)
	require.True(t, direct.Success)
}

func TestEngine_UnregisteredProviderFails(t *testing.T) {
	routing, err := session.ParseRoutingConfig([]byte(`
tables:
  hot:
    provider: nonexistent
`))
	require.NoError(t, err)
	eng := dbengine.New(nil, routing)

	ctx := context.Background()
	k, err := primitive.NewKey("Id", primitive.NewString("k1"))
	require.NoError(t, err)

	res := eng.Put(ctx, "hot", k, database.Item{"N": int64(1)}, true, condition.Empty(), dbresult.DoNotReturnValues)
	require.False(t, res.Success)
	require.Equal(t, 400, res.StatusCode)
}
