// Package dbengine ties the Database Service contract (pkg/database) to a
// concrete deployment's table-to-provider routing (pkg/session.RoutingConfig,
// spec §4 supplemented feature: a single process addressing both DynamoDB-
// backed and in-memory tables). Grounded on the teacher's internal/theorydb
// engine: every call here builds its dispatch decision fresh from the
// routing table rather than mutating shared per-call state, the same
// context-copy-not-mutate idiom theorydb.go uses for its resource handles.
package dbengine

import (
	"context"
	"fmt"
	"sort"

	"github.com/bkio/crosscloudkit/internal/validate"
	"github.com/bkio/crosscloudkit/pkg/condition"
	"github.com/bkio/crosscloudkit/pkg/database"
	"github.com/bkio/crosscloudkit/pkg/dbresult"
	crosscloudkiterrors "github.com/bkio/crosscloudkit/pkg/errors"
	"github.com/bkio/crosscloudkit/pkg/primitive"
	"github.com/bkio/crosscloudkit/pkg/session"
)

// Engine dispatches every database.Service call to the provider a table is
// routed to, falling back to a default provider for tables the routing
// config never names. It implements database.Service itself, so callers
// that only ever address one logical table space can use an Engine
// wherever a database.Service is expected.
type Engine struct {
	providers map[string]database.Service
	routing   *session.RoutingConfig
	fallback  database.Service
}

// New constructs an Engine. fallback serves any table routing does not
// name explicitly (nil is fine if routing is expected to name every
// table); routing may be nil (every table then uses fallback).
func New(fallback database.Service, routing *session.RoutingConfig) *Engine {
	return &Engine{
		providers: map[string]database.Service{},
		routing:   routing,
		fallback:  fallback,
	}
}

// Register names svc so tables routed to that provider name resolve to it.
func (e *Engine) Register(providerName string, svc database.Service) {
	e.providers[providerName] = svc
}

func (e *Engine) serviceFor(tableName string) (database.Service, error) {
	if e.routing != nil {
		if providerName, ok := e.routing.ProviderFor(tableName); ok {
			svc, ok := e.providers[providerName]
			if !ok {
				return nil, fmt.Errorf("%w: table %q is routed to unregistered provider %q", crosscloudkiterrors.ErrValidation, tableName, providerName)
			}
			return svc, nil
		}
	}
	if e.fallback == nil {
		return nil, fmt.Errorf("%w: table %q has no route and no fallback provider is configured", crosscloudkiterrors.ErrValidation, tableName)
	}
	return e.fallback, nil
}

func (e *Engine) dispatch(tableName string) (database.Service, dbresult.Result) {
	if err := validate.TableName(tableName); err != nil {
		return nil, dbresult.Fail(crosscloudkiterrors.New("dispatch", tableName, 400, err))
	}
	svc, err := e.serviceFor(tableName)
	if err != nil {
		return nil, dbresult.Fail(crosscloudkiterrors.New("dispatch", tableName, 400, err))
	}
	return svc, dbresult.Result{}
}

func (e *Engine) Put(ctx context.Context, tableName string, key primitive.DbKey, item database.Item, overwriteIfExists bool, cond condition.Tree, ret dbresult.ReturnBehavior) dbresult.Result {
	svc, failed := e.dispatch(tableName)
	if svc == nil {
		return failed
	}
	return svc.Put(ctx, tableName, key, item, overwriteIfExists, cond, ret)
}

func (e *Engine) Get(ctx context.Context, tableName string, key primitive.DbKey) dbresult.Result {
	svc, failed := e.dispatch(tableName)
	if svc == nil {
		return failed
	}
	return svc.Get(ctx, tableName, key)
}

func (e *Engine) GetMany(ctx context.Context, tableName string, keys []primitive.DbKey) dbresult.Result {
	svc, failed := e.dispatch(tableName)
	if svc == nil {
		return failed
	}
	return svc.GetMany(ctx, tableName, keys)
}

func (e *Engine) Exists(ctx context.Context, tableName string, key primitive.DbKey, cond condition.Tree) dbresult.Result {
	svc, failed := e.dispatch(tableName)
	if svc == nil {
		return failed
	}
	return svc.Exists(ctx, tableName, key, cond)
}

func (e *Engine) Update(ctx context.Context, tableName string, key primitive.DbKey, ops []database.UpdateOp, cond condition.Tree, ret dbresult.ReturnBehavior) dbresult.Result {
	svc, failed := e.dispatch(tableName)
	if svc == nil {
		return failed
	}
	return svc.Update(ctx, tableName, key, ops, cond, ret)
}

func (e *Engine) Delete(ctx context.Context, tableName string, key primitive.DbKey, cond condition.Tree, ret dbresult.ReturnBehavior) dbresult.Result {
	svc, failed := e.dispatch(tableName)
	if svc == nil {
		return failed
	}
	return svc.Delete(ctx, tableName, key, cond, ret)
}

func (e *Engine) Increment(ctx context.Context, tableName string, key primitive.DbKey, attribute string, delta float64, cond condition.Tree) dbresult.Result {
	svc, failed := e.dispatch(tableName)
	if svc == nil {
		return failed
	}
	return svc.Increment(ctx, tableName, key, attribute, delta, cond)
}

func (e *Engine) AddToArray(ctx context.Context, tableName string, key primitive.DbKey, attribute string, values []primitive.Primitive, cond condition.Tree) dbresult.Result {
	svc, failed := e.dispatch(tableName)
	if svc == nil {
		return failed
	}
	return svc.AddToArray(ctx, tableName, key, attribute, values, cond)
}

func (e *Engine) RemoveFromArray(ctx context.Context, tableName string, key primitive.DbKey, attribute string, values []primitive.Primitive, cond condition.Tree) dbresult.Result {
	svc, failed := e.dispatch(tableName)
	if svc == nil {
		return failed
	}
	return svc.RemoveFromArray(ctx, tableName, key, attribute, values, cond)
}

func (e *Engine) ScanTable(ctx context.Context, tableName string) dbresult.Result {
	svc, failed := e.dispatch(tableName)
	if svc == nil {
		return failed
	}
	return svc.ScanTable(ctx, tableName)
}

func (e *Engine) ScanTableFiltered(ctx context.Context, tableName string, opts database.ScanOptions) dbresult.Result {
	svc, failed := e.dispatch(tableName)
	if svc == nil {
		return failed
	}
	return svc.ScanTableFiltered(ctx, tableName, opts)
}

func (e *Engine) ScanPaginated(ctx context.Context, tableName string, opts database.ScanOptions, pageToken string, pageSize int) dbresult.Result {
	svc, failed := e.dispatch(tableName)
	if svc == nil {
		return failed
	}
	return svc.ScanPaginated(ctx, tableName, opts, pageToken, pageSize)
}

func (e *Engine) DropTable(ctx context.Context, tableName string) dbresult.Result {
	svc, failed := e.dispatch(tableName)
	if svc == nil {
		return failed
	}
	return svc.DropTable(ctx, tableName)
}

// ListTables aggregates every registered provider's table list, since the
// engine itself spans more than one backend (spec supplemented feature;
// no single provider's ListTables sees the whole picture once routing
// fans a deployment out across several).
func (e *Engine) ListTables(ctx context.Context) dbresult.Result {
	names := map[string]bool{}
	for _, svc := range e.providers {
		res := svc.ListTables(ctx)
		if !res.Success {
			continue
		}
		if list, ok := res.Data.([]string); ok {
			for _, n := range list {
				names[n] = true
			}
		}
	}
	if e.fallback != nil {
		if res := e.fallback.ListTables(ctx); res.Success {
			if list, ok := res.Data.([]string); ok {
				for _, n := range list {
					names[n] = true
				}
			}
		}
	}
	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	sort.Strings(out)
	return dbresult.Ok(200, out)
}

func (e *Engine) ListKeyNames(ctx context.Context, tableName string) dbresult.Result {
	svc, failed := e.dispatch(tableName)
	if svc == nil {
		return failed
	}
	return svc.ListKeyNames(ctx, tableName)
}

var _ database.Service = (*Engine)(nil)
