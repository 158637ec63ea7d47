// Package memdoc implements the Database Service contract (pkg/database)
// over an in-process map, for tests and for deployments that route a table
// to "memdoc" in their routing config (pkg/session.RoutingConfig) instead
// of a real DynamoDB table. Every conditional write goes through
// internal/cas.Emulator and pkg/condition.Evaluate uniformly, since an
// in-memory map has no native conditional-expression dialect of its own —
// unlike providers/dynamo, which compiles conditions into DynamoDB's own
// expression language and uses the emulator only for AddToArray and
// RemoveFromArray.
//
// Grounded on
// other_examples/2efff4ab_gravitational-teleport__lib-backend-memory-
// atomicwrite.go.go: one mutex-guarded map, a read-evaluate-write cycle per
// call, and a monotonic per-item revision token guarding concurrent writers
// — the direct model for this provider's use of internal/cas.Emulator.
package memdoc

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bkio/crosscloudkit/internal/cas"
	"github.com/bkio/crosscloudkit/internal/codec"
	"github.com/bkio/crosscloudkit/pkg/condition"
	"github.com/bkio/crosscloudkit/pkg/database"
	"github.com/bkio/crosscloudkit/pkg/dbresult"
	crosscloudkiterrors "github.com/bkio/crosscloudkit/pkg/errors"
	"github.com/bkio/crosscloudkit/pkg/primitive"
)

// record is one stored item plus the opaque version token its CAS guard
// last wrote.
type record struct {
	item    map[string]any
	version string
	keyAttr string
}

// table is one named table's storage: a flat map keyed by the canonical
// form of the item's key, guarded by its own mutex so operations on
// different tables never contend.
type table struct {
	mu    sync.RWMutex
	items map[string]record
}

// Provider is an in-memory database.Service implementation. The zero value
// is not usable; construct with New.
type Provider struct {
	mu     sync.RWMutex
	tables map[string]*table
	cas    *cas.Emulator
}

// New constructs an empty Provider. opts configure the shared
// internal/cas.Emulator (injectable clock/token generator for deterministic
// tests).
func New(opts ...cas.Option) *Provider {
	return &Provider{
		tables: make(map[string]*table),
		cas:    cas.New(opts...),
	}
}

func keyID(key primitive.DbKey) string {
	return key.AttributeName + "\x00" + key.Value.Canonical()
}

func cloneItem(item map[string]any) map[string]any {
	if item == nil {
		return nil
	}
	out := make(map[string]any, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (p *Provider) tableFor(name string) *table {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tables[name]
	if !ok {
		t = &table{items: make(map[string]record)}
		p.tables[name] = t
	}
	return t
}

// existingTable returns the table without creating it, for operations that
// must fail against a table that was never written to
// (ListKeyNames semantics - spec §4.7).
func (p *Provider) existingTable(name string) (*table, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tables[name]
	return t, ok
}

// casWrite runs one read-evaluate-guarded-write cycle shared by every
// write operation (Put/Update/Delete/Increment/AddToArray/RemoveFromArray):
// mutate receives the current item (nil if absent) and returns the item to
// store, or (nil, true, nil) to delete it.
func (p *Provider) casWrite(
	ctx context.Context,
	tableName string,
	key primitive.DbKey,
	cond condition.Tree,
	mutate func(current map[string]any, found bool) (next map[string]any, deleted bool, err error),
) (oldItem, newItem map[string]any, err error) {
	t := p.tableFor(tableName)
	id := keyID(key)

	err = p.cas.Execute(ctx,
		func(ctx context.Context) (cas.VersionedItem, error) {
			t.mu.RLock()
			defer t.mu.RUnlock()
			rec, ok := t.items[id]
			if !ok {
				return cas.VersionedItem{Found: false}, nil
			}
			return cas.VersionedItem{Item: cloneItem(rec.item), Version: rec.version, Found: true}, nil
		},
		func(observed cas.VersionedItem) (bool, error) {
			evalItem := observed.Item
			if !observed.Found {
				evalItem = map[string]any{}
			}
			return condition.Evaluate(cond, evalItem)
		},
		func(ctx context.Context, observed cas.VersionedItem, newVersion string) error {
			t.mu.Lock()
			defer t.mu.Unlock()
			rec, ok := t.items[id]
			if ok != observed.Found || (ok && rec.version != observed.Version) {
				return cas.VersionRace
			}

			var current map[string]any
			if ok {
				current = rec.item
			}
			next, deleted, mutateErr := mutate(current, ok)
			if mutateErr != nil {
				return mutateErr
			}
			oldItem = current

			if deleted {
				delete(t.items, id)
				newItem = nil
				return nil
			}
			next = codec.InjectKey(next, key)
			next = codec.NormalizeNumbers(next).(map[string]any)
			t.items[id] = record{item: next, version: newVersion, keyAttr: key.AttributeName}
			newItem = next
			return nil
		},
	)
	return oldItem, newItem, err
}

// resultFromBehavior builds the OperationResult for a successful write,
// choosing which item snapshot (if any) to echo back per ReturnBehavior.
func resultFromBehavior(behavior dbresult.ReturnBehavior, oldItem, newItem map[string]any) dbresult.Result {
	switch behavior {
	case dbresult.ReturnOldValues:
		return dbresult.Ok(200, oldItem)
	case dbresult.ReturnNewValues:
		return dbresult.Ok(200, newItem)
	default:
		return dbresult.Ok(200, nil)
	}
}

func failResult(op, tableName, key string, err error) dbresult.Result {
	if crosscloudkiterrors.IsConditionFailed(err) {
		return dbresult.Fail(crosscloudkiterrors.NewWithKey(op, tableName, key, 412, err))
	}
	if crosscloudkiterrors.IsConflict(err) || cas.IsVersionRace(err) {
		return dbresult.Fail(crosscloudkiterrors.NewWithKey(op, tableName, key, 409, crosscloudkiterrors.ErrConflict))
	}
	return dbresult.Fail(crosscloudkiterrors.NewWithKey(op, tableName, key, 500, err))
}

// Put implements database.Service. overwriteIfExists=false refuses the
// write with ErrConflict (409) when an item already occupies key, checked
// independently of cond (spec §4.3/§6, scenario S4): the overwrite guard
// is not expressible as a Condition Tree, since a failed Tree maps to 412,
// not 409.
func (p *Provider) Put(ctx context.Context, tableName string, key primitive.DbKey, item database.Item, overwriteIfExists bool, cond condition.Tree, ret dbresult.ReturnBehavior) dbresult.Result {
	old, newItem, err := p.casWrite(ctx, tableName, key, cond, func(current map[string]any, found bool) (map[string]any, bool, error) {
		if found && !overwriteIfExists {
			return nil, false, crosscloudkiterrors.ErrConflict
		}
		return cloneItem(item), false, nil
	})
	if err != nil {
		return failResult("Put", tableName, key.String(), err)
	}
	return resultFromBehavior(ret, old, newItem)
}

// Get implements database.Service.
func (p *Provider) Get(ctx context.Context, tableName string, key primitive.DbKey) dbresult.Result {
	t := p.tableFor(tableName)
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.items[keyID(key)]
	if !ok {
		return dbresult.Fail(crosscloudkiterrors.NewWithKey("Get", tableName, key.String(), 404, crosscloudkiterrors.ErrNotFound))
	}
	return dbresult.Ok(200, cloneItem(rec.item))
}

// GetMany implements database.Service.
func (p *Provider) GetMany(ctx context.Context, tableName string, keys []primitive.DbKey) dbresult.Result {
	t := p.tableFor(tableName)
	t.mu.RLock()
	defer t.mu.RUnlock()
	items := make([]database.Item, 0, len(keys))
	for _, key := range keys {
		if rec, ok := t.items[keyID(key)]; ok {
			items = append(items, cloneItem(rec.item))
		}
	}
	return dbresult.Ok(200, items)
}

// Exists implements database.Service: missing item -> 404; item present but
// cond unsatisfied -> 412; both hold -> 200 (spec §4.3/§4.4).
func (p *Provider) Exists(ctx context.Context, tableName string, key primitive.DbKey, cond condition.Tree) dbresult.Result {
	t := p.tableFor(tableName)
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.items[keyID(key)]
	if !ok {
		return dbresult.Fail(crosscloudkiterrors.NewWithKey("Exists", tableName, key.String(), 404, crosscloudkiterrors.ErrNotFound))
	}
	satisfied, err := condition.Evaluate(cond, rec.item)
	if err != nil {
		return dbresult.Fail(crosscloudkiterrors.NewWithKey("Exists", tableName, key.String(), 500, err))
	}
	if !satisfied {
		return dbresult.Fail(crosscloudkiterrors.NewWithKey("Exists", tableName, key.String(), 412, crosscloudkiterrors.ErrConditionFailed))
	}
	return dbresult.Ok(200, true)
}

// Update implements database.Service. An item absent at the key is treated
// as an empty item (spec's upsert semantics for Update), so Update can both
// create and modify.
func (p *Provider) Update(ctx context.Context, tableName string, key primitive.DbKey, ops []database.UpdateOp, cond condition.Tree, ret dbresult.ReturnBehavior) dbresult.Result {
	old, newItem, err := p.casWrite(ctx, tableName, key, cond, func(current map[string]any, found bool) (map[string]any, bool, error) {
		next := cloneItem(current)
		if next == nil {
			next = map[string]any{}
		}
		for _, op := range ops {
			if op.Remove {
				delete(next, op.Attribute)
				continue
			}
			if op.Set == nil {
				return nil, false, fmt.Errorf("memdoc: update op for %q has neither Set nor Remove", op.Attribute)
			}
			next[op.Attribute] = codec.PrimitiveToAny(*op.Set)
		}
		return next, false, nil
	})
	if err != nil {
		return failResult("Update", tableName, key.String(), err)
	}
	return resultFromBehavior(ret, old, newItem)
}

// Delete implements database.Service. Deleting an absent item succeeds
// without effect, matching DynamoDB's DeleteItem idempotence.
func (p *Provider) Delete(ctx context.Context, tableName string, key primitive.DbKey, cond condition.Tree, ret dbresult.ReturnBehavior) dbresult.Result {
	old, _, err := p.casWrite(ctx, tableName, key, cond, func(current map[string]any, found bool) (map[string]any, bool, error) {
		return nil, true, nil
	})
	if err != nil {
		return failResult("Delete", tableName, key.String(), err)
	}
	return resultFromBehavior(ret, old, nil)
}

// Increment implements database.Service: attribute defaults to 0 if absent,
// then delta (a double, spec §4.3) is added. Fails if the attribute exists
// but is not numeric. The stored and returned result is an int64 if exact,
// else a float64.
func (p *Provider) Increment(ctx context.Context, tableName string, key primitive.DbKey, attribute string, delta float64, cond condition.Tree) dbresult.Result {
	var result any
	_, newItem, err := p.casWrite(ctx, tableName, key, cond, func(current map[string]any, found bool) (map[string]any, bool, error) {
		next := cloneItem(current)
		if next == nil {
			next = map[string]any{}
		}
		var cur float64
		if v, ok := next[attribute]; ok {
			prim, convErr := codec.AnyToPrimitive(v)
			if convErr != nil {
				return nil, false, convErr
			}
			fv, isNum := prim.AsNumeric()
			if !isNum {
				return nil, false, fmt.Errorf("memdoc: attribute %q is not numeric", attribute)
			}
			cur = fv
		}
		result = codec.NormalizeNumber(cur + delta)
		next[attribute] = result
		return next, false, nil
	})
	if err != nil {
		return failResult("Increment", tableName, key.String(), err)
	}
	_ = newItem
	return dbresult.Ok(200, result)
}

// AddToArray implements database.Service: appends each value in order,
// creating the array if absent. Duplicates are allowed; no dedup is
// performed (spec §4.3: "set-like dedup is NOT implied").
func (p *Provider) AddToArray(ctx context.Context, tableName string, key primitive.DbKey, attribute string, values []primitive.Primitive, cond condition.Tree) dbresult.Result {
	old, newItem, err := p.casWrite(ctx, tableName, key, cond, func(current map[string]any, found bool) (map[string]any, bool, error) {
		next := cloneItem(current)
		if next == nil {
			next = map[string]any{}
		}
		arr, convErr := asArray(next[attribute])
		if convErr != nil {
			return nil, false, convErr
		}
		for _, v := range values {
			arr = append(arr, codec.PrimitiveToAny(v))
		}
		next[attribute] = arr
		return next, false, nil
	})
	if err != nil {
		return failResult("AddToArray", tableName, key.String(), err)
	}
	return resultFromBehavior(dbresult.ReturnNewValues, old, newItem)
}

// RemoveFromArray implements database.Service: removes every element equal
// (by primitive.Equal) to any of values.
func (p *Provider) RemoveFromArray(ctx context.Context, tableName string, key primitive.DbKey, attribute string, values []primitive.Primitive, cond condition.Tree) dbresult.Result {
	old, newItem, err := p.casWrite(ctx, tableName, key, cond, func(current map[string]any, found bool) (map[string]any, bool, error) {
		next := cloneItem(current)
		if next == nil {
			next = map[string]any{}
		}
		arr, convErr := asArray(next[attribute])
		if convErr != nil {
			return nil, false, convErr
		}
		filtered := make([]any, 0, len(arr))
		for _, elem := range arr {
			p, convErr := codec.AnyToPrimitive(elem)
			if convErr != nil {
				return nil, false, convErr
			}
			if !arrayContains(values, p) {
				filtered = append(filtered, elem)
			}
		}
		next[attribute] = filtered
		return next, false, nil
	})
	if err != nil {
		return failResult("RemoveFromArray", tableName, key.String(), err)
	}
	return resultFromBehavior(dbresult.ReturnNewValues, old, newItem)
}

func asArray(v any) ([]any, error) {
	if v == nil {
		return []any{}, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("memdoc: attribute is not an array")
	}
	return append([]any{}, arr...), nil
}

func arrayContains(haystack []primitive.Primitive, needle primitive.Primitive) bool {
	for _, p := range haystack {
		if p.Equal(needle) {
			return true
		}
	}
	return false
}

// DropTable implements database.Service. Dropping a table that does not
// exist succeeds, so repeated drops are idempotent.
func (p *Provider) DropTable(ctx context.Context, tableName string) dbresult.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tables, tableName)
	return dbresult.Ok(200, nil)
}

// ListTables implements database.Service.
func (p *Provider) ListTables(ctx context.Context) dbresult.Result {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.tables))
	for name := range p.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return dbresult.Ok(200, names)
}

// ListKeyNames implements database.Service: reports the distinct key
// attribute names items in the table were stored under, since the spec
// permits different items in the same table to use different key
// attribute names.
func (p *Provider) ListKeyNames(ctx context.Context, tableName string) dbresult.Result {
	t, ok := p.existingTable(tableName)
	if !ok {
		return dbresult.Fail(crosscloudkiterrors.New("ListKeyNames", tableName, 404, crosscloudkiterrors.ErrNotFound))
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	seen := map[string]bool{}
	var names []string
	for _, rec := range t.items {
		if !seen[rec.keyAttr] {
			seen[rec.keyAttr] = true
			names = append(names, rec.keyAttr)
		}
	}
	sort.Strings(names)
	return dbresult.Ok(200, names)
}
