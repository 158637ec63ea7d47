package memdoc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bkio/crosscloudkit/pkg/condition"
	"github.com/bkio/crosscloudkit/pkg/database"
	"github.com/bkio/crosscloudkit/pkg/dbresult"
	crosscloudkiterrors "github.com/bkio/crosscloudkit/pkg/errors"
)

// ScanTable implements database.Service: every item in the table, no
// filter.
func (p *Provider) ScanTable(ctx context.Context, tableName string) dbresult.Result {
	return p.ScanTableFiltered(ctx, tableName, database.ScanOptions{})
}

// ScanTableFiltered implements database.Service: a full scan with an
// optional in-memory filter (spec: FilterExpression-style semantics - the
// filter never prunes what is read, only what is returned).
func (p *Provider) ScanTableFiltered(ctx context.Context, tableName string, opts database.ScanOptions) dbresult.Result {
	t := p.tableFor(tableName)
	t.mu.RLock()
	snapshot := make([]record, 0, len(t.items))
	for _, rec := range t.items {
		snapshot = append(snapshot, record{item: cloneItem(rec.item), keyAttr: rec.keyAttr, version: rec.version})
	}
	t.mu.RUnlock()

	sortRecords(snapshot)

	items := make([]database.Item, 0, len(snapshot))
	for _, rec := range snapshot {
		ok, err := matchesFilter(opts.Filter, rec.item)
		if err != nil {
			return dbresult.Fail(crosscloudkiterrors.New("ScanTableFiltered", tableName, 400, err))
		}
		if !ok {
			continue
		}
		items = append(items, rec.item)
		if opts.Limit > 0 && len(items) >= opts.Limit {
			break
		}
	}
	return dbresult.Ok(200, items)
}

func matchesFilter(filter condition.Tree, item database.Item) (bool, error) {
	if filter.IsEmpty() {
		return true, nil
	}
	return condition.Evaluate(filter, item)
}

// scanCursor is the opaque seek position ScanPaginated encodes into its
// page token: the sort key of the last item returned. Resuming from it
// seeks forward past that key rather than by numeric offset, so
// concurrent inserts elsewhere in the table never duplicate or skip items
// within a page (spec §4.6 pagination: "a page boundary must not shift
// under concurrent writes").
type scanCursor struct {
	LastSortKey string `json:"last"`
}

func encodeCursor(c scanCursor) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("memdoc: encode scan cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeCursor(token string) (scanCursor, error) {
	if token == "" {
		return scanCursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return scanCursor{}, fmt.Errorf("memdoc: malformed scan cursor: %w", err)
	}
	var c scanCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return scanCursor{}, fmt.Errorf("memdoc: malformed scan cursor: %w", err)
	}
	return c, nil
}

// ScanPaginated implements database.Service.
func (p *Provider) ScanPaginated(ctx context.Context, tableName string, opts database.ScanOptions, pageToken string, pageSize int) dbresult.Result {
	if pageSize <= 0 {
		pageSize = 100
	}
	cursor, err := decodeCursor(pageToken)
	if err != nil {
		return dbresult.Fail(crosscloudkiterrors.New("ScanPaginated", tableName, 400, crosscloudkiterrors.ErrValidation))
	}

	t := p.tableFor(tableName)
	t.mu.RLock()
	snapshot := make([]record, 0, len(t.items))
	for _, rec := range t.items {
		snapshot = append(snapshot, record{item: cloneItem(rec.item), keyAttr: rec.keyAttr, version: rec.version})
	}
	t.mu.RUnlock()

	sortRecords(snapshot)

	page := database.Page{Items: make([]database.Item, 0, pageSize)}
	for _, rec := range snapshot {
		sortKey := sortKeyOf(rec)
		if cursor.LastSortKey != "" && sortKey <= cursor.LastSortKey {
			continue
		}
		ok, evalErr := matchesFilter(opts.Filter, rec.item)
		if evalErr != nil {
			return dbresult.Fail(crosscloudkiterrors.New("ScanPaginated", tableName, 400, evalErr))
		}
		if !ok {
			continue
		}
		page.Items = append(page.Items, rec.item)
		if len(page.Items) == pageSize {
			token, encErr := encodeCursor(scanCursor{LastSortKey: sortKey})
			if encErr != nil {
				return dbresult.Fail(crosscloudkiterrors.New("ScanPaginated", tableName, 500, encErr))
			}
			page.NextPageToken = token
			break
		}
	}
	return dbresult.Ok(200, page)
}

// sortKeyOf derives a stable per-item sort key from its stored key
// attribute and canonical value, giving ScanPaginated a deterministic
// iteration order across calls.
func sortKeyOf(rec record) string {
	v, ok := rec.item[rec.keyAttr]
	if !ok {
		return rec.keyAttr
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return rec.keyAttr
	}
	return rec.keyAttr + "\x00" + string(raw)
}

func sortRecords(recs []record) {
	sort.Slice(recs, func(i, j int) bool { return sortKeyOf(recs[i]) < sortKeyOf(recs[j]) })
}
