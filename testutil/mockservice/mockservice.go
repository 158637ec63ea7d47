// Package mockservice provides a testify/mock double for database.Service,
// grounded on the teacher's pkg/mocks/db.go (the same mock.Mock-embedding,
// m.Called(...)/args.Get(0) pattern, applied here to the flat Database
// Service contract instead of the teacher's chained query builder).
package mockservice

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/bkio/crosscloudkit/pkg/condition"
	"github.com/bkio/crosscloudkit/pkg/database"
	"github.com/bkio/crosscloudkit/pkg/dbresult"
	"github.com/bkio/crosscloudkit/pkg/primitive"
)

// Service is a mock implementation of database.Service for unit tests that
// depend on the Database Service contract without exercising a real
// backend.
//
// Example usage:
//
//	svc := new(mockservice.Service)
//	svc.On("Get", mock.Anything, "users", key).Return(dbresult.Ok(200, database.Item{"id": "1"}))
type Service struct {
	mock.Mock
}

func mustResult(v any) dbresult.Result {
	if v == nil {
		return dbresult.Result{}
	}
	return v.(dbresult.Result)
}

func (m *Service) Put(ctx context.Context, tableName string, key primitive.DbKey, item database.Item, overwriteIfExists bool, cond condition.Tree, ret dbresult.ReturnBehavior) dbresult.Result {
	args := m.Called(ctx, tableName, key, item, overwriteIfExists, cond, ret)
	return mustResult(args.Get(0))
}

func (m *Service) Get(ctx context.Context, tableName string, key primitive.DbKey) dbresult.Result {
	args := m.Called(ctx, tableName, key)
	return mustResult(args.Get(0))
}

func (m *Service) GetMany(ctx context.Context, tableName string, keys []primitive.DbKey) dbresult.Result {
	args := m.Called(ctx, tableName, keys)
	return mustResult(args.Get(0))
}

func (m *Service) Exists(ctx context.Context, tableName string, key primitive.DbKey, cond condition.Tree) dbresult.Result {
	args := m.Called(ctx, tableName, key, cond)
	return mustResult(args.Get(0))
}

func (m *Service) Update(ctx context.Context, tableName string, key primitive.DbKey, ops []database.UpdateOp, cond condition.Tree, ret dbresult.ReturnBehavior) dbresult.Result {
	args := m.Called(ctx, tableName, key, ops, cond, ret)
	return mustResult(args.Get(0))
}

func (m *Service) Delete(ctx context.Context, tableName string, key primitive.DbKey, cond condition.Tree, ret dbresult.ReturnBehavior) dbresult.Result {
	args := m.Called(ctx, tableName, key, cond, ret)
	return mustResult(args.Get(0))
}

func (m *Service) Increment(ctx context.Context, tableName string, key primitive.DbKey, attribute string, delta float64, cond condition.Tree) dbresult.Result {
	args := m.Called(ctx, tableName, key, attribute, delta, cond)
	return mustResult(args.Get(0))
}

func (m *Service) AddToArray(ctx context.Context, tableName string, key primitive.DbKey, attribute string, values []primitive.Primitive, cond condition.Tree) dbresult.Result {
	args := m.Called(ctx, tableName, key, attribute, values, cond)
	return mustResult(args.Get(0))
}

func (m *Service) RemoveFromArray(ctx context.Context, tableName string, key primitive.DbKey, attribute string, values []primitive.Primitive, cond condition.Tree) dbresult.Result {
	args := m.Called(ctx, tableName, key, attribute, values, cond)
	return mustResult(args.Get(0))
}

func (m *Service) ScanTable(ctx context.Context, tableName string) dbresult.Result {
	args := m.Called(ctx, tableName)
	return mustResult(args.Get(0))
}

func (m *Service) ScanTableFiltered(ctx context.Context, tableName string, opts database.ScanOptions) dbresult.Result {
	args := m.Called(ctx, tableName, opts)
	return mustResult(args.Get(0))
}

func (m *Service) ScanPaginated(ctx context.Context, tableName string, opts database.ScanOptions, pageToken string, pageSize int) dbresult.Result {
	args := m.Called(ctx, tableName, opts, pageToken, pageSize)
	return mustResult(args.Get(0))
}

func (m *Service) DropTable(ctx context.Context, tableName string) dbresult.Result {
	args := m.Called(ctx, tableName)
	return mustResult(args.Get(0))
}

func (m *Service) ListTables(ctx context.Context) dbresult.Result {
	args := m.Called(ctx)
	return mustResult(args.Get(0))
}

func (m *Service) ListKeyNames(ctx context.Context, tableName string) dbresult.Result {
	args := m.Called(ctx, tableName)
	return mustResult(args.Get(0))
}

var _ database.Service = (*Service)(nil)
