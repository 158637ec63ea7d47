// Package crosscloudkit provides a cross-cloud conditional document
// database abstraction: one Database Service contract implemented by a
// DynamoDB-style wide-column provider and an in-memory document
// provider, bound together by a provider-agnostic condition/update
// expression compiler and a Post-Condition Emulator CAS loop for
// backends that cannot express the full condition algebra natively.
//
// Import path:
//
//	import "github.com/bkio/crosscloudkit"
//
// Implementation lives in pkg/ and internal/ so the repo root stays a
// thin re-export surface, the same shape the teacher's root
// tabletheory.go kept over internal/theorydb.
package crosscloudkit

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/bkio/crosscloudkit/internal/dbengine"
	"github.com/bkio/crosscloudkit/pkg/condition"
	"github.com/bkio/crosscloudkit/pkg/database"
	"github.com/bkio/crosscloudkit/pkg/dbresult"
	"github.com/bkio/crosscloudkit/pkg/primitive"
	"github.com/bkio/crosscloudkit/pkg/session"
	"github.com/bkio/crosscloudkit/providers/dynamo"
	"github.com/bkio/crosscloudkit/providers/memdoc"
)

type (
	// Service is the Database Service contract (spec C6); both providers
	// below, and any dbengine.Engine composing them, satisfy it.
	Service = database.Service
	Item    = database.Item
	UpdateOp = database.UpdateOp
	ScanOptions = database.ScanOptions
	Page = database.Page

	DbKey     = primitive.DbKey
	Primitive = primitive.Primitive

	Condition = condition.Tree

	Result         = dbresult.Result
	ReturnBehavior = dbresult.ReturnBehavior

	Config        = session.Config
	RoutingConfig = session.RoutingConfig

	DynamoProvider = dynamo.Provider
	MemoryProvider = memdoc.Provider
	Engine         = dbengine.Engine
)

const (
	DoNotReturnValues = dbresult.DoNotReturnValues
	ReturnOldValues   = dbresult.ReturnOldValues
	ReturnNewValues   = dbresult.ReturnNewValues
)

// --- Primitive / DbKey construction ---

func NewString(v string) Primitive   { return primitive.NewString(v) }
func NewInteger(v int64) Primitive   { return primitive.NewInteger(v) }
func NewDouble(v float64) Primitive  { return primitive.NewDouble(v) }
func NewBoolean(v bool) Primitive    { return primitive.NewBoolean(v) }
func NewBytes(v []byte) Primitive    { return primitive.NewBytes(v) }
func NewKey(attribute string, v Primitive) (DbKey, error) { return primitive.NewKey(attribute, v) }

// --- Condition Tree factory (spec §4.2) ---

func AttributeExists(attribute string) Condition    { return database.AttributeExists(attribute) }
func AttributeNotExists(attribute string) Condition { return database.AttributeNotExists(attribute) }
func Equals(attribute string, v Primitive) Condition { return database.Equals(attribute, v) }
func NotEquals(attribute string, v Primitive) Condition { return database.NotEquals(attribute, v) }
func Greater(attribute string, v Primitive) Condition { return database.Greater(attribute, v) }
func GreaterOrEqual(attribute string, v Primitive) Condition {
	return database.GreaterOrEqual(attribute, v)
}
func Less(attribute string, v Primitive) Condition { return database.Less(attribute, v) }
func LessOrEqual(attribute string, v Primitive) Condition {
	return database.LessOrEqual(attribute, v)
}
func ArrayElementExists(attribute string, v Primitive) Condition {
	return database.ArrayElementExists(attribute, v)
}
func ArrayElementNotExists(attribute string, v Primitive) Condition {
	return database.ArrayElementNotExists(attribute, v)
}
func And(a, b Condition) Condition               { return database.And(a, b) }
func Or(a, b Condition) Condition                 { return database.Or(a, b) }
func AggregateAnd(trees ...Condition) Condition   { return database.AggregateAnd(trees...) }
func NoCondition() Condition                      { return database.NoCondition() }

// --- provider construction ---

// NewDynamoProvider builds a DynamoDB-style Service from an AWS session
// config (region, credentials, optional KMS/S3 wiring).
func NewDynamoProvider(cfg *Config, opts ...dynamo.Option) (*DynamoProvider, error) {
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return dynamo.New(sess, opts...), nil
}

// NewDynamoCrossAccountProvider builds a DynamoDB-style Service whose
// requests are signed via an assumed role in another AWS account.
func NewDynamoCrossAccountProvider(cfg *Config, account session.CrossAccountConfig, opts ...dynamo.Option) (*DynamoProvider, error) {
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return dynamo.NewCrossAccount(sess, account, opts...)
}

// NewMemoryProvider builds an in-process document Service; useful for
// tests and for any table a deployment's RoutingConfig routes to
// "memdoc" instead of a real backend.
func NewMemoryProvider() *MemoryProvider { return memdoc.New() }

// NewEngine builds a provider-agnostic Service that dispatches each call
// to the provider a table is routed to (routing may be nil, in which
// case every table uses fallback).
func NewEngine(fallback Service, routing *RoutingConfig) *Engine {
	return dbengine.New(fallback, routing)
}

// LoadRoutingConfig reads a table-to-provider routing document.
func LoadRoutingConfig(path string) (*RoutingConfig, error) {
	return session.LoadRoutingConfig(path)
}

// --- Lambda deployment helpers ---

func IsLambdaEnvironment() bool { return dbengine.IsLambdaEnvironment() }
func LambdaMemoryMB() int       { return dbengine.LambdaMemoryMB() }

// LambdaOptimizedSession returns a process-wide AWS session tuned for
// Lambda (connection pool sized to the function's memory tier), built
// once per execution environment so warm invocations reuse it.
func LambdaOptimizedSession(base *Config) (*session.Session, error) {
	return dbengine.LambdaOptimizedSession(base)
}

// WithLambdaDeadline trims ctx's deadline by margin so a backend call
// returns before the Lambda runtime reaps the process.
func WithLambdaDeadline(ctx context.Context, margin time.Duration) (context.Context, context.CancelFunc) {
	return dbengine.WithLambdaDeadline(ctx, margin)
}

// StartLambda runs handler as the Lambda entry point.
func StartLambda(handler any) { dbengine.Start(handler) }

// DecodeStreamImage converts a DynamoDB Streams record image into the
// same Item shape Get/Put return.
func DecodeStreamImage(image map[string]events.DynamoDBAttributeValue) (Item, error) {
	return dbengine.DecodeStreamImage(image)
}
