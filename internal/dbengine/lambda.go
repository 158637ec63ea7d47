package dbengine

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/bkio/crosscloudkit/pkg/database"
	"github.com/bkio/crosscloudkit/pkg/session"
)

// Lambda-specific tuning, grounded on the teacher's root lambda.go: a
// global, once-initialized session survives warm invocations so the
// DynamoDB/KMS/S3 HTTP connection pool is reused instead of rebuilt on
// every call, and outbound requests get a deadline trimmed below the
// function's own so a backend hang never lets Lambda kill the process
// mid-write. The teacher's model-registry pieces (PreRegisterModels,
// modelCache, RegisterTypeConverter) don't carry over: this module's Item
// type is schema-less, so there is no struct registry to warm.

var (
	globalLambdaSession *session.Session
	lambdaSessionOnce   sync.Once
)

// IsLambdaEnvironment reports whether the process is running inside AWS
// Lambda (teacher's createLambdaDB detection: presence of
// AWS_LAMBDA_FUNCTION_NAME).
func IsLambdaEnvironment() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// LambdaMemoryMB returns the function's configured memory size, or 0 if
// not running in Lambda or the env var is unset/malformed.
func LambdaMemoryMB() int {
	raw := os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE")
	if raw == "" {
		return 0
	}
	mb, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return mb
}

// xrayEnabled reports whether X-Ray tracing is active for this invocation
// (teacher's createLambdaDB: presence of _X_AMZN_TRACE_ID).
func xrayEnabled() bool {
	return os.Getenv("_X_AMZN_TRACE_ID") != ""
}

// lambdaHTTPClient builds a connection-pooled http.Client sized by the
// function's memory tier, matching the teacher's guidance that larger
// memory allocations get proportionally larger connection pools since AWS
// scales CPU with memory.
func lambdaHTTPClient(memoryMB int) *http.Client {
	maxConns := 10
	switch {
	case memoryMB >= 3008:
		maxConns = 100
	case memoryMB >= 1024:
		maxConns = 50
	case memoryMB >= 512:
		maxConns = 25
	}
	transport := &http.Transport{
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxConns,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: 30 * time.Second}
}

// LambdaOptimizedSession returns a process-wide Session tuned for AWS
// Lambda, building it once with sync.Once so every warm invocation of the
// same execution environment reuses the same connection pool instead of
// paying a fresh handshake per call (teacher's NewLambdaOptimized /
// globalLambdaDB singleton).
func LambdaOptimizedSession(base *session.Config) (*session.Session, error) {
	var initErr error
	lambdaSessionOnce.Do(func() {
		if base == nil {
			base = session.DefaultConfig()
		}
		memoryMB := LambdaMemoryMB()
		cfg := *base
		cfg.EnableMetrics = cfg.EnableMetrics || xrayEnabled()
		cfg.AWSConfigOptions = append(append([]func(*config.LoadOptions) error{}, cfg.AWSConfigOptions...),
			config.WithHTTPClient(lambdaHTTPClient(memoryMB)))
		globalLambdaSession, initErr = session.NewSession(&cfg)
	})
	if initErr != nil {
		return nil, initErr
	}
	return globalLambdaSession, nil
}

// WithLambdaDeadline trims ctx's deadline by margin so an in-flight
// backend call returns (success or timeout error) before the Lambda
// runtime freezes or reaps the process at its own deadline. Grounded on
// the teacher's WithLambdaTimeout, generalized to accept any context
// (Lambda's own handler context, which already carries the invocation
// deadline via the runtime API) instead of a theorydb-specific type.
func WithLambdaDeadline(ctx context.Context, margin time.Duration) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	trimmed := deadline.Add(-margin)
	if trimmed.Before(time.Now()) {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, trimmed)
}

// LambdaService wraps a database.Service for use as an AWS Lambda
// handler, reporting whether this invocation paid the cold-start cost
// (teacher's lambda.go tracked cold starts the same way: a bool captured
// once at construction, since a LambdaService built via
// LambdaOptimizedSession is itself only ever constructed on a cold
// start).
type LambdaService struct {
	Service   database.Service
	ColdStart bool
}

// NewLambdaService wraps svc, recording whether this call is the process's
// first (a cold start) via coldStartOnce.
var coldStartOnce sync.Once

func NewLambdaService(svc database.Service) *LambdaService {
	cold := false
	coldStartOnce.Do(func() { cold = true })
	return &LambdaService{Service: svc, ColdStart: cold}
}

// Start runs handler as the Lambda entry point (github.com/aws/aws-lambda-
// go/lambda.Start), matching the teacher's deployment convention of one
// exported func main calling lambda.Start with a typed handler.
func Start(handler any) {
	awslambda.Start(handler)
}

// GetRemainingTimeMillis returns milliseconds until ctx's deadline, or -1
// if ctx carries none. Grounded directly on the teacher's
// GetRemainingTimeMillis.
func GetRemainingTimeMillis(ctx context.Context) int64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return -1
	}
	return time.Until(deadline).Milliseconds()
}

// MemoryStats reports process memory usage against the Lambda function's
// configured allocation, grounded on the teacher's GetMemoryStats /
// LambdaMemoryStats.
type MemoryStats struct {
	AllocBytes     uint64
	SysBytes       uint64
	NumGC          uint32
	LambdaMemoryMB int
	MemoryPercent  float64
}

func ReadMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memoryMB := LambdaMemoryMB()
	percent := 0.0
	if memoryMB > 0 {
		percent = (float64(m.Sys) / 1024 / 1024) / float64(memoryMB) * 100
	}
	return MemoryStats{
		AllocBytes:     m.Alloc,
		SysBytes:       m.Sys,
		NumGC:          m.NumGC,
		LambdaMemoryMB: memoryMB,
		MemoryPercent:  percent,
	}
}
