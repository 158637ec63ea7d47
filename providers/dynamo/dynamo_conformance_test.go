package dynamo_test

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/bkio/crosscloudkit/pkg/database"
	"github.com/bkio/crosscloudkit/pkg/session"
	"github.com/bkio/crosscloudkit/providers/dynamo"
	"github.com/bkio/crosscloudkit/testsuite"
)

// TestConformance runs the Test Conformance Suite against providers/dynamo
// pointed at a local DynamoDB (docker-compose'd DynamoDB Local), grounded
// on the teacher's contract-tests driver.NewTheorydbDriver: same
// DYNAMODB_ENDPOINT env var and skip-if-unreachable behavior, so this
// suite never fails a run that simply has no local DynamoDB available.
func TestConformance(t *testing.T) {
	endpoint := os.Getenv("DYNAMODB_ENDPOINT")
	if endpoint == "" {
		t.Skip("DYNAMODB_ENDPOINT not set; start DynamoDB Local to run this suite")
	}

	cfg := &session.Config{
		Region:              "us-east-1",
		Endpoint:            endpoint,
		CredentialsProvider: credentials.NewStaticCredentialsProvider("local", "local", ""),
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		t.Fatalf("dynamo: failed to build session: %v", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if res := dynamo.New(sess).ListTables(pingCtx); !res.Success {
		t.Skipf("DynamoDB Local not reachable at %s: %s", endpoint, res.ErrorMessage)
	}

	var tableSeq int64
	testsuite.Run(t, func(t *testing.T) (database.Service, string) {
		t.Helper()
		n := atomic.AddInt64(&tableSeq, 1)
		table := fmt.Sprintf("conformance-%d", n)
		t.Cleanup(func() {
			_ = dynamo.New(sess).DropTable(context.Background(), table)
		})
		return dynamo.New(sess), table
	})
}
