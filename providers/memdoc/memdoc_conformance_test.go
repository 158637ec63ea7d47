package memdoc_test

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/bkio/crosscloudkit/pkg/database"
	"github.com/bkio/crosscloudkit/providers/memdoc"
	"github.com/bkio/crosscloudkit/testsuite"
)

// TestConformance runs the full backend-agnostic Test Conformance Suite
// (testsuite.Run) against providers/memdoc, grounded on the teacher's
// contract-tests/runners/go/contract_test.go driver-parametrized runner.
func TestConformance(t *testing.T) {
	var tableSeq int64
	testsuite.Run(t, func(t *testing.T) (database.Service, string) {
		t.Helper()
		n := atomic.AddInt64(&tableSeq, 1)
		return memdoc.New(), fmt.Sprintf("conformance-%d", n)
	})
}
