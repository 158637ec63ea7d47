package dynamo

import (
	"fmt"

	"github.com/bkio/crosscloudkit/pkg/session"
)

// NewCrossAccount builds a Provider whose DynamoDB/KMS/S3 clients reach
// another AWS account by assuming account.RoleARN, reusing base's own
// credentials only to call STS (pkg/session.NewCrossAccountSession).
// Grounded on the teacher's root multiaccount.go createPartnerDB, which
// built a second *tabletheory.DB the same way for a partner account's
// table.
func NewCrossAccount(base *session.Session, account session.CrossAccountConfig, opts ...Option) (*Provider, error) {
	sess, err := session.NewCrossAccountSession(base, account)
	if err != nil {
		return nil, fmt.Errorf("dynamo: cross-account session: %w", err)
	}
	return New(sess, opts...), nil
}
