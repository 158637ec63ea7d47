package session

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// CrossAccountConfig names a role to assume in another AWS account before
// building a Session for it (spec §4 supplemented feature, grounded on the
// teacher's multiaccount.go AccountConfig/createPartnerDB: a caller hands
// the Database Service a role ARN + external ID per named account and gets
// back a fully independent provider connection using
// stscreds.NewAssumeRoleProvider-sourced credentials).
type CrossAccountConfig struct {
	RoleARN         string
	ExternalID      string
	Region          string
	SessionName     string
	SessionDuration time.Duration
}

// NewCrossAccountSession builds a Session whose credentials are sourced by
// assuming account.RoleARN via STS, using base to reach the STS endpoint in
// the caller's own account. The resulting Session is otherwise a normal
// Session: one long-lived client, independent of base.
func NewCrossAccountSession(base *Session, account CrossAccountConfig) (*Session, error) {
	if base == nil {
		return nil, fmt.Errorf("session: base session is nil")
	}
	if account.RoleARN == "" {
		return nil, fmt.Errorf("session: cross-account RoleARN is required")
	}

	sessionDuration := account.SessionDuration
	if sessionDuration <= 0 {
		sessionDuration = time.Hour
	}
	sessionName := account.SessionName
	if sessionName == "" {
		sessionName = "crosscloudkit-assume-role"
	}

	stsClient := sts.NewFromConfig(base.AWSConfig())
	creds := stscreds.NewAssumeRoleProvider(stsClient, account.RoleARN, func(o *stscreds.AssumeRoleOptions) {
		if account.ExternalID != "" {
			o.ExternalID = &account.ExternalID
		}
		o.RoleSessionName = sessionName
		o.Duration = sessionDuration
	})

	region := account.Region
	if region == "" {
		region = base.Config().Region
	}

	cfg := *base.Config()
	cfg.Region = region
	cfg.CredentialsProvider = creds
	cfg.AWSConfigOptions = append([]func(*config.LoadOptions) error{}, base.Config().AWSConfigOptions...)

	return NewSession(&cfg)
}
