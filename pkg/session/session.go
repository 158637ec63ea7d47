// Package session provides AWS session management and per-provider client
// configuration (ambient stack, spec SPEC_FULL.md §1). Grounded directly on
// the teacher's pkg/session: same Config shape (region, endpoint,
// credentials provider, retry budget, functional AWS/DynamoDB load
// options), same NewSession construction sequence (load AWS config with
// region/credentials/retry options, then build a service client with a
// shared HTTP client and endpoint override).
package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// configLoadFunc is overridable in tests, mirroring the teacher's
// package-level seam for mocking config.LoadDefaultConfig.
var configLoadFunc = config.LoadDefaultConfig

// Config holds everything a provider needs to reach its backend: AWS
// region/credentials/retry policy plus the optional KMS/S3 wiring used by
// the providers/dynamo encryption and overflow features.
type Config struct {
	CredentialsProvider aws.CredentialsProvider
	Region              string
	Endpoint            string

	// KMSKeyARN, when set, makes NewSession build a KMS client (unless
	// KMSClient is given). It does not by itself encrypt anything: envelope
	// encryption of Bytes attributes is turned on per provider with
	// providers/dynamo.WithEncryption. Never required.
	KMSKeyARN string
	KMSClient KMSClient `json:"-" yaml:"-"`

	// S3Bucket, when set, turns on large-item overflow
	// (providers/dynamo/overflow.go).
	S3Bucket string

	EncryptionRand   io.Reader        `json:"-" yaml:"-"`
	Now              func() time.Time `json:"-" yaml:"-"`
	AWSConfigOptions []func(*config.LoadOptions) error
	DynamoDBOptions  []func(*dynamodb.Options)
	MaxRetries       int
	EnableMetrics    bool
}

// KMSClient narrows the KMS surface internal/codec.EncryptionService needs,
// enabling deterministic tests without a real KMS call.
type KMSClient interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

func DefaultConfig() *Config {
	return &Config{
		Region:     "us-east-1",
		MaxRetries: 3,
	}
}

// Session owns one AWS config plus the lazily-built service clients for it.
// One Session is shared by every call a provider makes (spec §5: a single
// long-lived client per backend connection).
type Session struct {
	config    *Config
	awsConfig aws.Config
	dynamo    *dynamodb.Client
	kms       *kms.Client
	s3        *s3.Client
}

// NewSession loads the AWS config described by cfg and builds the
// DynamoDB client eagerly (every provider needs one); KMS/S3 clients are
// built here too, but only when Config.KMSKeyARN/S3Bucket opt in.
func NewSession(cfg *Config) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	options := make([]func(*config.LoadOptions) error, 0, len(cfg.AWSConfigOptions)+4)
	if cfg.Region != "" {
		options = append(options, config.WithRegion(cfg.Region))
	}
	if cfg.CredentialsProvider != nil {
		options = append(options, config.WithCredentialsProvider(cfg.CredentialsProvider))
	}

	maxAttempts := cfg.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	options = append(options, config.WithRetryMode(aws.RetryModeStandard))
	options = append(options, config.WithRetryMaxAttempts(maxAttempts))

	httpClient := &http.Client{Timeout: 30 * time.Second}
	options = append(options, config.WithHTTPClient(httpClient))
	options = append(options, cfg.AWSConfigOptions...)

	awsConfig, err := configLoadFunc(context.Background(), options...)
	if err != nil {
		return nil, fmt.Errorf("session: failed to load AWS config: %w", err)
	}
	if awsConfig.Retryer == nil {
		awsConfig.Retryer = func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) { o.MaxAttempts = maxAttempts })
		}
	}

	clientOptions := make([]func(*dynamodb.Options), 0, 1+len(cfg.DynamoDBOptions))
	clientOptions = append(clientOptions, func(o *dynamodb.Options) {
		o.Region = awsConfig.Region
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if o.Retryer == nil {
			o.Retryer = awsConfig.Retryer()
		}
		if o.HTTPClient == nil {
			o.HTTPClient = httpClient
		}
	})
	clientOptions = append(clientOptions, cfg.DynamoDBOptions...)

	client := dynamodb.NewFromConfig(awsConfig, clientOptions...)

	s := &Session{config: cfg, awsConfig: awsConfig, dynamo: client}
	if cfg.KMSKeyARN != "" && cfg.KMSClient == nil {
		s.kms = kms.NewFromConfig(awsConfig)
	}
	if cfg.S3Bucket != "" {
		s.s3 = s3.NewFromConfig(awsConfig)
	}
	return s, nil
}

func (s *Session) DynamoDB() (*dynamodb.Client, error) {
	if s == nil || s.dynamo == nil {
		return nil, fmt.Errorf("session: DynamoDB client is nil")
	}
	return s.dynamo, nil
}

// KMS returns the session's KMS client, or nil if KMSKeyARN was never
// configured (encryption disabled).
func (s *Session) KMS() *kms.Client { return s.kms }

// S3 returns the session's S3 client, or nil if S3Bucket was never
// configured (overflow disabled).
func (s *Session) S3() *s3.Client { return s.s3 }

func (s *Session) Config() *Config { return s.config }

func (s *Session) AWSConfig() aws.Config { return s.awsConfig }
