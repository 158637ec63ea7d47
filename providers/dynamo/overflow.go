package dynamo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/bkio/crosscloudkit/internal/codec"
	"github.com/bkio/crosscloudkit/pkg/database"
	"github.com/bkio/crosscloudkit/pkg/primitive"
)

// maxDynamoItemBytes is DynamoDB's hard per-item limit (400 KiB); this
// provider spills to S3 a little under that to leave room for the
// bookkeeping attributes it always adds (partitionKeyAttr, keyAttrNameAttr,
// overflow pointer attributes).
const maxDynamoItemBytes = 380 * 1024

const (
	overflowFlagAttr     = "__overflow__"
	overflowLocationAttr = "__overflow_s3key__"
)

// maybeSpillToS3 replaces item with a lightweight pointer record when its
// encoded size would exceed maxDynamoItemBytes and an S3 bucket is
// configured (spec §4 supplemented feature: large-item overflow, grounded
// on the teacher's Session.S3 client wiring - pkg/session.go exposes S3()
// exactly so a provider can opt into this without its own session
// plumbing). Returns item unchanged if overflow does not apply.
func (p *Provider) maybeSpillToS3(ctx context.Context, tableName string, key primitive.DbKey, item database.Item) (database.Item, error) {
	bucket := p.session.Config().S3Bucket
	client := p.session.S3()
	if bucket == "" || client == nil {
		return item, nil
	}

	raw, err := codec.EncodeItem(item)
	if err != nil {
		return nil, fmt.Errorf("dynamo: encode item for overflow check: %w", err)
	}
	if len(raw) <= maxDynamoItemBytes {
		return item, nil
	}

	s3Key := fmt.Sprintf("%s/%s.json", tableName, key.Value.Canonical())
	if _, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(s3Key),
		Body:   bytes.NewReader(raw),
	}); err != nil {
		return nil, fmt.Errorf("dynamo: s3 overflow upload failed: %w", err)
	}

	return database.Item{
		overflowFlagAttr:     true,
		overflowLocationAttr: s3Key,
	}, nil
}

// maybeHydrateFromS3 reverses maybeSpillToS3 when a read observes the
// overflow pointer shape.
func (p *Provider) maybeHydrateFromS3(ctx context.Context, item database.Item) (database.Item, error) {
	flagged, _ := item[overflowFlagAttr].(bool)
	if !flagged {
		return item, nil
	}
	s3Key, _ := item[overflowLocationAttr].(string)
	if s3Key == "" {
		return nil, fmt.Errorf("dynamo: overflow item missing %s", overflowLocationAttr)
	}

	bucket := p.session.Config().S3Bucket
	client := p.session.S3()
	if bucket == "" || client == nil {
		return nil, fmt.Errorf("dynamo: overflow item found but no S3 bucket is configured")
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(s3Key)})
	if err != nil {
		return nil, fmt.Errorf("dynamo: s3 overflow download failed: %w", err)
	}
	defer out.Body.Close()
	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("dynamo: read s3 overflow body: %w", err)
	}

	var hydrated database.Item
	if err := json.Unmarshal(raw, &hydrated); err != nil {
		return nil, fmt.Errorf("dynamo: decode s3 overflow body: %w", err)
	}
	return codec.NormalizeNumbers(hydrated).(database.Item), nil
}
