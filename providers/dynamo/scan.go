package dynamo

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/bkio/crosscloudkit/internal/numutil"
	"github.com/bkio/crosscloudkit/pkg/database"
	"github.com/bkio/crosscloudkit/pkg/dbresult"
	crosscloudkiterrors "github.com/bkio/crosscloudkit/pkg/errors"
)

// ScanTable implements database.Service.
func (p *Provider) ScanTable(ctx context.Context, tableName string) dbresult.Result {
	return p.ScanTableFiltered(ctx, tableName, database.ScanOptions{})
}

// ScanTableFiltered implements database.Service, compiling the filter into
// a native FilterExpression (applied by DynamoDB after reading each page,
// matching spec's "filter never prunes what is read").
func (p *Provider) ScanTableFiltered(ctx context.Context, tableName string, opts database.ScanOptions) dbresult.Result {
	client, err := p.session.DynamoDB()
	if err != nil {
		return dbresult.Fail(err)
	}

	input := &dynamodb.ScanInput{TableName: aws.String(tableName)}
	if err := applyFilter(input, p, opts); err != nil {
		return dbresult.Fail(crosscloudkiterrors.New("ScanTableFiltered", tableName, 400, err))
	}

	var items []database.Item
	paginator := dynamodb.NewScanPaginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return dbresult.Fail(crosscloudkiterrors.New("ScanTableFiltered", tableName, 500, err))
		}
		for _, av := range page.Items {
			item, err := attributeValuesToItem(av)
			if err != nil {
				return dbresult.Fail(crosscloudkiterrors.New("ScanTableFiltered", tableName, 500, err))
			}
			item, err = p.decryptItem(ctx, item)
			if err != nil {
				return dbresult.Fail(crosscloudkiterrors.New("ScanTableFiltered", tableName, 500, err))
			}
			items = append(items, stripStorageAttrs(item))
			if opts.Limit > 0 && len(items) >= opts.Limit {
				return dbresult.Ok(200, items)
			}
		}
	}
	if items == nil {
		items = []database.Item{}
	}
	return dbresult.Ok(200, items)
}

// ScanPaginated implements database.Service, carrying DynamoDB's own
// LastEvaluatedKey (just the partition key attribute, given this
// provider's single-attribute key schema) as the opaque page token.
func (p *Provider) ScanPaginated(ctx context.Context, tableName string, opts database.ScanOptions, pageToken string, pageSize int) dbresult.Result {
	client, err := p.session.DynamoDB()
	if err != nil {
		return dbresult.Fail(err)
	}
	if pageSize <= 0 {
		pageSize = 100
	}

	input := &dynamodb.ScanInput{TableName: aws.String(tableName), Limit: aws.Int32(numutil.ClampIntToInt32(pageSize))}
	if err := applyFilter(input, p, opts); err != nil {
		return dbresult.Fail(crosscloudkiterrors.New("ScanPaginated", tableName, 400, err))
	}
	if pageToken != "" {
		exclusiveStart, err := decodeScanCursor(pageToken)
		if err != nil {
			return dbresult.Fail(crosscloudkiterrors.New("ScanPaginated", tableName, 400, crosscloudkiterrors.ErrValidation))
		}
		input.ExclusiveStartKey = exclusiveStart
	}

	out, err := client.Scan(ctx, input)
	if err != nil {
		return dbresult.Fail(crosscloudkiterrors.New("ScanPaginated", tableName, 500, err))
	}

	items := make([]database.Item, 0, len(out.Items))
	for _, av := range out.Items {
		item, err := attributeValuesToItem(av)
		if err != nil {
			return dbresult.Fail(crosscloudkiterrors.New("ScanPaginated", tableName, 500, err))
		}
		item, err = p.decryptItem(ctx, item)
		if err != nil {
			return dbresult.Fail(crosscloudkiterrors.New("ScanPaginated", tableName, 500, err))
		}
		items = append(items, stripStorageAttrs(item))
	}

	page := database.Page{Items: items}
	if len(out.LastEvaluatedKey) > 0 {
		token, err := encodeScanCursor(out.LastEvaluatedKey)
		if err != nil {
			return dbresult.Fail(crosscloudkiterrors.New("ScanPaginated", tableName, 500, err))
		}
		page.NextPageToken = token
	}
	return dbresult.Ok(200, page)
}

func applyFilter(input *dynamodb.ScanInput, p *Provider, opts database.ScanOptions) error {
	if opts.Filter.IsEmpty() {
		return nil
	}
	compiled, err := p.compiler.CompileCondition(opts.Filter)
	if err != nil {
		return err
	}
	input.FilterExpression = aws.String(compiled.Expression)
	input.ExpressionAttributeNames = compiled.Names
	av, err := valuesToAttributeValues(compiled.Values)
	if err != nil {
		return err
	}
	if len(av) > 0 {
		input.ExpressionAttributeValues = av
	}
	return nil
}

func encodeScanCursor(key map[string]types.AttributeValue) (string, error) {
	s, ok := key[partitionKeyAttr].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("dynamo: LastEvaluatedKey missing %s", partitionKeyAttr)
	}
	return base64.RawURLEncoding.EncodeToString([]byte(s.Value)), nil
}

func decodeScanCursor(token string) (map[string]types.AttributeValue, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	return map[string]types.AttributeValue{
		partitionKeyAttr: &types.AttributeValueMemberS{Value: string(raw)},
	}, nil
}

// DropTable implements database.Service. Dropping a table that does not
// exist succeeds, so repeated drops are idempotent.
func (p *Provider) DropTable(ctx context.Context, tableName string) dbresult.Result {
	if err := p.dropTable(ctx, tableName); err != nil {
		if err == crosscloudkiterrors.ErrNotFound {
			return dbresult.Ok(200, nil)
		}
		return dbresult.Fail(crosscloudkiterrors.New("DropTable", tableName, 500, err))
	}
	return dbresult.Ok(200, nil)
}

// ListTables implements database.Service.
func (p *Provider) ListTables(ctx context.Context) dbresult.Result {
	names, err := p.listTables(ctx)
	if err != nil {
		return dbresult.Fail(crosscloudkiterrors.New("ListTables", "", 500, err))
	}
	return dbresult.Ok(200, names)
}

// ListKeyNames implements database.Service by scanning the table and
// collecting the distinct keyAttrNameAttr values recorded at write time.
func (p *Provider) ListKeyNames(ctx context.Context, tableName string) dbresult.Result {
	client, err := p.session.DynamoDB()
	if err != nil {
		return dbresult.Fail(err)
	}
	seen := map[string]bool{}
	var names []string
	paginator := dynamodb.NewScanPaginator(client, &dynamodb.ScanInput{
		TableName:            aws.String(tableName),
		ProjectionExpression: aws.String(keyAttrNameAttr),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return dbresult.Fail(crosscloudkiterrors.New("ListKeyNames", tableName, 500, err))
		}
		for _, av := range page.Items {
			s, ok := av[keyAttrNameAttr].(*types.AttributeValueMemberS)
			if !ok || seen[s.Value] {
				continue
			}
			seen[s.Value] = true
			names = append(names, s.Value)
		}
	}
	return dbresult.Ok(200, names)
}
