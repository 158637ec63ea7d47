package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	crosscloudkiterrors "github.com/bkio/crosscloudkit/pkg/errors"
)

// ensureTable creates tableName with the fixed single-partition-key schema
// (partitionKeyAttr, type S) if it does not already exist, mirroring the
// teacher's internal/theorydb AutoMigrate-on-first-use idiom but scoped to
// the one schema every table needs (no GSIs/LSIs - spec Non-goal).
func (p *Provider) ensureTable(ctx context.Context, tableName string) error {
	client, err := p.session.DynamoDB()
	if err != nil {
		return err
	}

	_, err = client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("dynamo: describe table %q: %w", tableName, err)
	}

	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(partitionKeyAttr), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(partitionKeyAttr), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("dynamo: create table %q: %w", tableName, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)}, maxTableWait); err != nil {
		return fmt.Errorf("dynamo: wait for table %q to become active: %w", tableName, err)
	}
	return nil
}

// DropTable implements database.Service.
func (p *Provider) dropTable(ctx context.Context, tableName string) error {
	client, err := p.session.DynamoDB()
	if err != nil {
		return err
	}
	_, err = client.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(tableName)})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return crosscloudkiterrors.ErrNotFound
		}
		return fmt.Errorf("dynamo: delete table %q: %w", tableName, err)
	}
	return nil
}

// listTables implements database.Service, paging through every table name
// in the account/region this Session is scoped to.
func (p *Provider) listTables(ctx context.Context) ([]string, error) {
	client, err := p.session.DynamoDB()
	if err != nil {
		return nil, err
	}
	var names []string
	paginator := dynamodb.NewListTablesPaginator(client, &dynamodb.ListTablesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamo: list tables: %w", err)
		}
		names = append(names, page.TableNames...)
	}
	return names, nil
}
