package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/bkio/crosscloudkit/internal/cas"
	"github.com/bkio/crosscloudkit/internal/codec"
	"github.com/bkio/crosscloudkit/pkg/condition"
	"github.com/bkio/crosscloudkit/pkg/database"
	"github.com/bkio/crosscloudkit/pkg/dbresult"
	"github.com/bkio/crosscloudkit/pkg/primitive"
)

// casVersionAttr is a bookkeeping attribute maintained only by
// AddToArray/RemoveFromArray, letting them detect a concurrent array
// mutation between their read and write. Put/Update never
// touch this attribute, so it carries no meaning for any other operation.
const casVersionAttr = "__casver__"

// versionAbsent is the sentinel internal/cas.VersionedItem.Version carries
// when casVersionAttr has never been set on the item, distinguishing "no
// version yet" from "version is the empty string" so the write step can
// build the right ConditionExpression (attribute_not_exists vs equals).
const versionAbsent = "\x00absent"

func (p *Provider) arrayCAS() *cas.Emulator { return cas.New() }

// arrayMutate runs the shared read-evaluate-write cycle for AddToArray and
// RemoveFromArray: GetItem, evaluate cond against the logical item,
// PutItem the whole item back with the mutated array and a fresh
// casVersionAttr, guarded by a ConditionExpression on the version
// observed at read time.
func (p *Provider) arrayMutate(
	ctx context.Context,
	tableName string,
	key primitive.DbKey,
	cond condition.Tree,
	mutate func(current database.Item, found bool) (database.Item, error),
) (newItem database.Item, err error) {
	if ensureErr := p.ensureTable(ctx, tableName); ensureErr != nil {
		return nil, ensureErr
	}
	client, clientErr := p.session.DynamoDB()
	if clientErr != nil {
		return nil, clientErr
	}
	dkey, keyErr := dynamoKey(key)
	if keyErr != nil {
		return nil, keyErr
	}

	emulator := p.arrayCAS()
	err = emulator.Execute(ctx,
		func(ctx context.Context) (cas.VersionedItem, error) {
			out, err := client.GetItem(ctx, &dynamodb.GetItemInput{TableName: aws.String(tableName), Key: dkey, ConsistentRead: aws.Bool(true)})
			if err != nil {
				return cas.VersionedItem{}, err
			}
			if len(out.Item) == 0 {
				return cas.VersionedItem{Found: false}, nil
			}
			item, err := attributeValuesToItem(out.Item)
			if err != nil {
				return cas.VersionedItem{}, err
			}
			version := versionAbsent
			if v, ok := item[casVersionAttr]; ok {
				if s, ok := v.(string); ok {
					version = s
				}
			}
			return cas.VersionedItem{Item: stripStorageAttrs(item), Version: version, Found: true}, nil
		},
		func(observed cas.VersionedItem) (bool, error) {
			evalItem := observed.Item
			if !observed.Found {
				evalItem = database.Item{}
			}
			return condition.Evaluate(cond, evalItem)
		},
		func(ctx context.Context, observed cas.VersionedItem, newVersion string) error {
			var current database.Item
			if observed.Found {
				current = observed.Item
			}
			next, mutateErr := mutate(current, observed.Found)
			if mutateErr != nil {
				return mutateErr
			}
			stamped := withStorageAttrs(next, key)
			stamped[casVersionAttr] = newVersion
			av, err := itemToAttributeValues(stamped)
			if err != nil {
				return err
			}

			input := &dynamodb.PutItemInput{TableName: aws.String(tableName), Item: av}
			if observed.Found && observed.Version != versionAbsent {
				input.ConditionExpression = aws.String("#v = :v")
				input.ExpressionAttributeNames = map[string]string{"#v": casVersionAttr}
				input.ExpressionAttributeValues = map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: observed.Version}}
			} else if observed.Found {
				input.ConditionExpression = aws.String("attribute_not_exists(#v)")
				input.ExpressionAttributeNames = map[string]string{"#v": casVersionAttr}
			} else {
				input.ConditionExpression = aws.String("attribute_not_exists(#pk)")
				input.ExpressionAttributeNames = map[string]string{"#pk": partitionKeyAttr}
			}

			if _, err := client.PutItem(ctx, input); err != nil {
				var condErr *types.ConditionalCheckFailedException
				if errors.As(err, &condErr) {
					return cas.VersionRace
				}
				return err
			}
			newItem = stripStorageAttrs(next)
			return nil
		},
	)
	return newItem, err
}

// AddToArray implements database.Service: appends each value in order,
// creating the array if absent. Duplicates are allowed; no dedup is
// performed (spec §4.3: "set-like dedup is NOT implied").
func (p *Provider) AddToArray(ctx context.Context, tableName string, key primitive.DbKey, attribute string, values []primitive.Primitive, cond condition.Tree) dbresult.Result {
	newItem, err := p.arrayMutate(ctx, tableName, key, cond, func(current database.Item, found bool) (database.Item, error) {
		next := cloneDynamoItem(current)
		arr, convErr := asDynamoArray(next[attribute])
		if convErr != nil {
			return nil, convErr
		}
		for _, v := range values {
			arr = append(arr, codec.PrimitiveToAny(v))
		}
		next[attribute] = arr
		return next, nil
	})
	if err != nil {
		return opError("AddToArray", tableName, key.String(), err)
	}
	return dbresult.Ok(200, newItem)
}

// RemoveFromArray implements database.Service: removes every element equal
// (by primitive.Equal) to any of values.
func (p *Provider) RemoveFromArray(ctx context.Context, tableName string, key primitive.DbKey, attribute string, values []primitive.Primitive, cond condition.Tree) dbresult.Result {
	newItem, err := p.arrayMutate(ctx, tableName, key, cond, func(current database.Item, found bool) (database.Item, error) {
		next := cloneDynamoItem(current)
		arr, convErr := asDynamoArray(next[attribute])
		if convErr != nil {
			return nil, convErr
		}
		filtered := make([]any, 0, len(arr))
		for _, elem := range arr {
			p, convErr := codec.AnyToPrimitive(elem)
			if convErr != nil {
				return nil, convErr
			}
			if !dynamoArrayContains(values, p) {
				filtered = append(filtered, elem)
			}
		}
		next[attribute] = filtered
		return next, nil
	})
	if err != nil {
		return opError("RemoveFromArray", tableName, key.String(), err)
	}
	return dbresult.Ok(200, newItem)
}

func cloneDynamoItem(item database.Item) database.Item {
	out := make(database.Item, len(item)+1)
	for k, v := range item {
		out[k] = v
	}
	return out
}

func asDynamoArray(v any) ([]any, error) {
	if v == nil {
		return []any{}, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("dynamo: attribute is not an array")
	}
	return append([]any{}, arr...), nil
}

func dynamoArrayContains(haystack []primitive.Primitive, needle primitive.Primitive) bool {
	for _, p := range haystack {
		if p.Equal(needle) {
			return true
		}
	}
	return false
}
