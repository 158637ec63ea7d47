package dynamo

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/bkio/crosscloudkit/internal/codec"
	"github.com/bkio/crosscloudkit/pkg/database"
	"github.com/bkio/crosscloudkit/pkg/primitive"
)

// partitionKeyAttr and keyAttrNameAttr back the fixed single-partition-key
// table schema every table this provider creates uses. spec §2 lets
// different items in the same table use different key attribute names
// (DbKey.AttributeName varies per item); DynamoDB tables instead fix one
// partition key attribute at creation. This provider reconciles the two by
// storing the logical key under a single physical partition key attribute,
// encoded through Primitive.Canonical() so keys of different Kinds never
// collide, and recording which logical attribute name backed it in a
// sibling non-key attribute for ListKeyNames.
const (
	partitionKeyAttr = "__key__"
	keyAttrNameAttr  = "__keyattr__"
)

// dynamoKey builds the fixed-schema partition key map DynamoDB operations
// address an item by.
func dynamoKey(key primitive.DbKey) (map[string]types.AttributeValue, error) {
	return map[string]types.AttributeValue{
		partitionKeyAttr: &types.AttributeValueMemberS{Value: key.Value.Canonical()},
	}, nil
}

// withStorageAttrs returns item with the partition key and key-attribute-
// name bookkeeping attributes injected, and the logical key attribute
// itself guaranteed present (codec.InjectKey).
func withStorageAttrs(item database.Item, key primitive.DbKey) database.Item {
	out := codec.InjectKey(item, key)
	stamped := make(database.Item, len(out)+2)
	for k, v := range out {
		stamped[k] = v
	}
	stamped[partitionKeyAttr] = key.Value.Canonical()
	stamped[keyAttrNameAttr] = key.AttributeName
	return stamped
}

// stripStorageAttrs removes the bookkeeping attributes before an item is
// handed back to a caller, who only ever sees the logical attributes they
// wrote (spec §3: Item is exactly the caller's own attribute set).
func stripStorageAttrs(item database.Item) database.Item {
	if item == nil {
		return nil
	}
	out := make(database.Item, len(item))
	for k, v := range item {
		if k == partitionKeyAttr || k == keyAttrNameAttr {
			continue
		}
		out[k] = v
	}
	return out
}

// keyAttrNameOf reads the logical key attribute name bookkeeping attribute
// back out of a stored item, for ListKeyNames.
func keyAttrNameOf(item database.Item) (string, bool) {
	v, ok := item[keyAttrNameAttr]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
