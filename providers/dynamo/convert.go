// Package dynamo implements the Database Service contract (pkg/database)
// over Amazon DynamoDB. Grounded on the teacher's internal/theorydb.go
// (the engine gluing session/expr/encryption together around the AWS SDK)
// and pkg/types/converter.go (hand-rolled Go<->AttributeValue conversion,
// kept hand-rolled here rather than switching to
// aws-sdk-go-v2/feature/dynamodb/attributevalue, matching the teacher's own
// choice not to depend on that feature package).
package dynamo

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/bkio/crosscloudkit/pkg/database"
	"github.com/bkio/crosscloudkit/pkg/primitive"
)

// toAttributeValue converts one decoded Item value (string, int64, float64,
// bool, []byte, []any, map[string]any, or nil) into its DynamoDB wire
// representation.
func toAttributeValue(v any) (types.AttributeValue, error) {
	switch val := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case string:
		return &types.AttributeValueMemberS{Value: val}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: val}, nil
	case int:
		return &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", val)}, nil
	case int64:
		return &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", val)}, nil
	case float64:
		return &types.AttributeValueMemberN{Value: formatFloat(val)}, nil
	case []byte:
		return &types.AttributeValueMemberB{Value: val}, nil
	case []any:
		list := make([]types.AttributeValue, 0, len(val))
		for _, elem := range val {
			av, err := toAttributeValue(elem)
			if err != nil {
				return nil, err
			}
			list = append(list, av)
		}
		return &types.AttributeValueMemberL{Value: list}, nil
	case map[string]any:
		m := make(map[string]types.AttributeValue, len(val))
		for k, elem := range val {
			av, err := toAttributeValue(elem)
			if err != nil {
				return nil, err
			}
			m[k] = av
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	default:
		return nil, fmt.Errorf("dynamo: value of type %T has no AttributeValue representation", v)
	}
}

func formatFloat(f float64) string {
	if i := int64(f); float64(i) == f {
		return fmt.Sprintf("%d", i)
	}
	return fmt.Sprintf("%v", f)
}

// fromAttributeValue is the inverse of toAttributeValue.
func fromAttributeValue(av types.AttributeValue) (any, error) {
	switch val := av.(type) {
	case *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberS:
		return val.Value, nil
	case *types.AttributeValueMemberBOOL:
		return val.Value, nil
	case *types.AttributeValueMemberN:
		return parseNumber(val.Value)
	case *types.AttributeValueMemberB:
		return val.Value, nil
	case *types.AttributeValueMemberL:
		out := make([]any, 0, len(val.Value))
		for _, elem := range val.Value {
			v, err := fromAttributeValue(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case *types.AttributeValueMemberM:
		out := make(map[string]any, len(val.Value))
		for k, elem := range val.Value {
			v, err := fromAttributeValue(elem)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("dynamo: unsupported AttributeValue type %T", av)
	}
}

func parseNumber(s string) (any, error) {
	var i int64
	if _, err := fmt.Sscanf(s, "%d", &i); err == nil && fmt.Sprintf("%d", i) == s {
		return i, nil
	}
	var f float64
	if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
		return nil, fmt.Errorf("dynamo: malformed numeric attribute value %q", s)
	}
	return f, nil
}

// itemToAttributeValues converts a whole Item map.
func itemToAttributeValues(item database.Item) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		av, err := toAttributeValue(v)
		if err != nil {
			return nil, fmt.Errorf("dynamo: attribute %q: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}

// attributeValuesToItem is the inverse of itemToAttributeValues.
func attributeValuesToItem(m map[string]types.AttributeValue) (database.Item, error) {
	out := make(database.Item, len(m))
	for k, av := range m {
		v, err := fromAttributeValue(av)
		if err != nil {
			return nil, fmt.Errorf("dynamo: attribute %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// primitiveToAttributeValue converts a key's Primitive value directly,
// without going through the Item-shaped round trip.
func primitiveToAttributeValue(p primitive.Primitive) (types.AttributeValue, error) {
	v, err := anyFromPrimitive(p)
	if err != nil {
		return nil, err
	}
	return toAttributeValue(v)
}

func anyFromPrimitive(p primitive.Primitive) (any, error) {
	switch p.Kind() {
	case primitive.KindString:
		v, _ := p.AsString()
		return v, nil
	case primitive.KindInteger:
		v, _ := p.AsInteger()
		return v, nil
	case primitive.KindDouble:
		v, _ := p.AsDouble()
		return v, nil
	case primitive.KindBoolean:
		v, _ := p.AsBoolean()
		return v, nil
	case primitive.KindBytes:
		v, _ := p.AsBytes()
		return v, nil
	default:
		return nil, fmt.Errorf("dynamo: primitive has unknown kind")
	}
}
