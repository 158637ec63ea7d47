package dbengine

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-lambda-go/events"

	"github.com/bkio/crosscloudkit/internal/codec"
	"github.com/bkio/crosscloudkit/pkg/database"
)

// DecodeStreamImage converts a DynamoDB Streams record image
// (events.DynamoDBAttributeValue, the type aws-lambda-go decodes a
// stream-triggered Lambda event into) into the same database.Item shape
// Get/Put return, so stream-triggered handler code can share logic with
// request-response handler code (spec's supplemented "Lambda-optimized
// engine wrapper with stream-image decoding" feature). Grounded on the
// teacher's lambda.go reuse-one-codec-everywhere principle, generalized
// from "decode a DynamoDB SDK AttributeValue" to "decode a Streams
// AttributeValue", which is a distinct (if parallel) type from the same
// ecosystem.
func DecodeStreamImage(image map[string]events.DynamoDBAttributeValue) (database.Item, error) {
	item := make(database.Item, len(image))
	for name, av := range image {
		v, err := decodeStreamAttributeValue(av)
		if err != nil {
			return nil, fmt.Errorf("dbengine: decode stream attribute %q: %w", name, err)
		}
		item[name] = v
	}
	return codec.NormalizeNumbers(item).(database.Item), nil
}

func decodeStreamAttributeValue(av events.DynamoDBAttributeValue) (any, error) {
	switch av.DataType() {
	case events.DataTypeNull:
		return nil, nil
	case events.DataTypeString:
		return av.String(), nil
	case events.DataTypeNumber:
		return decodeStreamNumber(av.Number())
	case events.DataTypeBoolean:
		return av.Boolean(), nil
	case events.DataTypeBinary:
		return av.Binary(), nil
	case events.DataTypeList:
		list := av.List()
		out := make([]any, len(list))
		for i, elem := range list {
			v, err := decodeStreamAttributeValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case events.DataTypeMap:
		return DecodeStreamImage(av.Map())
	case events.DataTypeStringSet:
		set := av.StringSet()
		out := make([]any, len(set))
		for i, s := range set {
			out[i] = s
		}
		return out, nil
	case events.DataTypeNumberSet:
		set := av.NumberSet()
		out := make([]any, len(set))
		for i, n := range set {
			v, err := decodeStreamNumber(n)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case events.DataTypeBinarySet:
		set := av.BinarySet()
		out := make([]any, len(set))
		for i, b := range set {
			out[i] = b
		}
		return out, nil
	default:
		return nil, fmt.Errorf("dbengine: unsupported stream attribute type %v", av.DataType())
	}
}

// decodeStreamNumber mirrors codec's int64-if-integral normalization rule
// so a stream-decoded number lands on the same Integer/Double distinction
// a normal JSON-decoded read would (spec §3, Open Question 4).
func decodeStreamNumber(raw string) (any, error) {
	if i64, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i64, nil
	}
	f64, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DynamoDB number %q: %w", raw, err)
	}
	return f64, nil
}
