package dbengine

import (
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"
)

// Grounded on the teacher's internal/theorydb/theorydb_stream_test.go:
// build a stream image from events.New*Attribute helpers and assert the
// decoded shape, generalized here to database.Item instead of a
// struct-tag model.
func TestDecodeStreamImage(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"PK":     events.NewStringAttribute("ORDER#123"),
		"Total":  events.NewNumberAttribute("99.99"),
		"Count":  events.NewNumberAttribute("3"),
		"Active": events.NewBooleanAttribute(true),
		"Tags": events.NewListAttribute([]events.DynamoDBAttributeValue{
			events.NewStringAttribute("a"),
			events.NewStringAttribute("b"),
		}),
		"Deleted": events.NewNullAttribute(),
	}

	item, err := DecodeStreamImage(image)
	require.NoError(t, err)
	require.Equal(t, "ORDER#123", item["PK"])
	require.Equal(t, 99.99, item["Total"])
	require.Equal(t, int64(3), item["Count"])
	require.Equal(t, true, item["Active"])
	require.Equal(t, []any{"a", "b"}, item["Tags"])
	require.Nil(t, item["Deleted"])
}

func TestDecodeStreamImage_NestedMap(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"Profile": events.NewMapAttribute(map[string]events.DynamoDBAttributeValue{
			"Age": events.NewNumberAttribute("30"),
		}),
	}

	item, err := DecodeStreamImage(image)
	require.NoError(t, err)
	profile, ok := item["Profile"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, int64(30), profile["Age"])
}
