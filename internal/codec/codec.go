// Package codec implements the Item Round-Trip Codec (spec C9): JSON<->
// native mapping, round-float-to-int normalization, and key injection.
// Grounded on the teacher's pkg/types.Converter reflection-based
// AttributeValue mapping, adapted from struct-tag reflection to operate
// directly on the schema-less map[string]any Item representation (no
// struct registry, no naming convention resolution — the teacher's
// concerns that do not survive the schema-less data model, see DESIGN.md).
package codec

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bkio/crosscloudkit/pkg/primitive"
)

// DecodeItem parses raw JSON into an Item map and applies
// NormalizeNumbers so every whole-valued float64 produced by
// encoding/json's default number decoding becomes an int64, matching the
// data model's Integer/Double distinction (spec §3, Open Question 4).
func DecodeItem(raw []byte) (map[string]any, error) {
	var item map[string]any
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("codec: decode item: %w", err)
	}
	return NormalizeNumbers(item).(map[string]any), nil
}

// EncodeItem serializes an Item map back to its portable JSON form.
func EncodeItem(item map[string]any) ([]byte, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("codec: encode item: %w", err)
	}
	return raw, nil
}

// NormalizeNumbers walks v (expected to be the tree produced by
// encoding/json.Unmarshal into `any` — map[string]any, []any, float64,
// string, bool, nil) and rewrites every float64 that has no fractional
// part into an int64. This is the codec's central normalization rule:
// without it, every JSON number would decode as KindDouble and Integer
// round-tripping would be impossible (spec §9 rationale, Open Question 4).
func NormalizeNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = NormalizeNumbers(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = NormalizeNumbers(elem)
		}
		return out
	case float64:
		if i64 := int64(val); float64(i64) == val {
			return i64
		}
		return val
	default:
		return v
	}
}

// NormalizeNumber applies NormalizeNumbers' int64-if-exact rule to a single
// float64, for callers (Increment in both providers) that compute a numeric
// result directly rather than decoding one out of JSON.
func NormalizeNumber(v float64) any {
	if i64 := int64(v); float64(i64) == v {
		return i64
	}
	return v
}

// InjectKey overwrites item[key.AttributeName] with the key's own value so
// the key a caller supplied out-of-band is always present and correct in
// the stored/returned item, regardless of what the caller's item payload
// happened to contain for that attribute (spec §4.1: "the key attribute is
// always present in the stored item and always reflects the key used to
// address it").
func InjectKey(item map[string]any, key primitive.DbKey) map[string]any {
	out := make(map[string]any, len(item)+1)
	for k, v := range item {
		out[k] = v
	}
	out[key.AttributeName] = PrimitiveToAny(key.Value)
	return out
}

// PrimitiveToAny converts a Primitive into the Go value it would decode to
// from JSON: string, int64, float64, bool, or []byte.
func PrimitiveToAny(p primitive.Primitive) any {
	switch p.Kind() {
	case primitive.KindString:
		v, _ := p.AsString()
		return v
	case primitive.KindInteger:
		v, _ := p.AsInteger()
		return v
	case primitive.KindDouble:
		v, _ := p.AsDouble()
		return v
	case primitive.KindBoolean:
		v, _ := p.AsBoolean()
		return v
	case primitive.KindBytes:
		v, _ := p.AsBytes()
		return v
	default:
		return nil
	}
}

// AnyToPrimitive is the inverse of PrimitiveToAny, used when a provider
// needs to extract a key's value back out of a decoded Item.
func AnyToPrimitive(v any) (primitive.Primitive, error) {
	switch val := v.(type) {
	case string:
		return primitive.NewString(val), nil
	case int64:
		return primitive.NewInteger(val), nil
	case int:
		return primitive.NewInteger(int64(val)), nil
	case float64:
		if i64 := int64(val); float64(i64) == val {
			return primitive.NewInteger(i64), nil
		}
		return primitive.NewDouble(val), nil
	case bool:
		return primitive.NewBoolean(val), nil
	case []byte:
		return primitive.NewBytes(val), nil
	default:
		return primitive.Primitive{}, fmt.Errorf("codec: value of type %T has no primitive representation", v)
	}
}

// CanonicalAttributeOrder returns item's attribute names sorted so
// identical items always produce the same key order, used by tests and by
// providers that hash or fingerprint an item for change detection.
func CanonicalAttributeOrder(item map[string]any) []string {
	names := make([]string, 0, len(item))
	for k := range item {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
