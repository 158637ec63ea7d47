package primitive

import "fmt"

// DbKey identifies a single item within a table by the (attribute name,
// value) pair that uniquely addresses it (spec C2). Different items in the
// same table may use different AttributeName values; nothing below this
// layer assumes a fixed key schema.
type DbKey struct {
	AttributeName string
	Value         Primitive
}

// NewKey validates AttributeName is non-empty before constructing a DbKey.
// Value kind is never restricted here — providers decide which kinds their
// native key representation can carry.
func NewKey(attributeName string, value Primitive) (DbKey, error) {
	if attributeName == "" {
		return DbKey{}, fmt.Errorf("primitive: key attribute name must not be empty")
	}
	return DbKey{AttributeName: attributeName, Value: value}, nil
}

func (k DbKey) Equal(other DbKey) bool {
	return k.AttributeName == other.AttributeName && k.Value.Equal(other.Value)
}

func (k DbKey) String() string {
	return fmt.Sprintf("%s=%s", k.AttributeName, k.Value.String())
}
