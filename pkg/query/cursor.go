package query

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Cursor is the decoded form of an opaque pagination token.
type Cursor struct {
	Key       map[string]cursorValue `json:"k"`
	IndexName string                 `json:"i,omitempty"`
}

// Key attributes are always scalars, so a cursor only carries S, N and B values.
type cursorValue struct {
	S *string `json:"S,omitempty"`
	N *string `json:"N,omitempty"`
	B []byte  `json:"B,omitempty"`
}

// EncodeCursor turns a LastEvaluatedKey into an opaque token. An empty key yields "".
func EncodeCursor(lastKey map[string]types.AttributeValue, indexName string) (string, error) {
	if len(lastKey) == 0 {
		return "", nil
	}

	c := Cursor{Key: make(map[string]cursorValue, len(lastKey)), IndexName: indexName}
	names := make([]string, 0, len(lastKey))
	for name := range lastKey {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		switch v := lastKey[name].(type) {
		case *types.AttributeValueMemberS:
			c.Key[name] = cursorValue{S: &v.Value}
		case *types.AttributeValueMemberN:
			c.Key[name] = cursorValue{N: &v.Value}
		case *types.AttributeValueMemberB:
			c.Key[name] = cursorValue{B: v.Value}
		default:
			return "", fmt.Errorf("cursor key %s has non-scalar type %T", name, v)
		}
	}

	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeCursor parses a token produced by EncodeCursor
func DecodeCursor(encoded string) (*Cursor, error) {
	if encoded == "" {
		return nil, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cursor: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cursor: %w", err)
	}
	if len(c.Key) == 0 {
		return nil, fmt.Errorf("cursor has no key")
	}
	return &c, nil
}

// ToAttributeValues converts the cursor back into an ExclusiveStartKey
func (c *Cursor) ToAttributeValues() (map[string]types.AttributeValue, error) {
	if c == nil || len(c.Key) == 0 {
		return nil, nil
	}

	out := make(map[string]types.AttributeValue, len(c.Key))
	for name, v := range c.Key {
		switch {
		case v.S != nil:
			out[name] = &types.AttributeValueMemberS{Value: *v.S}
		case v.N != nil:
			out[name] = &types.AttributeValueMemberN{Value: *v.N}
		case v.B != nil:
			out[name] = &types.AttributeValueMemberB{Value: v.B}
		default:
			return nil, fmt.Errorf("cursor key %s has no value", name)
		}
	}
	return out, nil
}
