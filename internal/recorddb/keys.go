package recorddb

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/theory-cloud/tablerecord/internal/expr"
	customerrors "github.com/theory-cloud/tablerecord/pkg/errors"
	"github.com/theory-cloud/tablerecord/pkg/schema"
)

// keyFromValues builds a primary key from caller-supplied hash and range values
func keyFromValues(s *schema.Schema, hash any, rng []any) (map[string]types.AttributeValue, error) {
	hashKey, rangeKey := s.HashKey(), s.RangeKey()

	switch {
	case len(rng) > 1:
		return nil, customerrors.NewValidationError(rangeKey, fmt.Errorf("%w: expected one sort key value, got %d", customerrors.ErrInvalidRecord, len(rng)))
	case rangeKey == "" && len(rng) == 1:
		return nil, customerrors.NewValidationError(hashKey, fmt.Errorf("%w: table %s has no sort key", customerrors.ErrInvalidRecord, s.TableName()))
	case rangeKey != "" && len(rng) == 0:
		return nil, customerrors.NewValidationError(rangeKey, fmt.Errorf("%w: sort key %s is required", customerrors.ErrInvalidRecord, rangeKey))
	}

	key := make(map[string]types.AttributeValue, 2)
	av, err := keyValue(s, hashKey, hash)
	if err != nil {
		return nil, err
	}
	key[hashKey] = av

	if rangeKey != "" {
		av, err := keyValue(s, rangeKey, rng[0])
		if err != nil {
			return nil, err
		}
		key[rangeKey] = av
	}
	return key, nil
}

// keyFromItem extracts the primary key from a marshaled record
func keyFromItem(s *schema.Schema, item map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	key := make(map[string]types.AttributeValue, 2)
	for _, name := range s.KeyAttributes() {
		av, ok := item[name]
		if !ok || isEmpty(av) {
			return nil, missingKey(s, name)
		}
		if err := checkKeyType(s, name, av); err != nil {
			return nil, err
		}
		key[name] = av
	}
	return key, nil
}

func keyValue(s *schema.Schema, name string, value any) (types.AttributeValue, error) {
	if value == nil {
		return nil, missingKey(s, name)
	}
	av, err := expr.ConvertToAttributeValue(value)
	if err != nil {
		return nil, customerrors.NewValidationError(name, err)
	}
	if isEmpty(av) {
		return nil, missingKey(s, name)
	}
	if err := checkKeyType(s, name, av); err != nil {
		return nil, err
	}
	return av, nil
}

func missingKey(s *schema.Schema, name string) error {
	if name == s.HashKey() {
		return customerrors.NewValidationError(name, fmt.Errorf("%w: %s is required", customerrors.ErrMissingPartitionKey, name))
	}
	return customerrors.NewValidationError(name, fmt.Errorf("%w: sort key %s is required", customerrors.ErrInvalidRecord, name))
}

func checkKeyType(s *schema.Schema, name string, av types.AttributeValue) error {
	want, ok := s.AttributeType(name)
	if !ok {
		return nil
	}

	var got schema.AttributeType
	switch av.(type) {
	case *types.AttributeValueMemberS:
		got = schema.String
	case *types.AttributeValueMemberN:
		got = schema.Number
	case *types.AttributeValueMemberB:
		got = schema.Binary
	}
	if got != want {
		return customerrors.NewValidationError(name, fmt.Errorf("%w: key %s must be of type %s", customerrors.ErrInvalidAttributeType, name, want))
	}
	return nil
}

func isEmpty(av types.AttributeValue) bool {
	switch v := av.(type) {
	case nil:
		return true
	case *types.AttributeValueMemberNULL:
		return true
	case *types.AttributeValueMemberS:
		return v.Value == ""
	case *types.AttributeValueMemberB:
		return len(v.Value) == 0
	default:
		return false
	}
}
