package query

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/theory-cloud/tablerecord/internal/expr"
	"github.com/theory-cloud/tablerecord/pkg/core"
	customerrors "github.com/theory-cloud/tablerecord/pkg/errors"
	"github.com/theory-cloud/tablerecord/pkg/schema"
)

// Role is the part of a request a predicate lands in
type Role int

// Predicate roles
const (
	RolePartition Role = iota
	RoleSort
	RoleFilter
)

func (r Role) String() string {
	switch r {
	case RolePartition:
		return "PARTITION"
	case RoleSort:
		return "SORT"
	default:
		return "FILTER"
	}
}

// Options are the modifiers applied on top of the predicates
type Options struct {
	Limit             *int32
	ExclusiveStartKey map[string]types.AttributeValue
	IndexName         string
	Projection        []string
	ConsistentRead    bool
	ScanIndexForward  bool
}

// Compiled is the result of one compilation
type Compiled struct {
	Query        *core.CompiledQuery
	Roles        map[string]Role
	HasPartition bool
}

// Classify decides the role of field against a key schema
func Classify(keySchema []schema.KeySchemaElement, field string) Role {
	for _, el := range keySchema {
		if el.AttributeName != field {
			continue
		}
		if el.KeyType == schema.Hash {
			return RolePartition
		}
		return RoleSort
	}
	return RoleFilter
}

// Compile classifies every predicate against the active key schema (the table's,
// or the index named in opts) and renders the request. Placeholders are
// allocated in predicate order; projection names come after predicate names.
func Compile(s *schema.Schema, predicates *core.PredicateSet, opts Options) (*Compiled, error) {
	if s == nil {
		return nil, customerrors.NewSchemaError("compile", "", fmt.Errorf("%w: no schema", customerrors.ErrIncompleteKeySchema))
	}

	keySchema, err := s.ActiveKeySchema(opts.IndexName)
	if err != nil {
		return nil, err
	}

	b := expr.NewBuilder()
	out := &Compiled{Roles: make(map[string]Role)}

	var compileErr error
	if predicates != nil {
		predicates.Each(func(field string, value any) {
			if compileErr != nil || absent(value) {
				return
			}

			role := Classify(keySchema, field)
			out.Roles[field] = role
			op, operands, err := operandsOf(value)
			if err != nil {
				compileErr = customerrors.NewValidationError(field, err)
				return
			}

			switch role {
			case RolePartition:
				if op != core.EQ {
					compileErr = customerrors.NewValidationError(field,
						fmt.Errorf("%w: partition key %s only accepts equality, got %s", customerrors.ErrInvalidOperator, field, op))
					return
				}
				err = b.SetPartitionCondition(field, operands[0])
				out.HasPartition = err == nil
			case RoleSort:
				err = b.SetSortCondition(field, op, operands...)
			default:
				err = b.AddFilterCondition(field, op, operands...)
			}
			if err != nil {
				compileErr = customerrors.NewValidationError(field, err)
			}
		})
	}
	if compileErr != nil {
		return nil, compileErr
	}

	if len(opts.Projection) > 0 {
		b.AddProjection(opts.Projection...)
	}

	components := b.Build()
	out.Query = &core.CompiledQuery{
		TableName:                 s.TableName(),
		IndexName:                 opts.IndexName,
		ConsistentRead:            aws.Bool(opts.ConsistentRead),
		ScanIndexForward:          aws.Bool(opts.ScanIndexForward),
		KeyConditionExpression:    components.KeyConditionExpression,
		FilterExpression:          components.FilterExpression,
		ProjectionExpression:      components.ProjectionExpression,
		ExpressionAttributeNames:  components.ExpressionAttributeNames,
		ExpressionAttributeValues: components.ExpressionAttributeValues,
		Limit:                     opts.Limit,
	}
	if len(opts.ExclusiveStartKey) > 0 {
		out.Query.ExclusiveStartKey = opts.ExclusiveStartKey
	}
	return out, nil
}

// absent reports a predicate that carries no value: nil, a typed nil, or a
// condition whose operand is one of those.
func absent(value any) bool {
	if core.IsNil(value) {
		return true
	}
	switch cond := value.(type) {
	case core.Condition:
		return core.IsNil(cond.Operand)
	case *core.Condition:
		return core.IsNil(cond.Operand)
	}
	return false
}

func operandsOf(value any) (core.Operator, []any, error) {
	cond, ok := value.(core.Condition)
	if !ok {
		if p, isPtr := value.(*core.Condition); isPtr && p != nil {
			cond, ok = *p, true
		}
	}
	if !ok {
		return core.EQ, []any{value}, nil
	}

	operands, err := cond.Operands()
	if err != nil {
		return "", nil, err
	}
	return cond.Operator, operands, nil
}
