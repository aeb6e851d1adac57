// Package core defines the types shared by the compiler, the query builder and table operations
package core

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	customerrors "github.com/theory-cloud/tablerecord/pkg/errors"
)

// Operator is a comparison used in key and filter conditions
type Operator string

// Supported operators
const (
	EQ         Operator = "EQ"
	GT         Operator = "GT"
	GTE        Operator = "GTE"
	LT         Operator = "LT"
	LTE        Operator = "LTE"
	BeginsWith Operator = "BEGINS_WITH"
	Between    Operator = "BETWEEN"
)

// ParseOperator normalizes the accepted spellings of an operator
func ParseOperator(op string) (Operator, error) {
	switch strings.ToUpper(strings.TrimSpace(op)) {
	case "=", "==", "EQ":
		return EQ, nil
	case ">", "GT":
		return GT, nil
	case ">=", "GTE", "GE":
		return GTE, nil
	case "<", "LT":
		return LT, nil
	case "<=", "LTE", "LE":
		return LTE, nil
	case "BEGINS_WITH", "BEGINSWITH":
		return BeginsWith, nil
	case "BETWEEN":
		return Between, nil
	default:
		return "", fmt.Errorf("%w: %s", customerrors.ErrInvalidOperator, op)
	}
}

// Condition is an operator applied to an operand. A predicate value that is not
// a Condition means equality.
type Condition struct {
	Operand  any
	Operator Operator
}

// Operands returns the values the condition consumes: two for BETWEEN, one otherwise.
// BETWEEN takes any two element slice or array.
func (c Condition) Operands() ([]any, error) {
	if c.Operator != Between {
		return []any{c.Operand}, nil
	}
	if c.Operand != nil {
		v := reflect.ValueOf(c.Operand)
		if (v.Kind() == reflect.Slice || v.Kind() == reflect.Array) && v.Len() == 2 {
			return []any{v.Index(0).Interface(), v.Index(1).Interface()}, nil
		}
	}
	return nil, fmt.Errorf("%w: BETWEEN requires exactly two values", customerrors.ErrInvalidOperator)
}

// IsNil reports whether v is nil or a typed nil pointer, map, slice, func or interface
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

// PredicateSet is an ordered field -> value mapping. Setting an existing field
// replaces its value and keeps its original position.
type PredicateSet struct {
	values map[string]any
	fields []string
}

// Set stores value for field
func (p *PredicateSet) Set(field string, value any) {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	if _, exists := p.values[field]; !exists {
		p.fields = append(p.fields, field)
	}
	p.values[field] = value
}

// Get returns the value stored for field
func (p *PredicateSet) Get(field string) (any, bool) {
	v, ok := p.values[field]
	return v, ok
}

// Delete removes field
func (p *PredicateSet) Delete(field string) {
	if _, ok := p.values[field]; !ok {
		return
	}
	delete(p.values, field)
	for i, f := range p.fields {
		if f == field {
			p.fields = append(p.fields[:i:i], p.fields[i+1:]...)
			break
		}
	}
}

// Len returns the number of fields
func (p *PredicateSet) Len() int {
	return len(p.fields)
}

// Fields returns the fields in insertion order
func (p *PredicateSet) Fields() []string {
	return append([]string(nil), p.fields...)
}

// Each visits fields in insertion order
func (p *PredicateSet) Each(fn func(field string, value any)) {
	for _, f := range p.fields {
		fn(f, p.values[f])
	}
}

// Clone returns an independent copy
func (p *PredicateSet) Clone() *PredicateSet {
	out := &PredicateSet{}
	p.Each(out.Set)
	return out
}

// CompiledQuery is the store-level query request produced by the compiler.
// Empty strings, nil pointers and empty maps mean "omitted".
type CompiledQuery struct {
	ScanIndexForward          *bool
	Limit                     *int32
	ConsistentRead            *bool
	ExpressionAttributeNames  map[string]string
	ExpressionAttributeValues map[string]types.AttributeValue
	ExclusiveStartKey         map[string]types.AttributeValue
	TableName                 string
	IndexName                 string
	KeyConditionExpression    string
	FilterExpression          string
	ProjectionExpression      string
}

// QueryResult is one page returned by Table Operations
type QueryResult struct {
	Items            []map[string]types.AttributeValue
	LastEvaluatedKey map[string]types.AttributeValue
	Count            int32
	ScannedCount     int32
}

// TableOperations executes compiled requests against the store
type TableOperations interface {
	Query(ctx context.Context, input *CompiledQuery) (*QueryResult, error)
}
