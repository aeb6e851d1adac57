// Package expr renders key, filter and projection expressions with generated placeholders.
package expr

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/theory-cloud/tablerecord/pkg/core"
	customerrors "github.com/theory-cloud/tablerecord/pkg/errors"
)

// Builder allocates #n<k> name placeholders and :v<k> value placeholders.
// Every attribute name gets exactly one alias; values are never shared.
type Builder struct {
	names            map[string]string
	aliasByName      map[string]string
	values           map[string]types.AttributeValue
	partition        string
	sort             string
	filterConditions []string
	projections      []string
	nameCounter      int
	valueCounter     int
}

// ExpressionComponents holds the rendered expressions and placeholder maps.
// Maps are nil when nothing was allocated.
type ExpressionComponents struct {
	ExpressionAttributeNames  map[string]string
	ExpressionAttributeValues map[string]types.AttributeValue
	KeyConditionExpression    string
	FilterExpression          string
	ProjectionExpression      string
}

// NewBuilder creates a new expression builder
func NewBuilder() *Builder {
	return &Builder{
		names:       make(map[string]string),
		aliasByName: make(map[string]string),
		values:      make(map[string]types.AttributeValue),
	}
}

// SetPartitionCondition renders the partition key equality clause
func (b *Builder) SetPartitionCondition(field string, value any) error {
	clause, err := b.buildCondition(field, core.EQ, []any{value})
	if err != nil {
		return err
	}
	b.partition = clause
	return nil
}

// SetSortCondition renders the sort key clause
func (b *Builder) SetSortCondition(field string, op core.Operator, operands ...any) error {
	clause, err := b.buildCondition(field, op, operands)
	if err != nil {
		return err
	}
	b.sort = clause
	return nil
}

// AddFilterCondition renders a filter clause; filters are joined with AND
func (b *Builder) AddFilterCondition(field string, op core.Operator, operands ...any) error {
	clause, err := b.buildCondition(field, op, operands)
	if err != nil {
		return err
	}
	b.filterConditions = append(b.filterConditions, clause)
	return nil
}

// AddProjection adds attributes to the projection expression
func (b *Builder) AddProjection(fields ...string) {
	for _, field := range fields {
		b.projections = append(b.projections, b.addName(field))
	}
}

// Build returns the rendered expressions
func (b *Builder) Build() ExpressionComponents {
	keyConditions := make([]string, 0, 2)
	for _, clause := range []string{b.partition, b.sort} {
		if clause != "" {
			keyConditions = append(keyConditions, clause)
		}
	}

	components := ExpressionComponents{
		KeyConditionExpression: strings.Join(keyConditions, " AND "),
		FilterExpression:       strings.Join(b.filterConditions, " AND "),
		ProjectionExpression:   strings.Join(b.projections, ", "),
	}
	if len(b.names) > 0 {
		components.ExpressionAttributeNames = b.names
	}
	if len(b.values) > 0 {
		components.ExpressionAttributeValues = b.values
	}
	return components
}

func (b *Builder) buildCondition(field string, op core.Operator, operands []any) (string, error) {
	wantOperands := 1
	if op == core.Between {
		wantOperands = 2
	}
	if len(operands) != wantOperands {
		return "", fmt.Errorf("%w: %s takes %d value(s), got %d", customerrors.ErrInvalidOperator, op, wantOperands, len(operands))
	}

	var symbol string
	switch op {
	case core.EQ:
		symbol = "="
	case core.GT:
		symbol = ">"
	case core.GTE:
		symbol = ">="
	case core.LT:
		symbol = "<"
	case core.LTE:
		symbol = "<="
	case core.BeginsWith, core.Between:
	default:
		return "", fmt.Errorf("%w: %s", customerrors.ErrInvalidOperator, op)
	}

	// Convert every operand before allocating so a failure leaves no gaps.
	avs := make([]types.AttributeValue, 0, len(operands))
	for _, operand := range operands {
		av, err := ConvertToAttributeValue(operand)
		if err != nil {
			return "", fmt.Errorf("value for %s: %w", field, err)
		}
		avs = append(avs, av)
	}

	name := b.addName(field)
	switch op {
	case core.Between:
		return fmt.Sprintf("%s BETWEEN %s AND %s", name, b.addValue(avs[0]), b.addValue(avs[1])), nil
	case core.BeginsWith:
		return fmt.Sprintf("begins_with(%s, %s)", name, b.addValue(avs[0])), nil
	default:
		return fmt.Sprintf("%s %s %s", name, symbol, b.addValue(avs[0])), nil
	}
}

func (b *Builder) addName(name string) string {
	if alias, ok := b.aliasByName[name]; ok {
		return alias
	}
	b.nameCounter++
	alias := fmt.Sprintf("#n%d", b.nameCounter)
	b.names[alias] = name
	b.aliasByName[name] = alias
	return alias
}

func (b *Builder) addValue(av types.AttributeValue) string {
	b.valueCounter++
	alias := fmt.Sprintf(":v%d", b.valueCounter)
	b.values[alias] = av
	return alias
}

// ConvertToAttributeValue converts a Go value to an AttributeValue.
// AttributeValues are passed through unchanged.
func ConvertToAttributeValue(value any) (types.AttributeValue, error) {
	if av, ok := value.(types.AttributeValue); ok {
		return av, nil
	}
	av, err := attributevalue.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to convert value: %w", err)
	}
	return av, nil
}
