package expr

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/tablerecord/pkg/core"
	customerrors "github.com/theory-cloud/tablerecord/pkg/errors"
)

func TestBuilderOperators(t *testing.T) {
	tests := []struct {
		name     string
		op       core.Operator
		operands []any
		want     string
	}{
		{name: "equal", op: core.EQ, operands: []any{"a"}, want: "#n1 = :v1"},
		{name: "greater", op: core.GT, operands: []any{1}, want: "#n1 > :v1"},
		{name: "greater or equal", op: core.GTE, operands: []any{1}, want: "#n1 >= :v1"},
		{name: "less", op: core.LT, operands: []any{1}, want: "#n1 < :v1"},
		{name: "less or equal", op: core.LTE, operands: []any{1}, want: "#n1 <= :v1"},
		{name: "begins with", op: core.BeginsWith, operands: []any{"pre"}, want: "begins_with(#n1, :v1)"},
		{name: "between", op: core.Between, operands: []any{10, 20}, want: "#n1 BETWEEN :v1 AND :v2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			require.NoError(t, b.SetSortCondition("attr", tt.op, tt.operands...))

			c := b.Build()
			assert.Equal(t, tt.want, c.KeyConditionExpression)
			assert.Equal(t, map[string]string{"#n1": "attr"}, c.ExpressionAttributeNames)
			assert.Len(t, c.ExpressionAttributeValues, len(tt.operands))
			assert.Empty(t, c.FilterExpression)
		})
	}
}

func TestBuilderPlaceholderAllocation(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.SetPartitionCondition("id", "a"))
	require.NoError(t, b.SetSortCondition("ts", core.Between, 1, 2))
	require.NoError(t, b.AddFilterCondition("status", core.EQ, "open"))
	require.NoError(t, b.AddFilterCondition("ts", core.LT, 5))
	b.AddProjection("title", "status")

	c := b.Build()
	assert.Equal(t, "#n1 = :v1 AND #n2 BETWEEN :v2 AND :v3", c.KeyConditionExpression)
	assert.Equal(t, "#n3 = :v4 AND #n2 < :v5", c.FilterExpression)
	assert.Equal(t, "#n4, #n3", c.ProjectionExpression)
	assert.Equal(t, map[string]string{
		"#n1": "id",
		"#n2": "ts",
		"#n3": "status",
		"#n4": "title",
	}, c.ExpressionAttributeNames)
	assert.Equal(t, map[string]types.AttributeValue{
		":v1": &types.AttributeValueMemberS{Value: "a"},
		":v2": &types.AttributeValueMemberN{Value: "1"},
		":v3": &types.AttributeValueMemberN{Value: "2"},
		":v4": &types.AttributeValueMemberS{Value: "open"},
		":v5": &types.AttributeValueMemberN{Value: "5"},
	}, c.ExpressionAttributeValues)
}

func TestBuilderErrors(t *testing.T) {
	b := NewBuilder()

	err := b.SetSortCondition("ts", core.Between, 1)
	assert.True(t, errors.Is(err, customerrors.ErrInvalidOperator))

	err = b.AddFilterCondition("ts", core.Operator("CONTAINS"), 1)
	assert.True(t, errors.Is(err, customerrors.ErrInvalidOperator))

	err = b.AddFilterCondition("ts", core.EQ, make(chan int))
	assert.Error(t, err)

	c := b.Build()
	assert.Nil(t, c.ExpressionAttributeNames, "failed clauses must not allocate placeholders")
	assert.Nil(t, c.ExpressionAttributeValues)
}

func TestBuilderKeyConditionOrder(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.SetSortCondition("ts", core.GT, 100))
	require.NoError(t, b.SetPartitionCondition("id", "a"))

	c := b.Build()
	assert.Equal(t, "#n2 = :v2 AND #n1 > :v1", c.KeyConditionExpression)
	assert.Equal(t, map[string]string{"#n1": "ts", "#n2": "id"}, c.ExpressionAttributeNames)
}

func TestConvertToAttributeValue(t *testing.T) {
	av, err := ConvertToAttributeValue(100)
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "100"}, av)

	av, err = ConvertToAttributeValue("a")
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "a"}, av)

	raw := &types.AttributeValueMemberB{Value: []byte{1}}
	av, err = ConvertToAttributeValue(raw)
	require.NoError(t, err)
	assert.Same(t, raw, av)
}
