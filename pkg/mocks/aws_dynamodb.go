package mocks

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/mock"
)

// MockDynamoDBClient is a mock of interfaces.DynamoDBAPI.
//
// Example usage:
//
//	mockClient := new(mocks.MockDynamoDBClient)
//	mockClient.On("DescribeTable", mock.Anything, mock.Anything, mock.Anything).
//		Return(mocks.NewMockDescribeTableOutput("events", types.TableStatusActive), nil)
type MockDynamoDBClient struct {
	mock.Mock
}

func output[T any](args mock.Arguments, name string) (*T, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	out, ok := args.Get(0).(*T)
	if !ok {
		panic("unexpected type: expected *dynamodb." + name)
	}
	return out, args.Error(1)
}

// GetItem mocks the DynamoDB GetItem operation
func (m *MockDynamoDBClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return output[dynamodb.GetItemOutput](m.Called(ctx, params, optFns), "GetItemOutput")
}

// PutItem mocks the DynamoDB PutItem operation
func (m *MockDynamoDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return output[dynamodb.PutItemOutput](m.Called(ctx, params, optFns), "PutItemOutput")
}

// DeleteItem mocks the DynamoDB DeleteItem operation
func (m *MockDynamoDBClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return output[dynamodb.DeleteItemOutput](m.Called(ctx, params, optFns), "DeleteItemOutput")
}

// Query mocks the DynamoDB Query operation
func (m *MockDynamoDBClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return output[dynamodb.QueryOutput](m.Called(ctx, params, optFns), "QueryOutput")
}

// DescribeTable mocks the DynamoDB DescribeTable operation
func (m *MockDynamoDBClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return output[dynamodb.DescribeTableOutput](m.Called(ctx, params, optFns), "DescribeTableOutput")
}

// ListTables mocks the DynamoDB ListTables operation
func (m *MockDynamoDBClient) ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	return output[dynamodb.ListTablesOutput](m.Called(ctx, params, optFns), "ListTablesOutput")
}

// Helper functions for creating common mock responses

// NewMockGetItemOutput creates a GetItem response; a nil item means "not found"
func NewMockGetItemOutput(item map[string]types.AttributeValue) *dynamodb.GetItemOutput {
	return &dynamodb.GetItemOutput{Item: item}
}

// NewMockQueryOutput creates a one-page Query response
func NewMockQueryOutput(items []map[string]types.AttributeValue, lastKey map[string]types.AttributeValue) *dynamodb.QueryOutput {
	n := int32(len(items)) //nolint:gosec // test fixture sizes are small
	return &dynamodb.QueryOutput{
		Items:            items,
		LastEvaluatedKey: lastKey,
		Count:            n,
		ScannedCount:     n,
	}
}

// NewMockDescribeTableOutput creates a DescribeTable response
func NewMockDescribeTableOutput(tableName string, status types.TableStatus) *dynamodb.DescribeTableOutput {
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{
			TableName:   stringPtr(tableName),
			TableStatus: status,
		},
	}
}

// NewMockListTablesOutput creates a ListTables page; an empty next name ends pagination
func NewMockListTablesOutput(next string, names ...string) *dynamodb.ListTablesOutput {
	out := &dynamodb.ListTablesOutput{TableNames: names}
	if next != "" {
		out.LastEvaluatedTableName = stringPtr(next)
	}
	return out
}

func stringPtr(s string) *string {
	return &s
}
