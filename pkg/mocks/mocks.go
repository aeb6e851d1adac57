// Package mocks provides testify mocks for the DynamoDB client and Table Operations.
//
// # Basic Usage
//
// Mock the compiled-query boundary when testing code that builds queries:
//
//	ops := new(mocks.MockTableOperations)
//	ops.On("Query", mock.Anything, mock.Anything).Return(&core.QueryResult{}, nil)
//
//	page, err := query.New(s, ops).Where("id", "a").All(ctx, &items)
//
// # AWS SDK Level Mocking
//
// Mock the SDK client when testing Table Operations or the record layer:
//
//	client := new(mocks.MockDynamoDBClient)
//	client.On("GetItem", mock.Anything, mock.Anything, mock.Anything).
//		Return(mocks.NewMockGetItemOutput(item), nil)
//
// SDK methods are variadic, so expectations carry a third argument for the
// option functions; mock.Anything is the usual choice.
package mocks

// Helper type aliases for convenience
type (
	// DynamoDBClient is an alias for MockDynamoDBClient
	DynamoDBClient = MockDynamoDBClient

	// TableOperations is an alias for MockTableOperations
	TableOperations = MockTableOperations
)
