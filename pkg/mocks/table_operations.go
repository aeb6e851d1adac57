package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/theory-cloud/tablerecord/pkg/core"
)

// MockTableOperations is a mock of core.TableOperations
type MockTableOperations struct {
	mock.Mock
}

// Query mocks executing a compiled request
func (m *MockTableOperations) Query(ctx context.Context, input *core.CompiledQuery) (*core.QueryResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	result, ok := args.Get(0).(*core.QueryResult)
	if !ok {
		panic("unexpected type: expected *core.QueryResult")
	}
	return result, args.Error(1)
}

var _ core.TableOperations = (*MockTableOperations)(nil)
