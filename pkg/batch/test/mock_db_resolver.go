package test

import (
	"context"

	"github.com/stretchr/testify/mock"

	dbadapter "github.com/tigerroll/customer-import/pkg/batch/adapter/database"
	coreadapter "github.com/tigerroll/customer-import/pkg/batch/core/adapter"
)

// MockDBConnectionResolver is a testify mock of database.DBConnectionResolver.
type MockDBConnectionResolver struct {
	mock.Mock
}

func (m *MockDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (dbadapter.DBConnection, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(dbadapter.DBConnection), args.Error(1)
}

func (m *MockDBConnectionResolver) ResolveConnection(ctx context.Context, name string) (coreadapter.ResourceConnection, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(coreadapter.ResourceConnection), args.Error(1)
}

// testSingleConnectionResolver returns the same connection for every name.
type testSingleConnectionResolver struct {
	conn dbadapter.DBConnection
}

func (r *testSingleConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (dbadapter.DBConnection, error) {
	return r.conn, nil
}

func (r *testSingleConnectionResolver) ResolveConnection(ctx context.Context, name string) (coreadapter.ResourceConnection, error) {
	return r.conn, nil
}

// NewTestSingleConnectionResolver returns a resolver that always yields conn, whatever name is asked for.
func NewTestSingleConnectionResolver(conn dbadapter.DBConnection) dbadapter.DBConnectionResolver {
	return &testSingleConnectionResolver{conn: conn}
}

var _ dbadapter.DBConnectionResolver = (*testSingleConnectionResolver)(nil)
var _ dbadapter.DBConnectionResolver = (*MockDBConnectionResolver)(nil)
