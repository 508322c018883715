package ingest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/popmap/internal/census"
)

// mockStore implements SnapshotStore for testing.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) SaveSnapshot(ctx context.Context, t *census.Table) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockStore) LatestSnapshot(ctx context.Context) (*census.Table, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*census.Table), args.Error(1)
}

// loaderFunc adapts a function to TableLoader.
type loaderFunc func(ctx context.Context) (*Result, error)

func (f loaderFunc) Load(ctx context.Context) (*Result, error) { return f(ctx) }
