package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/casevault/internal/metrics"
	migrationDomain "github.com/allisson/casevault/internal/migration/domain"
)

// mockBusinessMetrics is a mock implementation of metrics.BusinessMetrics for testing.
type mockBusinessMetrics struct {
	mock.Mock
}

func (m *mockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *mockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}

func (m *mockBusinessMetrics) RecordRecords(ctx context.Context, collection, outcome string, count int) {
	m.Called(ctx, collection, outcome, count)
}

func (m *mockBusinessMetrics) RecordIntegrityViolation(ctx context.Context, kind string) {
	m.Called(ctx, kind)
}

var _ metrics.BusinessMetrics = (*mockBusinessMetrics)(nil)

// mockMigrationUseCase is a mock implementation of MigrationUseCase for testing.
type mockMigrationUseCase struct {
	mock.Mock
}

func (m *mockMigrationUseCase) result(args mock.Arguments) (*migrationDomain.Result, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*migrationDomain.Result), args.Error(1)
}

func (m *mockMigrationUseCase) Run(
	ctx context.Context,
	tenantID string,
	oldVersion, newVersion uint,
) (*migrationDomain.Result, error) {
	return m.result(m.Called(ctx, tenantID, oldVersion, newVersion))
}

func (m *mockMigrationUseCase) RunInitialEncryption(
	ctx context.Context,
	tenantID string,
) (*migrationDomain.Result, error) {
	return m.result(m.Called(ctx, tenantID))
}

func expectMetrics(m *mockBusinessMetrics, operation, status string) {
	m.On("RecordOperation", mock.Anything, "migration", operation, status).Once()
	m.On("RecordDuration", mock.Anything, "migration", operation, mock.AnythingOfType("time.Duration"), status).Once()
}

func expectRecords(m *mockBusinessMetrics, collection string, succeeded, failed, skipped int) {
	m.On("RecordRecords", mock.Anything, collection, "succeeded", succeeded).Once()
	m.On("RecordRecords", mock.Anything, collection, "failed", failed).Once()
	m.On("RecordRecords", mock.Anything, collection, "skipped", skipped).Once()
}

func TestMigrationMetricsDecorator(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_Run", func(t *testing.T) {
		next := &mockMigrationUseCase{}
		m := &mockBusinessMetrics{}
		result := &migrationDomain.Result{Collections: []migrationDomain.CollectionResult{
			{Collection: "cases", Succeeded: 3, Skipped: 2},
		}}
		next.On("Run", ctx, "tenant-a", uint(1), uint(2)).Return(result, nil).Once()
		expectMetrics(m, "migration_run", "success")
		expectRecords(m, "cases", 3, 0, 2)

		got, err := NewMigrationUseCaseWithMetrics(next, m).Run(ctx, "tenant-a", 1, 2)
		assert.NoError(t, err)
		assert.Equal(t, result, got)
		m.AssertExpectations(t)
	})

	t.Run("Success_RunPartial", func(t *testing.T) {
		next := &mockMigrationUseCase{}
		m := &mockBusinessMetrics{}
		result := &migrationDomain.Result{Collections: []migrationDomain.CollectionResult{
			{Collection: "cases", Succeeded: 3, Failed: 1},
			{Collection: "notes", Succeeded: 1},
		}}
		next.On("Run", ctx, "tenant-a", uint(1), uint(2)).Return(result, nil).Once()
		expectMetrics(m, "migration_run", "partial")
		expectRecords(m, "cases", 3, 1, 0)
		expectRecords(m, "notes", 1, 0, 0)

		_, err := NewMigrationUseCaseWithMetrics(next, m).Run(ctx, "tenant-a", 1, 2)
		assert.NoError(t, err)
		m.AssertExpectations(t)
	})

	t.Run("Error_RunInitialEncryption", func(t *testing.T) {
		next := &mockMigrationUseCase{}
		m := &mockBusinessMetrics{}
		next.On("RunInitialEncryption", ctx, "tenant-a").Return(nil, errors.New("kms down")).Once()
		expectMetrics(m, "migration_initial_encryption", "error")

		_, err := NewMigrationUseCaseWithMetrics(next, m).RunInitialEncryption(ctx, "tenant-a")
		assert.Error(t, err)
		m.AssertExpectations(t)
	})
}
