package commands

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	auditUseCase "github.com/allisson/casevault/internal/audit/usecase"
	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
	migrationDomain "github.com/allisson/casevault/internal/migration/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockKeyRotator struct {
	mock.Mock
}

func (m *mockKeyRotator) RotateKey(ctx context.Context, tenantID string) (*cryptoDomain.RotationResult, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.RotationResult), args.Error(1)
}

type mockTenantVerifier struct {
	mock.Mock
}

func (m *mockTenantVerifier) VerifyTenant(
	ctx context.Context,
	tenantID string,
	rng auditDomain.Range,
) (*auditUseCase.TenantVerification, error) {
	args := m.Called(ctx, tenantID, rng)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auditUseCase.TenantVerification), args.Error(1)
}

type mockMigrationUseCase struct {
	mock.Mock
}

func (m *mockMigrationUseCase) Run(
	ctx context.Context,
	tenantID string,
	oldVersion, newVersion uint,
) (*migrationDomain.Result, error) {
	args := m.Called(ctx, tenantID, oldVersion, newVersion)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*migrationDomain.Result), args.Error(1)
}

func (m *mockMigrationUseCase) RunInitialEncryption(ctx context.Context, tenantID string) (*migrationDomain.Result, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*migrationDomain.Result), args.Error(1)
}

type mockSweeper struct {
	mock.Mock
}

func (m *mockSweeper) RunOnce(ctx context.Context) (*auditDomain.SweepResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auditDomain.SweepResult), args.Error(1)
}

type mockLedgerPurger struct {
	mock.Mock
}

func (m *mockLedgerPurger) Tenants(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockLedgerPurger) PurgeExpired(
	ctx context.Context,
	tenantID string,
	retention time.Duration,
) (*auditDomain.PurgeResult, error) {
	args := m.Called(ctx, tenantID, retention)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auditDomain.PurgeResult), args.Error(1)
}
