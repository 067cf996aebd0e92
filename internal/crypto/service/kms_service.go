package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gocloud.dev/gcerrors"
	"gocloud.dev/secrets"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
	apperrors "github.com/allisson/casevault/internal/errors"

	// Register all KMS provider drivers
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// KMSService opens keepers for the configured KMS provider.
//
// Providers are selected by URI scheme through gocloud.dev/secrets:
//   - gcpkms://projects/<p>/locations/<l>/keyRings/<r>/cryptoKeys/<k>
//   - awskms://<key-id-or-alias>?region=<region>
//   - azurekeyvault://<vault>.vault.azure.net/keys/<key>
//   - hashivault://<transit-key>
//   - base64key://<base64 32-byte key> for local development and tests
type KMSService interface {
	// OpenKeeper opens a secrets.Keeper for the given URI.
	// Supports: gcpkms://, awskms://, azurekeyvault://, hashivault://, base64key://
	OpenKeeper(ctx context.Context, keyURI string) (cryptoDomain.KMSKeeper, error)
}

type kmsService struct{}

// NewKMSService creates a new KMS service instance.
func NewKMSService() KMSService {
	return &kmsService{}
}

func (k *kmsService) OpenKeeper(ctx context.Context, keyURI string) (cryptoDomain.KMSKeeper, error) {
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	return keeper, nil
}

// describeSample is round-tripped through the KMS to check the master key.
var describeSample = []byte("casevault-kms-check")

// keeperWrapper implements KeyWrapper over a KMSKeeper.
//
// Every call goes through do: transient failures are retried with
// exponential backoff bounded by maxElapsed, and the final error is mapped
// onto the crypto domain taxonomy by classifyKMSError.
type keeperWrapper struct {
	keeper     cryptoDomain.KMSKeeper
	keyID      string
	maxElapsed time.Duration
}

// NewKeyWrapper creates a KeyWrapper backed by keeper. A maxElapsed of zero
// disables retries.
func NewKeyWrapper(keeper cryptoDomain.KMSKeeper, keyID string, maxElapsed time.Duration) KeyWrapper {
	return &keeperWrapper{keeper: keeper, keyID: keyID, maxElapsed: maxElapsed}
}

// KeyID returns the master key identifier stored on new TenantKey rows.
func (w *keeperWrapper) KeyID() string {
	return w.keyID
}

// WrapKey encrypts a DEK under the master key.
//
// Returns:
//   - The provider's wrapped form of dek
//   - ErrInvalidKeySize unless dek is exactly KeySize bytes
//   - ErrKMSKeyDisabled, ErrKMSUnavailable or a permanent provider error
func (w *keeperWrapper) WrapKey(ctx context.Context, dek []byte) ([]byte, error) {
	if len(dek) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}
	return w.do(ctx, func() ([]byte, error) {
		return w.keeper.Encrypt(ctx, dek)
	})
}

// UnwrapKey decrypts a wrapped DEK. A result that is not KeySize bytes is
// wiped and rejected with ErrInvalidKeySize.
func (w *keeperWrapper) UnwrapKey(ctx context.Context, wrapped []byte) ([]byte, error) {
	dek, err := w.do(ctx, func() ([]byte, error) {
		return w.keeper.Decrypt(ctx, wrapped)
	})
	if err != nil {
		return nil, err
	}
	if len(dek) != cryptoDomain.KeySize {
		cryptoDomain.Zero(dek)
		return nil, cryptoDomain.ErrInvalidKeySize
	}
	return dek, nil
}

// DescribeKey round-trips a fixed sample through the KMS.
//
// A disabled, missing or denied master key is reported as Enabled=false with
// a nil error so health checks can render it. Transient failures are
// returned as errors.
func (w *keeperWrapper) DescribeKey(ctx context.Context) (cryptoDomain.KMSKeyInfo, error) {
	info := cryptoDomain.KMSKeyInfo{KeyID: w.keyID}

	wrapped, err := w.do(ctx, func() ([]byte, error) {
		return w.keeper.Encrypt(ctx, describeSample)
	})
	if err == nil {
		_, err = w.do(ctx, func() ([]byte, error) {
			return w.keeper.Decrypt(ctx, wrapped)
		})
	}

	switch {
	case err == nil:
		info.Enabled = true
		return info, nil
	case errors.Is(err, cryptoDomain.ErrKMSKeyDisabled):
		return info, nil
	default:
		return info, err
	}
}

// do runs op under the retry policy. A context that ends during backoff is
// reported as ErrKMSUnavailable wrapping the context error.
func (w *keeperWrapper) do(ctx context.Context, op func() ([]byte, error)) ([]byte, error) {
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if w.maxElapsed > 0 {
		policy = backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(50*time.Millisecond),
			backoff.WithMaxInterval(2*time.Second),
			backoff.WithMaxElapsedTime(w.maxElapsed),
		)
	}

	out, err := backoff.RetryWithData(func() ([]byte, error) {
		out, err := op()
		if err == nil {
			return out, nil
		}
		classified := classifyKMSError(ctx, err)
		if !apperrors.Retryable(classified) {
			return nil, backoff.Permanent(classified)
		}
		return nil, classified
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, fmt.Errorf("%w: %w", cryptoDomain.ErrKMSUnavailable, ctxErr)
		}
		return nil, err
	}
	return out, nil
}

// classifyKMSError maps provider errors onto the crypto domain taxonomy.
//
// Only failures that can clear on their own are retryable: provider
// throttling, internal errors, timeouts, and transport errors that the
// driver could not map to a code. Anything else reported as Unknown, such as
// the local keeper failing to authenticate a corrupted wrapped key, is
// permanent.
//
// Parameters:
//   - ctx: The context of the failed call; a canceled context wins over err
//   - err: The error returned by the keeper
//
// Returns:
//   - ErrKMSKeyDisabled when the master key is disabled, missing or denied
//   - ErrKMSUnavailable when the failure is transient
//   - A non-retryable error for every other failure
func classifyKMSError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, cryptoDomain.ErrKMSKeyDisabled) || errors.Is(err, cryptoDomain.ErrKMSUnavailable) {
		return err
	}

	switch gcerrors.Code(err) {
	case gcerrors.PermissionDenied, gcerrors.FailedPrecondition, gcerrors.NotFound:
		return fmt.Errorf("%w: %w", cryptoDomain.ErrKMSKeyDisabled, err)
	case gcerrors.Internal, gcerrors.ResourceExhausted, gcerrors.DeadlineExceeded:
		return fmt.Errorf("%w: %w", cryptoDomain.ErrKMSUnavailable, err)
	case gcerrors.Unknown:
		if isTransportError(err) {
			return fmt.Errorf("%w: %w", cryptoDomain.ErrKMSUnavailable, err)
		}
		return fmt.Errorf("kms rejected request: %w", err)
	default:
		return fmt.Errorf("kms rejected request: %w", err)
	}
}

// isTransportError reports whether err came from the network path to the
// KMS rather than from the KMS itself.
func isTransportError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.Aborted:
		return true
	default:
		return false
	}
}

// disabledWrapper fails every call. Used when the KMS integration is switched
// off so key management fails closed.
type disabledWrapper struct {
	keyID string
}

// NewDisabledKeyWrapper returns a KeyWrapper that always fails with
// ErrKeyManagementDisabled.
func NewDisabledKeyWrapper(keyID string) KeyWrapper {
	return disabledWrapper{keyID: keyID}
}

func (d disabledWrapper) KeyID() string { return d.keyID }

func (d disabledWrapper) WrapKey(context.Context, []byte) ([]byte, error) {
	return nil, cryptoDomain.ErrKeyManagementDisabled
}

func (d disabledWrapper) UnwrapKey(context.Context, []byte) ([]byte, error) {
	return nil, cryptoDomain.ErrKeyManagementDisabled
}

func (d disabledWrapper) DescribeKey(context.Context) (cryptoDomain.KMSKeyInfo, error) {
	return cryptoDomain.KMSKeyInfo{KeyID: d.keyID}, cryptoDomain.ErrKeyManagementDisabled
}
