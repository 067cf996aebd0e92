package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"gocloud.dev/secrets/localsecrets"

	cryptoService "github.com/allisson/casevault/internal/crypto/service"
)

// RunCreateLocalMasterKey generates a master key for the localsecrets KMS
// driver and prints the matching KMS_* variables. The key is round-tripped
// through the keeper before printing. Local keys are for development only.
//
// Requirements: None. The key is generated locally and nothing is persisted.
func RunCreateLocalMasterKey(ctx context.Context, writer io.Writer, keyID string) error {
	if keyID == "" {
		keyID = fmt.Sprintf("local-master-key-%s", time.Now().UTC().Format("2006-01-02"))
	}

	secret, err := localsecrets.NewRandomKey()
	if err != nil {
		return fmt.Errorf("failed to generate master key: %w", err)
	}
	keyURI := "base64key://" + base64.URLEncoding.EncodeToString(secret[:])
	for i := range secret {
		secret[i] = 0
	}

	keeper, err := cryptoService.NewKMSService().OpenKeeper(ctx, keyURI)
	if err != nil {
		return err
	}
	defer func() { _ = keeper.Close() }()

	info, err := cryptoService.NewKeyWrapper(keeper, keyID, 0).DescribeKey(ctx)
	if err != nil {
		return fmt.Errorf("generated master key failed its health check: %w", err)
	}

	_, _ = fmt.Fprintln(writer, "# Local master key (localsecrets driver). Never use in production.")
	_, _ = fmt.Fprintln(writer, "# Copy these environment variables to your .env file.")
	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintln(writer, "KMS_ENABLED=\"true\"")
	_, _ = fmt.Fprintf(writer, "KMS_KEY_ID=\"%s\"\n", info.KeyID)
	_, _ = fmt.Fprintf(writer, "KMS_KEY_URI=\"%s\"\n", keyURI)

	return nil
}
