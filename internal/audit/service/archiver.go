package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"gocloud.dev/blob"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	apperrors "github.com/allisson/casevault/internal/errors"

	// Register the blob drivers that need no extra SDK.
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

// ArchiveContentType is the content type of archive objects.
const ArchiveContentType = "application/zstd"

// BlobArchiver writes entries as zstd-compressed JSON lines to a gocloud bucket.
//
// Each purge batch becomes one immutable object keyed by tenant and sequence
// range. Objects are never overwritten by a later purge because the anchor
// advances past every archived sequence.
type BlobArchiver struct {
	bucket *blob.Bucket
}

// OpenBlobArchiver opens the bucket at url (mem://, file:///path, ...).
func OpenBlobArchiver(ctx context.Context, url string) (*BlobArchiver, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit archive bucket: %w", err)
	}
	return NewBlobArchiver(bucket), nil
}

// NewBlobArchiver creates a BlobArchiver over an opened bucket.
func NewBlobArchiver(bucket *blob.Bucket) *BlobArchiver {
	return &BlobArchiver{bucket: bucket}
}

// Archive writes entries to <tenant>/<first>-<last>.jsonl.zst. Entries must be
// in sequence order.
//
// Parameters:
//   - ctx: Carries cancellation for the bucket write
//   - tenantID: The ledger the entries belong to
//   - entries: A non-empty batch in ascending sequence order
//
// Returns:
//   - The object key written
//   - ErrInvalidRange for an empty batch
//   - An error when the object cannot be written; nothing is visible then
func (a *BlobArchiver) Archive(
	ctx context.Context,
	tenantID string,
	entries []*auditDomain.Entry,
) (string, error) {
	if len(entries) == 0 {
		return "", auditDomain.ErrInvalidRange
	}
	key := ArchiveKey(tenantID, entries[0].Sequence, entries[len(entries)-1].Sequence)

	w, err := a.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: ArchiveContentType})
	if err != nil {
		return "", apperrors.Wrap(err, "failed to open archive writer")
	}

	if err := writeEntries(w, entries); err != nil {
		_ = w.Close()
		return "", err
	}
	// The object only becomes visible once Close succeeds.
	if err := w.Close(); err != nil {
		return "", apperrors.Wrap(err, "failed to write archive")
	}
	return key, nil
}

// writeEntries streams entries through a zstd encoder as one JSON document
// per line.
func writeEntries(w io.Writer, entries []*auditDomain.Entry) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return apperrors.Wrap(err, "failed to create zstd writer")
	}
	enc := json.NewEncoder(zw)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			_ = zw.Close()
			return apperrors.Wrap(err, "failed to encode archived entry")
		}
	}
	if err := zw.Close(); err != nil {
		return apperrors.Wrap(err, "failed to flush archive")
	}
	return nil
}

// ReadArchive decodes an archive object written by Archive. Entries come back
// in the order they were archived, with their stored hashes, so a restored
// batch can be verified with the ledger hasher.
func (a *BlobArchiver) ReadArchive(ctx context.Context, key string) ([]*auditDomain.Entry, error) {
	r, err := a.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to open archive reader")
	}
	defer func() {
		_ = r.Close()
	}()

	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create zstd reader")
	}
	defer zr.Close()

	var entries []*auditDomain.Entry
	dec := json.NewDecoder(zr)
	for dec.More() {
		var e auditDomain.Entry
		if err := dec.Decode(&e); err != nil {
			return nil, apperrors.Wrap(err, "failed to decode archived entry")
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

// Close releases the bucket.
func (a *BlobArchiver) Close() error {
	return a.bucket.Close()
}

// ArchiveKey returns the object key for a sequence range of a tenant ledger.
func ArchiveKey(tenantID string, first, last uint64) string {
	return fmt.Sprintf("%s/%020d-%020d.jsonl.zst", tenantID, first, last)
}
