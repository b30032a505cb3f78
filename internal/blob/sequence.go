package blob

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // checksum matches the fasta_md5 convention, not a security boundary
	"encoding/hex"
	"fmt"
	"io"
)

// FastaContentType is the content type recorded for sequence payloads.
const FastaContentType = "text/x-fasta"

// SequenceKey returns the blob key holding an isolate's assembly.
func SequenceKey(isolateID string) string {
	return "sequences/" + isolateID + ".fasta"
}

// PutSequence stores raw FASTA text for an isolate and returns the blob info
// together with the hex MD5 of the payload.
func PutSequence(ctx context.Context, store Store, isolateID, fasta string) (Info, string, error) {
	sum := md5.Sum([]byte(fasta)) //nolint:gosec
	digest := hex.EncodeToString(sum[:])
	info, err := store.Put(ctx, SequenceKey(isolateID), bytes.NewReader([]byte(fasta)), PutOptions{
		ContentType: FastaContentType,
		Metadata:    map[string]string{"isolate_id": isolateID, "md5": digest},
	})
	if err != nil {
		return Info{}, "", fmt.Errorf("store sequence %s: %w", isolateID, err)
	}
	return info, digest, nil
}

// ReadText loads a blob fully into a string.
func ReadText(ctx context.Context, store Store, key string) (string, error) {
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read blob %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read blob %s: %w", key, err)
	}
	return string(data), nil
}
