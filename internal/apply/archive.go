package apply

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// zstd frame magic, used to tell compressed archives from plain ones.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// ArchivePatch persists failing patch text to a recoverable location,
// zstd-compressed, and returns the archive path.
func ArchivePatch(dir, patchText string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating archive dir: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return "", fmt.Errorf("creating encoder: %w", err)
	}
	defer enc.Close()

	name := fmt.Sprintf("failed-%s-%s.patch.zst",
		time.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8])
	path := filepath.Join(dir, name)

	compressed := enc.EncodeAll([]byte(patchText), nil)
	if err := os.WriteFile(path, compressed, 0o644); err != nil {
		return "", fmt.Errorf("writing archive: %w", err)
	}
	return path, nil
}

// ReadArchive restores archived patch text, decompressing when the file
// carries the zstd magic and passing plain text through unchanged.
func ReadArchive(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	if len(content) > 4 && bytes.Equal(content[:4], zstdMagic) {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return "", fmt.Errorf("creating decoder: %w", err)
		}
		defer dec.Close()

		plain, err := dec.DecodeAll(content, nil)
		if err != nil {
			return "", fmt.Errorf("decompressing archive: %w", err)
		}
		return string(plain), nil
	}

	return string(content), nil
}
