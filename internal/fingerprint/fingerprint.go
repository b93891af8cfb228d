// Package fingerprint computes the cheap and full content hashes used to
// group candidate duplicates and confirm exact matches.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"shellac/internal/services"
)

// Fingerprinter hashes file content. Cheap reads a bounded prefix and mixes
// in the file size so same-size files with different openings separate
// without a full read; Full hashes every byte and is the only basis for
// declaring two files identical.
type Fingerprinter struct {
	windowBytes int64
}

// New returns a Fingerprinter whose cheap hash covers the given KiB window.
func New(windowKiB int) *Fingerprinter {
	if windowKiB <= 0 {
		windowKiB = 512
	}
	return &Fingerprinter{windowBytes: int64(windowKiB) * 1024}
}

// Cheap returns the bounded-prefix fingerprint for a file. Files shorter than
// the window hash their entire content; the size suffix keeps prefix
// collisions between different-length files apart.
func (f *Fingerprinter) Cheap(ctx context.Context, path string) (string, error) {
	file, size, err := openForHash(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, io.LimitReader(contextReader{ctx: ctx, r: file}, f.windowBytes)); err != nil {
		return "", services.Wrap(services.ErrIO, "fingerprint", "cheap", fmt.Sprintf("read %s", path), err)
	}
	fmt.Fprintf(hasher, ":%d", size)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Full returns the hash of the entire file content.
func (f *Fingerprinter) Full(ctx context.Context, path string) (string, error) {
	file, _, err := openForHash(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, contextReader{ctx: ctx, r: file}); err != nil {
		return "", services.Wrap(services.ErrIO, "fingerprint", "full", fmt.Sprintf("read %s", path), err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func openForHash(path string) (*os.File, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		marker := services.ErrIO
		if os.IsNotExist(err) {
			marker = services.ErrNotFound
		} else if os.IsPermission(err) {
			marker = services.ErrPermission
		}
		return nil, 0, services.Wrap(marker, "fingerprint", "open", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, 0, services.Wrap(services.ErrIO, "fingerprint", "stat", path, err)
	}
	return file, info.Size(), nil
}

// contextReader aborts long reads when the context is canceled. Checked per
// read call, not per byte.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
