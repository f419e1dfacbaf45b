package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local stores files on disk as <root>/<event>/table-<n>/<ulid>-<name>.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage directory: %w", err)
	}
	return &Local{root: root}, nil
}

func (l *Local) Put(ctx context.Context, o Object) (string, error) {
	rel := filepath.Join(SafeName(o.EventCode), tableFolder(o.TableNumber), objectName(o))
	full := filepath.Join(l.root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	_, err = io.Copy(f, contextReader{ctx: ctx, r: o.Body})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(full)
		return "", fmt.Errorf("write file: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

// contextReader stops a copy once the request is gone.
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
