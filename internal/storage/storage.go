package storage

import (
	"context"
	"io"
)

// Uploader pushes an object to durable remote storage.
type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}

// Artifacts manages transient per-request files.
type Artifacts interface {
	Acquire(ctx context.Context, r io.Reader, suffix string) (*Artifact, error)
	WriteDerived(a *Artifact, suffix string, content []byte) (*Artifact, error)
	ReadAll(a *Artifact) ([]byte, error)
	Release(a *Artifact) error
}
