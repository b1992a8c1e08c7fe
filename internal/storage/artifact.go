package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yoockh/yoscribe/internal/utils"
)

const artifactPrefix = "audio-"

// Artifact is a transient file owned by a single request.
type Artifact struct {
	Path string
}

// ArtifactStore writes artifacts under one directory. Names are unique per
// acquisition, so no cross-request locking is needed.
type ArtifactStore struct {
	dir string
}

func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("artifact dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &ArtifactStore{dir: abs}, nil
}

func (s *ArtifactStore) Dir() string { return s.dir }

func (s *ArtifactStore) Acquire(ctx context.Context, r io.Reader, suffix string) (*Artifact, error) {
	const op = "ArtifactStore.Acquire"

	if err := ctx.Err(); err != nil {
		return nil, utils.E(utils.CodeStorageFault, op, "request cancelled before audio was stored", err)
	}
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}

	path := filepath.Join(s.dir, artifactPrefix+uuid.NewString()+suffix)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, utils.E(utils.CodeStorageFault, op, "failed to create audio file: "+err.Error(), err)
	}

	a := &Artifact{Path: path}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = s.Release(a)
		return nil, utils.E(utils.CodeStorageFault, op, "failed to write audio file: "+err.Error(), err)
	}
	if err := f.Close(); err != nil {
		_ = s.Release(a)
		return nil, utils.E(utils.CodeStorageFault, op, "failed to write audio file: "+err.Error(), err)
	}
	return a, nil
}

// WriteDerived stores content next to a, at a.Path+suffix.
func (s *ArtifactStore) WriteDerived(a *Artifact, suffix string, content []byte) (*Artifact, error) {
	const op = "ArtifactStore.WriteDerived"

	if a == nil || a.Path == "" {
		return nil, utils.E(utils.CodeStorageFault, op, "missing source artifact", nil)
	}
	d := &Artifact{Path: a.Path + suffix}
	if err := os.WriteFile(d.Path, content, 0o600); err != nil {
		_ = s.Release(d)
		return nil, utils.E(utils.CodeStorageFault, op, "failed to write derived file: "+err.Error(), err)
	}
	return d, nil
}

func (s *ArtifactStore) ReadAll(a *Artifact) ([]byte, error) {
	const op = "ArtifactStore.ReadAll"

	if a == nil {
		return nil, utils.E(utils.CodeStorageFault, op, "missing artifact", nil)
	}
	b, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, utils.E(utils.CodeStorageFault, op, "failed to read artifact: "+err.Error(), err)
	}
	return b, nil
}

// Release removes the artifact. It is safe to call more than once.
func (s *ArtifactStore) Release(a *Artifact) error {
	if a == nil || a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return utils.E(utils.CodeStorageFault, "ArtifactStore.Release", "failed to remove artifact: "+err.Error(), err)
	}
	return nil
}

// Sweep removes artifacts last modified before cutoff. Only files this store
// names are touched, so a shared temp dir is safe. It returns how many were
// removed.
func (s *ArtifactStore) Sweep(cutoff time.Time) (int, error) {
	const op = "ArtifactStore.Sweep"

	matches, err := filepath.Glob(filepath.Join(s.dir, artifactPrefix+"*"))
	if err != nil {
		return 0, utils.E(utils.CodeStorageFault, op, "failed to list artifacts: "+err.Error(), err)
	}

	removed := 0
	var errs []error
	for _, m := range matches {
		fi, err := os.Lstat(m)
		if err != nil || !fi.Mode().IsRegular() || !fi.ModTime().Before(cutoff) {
			continue
		}
		if err := s.Release(&Artifact{Path: m}); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, utils.E(utils.CodeStorageFault, op, "failed to remove some artifacts", errors.Join(errs...))
	}
	return removed, nil
}

var _ Artifacts = (*ArtifactStore)(nil)
