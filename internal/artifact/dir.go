// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DirStore keeps artifacts as zip files in a local directory. It serves runs
// outside of GitHub Actions, such as act or a developer machine, where jobs
// share a file system.
type DirStore struct {
	Root string
}

func (s *DirStore) path(name string) (string, error) {
	file := name + ".zip"
	if !filepath.IsLocal(file) || filepath.Base(file) != file {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return filepath.Join(s.Root, file), nil
}

// Upload implements [Store]. The artifact replaces an existing one of the
// same name atomically.
func (s *DirStore) Upload(ctx context.Context, name string, r io.Reader, size int64) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.Root, name+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if n != size {
		return fmt.Errorf("artifact %q: wrote %d bytes, want %d", name, n, size)
	}
	return os.Rename(tmp.Name(), path)
}

// Download implements [Store].
func (s *DirStore) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return f, err
}
