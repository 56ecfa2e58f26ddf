// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Package artifact hands the .autopub directory from the job that runs check to
the jobs that prepare, build and publish the release.

Jobs of a workflow run on disjoint, short-lived file systems, so the state
autopub leaves behind is carried between them as a named artifact. The
[Bridge] enforces a single producer: only check uploads, and only when it found
a release. Every later command restores the artifact before it runs and never
uploads it back.

Per job, the bridge moves through these states:

	NotLoaded -> Loaded -> Done      (prepare, build, publish)
	NotLoaded -> Published -> Done   (check with a release)
	NotLoaded -> Done                (check without a release)
*/
package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"go.astrophena.name/autopub-action/internal/apperrors"
	"go.astrophena.name/autopub-action/internal/inputs"
	"go.astrophena.name/autopub-action/internal/release"

	"go.astrophena.name/base/logger"
)

// ErrNotFound is returned by a [Store] when the artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// Store transports artifacts between jobs. Uploads are all-or-nothing: a
// concurrent or later Download sees either the complete artifact or none.
type Store interface {
	Upload(ctx context.Context, name string, r io.Reader, size int64) error
	Download(ctx context.Context, name string) (io.ReadCloser, error)
}

// State is the state of a [Bridge].
type State int

// Bridge states.
const (
	NotLoaded State = iota
	Loaded
	Published
	Done
)

func (s State) String() string {
	switch s {
	case NotLoaded:
		return "not loaded"
	case Loaded:
		return "loaded"
	case Published:
		return "published"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Bridge moves the .autopub directory of one repository through a [Store].
type Bridge struct {
	// Store transports the artifact.
	Store Store
	// Root is the repository root that contains the .autopub directory.
	Root string
	// Name is the artifact name.
	Name string

	state State
	size  int
}

// State returns the current state.
func (b *Bridge) State() State { return b.state }

// Size returns the size in bytes of the artifact moved last.
func (b *Bridge) Size() int { return b.size }

// Restore makes the state left by check available to cmd and returns it.
//
// With download set, the artifact replaces the .autopub directory; restoring
// the same artifact again yields identical contents. Without it, the
// directory must already be there, for example because check ran earlier in
// the same job. Either way, missing state is an artifact not found error:
// cmd never runs on empty state.
func (b *Bridge) Restore(ctx context.Context, cmd inputs.Command, download bool) (*release.Info, error) {
	if !cmd.NeedsPriorState() {
		return nil, fmt.Errorf("%s doesn't consume a restored artifact", cmd)
	}
	if b.state != NotLoaded && b.state != Loaded {
		return nil, fmt.Errorf("can't restore artifact %q: bridge is %s", b.Name, b.state)
	}

	if download {
		if err := b.download(ctx); err != nil {
			return nil, err
		}
	}

	info, err := release.Load(b.Root)
	if errors.Is(err, release.ErrNotExist) {
		return nil, apperrors.ArtifactNotFound(b.Name, fmt.Errorf("%s is missing", filepath.Join(release.Dir, release.InfoFile)))
	}
	if err != nil {
		return nil, apperrors.CommandFailed("loading restored release info", "", err)
	}
	b.state = Loaded
	return info, nil
}

func (b *Bridge) download(ctx context.Context) error {
	rc, err := b.Store.Download(ctx, b.Name)
	if errors.Is(err, ErrNotFound) {
		return apperrors.ArtifactNotFound(b.Name, err)
	}
	if err != nil {
		return fmt.Errorf("downloading artifact %q: %w", b.Name, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("downloading artifact %q: %w", b.Name, err)
	}

	// Extract next to the destination and swap, so that a failed extraction
	// leaves the previous contents alone.
	if err := os.MkdirAll(b.Root, 0o755); err != nil {
		return err
	}
	tmp, err := os.MkdirTemp(b.Root, ".autopub-restore-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)
	if err := Unpack(data, tmp); err != nil {
		return fmt.Errorf("artifact %q: %w", b.Name, err)
	}
	dst := filepath.Join(b.Root, release.Dir)
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return err
	}

	b.size = len(data)
	logger.Info(ctx, "restored artifact", slog.String("name", b.Name), slog.Int("size", len(data)))
	return nil
}

// Publish uploads the .autopub directory after check. It reports whether an
// artifact was uploaded: nothing is uploaded when info has no release or
// upload is false. Commands other than check never upload.
func (b *Bridge) Publish(ctx context.Context, cmd inputs.Command, upload bool, info *release.Info) (bool, error) {
	if cmd != inputs.Check {
		return false, fmt.Errorf("artifact %q is only uploaded by check, not %s", b.Name, cmd)
	}
	if b.state != NotLoaded {
		return false, fmt.Errorf("can't publish artifact %q: bridge is %s", b.Name, b.state)
	}
	if info == nil || !info.HasRelease {
		logger.Info(ctx, "no release, skipping artifact upload", slog.String("name", b.Name))
		return false, nil
	}
	if !upload {
		logger.Info(ctx, "artifact upload disabled", slog.String("name", b.Name))
		return false, nil
	}

	data, err := Pack(filepath.Join(b.Root, release.Dir))
	if err != nil {
		return false, fmt.Errorf("packing %s: %w", release.Dir, err)
	}
	if err := b.Store.Upload(ctx, b.Name, bytes.NewReader(data), int64(len(data))); err != nil {
		return false, fmt.Errorf("uploading artifact %q: %w", b.Name, err)
	}
	b.state = Published
	b.size = len(data)
	logger.Info(ctx, "uploaded artifact", slog.String("name", b.Name), slog.Int("size", len(data)))
	return true, nil
}

// Finish marks the bridge as done. Nothing can be restored or published
// afterwards.
func (b *Bridge) Finish() { b.state = Done }
