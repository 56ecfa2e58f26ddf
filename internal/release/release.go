// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package release defines the release state shared between the steps of a
// release.
//
// The state is written by autopub to release_info.json inside the .autopub
// directory. It is the only channel between the job that runs check and the
// jobs that prepare, build and publish the release; it is never reconstructed
// from Git.
package release

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Dir is the directory, relative to the repository root, where autopub keeps
// its state.
const Dir = ".autopub"

// InfoFile is the name of the release state file inside [Dir].
const InfoFile = "release_info.json"

// InfoPath returns the path of the release state file under root.
func InfoPath(root string) string {
	return filepath.Join(root, Dir, InfoFile)
}

// Type is the magnitude of a version bump.
type Type string

// Release types.
const (
	Major = Type("major")
	Minor = Type("minor")
	Patch = Type("patch")
)

var types = []Type{Major, Minor, Patch}

// ErrNotExist is returned by [Load] when there is no release state.
var ErrNotExist = errors.New("release info does not exist")

// ErrInvalid is returned when the release state violates its invariants.
var ErrInvalid = errors.New("invalid release info")

// Info describes a pending release.
type Info struct {
	HasRelease bool `json:"has_release"`
	// Version is set by prepare.
	Version         string `json:"version,omitempty"`
	PreviousVersion string `json:"previous_version,omitempty"`
	ReleaseType     Type   `json:"release_type,omitempty"`
	ReleaseNotes    string `json:"release_notes,omitempty"`
}

// Validate checks the invariants of the release state.
func (i *Info) Validate() error {
	if !i.HasRelease {
		if i.Version != "" || i.ReleaseType != "" {
			return fmt.Errorf("%w: version and release_type must be empty without a release", ErrInvalid)
		}
		return nil
	}
	if i.ReleaseType != "" && !slices.Contains(types, i.ReleaseType) {
		return fmt.Errorf("%w: unknown release type %q", ErrInvalid, i.ReleaseType)
	}
	for _, v := range []string{i.Version, i.PreviousVersion} {
		if v == "" {
			continue
		}
		if !ValidVersion(v) {
			return fmt.Errorf("%w: %q is not a version", ErrInvalid, v)
		}
	}
	return nil
}

// Public PEP 440 version with optional epoch, pre, post, dev and local parts,
// e.g. 1!2.0, 1.0.0rc1, 1.0.post1, 0.1.0.dev0, 1.0+ubuntu.1.
var pep440Re = regexp.MustCompile(`(?i)^v?([0-9]+!)?[0-9]+(\.[0-9]+)*([-_.]?(a|b|c|rc|alpha|beta|pre|preview)[-_.]?[0-9]*)?([-_.]?(post|rev|r)[-_.]?[0-9]*)?([-_.]?dev[-_.]?[0-9]*)?(\+[a-z0-9]+([-_.][a-z0-9]+)*)?$`)

// ValidVersion reports whether v is a version autopub can write: a PEP 440
// version, as Python packages use, or a semantic version.
func ValidVersion(v string) bool {
	v = strings.TrimSpace(v)
	if pep440Re.MatchString(v) {
		return true
	}
	_, err := semver.StrictNewVersion(strings.TrimPrefix(v, "v"))
	return err == nil
}

// Load reads and validates the release state under root.
func Load(root string) (*Info, error) {
	b, err := os.ReadFile(InfoPath(root))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	info := new(Info)
	if err := json.Unmarshal(b, info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return info, nil
}

// Merge combines the state known before a command ran with the state it left
// behind. Fields set in current win; fields current leaves empty keep their
// prior value. A nil current keeps prior as is.
func Merge(prior, current *Info) *Info {
	switch {
	case prior == nil && current == nil:
		return &Info{}
	case current == nil:
		merged := *prior
		return &merged
	case prior == nil:
		merged := *current
		return &merged
	}

	merged := *current
	if !merged.HasRelease {
		// A command that found no release drops whatever was known.
		return &Info{}
	}
	if merged.Version == "" {
		merged.Version = prior.Version
	}
	if merged.PreviousVersion == "" {
		merged.PreviousVersion = prior.PreviousVersion
	}
	if merged.ReleaseType == "" {
		merged.ReleaseType = prior.ReleaseType
	}
	if merged.ReleaseNotes == "" {
		merged.ReleaseNotes = prior.ReleaseNotes
	}
	return &merged
}
