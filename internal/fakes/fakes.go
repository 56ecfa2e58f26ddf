// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package fakes provides stand-ins for the Python interpreter and autopub,
// for use in tests.
package fakes

import (
	_ "embed"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

//go:embed python.sh
var python []byte

//go:embed autopub.sh
var autopub []byte

// Python writes a fake Python interpreter into dir and returns its path.
//
// The fake creates virtualenvs and "installs" autopub by copying the file
// named by $FAKE_AUTOPUB into the virtualenv. Requirements pinned to 0.0.0
// fail to resolve. Invocations are logged to $FAKE_PYTHON_LOG.
func Python(t *testing.T, dir string) string {
	return write(t, dir, "python3", python)
}

// Autopub writes a fake autopub into dir and returns its path.
//
// Check reads the release type from RELEASE.md, prepare picks a version, build
// and publish only print. Setting $FAKE_AUTOPUB_EXIT makes every command
// fail with that exit code; $FAKE_AUTOPUB_ENV receives the environment.
func Autopub(t *testing.T, dir string) string {
	return write(t, dir, "autopub", autopub)
}

func write(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fakes are shell scripts")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}
