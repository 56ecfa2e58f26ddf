// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package install installs autopub and its plugins into a virtualenv.
package install

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"go.astrophena.name/autopub-action/internal/apperrors"
	"go.astrophena.name/autopub-action/internal/inputs"
	"go.astrophena.name/autopub-action/internal/logger"
)

// Package is the name of the release tool package on PyPI.
const Package = "autopub"

// markerFile records the requirements last installed into the virtualenv.
const markerFile = ".autopub-requirements"

// Installer installs autopub into a job-local virtualenv.
type Installer struct {
	// Python is the interpreter used to create the virtualenv. If empty,
	// "python3" is used.
	Python string
	// Dir is the virtualenv directory.
	Dir string
	// Logf is a logger to use. If nil, log.Printf is used.
	Logf logger.Logf
}

func (i *Installer) setDefaults() {
	if i.Python == "" {
		i.Python = "python3"
	}
	if i.Dir == "" {
		i.Dir = filepath.Join(os.TempDir(), "autopub-venv")
	}
	if i.Logf == nil {
		i.Logf = logger.Logf(log.Printf)
	}
}

// PipArgs returns the arguments of pip that install autopub at version along
// with plugins.
func PipArgs(version inputs.VersionSpec, plugins []string) []string {
	args := []string{"install", "--disable-pip-version-check", "--no-input"}
	switch version.Channel {
	case inputs.PreRelease:
		args = append(args, "--upgrade", "--pre", Package)
	case inputs.Pinned:
		args = append(args, Package+"=="+version.Version)
	default:
		args = append(args, "--upgrade", Package)
	}
	return append(args, plugins...)
}

// Install installs autopub at version and the plugins, and returns the path of
// the autopub executable. Installing the same requirements again is a no-op.
func (i *Installer) Install(ctx context.Context, version inputs.VersionSpec, plugins []string) (string, error) {
	i.setDefaults()

	args := PipArgs(version, plugins)
	want := strings.Join(args, " ")
	exe := i.executable(Package)

	if got, err := os.ReadFile(filepath.Join(i.Dir, markerFile)); err == nil && string(got) == want && exists(exe) {
		i.Logf("autopub (%s) is already installed in %s.", version, i.Dir)
		return exe, nil
	}

	python := i.executable("python")
	if !exists(python) {
		i.Logf("Creating virtualenv in %s.", i.Dir)
		if out, err := i.run(ctx, i.Python, "-m", "venv", i.Dir); err != nil {
			return "", apperrors.Install("creating virtualenv", out, err)
		}
	}

	i.Logf("Installing autopub (%s).", version)
	out, err := i.run(ctx, python, append([]string{"-m", "pip"}, args...)...)
	if err != nil {
		return "", apperrors.Install("pip "+want, out, err)
	}
	if !exists(exe) {
		return "", apperrors.Install("pip "+want, out, errors.New("autopub executable is missing after installation"))
	}

	if err := os.WriteFile(filepath.Join(i.Dir, markerFile), []byte(want), 0o644); err != nil {
		return "", apperrors.Install("recording installed requirements", "", err)
	}
	return exe, nil
}

func (i *Installer) run(ctx context.Context, name string, args ...string) (string, error) {
	var buf bytes.Buffer
	w := io.MultiWriter(&buf, i.Logf)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = w
	cmd.Stderr = w
	err := cmd.Run()
	return buf.String(), err
}

func (i *Installer) executable(name string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(i.Dir, "Scripts", name+".exe")
	}
	return filepath.Join(i.Dir, "bin", name)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
