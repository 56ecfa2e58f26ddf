// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package devtools contains common functionality for development tools.
package devtools

import (
	"os"
	"path/filepath"

	"go.astrophena.name/base/unwrap"
)

// rootFiles are present at the repository root.
var rootFiles = []string{"go.mod", "action.yml"}

// EnsureRoot checks that the current working directory is at the repository
// root and panics if it doesn't.
func EnsureRoot() {
	wd := unwrap.Value(os.Getwd())
	if !IsRoot(wd) {
		panic("Are you at repo root?")
	}
}

// IsRoot reports whether dir is the repository root.
func IsRoot(dir string) bool {
	for _, name := range rootFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}
