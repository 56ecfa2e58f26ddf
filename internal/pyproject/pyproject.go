// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package pyproject reads project metadata from pyproject.toml.
package pyproject

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// File is the name of the project metadata file.
const File = "pyproject.toml"

// Project is the [project] table of pyproject.toml. Only the name is read;
// autopub owns the version.
type Project struct {
	Name string `toml:"name"`
}

// Read reads the [project] table from pyproject.toml in root. A missing file
// yields an empty Project.
func Read(root string) (*Project, error) {
	var doc struct {
		Project Project `toml:"project"`
	}
	path := filepath.Join(root, File)
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Project{}, nil
		}
		return nil, fmt.Errorf("%s: %w", File, err)
	}
	return &doc.Project, nil
}
