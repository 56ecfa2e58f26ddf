// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Addcopyright adds copyright header to each Go, shell and YAML file.
package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.astrophena.name/autopub-action/internal/devtools"
)

const hashTemplate = `# © %d Ilya Mateyko. All rights reserved.
# Use of this source code is governed by the ISC
# license that can be found in the LICENSE.md file.

`

var templates = map[string]string{
	".go": `// © %d Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

`,
	".sh":  hashTemplate,
	".yml": hashTemplate,
}

var headers = map[string]string{
	".go":  `// ©`,
	".sh":  `# ©`,
	".yml": `# ©`,
}

// skipDirs are not walked.
var skipDirs = []string{".git", "_examples", "testdata"}

func main() {
	devtools.EnsureRoot()

	if err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if slices.Contains(skipDirs, d.Name()) {
				return fs.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		updated, ok := addHeader(filepath.Ext(path), content, info.ModTime().Year())
		if !ok {
			return nil
		}
		return os.WriteFile(path, updated, info.Mode().Perm())
	}); err != nil {
		log.Fatal(err)
	}
}

// addHeader returns content of a file with extension ext with the copyright
// header added. It reports false when the file type has no header or the
// header is already there. Shebang lines stay first.
func addHeader(ext string, content []byte, year int) ([]byte, bool) {
	tmpl, ok := templates[ext]
	if !ok {
		return nil, false
	}

	var shebang []byte
	body := content
	if bytes.HasPrefix(body, []byte("#!")) {
		line, rest, _ := strings.Cut(string(body), "\n")
		shebang, body = []byte(line+"\n"), []byte(rest)
	}
	if bytes.HasPrefix(body, []byte(headers[ext])) {
		return nil, false
	}

	var buf bytes.Buffer
	buf.Write(shebang)
	fmt.Fprintf(&buf, tmpl, year)
	buf.Write(body)
	return buf.Bytes(), true
}
