// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Goupdate updates the Go version of the module to the latest Go release.

# Usage

	$ go tool goupdate [-pr]

It rewrites the go directive in go.mod and the Go image of the build stage in
the Dockerfile. With -pr, it commits the change to a new branch and opens a
pull request with gh.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/base/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
