// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Autopub-action runs one step of an autopub release inside GitHub Actions.

# Usage

	$ autopub-action [flags] [command]

Command is one of check, prepare, build or publish. If omitted, the command
input (INPUT_COMMAND) is used. Other inputs are read from INPUT_* environment
variables, with defaults from action.yml.

Outside of GitHub Actions, the artifact carrying the .autopub directory between
jobs is kept in $AUTOPUB_ARTIFACT_DIR. $AUTOPUB_PYTHON and $AUTOPUB_VENV
override the interpreter and the virtualenv autopub is installed into.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/base/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
