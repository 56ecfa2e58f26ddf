// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package logger defines a type for writing to logs.
package logger

import "strings"

// Logf is the basic logger type: a printf-like func. Like log.Printf, the
// format need not end in a newline. Logf functions must be safe for concurrent
// use.
//
// Logf also implements [io.Writer], so it can receive the output of a
// subprocess.
type Logf func(format string, args ...any)

// Write logs p, one call per line.
func (f Logf) Write(p []byte) (int, error) {
	for line := range strings.Lines(string(p)) {
		f("%s", strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

// Discard is a Logf that drops everything.
func Discard(string, ...any) {}
