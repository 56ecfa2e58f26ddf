// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package logger

import (
	"fmt"
	"io"
	"testing"

	"go.astrophena.name/base/testutil"
)

func TestWrite(t *testing.T) {
	var got []string
	logf := Logf(func(format string, args ...any) {
		got = append(got, fmt.Sprintf(format, args...))
	})

	n, err := io.WriteString(logf, "Collecting autopub\r\nInstalling collected packages: autopub\n")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, n, 59)
	testutil.AssertEqual(t, got, []string{
		"Collecting autopub",
		"Installing collected packages: autopub",
	})
}
