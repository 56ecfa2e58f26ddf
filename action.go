// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package action contains metadata of the autopub GitHub Action.
package action

import _ "embed"

// Metadata is the contents of action.yml. Input names and their defaults are
// taken from it.
//
//go:embed action.yml
var Metadata []byte
