// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package env contains definitions for the environments in which the action
// can run.
package env

// Env is the environment in which the action can run.
type Env string

// Available environments.
const (
	// Actions is a GitHub Actions runner with access to the artifact service.
	Actions = Env("actions")
	// Local is anything else: a developer machine, act, or a runner that does
	// not expose the artifact service.
	Local = Env("local")
)

// Detect returns the environment described by getenv.
func Detect(getenv func(string) string) Env {
	if getenv("ACTIONS_RUNTIME_TOKEN") != "" && getenv("ACTIONS_RESULTS_URL") != "" {
		return Actions
	}
	return Local
}

// Lookup returns the value of key or def if it is unset or empty.
func Lookup(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}
