// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package dispatch runs autopub commands.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/exec"

	"go.astrophena.name/autopub-action/internal/apperrors"
	"go.astrophena.name/autopub-action/internal/inputs"
	"go.astrophena.name/autopub-action/internal/logger"
)

// Credentials are the secrets available to a command.
type Credentials struct {
	GitHubToken string
	PyPIToken   string
	// TrustedPublishing is true when the runner can issue OIDC tokens that
	// the package index exchanges for an upload token.
	TrustedPublishing bool
}

// CheckCredentials fails with a missing credential error when cmd can't run
// with creds. Only publish has requirements: it needs a GitHub token, and a
// PyPI token unless trusted publishing is available.
func CheckCredentials(cmd inputs.Command, creds Credentials) error {
	if cmd != inputs.Publish {
		return nil
	}
	if creds.GitHubToken == "" {
		return apperrors.MissingCredential("publish requires github-token")
	}
	if creds.PyPIToken == "" && !creds.TrustedPublishing {
		return apperrors.MissingCredential("publish requires pypi-token or trusted publishing (grant the job \"id-token: write\" permission)")
	}
	return nil
}

// Invocation describes one run of autopub.
type Invocation struct {
	Command           inputs.Command
	GitHubToken       string
	PyPIToken         string
	PublishRepository string
	GitUsername       string
	GitEmail          string
	// RepositoryURL is the web URL of the repository, if known.
	RepositoryURL string
}

// Env returns the environment variables that configure autopub for inv.
func Env(inv *Invocation) []string {
	env := []string{
		"GIT_AUTHOR_NAME=" + inv.GitUsername,
		"GIT_COMMITTER_NAME=" + inv.GitUsername,
		"GIT_AUTHOR_EMAIL=" + inv.GitEmail,
		"GIT_COMMITTER_EMAIL=" + inv.GitEmail,
	}
	if inv.RepositoryURL != "" {
		env = append(env, "AUTOPUB_REPOSITORY_URL="+inv.RepositoryURL)
	}
	if inv.Command.UsesGitHubToken() && inv.GitHubToken != "" {
		env = append(env, "GITHUB_TOKEN="+inv.GitHubToken)
	}
	if inv.PyPIToken != "" {
		env = append(env,
			"UV_PUBLISH_TOKEN="+inv.PyPIToken,
			"TWINE_USERNAME=__token__",
			"TWINE_PASSWORD="+inv.PyPIToken,
		)
	}
	if inv.PublishRepository != "" {
		env = append(env,
			"UV_PUBLISH_URL="+inv.PublishRepository,
			"TWINE_REPOSITORY_URL="+inv.PublishRepository,
		)
	}
	return env
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	ExitCode int
	Output   string // combined stdout and stderr
}

// OK reports whether the command exited with zero status.
func (r *Result) OK() bool { return r.ExitCode == 0 }

// Dispatcher runs autopub.
type Dispatcher struct {
	// Exe is the path of the autopub executable.
	Exe string
	// Dir is the working directory, the root of the repository.
	Dir string
	// Environ is the base environment. If nil, os.Environ() is used.
	Environ []string
	// Logf is a logger to use. If nil, log.Printf is used.
	Logf logger.Logf
}

// Run runs the command of inv. A non-zero exit status is not an error; the
// caller decides what it means by inspecting the release state. Errors are
// returned when the command can't start or is cancelled.
func (d *Dispatcher) Run(ctx context.Context, inv *Invocation) (*Result, error) {
	logf := d.Logf
	if logf == nil {
		logf = logger.Logf(log.Printf)
	}
	environ := d.Environ
	if environ == nil {
		environ = os.Environ()
	}

	op := "autopub " + string(inv.Command)

	var buf bytes.Buffer
	w := io.MultiWriter(&buf, logf)
	cmd := exec.CommandContext(ctx, d.Exe, string(inv.Command))
	cmd.Dir = d.Dir
	cmd.Env = append(append([]string{}, environ...), Env(inv)...)
	cmd.Stdout = w
	cmd.Stderr = w

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, apperrors.CommandFailed(op, buf.String(), ctxErr)
	}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return &Result{Output: buf.String()}, nil
	case errors.As(err, &exitErr):
		return &Result{ExitCode: exitErr.ExitCode(), Output: buf.String()}, nil
	default:
		return nil, apperrors.CommandFailed(op, buf.String(), err)
	}
}
