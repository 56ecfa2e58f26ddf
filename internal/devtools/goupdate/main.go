// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"go.astrophena.name/autopub-action/internal/devtools"

	"github.com/Masterminds/semver/v3"
	"go.astrophena.name/base/cli"
	"go.astrophena.name/base/request"
	"golang.org/x/mod/modfile"
)

func main() { cli.Main(new(app)) }

type app struct {
	pr bool

	httpc *http.Client // used in tests
}

func (a *app) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&a.pr, "pr", false, "Commit the update and open a pull request.")
}

func (a *app) Run(ctx context.Context) error {
	devtools.EnsureRoot()

	latest, err := latestGo(ctx, a.httpc)
	if err != nil {
		return fmt.Errorf("obtaining latest Go version: %w", err)
	}

	files := map[string]func([]byte, string) ([]byte, bool, error){
		"go.mod":     updateGoMod,
		"Dockerfile": updateDockerfile,
	}
	var changed []string
	for name, update := range files {
		b, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		ub, ok, err := update(b, latest)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if !ok {
			continue
		}
		if err := os.WriteFile(name, ub, 0o644); err != nil {
			return err
		}
		changed = append(changed, name)
	}
	if len(changed) == 0 {
		log.Printf("Already at Go %s.", latest)
		return nil
	}
	if !a.pr {
		return nil
	}

	branch := "go-update-" + latest
	for _, args := range [][]string{
		{"git", "config", "user.name", "github-actions[bot]"},
		{"git", "config", "user.email", "41898282+github-actions[bot]@users.noreply.github.com"},
		{"git", "checkout", "-b", branch},
		append([]string{"git", "add"}, changed...),
		{"git", "commit", "-m", "all: update to Go " + latest},
		{"git", "push", "origin", branch},
		{"gh", "pr", "create", "-f"},
	} {
		if err := run(ctx, args[0], args[1:]...); err != nil {
			return err
		}
	}
	return nil
}

type goRelease struct {
	Version string `json:"version"`
	Stable  bool   `json:"stable"`
}

// latestGo returns the version of the latest stable Go release, like "1.25.1".
func latestGo(ctx context.Context, httpc *http.Client) (string, error) {
	versions, err := request.Make[[]goRelease](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        "https://go.dev/dl/?mode=json",
		HTTPClient: httpc,
	})
	if err != nil {
		return "", err
	}
	for _, v := range versions {
		if v.Stable {
			return strings.TrimPrefix(v.Version, "go"), nil
		}
	}
	return "", errors.New("no stable versions provided")
}

func updateGoMod(b []byte, version string) ([]byte, bool, error) {
	f, err := modfile.Parse("go.mod", b, nil)
	if err != nil {
		return nil, false, err
	}
	if f.Go != nil && f.Go.Version == version {
		return b, false, nil
	}
	if err := f.AddGoStmt(version); err != nil {
		return nil, false, err
	}
	ub, err := f.Format()
	if err != nil {
		return nil, false, err
	}
	return ub, true, nil
}

var goImageRe = regexp.MustCompile(`(?m)^(FROM\s+golang:)(\S+?)(\s|$)`)

// updateDockerfile points the build stage at the Go image of the minor
// release of version, like golang:1.25.
func updateDockerfile(b []byte, version string) ([]byte, bool, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return nil, false, err
	}
	tag := fmt.Sprintf("%d.%d", v.Major(), v.Minor())

	m := goImageRe.FindSubmatch(b)
	if m == nil {
		return nil, false, errors.New("no golang build image")
	}
	if string(m[2]) == tag {
		return b, false, nil
	}
	return goImageRe.ReplaceAll(b, []byte("${1}"+tag+"${3}")), true, nil
}

func run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}
