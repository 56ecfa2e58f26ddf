// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package runner

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.astrophena.name/autopub-action/internal/apperrors"
	"go.astrophena.name/autopub-action/internal/fakes"
	"go.astrophena.name/autopub-action/internal/inputs"

	"go.astrophena.name/base/testutil"
	"go.astrophena.name/base/txtar"
)

// harness simulates the jobs of one workflow run: they share the artifact
// store and nothing else.
type harness struct {
	t         *testing.T
	python    string
	artifacts string
	calls     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tmp := t.TempDir()
	h := &harness{
		t:         t,
		python:    fakes.Python(t, tmp),
		artifacts: filepath.Join(tmp, "artifacts"),
		calls:     filepath.Join(tmp, "python.log"),
	}
	t.Setenv("FAKE_AUTOPUB", fakes.Autopub(t, tmp))
	t.Setenv("FAKE_PYTHON_LOG", h.calls)
	t.Setenv("FAKE_AUTOPUB_ENV", "")
	t.Setenv("FAKE_AUTOPUB_EXIT", "")
	return h
}

// job is one step of a job.
type job struct {
	h      *harness
	dir    string
	env    map[string]string
	stdout bytes.Buffer
	c      *Config
}

func (h *harness) job(repo string, in map[string]string) *job {
	h.t.Helper()
	tmp := h.t.TempDir()
	dir := filepath.Join(tmp, "repo")
	testutil.ExtractTxtar(h.t, txtar.Parse([]byte(repo)), dir)

	j := &job{
		h:   h,
		dir: dir,
		env: map[string]string{
			"AUTOPUB_PYTHON":       h.python,
			"AUTOPUB_VENV":         filepath.Join(tmp, "venv"),
			"AUTOPUB_ARTIFACT_DIR": h.artifacts,
			"GITHUB_OUTPUT":        filepath.Join(tmp, "output"),
			"GITHUB_STEP_SUMMARY":  filepath.Join(tmp, "summary.md"),
			"GITHUB_SERVER_URL":    "https://github.com",
			"GITHUB_REPOSITORY":    "example/example",
		},
	}
	for name, v := range in {
		j.env[inputs.EnvNames(name)[0]] = v
	}
	j.c = &Config{
		Dir:    dir,
		Getenv: func(key string) string { return j.env[key] },
		Stdout: &j.stdout,
		Logf:   h.t.Logf,
		now:    func() time.Time { return time.Unix(1700000000, 0) },
	}
	return j
}

func (j *job) run() error {
	j.h.t.Helper()
	return Run(j.h.t.Context(), j.c)
}

func (j *job) outputs() map[string]string {
	t := j.h.t
	t.Helper()
	b, err := os.ReadFile(j.env["GITHUB_OUTPUT"])
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	got := make(map[string]string)
	lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
	for i := 0; i < len(lines); i++ {
		name, delim, ok := strings.Cut(lines[i], "<<")
		if !ok {
			t.Fatalf("line %d: not a heredoc: %q", i+1, lines[i])
		}
		var value []string
		for i++; i < len(lines) && lines[i] != delim; i++ {
			value = append(value, lines[i])
		}
		got[name] = strings.Join(value, "\n")
	}
	return got
}

func (j *job) summary() string {
	b, err := os.ReadFile(j.env["GITHUB_STEP_SUMMARY"])
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		j.h.t.Fatal(err)
	}
	return string(b)
}

func (h *harness) pythonCalls() []string {
	b, err := os.ReadFile(h.calls)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		h.t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(b)), "\n")
}

func (h *harness) artifactExists(name string) bool {
	_, err := os.Stat(filepath.Join(h.artifacts, name+".zip"))
	return err == nil
}

// autopubEnv runs f with the environment of the autopub process recorded and
// returns it.
func autopubEnv(t *testing.T, f func()) map[string]string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "env")
	t.Setenv("FAKE_AUTOPUB_ENV", path)
	f()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	env := make(map[string]string)
	for line := range strings.Lines(string(b)) {
		k, v, _ := strings.Cut(strings.TrimSuffix(line, "\n"), "=")
		env[k] = v
	}
	return env
}

const (
	pyprojectRepo = `
-- pyproject.toml --
[project]
name = "example"
version = "1.2.3"
`
	withRelease = pyprojectRepo + `
-- RELEASE.md --
Release type: minor

Adds a feature.
`
)

func TestReleaseAcrossJobs(t *testing.T) {
	h := newHarness(t)

	check := h.job(withRelease, map[string]string{inputs.CommandInput: "check"})
	if err := check.run(); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, check.outputs(), map[string]string{
		"has-release":   "true",
		"version":       "",
		"release-type":  "minor",
		"release-notes": "Release notes.",
	})
	if !h.artifactExists("autopub-data") {
		t.Fatal("check did not upload the artifact")
	}
	if !strings.Contains(check.summary(), "## autopub check: example\n") {
		t.Errorf("unexpected summary:\n%s", check.summary())
	}

	// The release job starts from a fresh checkout with no .autopub directory.
	prepare := h.job(withRelease, map[string]string{inputs.CommandInput: "prepare"})
	if err := prepare.run(); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, prepare.outputs(), map[string]string{
		"has-release":   "true",
		"version":       "1.3.0",
		"release-type":  "minor",
		"release-notes": "Release notes.",
	})
	if !strings.Contains(prepare.summary(), "1.2.3 → 1.3.0") {
		t.Errorf("unexpected summary:\n%s", prepare.summary())
	}

	build := h.job(withRelease, map[string]string{inputs.CommandInput: "build"})
	if err := build.run(); err != nil {
		t.Fatal(err)
	}
	// Build restores the artifact uploaded by check, not the state prepare
	// left in its own job.
	testutil.AssertEqual(t, build.outputs()["has-release"], "true")

	publish := h.job(withRelease, map[string]string{
		inputs.CommandInput:     "publish",
		inputs.GitHubTokenInput: "gh-secret",
		inputs.PyPITokenInput:   "pypi-secret",
	})
	env := autopubEnv(t, func() {
		if err := publish.run(); err != nil {
			t.Fatal(err)
		}
	})
	testutil.AssertEqual(t, env["GITHUB_TOKEN"], "gh-secret")
	testutil.AssertEqual(t, env["TWINE_PASSWORD"], "pypi-secret")
	testutil.AssertEqual(t, env["UV_PUBLISH_TOKEN"], "pypi-secret")
	testutil.AssertEqual(t, env["GIT_AUTHOR_NAME"], "github-actions[bot]")
	testutil.AssertEqual(t, env["AUTOPUB_REPOSITORY_URL"], "https://github.com/example/example")
	for _, secret := range []string{"gh-secret", "pypi-secret"} {
		if !strings.Contains(publish.stdout.String(), "::add-mask::"+secret+"\n") {
			t.Errorf("%s is not masked", secret)
		}
	}
}

func TestCheckThenPrepareInOneJob(t *testing.T) {
	h := newHarness(t)

	check := h.job(withRelease, map[string]string{
		inputs.CommandInput:        "check",
		inputs.UploadArtifactInput: "false",
	})
	if err := check.run(); err != nil {
		t.Fatal(err)
	}
	if h.artifactExists("autopub-data") {
		t.Fatal("artifact uploaded with upload-artifact disabled")
	}

	prepare := h.job("", map[string]string{
		inputs.CommandInput:          "prepare",
		inputs.DownloadArtifactInput: "false",
	})
	prepare.dir, prepare.c.Dir = check.dir, check.dir
	if err := prepare.run(); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, prepare.outputs()["version"], "1.3.0")
}

func TestCheckWithoutRelease(t *testing.T) {
	cases := map[string]struct {
		failOnMissing string
		wantErr       error
	}{
		"soft failure":    {failOnMissing: "false"},
		"fail on missing": {failOnMissing: "true", wantErr: apperrors.ErrCommandFailed},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			check := h.job(pyprojectRepo, map[string]string{
				inputs.CommandInput:       "check",
				inputs.FailOnMissingInput: tc.failOnMissing,
			})
			err := check.run()
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				if !strings.Contains(apperrors.OutputOf(err), "No RELEASE.md found") {
					t.Errorf("error does not carry the output of autopub: %q", apperrors.OutputOf(err))
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			testutil.AssertEqual(t, check.outputs()["has-release"], "false")
			testutil.AssertEqual(t, h.artifactExists("autopub-data"), false)
			if !strings.Contains(check.stdout.String(), "::notice title=autopub::No release is pending") {
				t.Errorf("missing notice annotation in:\n%s", check.stdout.String())
			}
		})
	}
}

func TestCheckFails(t *testing.T) {
	cases := map[string]struct {
		repo string
		exit string
	}{
		"crash with RELEASE.md": {repo: withRelease, exit: "3"},
		"invalid RELEASE.md":    {repo: pyprojectRepo + "-- RELEASE.md --\nRelease type: huge\n"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			t.Setenv("FAKE_AUTOPUB_EXIT", tc.exit)
			check := h.job(tc.repo, map[string]string{inputs.CommandInput: "check"})
			if err := check.run(); !errors.Is(err, apperrors.ErrCommandFailed) {
				t.Fatalf("want command failed error, got %v", err)
			}
			testutil.AssertEqual(t, h.artifactExists("autopub-data"), false)
			testutil.AssertEqual(t, check.outputs(), map[string]string(nil))
		})
	}
}

func TestPrepareWithoutArtifact(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "env")
	t.Setenv("FAKE_AUTOPUB_ENV", path)

	prepare := h.job(withRelease, map[string]string{
		inputs.CommandInput:      "prepare",
		inputs.ArtifactNameInput: "renamed",
	})
	err := prepare.run()
	if !errors.Is(err, apperrors.ErrArtifactNotFound) {
		t.Fatalf("want artifact not found error, got %v", err)
	}
	if !strings.Contains(err.Error(), `"renamed"`) {
		t.Errorf("error does not name the artifact: %v", err)
	}
	if _, err := os.Stat(path); err == nil {
		t.Fatal("autopub ran without prior state")
	}
}

func TestFailsBeforeInstall(t *testing.T) {
	cases := map[string]struct {
		inputs  map[string]string
		wantErr error
	}{
		"unknown command": {
			inputs:  map[string]string{inputs.CommandInput: "release"},
			wantErr: apperrors.ErrConfiguration,
		},
		"bad boolean": {
			inputs:  map[string]string{inputs.CommandInput: "check", inputs.UploadArtifactInput: "yes"},
			wantErr: apperrors.ErrConfiguration,
		},
		"plugin option": {
			inputs:  map[string]string{inputs.CommandInput: "check", inputs.ExtraPluginsInput: "--pre"},
			wantErr: apperrors.ErrConfiguration,
		},
		"publish without tokens": {
			inputs:  map[string]string{inputs.CommandInput: "publish"},
			wantErr: apperrors.ErrMissingCredential,
		},
		"publish without PyPI token": {
			inputs:  map[string]string{inputs.CommandInput: "publish", inputs.GitHubTokenInput: "gh-secret"},
			wantErr: apperrors.ErrMissingCredential,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			j := h.job(withRelease, tc.inputs)
			if err := j.run(); !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
			testutil.AssertEqual(t, h.pythonCalls(), []string(nil))
		})
	}
}

func TestInstallOncePerJob(t *testing.T) {
	h := newHarness(t)
	check := h.job(withRelease, map[string]string{
		inputs.CommandInput:        "check",
		inputs.UploadArtifactInput: "false",
	})
	for range 2 {
		if err := check.run(); err != nil {
			t.Fatal(err)
		}
	}
	var pips int
	for _, call := range h.pythonCalls() {
		if strings.HasPrefix(call, "-m pip ") {
			pips++
		}
	}
	testutil.AssertEqual(t, pips, 1)
}

func TestInstallUnknownVersion(t *testing.T) {
	h := newHarness(t)
	check := h.job(withRelease, map[string]string{
		inputs.CommandInput:        "check",
		inputs.AutopubVersionInput: "0.0.0",
	})
	err := check.run()
	if !errors.Is(err, apperrors.ErrInstall) {
		t.Fatalf("want install error, got %v", err)
	}
	if !strings.Contains(apperrors.OutputOf(err), "No matching distribution found for autopub==0.0.0") {
		t.Errorf("error does not carry the output of pip: %q", apperrors.OutputOf(err))
	}
}

func TestPublishTrustedPublishing(t *testing.T) {
	h := newHarness(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET token.actions.example.com/request", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(t, w, map[string]string{"value": "oidc-token"})
	})
	mux.HandleFunc("GET pypi.org/_/oidc/audience", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(t, w, map[string]string{"audience": "pypi"})
	})
	mux.HandleFunc("POST pypi.org/_/oidc/mint-token", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(t, w, map[string]any{"success": true, "token": "pypi-minted"})
	})

	// Restore the state of check first.
	check := h.job(withRelease, map[string]string{inputs.CommandInput: "check"})
	if err := check.run(); err != nil {
		t.Fatal(err)
	}

	publish := h.job(withRelease, map[string]string{
		inputs.CommandInput:     "publish",
		inputs.GitHubTokenInput: "gh-secret",
	})
	publish.env["ACTIONS_ID_TOKEN_REQUEST_URL"] = "https://token.actions.example.com/request?api-version=2.0"
	publish.env["ACTIONS_ID_TOKEN_REQUEST_TOKEN"] = "request-token"
	publish.c.HTTPClient = testutil.MockHTTPClient(mux)

	env := autopubEnv(t, func() {
		if err := publish.run(); err != nil {
			t.Fatal(err)
		}
	})
	testutil.AssertEqual(t, env["TWINE_PASSWORD"], "pypi-minted")
	if !strings.Contains(publish.stdout.String(), "::add-mask::pypi-minted\n") {
		t.Error("minted token is not masked")
	}
}

func TestMetricsFile(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "autopub.prom")
	check := h.job(withRelease, map[string]string{
		inputs.CommandInput:     "check",
		inputs.MetricsFileInput: path,
	})
	if err := check.run(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`autopub_action_success{command="check"} 1`,
		`autopub_action_has_release{command="check"} 1`,
		`autopub_action_phase_duration_seconds{command="check",phase="install"}`,
		`autopub_action_phase_duration_seconds{command="check",phase="publish"}`,
	} {
		if !strings.Contains(string(b), want) {
			t.Errorf("metrics file does not contain %q:\n%s", want, b)
		}
	}
}

func respondJSON(t *testing.T, w http.ResponseWriter, data any) {
	j, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(j)
}

func TestCheckPatchRelease(t *testing.T) {
	h := newHarness(t)
	check := h.job(pyprojectRepo+"-- RELEASE.md --\nrelease type: patch\n\nFixes a bug.\n", map[string]string{inputs.CommandInput: "check"})
	if err := check.run(); err != nil {
		t.Fatal(err)
	}
	out := check.outputs()
	testutil.AssertEqual(t, out["has-release"], "true")
	testutil.AssertEqual(t, out["release-type"], "patch")
	testutil.AssertEqual(t, h.artifactExists("autopub-data"), true)
}
