// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package runner runs one step of a release: it resolves the inputs, installs
// autopub, restores the state of earlier jobs, runs the command and publishes
// what it produced.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	action "go.astrophena.name/autopub-action"
	"go.astrophena.name/autopub-action/internal/apperrors"
	"go.astrophena.name/autopub-action/internal/artifact"
	"go.astrophena.name/autopub-action/internal/dispatch"
	"go.astrophena.name/autopub-action/internal/env"
	"go.astrophena.name/autopub-action/internal/inputs"
	"go.astrophena.name/autopub-action/internal/install"
	ilogger "go.astrophena.name/autopub-action/internal/logger"
	"go.astrophena.name/autopub-action/internal/metrics"
	"go.astrophena.name/autopub-action/internal/oidc"
	"go.astrophena.name/autopub-action/internal/outputs"
	"go.astrophena.name/autopub-action/internal/pyproject"
	"go.astrophena.name/autopub-action/internal/release"
	"go.astrophena.name/autopub-action/internal/workflow"

	"go.astrophena.name/base/logger"
)

// ReleaseFile is the file autopub reads the release type and notes from.
const ReleaseFile = "RELEASE.md"

// Config configures a step.
type Config struct {
	// Dir is the root of the repository. If empty, uses the current directory.
	Dir string
	// Command overrides the command input when not empty.
	Command string
	// Getenv looks up the action inputs and the runner environment. If nil,
	// os.Getenv is used.
	Getenv func(string) string
	// Environ is the environment autopub runs with, before the variables
	// derived from the inputs are added. If nil, os.Environ() is used.
	Environ []string
	// Stdout receives workflow commands. If nil, os.Stdout is used.
	Stdout io.Writer
	// Logf is a logger for the output of pip and autopub. If nil,
	// log.Printf is used.
	Logf ilogger.Logf
	// HTTPClient is a HTTP client for the artifact service and trusted
	// publishing. If nil, request.DefaultClient is used.
	HTTPClient *http.Client
	// Store overrides the artifact store chosen from the environment.
	Store artifact.Store

	now func() time.Time // used in tests
}

func (c *Config) setDefaults() {
	if c.Dir == "" {
		c.Dir = "."
	}
	if c.Getenv == nil {
		c.Getenv = os.Getenv
	}
	if c.Environ == nil {
		c.Environ = os.Environ()
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Logf == nil {
		c.Logf = ilogger.Logf(log.Printf)
	}
	if c.now == nil {
		c.now = time.Now
	}
}

// store returns the artifact store for the environment: the artifact service
// on GitHub Actions, a local directory elsewhere.
func (c *Config) store() artifact.Store {
	if c.Store != nil {
		return c.Store
	}
	if env.Detect(c.Getenv) == env.Actions {
		return &artifact.ResultsStore{
			BaseURL:    c.Getenv("ACTIONS_RESULTS_URL"),
			Token:      c.Getenv("ACTIONS_RUNTIME_TOKEN"),
			HTTPClient: c.HTTPClient,
		}
	}
	return &artifact.DirStore{
		Root: env.Lookup(c.Getenv, "AUTOPUB_ARTIFACT_DIR", filepath.Join(os.TempDir(), "autopub-artifacts")),
	}
}

func (c *Config) installer() *install.Installer {
	dir := c.Getenv("AUTOPUB_VENV")
	if dir == "" {
		dir = filepath.Join(env.Lookup(c.Getenv, "RUNNER_TEMP", os.TempDir()), "autopub-venv")
	}
	return &install.Installer{
		Python: env.Lookup(c.Getenv, "AUTOPUB_PYTHON", "python3"),
		Dir:    dir,
		Logf:   c.Logf,
	}
}

// step holds the state of a running step.
type step struct {
	c      *Config
	cfg    *inputs.Config
	wf     *workflow.Commands
	rec    *metrics.Recorder
	bridge *artifact.Bridge
	oidc   *oidc.Client
}

// Run runs one step. Every returned error is fatal to the job; a check that
// finds no release is not an error unless fail-on-missing is set.
func Run(ctx context.Context, c *Config) error {
	if c == nil {
		c = &Config{}
	}
	c.setDefaults()

	md, err := inputs.ParseMetadata(action.Metadata)
	if err != nil {
		return err
	}
	cfg, err := inputs.Resolve(md, c.Getenv, c.Command)
	if err != nil {
		return err
	}

	s := &step{
		c:   c,
		cfg: cfg,
		wf:  workflow.New(c.Stdout, c.Getenv),
		rec: metrics.New(),
		bridge: &artifact.Bridge{
			Store: c.store(),
			Root:  c.Dir,
			Name:  cfg.ArtifactName,
		},
		oidc: oidc.FromEnv(c.Getenv),
	}
	if s.oidc != nil {
		s.oidc.HTTPClient = c.HTTPClient
	}
	s.wf.AddMask(cfg.GitHubToken)
	s.wf.AddMask(cfg.PyPIToken)

	info, err := s.run(ctx)
	s.bridge.Finish()

	command := string(cfg.Command)
	s.rec.Finish(command, info != nil && info.HasRelease, err, c.now())
	if cfg.MetricsFile != "" {
		if werr := s.rec.WriteFile(cfg.MetricsFile); werr != nil {
			logger.Error(ctx, "failed to write metrics", slog.String("path", cfg.MetricsFile), slog.Any("err", werr))
		}
	}
	return err
}

func (s *step) run(ctx context.Context) (*release.Info, error) {
	cfg := s.cfg
	cmd := cfg.Command
	command := string(cmd)

	if err := dispatch.CheckCredentials(cmd, dispatch.Credentials{
		GitHubToken:       cfg.GitHubToken,
		PyPIToken:         cfg.PyPIToken,
		TrustedPublishing: s.oidc != nil,
	}); err != nil {
		return nil, err
	}

	var exe string
	if err := s.rec.Time(command, metrics.PhaseInstall, func() error {
		s.wf.Group("Install autopub")
		defer s.wf.EndGroup()
		var err error
		exe, err = s.c.installer().Install(ctx, cfg.AutopubVersion, cfg.ExtraPlugins)
		return err
	}); err != nil {
		return nil, err
	}

	var prior *release.Info
	if cmd.NeedsPriorState() {
		if err := s.rec.Time(command, metrics.PhaseRestore, func() error {
			var err error
			prior, err = s.bridge.Restore(ctx, cmd, cfg.DownloadArtifact)
			return err
		}); err != nil {
			return nil, err
		}
		if cfg.DownloadArtifact {
			s.rec.Artifact(command, "download", s.bridge.Size())
		}
	}

	pypiToken := cfg.PyPIToken
	if cmd == inputs.Publish && pypiToken == "" {
		if err := s.rec.Time(command, metrics.PhaseToken, func() error {
			tok, err := s.oidc.MintToken(ctx, cfg.PublishRepository)
			if err != nil {
				return err
			}
			s.wf.AddMask(tok)
			pypiToken = tok
			return nil
		}); err != nil {
			return nil, err
		}
		logger.Info(ctx, "obtained a PyPI token with trusted publishing")
	}

	var res *dispatch.Result
	if err := s.rec.Time(command, metrics.PhaseCommand, func() error {
		s.wf.Group("autopub " + command)
		defer s.wf.EndGroup()
		d := &dispatch.Dispatcher{
			Exe:     exe,
			Dir:     s.c.Dir,
			Environ: s.c.Environ,
			Logf:    s.c.Logf,
		}
		var err error
		res, err = d.Run(ctx, &dispatch.Invocation{
			Command:           cmd,
			GitHubToken:       cfg.GitHubToken,
			PyPIToken:         pypiToken,
			PublishRepository: cfg.PublishRepository,
			GitUsername:       cfg.GitUsername,
			GitEmail:          cfg.GitEmail,
			RepositoryURL:     repositoryURL(s.c.Getenv),
		})
		return err
	}); err != nil {
		return nil, err
	}
	logger.Info(ctx, "autopub finished", slog.String("command", command), slog.Int("exit_code", res.ExitCode))

	current, err := release.Load(s.c.Dir)
	switch {
	case errors.Is(err, release.ErrNotExist):
		current = nil
	case err != nil:
		return nil, apperrors.CommandFailed("autopub "+command, res.Output, err)
	}

	if cmd == inputs.Check {
		if current, err = s.classifyCheck(res, current); err != nil {
			return nil, err
		}
		if err := s.rec.Time(command, metrics.PhasePublish, func() error {
			uploaded, err := s.bridge.Publish(ctx, cmd, cfg.UploadArtifact, current)
			if uploaded {
				s.rec.Artifact(command, "upload", s.bridge.Size())
			}
			return err
		}); err != nil {
			return nil, err
		}
	} else if !res.OK() {
		return nil, apperrors.CommandFailed("autopub "+command, res.Output, fmt.Errorf("exit status %d", res.ExitCode))
	}

	var merged *release.Info
	if err := s.rec.Time(command, metrics.PhaseOutputs, func() error {
		var err error
		if merged, err = outputs.Project(s.wf, prior, current); err != nil {
			return err
		}
		if cfg.JobSummary {
			return s.summarize(ctx, merged)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return merged, nil
}

// classifyCheck decides whether check succeeded from the release state it
// left behind, falling back to the exit status and the presence of
// RELEASE.md when there is none. It returns the release state to publish.
func (s *step) classifyCheck(res *dispatch.Result, current *release.Info) (*release.Info, error) {
	const op = "autopub check"
	switch {
	case current != nil && current.HasRelease:
		if !res.OK() {
			return nil, apperrors.CommandFailed(op, res.Output, fmt.Errorf("exit status %d", res.ExitCode))
		}
		return current, nil
	case current != nil || res.OK():
		if s.cfg.FailOnMissing {
			return nil, apperrors.CommandFailed(op, res.Output, errors.New("no release is pending and fail-on-missing is set"))
		}
		s.wf.Notice("autopub", "No release is pending.")
		return &release.Info{}, nil
	case hasReleaseFile(s.c.Dir):
		return nil, apperrors.CommandFailed(op, res.Output, fmt.Errorf("exit status %d", res.ExitCode))
	case s.cfg.FailOnMissing:
		return nil, apperrors.CommandFailed(op, res.Output, fmt.Errorf("%s is missing and fail-on-missing is set", ReleaseFile))
	default:
		s.wf.Notice("autopub", fmt.Sprintf("No release is pending: %s is missing.", ReleaseFile))
		return &release.Info{}, nil
	}
}

func (s *step) summarize(ctx context.Context, info *release.Info) error {
	project, err := pyproject.Read(s.c.Dir)
	if err != nil {
		logger.Error(ctx, "failed to read project metadata", slog.Any("err", err))
		project = &pyproject.Project{}
	}
	sum := &outputs.Summary{
		Command: s.cfg.Command,
		Project: project.Name,
		Info:    info,
	}
	return s.wf.AppendSummary(sum.Markdown())
}

func hasReleaseFile(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ReleaseFile))
	return err == nil
}

func repositoryURL(getenv func(string) string) string {
	server, repo := getenv("GITHUB_SERVER_URL"), getenv("GITHUB_REPOSITORY")
	if server == "" || repo == "" {
		return ""
	}
	return server + "/" + repo
}
