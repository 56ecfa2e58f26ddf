// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package inputs resolves and validates the action inputs.
//
// Input values come from the environment, the way the runner passes them to
// container actions. Defaults come from the action metadata (action.yml), so
// the binary behaves the same when it runs outside of a runner.
package inputs

import (
	"fmt"
	"slices"
	"strings"

	"go.astrophena.name/autopub-action/internal/apperrors"
	"go.astrophena.name/autopub-action/internal/release"

	"gopkg.in/yaml.v3"
)

// Input names.
const (
	CommandInput           = "command"
	GitHubTokenInput       = "github-token"
	PyPITokenInput         = "pypi-token"
	AutopubVersionInput    = "autopub-version"
	GitUsernameInput       = "git-username"
	GitEmailInput          = "git-email"
	ExtraPluginsInput      = "extra-plugins"
	UploadArtifactInput    = "upload-artifact"
	DownloadArtifactInput  = "download-artifact"
	ArtifactNameInput      = "artifact-name"
	PublishRepositoryInput = "publish-repository"
	FailOnMissingInput     = "fail-on-missing"
	JobSummaryInput        = "job-summary"
	MetricsFileInput       = "metrics-file"
)

// Command is an autopub command.
type Command string

// Available commands.
const (
	Check   = Command("check")
	Prepare = Command("prepare")
	Build   = Command("build")
	Publish = Command("publish")
)

// Commands lists all commands in the order they run in a release.
var Commands = []Command{Check, Prepare, Build, Publish}

// ParseCommand parses s as a command name.
func ParseCommand(s string) (Command, error) {
	c := Command(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return "", apperrors.Configuration(CommandInput, "required input is not set")
	}
	if !slices.Contains(Commands, c) {
		return "", apperrors.Configuration(CommandInput, "unknown command %q, want one of check, prepare, build or publish", s)
	}
	return c, nil
}

// NeedsPriorState reports whether the command consumes the state produced by
// check.
func (c Command) NeedsPriorState() bool {
	return c == Prepare || c == Build || c == Publish
}

// UsesGitHubToken reports whether the GitHub token is passed to the command.
func (c Command) UsesGitHubToken() bool {
	return c == Check || c == Publish
}

// Channel selects which release of autopub to install.
type Channel string

// Available channels.
const (
	Latest     = Channel("latest")
	PreRelease = Channel("pre-release")
	Pinned     = Channel("pinned")
)

// VersionSpec is a parsed autopub-version input.
type VersionSpec struct {
	Channel Channel
	Version string // set for Pinned only
}

func (v VersionSpec) String() string {
	if v.Channel == Pinned {
		return v.Version
	}
	return string(v.Channel)
}

// ParseVersionSpec parses an autopub-version input.
func ParseVersionSpec(s string) (VersionSpec, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", string(Latest):
		return VersionSpec{Channel: Latest}, nil
	case string(PreRelease):
		return VersionSpec{Channel: PreRelease}, nil
	}
	if release.ValidVersion(s) {
		return VersionSpec{Channel: Pinned, Version: strings.TrimPrefix(s, "v")}, nil
	}
	return VersionSpec{}, apperrors.Configuration(AutopubVersionInput, "%q is not latest, pre-release or a version", s)
}

// Config is the validated set of inputs.
type Config struct {
	Command           Command
	GitHubToken       string
	PyPIToken         string
	AutopubVersion    VersionSpec
	GitUsername       string
	GitEmail          string
	ExtraPlugins      []string
	UploadArtifact    bool
	DownloadArtifact  bool
	ArtifactName      string
	PublishRepository string
	FailOnMissing     bool
	JobSummary        bool
	MetricsFile       string
}

// Metadata is the part of action.yml that describes inputs and outputs.
type Metadata struct {
	Name    string               `yaml:"name"`
	Inputs  map[string]InputSpec `yaml:"inputs"`
	Outputs map[string]struct {
		Description string `yaml:"description"`
	} `yaml:"outputs"`
}

// InputSpec describes a single input.
type InputSpec struct {
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
	Default     string `yaml:"default"`
}

// ParseMetadata parses action metadata.
func ParseMetadata(b []byte) (*Metadata, error) {
	md := new(Metadata)
	if err := yaml.Unmarshal(b, md); err != nil {
		return nil, fmt.Errorf("parsing action metadata: %w", err)
	}
	if len(md.Inputs) == 0 {
		return nil, fmt.Errorf("action metadata declares no inputs")
	}
	return md, nil
}

// EnvNames returns the environment variable names that may carry the input,
// in lookup order.
func EnvNames(name string) []string {
	upper := strings.ToUpper(name)
	underscored := strings.ReplaceAll(upper, "-", "_")
	if underscored == upper {
		return []string{"INPUT_" + upper}
	}
	return []string{"INPUT_" + underscored, "INPUT_" + upper}
}

type resolver struct {
	md     *Metadata
	getenv func(string) string
}

func (r *resolver) value(name string) (string, error) {
	decl, ok := r.md.Inputs[name]
	if !ok {
		return "", apperrors.Configuration(name, "not declared in action metadata")
	}
	for _, key := range EnvNames(name) {
		if v := strings.TrimSpace(r.getenv(key)); v != "" {
			return v, nil
		}
	}
	if decl.Required && decl.Default == "" {
		return "", apperrors.Configuration(name, "required input is not set")
	}
	return decl.Default, nil
}

func (r *resolver) bool(name string) (bool, error) {
	v, err := r.value(name)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(v) {
	case "true":
		return true, nil
	case "false", "":
		return false, nil
	}
	return false, apperrors.Configuration(name, "want true or false, got %q", v)
}

// Resolve reads inputs with getenv, applies defaults from md and validates the
// result. A non-empty command overrides the command input.
func Resolve(md *Metadata, getenv func(string) string, command string) (*Config, error) {
	r := &resolver{md: md, getenv: getenv}
	c := new(Config)

	var err error
	if command == "" {
		// Lookup errors for a missing command are reported by ParseCommand.
		command, _ = r.value(CommandInput)
	}
	if c.Command, err = ParseCommand(command); err != nil {
		return nil, err
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{GitHubTokenInput, &c.GitHubToken},
		{PyPITokenInput, &c.PyPIToken},
		{GitUsernameInput, &c.GitUsername},
		{GitEmailInput, &c.GitEmail},
		{ArtifactNameInput, &c.ArtifactName},
		{PublishRepositoryInput, &c.PublishRepository},
		{MetricsFileInput, &c.MetricsFile},
	}
	for _, s := range strs {
		if *s.dst, err = r.value(s.name); err != nil {
			return nil, err
		}
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{UploadArtifactInput, &c.UploadArtifact},
		{DownloadArtifactInput, &c.DownloadArtifact},
		{FailOnMissingInput, &c.FailOnMissing},
		{JobSummaryInput, &c.JobSummary},
	}
	for _, b := range bools {
		if *b.dst, err = r.bool(b.name); err != nil {
			return nil, err
		}
	}

	version, err := r.value(AutopubVersionInput)
	if err != nil {
		return nil, err
	}
	if c.AutopubVersion, err = ParseVersionSpec(version); err != nil {
		return nil, err
	}

	plugins, err := r.value(ExtraPluginsInput)
	if err != nil {
		return nil, err
	}
	c.ExtraPlugins = SplitList(plugins)
	for _, p := range c.ExtraPlugins {
		// Plugins are passed to pip as arguments.
		if strings.HasPrefix(p, "-") {
			return nil, apperrors.Configuration(ExtraPluginsInput, "%q is not a package requirement", p)
		}
	}

	if err := validateArtifactName(c.ArtifactName); err != nil {
		return nil, err
	}

	return c, nil
}

// SplitList splits a comma-separated list, trimming items and dropping empty
// ones.
func SplitList(s string) []string {
	var items []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func validateArtifactName(name string) error {
	if name == "" {
		return apperrors.Configuration(ArtifactNameInput, "must not be empty")
	}
	if i := strings.IndexAny(name, "\":<>|*?\r\n\\/"); i >= 0 {
		return apperrors.Configuration(ArtifactNameInput, "%q contains invalid character %q", name, name[i])
	}
	return nil
}
