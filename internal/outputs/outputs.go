// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package outputs republishes the release state as step outputs and as a job
// summary.
package outputs

import (
	"fmt"
	"strconv"
	"strings"

	"go.astrophena.name/autopub-action/internal/inputs"
	"go.astrophena.name/autopub-action/internal/release"
	"go.astrophena.name/autopub-action/internal/workflow"

	"rsc.io/markdown"
)

// Output names, as declared in action.yml.
const (
	HasRelease   = "has-release"
	Version      = "version"
	ReleaseType  = "release-type"
	ReleaseNotes = "release-notes"
)

// Names lists all outputs in the order they are written.
var Names = []string{HasRelease, Version, ReleaseType, ReleaseNotes}

// Values maps info to output values. Every output is present, so that later
// steps never see a stale value from an earlier step.
func Values(info *release.Info) map[string]string {
	if info == nil {
		info = &release.Info{}
	}
	return map[string]string{
		HasRelease:   strconv.FormatBool(info.HasRelease),
		Version:      info.Version,
		ReleaseType:  string(info.ReleaseType),
		ReleaseNotes: info.ReleaseNotes,
	}
}

// Project merges the state restored before a command with the state the
// command left behind and sets the step outputs from the result, which it
// returns. Either state may be nil.
func Project(wf *workflow.Commands, prior, current *release.Info) (*release.Info, error) {
	merged := release.Merge(prior, current)
	values := Values(merged)
	for _, name := range Names {
		if err := wf.SetOutput(name, values[name]); err != nil {
			return nil, fmt.Errorf("setting output %q: %w", name, err)
		}
	}
	return merged, nil
}

// Summary is the job summary section of one step.
type Summary struct {
	Command inputs.Command
	// Project is the project name from pyproject.toml, if known.
	Project string
	Info    *release.Info
}

// sectionLevel is the heading level of the summary section. Headings in
// release notes are demoted below it.
const sectionLevel = 2

// Markdown renders the summary.
func (s *Summary) Markdown() string {
	info := s.Info
	if info == nil {
		info = &release.Info{}
	}

	var sb strings.Builder
	title := "autopub " + string(s.Command)
	if s.Project != "" {
		title += ": " + s.Project
	}
	fmt.Fprintf(&sb, "%s %s\n\n", strings.Repeat("#", sectionLevel), title)

	if !info.HasRelease {
		sb.WriteString("No release is pending.\n")
		return sb.String()
	}

	switch {
	case info.Version != "" && info.PreviousVersion != "":
		fmt.Fprintf(&sb, "- **Version:** %s → %s\n", info.PreviousVersion, info.Version)
	case info.Version != "":
		fmt.Fprintf(&sb, "- **Version:** %s\n", info.Version)
	}
	if info.ReleaseType != "" {
		fmt.Fprintf(&sb, "- **Release type:** %s\n", info.ReleaseType)
	}

	if notes := strings.TrimSpace(info.ReleaseNotes); notes != "" {
		sb.WriteString("\n")
		sb.WriteString(Demote(notes, sectionLevel+1))
	}
	return sb.String()
}

// Demote rewrites the top-level headings of the Markdown document md so that
// the highest of them is at level top. Relative levels are kept and capped at
// 6. Documents whose headings are already deep enough are returned unchanged.
func Demote(md string, top int) string {
	p := &markdown.Parser{
		Strikethrough: true,
		TaskList:      true,
		Table:         true,
	}
	doc := p.Parse(md)

	highest := 0
	for _, b := range doc.Blocks {
		if h, ok := b.(*markdown.Heading); ok && (highest == 0 || h.Level < highest) {
			highest = h.Level
		}
	}
	if highest == 0 || highest >= top {
		return ensureNewline(md)
	}

	shift := top - highest
	for _, b := range doc.Blocks {
		if h, ok := b.(*markdown.Heading); ok {
			h.Level = min(h.Level+shift, 6)
		}
	}
	return ensureNewline(markdown.Format(doc))
}

func ensureNewline(s string) string {
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s
}
