// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package workflow talks to the GitHub Actions runner: workflow commands on
// standard output and the environment files for outputs and job summaries.
//
// See https://docs.github.com/actions/reference/workflow-commands-for-github-actions.
package workflow

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Commands writes workflow commands.
type Commands struct {
	mu     sync.Mutex
	w      io.Writer
	getenv func(string) string
}

// New returns Commands writing to w. Environment files are located with
// getenv.
func New(w io.Writer, getenv func(string) string) *Commands {
	return &Commands{w: w, getenv: getenv}
}

func (c *Commands) issue(name string, props map[string]string, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("::")
	sb.WriteString(name)
	first := true
	for _, k := range []string{"title", "file", "line", "name"} {
		v, ok := props[k]
		if !ok {
			continue
		}
		if first {
			sb.WriteByte(' ')
			first = false
		} else {
			sb.WriteByte(',')
		}
		sb.WriteString(k + "=" + escapeProperty(v))
	}
	sb.WriteString("::")
	sb.WriteString(escapeData(msg))
	sb.WriteByte('\n')
	io.WriteString(c.w, sb.String())
}

// AddMask makes the runner redact v from the log. Empty values are ignored.
func (c *Commands) AddMask(v string) {
	if v == "" {
		return
	}
	c.issue("add-mask", nil, v)
}

// Group starts a collapsible group of log lines.
func (c *Commands) Group(title string) { c.issue("group", nil, title) }

// EndGroup ends the current group.
func (c *Commands) EndGroup() { c.issue("endgroup", nil, "") }

// Error creates an error annotation.
func (c *Commands) Error(title, msg string) {
	c.issue("error", map[string]string{"title": title}, msg)
}

// Notice creates a notice annotation.
func (c *Commands) Notice(title, msg string) {
	c.issue("notice", map[string]string{"title": title}, msg)
}

// SetOutput sets a step output. It uses the file named by $GITHUB_OUTPUT and
// falls back to the set-output command when the variable is unset.
func (c *Commands) SetOutput(name, value string) error {
	path := c.getenv("GITHUB_OUTPUT")
	if path == "" {
		c.issue("set-output", map[string]string{"name": name}, value)
		return nil
	}
	msg, err := heredoc(name, value)
	if err != nil {
		return err
	}
	return c.appendFile(path, msg)
}

// AppendSummary appends Markdown to the job summary. It does nothing when
// $GITHUB_STEP_SUMMARY is unset.
func (c *Commands) AppendSummary(markdown string) error {
	path := c.getenv("GITHUB_STEP_SUMMARY")
	if path == "" {
		return nil
	}
	if !strings.HasSuffix(markdown, "\n") {
		markdown += "\n"
	}
	return c.appendFile(path, markdown)
}

func heredoc(name, value string) (string, error) {
	delim := "ghadelimiter_" + uuid.NewString()
	if strings.Contains(name, delim) || strings.Contains(value, delim) {
		return "", fmt.Errorf("output %q: value contains the delimiter %q", name, delim)
	}
	return name + "<<" + delim + "\n" + value + "\n" + delim + "\n", nil
}

func (c *Commands) appendFile(path, s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func escapeData(s string) string {
	return strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A").Replace(s)
}

func escapeProperty(s string) string {
	return strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A", ":", "%3A", ",", "%2C").Replace(s)
}
