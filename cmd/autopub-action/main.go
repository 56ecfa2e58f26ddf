// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"go.astrophena.name/autopub-action/internal/runner"
	"go.astrophena.name/autopub-action/internal/workflow"

	"go.astrophena.name/base/cli"
)

func main() { cli.Main(new(app)) }

type app struct {
	dir string
}

func (a *app) Flags(fs *flag.FlagSet) {
	fs.StringVar(&a.dir, "C", "", "Run in `dir` instead of the current directory.")
}

func (a *app) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)
	return a.run(ctx, env.Args, env.Getenv, env.Stdout)
}

func (a *app) run(ctx context.Context, args []string, getenv func(string) string, stdout io.Writer) error {
	if len(args) > 1 {
		return fmt.Errorf("%w: want at most one command", cli.ErrInvalidArgs)
	}
	var command string
	if len(args) == 1 {
		command = args[0]
	}

	err := runner.Run(ctx, &runner.Config{
		Dir:     a.dir,
		Command: command,
		Getenv:  getenv,
		Stdout:  stdout,
	})
	if err != nil {
		workflow.New(stdout, getenv).Error("autopub", err.Error())
	}
	return err
}
