// Package depsync runs the command that brings vendored source modules up to
// date.
package depsync

import (
	"context"
	"fmt"
	"io"
	"strings"

	xglog "github.com/sokinpui/envboot/internal/log"
	"github.com/sokinpui/envboot/internal/runner"
)

// ExitError reports a sync command that ran but failed.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("`%s` exited with status %d", e.Command, e.Code)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

// Syncer runs a fixed command in a fixed directory.
type Syncer struct {
	command []string
	dir     string
	runner  runner.Runner
}

// New creates a Syncer. An empty command makes Sync a no-op.
func New(command []string, dir string, r runner.Runner) *Syncer {
	return &Syncer{command: command, dir: dir, runner: r}
}

// Enabled reports whether there is a command to run.
func (s *Syncer) Enabled() bool {
	return len(s.command) > 0
}

// String returns the command line.
func (s *Syncer) String() string {
	return strings.Join(s.command, " ")
}

// Sync runs the command, streaming its output to out.
func (s *Syncer) Sync(ctx context.Context, out io.Writer) error {
	if !s.Enabled() {
		return nil
	}
	logger := xglog.WithComponent("depsync")

	cmd := runner.Command{
		Name:   s.command[0],
		Args:   s.command[1:],
		Dir:    s.dir,
		Stdout: out,
		Stderr: out,
	}
	logger.Debug().Str("command", cmd.String()).Str("dir", s.dir).Msg("running sync")

	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &ExitError{Command: cmd.String(), Code: res.ExitCode, Stderr: res.Stderr}
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
