// Package runnertest provides a scripted runner.Runner for tests.
package runnertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/sokinpui/envboot/internal/runner"
)

// Fake answers commands from a table keyed by the command line
// (runner.Command.String). Unknown commands fail to start.
type Fake struct {
	mu        sync.Mutex
	Responses map[string]runner.Result
	Errors    map[string]error
	Calls     []runner.Command
	// OnRun, when set, is invoked for every command before the table lookup.
	OnRun func(runner.Command)
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		Responses: map[string]runner.Result{},
		Errors:    map[string]error{},
	}
}

// Set registers the result returned for the given command line.
func (f *Fake) Set(commandLine string, res runner.Result) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses[commandLine] = res
	return f
}

func (f *Fake) Run(_ context.Context, cmd runner.Command) (runner.Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, cmd)
	onRun := f.OnRun
	res, ok := f.Responses[cmd.String()]
	err := f.Errors[cmd.String()]
	f.mu.Unlock()

	if onRun != nil {
		onRun(cmd)
	}
	if err != nil {
		return runner.Result{}, err
	}
	if !ok {
		return runner.Result{}, fmt.Errorf("failed to start `%s`: executable file not found", cmd)
	}
	if cmd.Stdout != nil && res.Stdout != "" {
		fmt.Fprint(cmd.Stdout, res.Stdout)
	}
	if cmd.Stderr != nil && res.Stderr != "" {
		fmt.Fprint(cmd.Stderr, res.Stderr)
	}
	return res, nil
}

// CommandLines returns the command lines run so far, in order.
func (f *Fake) CommandLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		lines[i] = c.String()
	}
	return lines
}
