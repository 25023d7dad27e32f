// Package pkgcheck verifies that the Python interpreter and the modules the
// build scripts import are available, and installs missing modules with pip.
package pkgcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/hashicorp/go-version"

	xglog "github.com/sokinpui/envboot/internal/log"
	"github.com/sokinpui/envboot/internal/runner"
)

var (
	ErrPythonNotFound  = errors.New("python interpreter not found")
	ErrPythonTooOld    = errors.New("python interpreter is too old")
	ErrMissingPackages = errors.New("required python modules are missing")
)

var pythonVersionRegex = regexp.MustCompile(`Python\s+(\d+(?:\.\d+)*)`)

// Checker runs the interpreter to check for modules.
type Checker struct {
	interpreter string
	minVersion  string
	runner      runner.Runner
}

// New creates a Checker. An empty minVersion disables the version check.
func New(interpreter, minVersion string, r runner.Runner) *Checker {
	return &Checker{interpreter: interpreter, minVersion: minVersion, runner: r}
}

// CheckInterpreter returns the interpreter version and verifies it against
// the configured minimum.
func (c *Checker) CheckInterpreter(ctx context.Context) (*version.Version, error) {
	res, err := c.runner.Run(ctx, runner.Command{Name: c.interpreter, Args: []string{"--version"}})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPythonNotFound, err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("%w: `%s --version` exited with status %d", ErrPythonNotFound, c.interpreter, res.ExitCode)
	}

	// Python 2 prints its version on stderr.
	match := pythonVersionRegex.FindStringSubmatch(res.Stdout + res.Stderr)
	if match == nil {
		return nil, fmt.Errorf("could not parse python version from %q", strings.TrimSpace(res.Stdout+res.Stderr))
	}
	v, err := version.NewVersion(match[1])
	if err != nil {
		return nil, fmt.Errorf("could not parse python version %q: %w", match[1], err)
	}

	if c.minVersion == "" {
		return v, nil
	}
	constraint, err := version.NewConstraint(">= " + c.minVersion)
	if err != nil {
		return v, fmt.Errorf("invalid minimum python version %q: %w", c.minVersion, err)
	}
	if !constraint.Check(v) {
		return v, fmt.Errorf("%w: found %s, need %s or newer", ErrPythonTooOld, v, c.minVersion)
	}
	return v, nil
}

// Missing returns the modules that fail to import, in input order.
func (c *Checker) Missing(ctx context.Context, modules []string) ([]string, error) {
	logger := xglog.WithComponent("pkgcheck")

	var missing []string
	for _, module := range modules {
		res, err := c.runner.Run(ctx, runner.Command{
			Name: c.interpreter,
			Args: []string{"-c", "import " + module},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPythonNotFound, err)
		}
		logger.Debug().Str("module", module).Int("exit", res.ExitCode).Msg("checked module")
		if res.ExitCode != 0 {
			missing = append(missing, module)
		}
	}
	return missing, nil
}

// Install runs pip for the given modules, streaming its output to out.
func (c *Checker) Install(ctx context.Context, modules []string, out io.Writer) error {
	if len(modules) == 0 {
		return nil
	}
	args := append([]string{"-m", "pip", "install"}, modules...)
	res, err := c.runner.Run(ctx, runner.Command{
		Name:   c.interpreter,
		Args:   args,
		Stdout: out,
		Stderr: out,
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("pip install %s exited with status %d: %s",
			strings.Join(modules, " "), res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// MissingError wraps ErrMissingPackages with the module names.
func MissingError(modules []string) error {
	return fmt.Errorf("%w: %s", ErrMissingPackages, strings.Join(modules, ", "))
}
