package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"
)

var moduleNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Validate checks cfg and returns an error describing every invalid value
// found, or nil if all values are valid.
func Validate(cfg Config) error {
	var errs []string

	if strings.TrimSpace(cfg.CMake.File) == "" {
		errs = append(errs, "cmake.file: must not be empty")
	}
	if strings.TrimSpace(cfg.CMake.Marker) == "" {
		errs = append(errs, "cmake.marker: must not be empty")
	}
	if !strings.Contains(cfg.CMake.Template, "{path}") {
		errs = append(errs, fmt.Sprintf("cmake.template: must contain {path}, got %q", cfg.CMake.Template))
	}

	if strings.TrimSpace(cfg.SDK.Env) == "" {
		errs = append(errs, "sdk.env: must not be empty")
	}
	for key, v := range map[string]string{
		"sdk.min_version":    cfg.SDK.MinVersion,
		"sdk.version":        cfg.SDK.Version,
		"python.min_version": cfg.Python.MinVersion,
	} {
		if v == "" {
			continue
		}
		if _, err := version.NewVersion(v); err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid version %q", key, v))
		}
	}
	switch cfg.SDK.Missing {
	case MissingFail, MissingPlaceholder:
	default:
		errs = append(errs, fmt.Sprintf("sdk.missing: invalid value %q (allowed: %s, %s)",
			cfg.SDK.Missing, MissingFail, MissingPlaceholder))
	}

	if strings.TrimSpace(cfg.Python.Interpreter) == "" {
		errs = append(errs, "python.interpreter: must not be empty")
	}
	for _, pkg := range cfg.Python.Packages {
		if !moduleNameRegex.MatchString(pkg) {
			errs = append(errs, fmt.Sprintf("python.packages: invalid module name %q", pkg))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	// Map iteration above is unordered.
	sort.Strings(errs)
	return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
}
