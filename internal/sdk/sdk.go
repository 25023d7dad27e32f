// Package sdk validates a Vulkan SDK installation and fetches the installer
// when none is present.
package sdk

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"

	"github.com/hashicorp/go-version"
)

var (
	ErrSDKNotFound     = errors.New("vulkan SDK not found")
	ErrSDKTooOld       = errors.New("vulkan SDK is too old")
	ErrRestartRequired = errors.New("restart your shell after the SDK installer finishes, then run setup again")
)

var versionDirRegex = regexp.MustCompile(`^\d+(\.\d+)+$`)

// headerCandidates are checked relative to the SDK root.
var headerCandidates = [][]string{
	{"Include", "vulkan", "vulkan.h"},
	{"include", "vulkan", "vulkan.h"},
}

// Installation describes a discovered SDK.
type Installation struct {
	Root string
	// Version is nil when no path element looks like a version.
	Version    *version.Version
	HasHeaders bool
}

// Validator checks an SDK root against a minimum version.
type Validator struct {
	minVersion string
}

// NewValidator creates a Validator. An empty minVersion disables the check.
func NewValidator(minVersion string) *Validator {
	return &Validator{minVersion: minVersion}
}

// Check inspects root, which may use forward slashes on any platform.
func (v *Validator) Check(root string) (Installation, error) {
	inst := Installation{Root: root}
	if root == "" {
		return inst, ErrSDKNotFound
	}

	info, err := os.Stat(filepath.FromSlash(root))
	if err != nil {
		return inst, fmt.Errorf("%w at %s: %v", ErrSDKNotFound, root, err)
	}
	if !info.IsDir() {
		return inst, fmt.Errorf("%w: %s is not a directory", ErrSDKNotFound, root)
	}

	inst.Version = DetectVersion(root)
	inst.HasHeaders = hasHeaders(root)

	if v.minVersion == "" || inst.Version == nil {
		return inst, nil
	}
	constraint, err := version.NewConstraint(">= " + v.minVersion)
	if err != nil {
		return inst, fmt.Errorf("invalid minimum SDK version %q: %w", v.minVersion, err)
	}
	if !constraint.Check(inst.Version) {
		return inst, fmt.Errorf("%w: found %s at %s, need %s or newer", ErrSDKTooOld, inst.Version, root, v.minVersion)
	}
	return inst, nil
}

// DetectVersion returns the version named by the nearest path element of
// root that looks like one (e.g. C:/VulkanSDK/1.3.250.1/Bin).
func DetectVersion(root string) *version.Version {
	p := path.Clean(filepath.ToSlash(root))
	for {
		base := path.Base(p)
		if versionDirRegex.MatchString(base) {
			if v, err := version.NewVersion(base); err == nil {
				return v
			}
		}
		parent := path.Dir(p)
		if parent == p || parent == "." {
			return nil
		}
		p = parent
	}
}

func hasHeaders(root string) bool {
	for _, parts := range headerCandidates {
		candidate := filepath.Join(append([]string{filepath.FromSlash(root)}, parts...)...)
		if _, err := os.Stat(candidate); err == nil {
			return true
		}
	}
	return false
}
