package source

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sokinpui/envboot/internal/config"
	"github.com/sokinpui/envboot/internal/patcher"
)

// Fallback is written in place of a missing path under the placeholder policy.
const Fallback = "None"

// Where a resolved value came from.
const (
	OriginFlag        = "flag"
	OriginEnv         = "env"
	OriginPlaceholder = "placeholder"
)

// ErrMissingPath is returned when no path value is available under the fail policy.
var ErrMissingPath = errors.New("missing required configuration")

// Value is a resolved path value.
type Value struct {
	Raw        string
	Normalized string
	Origin     string
}

// PathSource determines and retrieves the SDK path value.
type PathSource struct {
	explicit string
	envVar   string
	policy   string
	lookup   func(string) (string, bool)
}

// New creates a PathSource. explicit takes precedence over the environment
// variable when non-empty. A nil lookup reads the process environment.
func New(explicit, envVar, policy string, lookup func(string) (string, bool)) *PathSource {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &PathSource{explicit: explicit, envVar: envVar, policy: policy, lookup: lookup}
}

// Resolve retrieves the path value from the explicit value or the
// environment, applying the missing-value policy.
func (ps *PathSource) Resolve() (Value, error) {
	if strings.TrimSpace(ps.explicit) != "" {
		return newValue(ps.explicit, OriginFlag), nil
	}

	if raw, ok := ps.lookup(ps.envVar); ok && strings.TrimSpace(raw) != "" {
		return newValue(raw, OriginEnv), nil
	}

	if ps.policy == config.MissingPlaceholder {
		return newValue(Fallback, OriginPlaceholder), nil
	}
	return Value{}, fmt.Errorf("%w: environment variable %s is not set", ErrMissingPath, ps.envVar)
}

func newValue(raw, origin string) Value {
	return Value{Raw: raw, Normalized: patcher.NormalizePath(raw), Origin: origin}
}
