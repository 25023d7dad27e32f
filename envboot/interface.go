package envboot

import (
	"github.com/sokinpui/envboot/internal/config"
	"github.com/sokinpui/envboot/internal/patcher"
	"github.com/sokinpui/envboot/model"
)

// Config for using envboot as a library.
type Config struct {
	// Marker identifies the line before the one to replace. Defaults to "## __Vulkan".
	Marker string
	// Template is the replacement line; "{path}" is substituted.
	Template string
	// Compute the result without writing the file.
	DryRun bool
}

// PatchFile replaces the line after every marker in path with the template
// instantiated for pathValue. The path value is normalized to forward
// slashes first.
func PatchFile(path, pathValue string, cfg Config) (model.PatchResult, error) {
	p, err := patcher.New(withDefault(cfg.Marker, defaults.CMake.Marker), withDefault(cfg.Template, defaults.CMake.Template))
	if err != nil {
		return model.PatchResult{Path: path}, err
	}
	return p.PatchFile(path, patcher.NormalizePath(pathValue), cfg.DryRun)
}

var defaults = config.Default()

func withDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
