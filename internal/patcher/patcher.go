// Package patcher rewrites the line that follows a marker line in a text
// configuration file.
package patcher

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	xglog "github.com/sokinpui/envboot/internal/log"
	"github.com/sokinpui/envboot/model"
)

// Placeholder is substituted with the normalized path value in a template.
const Placeholder = "{path}"

var (
	ErrEmptyMarker         = errors.New("marker must not be empty")
	ErrMissingPlaceholder  = errors.New("template must contain " + Placeholder)
	ErrTemplateLooksMarker = errors.New("replacement line would be detected as a marker")
)

// Patcher replaces the line after every marker line with an instantiated
// template.
type Patcher struct {
	marker   string
	template string
}

// New validates marker and template and returns a Patcher.
func New(marker, template string) (*Patcher, error) {
	if strings.TrimSpace(marker) == "" {
		return nil, ErrEmptyMarker
	}
	if !strings.Contains(template, Placeholder) {
		return nil, fmt.Errorf("%w: %q", ErrMissingPlaceholder, template)
	}
	if strings.ContainsAny(template, "\r\n") {
		return nil, fmt.Errorf("template must be a single line: %q", template)
	}
	p := &Patcher{marker: marker, template: template}
	// An empty path is the worst case: it leaves only template text.
	if p.isMarker(p.Line("")) {
		return nil, fmt.Errorf("%w: template %q, marker %q", ErrTemplateLooksMarker, template, marker)
	}
	return p, nil
}

// NormalizePath converts backslashes to forward slashes and trims
// surrounding whitespace.
func NormalizePath(value string) string {
	return strings.TrimSpace(strings.ReplaceAll(value, `\`, "/"))
}

// Line returns the replacement line for pathValue, without a terminator.
func (p *Patcher) Line(pathValue string) string {
	return strings.ReplaceAll(p.template, Placeholder, NormalizePath(pathValue))
}

func (p *Patcher) isMarker(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), p.marker)
}

// Apply rewrites content in memory and reports how many lines were replaced.
// Lines keep their terminators; a replaced line takes the terminator of the
// line it replaces.
func (p *Patcher) Apply(content []byte, pathValue string) ([]byte, int) {
	replacement := p.Line(pathValue)

	var out bytes.Buffer
	out.Grow(len(content) + len(replacement))

	replaced := 0
	replaceNext := false
	for _, line := range SplitLines(content) {
		if replaceNext {
			out.WriteString(replacement)
			out.WriteString(terminator(line))
			replaced++
			replaceNext = false
		} else {
			out.WriteString(line)
		}
		if p.isMarker(line) {
			replaceNext = true
		}
	}
	return out.Bytes(), replaced
}

// PatchFile reads path, applies the patch and writes the result back,
// truncating the previous contents. With dryRun the file is left untouched.
func (p *Patcher) PatchFile(path, pathValue string, dryRun bool) (model.PatchResult, error) {
	logger := xglog.WithComponent("patcher")
	result := model.PatchResult{Path: path, Line: p.Line(pathValue)}
	if p.isMarker(result.Line) {
		return result, fmt.Errorf("%w: %q", ErrTemplateLooksMarker, result.Line)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return result, fmt.Errorf("read %s: %w", path, err)
	}

	patched, replaced := p.Apply(content, pathValue)
	result.Replaced = replaced
	result.Changed = !bytes.Equal(content, patched)

	logger.Debug().
		Str("path", path).
		Str("marker", p.marker).
		Int("replaced", replaced).
		Bool("changed", result.Changed).
		Msg("computed patch")

	if dryRun {
		return result, nil
	}

	// Existing files keep their permissions; the mode only applies on create.
	if err := os.WriteFile(path, patched, 0o644); err != nil {
		return result, fmt.Errorf("write %s: %w", path, err)
	}
	result.Written = true
	return result, nil
}

// SplitLines splits content into lines, keeping each line's terminator.
// The final element has no terminator if content does not end with one.
func SplitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	s := string(content)
	lines := make([]string, 0, strings.Count(s, "\n")+1)
	for len(s) > 0 {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:i+1])
		s = s[i+1:]
	}
	return lines
}

func terminator(line string) string {
	switch {
	case strings.HasSuffix(line, "\r\n"):
		return "\r\n"
	case strings.HasSuffix(line, "\n"):
		return "\n"
	default:
		return ""
	}
}
