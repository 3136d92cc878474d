package eventlog

import (
	"fmt"

	"github.com/gobwas/glob"
)

// GlobFilter selects log entries by resource id.
// Patterns use '/' as separator: '*' stays within one path segment, '**'
// spans segments.
type GlobFilter struct {
	include []glob.Glob
	exclude []glob.Glob
}

// NewGlobFilter creates a filter. An empty include list matches every
// resource; exclude patterns win over include patterns.
func NewGlobFilter(include, exclude []string) (*GlobFilter, error) {
	inc, err := compileAll(include)
	if err != nil {
		return nil, fmt.Errorf("invalid include pattern: %w", err)
	}
	exc, err := compileAll(exclude)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %w", err)
	}
	return &GlobFilter{include: inc, exclude: exc}, nil
}

func compileAll(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("%q: %w", pattern, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// Match returns true if entries for the resource should be converged
func (f *GlobFilter) Match(resourceID string) bool {
	for _, g := range f.exclude {
		if g.Match(resourceID) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, g := range f.include {
		if g.Match(resourceID) {
			return true
		}
	}
	return false
}
