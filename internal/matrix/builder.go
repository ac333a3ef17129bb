// Package matrix expands a brand list, question list, and platform list into
// the deduplicated, deterministically ordered task list the engine executes.
package matrix

import (
	"fmt"
	"sort"

	"github.com/brandlens/brandlens/internal/task"
)

// ValidationError reports malformed builder input. It is returned before any
// dispatch happens, so the caller can correct the request and retry.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

type Builder struct {
	known map[string]bool
}

// NewBuilder creates a builder that accepts only the given platform
// identifiers.
func NewBuilder(platforms []string) *Builder {
	known := make(map[string]bool, len(platforms))
	for _, p := range platforms {
		known[p] = true
	}

	return &Builder{known: known}
}

// Build expands brands x questions x platforms into tasks. Identical
// (brand, question, platform) triples collapse to one task. Output order is
// brand-major, then question, then platform, so identical inputs always
// produce an identical task list.
func (b *Builder) Build(brands, questions, platforms []string) ([]*task.Task, error) {
	if len(brands) == 0 {
		return nil, &ValidationError{Field: "brands", Message: "at least one brand is required"}
	}
	if len(questions) == 0 {
		return nil, &ValidationError{Field: "questions", Message: "at least one question is required"}
	}
	if len(platforms) == 0 {
		return nil, &ValidationError{Field: "platforms", Message: "at least one platform is required"}
	}
	for _, p := range platforms {
		if !b.known[p] {
			return nil, &ValidationError{Field: "platforms", Message: fmt.Sprintf("unknown platform %q", p)}
		}
	}

	brands = dedupe(brands)
	questions = dedupe(questions)
	platforms = dedupe(platforms)
	sort.Strings(brands)
	sort.Strings(questions)
	sort.Strings(platforms)

	tasks := make([]*task.Task, 0, len(brands)*len(questions)*len(platforms))
	for _, brand := range brands {
		for _, question := range questions {
			for _, platform := range platforms {
				tasks = append(tasks, task.NewTask(brand, question, platform))
			}
		}
	}

	return tasks, nil
}

// dedupe removes duplicates while keeping input order.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}

	return out
}
