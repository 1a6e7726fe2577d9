package conductor

import (
	"fmt"
	"slices"
	"strings"
)

// visit marks for the depth-first traversal
const (
	markUnvisited = iota
	markInProgress
	markDone
)

// BuildSequence computes the startup order for the given descriptors using a
// depth-first topological sort. Every component is placed after all of its
// dependencies. Traversal follows registration order, and dependencies are
// visited in declared order, so the resulting sequence is deterministic for
// a given registration order.
//
// Validation is fail-fast and touches no component state: an unregistered
// dependency or a dependency cycle aborts the build before any component has
// been started. A cycle error names every component on the cycle path.
func BuildSequence(descriptors []*Descriptor) ([]string, error) {
	index := make(map[string]*Descriptor, len(descriptors))
	for _, d := range descriptors {
		index[d.Name] = d
	}

	marks := make(map[string]int, len(descriptors))
	var stack []string
	result := make([]string, 0, len(descriptors))

	var visit func(d *Descriptor) error
	visit = func(d *Descriptor) error {
		switch marks[d.Name] {
		case markDone:
			return nil
		case markInProgress:
			// Revisiting an in-progress node means the stack from its
			// first occurrence onward is the cycle.
			start := slices.Index(stack, d.Name)
			cycle := append(slices.Clone(stack[start:]), d.Name)
			return fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(cycle, " -> "))
		}

		marks[d.Name] = markInProgress
		stack = append(stack, d.Name)

		for _, dep := range d.Dependencies {
			depDescriptor, exists := index[dep]
			if !exists {
				return fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, d.Name, dep)
			}
			if err := visit(depDescriptor); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		marks[d.Name] = markDone
		result = append(result, d.Name)
		return nil
	}

	for _, d := range descriptors {
		if err := visit(d); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// ShutdownSequence derives the shutdown order from a startup sequence. It is
// always the exact reverse of the startup order and is never computed
// independently.
func ShutdownSequence(startup []string) []string {
	shutdown := slices.Clone(startup)
	slices.Reverse(shutdown)
	return shutdown
}
