package orm

import (
	"errors"
	"fmt"
	"sort"
)

// Model is the validated set of entity registrations a Context loads.
// Entities load and persist in registration order.
type Model struct {
	kinds    KindSet
	entities []Entity
	byName   map[string]Entity
	edges    []edge
}

// NewModel validates the registrations and binds every navigation edge.
// kinds is the scalar set trackers clone and compare.
func NewModel(kinds KindSet, entities ...Entity) (*Model, error) {
	if len(kinds) == 0 {
		return nil, newConfigurationError("", "scalar kind set is empty")
	}
	if len(entities) == 0 {
		return nil, newConfigurationError("", "no entities registered")
	}

	m := &Model{
		kinds:    kinds,
		entities: make([]Entity, 0, len(entities)),
		byName:   make(map[string]Entity, len(entities)),
	}
	descriptors := make(map[string]entityDescriptor, len(entities))
	for _, entity := range entities {
		descriptor := entity.describe()
		if _, dup := m.byName[descriptor.name]; dup {
			return nil, newConfigurationError(descriptor.name, "registered twice")
		}
		if err := checkDescriptor(descriptor, kinds); err != nil {
			return nil, err
		}
		m.entities = append(m.entities, entity)
		m.byName[descriptor.name] = entity
		descriptors[descriptor.name] = descriptor
	}

	for _, entity := range m.entities {
		for _, field := range descriptors[entity.Name()].fields {
			if field.references == "" {
				continue
			}
			if _, ok := descriptors[field.references]; !ok {
				return nil, newConfigurationError(entity.Name(), "field %s references unregistered entity %s", field.name, field.references)
			}
		}
		for _, e := range entity.declaredEdges() {
			bound, err := e.bind(descriptors)
			if err != nil {
				return nil, err
			}
			m.edges = append(m.edges, bound)
		}
	}

	if err := checkReferenceCycles(m.entities, descriptors); err != nil {
		return nil, err
	}
	return m, nil
}

// Kinds returns the scalar kind set of the model.
func (m *Model) Kinds() KindSet {
	return m.kinds
}

// Entities returns the registered entity names in registration order.
func (m *Model) Entities() []string {
	names := make([]string, len(m.entities))
	for index, entity := range m.entities {
		names[index] = entity.Name()
	}
	return names
}

// Relationships lists the bound navigation edges.
func (m *Model) Relationships() []Relationship {
	relationships := make([]Relationship, len(m.edges))
	for index, e := range m.edges {
		relationships[index] = e.relationship()
	}
	return relationships
}

func checkDescriptor(descriptor entityDescriptor, kinds KindSet) error {
	if descriptor.name == "" {
		return newConfigurationError("", "entity name is empty")
	}
	if len(descriptor.problems) > 0 {
		return newConfigurationError(descriptor.name, "%v", errors.Join(descriptor.problems...))
	}
	if len(descriptor.keys) == 0 {
		return newConfigurationError(descriptor.name, "no primary key field")
	}
	for _, field := range descriptor.fields {
		if !kinds.Contains(field.kind) {
			return newConfigurationError(descriptor.name, "field %s has disallowed kind %s", field.name, field.kind)
		}
	}
	for _, index := range descriptor.keys {
		key := descriptor.fields[index]
		if key.kind == KindDecimal {
			return newConfigurationError(descriptor.name, "key field %s cannot be decimal", key.name)
		}
	}
	return nil
}

// checkReferenceCycles rejects foreign keys between distinct entities that
// form a cycle. Self references are allowed.
func checkReferenceCycles(entities []Entity, descriptors map[string]entityDescriptor) error {
	position := make(map[string]int, len(entities))
	for index, entity := range entities {
		position[entity.Name()] = index
	}

	deps := make([][]int, len(entities))
	for index, entity := range entities {
		seen := map[int]struct{}{}
		for _, field := range descriptors[entity.Name()].fields {
			target, ok := position[field.references]
			if !ok || target == index {
				continue
			}
			if _, dup := seen[target]; dup {
				continue
			}
			seen[target] = struct{}{}
			deps[index] = append(deps[index], target)
		}
	}

	order, err := dependencyOrder(len(entities), func(i int) []int { return deps[i] })
	if err != nil {
		var cyclic []string
		placed := make(map[int]struct{}, len(order))
		for _, index := range order {
			placed[index] = struct{}{}
		}
		for index, entity := range entities {
			if _, ok := placed[index]; !ok {
				cyclic = append(cyclic, entity.Name())
			}
		}
		return newConfigurationError("", "foreign keys form a cycle between %v", cyclic)
	}
	return nil
}

// dependencyOrder returns indices so that every node follows its dependencies.
// Ties resolve to the smallest index. On a cycle it returns the partial order
// and an error.
func dependencyOrder(n int, depsFn func(i int) []int) ([]int, error) {
	indeg := make([]int, n)
	out := make([][]int, n)
	for i := range n {
		for _, d := range depsFn(i) {
			if d < 0 || d >= n {
				return nil, fmt.Errorf("dependency index out of range: %d depends on %d", i, d)
			}
			indeg[i]++
			out[d] = append(out[d], i)
		}
	}

	var ready []int
	for i := range n {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, n)
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		order = append(order, i)
		for _, j := range out[i] {
			indeg[j]--
			if indeg[j] == 0 {
				k := sort.SearchInts(ready, j)
				ready = append(ready, 0)
				copy(ready[k+1:], ready[k:])
				ready[k] = j
			}
		}
	}

	if len(order) != n {
		return order, errors.New("cycle detected")
	}
	return order, nil
}
