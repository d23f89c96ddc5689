package orm

import "fmt"

// Cardinality tags a multi-valued navigation edge.
type Cardinality int

const (
	// OneToMany edges join element records on a single field pointing at the owner.
	OneToMany Cardinality = iota + 1
	// ManyToMany edges target a join record whose composite key references the owner.
	ManyToMany
)

func (c Cardinality) String() string {
	switch c {
	case OneToMany:
		return "one-to-many"
	case ManyToMany:
		return "many-to-many"
	default:
		return "unbound"
	}
}

type edge interface {
	// bind validates the edge against the model and returns a copy carrying
	// the join field. The declared edge is left untouched so a schema can be
	// registered with several models.
	bind(entities map[string]entityDescriptor) (edge, error)
	resolve(sets map[string]trackedSet) error
	relationship() Relationship
}

// Relationship describes a bound navigation edge.
type Relationship struct {
	Owner       string
	Navigation  string
	Target      string
	JoinField   string
	Multi       bool
	Cardinality Cardinality
}

type reference[T, U any] struct {
	from   *Schema[T]
	to     *Schema[U]
	field  string
	assign func(*T, *U)

	fieldIndex int
}

// BelongsTo declares a single-valued edge: field of owner holds the primary key
// of a target record, which is assigned through assign after loading.
func BelongsTo[T, U any](owner *Schema[T], field string, target *Schema[U], assign func(*T, *U)) {
	index := owner.fieldIndex(field)
	if index < 0 {
		owner.problems = append(owner.problems, fmt.Errorf("foreign key field %s is not declared", field))
		return
	}
	declared := owner.fields[index].references
	if declared != "" && declared != target.name {
		owner.problems = append(owner.problems,
			fmt.Errorf("field %s references %s but navigates to %s", field, declared, target.name))
		return
	}
	owner.fields[index].references = target.name
	owner.edges = append(owner.edges, &reference[T, U]{
		from:       owner,
		to:         target,
		field:      field,
		assign:     assign,
		fieldIndex: index,
	})
}

func (r *reference[T, U]) bind(entities map[string]entityDescriptor) (edge, error) {
	target, ok := entities[r.to.name]
	if !ok {
		return nil, newConfigurationError(r.from.name, "field %s references unregistered entity %s", r.field, r.to.name)
	}
	if len(target.keys) != 1 {
		return nil, newConfigurationError(r.from.name, "field %s references %s which has %d key fields", r.field, r.to.name, len(target.keys))
	}
	field, _ := entities[r.from.name].field(r.field)
	if key := target.fields[target.keys[0]]; key.kind != field.kind {
		return nil, newConfigurationError(r.from.name, "field %s is %s but %s key %s is %s", r.field, field.kind, r.to.name, key.name, key.kind)
	}
	bound := *r
	return &bound, nil
}

func (r *reference[T, U]) resolve(sets map[string]trackedSet) error {
	source, err := setFor(sets, r.from)
	if err != nil {
		return err
	}
	destination, err := setFor(sets, r.to)
	if err != nil {
		return err
	}

	index := make(map[string]*U, len(destination.live))
	for _, record := range destination.live {
		key := destination.schema.keyOf(record)
		if _, exists := index[key]; !exists {
			index[key] = record
		}
	}

	field := r.from.fields[r.fieldIndex]
	for _, record := range source.live {
		value := field.get(record)
		match, ok := index[encodeKey(value)]
		if !ok {
			return &ReferenceResolutionError{
				Entity: r.from.name,
				Field:  r.field,
				Target: r.to.name,
				Key:    value,
			}
		}
		r.assign(record, match)
	}
	return nil
}

type collection[T, U any] struct {
	from       *Schema[T]
	to         *Schema[U]
	navigation string
	assign     func(*T, []*U)
	joinField  string

	cardinality Cardinality
	joinIndex   int
}

// EdgeOption customizes a HasMany declaration.
type EdgeOption func(*edgeSpec)

type edgeSpec struct {
	joinField string
}

// JoinOn names the target field holding the owner key. It is required when
// more than one target field references the owner.
func JoinOn(field string) EdgeOption {
	return func(spec *edgeSpec) {
		spec.joinField = field
	}
}

// HasMany declares a multi-valued edge named navigation from owner to target.
// A target with a single key field is one-to-many; a target with a composite
// key is a join record and the edge is many-to-many.
func HasMany[T, U any](owner *Schema[T], navigation string, target *Schema[U], assign func(*T, []*U), opts ...EdgeOption) {
	spec := edgeSpec{}
	for _, opt := range opts {
		opt(&spec)
	}
	owner.edges = append(owner.edges, &collection[T, U]{
		from:       owner,
		to:         target,
		navigation: navigation,
		assign:     assign,
		joinField:  spec.joinField,
		joinIndex:  -1,
	})
}

func (c *collection[T, U]) bind(entities map[string]entityDescriptor) (edge, error) {
	owner := entities[c.from.name]
	target, ok := entities[c.to.name]
	if !ok {
		return nil, newConfigurationError(c.from.name, "collection %s targets unregistered entity %s", c.navigation, c.to.name)
	}
	if len(owner.keys) != 1 {
		return nil, newConfigurationError(c.from.name, "collection %s requires a single key on its owner", c.navigation)
	}
	if len(target.keys) == 0 {
		return nil, newConfigurationError(c.from.name, "collection %s targets %s which has no key", c.navigation, c.to.name)
	}

	bound := *c
	bound.joinIndex = -1
	bound.cardinality = OneToMany
	candidates := make([]int, 0, len(target.fields))
	for index := range target.fields {
		candidates = append(candidates, index)
	}
	if len(target.keys) > 1 {
		bound.cardinality = ManyToMany
		candidates = target.keys
	}

	if c.joinField != "" {
		for _, index := range candidates {
			if target.fields[index].name == c.joinField {
				bound.joinIndex = index
				break
			}
		}
		if bound.joinIndex < 0 {
			return nil, newConfigurationError(c.from.name, "collection %s joins on %s which is not a %s field of %s",
				c.navigation, c.joinField, candidateRole(bound.cardinality), c.to.name)
		}
		if references := target.fields[bound.joinIndex].references; references != "" && references != c.from.name {
			return nil, newConfigurationError(c.from.name, "collection %s joins on %s.%s which references %s",
				c.navigation, c.to.name, c.joinField, references)
		}
	} else {
		var referencing []string
		for _, index := range candidates {
			if target.fields[index].references == c.from.name {
				if bound.joinIndex < 0 {
					bound.joinIndex = index
				}
				referencing = append(referencing, target.fields[index].name)
			}
		}
		switch {
		case len(referencing) > 1:
			return nil, newConfigurationError(c.from.name, "collection %s is ambiguous: %s fields %v all reference %s, name one with JoinOn",
				c.navigation, c.to.name, referencing, c.from.name)
		case bound.joinIndex >= 0:
		case bound.cardinality == OneToMany:
			bound.joinIndex = target.keys[0]
		default:
			return nil, newConfigurationError(c.from.name,
				"collection %s targets join record %s with no key field referencing %s", c.navigation, c.to.name, c.from.name)
		}
	}

	ownerKey := owner.fields[owner.keys[0]]
	if join := target.fields[bound.joinIndex]; join.kind != ownerKey.kind {
		return nil, newConfigurationError(c.from.name, "collection %s joins on %s.%s (%s) but the owner key is %s",
			c.navigation, c.to.name, join.name, join.kind, ownerKey.kind)
	}
	return &bound, nil
}

func candidateRole(cardinality Cardinality) string {
	if cardinality == ManyToMany {
		return "key"
	}
	return "declared"
}

func (c *collection[T, U]) resolve(sets map[string]trackedSet) error {
	owners, err := setFor(sets, c.from)
	if err != nil {
		return err
	}
	elements, err := setFor(sets, c.to)
	if err != nil {
		return err
	}
	if c.joinIndex < 0 {
		return &InternalDispatchError{Entity: c.from.name, Operation: "resolve", Err: fmt.Errorf("collection %s is not bound", c.navigation)}
	}

	join := c.to.fields[c.joinIndex]
	groups := make(map[string][]*U)
	for _, record := range elements.live {
		key := encodeKey(join.get(record))
		groups[key] = append(groups[key], record)
	}

	for _, record := range owners.live {
		members := groups[owners.schema.keyOf(record)]
		c.assign(record, append(make([]*U, 0, len(members)), members...))
	}
	return nil
}

func (c *collection[T, U]) relationship() Relationship {
	relationship := Relationship{
		Owner:       c.from.name,
		Navigation:  c.navigation,
		Target:      c.to.name,
		Multi:       true,
		Cardinality: c.cardinality,
	}
	if c.joinIndex >= 0 {
		relationship.JoinField = c.to.fields[c.joinIndex].name
	}
	return relationship
}

func (r *reference[T, U]) relationship() Relationship {
	return Relationship{
		Owner:      r.from.name,
		Navigation: r.field,
		Target:     r.to.name,
		JoinField:  r.field,
	}
}

func setFor[T any](sets map[string]trackedSet, s *Schema[T]) (*Set[T], error) {
	erased, ok := sets[s.name]
	if !ok {
		return nil, &InternalDispatchError{Entity: s.name, Operation: "lookup", Err: ErrUnknownEntity}
	}
	typed, ok := erased.(*Set[T])
	if !ok {
		return nil, &InternalDispatchError{Entity: s.name, Operation: "lookup", Err: fmt.Errorf("set holds %T", erased)}
	}
	return typed, nil
}
