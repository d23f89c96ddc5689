package orm

import "fmt"

// Field is a persistable scalar field of record type T. The accessor it was
// built from is the only path used to decode, encode, clone and compare the
// field, so clone and diff always agree on the field set.
type Field[T any] struct {
	name       string
	column     string
	kind       Kind
	primaryKey bool
	references string

	get   func(*T) any
	set   func(*T, any) error
	copy  func(dst, src *T)
	equal func(left, right *T) bool
}

// FieldOption customizes a Column declaration.
type FieldOption func(*fieldSpec)

type fieldSpec struct {
	column     string
	primaryKey bool
	references string
}

// PrimaryKey marks the field as (part of) the record identity.
func PrimaryKey() FieldOption {
	return func(spec *fieldSpec) {
		spec.primaryKey = true
	}
}

// ForeignKey declares that the field holds the primary key of entity target.
func ForeignKey(target string) FieldOption {
	return func(spec *fieldSpec) {
		spec.references = target
	}
}

// ColumnName overrides the column name derived from the field name.
func ColumnName(column string) FieldOption {
	return func(spec *fieldSpec) {
		spec.column = column
	}
}

// Column declares a persistable field named name whose storage is reached
// through accessor.
func Column[T any, V Scalar](name string, accessor func(*T) *V, opts ...FieldOption) Field[T] {
	spec := fieldSpec{}
	for _, opt := range opts {
		opt(&spec)
	}
	return Field[T]{
		name:       name,
		column:     spec.column,
		kind:       kindOf[V](),
		primaryKey: spec.primaryKey,
		references: spec.references,
		get: func(record *T) any {
			return *accessor(record)
		},
		set: func(record *T, raw any) error {
			value, err := convertScalar[V](raw)
			if err != nil {
				return fmt.Errorf("field %s: %w", name, err)
			}
			*accessor(record) = value
			return nil
		},
		copy: func(dst, src *T) {
			*accessor(dst) = *accessor(src)
		},
		equal: func(left, right *T) bool {
			return equalScalar(*accessor(left), *accessor(right))
		},
	}
}

// Name returns the declared field name.
func (f Field[T]) Name() string {
	return f.name
}

// Column returns the storage column name.
func (f Field[T]) Column() string {
	return f.column
}

// Kind returns the scalar kind of the field.
func (f Field[T]) Kind() Kind {
	return f.kind
}

// IsPrimaryKey reports whether the field is part of the primary key.
func (f Field[T]) IsPrimaryKey() bool {
	return f.primaryKey
}

// References returns the entity the field points at, or "" when it is not a foreign key.
func (f Field[T]) References() string {
	return f.references
}
