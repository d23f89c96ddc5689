package orm

import (
	"fmt"

	"gorm.io/gorm/schema"
)

// naming derives table and column names the way gorm does for its own models,
// so schemas registered here line up with tables created by AutoMigrate.
var naming = schema.NamingStrategy{}

// SchemaOption customizes a schema declaration.
type SchemaOption func(*schemaSpec)

type schemaSpec struct {
	table string
}

// TableName overrides the table name derived from the entity name.
func TableName(name string) SchemaOption {
	return func(spec *schemaSpec) {
		spec.table = name
	}
}

// Schema is the registration of record type T: its persistable fields, primary
// key and navigation edges. Edges must be declared before the schema is passed
// to NewModel.
type Schema[T any] struct {
	name     string
	table    string
	fields   []Field[T]
	keys     []int
	edges    []edge
	problems []error
}

// NewSchema registers record type T under the entity name.
func NewSchema[T any](name string, fields []Field[T], opts ...SchemaOption) *Schema[T] {
	spec := schemaSpec{}
	for _, opt := range opts {
		opt(&spec)
	}
	if spec.table == "" {
		spec.table = naming.TableName(name)
	}

	s := &Schema[T]{
		name:   name,
		table:  spec.table,
		fields: make([]Field[T], len(fields)),
	}
	seen := make(map[string]struct{}, len(fields))
	for index, field := range fields {
		if field.column == "" {
			field.column = naming.ColumnName(spec.table, field.name)
		}
		if _, dup := seen[field.name]; dup {
			s.problems = append(s.problems, fmt.Errorf("duplicate field %s", field.name))
		}
		seen[field.name] = struct{}{}
		if field.primaryKey {
			s.keys = append(s.keys, index)
		}
		s.fields[index] = field
	}
	return s
}

// Name returns the entity name.
func (s *Schema[T]) Name() string {
	return s.name
}

// Fields returns the persistable fields in declaration order.
func (s *Schema[T]) Fields() []Field[T] {
	out := make([]Field[T], len(s.fields))
	copy(out, s.fields)
	return out
}

// TableInfo returns the storage mapping of the entity.
func (s *Schema[T]) TableInfo() Table {
	table := Table{
		Entity:  s.name,
		Name:    s.table,
		Columns: make([]string, 0, len(s.fields)),
		Keys:    make([]string, 0, len(s.keys)),
	}
	for _, field := range s.fields {
		table.Columns = append(table.Columns, field.column)
	}
	for _, index := range s.keys {
		table.Keys = append(table.Keys, s.fields[index].column)
	}
	return table
}

func (s *Schema[T]) fieldIndex(name string) int {
	for index, field := range s.fields {
		if field.name == name {
			return index
		}
	}
	return -1
}

func (s *Schema[T]) keyValues(record *T) []any {
	values := make([]any, len(s.keys))
	for position, index := range s.keys {
		values[position] = s.fields[index].get(record)
	}
	return values
}

func (s *Schema[T]) keyOf(record *T) string {
	return encodeKey(s.keyValues(record)...)
}

// projection returns the indexes of fields whose kind is in kinds.
func (s *Schema[T]) projection(kinds KindSet) []int {
	indexes := make([]int, 0, len(s.fields))
	for index, field := range s.fields {
		if kinds.Contains(field.kind) {
			indexes = append(indexes, index)
		}
	}
	return indexes
}

func (s *Schema[T]) clone(src *T, fields []int) *T {
	dst := new(T)
	for _, index := range fields {
		s.fields[index].copy(dst, src)
	}
	return dst
}

func (s *Schema[T]) encode(record *T, fields []int) Row {
	row := make(Row, len(fields))
	for _, index := range fields {
		field := s.fields[index]
		row[field.column] = field.get(record)
	}
	return row
}

func (s *Schema[T]) decode(row Row, fields []int) (*T, error) {
	record := new(T)
	for _, index := range fields {
		field := s.fields[index]
		raw, ok := row[field.column]
		if !ok {
			return nil, fmt.Errorf("column %s missing from row", field.column)
		}
		if raw == nil {
			continue
		}
		if err := field.set(record, raw); err != nil {
			return nil, err
		}
	}
	return record, nil
}

func (s *Schema[T]) describe() entityDescriptor {
	descriptor := entityDescriptor{
		name:     s.name,
		fields:   make([]fieldDescriptor, len(s.fields)),
		keys:     append([]int(nil), s.keys...),
		problems: append([]error(nil), s.problems...),
	}
	for index, field := range s.fields {
		descriptor.fields[index] = fieldDescriptor{
			name:       field.name,
			column:     field.column,
			kind:       field.kind,
			primaryKey: field.primaryKey,
			references: field.references,
		}
	}
	return descriptor
}

func (s *Schema[T]) declaredEdges() []edge {
	return append([]edge(nil), s.edges...)
}

func (s *Schema[T]) load(rows []Row, kinds KindSet) (set trackedSet, err error) {
	defer recoverDispatch(s.name, "decode", &err)

	fields := s.projection(kinds)
	records := make([]*T, 0, len(rows))
	for position, row := range rows {
		record, decodeErr := s.decode(row, fields)
		if decodeErr != nil {
			return nil, &InternalDispatchError{
				Entity:    s.name,
				Operation: "decode",
				Err:       fmt.Errorf("row %d: %w", position, decodeErr),
			}
		}
		records = append(records, record)
	}
	return NewSet(s, kinds, records), nil
}

// Entity is the type-erased view of a Schema used by Model and Context.
type Entity interface {
	Name() string
	TableInfo() Table
	describe() entityDescriptor
	declaredEdges() []edge
	load(rows []Row, kinds KindSet) (trackedSet, error)
}

type fieldDescriptor struct {
	name       string
	column     string
	kind       Kind
	primaryKey bool
	references string
}

type entityDescriptor struct {
	name     string
	fields   []fieldDescriptor
	keys     []int
	problems []error
}

func (d entityDescriptor) field(name string) (fieldDescriptor, bool) {
	for _, field := range d.fields {
		if field.name == name {
			return field, true
		}
	}
	return fieldDescriptor{}, false
}
