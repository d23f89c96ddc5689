package orm

// Tracker holds the snapshot baseline of one entity type together with the
// records staged for insertion and removal.
type Tracker[T any] struct {
	schema   *Schema[T]
	fields   []int
	snapshot []*T
	index    map[string]int
	added    []*T
	removed  []*T
}

// NewTracker clones the persistable fields of every initial record into the
// snapshot. Later changes to initial never reach the snapshot.
func NewTracker[T any](s *Schema[T], kinds KindSet, initial []*T) *Tracker[T] {
	t := &Tracker[T]{
		schema:   s,
		fields:   s.projection(kinds),
		snapshot: make([]*T, 0, len(initial)),
		index:    make(map[string]int, len(initial)),
	}
	for _, record := range initial {
		if record == nil {
			continue
		}
		clone := s.clone(record, t.fields)
		key := s.keyOf(clone)
		// first match wins on duplicate keys
		if _, exists := t.index[key]; !exists {
			t.index[key] = len(t.snapshot)
		}
		t.snapshot = append(t.snapshot, clone)
	}
	return t
}

// Add stages record for insertion on the next save.
func (t *Tracker[T]) Add(record *T) {
	if record == nil {
		return
	}
	t.added = append(t.added, record)
}

// Remove stages record for deletion on the next save.
func (t *Tracker[T]) Remove(record *T) {
	if record == nil {
		return
	}
	t.removed = append(t.removed, record)
}

// Added returns the records staged for insertion in staging order.
func (t *Tracker[T]) Added() []*T {
	return append([]*T(nil), t.added...)
}

// Removed returns the records staged for deletion in staging order.
func (t *Tracker[T]) Removed() []*T {
	return append([]*T(nil), t.removed...)
}

// Snapshot returns copies of the baseline records.
func (t *Tracker[T]) Snapshot() []T {
	out := make([]T, len(t.snapshot))
	for position, record := range t.snapshot {
		out[position] = *t.schema.clone(record, t.fields)
	}
	return out
}

// Modified returns the live records whose persistable fields differ from their
// snapshot counterpart. Records without a counterpart are new and never reported.
func (t *Tracker[T]) Modified(live []*T) []*T {
	var modified []*T
	for _, record := range live {
		if record == nil {
			continue
		}
		position, ok := t.index[t.schema.keyOf(record)]
		if !ok {
			continue
		}
		if t.differs(record, t.snapshot[position]) {
			modified = append(modified, record)
		}
	}
	return modified
}

func (t *Tracker[T]) differs(live, baseline *T) bool {
	for _, index := range t.fields {
		if !t.schema.fields[index].equal(live, baseline) {
			return true
		}
	}
	return false
}
