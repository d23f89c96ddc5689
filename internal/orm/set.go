package orm

// Set is the live collection of one entity type plus the tracker that records
// how it diverged from storage.
type Set[T any] struct {
	schema  *Schema[T]
	tracker *Tracker[T]
	live    []*T
}

// NewSet builds a tracked set. Both the live records and the snapshot are
// clones of initial, independent of the caller's pointers.
func NewSet[T any](s *Schema[T], kinds KindSet, initial []*T) *Set[T] {
	tracker := NewTracker(s, kinds, initial)
	live := make([]*T, 0, len(initial))
	for _, record := range initial {
		if record == nil {
			continue
		}
		live = append(live, s.clone(record, tracker.fields))
	}
	return &Set[T]{schema: s, tracker: tracker, live: live}
}

// Items returns the live records. Edits through the returned pointers are
// picked up by the next save.
func (s *Set[T]) Items() []*T {
	return append([]*T(nil), s.live...)
}

// Len returns the number of live records.
func (s *Set[T]) Len() int {
	return len(s.live)
}

// Find returns the live record whose primary key equals key.
func (s *Set[T]) Find(key ...any) (*T, bool) {
	wanted := encodeKey(key...)
	for _, record := range s.live {
		if s.schema.keyOf(record) == wanted {
			return record, true
		}
	}
	return nil, false
}

// Add places record in the live collection and stages it for insertion.
func (s *Set[T]) Add(record *T) {
	if record == nil {
		return
	}
	s.live = append(s.live, record)
	s.tracker.Add(record)
}

// Remove drops record from the live collection and stages it for deletion.
func (s *Set[T]) Remove(record *T) {
	if record == nil {
		return
	}
	for position, candidate := range s.live {
		if candidate == record {
			s.live = append(s.live[:position], s.live[position+1:]...)
			break
		}
	}
	s.tracker.Remove(record)
}

// Modified returns the live records that differ from the snapshot.
func (s *Set[T]) Modified() []*T {
	return s.tracker.Modified(s.live)
}

// Tracker exposes the underlying change tracker.
func (s *Set[T]) Tracker() *Tracker[T] {
	return s.tracker
}

// ChangeCount summarizes the pending changes of one entity type.
type ChangeCount struct {
	Entity   string
	Added    int
	Modified int
	Removed  int
}

// Empty reports whether nothing is pending.
func (c ChangeCount) Empty() bool {
	return c.Added == 0 && c.Modified == 0 && c.Removed == 0
}

type batchPlan struct {
	table   Table
	inserts []Row
	updates []Row
	deletes []Row
}

func (p batchPlan) empty() bool {
	return len(p.inserts) == 0 && len(p.updates) == 0 && len(p.deletes) == 0
}

type trackedSet interface {
	size() int
	validate(validator Validator) []error
	plan() (batchPlan, error)
	changes() ChangeCount
}

func (s *Set[T]) size() int {
	return len(s.live)
}

func (s *Set[T]) validate(validator Validator) []error {
	var causes []error
	for _, record := range s.live {
		if err := validator.Validate(record); err != nil {
			causes = append(causes, err)
		}
	}
	return causes
}

func (s *Set[T]) plan() (plan batchPlan, err error) {
	defer recoverDispatch(s.schema.name, "encode", &err)

	fields := s.tracker.fields
	plan.table = s.schema.TableInfo()
	for _, record := range s.tracker.added {
		plan.inserts = append(plan.inserts, s.schema.encode(record, fields))
	}
	for _, record := range s.tracker.Modified(s.live) {
		plan.updates = append(plan.updates, s.schema.encode(record, fields))
	}
	for _, record := range s.tracker.removed {
		plan.deletes = append(plan.deletes, s.schema.encode(record, s.schema.keys))
	}
	return plan, nil
}

func (s *Set[T]) changes() ChangeCount {
	return ChangeCount{
		Entity:   s.schema.name,
		Added:    len(s.tracker.added),
		Modified: len(s.tracker.Modified(s.live)),
		Removed:  len(s.tracker.removed),
	}
}
