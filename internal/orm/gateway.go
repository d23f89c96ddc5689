package orm

import "context"

// Row holds one record's persistable values keyed by column name.
type Row map[string]any

// Table describes how an entity maps onto storage.
type Table struct {
	Entity  string
	Name    string
	Columns []string
	Keys    []string
}

// Gateway is the storage collaborator: it loads whole tables and opens transactions.
type Gateway interface {
	FetchAll(ctx context.Context, table Table) ([]Row, error)
	Begin(ctx context.Context) (Transaction, error)
}

// Transaction applies batches of row operations atomically.
// UpdateBatch and DeleteBatch locate rows by the table's key columns and
// report ErrStaleRecord when a row matches nothing.
type Transaction interface {
	InsertBatch(ctx context.Context, table Table, rows []Row) error
	UpdateBatch(ctx context.Context, table Table, rows []Row) error
	DeleteBatch(ctx context.Context, table Table, rows []Row) error
	Commit() error
	Rollback() error
}

// Validator decides whether a live record may be persisted.
type Validator interface {
	Validate(record any) error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(record any) error

func (f ValidatorFunc) Validate(record any) error {
	return f(record)
}

type acceptAll struct{}

func (acceptAll) Validate(any) error {
	return nil
}
