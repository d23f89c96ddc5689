package orm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const (
	opOpen    = "orm.open"
	opResolve = "orm.resolve"
	opSave    = "orm.save"
)

var noOpLogger = zap.NewNop()

// Config wires a Context to its collaborators.
type Config struct {
	Model     *Model
	Gateway   Gateway
	Validator Validator
	Logger    *zap.Logger
}

// Context is one load/mutate/save cycle over every entity of a model. It is not
// safe for concurrent use; after a successful Save it is spent and a new one
// must be opened.
type Context struct {
	model     *Model
	gateway   Gateway
	validator Validator
	logger    *zap.Logger
	sets      map[string]trackedSet
	spent     bool
}

// Open loads every entity of the model through the gateway, wraps each table in
// a tracked set and resolves navigation edges.
func Open(ctx context.Context, cfg Config) (*Context, error) {
	if cfg.Model == nil {
		return nil, errMissingModel
	}
	if cfg.Gateway == nil {
		return nil, errMissingGateway
	}
	validator := cfg.Validator
	if validator == nil {
		validator = acceptAll{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	c := &Context{
		model:     cfg.Model,
		gateway:   cfg.Gateway,
		validator: validator,
		logger:    logger,
		sets:      make(map[string]trackedSet, len(cfg.Model.entities)),
	}

	for _, entity := range cfg.Model.entities {
		rows, err := cfg.Gateway.FetchAll(ctx, entity.TableInfo())
		if err != nil {
			c.logError(opOpen, "fetch_failed", err, zap.String("entity", entity.Name()))
			return nil, &StorageOperationError{Entity: entity.Name(), Operation: "fetch", Err: err}
		}
		set, err := entity.load(rows, cfg.Model.kinds)
		if err != nil {
			c.logError(opOpen, "decode_failed", err, zap.String("entity", entity.Name()))
			return nil, err
		}
		c.sets[entity.Name()] = set
		logger.Debug("entity loaded", zap.String("entity", entity.Name()), zap.Int("records", len(rows)))
	}

	if err := c.Resolve(); err != nil {
		return nil, err
	}
	return c, nil
}

// SetOf returns the tracked set registered for s.
func SetOf[T any](c *Context, s *Schema[T]) (*Set[T], error) {
	if c == nil || s == nil {
		return nil, ErrUnknownEntity
	}
	if _, ok := c.model.byName[s.name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, s.name)
	}
	return setFor(c.sets, s)
}

// Resolve assigns every navigation field from the live records: single-valued
// edges first, then collections. Running it again reproduces the same assignments.
func (c *Context) Resolve() error {
	for _, pass := range []bool{false, true} {
		for _, e := range c.model.edges {
			if e.relationship().Multi != pass {
				continue
			}
			if err := c.resolveEdge(e); err != nil {
				relationship := e.relationship()
				c.logError(opResolve, "resolve_failed", err,
					zap.String("entity", relationship.Owner),
					zap.String("navigation", relationship.Navigation))
				return err
			}
		}
	}
	return nil
}

func (c *Context) resolveEdge(e edge) (err error) {
	defer recoverDispatch(e.relationship().Owner, "resolve", &err)
	return e.resolve(c.sets)
}

// Changes reports the pending changes per entity in registration order.
func (c *Context) Changes() []ChangeCount {
	counts := make([]ChangeCount, 0, len(c.model.entities))
	for _, entity := range c.model.entities {
		counts = append(counts, c.sets[entity.Name()].changes())
	}
	return counts
}

// Spent reports whether Save already committed this context.
func (c *Context) Spent() bool {
	return c.spent
}

func (c *Context) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	c.logger.Error("orm error", attrs...)
}
