package orm

import (
	"context"

	"go.uber.org/zap"
)

// Save persists the pending changes of every entity inside one transaction.
//
// Every live record is validated first; any failure aborts before storage is
// touched. Batch rows are then encoded for all entities, still outside the
// transaction. Inside it each entity issues insert, update and delete batches
// in that order; the first storage error rolls the whole transaction back.
// A successful commit spends the context.
func (c *Context) Save(ctx context.Context) error {
	if c.spent {
		return ErrContextSpent
	}

	for _, entity := range c.model.entities {
		set := c.sets[entity.Name()]
		causes := set.validate(c.validator)
		if len(causes) > 0 {
			err := &ValidationBatchError{
				Entity:  entity.Name(),
				Invalid: len(causes),
				Total:   set.size(),
				Causes:  causes,
			}
			c.logError(opSave, "validation_failed", err,
				zap.String("entity", entity.Name()),
				zap.Int("invalid", len(causes)))
			return err
		}
	}

	plans := make([]batchPlan, 0, len(c.model.entities))
	pending := false
	for _, entity := range c.model.entities {
		plan, err := c.sets[entity.Name()].plan()
		if err != nil {
			c.logError(opSave, "encode_failed", err, zap.String("entity", entity.Name()))
			return err
		}
		pending = pending || !plan.empty()
		plans = append(plans, plan)
	}
	if !pending {
		c.spent = true
		c.logger.Debug("save skipped, nothing pending")
		return nil
	}

	tx, err := c.gateway.Begin(ctx)
	if err != nil {
		c.logError(opSave, "begin_failed", err)
		return &StorageOperationError{Operation: "begin", Err: err}
	}

	for _, plan := range plans {
		if err := c.persist(ctx, tx, plan); err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				c.logError(opSave, "rollback_failed", rollbackErr, zap.String("entity", plan.table.Entity))
			}
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		c.logError(opSave, "commit_failed", err)
		return &StorageOperationError{Operation: "commit", Err: err}
	}
	c.spent = true

	fields := make([]zap.Field, 0, len(plans))
	for _, plan := range plans {
		fields = append(fields, zap.Dict(plan.table.Entity,
			zap.Int("inserted", len(plan.inserts)),
			zap.Int("updated", len(plan.updates)),
			zap.Int("deleted", len(plan.deletes)),
		))
	}
	c.logger.Info("changes saved", fields...)
	return nil
}

func (c *Context) persist(ctx context.Context, tx Transaction, plan batchPlan) error {
	steps := []struct {
		operation string
		rows      []Row
		apply     func(context.Context, Table, []Row) error
	}{
		{operation: "insert", rows: plan.inserts, apply: tx.InsertBatch},
		{operation: "update", rows: plan.updates, apply: tx.UpdateBatch},
		{operation: "delete", rows: plan.deletes, apply: tx.DeleteBatch},
	}

	for _, step := range steps {
		if len(step.rows) == 0 {
			continue
		}
		c.logger.Debug("batch",
			zap.String("entity", plan.table.Entity),
			zap.String("operation", step.operation),
			zap.Int("rows", len(step.rows)))
		if err := step.apply(ctx, plan.table, step.rows); err != nil {
			c.logError(opSave, step.operation+"_failed", err, zap.String("entity", plan.table.Entity))
			return &StorageOperationError{Entity: plan.table.Entity, Operation: step.operation, Err: err}
		}
	}
	return nil
}
