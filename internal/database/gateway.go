package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/snaporm/internal/orm"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("database handle is required")

// Gateway implements orm.Gateway over gorm using table-scoped map rows, so any
// registered entity can be loaded and persisted without a gorm model type.
type Gateway struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGateway wraps db.
func NewGateway(db *gorm.DB, logger *zap.Logger) (*Gateway, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{db: db, logger: logger}, nil
}

// FetchAll loads every row of table ordered by its key columns.
func (g *Gateway) FetchAll(ctx context.Context, table orm.Table) ([]orm.Row, error) {
	query := g.db.WithContext(ctx).Table(table.Name).Select(table.Columns)
	for _, key := range table.Keys {
		query = query.Order(clause.OrderByColumn{Column: clause.Column{Name: key}})
	}

	var rows []map[string]any
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table.Name, err)
	}

	out := make([]orm.Row, len(rows))
	for index, row := range rows {
		out[index] = orm.Row(row)
	}
	g.logger.Debug("table fetched", zap.String("table", table.Name), zap.Int("rows", len(out)))
	return out, nil
}

// Begin opens a transaction.
func (g *Gateway) Begin(ctx context.Context) (orm.Transaction, error) {
	tx := g.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &transaction{tx: tx, logger: g.logger}, nil
}

type transaction struct {
	tx     *gorm.DB
	logger *zap.Logger
}

func (t *transaction) InsertBatch(ctx context.Context, table orm.Table, rows []orm.Row) error {
	if len(rows) == 0 {
		return nil
	}
	values := make([]map[string]any, len(rows))
	for index, row := range rows {
		values[index] = map[string]any(row)
	}
	if err := t.tx.WithContext(ctx).Table(table.Name).Create(values).Error; err != nil {
		return fmt.Errorf("insert %s: %w", table.Name, err)
	}
	return nil
}

func (t *transaction) UpdateBatch(ctx context.Context, table orm.Table, rows []orm.Row) error {
	for _, row := range rows {
		keys, values := splitRow(table, row)
		if len(values) == 0 {
			continue
		}
		result := t.tx.WithContext(ctx).Table(table.Name).Where(keys).Updates(values)
		if result.Error != nil {
			return fmt.Errorf("update %s: %w", table.Name, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("update %s %v: %w", table.Name, keys, orm.ErrStaleRecord)
		}
	}
	return nil
}

func (t *transaction) DeleteBatch(ctx context.Context, table orm.Table, rows []orm.Row) error {
	for _, row := range rows {
		keys, _ := splitRow(table, row)
		result := t.tx.WithContext(ctx).Table(table.Name).Where(keys).Delete(map[string]any{})
		if result.Error != nil {
			return fmt.Errorf("delete %s: %w", table.Name, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("delete %s %v: %w", table.Name, keys, orm.ErrStaleRecord)
		}
	}
	return nil
}

func (t *transaction) Commit() error {
	return t.tx.Commit().Error
}

func (t *transaction) Rollback() error {
	err := t.tx.Rollback().Error
	if err != nil {
		t.logger.Warn("transaction rollback failed", zap.Error(err))
	}
	return err
}

func splitRow(table orm.Table, row orm.Row) (map[string]any, map[string]any) {
	keys := make(map[string]any, len(table.Keys))
	for _, key := range table.Keys {
		keys[key] = row[key]
	}
	values := make(map[string]any, len(row))
	for column, value := range row {
		if _, isKey := keys[column]; !isKey {
			values[column] = value
		}
	}
	return keys, values
}
