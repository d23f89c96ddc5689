package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/snaporm/internal/orm"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type widget struct {
	ID     int64   `gorm:"column:id;primaryKey;autoIncrement:false"`
	Name   string  `gorm:"column:name;size:190;not null;default:''"`
	Weight float64 `gorm:"column:weight;not null;default:0"`
	Active bool    `gorm:"column:active;not null;default:false"`
}

func widgetSchema(testContext *testing.T) (*orm.Schema[widget], *orm.Model) {
	testContext.Helper()
	widgets := orm.NewSchema("Widget", []orm.Field[widget]{
		orm.Column("ID", func(w *widget) *int64 { return &w.ID }, orm.PrimaryKey()),
		orm.Column("Name", func(w *widget) *string { return &w.Name }),
		orm.Column("Weight", func(w *widget) *float64 { return &w.Weight }),
		orm.Column("Active", func(w *widget) *bool { return &w.Active }),
	})
	model, err := orm.NewModel(orm.ScalarKinds, widgets)
	if err != nil {
		testContext.Fatalf("failed to build model: %v", err)
	}
	return widgets, model
}

func newTestGateway(testContext *testing.T) (*Gateway, *gorm.DB) {
	testContext.Helper()
	databasePath := filepath.Join(testContext.TempDir(), "gateway.db")
	database, err := OpenSQLite(databasePath, zap.NewNop(), Options{Models: []any{&widget{}}})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	testContext.Cleanup(func() { closeDatabase(testContext, database) })

	seed := []widget{
		{ID: 1, Name: "bolt", Weight: 0.5, Active: true},
		{ID: 2, Name: "gear", Weight: 2.25},
		{ID: 3, Name: "cog", Weight: 1},
	}
	if err := database.Create(&seed).Error; err != nil {
		testContext.Fatalf("failed to seed widgets: %v", err)
	}

	gateway, err := NewGateway(database, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to create gateway: %v", err)
	}
	return gateway, database
}

func openWidgets(testContext *testing.T, gateway *Gateway, model *orm.Model, widgets *orm.Schema[widget]) (*orm.Context, *orm.Set[widget]) {
	testContext.Helper()
	dbContext, err := orm.Open(context.Background(), orm.Config{Model: model, Gateway: gateway})
	if err != nil {
		testContext.Fatalf("failed to open context: %v", err)
	}
	set, err := orm.SetOf(dbContext, widgets)
	if err != nil {
		testContext.Fatalf("failed to access widgets: %v", err)
	}
	return dbContext, set
}

func TestGatewayFetchDecodesStoredRows(testContext *testing.T) {
	gateway, _ := newTestGateway(testContext)
	widgets, model := widgetSchema(testContext)

	_, set := openWidgets(testContext, gateway, model, widgets)

	if set.Len() != 3 {
		testContext.Fatalf("expected 3 widgets, got %d", set.Len())
	}
	bolt, ok := set.Find(1)
	if !ok {
		testContext.Fatalf("expected widget 1 to be loaded")
	}
	if bolt.Name != "bolt" || bolt.Weight != 0.5 || !bolt.Active {
		testContext.Fatalf("unexpected widget decoded: %+v", *bolt)
	}
}

func TestGatewayPersistsStagedChanges(testContext *testing.T) {
	gateway, database := newTestGateway(testContext)
	widgets, model := widgetSchema(testContext)
	dbContext, set := openWidgets(testContext, gateway, model, widgets)

	gear, _ := set.Find(2)
	gear.Weight = 3.5
	gear.Active = true
	cog, _ := set.Find(3)
	set.Remove(cog)
	set.Add(&widget{ID: 4, Name: "spring", Weight: 0.1})

	if err := dbContext.Save(context.Background()); err != nil {
		testContext.Fatalf("save failed: %v", err)
	}

	var stored []widget
	if err := database.Order("id").Find(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload widgets: %v", err)
	}
	expected := []widget{
		{ID: 1, Name: "bolt", Weight: 0.5, Active: true},
		{ID: 2, Name: "gear", Weight: 3.5, Active: true},
		{ID: 4, Name: "spring", Weight: 0.1},
	}
	if len(stored) != len(expected) {
		testContext.Fatalf("expected %d widgets, got %+v", len(expected), stored)
	}
	for index := range expected {
		if stored[index] != expected[index] {
			testContext.Fatalf("widget %d mismatch: want %+v got %+v", index, expected[index], stored[index])
		}
	}
}

func TestGatewayRollsBackWhenUpdateMatchesNothing(testContext *testing.T) {
	gateway, database := newTestGateway(testContext)
	widgets, model := widgetSchema(testContext)
	dbContext, set := openWidgets(testContext, gateway, model, widgets)

	set.Add(&widget{ID: 9, Name: "washer"})
	bolt, _ := set.Find(1)
	bolt.Name = "bolt-xl"
	if err := database.Delete(&widget{}, 1).Error; err != nil {
		testContext.Fatalf("failed to delete widget behind the context: %v", err)
	}

	err := dbContext.Save(context.Background())
	if !errors.Is(err, orm.ErrStaleRecord) {
		testContext.Fatalf("expected stale record error, got %v", err)
	}
	var storageErr *orm.StorageOperationError
	if !errors.As(err, &storageErr) || storageErr.Operation != "update" {
		testContext.Fatalf("expected update storage error, got %v", err)
	}

	var count int64
	if err := database.Model(&widget{}).Where("id = ?", 9).Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count widgets: %v", err)
	}
	if count != 0 {
		testContext.Fatalf("expected insert to be rolled back")
	}
}

func TestGatewayDeleteMissingRowIsStale(testContext *testing.T) {
	gateway, database := newTestGateway(testContext)
	widgets, model := widgetSchema(testContext)
	dbContext, set := openWidgets(testContext, gateway, model, widgets)

	cog, _ := set.Find(3)
	set.Remove(cog)
	if err := database.Delete(&widget{}, 3).Error; err != nil {
		testContext.Fatalf("failed to delete widget behind the context: %v", err)
	}

	if err := dbContext.Save(context.Background()); !errors.Is(err, orm.ErrStaleRecord) {
		testContext.Fatalf("expected stale record error, got %v", err)
	}
}

type pairing struct {
	LeftID  int64  `gorm:"column:left_id;primaryKey;autoIncrement:false"`
	RightID int64  `gorm:"column:right_id;primaryKey;autoIncrement:false"`
	Note    string `gorm:"column:note;size:64;not null;default:''"`
}

func TestGatewayDeleteMatchesEveryKeyColumn(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "pairings.db")
	database, err := OpenSQLite(databasePath, zap.NewNop(), Options{Models: []any{&pairing{}}})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	testContext.Cleanup(func() { closeDatabase(testContext, database) })
	seed := []pairing{{LeftID: 1, RightID: 1}, {LeftID: 1, RightID: 2}, {LeftID: 2, RightID: 1}}
	if err := database.Create(&seed).Error; err != nil {
		testContext.Fatalf("failed to seed pairings: %v", err)
	}
	gateway, err := NewGateway(database, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to create gateway: %v", err)
	}

	pairings := orm.NewSchema("Pairing", []orm.Field[pairing]{
		orm.Column("LeftID", func(p *pairing) *int64 { return &p.LeftID }, orm.PrimaryKey()),
		orm.Column("RightID", func(p *pairing) *int64 { return &p.RightID }, orm.PrimaryKey()),
		orm.Column("Note", func(p *pairing) *string { return &p.Note }),
	})
	model, err := orm.NewModel(orm.ScalarKinds, pairings)
	if err != nil {
		testContext.Fatalf("failed to build model: %v", err)
	}
	dbContext, err := orm.Open(context.Background(), orm.Config{Model: model, Gateway: gateway})
	if err != nil {
		testContext.Fatalf("failed to open context: %v", err)
	}
	set, err := orm.SetOf(dbContext, pairings)
	if err != nil {
		testContext.Fatalf("failed to access pairings: %v", err)
	}

	target, ok := set.Find(int64(1), int64(2))
	if !ok {
		testContext.Fatalf("expected pairing 1/2 to be loaded")
	}
	set.Remove(target)
	if err := dbContext.Save(context.Background()); err != nil {
		testContext.Fatalf("save failed: %v", err)
	}

	var stored []pairing
	if err := database.Order("left_id").Order("right_id").Find(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload pairings: %v", err)
	}
	expected := []pairing{{LeftID: 1, RightID: 1}, {LeftID: 2, RightID: 1}}
	if len(stored) != len(expected) {
		testContext.Fatalf("expected %d pairings, got %+v", len(expected), stored)
	}
	for index := range expected {
		if stored[index] != expected[index] {
			testContext.Fatalf("pairing %d mismatch: want %+v got %+v", index, expected[index], stored[index])
		}
	}
}

func TestNewGatewayRequiresDatabase(testContext *testing.T) {
	if _, err := NewGateway(nil, nil); !errors.Is(err, errMissingDatabase) {
		testContext.Fatalf("expected missing database error, got %v", err)
	}
}
