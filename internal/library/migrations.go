package library

import (
	"github.com/MarcoPoloResearchLab/snaporm/internal/database"
	"gorm.io/gorm"
)

const migrationLowercaseTagLabels = "2026-10-01_lowercase_tag_labels"

// Migrations lists the run-once data fixes for the library tables.
func Migrations() []database.Migration {
	return []database.Migration{
		{Name: migrationLowercaseTagLabels, Apply: lowercaseTagLabels},
	}
}

func lowercaseTagLabels(db *gorm.DB) error {
	return db.Model(&Tag{}).
		Where("label <> lower(label)").
		Update("label", gorm.Expr("lower(label)")).Error
}
