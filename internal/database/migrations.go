package database

import (
	"SnapLink-Backend/internal/domain"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate runs schema migrations for all domain models.
func AutoMigrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("starting database auto-migration")

	// Order matters because of foreign keys
	models := []interface{}{
		&domain.Link{},         // parents first
		&domain.ClickEvent{},   // cascades on link delete
		&domain.DailySummary{}, // derived from click events
		&domain.APIKey{},
	}

	for i, model := range models {
		modelName := fmt.Sprintf("%T", model)
		if err := db.AutoMigrate(model); err != nil {
			log.Error("failed to migrate model",
				zap.String("model", modelName),
				zap.Int("step", i+1),
				zap.Error(err))
			return fmt.Errorf("failed to migrate model %s: %w", modelName, err)
		}
	}

	// AutoMigrate cannot express the composite primary key's upsert target
	// or the cascade reliably across gorm versions, so pin both explicitly.
	if err := db.Exec(`ALTER TABLE click_events
		DROP CONSTRAINT IF EXISTS fk_click_events_link,
		ADD CONSTRAINT fk_click_events_link
		FOREIGN KEY (link_id) REFERENCES links(id) ON DELETE CASCADE`).Error; err != nil {
		return fmt.Errorf("failed to ensure click_events cascade: %w", err)
	}

	if err := db.Exec(`ALTER TABLE daily_summaries
		DROP CONSTRAINT IF EXISTS fk_daily_summaries_link,
		ADD CONSTRAINT fk_daily_summaries_link
		FOREIGN KEY (link_id) REFERENCES links(id) ON DELETE CASCADE`).Error; err != nil {
		return fmt.Errorf("failed to ensure daily_summaries cascade: %w", err)
	}

	log.Info("database auto-migration completed successfully", zap.Int("migrated_models", len(models)))
	return nil
}
