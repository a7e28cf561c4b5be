package database

import (
	"fmt"

	"kitarcycle/internal/config"
	"kitarcycle/internal/model"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Seed inserts the configured tiers and categories into empty tables.
// Tables that already hold rows are left alone.
func Seed(db *gorm.DB, cfg *config.SeedConfig) error {
	if !cfg.Enabled {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.TierLevel{}).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 && len(cfg.Tiers) > 0 {
			tiers := make([]*model.TierLevel, 0, len(cfg.Tiers))
			for _, t := range cfg.Tiers {
				tiers = append(tiers, &model.TierLevel{
					Name:        t.Name,
					PointFrom:   t.PointFrom,
					PointTo:     t.PointTo,
					Multiplier:  decimal.NewFromFloat(t.Multiplier).Round(2),
					Description: t.Description,
				})
			}
			if err := tx.Create(&tiers).Error; err != nil {
				return fmt.Errorf("seed tier levels: %w", err)
			}
			log.WithField("count", len(tiers)).Info("seeded tier levels")
		}

		if err := tx.Model(&model.Category{}).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 && len(cfg.Categories) > 0 {
			categories := make([]*model.Category, 0, len(cfg.Categories))
			for _, c := range cfg.Categories {
				categories = append(categories, &model.Category{
					Name:        c.Name,
					PointsPerKg: decimal.NewFromFloat(c.PointsPerKg).Round(2),
				})
			}
			if err := tx.Create(&categories).Error; err != nil {
				return fmt.Errorf("seed categories: %w", err)
			}
			log.WithField("count", len(categories)).Info("seeded categories")
		}
		return nil
	})
}
