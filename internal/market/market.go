// Package market holds the rotation schedule and catalog seeding rules of the
// shared market.
package market

import (
	"time"

	"github.com/Rancune/nightcity-hq/internal/config"
	"github.com/Rancune/nightcity-hq/internal/domain"
)

// NeedsRotation reports whether a rotation is due at now.
func NeedsRotation(st domain.MarketState, now time.Time) bool {
	return st.Enabled && !now.Before(st.NextRotation)
}

// NextRotation returns the next occurrence of hour:00 in loc strictly after now.
func NextRotation(now time.Time, hour int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, 0, 0, 0, loc)
	}
	return next.UTC()
}

// StockCeiling is the per-rotation stock for an item. Implants get half the
// rarity ceiling.
func StockCeiling(rarity domain.Rarity, category domain.ItemCategory, ceilings map[domain.Rarity]int) int {
	n := ceilings[rarity]
	if category == domain.CategoryImplant {
		n /= 2
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Seed builds a full catalog from templates, each stocked to its ceiling.
func Seed(templates []config.ItemTemplate, ceilings map[domain.Rarity]int) []domain.CatalogItem {
	items := make([]domain.CatalogItem, 0, len(templates))
	for _, t := range templates {
		ceiling := StockCeiling(t.Rarity, t.Category, ceilings)
		items = append(items, domain.CatalogItem{
			ID:            t.ID,
			Name:          t.Name,
			Category:      t.Category,
			Rarity:        t.Rarity,
			Price:         t.Price,
			Stock:         ceiling,
			MaxStock:      ceiling,
			DailyLimit:    t.DailyLimit,
			MinReputation: t.MinReputation,
			Active:        true,
			Effect:        t.Effect,
		})
	}
	return items
}
