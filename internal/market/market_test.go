package market_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Rancune/nightcity-hq/internal/config"
	"github.com/Rancune/nightcity-hq/internal/domain"
	"github.com/Rancune/nightcity-hq/internal/market"
)

func TestNextRotationStrictlyAfter(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2077, 5, 10, h, m, 0, 0, time.UTC) }

	require.Equal(t, at(6, 0), market.NextRotation(at(5, 59), 6, time.UTC))
	require.Equal(t, at(6, 0).AddDate(0, 0, 1), market.NextRotation(at(6, 0), 6, time.UTC))
	require.Equal(t, at(6, 0).AddDate(0, 0, 1), market.NextRotation(at(23, 30), 6, time.UTC))
}

func TestNextRotationTimezone(t *testing.T) {
	loc := time.FixedZone("NC", -8*3600)
	now := time.Date(2077, 5, 10, 12, 0, 0, 0, time.UTC) // 04:00 local
	got := market.NextRotation(now, 6, loc)
	require.Equal(t, time.Date(2077, 5, 10, 14, 0, 0, 0, time.UTC), got)
}

func TestNeedsRotation(t *testing.T) {
	next := time.Date(2077, 5, 10, 6, 0, 0, 0, time.UTC)
	st := domain.MarketState{NextRotation: next, Enabled: true}
	require.False(t, market.NeedsRotation(st, next.Add(-time.Second)))
	require.True(t, market.NeedsRotation(st, next))
	st.Enabled = false
	require.False(t, market.NeedsRotation(st, next.Add(time.Hour)))
}

func TestSeedUsesRarityCeilings(t *testing.T) {
	cfg := config.Default()
	items := market.Seed(cfg.Market.Catalog, cfg.Market.StockCeilings)
	require.Len(t, items, len(cfg.Market.Catalog))
	byID := map[string]domain.CatalogItem{}
	for _, it := range items {
		require.True(t, it.Active)
		require.Equal(t, it.MaxStock, it.Stock)
		byID[it.ID] = it
	}
	require.Equal(t, 12, byID["mouchard"].Stock)
	require.Equal(t, 1, byID["mantis-blades"].Stock)
	require.Greater(t, byID["stim-pack"].Stock, byID["cyberdeck-mk1"].Stock)
}
