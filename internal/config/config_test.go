package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Rancune/nightcity-hq/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, int64(1000), cfg.Actors.StartingEddies)
	require.Equal(t, 10*time.Second, cfg.Clock.MinTick)
	require.Equal(t, 12, cfg.Market.StockCeilings[domain.RarityCommon])
	require.Equal(t, time.UTC, cfg.Location())
	require.Len(t, cfg.Factions, 5)
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("clock:\n  trp_ratio: 120\nmarket:\n  rotation_hour: 4\n"))
	require.NoError(t, err)
	require.Equal(t, 120, cfg.Clock.TRPRatio)
	require.Equal(t, 4, cfg.Market.RotationHour)
	require.Equal(t, int64(259200), cfg.Contracts.AcceptanceTRP)
	require.NotEmpty(t, cfg.Market.Catalog)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"ratio":    "clock:\n  trp_ratio: 0\n",
		"hour":     "market:\n  rotation_hour: 24\n",
		"curve":    "rewards:\n  threat_curve: [1.0, 0.5, 2.0, 3.0, 4.0]\n",
		"tiers":    "reputation:\n  tiers:\n    - {name: A, min: 10}\n    - {name: B, min: 5}\n",
		"factions": "factions: [arasaka]\n",
		"implant":  "market:\n  catalog:\n    - {id: x, name: X, category: implant, rarity: rare, price: 10, effect: {kind: bonus_roll, amount: 1}}\n",
		"rarity":   "market:\n  catalog:\n    - {id: x, name: X, category: consumable, rarity: mythic, price: 10, effect: {kind: skip_check}}\n",
		"timezone": "market:\n  timezone: Mars/Olympus\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(Path(dir))
	require.NoError(t, err)
	require.Equal(t, Default().Clock.TRPRatio, cfg.Clock.TRPRatio)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("actors:\n  starting_eddies: 5\n"), 0o644))
	cfg, err = LoadOptional(Path(dir))
	require.NoError(t, err)
	require.Equal(t, int64(5), cfg.Actors.StartingEddies)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("actors: ["), 0o644))
	_, err = LoadOptional(Path(dir))
	require.Error(t, err)
}

func TestWriteYAMLRoundTrips(t *testing.T) {
	cfg := Default()
	cfg.Clock.TRPRatio = 90
	cfg.Operatives.BurnBase = 45 * time.Minute

	var buf bytes.Buffer
	require.NoError(t, cfg.WriteYAML(&buf))
	require.Contains(t, buf.String(), "trp_ratio: 90")

	back, err := FromYAML(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, 90, back.Clock.TRPRatio)
	require.Equal(t, 45*time.Minute, back.Operatives.BurnBase)
	require.Equal(t, cfg.Market.Catalog, back.Market.Catalog)
	require.Equal(t, cfg.Reputation.Tiers, back.Reputation.Tiers)
}
