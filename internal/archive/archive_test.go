package archive_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Rancune/nightcity-hq/internal/archive"
	"github.com/Rancune/nightcity-hq/internal/db"
	"github.com/Rancune/nightcity-hq/internal/engine"
	"github.com/Rancune/nightcity-hq/internal/migrate"
	"github.com/Rancune/nightcity-hq/internal/repo"
)

func TestExportRoundTripAcrossBatches(t *testing.T) {
	conn, err := db.Open(db.Config{Dialect: db.SQLite, Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, migrate.Migrate(conn, db.SQLite))

	eng := engine.New(conn, db.SQLite, nil)
	ctx := context.Background()
	for _, id := range []string{"alice", "bob", "carol", "dave", "erin"} {
		_, err := eng.EnsureActor(ctx, id)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	x := archive.Exporter{Repo: eng.Repo, Batch: 2}
	n, last, err := x.Export(ctx, &buf, repo.EventFilter{Type: "actor.created"})
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Positive(t, last)

	evs, err := archive.Read(&buf)
	require.NoError(t, err)
	require.Len(t, evs, 5)
	require.Equal(t, "alice", evs[0].ActorID)
	require.Equal(t, "actor.created", evs[4].Type)

	buf.Reset()
	n, _, err = x.Export(ctx, &buf, repo.EventFilter{AfterID: last})
	require.NoError(t, err)
	require.Zero(t, n)
}
