package repo

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/Rancune/nightcity-hq/internal/db"
	"github.com/Rancune/nightcity-hq/internal/domain"
)

func TestBindRewritesPlaceholdersForPostgres(t *testing.T) {
	pg := Repo{Dialect: db.Postgres}
	require.Equal(t, "UPDATE t SET a=$1 WHERE b=$2 AND c>=$3", pg.bind("UPDATE t SET a=? WHERE b=? AND c>=?"))
	lite := Repo{Dialect: db.SQLite}
	require.Equal(t, "SELECT ? FROM t", lite.bind("SELECT ? FROM t"))
}

func TestClaimContractStaleWhenNoRowMatches(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	r := Repo{DB: conn, Dialect: db.Postgres}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE contracts SET owner_id=$1, updated_at=$2`)).
		WithArgs("alice", ts(now), "c1", "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE contracts SET owner_id=$1, updated_at=$2`)).
		WithArgs("bob", ts(now), "c1", "bob").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, r.ClaimContract(context.Background(), conn, "c1", "alice", now))
	err = r.ClaimContract(context.Background(), conn, "c1", "bob", now)
	require.True(t, errors.Is(err, ErrStale))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDebitCurrencyGuardsBalance(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	r := Repo{DB: conn, Dialect: db.SQLite}

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE actors SET currency=currency-? WHERE id=? AND currency>=?`)).
		WithArgs(int64(500), "alice", int64(500)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = r.DebitCurrency(context.Background(), conn, "alice", 500)
	require.ErrorIs(t, err, ErrStale)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActorNotFound(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	r := Repo{DB: conn, Dialect: db.Postgres}

	mock.ExpectQuery(regexp.QuoteMeta(`FROM actors WHERE id=$1`)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "currency", "reputation", "last_seen", "created_at"}))

	_, err = r.GetActor(context.Background(), conn, "ghost")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListContractsBuildsFilter(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	r := Repo{DB: conn, Dialect: db.Postgres}

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE ((status='proposed' AND owner_id IS NULL) OR owner_id=$1) AND status IN ($2,$3) ORDER BY created_at, id LIMIT $4`)).
		WithArgs("alice", "proposed", "active", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = r.ListContracts(context.Background(), conn, ContractFilter{
		VisibleTo: "alice",
		Status:    []domain.ContractStatus{domain.ContractProposed, domain.ContractActive},
		Limit:     10,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimestampsSortLexically(t *testing.T) {
	a := time.Date(2024, 1, 1, 9, 0, 0, 5, time.UTC)
	b := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	require.Less(t, ts(a), ts(b))
	require.True(t, parseTS(ts(a)).Equal(a))
}
