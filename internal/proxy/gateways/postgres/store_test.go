package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/phishguard/internal/proxy/domain"
)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, New(mock)
}

func TestFetchActiveDomains(t *testing.T) {
	mock, st := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(queryActiveDomains)).
		WillReturnRows(pgxmock.NewRows([]string{"domain"}).AddRow("evil.com").AddRow("phish.example"))

	got, err := st.FetchActiveDomains(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"evil.com", "phish.example"}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchActiveCidrs(t *testing.T) {
	mock, st := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(queryActiveCidrs)).
		WillReturnRows(pgxmock.NewRows([]string{"cidr"}).AddRow("10.0.0.0/8"))

	got, err := st.FetchActiveCidrs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8"}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetch_QueryError(t *testing.T) {
	mock, st := newMock(t)
	mock.ExpectQuery("SELECT domain").WillReturnError(errors.New("connection reset"))

	_, err := st.FetchActiveDomains(context.Background())
	assert.ErrorContains(t, err, "query deny list")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_WithReasons(t *testing.T) {
	mock, st := newMock(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := domain.LogRecord{
		ClientAddr: "10.1.1.1",
		Host:       "evil.com",
		IP:         "203.0.113.9",
		Port:       443,
		Method:     "CONNECT",
		Outcome:    domain.OutcomeDeny,
		Score:      1.0,
		Reasons:    []string{"blacklisted domain: evil.com"},
		Time:       at,
	}
	mock.ExpectExec("INSERT INTO logs").
		WithArgs("10.1.1.1", "evil.com", "203.0.113.9", 443, "CONNECT", "deny", 1.0, `["blacklisted domain: evil.com"]`, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.Save(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_NullsForMissingFields(t *testing.T) {
	mock, st := newMock(t)
	rec := domain.LogRecord{
		ClientAddr: "10.1.1.1",
		Host:       "ok.example",
		Method:     "GET",
		Outcome:    domain.OutcomeAllow,
		Port:       80,
		Time:       time.Now(),
	}
	mock.ExpectExec("INSERT INTO logs").
		WithArgs("10.1.1.1", "ok.example", nil, 80, "GET", "allow", 0.0, nil, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.Save(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_Error(t *testing.T) {
	mock, st := newMock(t)
	mock.ExpectExec("INSERT INTO logs").WillReturnError(errors.New("disk full"))
	err := st.Save(context.Background(), domain.LogRecord{Host: "x", Time: time.Now()})
	assert.ErrorContains(t, err, "insert log")
}

func TestEnsureSchema(t *testing.T) {
	mock, st := newMock(t)
	for range schema {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	require.NoError(t, st.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNilDB(t *testing.T) {
	st := New(nil)
	_, err := st.FetchActiveDomains(context.Background())
	assert.ErrorIs(t, err, ErrNoDB)
	assert.ErrorIs(t, st.Save(context.Background(), domain.LogRecord{}), ErrNoDB)
	assert.ErrorIs(t, st.EnsureSchema(context.Background()), ErrNoDB)
	st.Close()
}
