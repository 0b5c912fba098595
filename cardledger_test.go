package cardledger

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/cardledger/cardledger/config"
	"github.com/cardledger/cardledger/database"
	"github.com/cardledger/cardledger/internal/cache"
)

// newTestDataSource wires a sqlmock-backed datasource and a miniredis-backed
// configuration, so engine tests exercise the real lock and cache paths.
func newTestDataSource(t *testing.T) (database.IDataSource, sqlmock.Sqlmock) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	config.MockConfig(&config.Configuration{
		DataSource: config.DataSourceConfig{Dns: "postgres://localhost/cardledger"},
		Redis:      config.RedisConfig{Dns: mr.Addr()},
		Clearing:   config.ClearingConfig{Dir: t.TempDir()},
	})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	newCache, err := cache.NewCache()
	require.NoError(t, err)

	return &database.Datasource{Conn: db, Cache: newCache}, mock
}

func newTestLedger(t *testing.T) (*CardLedger, sqlmock.Sqlmock) {
	t.Helper()

	datasource, mock := newTestDataSource(t)
	ledger, err := NewCardLedger(datasource)
	require.NoError(t, err)
	return ledger, mock
}

func mockAccountRows(accountID, balance, creditLimit, status string, expiration time.Time) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"account_id", "balance", "credit_limit", "cash_credit_limit", "status", "expiration_date", "open_date", "reissue_date", "cycle_credit", "cycle_debit", "group_id", "created_at"}).
		AddRow(accountID, balance, creditLimit, "1000.00", status, expiration, now.AddDate(-1, 0, 0), now, "0.00", "0.00", "GRP01", now)
}

func mockXrefRows(cardNumber, accountID string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"card_number", "account_id", "customer_id", "created_at"}).
		AddRow(cardNumber, accountID, "cust_1", time.Now())
}
