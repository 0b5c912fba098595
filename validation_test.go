package cardledger

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardledger/cardledger/internal/apierror"
	"github.com/cardledger/cardledger/model"
)

func TestResolveCard(t *testing.T) {
	ledger, mock := newTestLedger(t)

	mock.ExpectQuery("FROM card_xref").
		WithArgs("4111111111111111").
		WillReturnRows(mockXrefRows("4111111111111111", "acc_1"))

	accountID, rejection, err := ledger.resolveCard(context.Background(), "4111111111111111")
	require.NoError(t, err)
	assert.Nil(t, rejection)
	assert.Equal(t, "acc_1", accountID)
}

func TestResolveCardUnknownCard(t *testing.T) {
	ledger, mock := newTestLedger(t)

	mock.ExpectQuery("FROM card_xref").
		WithArgs("4000000000000000").
		WillReturnRows(sqlmock.NewRows([]string{"card_number"}))

	accountID, rejection, err := ledger.resolveCard(context.Background(), "4000000000000000")
	require.NoError(t, err)
	require.NotNil(t, rejection)
	assert.Empty(t, accountID)
	assert.Equal(t, model.ReasonCardNotFound, rejection.Code)
	assert.False(t, rejection.BusinessRule)
}

func TestSubmitTransactionUnknownCardPersistsReject(t *testing.T) {
	ledger, mock := newTestLedger(t)

	mock.ExpectQuery("FROM card_xref").
		WithArgs("4000000000000000").
		WillReturnRows(sqlmock.NewRows([]string{"card_number"}))
	mock.ExpectExec("INSERT INTO reject_records").
		WillReturnResult(sqlmock.NewResult(1, 1))

	proposed := &model.ProposedTransaction{CardNumber: "4000000000000000", Amount: model.MustMoney("10.00")}
	_, err := ledger.SubmitTransaction(context.Background(), proposed)
	require.Error(t, err)
	assert.Equal(t, apierror.ErrValidation, apierror.CodeOf(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

// The account-state decision happens inside the posting transaction, against
// the locked row. An over-limit proposal rolls the posting back and lands as
// an online reject record.
func TestSubmitTransactionOverLimitPersistsReject(t *testing.T) {
	ledger, mock := newTestLedger(t)
	expiration := time.Now().AddDate(2, 0, 0)

	mock.ExpectQuery("FROM card_xref").
		WithArgs("4111111111111111").
		WillReturnRows(mockXrefRows("4111111111111111", "acc_1"))

	mock.ExpectBegin()
	mock.ExpectQuery("(?s)FROM accounts.+FOR UPDATE").
		WithArgs("acc_1").
		WillReturnRows(mockAccountRows("acc_1", "4900.00", "5000.00", "ACTIVE", expiration))
	mock.ExpectRollback()
	mock.ExpectExec("INSERT INTO reject_records").
		WillReturnResult(sqlmock.NewResult(1, 1))

	proposed := &model.ProposedTransaction{CardNumber: "4111111111111111", Amount: model.MustMoney("200.00")}
	_, err := ledger.SubmitTransaction(context.Background(), proposed)
	require.Error(t, err)
	assert.Equal(t, apierror.ErrValidation, apierror.CodeOf(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitTransactionPosts(t *testing.T) {
	ledger, mock := newTestLedger(t)
	expiration := time.Now().AddDate(2, 0, 0)

	mock.ExpectQuery("FROM card_xref").
		WithArgs("4111111111111111").
		WillReturnRows(mockXrefRows("4111111111111111", "acc_1"))

	mock.ExpectBegin()
	mock.ExpectQuery("(?s)FROM accounts.+FOR UPDATE").
		WithArgs("acc_1").
		WillReturnRows(mockAccountRows("acc_1", "100.00", "5000.00", "ACTIVE", expiration))
	mock.ExpectQuery("UPDATE transaction_sequence").
		WillReturnRows(sqlmock.NewRows([]string{"last_id"}).AddRow(11))
	mock.ExpectExec("INSERT INTO transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE accounts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO category_balances").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	proposed := &model.ProposedTransaction{
		CardNumber:   "4111111111111111",
		Amount:       model.MustMoney("25.50"),
		TypeCode:     "01",
		CategoryCode: "02",
		OriginatedAt: time.Now(),
	}
	txn, err := ledger.SubmitTransaction(context.Background(), proposed)
	require.NoError(t, err)
	assert.Equal(t, int64(11), txn.TransactionID)
	assert.Equal(t, "125.50", txn.BalanceAfter.String())

	assert.NoError(t, mock.ExpectationsWereMet())
}
