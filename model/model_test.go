package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("run")
	assert.True(t, strings.HasPrefix(id, "run_"))
	assert.NotEqual(t, id, GenerateUUIDWithSuffix("run"))
}

func TestApplyTransactionDebit(t *testing.T) {
	acc := &Account{
		AccountID: "acc_1",
		Balance:   MustMoney("100.00"),
	}
	txn := &Transaction{Amount: MustMoney("25.50")}

	acc.ApplyTransaction(txn)

	assert.Equal(t, "100.00", txn.BalanceBefore.String())
	assert.Equal(t, "125.50", txn.BalanceAfter.String())
	assert.Equal(t, "125.50", acc.Balance.String())
	assert.Equal(t, "25.50", acc.CycleDebit.String())
	assert.True(t, acc.CycleCredit.IsZero())
}

func TestApplyTransactionCredit(t *testing.T) {
	acc := &Account{
		AccountID: "acc_1",
		Balance:   MustMoney("100.00"),
	}
	txn := &Transaction{Amount: MustMoney("-40.00")}

	acc.ApplyTransaction(txn)

	assert.Equal(t, "60.00", acc.Balance.String())
	assert.Equal(t, "40.00", acc.CycleCredit.String())
	assert.True(t, acc.CycleDebit.IsZero())
}

func TestAccountActive(t *testing.T) {
	acc := &Account{Status: AccountStatusActive}
	assert.True(t, acc.Active())

	acc.Status = AccountStatusSuspended
	assert.False(t, acc.Active())
}

func TestAccountExpired(t *testing.T) {
	asOf := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	acc := &Account{ExpirationDate: asOf.AddDate(0, -1, 0)}
	assert.True(t, acc.Expired(asOf))

	acc.ExpirationDate = asOf.AddDate(1, 0, 0)
	assert.False(t, acc.Expired(asOf))
}

func TestValidatePosting(t *testing.T) {
	asOf := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	account := func() *Account {
		return &Account{
			AccountID:      "acc_1",
			Balance:        MustMoney("4900.00"),
			CreditLimit:    MustMoney("5000.00"),
			Status:         AccountStatusActive,
			ExpirationDate: asOf.AddDate(2, 0, 0),
		}
	}

	t.Run("over limit", func(t *testing.T) {
		rejection := account().ValidatePosting(MustMoney("200.00"), asOf)
		assert.NotNil(t, rejection)
		assert.Equal(t, ReasonOverLimit, rejection.Code)
		assert.False(t, rejection.BusinessRule)
	})

	t.Run("exact limit accepted", func(t *testing.T) {
		assert.Nil(t, account().ValidatePosting(MustMoney("100.00"), asOf))
	})

	t.Run("credit always accepted against limit", func(t *testing.T) {
		assert.Nil(t, account().ValidatePosting(MustMoney("-40.00"), asOf))
	})

	t.Run("expired checked after limit", func(t *testing.T) {
		acc := account()
		acc.ExpirationDate = asOf.AddDate(0, -1, 0)
		rejection := acc.ValidatePosting(MustMoney("200.00"), asOf)
		assert.Equal(t, ReasonOverLimit, rejection.Code)

		rejection = acc.ValidatePosting(MustMoney("10.00"), asOf)
		assert.Equal(t, ReasonExpired, rejection.Code)
	})

	t.Run("inactive is a business rule", func(t *testing.T) {
		acc := account()
		acc.Status = AccountStatusSuspended
		rejection := acc.ValidatePosting(MustMoney("10.00"), asOf)
		assert.NotNil(t, rejection)
		assert.True(t, rejection.BusinessRule)
		assert.Zero(t, rejection.Code)
	})
}

func TestNewRejectRecordSeverity(t *testing.T) {
	proposed := &ProposedTransaction{CardNumber: "4000000000000000", Amount: MustMoney("10.00")}

	rec := NewRejectRecord("run_1", proposed, &Rejection{
		Code:    ReasonCardNotFound,
		Message: "card not found",
	})
	assert.Equal(t, SeverityError, rec.Trailer.Severity)
	assert.Equal(t, "run_1", rec.BatchRunID)
	assert.True(t, strings.HasPrefix(rec.RejectID, "rej_"))
	assert.Equal(t, *proposed, rec.Input)

	rec = NewRejectRecord("run_1", proposed, &Rejection{
		Message:      "account acc_1 is not active",
		BusinessRule: true,
	})
	assert.Equal(t, SeverityWarning, rec.Trailer.Severity)
	assert.Zero(t, rec.ReasonCode)
}

func TestProposedToTransaction(t *testing.T) {
	originated := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	processed := time.Date(2024, 5, 3, 2, 0, 0, 0, time.UTC)
	p := &ProposedTransaction{
		CardNumber:   "4111111111111111",
		Amount:       MustMoney("12.00"),
		TypeCode:     "01",
		CategoryCode: "02",
		Source:       "POS",
		MerchantName: "COFFEE",
		OriginatedAt: originated,
	}

	txn := p.ToTransaction("acc_9", processed)

	assert.Equal(t, int64(0), txn.TransactionID)
	assert.Equal(t, "acc_9", txn.AccountID)
	assert.Equal(t, p.CardNumber, txn.CardNumber)
	assert.Equal(t, "12.00", txn.Amount.String())
	assert.Equal(t, originated, txn.OriginatedAt)
	assert.Equal(t, processed, txn.ProcessedAt)
}

func TestTransactionHashStable(t *testing.T) {
	txn := &Transaction{
		TransactionID: 7,
		AccountID:     "acc_1",
		Amount:        MustMoney("5.00"),
		TypeCode:      "01",
		CategoryCode:  "02",
		OriginatedAt:  time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, txn.Hash(), txn.Hash())

	other := *txn
	other.TransactionID = 8
	assert.NotEqual(t, txn.Hash(), other.Hash())
}

func TestBatchRunLifecycle(t *testing.T) {
	run := NewBatchRun(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))

	assert.True(t, strings.HasPrefix(run.RunID, "run_"))
	assert.Equal(t, BatchRunning, run.Status)
	assert.True(t, run.Resumable())

	run.Finish()
	assert.Equal(t, BatchCompleted, run.Status)
	assert.False(t, run.Resumable())
	assert.False(t, run.FinishedAt.IsZero())
}

func TestBatchRunFinishWithRejects(t *testing.T) {
	run := NewBatchRun(time.Now())
	run.RejectCount = 3

	run.Finish()
	assert.Equal(t, BatchCompletedWithRejects, run.Status)
}

func TestBatchRunFail(t *testing.T) {
	run := NewBatchRun(time.Now())
	run.Fail("storage unavailable")

	assert.Equal(t, BatchError, run.Status)
	assert.Equal(t, "storage unavailable", run.ErrorMessage)
	assert.True(t, run.Resumable())
}
