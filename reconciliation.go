package cardledger

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/cardledger/cardledger/model"
)

type ReconciliationResult struct {
	AccountID       string      `json:"account_id"`
	StoredBalance   model.Money `json:"stored_balance"`
	ReplayedBalance model.Money `json:"replayed_balance"`
	Consistent      bool        `json:"consistent"`
}

// ReconcileAccount replays the account's posted transactions and compares
// the sum against the stored balance. A mismatch means a posting bypassed
// the engine or the store was mutated out of band.
func (c *CardLedger) ReconcileAccount(ctx context.Context, accountID string) (*ReconciliationResult, error) {
	ctx, span := tracer.Start(ctx, "Reconciling account")
	defer span.End()

	account, err := c.datasource.GetAccount(ctx, accountID)
	if err != nil {
		return nil, logAndRecordError(span, "reconciliation lookup error: ", err)
	}

	replayed, err := c.datasource.SumPostedAmounts(ctx, accountID)
	if err != nil {
		return nil, logAndRecordError(span, "reconciliation replay error: ", err)
	}

	result := &ReconciliationResult{
		AccountID:       account.AccountID,
		StoredBalance:   account.Balance,
		ReplayedBalance: replayed,
		Consistent:      account.Balance.Equal(replayed),
	}
	if !result.Consistent {
		logrus.Warnf("account %s out of balance: stored %s, replayed %s", account.AccountID, account.Balance, replayed)
	}
	return result, nil
}
