package cardledger

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cardledger/cardledger/model"
)

// CreateAccount opens an account and registers its card numbers in the
// cross-reference so card-keyed inputs can resolve to it.
func (c *CardLedger) CreateAccount(ctx context.Context, account *model.Account, cardNumbers []string) (*model.Account, error) {
	ctx, span := tracer.Start(ctx, "Creating account")
	defer span.End()

	if account.AccountID == "" {
		account.AccountID = model.GenerateUUIDWithSuffix("acc")
	}
	if account.Status == "" {
		account.Status = model.AccountStatusActive
	}
	if account.OpenDate.IsZero() {
		account.OpenDate = time.Now()
	}
	account.CreatedAt = time.Now()

	account, err := c.datasource.CreateAccount(ctx, account)
	if err != nil {
		return nil, logAndRecordError(span, "account create error: ", err)
	}

	for _, card := range cardNumbers {
		xref := &model.CardXref{
			CardNumber: card,
			AccountID:  account.AccountID,
			CreatedAt:  time.Now(),
		}
		if err := c.datasource.CreateCardXref(ctx, xref); err != nil {
			return nil, logAndRecordError(span, "card xref create error: ", err)
		}
	}

	logrus.Infof("account %s created with %d cards", account.AccountID, len(cardNumbers))
	return account, nil
}
