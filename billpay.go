package cardledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cardledger/cardledger/internal/apierror"
	"github.com/cardledger/cardledger/model"
)

const (
	billPaymentTypeCode     = "02"
	billPaymentCategoryCode = "05"
	billPaymentSource       = "ONLINE"
	billPaymentDescription  = "ONLINE BILL PAYMENT"
)

type BillPaymentRequest struct {
	AccountID    string `json:"account_id"`
	Confirmation string `json:"confirmation"`
}

type BillPaymentResult struct {
	Success       bool        `json:"success"`
	TransactionID int64       `json:"transaction_id,omitempty"`
	AmountPaid    model.Money `json:"amount_paid"`
	NewBalance    model.Money `json:"new_balance"`
	Message       string      `json:"message"`
}

// parseConfirmation maps the user's flag onto proceed or hold. An absent or
// negative answer holds the payment; anything else but yes is invalid input.
func parseConfirmation(flag string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "y", "yes":
		return true, nil
	case "", "n", "no":
		return false, nil
	default:
		return false, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("invalid confirmation flag %q, expected Y or N", flag), nil)
	}
}

// ProcessBillPayment pays the account's full current balance in one
// transaction. Nothing is posted unless the caller confirmed, the account
// passes the posting checks, and the balance is positive.
func (c *CardLedger) ProcessBillPayment(ctx context.Context, req *BillPaymentRequest) (*BillPaymentResult, error) {
	ctx, span := tracer.Start(ctx, "Processing bill payment")
	defer span.End()

	if strings.TrimSpace(req.AccountID) == "" {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "account id is required", nil)
	}

	confirmed, err := parseConfirmation(req.Confirmation)
	if err != nil {
		return nil, err
	}
	if !confirmed {
		return &BillPaymentResult{
			Success: false,
			Message: "confirmation required, payment not submitted",
		}, nil
	}

	account, err := c.datasource.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, logAndRecordError(span, "bill payment lookup error: ", err)
	}

	if !account.Balance.IsPositive() {
		return nil, apierror.NewAPIError(apierror.ErrBusinessRule, fmt.Sprintf("account %s has no balance to pay", account.AccountID), map[string]interface{}{
			"balance": account.Balance.String(),
		})
	}

	// A bill payment is keyed by account, not card, so the persisted
	// transaction carries no card number.
	proposed := &model.ProposedTransaction{
		Amount:       account.Balance.Neg(),
		TypeCode:     billPaymentTypeCode,
		CategoryCode: billPaymentCategoryCode,
		Source:       billPaymentSource,
		Description:  billPaymentDescription,
		OriginatedAt: time.Now(),
	}

	txn, rejection, err := c.RecordTransaction(ctx, proposed, account.AccountID, time.Now())
	if err != nil {
		return nil, err
	}
	if rejection != nil {
		code := apierror.ErrValidation
		if rejection.BusinessRule {
			code = apierror.ErrBusinessRule
		}
		return nil, apierror.NewAPIError(code, rejection.Message, map[string]interface{}{
			"reason_code": rejection.Code,
		})
	}

	logrus.Infof("bill payment on account %s posted as transaction %d", account.AccountID, txn.TransactionID)

	return &BillPaymentResult{
		Success:       true,
		TransactionID: txn.TransactionID,
		AmountPaid:    txn.Amount.Abs(),
		NewBalance:    txn.BalanceAfter,
		Message:       fmt.Sprintf("payment of %s posted, new balance %s", txn.Amount.Abs(), txn.BalanceAfter),
	}, nil
}
