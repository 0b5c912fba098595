package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cardledger/cardledger/internal/apierror"
	"github.com/cardledger/cardledger/model"
)

func xrefCacheKey(cardNumber string) string {
	return fmt.Sprintf("xref:%s", cardNumber)
}

func (d Datasource) CreateAccount(ctx context.Context, acc *model.Account) (*model.Account, error) {
	acc.CreatedAt = time.Now()
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO accounts(account_id, balance, credit_limit, cash_credit_limit, status, expiration_date, open_date, reissue_date, cycle_credit, cycle_debit, group_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, acc.AccountID, acc.Balance, acc.CreditLimit, acc.CashCreditLimit, acc.Status, acc.ExpirationDate, acc.OpenDate, acc.ReissueDate, acc.CycleCredit, acc.CycleDebit, acc.GroupID, acc.CreatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create account", err)
	}
	return acc, nil
}

func (d Datasource) CreateCardXref(ctx context.Context, xref *model.CardXref) error {
	xref.CreatedAt = time.Now()
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO card_xref(card_number, account_id, customer_id, created_at)
		VALUES ($1,$2,$3,$4)
	`, xref.CardNumber, xref.AccountID, xref.CustomerID, xref.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create card cross-reference", err)
	}
	return nil
}

// GetAccount always reads the row from storage. Balances and limits change
// with every posting, so account state is never served from cache; posting
// decisions additionally re-read the row under FOR UPDATE.
func (d Datasource) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT account_id, balance, credit_limit, cash_credit_limit, status, expiration_date, open_date, reissue_date, cycle_credit, cycle_debit, group_id, created_at
		FROM accounts
		WHERE account_id = $1
	`, accountID)

	acc := &model.Account{}
	err := row.Scan(&acc.AccountID, &acc.Balance, &acc.CreditLimit, &acc.CashCreditLimit, &acc.Status, &acc.ExpirationDate, &acc.OpenDate, &acc.ReissueDate, &acc.CycleCredit, &acc.CycleDebit, &acc.GroupID, &acc.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Account with ID '%s' not found", accountID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve account", err)
	}

	return acc, nil
}

func (d Datasource) GetCardXref(ctx context.Context, cardNumber string) (*model.CardXref, error) {
	if d.Cache != nil {
		cached := &model.CardXref{}
		if err := d.Cache.Get(ctx, xrefCacheKey(cardNumber), cached); err == nil && cached.CardNumber != "" {
			return cached, nil
		}
	}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT card_number, account_id, customer_id, created_at
		FROM card_xref
		WHERE card_number = $1
	`, cardNumber)

	xref := &model.CardXref{}
	err := row.Scan(&xref.CardNumber, &xref.AccountID, &xref.CustomerID, &xref.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Card '%s' not found", cardNumber), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve card cross-reference", err)
	}

	// Xref rows are immutable, so a long TTL is safe.
	if d.Cache != nil {
		_ = d.Cache.Set(ctx, xrefCacheKey(cardNumber), xref, time.Hour)
	}

	return xref, nil
}

// SumPostedAmounts replays the transaction table for one account. Used by
// reconciliation to verify the balance invariant.
func (d Datasource) SumPostedAmounts(ctx context.Context, accountID string) (model.Money, error) {
	var sum model.Money
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE account_id = $1
	`, accountID).Scan(&sum)
	if err != nil {
		return model.Money{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to sum posted amounts", err)
	}
	return sum, nil
}

func (d Datasource) GetCategoryBalance(ctx context.Context, accountID, typeCode, categoryCode string) (model.Money, error) {
	var amount model.Money
	err := d.Conn.QueryRowContext(ctx, `
		SELECT amount
		FROM category_balances
		WHERE account_id = $1 AND type_code = $2 AND category_code = $3
	`, accountID, typeCode, categoryCode).Scan(&amount)
	if err != nil {
		if err == sql.ErrNoRows {
			// No transaction has hit this category yet.
			return model.ZeroMoney(), nil
		}
		return model.Money{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve category balance", err)
	}
	return amount, nil
}
