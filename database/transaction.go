package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/cardledger/cardledger/internal/apierror"
	"github.com/cardledger/cardledger/model"
)

// nextTransactionID allocates the next identifier inside the caller's SQL
// transaction. The single-row sequence table serializes allocation through
// its row lock, and because the increment commits or rolls back with the
// posting itself, identifiers are gapless and strictly increasing across
// interactive and batch writers. A Postgres SEQUENCE would leak gaps on
// rollback; an in-process counter would not survive restarts.
func nextTransactionID(ctx context.Context, tx *sql.Tx) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
		UPDATE transaction_sequence SET last_id = last_id + 1 WHERE id = 1 RETURNING last_id
	`).Scan(&id)
	if err == sql.ErrNoRows {
		// First allocation ever: seed from durable state. The primary key
		// makes concurrent seeders collide, and ON CONFLICT turns the loser
		// into a plain increment once the winner's row is visible.
		err = tx.QueryRowContext(ctx, `
			INSERT INTO transaction_sequence(id, last_id)
			SELECT 1, COALESCE(MAX(transaction_id), 0) + 1 FROM transactions
			ON CONFLICT (id) DO UPDATE SET last_id = transaction_sequence.last_id + 1
			RETURNING last_id
		`).Scan(&id)
	}
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to allocate transaction id", err)
	}
	return id, nil
}

// lockAccount reads the account row under FOR UPDATE so balance math inside
// the transaction sees a consistent prior state even if the Redis lock above
// it was lost.
func lockAccount(ctx context.Context, tx *sql.Tx, accountID string) (*model.Account, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT account_id, balance, credit_limit, cash_credit_limit, status, expiration_date, open_date, reissue_date, cycle_credit, cycle_debit, group_id, created_at
		FROM accounts
		WHERE account_id = $1
		FOR UPDATE
	`, accountID)

	acc := &model.Account{}
	err := row.Scan(&acc.AccountID, &acc.Balance, &acc.CreditLimit, &acc.CashCreditLimit, &acc.Status, &acc.ExpirationDate, &acc.OpenDate, &acc.ReissueDate, &acc.CycleCredit, &acc.CycleDebit, &acc.GroupID, &acc.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Account with ID '%s' not found", accountID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock account", err)
	}
	return acc, nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, txn *model.Transaction) error {
	var runID sql.NullString
	if txn.BatchRunID != "" {
		runID = sql.NullString{String: txn.BatchRunID, Valid: true}
	}
	// Not every posting originates from a card; bill payments carry none.
	var cardNumber sql.NullString
	if txn.CardNumber != "" {
		cardNumber = sql.NullString{String: txn.CardNumber, Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions(transaction_id, account_id, card_number, amount, type_code, category_code, source, description, merchant_id, merchant_name, merchant_city, merchant_zip, balance_before, balance_after, batch_run_id, originated_at, processed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, txn.TransactionID, txn.AccountID, cardNumber, txn.Amount, txn.TypeCode, txn.CategoryCode, txn.Source, txn.Description, txn.MerchantID, txn.MerchantName, txn.MerchantCity, txn.MerchantZip, txn.BalanceBefore, txn.BalanceAfter, runID, txn.OriginatedAt, txn.ProcessedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record transaction", err)
	}
	return nil
}

func updateAccount(ctx context.Context, tx *sql.Tx, acc *model.Account) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $2, cycle_credit = $3, cycle_debit = $4
		WHERE account_id = $1
	`, acc.AccountID, acc.Balance, acc.CycleCredit, acc.CycleDebit)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update account balance", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Account with ID '%s' not found", acc.AccountID), nil)
	}
	return nil
}

func upsertCategoryBalance(ctx context.Context, tx *sql.Tx, txn *model.Transaction) error {
	// NUMERIC addition at scale 2 is exact, so the running total can be
	// maintained in the store.
	_, err := tx.ExecContext(ctx, `
		INSERT INTO category_balances(account_id, type_code, category_code, amount)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (account_id, type_code, category_code)
		DO UPDATE SET amount = category_balances.amount + EXCLUDED.amount
	`, txn.AccountID, txn.TypeCode, txn.CategoryCode, txn.Amount)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update category balance", err)
	}
	return nil
}

// postInTx runs the four posting steps against an open transaction:
// allocate id, insert the fact record, move the account balance, and roll the
// category balance. The caller owns commit and rollback.
func postInTx(ctx context.Context, tx *sql.Tx, txn *model.Transaction, asOf time.Time) (*model.Transaction, *model.Rejection, error) {
	acc, err := lockAccount(ctx, tx, txn.AccountID)
	if err != nil {
		return nil, nil, err
	}

	// The limit decision has to see the balance as of this lock, including
	// any postings earlier in the same transaction.
	if rejection := acc.ValidatePosting(txn.Amount, asOf); rejection != nil {
		return nil, rejection, nil
	}

	id, err := nextTransactionID(ctx, tx)
	if err != nil {
		return nil, nil, err
	}
	txn.TransactionID = id

	acc.ApplyTransaction(txn)

	if err := insertTransaction(ctx, tx, txn); err != nil {
		return nil, nil, err
	}
	if err := updateAccount(ctx, tx, acc); err != nil {
		return nil, nil, err
	}
	if err := upsertCategoryBalance(ctx, tx, txn); err != nil {
		return nil, nil, err
	}
	return txn, nil, nil
}

// PostTransaction is the interactive atomic unit: all four posting steps
// commit together or none are visible. A non-nil rejection means the locked
// account refused the amount and nothing was written.
func (d Datasource) PostTransaction(ctx context.Context, txn *model.Transaction, asOf time.Time) (*model.Transaction, *model.Rejection, error) {
	ctx, span := otel.Tracer("posting.database").Start(ctx, "Posting transaction to db")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	txn, rejection, err := postInTx(ctx, tx, txn, asOf)
	if err != nil {
		return nil, nil, err
	}
	if rejection != nil {
		return nil, rejection, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return txn, nil, nil
}

func scanTransaction(scanner interface{ Scan(...interface{}) error }) (*model.Transaction, error) {
	txn := &model.Transaction{}
	var cardNumber, runID sql.NullString
	err := scanner.Scan(&txn.TransactionID, &txn.AccountID, &cardNumber, &txn.Amount, &txn.TypeCode, &txn.CategoryCode, &txn.Source, &txn.Description, &txn.MerchantID, &txn.MerchantName, &txn.MerchantCity, &txn.MerchantZip, &txn.BalanceBefore, &txn.BalanceAfter, &runID, &txn.OriginatedAt, &txn.ProcessedAt)
	if err != nil {
		return nil, err
	}
	txn.CardNumber = cardNumber.String
	txn.BatchRunID = runID.String
	return txn, nil
}

const transactionColumns = `transaction_id, account_id, card_number, amount, type_code, category_code, source, description, merchant_id, merchant_name, merchant_city, merchant_zip, balance_before, balance_after, batch_run_id, originated_at, processed_at`

func (d Datasource) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE transaction_id = $1
	`, id)

	txn, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%d' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction", err)
	}
	return txn, nil
}

// GetBatchTransactions returns a run's posted transactions in identifier
// order, the order the clearing extract renders them in.
func (d Datasource) GetBatchTransactions(ctx context.Context, runID string) ([]*model.Transaction, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE batch_run_id = $1
		ORDER BY transaction_id ASC
	`, runID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve batch transactions", err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transaction data", err)
		}
		transactions = append(transactions, txn)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over transactions", err)
	}
	return transactions, nil
}

func (d Datasource) MaxTransactionID(ctx context.Context) (int64, error) {
	var max int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(transaction_id), 0) FROM transactions
	`).Scan(&max)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get max transaction id", err)
	}
	return max, nil
}
