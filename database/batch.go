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

func (d Datasource) CreateBatchRun(ctx context.Context, run *model.BatchRun) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO batch_runs(run_id, processing_date, status, read_count, posted_count, reject_count, last_committed_offset, error_message, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, run.RunID, run.ProcessingDate, run.Status, run.ReadCount, run.PostedCount, run.RejectCount, run.LastCommittedOffset, run.ErrorMessage, run.StartedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create batch run", err)
	}
	return nil
}

func (d Datasource) UpdateBatchRun(ctx context.Context, run *model.BatchRun) error {
	return updateBatchRun(ctx, d.Conn, run)
}

func updateBatchRun(ctx context.Context, execer interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
}, run *model.BatchRun) error {
	var finished sql.NullTime
	if !run.FinishedAt.IsZero() {
		finished = sql.NullTime{Time: run.FinishedAt, Valid: true}
	}
	result, err := execer.ExecContext(ctx, `
		UPDATE batch_runs
		SET status = $2, read_count = $3, posted_count = $4, reject_count = $5, last_committed_offset = $6, error_message = $7, finished_at = $8
		WHERE run_id = $1
	`, run.RunID, run.Status, run.ReadCount, run.PostedCount, run.RejectCount, run.LastCommittedOffset, run.ErrorMessage, finished)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update batch run", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Batch run '%s' not found", run.RunID), nil)
	}
	return nil
}

func (d Datasource) GetBatchRun(ctx context.Context, runID string) (*model.BatchRun, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT run_id, processing_date, status, read_count, posted_count, reject_count, last_committed_offset, error_message, started_at, finished_at
		FROM batch_runs
		WHERE run_id = $1
	`, runID)

	run := &model.BatchRun{}
	var finished sql.NullTime
	err := row.Scan(&run.RunID, &run.ProcessingDate, &run.Status, &run.ReadCount, &run.PostedCount, &run.RejectCount, &run.LastCommittedOffset, &run.ErrorMessage, &run.StartedAt, &finished)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Batch run '%s' not found", runID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve batch run", err)
	}
	run.FinishedAt = finished.Time
	return run, nil
}

// LoadBatchInput stages a daily feed. Line numbers start at 1 and preserve
// input order; the staging table is the re-iterable batch source restarts
// read from.
func (d Datasource) LoadBatchInput(ctx context.Context, processingDate time.Time, items []*model.ProposedTransaction) (int64, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var start int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(line_no), 0) FROM batch_staging WHERE processing_date = $1
	`, processingDate).Scan(&start)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read staging high-water mark", err)
	}

	for i, item := range items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO batch_staging(processing_date, line_no, card_number, amount, type_code, category_code, source, description, merchant_id, merchant_name, merchant_city, merchant_zip, originated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, processingDate, start+int64(i)+1, item.CardNumber, item.Amount, item.TypeCode, item.CategoryCode, item.Source, item.Description, item.MerchantID, item.MerchantName, item.MerchantCity, item.MerchantZip, item.OriginatedAt)
		if err != nil {
			return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to stage batch input", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit staged input", err)
	}
	return int64(len(items)), nil
}

// GetBatchItems reads one chunk of staged input in order, starting after the
// given offset.
func (d Datasource) GetBatchItems(ctx context.Context, processingDate time.Time, offset int64, limit int) ([]*model.ProposedTransaction, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT card_number, amount, type_code, category_code, source, description, merchant_id, merchant_name, merchant_city, merchant_zip, originated_at
		FROM batch_staging
		WHERE processing_date = $1 AND line_no > $2
		ORDER BY line_no ASC
		LIMIT $3
	`, processingDate, offset, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve batch items", err)
	}
	defer rows.Close()

	var items []*model.ProposedTransaction
	for rows.Next() {
		item := &model.ProposedTransaction{}
		err = rows.Scan(&item.CardNumber, &item.Amount, &item.TypeCode, &item.CategoryCode, &item.Source, &item.Description, &item.MerchantID, &item.MerchantName, &item.MerchantCity, &item.MerchantZip, &item.OriginatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan batch item", err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over batch items", err)
	}
	return items, nil
}

// CommitChunk is the batch recovery unit: every accepted posting, every
// reject record, and the run's counts and progress marker commit in one SQL
// transaction. A crash mid-chunk rolls the whole chunk back, so restart
// reprocesses only items after LastCommittedOffset.
//
// Items are applied in input order against locked account rows, so a second
// item for an account sees the balance left by the first. An item rejected
// by its account becomes a reject record inside the same transaction.
func (d Datasource) CommitChunk(ctx context.Context, run *model.BatchRun, items []*model.ChunkItem) error {
	ctx, span := otel.Tracer("posting.database").Start(ctx, "Committing batch chunk")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, item := range items {
		rejection := item.Rejection
		if rejection == nil {
			txn := item.Proposed.ToTransaction(item.AccountID, run.ProcessingDate)
			txn.BatchRunID = run.RunID
			_, rejection, err = postInTx(ctx, tx, txn, run.ProcessingDate)
			if err != nil {
				return err
			}
		}
		if rejection == nil {
			run.PostedCount++
			continue
		}
		if err := insertReject(ctx, tx, model.NewRejectRecord(run.RunID, item.Proposed, rejection)); err != nil {
			return err
		}
		run.RejectCount++
	}

	run.ReadCount += int64(len(items))
	run.LastCommittedOffset += int64(len(items))

	if err := updateBatchRun(ctx, tx, run); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit chunk", err)
	}
	return nil
}
