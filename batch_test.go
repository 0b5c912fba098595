package cardledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardledger/cardledger/config"
	"github.com/cardledger/cardledger/internal/apierror"
	"github.com/cardledger/cardledger/model"
)

func emptyStagingRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"card_number", "amount", "type_code", "category_code", "source", "description", "merchant_id", "merchant_name", "merchant_city", "merchant_zip", "originated_at"})
}

func emptyTransactionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"transaction_id", "account_id", "card_number", "amount", "type_code", "category_code", "source", "description", "merchant_id", "merchant_name", "merchant_city", "merchant_zip", "balance_before", "balance_after", "batch_run_id", "originated_at", "processed_at"})
}

func readClearingFile(t *testing.T, date string) string {
	t.Helper()
	cfg, err := config.Fetch()
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(cfg.Clearing.Dir, "clearing-"+date+".dat"))
	require.NoError(t, err)
	return string(data)
}

func TestRunBatchEmptyInput(t *testing.T) {
	ledger, mock := newTestLedger(t)
	date := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO batch_runs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("FROM batch_staging").
		WithArgs(date, int64(0), config.DefaultChunkSize).
		WillReturnRows(emptyStagingRows())
	mock.ExpectExec("UPDATE batch_runs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM transactions").
		WillReturnRows(emptyTransactionRows())

	run, err := ledger.RunBatch(context.Background(), date)
	require.NoError(t, err)

	assert.Equal(t, model.BatchCompleted, run.Status)
	assert.Zero(t, run.ReadCount)
	assert.Zero(t, run.PostedCount)
	assert.Zero(t, run.RejectCount)

	// An empty run still produces an extract, flagged as no activity.
	assert.Contains(t, readClearingFile(t, "2024-05-02"), "NO ACTIVITY 2024-05-02")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunBatchPostsAndRejects(t *testing.T) {
	ledger, mock := newTestLedger(t)
	date := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	expiration := time.Now().AddDate(2, 0, 0)
	originated := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO batch_runs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	// One chunk with an accepted item and an over-limit item.
	mock.ExpectQuery("FROM batch_staging").
		WithArgs(date, int64(0), config.DefaultChunkSize).
		WillReturnRows(emptyStagingRows().
			AddRow("4111111111111111", "25.50", "01", "02", "POS", "COFFEE", "M1", "COFFEE SHOP", "SEATTLE", "98101", originated).
			AddRow("4222222222222222", "900.00", "01", "02", "POS", "JEWELER", "M2", "JEWELER", "SEATTLE", "98101", originated))

	mock.ExpectQuery("FROM card_xref").
		WithArgs("4111111111111111").
		WillReturnRows(mockXrefRows("4111111111111111", "acc_1"))
	mock.ExpectQuery("FROM card_xref").
		WithArgs("4222222222222222").
		WillReturnRows(mockXrefRows("4222222222222222", "acc_2"))

	mock.ExpectBegin()
	mock.ExpectQuery("(?s)FROM accounts.+FOR UPDATE").
		WithArgs("acc_1").
		WillReturnRows(mockAccountRows("acc_1", "100.00", "5000.00", "ACTIVE", expiration))
	mock.ExpectQuery("UPDATE transaction_sequence").
		WillReturnRows(sqlmock.NewRows([]string{"last_id"}).AddRow(7))
	mock.ExpectExec("INSERT INTO transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE accounts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO category_balances").
		WillReturnResult(sqlmock.NewResult(1, 1))
	// The second item's locked row is already at 4900.00 against a 5000.00
	// limit, so its 900.00 posting lands as a reject instead.
	mock.ExpectQuery("(?s)FROM accounts.+FOR UPDATE").
		WithArgs("acc_2").
		WillReturnRows(mockAccountRows("acc_2", "4900.00", "5000.00", "ACTIVE", expiration))
	mock.ExpectExec("INSERT INTO reject_records").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE batch_runs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// Next chunk is empty, the run finishes.
	mock.ExpectQuery("FROM batch_staging").
		WithArgs(date, int64(2), config.DefaultChunkSize).
		WillReturnRows(emptyStagingRows())
	mock.ExpectExec("UPDATE batch_runs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery("FROM transactions").
		WillReturnRows(emptyTransactionRows().
			AddRow(int64(7), "acc_1", "4111111111111111", "25.50", "01", "02", "POS", "COFFEE", "M1", "COFFEE SHOP", "SEATTLE", "98101", "100.00", "125.50", "run_x", originated, date))

	run, err := ledger.RunBatch(context.Background(), date)
	require.NoError(t, err)

	assert.Equal(t, model.BatchCompletedWithRejects, run.Status)
	assert.Equal(t, int64(2), run.ReadCount)
	assert.Equal(t, int64(1), run.PostedCount)
	assert.Equal(t, int64(1), run.RejectCount)
	assert.Equal(t, int64(2), run.LastCommittedOffset)

	extract := readClearingFile(t, "2024-05-02")
	assert.Contains(t, extract, "000000000007")
	assert.Contains(t, extract, "acc_1")
	assert.Contains(t, extract, "25.50")

	assert.NoError(t, mock.ExpectationsWereMet())
}

// Two staged items draw on the same account, and only the first fits under
// the limit. The second item's lock read sees the balance the first posting
// left behind, so it rejects instead of posting past the limit.
func TestRunBatchSameAccountOverLimitWithinChunk(t *testing.T) {
	ledger, mock := newTestLedger(t)
	date := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	expiration := time.Now().AddDate(2, 0, 0)
	originated := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO batch_runs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectQuery("FROM batch_staging").
		WithArgs(date, int64(0), config.DefaultChunkSize).
		WillReturnRows(emptyStagingRows().
			AddRow("4111111111111111", "60.00", "01", "02", "POS", "FIRST", "M1", "SHOP", "SEATTLE", "98101", originated).
			AddRow("4111111111111111", "60.00", "01", "02", "POS", "SECOND", "M1", "SHOP", "SEATTLE", "98101", originated))

	mock.ExpectQuery("FROM card_xref").
		WithArgs("4111111111111111").
		WillReturnRows(mockXrefRows("4111111111111111", "acc_1"))
	mock.ExpectQuery("FROM card_xref").
		WithArgs("4111111111111111").
		WillReturnRows(mockXrefRows("4111111111111111", "acc_1"))

	mock.ExpectBegin()
	mock.ExpectQuery("(?s)FROM accounts.+FOR UPDATE").
		WithArgs("acc_1").
		WillReturnRows(mockAccountRows("acc_1", "1900.00", "2000.00", "ACTIVE", expiration))
	mock.ExpectQuery("UPDATE transaction_sequence").
		WillReturnRows(sqlmock.NewRows([]string{"last_id"}).AddRow(7))
	mock.ExpectExec("INSERT INTO transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE accounts").
		WithArgs("acc_1", "1960.00", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO category_balances").
		WillReturnResult(sqlmock.NewResult(1, 1))
	// Re-locking inside the same transaction reads 1960.00, not the
	// pre-chunk 1900.00; another 60.00 would land at 2020.00 over the
	// 2000.00 limit.
	mock.ExpectQuery("(?s)FROM accounts.+FOR UPDATE").
		WithArgs("acc_1").
		WillReturnRows(mockAccountRows("acc_1", "1960.00", "2000.00", "ACTIVE", expiration))
	mock.ExpectExec("INSERT INTO reject_records").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE batch_runs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery("FROM batch_staging").
		WithArgs(date, int64(2), config.DefaultChunkSize).
		WillReturnRows(emptyStagingRows())
	mock.ExpectExec("UPDATE batch_runs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM transactions").
		WillReturnRows(emptyTransactionRows())

	run, err := ledger.RunBatch(context.Background(), date)
	require.NoError(t, err)

	assert.Equal(t, model.BatchCompletedWithRejects, run.Status)
	assert.Equal(t, int64(1), run.PostedCount)
	assert.Equal(t, int64(1), run.RejectCount)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunBatchClearingExtractFailure(t *testing.T) {
	ledger, mock := newTestLedger(t)
	date := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	// Point the clearing directory under a regular file so the extract
	// write fails after the run has completed.
	cfg, err := config.Fetch()
	require.NoError(t, err)
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.Clearing.Dir = filepath.Join(blocker, "out")

	mock.ExpectExec("INSERT INTO batch_runs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("FROM batch_staging").
		WithArgs(date, int64(0), config.DefaultChunkSize).
		WillReturnRows(emptyStagingRows())
	mock.ExpectExec("UPDATE batch_runs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM transactions").
		WillReturnRows(emptyTransactionRows())

	run, err := ledger.RunBatch(context.Background(), date)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClearingExtract)

	// The postings are final; only the extract needs regenerating.
	assert.Equal(t, model.BatchCompleted, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResumeBatchNotResumable(t *testing.T) {
	ledger, mock := newTestLedger(t)
	date := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM batch_runs").
		WithArgs("run_done").
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "processing_date", "status", "read_count", "posted_count", "reject_count", "last_committed_offset", "error_message", "started_at", "finished_at"}).
			AddRow("run_done", date, "COMPLETED", int64(10), int64(10), int64(0), int64(10), "", time.Now(), time.Now()))

	_, err := ledger.ResumeBatch(context.Background(), "run_done")
	require.Error(t, err)
	assert.Equal(t, apierror.ErrConflict, apierror.CodeOf(err))
}

func TestResumeBatchSkipsCommittedChunks(t *testing.T) {
	ledger, mock := newTestLedger(t)
	date := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM batch_runs").
		WithArgs("run_1").
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "processing_date", "status", "read_count", "posted_count", "reject_count", "last_committed_offset", "error_message", "started_at", "finished_at"}).
			AddRow("run_1", date, "ERROR", int64(250), int64(250), int64(0), int64(250), "db down", time.Now(), nil))

	// Reset to running, then resume reading after the progress marker.
	mock.ExpectExec("UPDATE batch_runs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM batch_staging").
		WithArgs(date, int64(250), config.DefaultChunkSize).
		WillReturnRows(emptyStagingRows())
	mock.ExpectExec("UPDATE batch_runs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM transactions").
		WillReturnRows(emptyTransactionRows())

	run, err := ledger.ResumeBatch(context.Background(), "run_1")
	require.NoError(t, err)
	assert.Equal(t, model.BatchCompleted, run.Status)
	assert.Empty(t, run.ErrorMessage)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriveRunCancelledBetweenChunks(t *testing.T) {
	ledger, mock := newTestLedger(t)
	date := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	// The error state is persisted best effort with a fresh context.
	mock.ExpectExec("UPDATE batch_runs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := ledger.driveRun(ctx, model.NewBatchRun(date))
	require.Error(t, err)
	assert.Equal(t, model.BatchError, run.Status)
	assert.True(t, run.Resumable())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRenderRejectSummary(t *testing.T) {
	run := &model.BatchRun{
		ReadCount:   500,
		RejectCount: 12,
		Status:      model.BatchCompletedWithRejects,
	}
	assert.Equal(t, "500 transactions processed, 12 rejected, status: COMPLETED_WITH_REJECTIONS", RenderRejectSummary(run))
}
