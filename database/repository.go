package database

import (
	"context"
	"time"

	"github.com/cardledger/cardledger/model"
)

type IDataSource interface {
	account
	transaction
	reject
	batch
}

type account interface {
	CreateAccount(ctx context.Context, acc *model.Account) (*model.Account, error)
	CreateCardXref(ctx context.Context, xref *model.CardXref) error
	GetAccount(ctx context.Context, accountID string) (*model.Account, error)
	GetCardXref(ctx context.Context, cardNumber string) (*model.CardXref, error)
	SumPostedAmounts(ctx context.Context, accountID string) (model.Money, error)
	GetCategoryBalance(ctx context.Context, accountID, typeCode, categoryCode string) (model.Money, error)
}

type transaction interface {
	PostTransaction(ctx context.Context, txn *model.Transaction, asOf time.Time) (*model.Transaction, *model.Rejection, error)
	GetTransaction(ctx context.Context, id int64) (*model.Transaction, error)
	GetBatchTransactions(ctx context.Context, runID string) ([]*model.Transaction, error)
	MaxTransactionID(ctx context.Context) (int64, error)
}

type reject interface {
	RecordReject(ctx context.Context, rec *model.RejectRecord) error
	GetBatchRejects(ctx context.Context, runID string) ([]*model.RejectRecord, error)
}

type batch interface {
	CreateBatchRun(ctx context.Context, run *model.BatchRun) error
	UpdateBatchRun(ctx context.Context, run *model.BatchRun) error
	GetBatchRun(ctx context.Context, runID string) (*model.BatchRun, error)
	LoadBatchInput(ctx context.Context, processingDate time.Time, items []*model.ProposedTransaction) (int64, error)
	GetBatchItems(ctx context.Context, processingDate time.Time, offset int64, limit int) ([]*model.ProposedTransaction, error)
	CommitChunk(ctx context.Context, run *model.BatchRun, items []*model.ChunkItem) error
}
