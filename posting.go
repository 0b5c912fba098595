package cardledger

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardledger/cardledger/config"
	"github.com/cardledger/cardledger/internal/apierror"
	redlock "github.com/cardledger/cardledger/internal/lock"
	"github.com/cardledger/cardledger/model"
)

var tracer = otel.Tracer("cardledger.engine")

const (
	accountLockTTL  = 30 * time.Second
	accountLockWait = 10 * time.Second
)

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.Error(msg, err)
	return err
}

func (c *CardLedger) acquireAccountLock(ctx context.Context, accountID string) (*redlock.Locker, error) {
	locker := redlock.NewLocker(c.redis, fmt.Sprintf("post:%s", accountID), model.GenerateUUIDWithSuffix("loc"))
	if err := locker.WaitLock(ctx, accountLockTTL, accountLockWait); err != nil {
		return nil, err
	}
	return locker, nil
}

// storageContext bounds a storage call; a timed-out posting attempt surfaces
// as a failure so the caller decides whether to resubmit.
func (c *CardLedger) storageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	cfg, err := config.Fetch()
	if err != nil {
		return context.WithTimeout(ctx, config.DefaultStorageTimeoutSec*time.Second)
	}
	return context.WithTimeout(ctx, time.Duration(cfg.Batch.StorageTimeoutSec)*time.Second)
}

// SubmitTransaction resolves a proposal's card and posts it. A refused
// proposal is persisted as an online reject record and surfaced to the
// caller as an error carrying the reason code.
func (c *CardLedger) SubmitTransaction(ctx context.Context, proposed *model.ProposedTransaction) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Submitting transaction")
	defer span.End()

	accountID, rejection, err := c.resolveCard(ctx, proposed.CardNumber)
	if err != nil {
		return nil, logAndRecordError(span, "card lookup error: ", err)
	}
	if rejection == nil {
		var txn *model.Transaction
		txn, rejection, err = c.RecordTransaction(ctx, proposed, accountID, time.Now())
		if err != nil {
			return nil, err
		}
		if rejection == nil {
			return txn, nil
		}
	}

	if _, err := c.RecordReject(ctx, proposed, rejection); err != nil {
		return nil, logAndRecordError(span, "reject write error: ", err)
	}
	code := apierror.ErrValidation
	if rejection.BusinessRule {
		code = apierror.ErrBusinessRule
	}
	return nil, apierror.NewAPIError(code, rejection.Message, map[string]interface{}{
		"reason_code": rejection.Code,
	})
}

// RecordTransaction applies a proposal to the resolved account as one atomic
// unit: lock the account row, run the account-state checks against it,
// allocate the next identifier, persist the fact record, move the balance,
// and roll the category balance. Serialized per account so concurrent
// payments compute against a consistent prior balance. A non-nil rejection
// means the locked row refused the posting.
func (c *CardLedger) RecordTransaction(ctx context.Context, proposed *model.ProposedTransaction, accountID string, asOf time.Time) (*model.Transaction, *model.Rejection, error) {
	ctx, span := tracer.Start(ctx, "Recording transaction")
	defer span.End()

	locker, err := c.acquireAccountLock(ctx, accountID)
	if err != nil {
		return nil, nil, logAndRecordError(span, "account lock error: ", err)
	}
	defer func(locker *redlock.Locker, ctx context.Context) {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Error("lock error", err)
		}
	}(locker, ctx)

	txn := proposed.ToTransaction(accountID, time.Now())

	sctx, cancel := c.storageContext(ctx)
	defer cancel()
	txn, rejection, err := c.datasource.PostTransaction(sctx, txn, asOf)
	if err != nil {
		return nil, nil, logAndRecordError(span, "posting error: ", err)
	}

	return txn, rejection, nil
}
