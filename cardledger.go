/*
Copyright 2024 CardLedger Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cardledger

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cardledger/cardledger/config"
	"github.com/cardledger/cardledger/database"
	redis_db "github.com/cardledger/cardledger/internal/redis-db"
	"github.com/cardledger/cardledger/model"
)

// CardLedger is the posting and reconciliation engine. Both the interactive
// facade and the batch orchestrator go through the same validation and
// posting pipeline underneath.
type CardLedger struct {
	datasource database.IDataSource
	redis      redis.UniversalClient
	queue      *Queue
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewCardLedger initializes the engine with the provided datasource,
// wiring Redis (per-account locks) and the batch queue from configuration.
func NewCardLedger(db database.IDataSource) (*CardLedger, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)})
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)

	return &CardLedger{datasource: db, queue: newQueue, redis: redisClient.Client()}, nil
}

func (c *CardLedger) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	return c.datasource.GetAccount(ctx, accountID)
}

func (c *CardLedger) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	return c.datasource.GetTransaction(ctx, id)
}

func (c *CardLedger) GetBatchRun(ctx context.Context, runID string) (*model.BatchRun, error) {
	return c.datasource.GetBatchRun(ctx, runID)
}

func (c *CardLedger) GetCategoryBalance(ctx context.Context, accountID, typeCode, categoryCode string) (model.Money, error) {
	return c.datasource.GetCategoryBalance(ctx, accountID, typeCode, categoryCode)
}

// LoadBatchInput stages proposed transactions for a processing date and
// returns how many lines the staging table now holds for that date.
func (c *CardLedger) LoadBatchInput(ctx context.Context, processingDate time.Time, items []*model.ProposedTransaction) (int64, error) {
	return c.datasource.LoadBatchInput(ctx, processingDate, items)
}

// QueueBatchRun hands a batch run to the worker pool instead of driving it
// on the caller's goroutine.
func (c *CardLedger) QueueBatchRun(processingDate time.Time) error {
	return c.queue.EnqueueBatchRun(processingDate)
}
