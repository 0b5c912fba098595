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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/cardledger/cardledger"
	"github.com/cardledger/cardledger/config"
	redis_db "github.com/cardledger/cardledger/internal/redis-db"
)

// processBatchRun drives a queued batch run to completion on the worker.
// Runs are serialized per processing date by the queue's task id, so two
// workers never drive the same date concurrently.
func (l *ledgerInstance) processBatchRun(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("cardledger.batch.worker").Start(ctx, "Process Batch Run From Redis Queue")
	defer span.End()

	var payload cardledger.BatchRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.Error(err)
		return err
	}

	run, err := l.ledger.RunBatch(ctx, payload.ProcessingDate)
	if errors.Is(err, cardledger.ErrClearingExtract) {
		// The run completed and its postings are committed. Returning the
		// error would make the queue re-run the whole batch and post the
		// staged input twice; the extract is regenerated from the run id.
		logrus.Errorf("batch run %s completed but the clearing extract failed: %v", run.RunID, err)
		return nil
	}
	if err != nil {
		logrus.Errorf("batch run for %s failed: %v", payload.ProcessingDate.Format("2006-01-02"), err)
		return err
	}

	log.Println(" [*] Batch Run Completed", run.RunID, cardledger.RenderRejectSummary(run))
	return nil
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisOption.Addr,
			Password: redisOption.Password,
			DB:       redisOption.DB,
		},
		asynq.Config{
			// One run at a time; batch runs own the transaction sequence
			// while they post.
			Concurrency: 1,
			Queues:      queues,
		},
	), nil
}

// workerCommands defines the "workers" command that consumes the batch queue.
func workerCommands(l *ledgerInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start cardledger workers",
		Run: func(cmd *cobra.Command, args []string) {
			conf, err := config.Fetch()
			if err != nil {
				log.Fatalf("Error fetching config: %v", err)
			}

			queues := map[string]int{conf.Batch.Queue: 1}

			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatalf("Error initializing worker server: %v", err)
			}

			mux := asynq.NewServeMux()
			mux.HandleFunc(conf.Batch.Queue, l.processBatchRun)

			if err := srv.Run(mux); err != nil {
				log.Fatalf("Error running worker server: %v", err)
			}
		},
	}

	return cmd
}
