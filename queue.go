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
	"encoding/json"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/cardledger/cardledger/config"
	redis_db "github.com/cardledger/cardledger/internal/redis-db"
)

// Queue hands batch runs to the worker pool over Redis.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// BatchRunPayload is the task body for a queued batch run.
type BatchRunPayload struct {
	ProcessingDate time.Time `json:"processing_date"`
}

func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueueBatchRun queues one run per processing date. The task id is derived
// from the date, so a duplicate submission of the same date is dropped by
// the queue rather than starting a second run.
func (q *Queue) EnqueueBatchRun(processingDate time.Time) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(BatchRunPayload{ProcessingDate: processingDate})
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.TaskID("batch:" + processingDate.Format("2006-01-02")),
		asynq.Queue(cfg.Batch.Queue),
	}
	task := asynq.NewTask(cfg.Batch.Queue, payload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued batch run for %s", processingDate.Format("2006-01-02"))
	return nil
}
