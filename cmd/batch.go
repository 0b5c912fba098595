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
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardledger/cardledger"
	"github.com/cardledger/cardledger/model"
)

// batchCommands groups the batch operations: load input, run, resume.
func batchCommands(l *ledgerInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "manage cardledger batch runs",
	}

	cmd.AddCommand(batchLoadCommands(l))
	cmd.AddCommand(batchRunCommands(l))
	cmd.AddCommand(batchResumeCommands(l))

	return cmd
}

func batchLoadCommands(l *ledgerInstance) *cobra.Command {
	var file string
	var date string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "stage a transaction input file for a processing date",
		Run: func(cmd *cobra.Command, args []string) {
			processingDate, err := time.Parse("2006-01-02", date)
			if err != nil {
				log.Fatalf("invalid --date, expected YYYY-MM-DD: %v", err)
			}

			items, err := readBatchInputFile(file)
			if err != nil {
				log.Fatalf("Error reading input file: %v", err)
			}

			total, err := l.ledger.LoadBatchInput(context.Background(), processingDate, items)
			if err != nil {
				log.Fatalf("Error staging input: %v", err)
			}
			fmt.Printf("Staged %d records, %d total for %s\n", len(items), total, date)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "CSV input file")
	cmd.Flags().StringVar(&date, "date", "", "processing date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func batchRunCommands(l *ledgerInstance) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the posting batch for a processing date",
		Run: func(cmd *cobra.Command, args []string) {
			processingDate, err := time.Parse("2006-01-02", date)
			if err != nil {
				log.Fatalf("invalid --date, expected YYYY-MM-DD: %v", err)
			}

			run, err := l.ledger.RunBatch(context.Background(), processingDate)
			if errors.Is(err, cardledger.ErrClearingExtract) {
				// Postings are committed; only the extract needs regenerating.
				log.Printf("Batch run completed but the clearing extract failed: %v", err)
				fmt.Println(cardledger.RenderRejectSummary(run))
				return
			}
			if err != nil {
				log.Fatalf("Batch run failed: %v", err)
			}
			fmt.Println(cardledger.RenderRejectSummary(run))
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "processing date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func batchResumeCommands(l *ledgerInstance) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "resume an interrupted batch run from its last committed chunk",
		Run: func(cmd *cobra.Command, args []string) {
			run, err := l.ledger.ResumeBatch(context.Background(), runID)
			if errors.Is(err, cardledger.ErrClearingExtract) {
				log.Printf("Batch run completed but the clearing extract failed: %v", err)
				fmt.Println(cardledger.RenderRejectSummary(run))
				return
			}
			if err != nil {
				log.Fatalf("Batch resume failed: %v", err)
			}
			fmt.Println(cardledger.RenderRejectSummary(run))
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "batch run id")
	_ = cmd.MarkFlagRequired("run-id")

	return cmd
}

// readBatchInputFile parses a CSV of proposed transactions:
// card_number,amount,type_code,category_code,source,description,
// merchant_id,merchant_name,merchant_city,merchant_zip,originated_at
func readBatchInputFile(path string) ([]*model.ProposedTransaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 11

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	items := make([]*model.ProposedTransaction, 0, len(records))
	for i, rec := range records {
		amount, err := model.NewMoney(rec[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad amount %q: %w", i+1, rec[1], err)
		}
		originatedAt, err := time.Parse(time.RFC3339, rec[10])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad originated_at %q: %w", i+1, rec[10], err)
		}
		items = append(items, &model.ProposedTransaction{
			CardNumber:   rec[0],
			Amount:       amount,
			TypeCode:     rec[2],
			CategoryCode: rec[3],
			Source:       rec[4],
			Description:  rec[5],
			MerchantID:   rec[6],
			MerchantName: rec[7],
			MerchantCity: rec[8],
			MerchantZip:  rec[9],
			OriginatedAt: originatedAt,
		})
	}
	return items, nil
}
