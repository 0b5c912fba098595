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
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cardledger/cardledger"
	"github.com/cardledger/cardledger/config"
	"github.com/cardledger/cardledger/database"
)

type CLI struct {
	cmd *cobra.Command
}

// ledgerInstance carries the initialized engine and configuration into the
// subcommands.
type ledgerInstance struct {
	ledger *cardledger.CardLedger
	cnf    *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

func preRun(app *ledgerInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("cardledger.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newLedger, err := setupLedger(cnf)
		if err != nil {
			log.Fatal(err)
		}

		app.ledger = newLedger
		app.cnf = cnf

		return nil
	}
}

func setupLedger(cfg *config.Configuration) (*cardledger.CardLedger, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newLedger, err := cardledger.NewCardLedger(db)
	if err != nil {
		return nil, fmt.Errorf("error creating ledger: %v", err)
	}
	return newLedger, nil
}

func NewCLI() *CLI {
	var configFile string
	l := &ledgerInstance{}

	var rootCmd = &cobra.Command{
		Use:   "cardledger",
		Short: "Card account posting and reconciliation engine",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./cardledger.json", "Configuration file for the engine")
	rootCmd.PersistentPreRunE = preRun(l)

	rootCmd.AddCommand(serverCommands(l))
	rootCmd.AddCommand(workerCommands(l))
	rootCmd.AddCommand(batchCommands(l))
	rootCmd.AddCommand(migrateCommands(l))

	return &CLI{cmd: rootCmd}
}

func (w CLI) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
