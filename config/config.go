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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "4100"

	// DefaultChunkSize bounds how many batch items commit as one recovery unit.
	DefaultChunkSize = 250
	// DefaultSkipLimit bounds automatic retries of a failed chunk commit.
	DefaultSkipLimit = 3
	// DefaultStorageTimeoutSec bounds every storage call in the posting path.
	DefaultStorageTimeoutSec = 5
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Port string `json:"port" envconfig:"CARDLEDGER_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"CARDLEDGER_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"CARDLEDGER_REDIS_DNS"`
}

type BatchConfig struct {
	ChunkSize         int    `json:"chunk_size" envconfig:"CARDLEDGER_BATCH_CHUNK_SIZE"`
	SkipLimit         int    `json:"skip_limit" envconfig:"CARDLEDGER_BATCH_SKIP_LIMIT"`
	Queue             string `json:"queue" envconfig:"CARDLEDGER_BATCH_QUEUE"`
	StorageTimeoutSec int    `json:"storage_timeout_sec" envconfig:"CARDLEDGER_BATCH_STORAGE_TIMEOUT_SEC"`
}

type ClearingConfig struct {
	Dir                string `json:"dir" envconfig:"CARDLEDGER_CLEARING_DIR"`
	S3BucketName       string `json:"s3_bucket_name" envconfig:"CARDLEDGER_CLEARING_S3_BUCKET"`
	S3Region           string `json:"s3_region" envconfig:"CARDLEDGER_CLEARING_S3_REGION"`
	S3Endpoint         string `json:"s3_endpoint" envconfig:"CARDLEDGER_CLEARING_S3_ENDPOINT"`
	AwsAccessKeyId     string `json:"aws_access_key_id" envconfig:"CARDLEDGER_CLEARING_AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string `json:"aws_secret_access_key" envconfig:"CARDLEDGER_CLEARING_AWS_SECRET_ACCESS_KEY"`
}

type Configuration struct {
	ProjectName string           `json:"project_name" envconfig:"CARDLEDGER_PROJECT_NAME"`
	Server      ServerConfig     `json:"server"`
	DataSource  DataSourceConfig `json:"data_source"`
	Redis       RedisConfig      `json:"redis"`
	Batch       BatchConfig      `json:"batch"`
	Clearing    ClearingConfig   `json:"clearing"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("cardledger", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called cardledger.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "CardLedger"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Batch.ChunkSize <= 0 {
		cnf.Batch.ChunkSize = DefaultChunkSize
	}
	if cnf.Batch.SkipLimit <= 0 {
		cnf.Batch.SkipLimit = DefaultSkipLimit
	}
	if cnf.Batch.Queue == "" {
		cnf.Batch.Queue = "batch:runs"
	}
	if cnf.Batch.StorageTimeoutSec <= 0 {
		cnf.Batch.StorageTimeoutSec = DefaultStorageTimeoutSec
	}

	if cnf.Clearing.Dir == "" && cnf.Clearing.S3BucketName == "" {
		cnf.Clearing.Dir = "clearing"
		log.Printf("Warning: No clearing sink configured. Extracts will be written to ./%s", cnf.Clearing.Dir)
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	_ = mockConfig.validateAndAddDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
