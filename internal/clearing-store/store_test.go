package clearingstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardledger/cardledger/config"
)

func TestLocalStorePut(t *testing.T) {
	dir := t.TempDir()
	store := &LocalStore{Dir: dir}

	err := store.Put(context.Background(), "clearing-2024-05-02.dat", []byte("NO ACTIVITY 2024-05-02\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "clearing-2024-05-02.dat"))
	require.NoError(t, err)
	assert.Equal(t, "NO ACTIVITY 2024-05-02\n", string(data))
}

func TestLocalStorePutCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "clearing")
	store := &LocalStore{Dir: dir}

	require.NoError(t, store.Put(context.Background(), "out.dat", []byte("x")))
	_, err := os.Stat(filepath.Join(dir, "out.dat"))
	assert.NoError(t, err)
}

func TestLocalStorePutOverwrites(t *testing.T) {
	dir := t.TempDir()
	store := &LocalStore{Dir: dir}
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "out.dat", []byte("first")))
	require.NoError(t, store.Put(ctx, "out.dat", []byte("second")))

	data, err := os.ReadFile(filepath.Join(dir, "out.dat"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestNewPicksLocalWithoutBucket(t *testing.T) {
	config.MockConfig(&config.Configuration{
		DataSource: config.DataSourceConfig{Dns: "postgres://localhost/cardledger"},
		Redis:      config.RedisConfig{Dns: "localhost:6379"},
		Clearing:   config.ClearingConfig{Dir: t.TempDir()},
	})

	store, err := New()
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)
}

func TestNewPicksS3WithBucket(t *testing.T) {
	config.MockConfig(&config.Configuration{
		DataSource: config.DataSourceConfig{Dns: "postgres://localhost/cardledger"},
		Redis:      config.RedisConfig{Dns: "localhost:6379"},
		Clearing: config.ClearingConfig{
			S3BucketName:       "clearing-bucket",
			S3Region:           "us-east-1",
			AwsAccessKeyId:     "test",
			AwsSecretAccessKey: "test",
		},
	})

	store, err := New()
	require.NoError(t, err)
	assert.IsType(t, &S3Store{}, store)
}
