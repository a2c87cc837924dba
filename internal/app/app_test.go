package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cabdispatch/internal/config"
)

func TestNewLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LoggerConfig{Level: "debug"}, &buf)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.WithField("request_id", "R").Info("ride requested")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ride requested", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "R", entry["request_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	logger := newLogger(config.LoggerConfig{Level: "chatty"}, &bytes.Buffer{})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestMigrate_AppliesFilesInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	logger, _ := logtest.NewNullLogger()

	fsys := fstest.MapFS{
		"002_more.sql": {Data: []byte("CREATE INDEX b")},
		"001_init.sql": {Data: []byte("CREATE TABLE a")},
		"README.md":    {Data: []byte("ignored")},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE a")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX b")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, Migrate(context.Background(), db, fsys, logger))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_RollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	logger, _ := logtest.NewNullLogger()

	fsys := fstest.MapFS{"001_init.sql": {Data: []byte("CREATE TABLE a")}}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE a")).WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	err = Migrate(context.Background(), db, fsys, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_init.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectionOf(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		cmd  redis.Cmder
		want string
	}{
		{"assignment cache", redis.NewStringCmd(ctx, "get", "cache:assignment:42"), "assignment"},
		{"idempotency record", redis.NewStringCmd(ctx, "set", "idempotency:10.0.0.1:POST:/v1/x:k", "v"), "idempotency"},
		{"bare key", redis.NewStringCmd(ctx, "get", "plain"), "redis"},
		{"no key", redis.NewStatusCmd(ctx, "ping"), "redis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, collectionOf(tt.cmd))
		})
	}
}

func TestDataSourceName(t *testing.T) {
	dsn := dataSourceName(config.DatabaseConfig{
		Host: "db", Port: "5432", User: "u", Password: "p", DBName: "cab_dispatch", SSLMode: "disable",
	})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=cab_dispatch sslmode=disable", dsn)
	assert.Equal(t, "postgres", driverName(nil))
}
