package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/codemind/config"
)

func TestEnsureCorpusSchemaRejectsInvalidDimension(t *testing.T) {
	err := EnsureCorpusSchema(context.Background(), nil, 0)
	assert.Error(t, err)
}

func TestClearCorpusNilPool(t *testing.T) {
	assert.Error(t, ClearCorpus(context.Background(), nil))
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not-a-redis-url")
	assert.Error(t, err)
}

func TestDatabaseConnectivity(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_DB_INTEGRATION_TESTS=1 to run database connectivity checks")
	}

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pgPool, err := NewPostgresPool(ctx, cfg.PostgresDSN)
	require.NoError(t, err)
	defer pgPool.Close()
	require.NoError(t, pgPool.Ping(ctx))

	driver, err := NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, driver.Close(ctx))
	}()

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer func() {
		assert.NoError(t, session.Close(ctx))
	}()

	result, err := session.Run(ctx, "RETURN 1 AS ok", nil)
	require.NoError(t, err)
	require.True(t, result.Next(ctx), "neo4j query returned no records")

	value, found := result.Record().Get("ok")
	require.True(t, found)
	assert.Equal(t, int64(1), value)
	assert.NoError(t, result.Err())
}
