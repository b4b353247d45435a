package storage

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drone-bridge/drone-bridge-server/internal/config"
)

func TestApplyPoolConfig(t *testing.T) {
	db, err := sql.Open("postgres", "postgres://localhost:5432/drone_bridge?sslmode=disable")
	require.NoError(t, err)
	defer db.Close()

	applyPoolConfig(db, config.DatabaseConfig{
		MaxOpenConns:    7,
		MaxIdleConns:    3,
		ConnMaxLifetime: 30 * time.Minute,
	})

	assert.Equal(t, 7, db.Stats().MaxOpenConnections)
}

func TestApplyPoolConfigZeroKeepsDefaults(t *testing.T) {
	db, err := sql.Open("postgres", "postgres://localhost:5432/drone_bridge?sslmode=disable")
	require.NoError(t, err)
	defer db.Close()

	applyPoolConfig(db, config.DatabaseConfig{})

	// database/sql's default is an unlimited pool
	assert.Equal(t, 0, db.Stats().MaxOpenConnections)
}
