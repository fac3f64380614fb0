package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/store/sqlite"
)

func TestOpen_SQLite(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"}}

	b, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer b.Close()

	_, ok := b.(*sqlite.Store)
	assert.True(t, ok)
	staff, err := b.ListStaff(context.Background())
	require.NoError(t, err)
	assert.Empty(t, staff)
}

func TestOpen_UnknownDriver(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{Driver: "mysql"}}
	_, err := Open(context.Background(), cfg)
	assert.ErrorContains(t, err, "mysql")
}
