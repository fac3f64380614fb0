package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "Asia/Tokyo", cfg.Payroll.Timezone)
	assert.Equal(t, 60*time.Second, cfg.Payroll.PunchMinInterval)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "0 2 * * *", cfg.Scheduler.Spec)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "payroll.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"DB_DRIVER=postgres\nDB_HOST=db\nDB_NAME=pay\nDB_PASSWORD=secret\nSCHEDULER_ENABLED=true\nLOG_LEVEL=debug\nPUNCH_MIN_INTERVAL=2m\n",
	), 0o600))
	for _, k := range []string{"DB_DRIVER", "DB_HOST", "DB_NAME", "DB_PASSWORD", "SCHEDULER_ENABLED", "LOG_LEVEL", "PUNCH_MIN_INTERVAL"} {
		// godotenv does not override variables that are already set,
		// and t.Setenv restores them after the test.
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://postgres:secret@db:5432/pay?sslmode=disable", cfg.DatabaseURL())
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Payroll.PunchMinInterval)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_Invalid(t *testing.T) {
	chdir(t, t.TempDir())

	cases := map[string][2]string{
		"port":     {"APP_PORT", "eighty"},
		"driver":   {"DB_DRIVER", "oracle"},
		"timezone": {"PAYROLL_TIMEZONE", "Mars/Olympus"},
		"interval": {"PUNCH_MIN_INTERVAL", "soon"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
