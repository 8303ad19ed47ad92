package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("http:\n  address: \":9090\"\n"))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Address)
	assert.Equal(t, JournalMemory, cfg.Ledger.Journal)
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.Equal(t, 30*time.Second, cfg.Cache.SeatTTL)
	assert.Equal(t, 5*time.Minute, cfg.Cache.ListingTTL)
	assert.Equal(t, 2*time.Second, cfg.Cache.ReadTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Replicator.RetryBase)
	assert.Equal(t, 30*time.Second, cfg.Replicator.RetryMax)
	assert.Equal(t, 5, cfg.Replicator.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Replicator.SweepInterval)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("SEATLEDGER_DB_PASSWORD", "s3cret")
	cfg, err := Parse([]byte(`
database:
  host: db
  port: 5432
  user: ledger
  password: ${SEATLEDGER_DB_PASSWORD}
  name: seats
  ssl_mode: disable
cache:
  backend: redis
  seat_ttl: 10s
kafka:
  enabled: true
  brokers: ["kafka:9092"]
`))
	require.NoError(t, err)

	assert.Equal(t, "host=db port=5432 user=ledger password=s3cret dbname=seats sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, 10*time.Second, cfg.Cache.SeatTTL)
	assert.Equal(t, "ledger-events", cfg.Kafka.EventsTopic)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"cache backend":  "cache:\n  backend: memcached\n",
		"journal":        "ledger:\n  journal: sqlite\n",
		"kafka brokers":  "kafka:\n  enabled: true\n",
		"negative ttl":   "cache:\n  seat_ttl: -1s\n",
		"retry ordering": "replicator:\n  retry_base: 10s\n  retry_max: 1s\n",
		"bad yaml":       "http: [\n",
		"checkpoint":     "replicator:\n  checkpoint_path: /tmp/mirror.db\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_CheckpointWithPostgresJournal(t *testing.T) {
	cfg, err := Parse([]byte("ledger:\n  journal: postgres\nreplicator:\n  checkpoint_path: /var/lib/seatledger/mirror.db\n"))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/seatledger/mirror.db", cfg.Replicator.CheckpointPath)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")
}
