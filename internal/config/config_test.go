package config

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults apply when environment is empty", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Server.Port)
		assert.Equal(t, "portfolioledger", cfg.Database.DBName)
		assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
		assert.Equal(t, "portfolio-events", cfg.Kafka.EventsTopic)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("cache and kafka are off by default", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)

		assert.False(t, cfg.Redis.Enabled())
		assert.Empty(t, cfg.Kafka.BrokerList())
	})

	t.Run("blank brokers are ignored", func(t *testing.T) {
		t.Setenv("KAFKA_BROKERS", " , ")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Empty(t, cfg.Kafka.BrokerList())

		k := KafkaConfig{Brokers: []string{"", " k1:9092 ", ""}}
		assert.Equal(t, []string{"k1:9092"}, k.BrokerList())
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("DB_HOST", "db.internal")
		t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
		t.Setenv("PRICE_CACHE_TTL", "15m")

		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.BrokerList())
		assert.Equal(t, 15*time.Minute, cfg.Redis.TTL)
	})

	t.Run("reads yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := "server:\n  port: \"9090\"\ndatabase:\n  dbname: ledger_test\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "9090", cfg.Server.Port)
		assert.Equal(t, "ledger_test", cfg.Database.DBName)
		assert.Equal(t, "localhost", cfg.Database.Host)
	})

	t.Run("ConnectionString builds a postgres url", func(t *testing.T) {
		d := DatabaseConfig{Host: "h", Port: "5432", User: "u", Password: "p", DBName: "d", SSLMode: "disable"}
		assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", d.ConnectionString())
	})

	t.Run("ConnectionString escapes credentials", func(t *testing.T) {
		d := DatabaseConfig{Host: "h", Port: "5432", User: "svc@ledger", Password: "p@ss/w?rd:1", DBName: "d", SSLMode: "require"}

		u, err := url.Parse(d.ConnectionString())
		require.NoError(t, err)

		assert.Equal(t, "svc@ledger", u.User.Username())
		password, _ := u.User.Password()
		assert.Equal(t, "p@ss/w?rd:1", password)
		assert.Equal(t, "h:5432", u.Host)
		assert.Equal(t, "/d", u.Path)
		assert.Equal(t, "require", u.Query().Get("sslmode"))
	})
}
