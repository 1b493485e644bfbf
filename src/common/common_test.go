package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
ton_watch_address: EQfromfile
ton_provider: toncenter
fetch_limit: 50
sync_interval: 10s
postgres: postgres://file
prom_port: ":2112"
`), 0o600))
	require.NoError(t, os.WriteFile(envPath, []byte("REDIS_ADDR=localhost:6379\nFRE_PRICE_WATCH=true\n"), 0o600))
	t.Setenv("TON_WATCH_ADDRESS", "EQfromenv")
	t.Setenv("FRE_PRICE_POLL_INTERVAL_MS", "60000")
	for _, key := range []string{"TONCENTER_API_KEY", "TON_TRANSACTIONS_API", "TON_PROVIDER", "DATABASE_URL"} {
		t.Setenv(key, "")
	}
	// unset so the .env values apply, t.Setenv restores them afterwards
	for _, key := range []string{"REDIS_ADDR", "FRE_PRICE_WATCH"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := LoadConfig(cfgPath, envPath)
	require.NoError(t, err)

	expected := DefaultConfig()
	expected.TonWatchAddress = "EQfromenv"
	expected.TonProvider = "toncenter"
	expected.FetchLimit = 50
	expected.SyncInterval = 10 * time.Second
	expected.PostgresConfig = "postgres://file"
	expected.PromPort = ":2112"
	expected.RedisConfig = "localhost:6379"
	expected.PriceWatch = true
	expected.PricePollInterval = time.Minute
	if d := cmp.Diff(expected, cfg); d != "" {
		t.Fatalf("unexpected config: %s", d)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.FetchLimit)
	assert.Equal(t, "tonapi", cfg.TonProvider)
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	env := map[string]string{"FRE_PRICE_POLL_INTERVAL_MS": "soon"}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }
	assert.Error(t, cfg.applyEnv(lookup))

	env = map[string]string{"FRE_PRICE_WATCH": "maybe"}
	assert.Error(t, cfg.applyEnv(lookup))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zap.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, zap.InfoLevel, ParseLevel(""))
	assert.Equal(t, zap.InfoLevel, ParseLevel("loud"))
}

func TestReadyzHandler(t *testing.T) {
	ok := HealthCheck{Name: "postgres", Check: func(context.Context) error { return nil }}
	down := HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }}

	rec := httptest.NewRecorder()
	ReadyzHandler(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	ReadyzHandler(ok, down).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed pinging redis: connection refused", rec.Body.String())
}
