package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type Config struct {
	TonWatchAddress   string        `yaml:"ton_watch_address"`
	TonAPIKey         string        `yaml:"ton_api_key"`
	TonAPIBase        string        `yaml:"ton_api_base"`
	TonProvider       string        `yaml:"ton_provider"`
	FetchLimit        int           `yaml:"fetch_limit"`
	SyncInterval      time.Duration `yaml:"sync_interval"`
	PostgresConfig    string        `yaml:"postgres"`
	RedisConfig       string        `yaml:"redis"`
	PromPort          string        `yaml:"prom_port"`
	HealthCheckPort   string        `yaml:"health_check_port"`
	LogLevel          string        `yaml:"log_level"`
	UserID            string        `yaml:"user_id"`
	PricePollInterval time.Duration `yaml:"price_poll_interval"`
	PriceWatch        bool          `yaml:"price_watch"`
}

func DefaultConfig() Config {
	return Config{
		TonProvider:       "tonapi",
		FetchLimit:        20,
		SyncInterval:      5 * time.Second,
		PricePollInterval: 5 * time.Minute,
		LogLevel:          "info",
	}
}

// LoadConfig reads the yaml file at path when it exists, then .env, then
// the process environment. Later sources win.
func LoadConfig(path, dotenv string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "failed parsing config file %s", path)
		}
	case !os.IsNotExist(err):
		return cfg, errors.Wrapf(err, "failed reading config file %s", path)
	}

	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !os.IsNotExist(err) {
			return cfg, errors.Wrapf(err, "failed loading %s", dotenv)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"TON_WATCH_ADDRESS":    &cfg.TonWatchAddress,
		"TONCENTER_API_KEY":    &cfg.TonAPIKey,
		"TON_TRANSACTIONS_API": &cfg.TonAPIBase,
		"TON_PROVIDER":         &cfg.TonProvider,
		"DATABASE_URL":         &cfg.PostgresConfig,
		"REDIS_ADDR":           &cfg.RedisConfig,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup("FRE_PRICE_POLL_INTERVAL_MS"); ok && v != "" {
		ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || ms <= 0 {
			return errors.Errorf("invalid FRE_PRICE_POLL_INTERVAL_MS %q", v)
		}
		cfg.PricePollInterval = time.Duration(ms) * time.Millisecond
	}
	if v, ok := lookup("FRE_PRICE_WATCH"); ok && v != "" {
		watch, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return errors.Errorf("invalid FRE_PRICE_WATCH %q", v)
		}
		cfg.PriceWatch = watch
	}
	return nil
}
